package model

import (
	"encoding/json"
	"time"
)

// Action identifies what kind of event an audit entry records.
type Action string

const (
	ActionLogin            Action = "LOGIN"
	ActionFailedLogin      Action = "FAILED_LOGIN"
	ActionPermissionDenied Action = "PERMISSION_DENIED"
	ActionCreate           Action = "CREATE"
	ActionUpdate           Action = "UPDATE"
	ActionDelete           Action = "DELETE"
	ActionRotate           Action = "ROTATE"
	ActionBulk             Action = "BULK_ACTION"
	ActionExport           Action = "EXPORT"
)

// Status records the outcome of the audited action.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusPartial Status = "PARTIAL"
)

// AuditEntry is one immutable record of a gate decision or administrative
// action. ActorID is nil for unauthenticated attempts, which are still
// recorded. Entries are append-only and aged out by the retention
// job; there is no per-entry delete.
type AuditEntry struct {
	ID              int64           `json:"id"`
	ActorID         *int64          `json:"actor_id,omitempty"`
	ActorName       string          `json:"actor_name,omitempty"`
	Action          Action          `json:"action"`
	TargetType      string          `json:"target_type,omitempty"`
	TargetID        string          `json:"target_id,omitempty"`
	Status          Status          `json:"status"`
	Changes         json.RawMessage `json:"changes,omitempty"` // before/after snapshot
	IPAddress       string          `json:"ip_address,omitempty"`
	UserAgent       string          `json:"user_agent,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	AffectedRecords int             `json:"affected_records"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AuditFilter narrows an audit log query. Zero values mean "no constraint".
type AuditFilter struct {
	ActorID    *int64
	Action     Action
	TargetType string
	Status     Status
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// AuditStats aggregates entry counts for dashboarding.
type AuditStats struct {
	Total    int64            `json:"total"`
	ByAction map[Action]int64 `json:"by_action"`
	ByActor  map[string]int64 `json:"by_actor"`
}
