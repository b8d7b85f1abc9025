// Package metrics exposes Prometheus instrumentation for the gate's
// decisions and the audit pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CSRFDecisions counts CSRF gate outcomes. Outcome is one of admit,
	// bypass, exempt, origin_invalid, token_missing, token_expired,
	// token_invalid.
	CSRFDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustgate_csrf_decisions_total",
		Help: "CSRF gate decisions by outcome.",
	}, []string{"outcome"})

	// UnlistedOrigins counts requests whose origin was not on the allow list
	// but passed because the policy is permissive.
	UnlistedOrigins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_csrf_unlisted_origins_total",
		Help: "Requests admitted with an origin outside the allow list (permissive mode).",
	})

	// AuthDecisions counts API-key gate outcomes, labeled by rejection code
	// or "admit".
	AuthDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustgate_auth_decisions_total",
		Help: "API-key gate decisions by outcome.",
	}, []string{"outcome"})

	// PermissionDenials counts authorization failures by capability.
	PermissionDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustgate_permission_denials_total",
		Help: "Authorization denials by required permission.",
	}, []string{"permission"})

	// AuditWritten counts audit entries persisted successfully.
	AuditWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_audit_entries_written_total",
		Help: "Audit entries persisted.",
	})

	// AuditDropped counts audit entries lost to a full buffer or a failed
	// write. Nonzero values mean the audit trail has gaps.
	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_audit_entries_dropped_total",
		Help: "Audit entries dropped (full buffer or write failure).",
	})

	// AuditQueueDepth tracks the async sink's buffered entry count.
	AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trustgate_audit_queue_depth",
		Help: "Entries waiting in the audit sink buffer.",
	})

	// AuditPurged counts entries removed by the retention job.
	AuditPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_audit_entries_purged_total",
		Help: "Audit entries removed by retention.",
	})
)
