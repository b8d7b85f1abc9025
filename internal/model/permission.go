package model

import (
	"fmt"
	"strings"
)

// Permission is one capability an API key can hold. The set is closed:
// unknown permission strings are rejected at parse time, never silently
// granted or ignored.
type Permission string

const (
	PermManageUsers   Permission = "manage_users"
	PermManageContent Permission = "manage_content"
	PermManageAPIKeys Permission = "manage_api_keys"
	PermViewAuditLog  Permission = "view_audit_log"
	PermExportData    Permission = "export_data"
	PermBulkActions   Permission = "bulk_actions"
)

// AllPermissions lists every known capability, in display order.
var AllPermissions = []Permission{
	PermManageUsers,
	PermManageContent,
	PermManageAPIKeys,
	PermViewAuditLog,
	PermExportData,
	PermBulkActions,
}

// ParsePermission validates a single permission string.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.TrimSpace(s))
	for _, known := range AllPermissions {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// ParsePermissions validates a permission list. At least one entry is
// required; a key with no capabilities is unusable and almost certainly a
// caller mistake.
func ParsePermissions(strs []string) ([]Permission, error) {
	if len(strs) == 0 {
		return nil, fmt.Errorf("at least one permission is required")
	}
	perms := make([]Permission, 0, len(strs))
	for _, s := range strs {
		p, err := ParsePermission(s)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// HasPermission reports whether perm is in the granted set.
func HasPermission(granted []Permission, perm Permission) bool {
	for _, p := range granted {
		if p == perm {
			return true
		}
	}
	return false
}
