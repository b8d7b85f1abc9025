package model

import "time"

// APIKey represents an administrative API key. The raw key is never stored;
// only a SHA-256 hash and a short prefix for indexed lookup are persisted.
// The prefix is not secret and never authorizes anything by itself; the
// full hash comparison is mandatory on every admission.
type APIKey struct {
	ID          int64        `json:"id"`
	KeyName     string       `json:"key_name"` // unique human label
	KeyHash     string       `json:"-"`        // SHA-256 hash, never expose
	KeyPrefix   string       `json:"key_prefix"`
	Permissions []Permission `json:"permissions"`
	IsActive    bool         `json:"is_active"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	IPAllowList []string     `json:"ip_allow_list,omitempty"` // empty = unrestricted
	UsageCount  int64        `json:"usage_count"`
	LastUsed    *time.Time   `json:"last_used,omitempty"`
	RateLimit   int          `json:"rate_limit"` // requests per minute, 0 = server default
	CreatedBy   string       `json:"created_by"`
	RotatedAt   *time.Time   `json:"rotated_at,omitempty"`
	RotatedBy   string       `json:"rotated_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ExpiredAt reports whether the key's expiry, if set, has passed at now.
func (k *APIKey) ExpiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// IPAllowed reports whether ip may use this key. An empty allow list means
// the key is unrestricted.
func (k *APIKey) IPAllowed(ip string) bool {
	if len(k.IPAllowList) == 0 {
		return true
	}
	for _, allowed := range k.IPAllowList {
		if allowed == ip {
			return true
		}
	}
	return false
}
