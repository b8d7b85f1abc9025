package config

import (
	"fmt"
	"strings"
)

// migrate creates the schema if it does not exist. Statements are idempotent
// so the store can be opened repeatedly against the same database. Each
// supported dialect gets its own DDL because autoincrement and time types
// differ across the three drivers.
func (s *Store) migrate() error {
	var migrations []string

	switch s.driver {
	case "postgres":
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS api_keys (
				id BIGSERIAL PRIMARY KEY,
				key_name TEXT UNIQUE NOT NULL,
				key_hash TEXT UNIQUE NOT NULL,
				key_prefix TEXT NOT NULL,
				permissions_json TEXT NOT NULL DEFAULT '[]',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				expires_at TIMESTAMPTZ,
				ip_allow_json TEXT NOT NULL DEFAULT '[]',
				usage_count BIGINT NOT NULL DEFAULT 0,
				last_used TIMESTAMPTZ,
				rate_limit INTEGER NOT NULL DEFAULT 0,
				created_by TEXT NOT NULL DEFAULT '',
				rotated_at TIMESTAMPTZ,
				rotated_by TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id BIGSERIAL PRIMARY KEY,
				actor_id BIGINT,
				actor_name TEXT NOT NULL DEFAULT '',
				action TEXT NOT NULL,
				target_type TEXT NOT NULL DEFAULT '',
				target_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				changes_json TEXT NOT NULL DEFAULT '',
				ip_address TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				affected_records INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix, is_active)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_id)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action)`,
		}

	case "mysql":
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS api_keys (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				key_name VARCHAR(128) UNIQUE NOT NULL,
				key_hash VARCHAR(64) UNIQUE NOT NULL,
				key_prefix VARCHAR(16) NOT NULL,
				permissions_json TEXT NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				expires_at DATETIME,
				ip_allow_json TEXT NOT NULL,
				usage_count BIGINT NOT NULL DEFAULT 0,
				last_used DATETIME,
				rate_limit INT NOT NULL DEFAULT 0,
				created_by VARCHAR(128) NOT NULL DEFAULT '',
				rotated_at DATETIME,
				rotated_by VARCHAR(128) NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				INDEX idx_api_keys_prefix (key_prefix, is_active)
			)`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				actor_id BIGINT,
				actor_name VARCHAR(128) NOT NULL DEFAULT '',
				action VARCHAR(32) NOT NULL,
				target_type VARCHAR(64) NOT NULL DEFAULT '',
				target_id VARCHAR(128) NOT NULL DEFAULT '',
				status VARCHAR(16) NOT NULL,
				changes_json TEXT NOT NULL,
				ip_address VARCHAR(64) NOT NULL DEFAULT '',
				user_agent VARCHAR(512) NOT NULL DEFAULT '',
				error_message TEXT NOT NULL,
				affected_records INT NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				INDEX idx_audit_created (created_at),
				INDEX idx_audit_actor (actor_id),
				INDEX idx_audit_action (action)
			)`,
		}

	default: // sqlite
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS api_keys (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				key_name TEXT UNIQUE NOT NULL,
				key_hash TEXT UNIQUE NOT NULL,
				key_prefix TEXT NOT NULL,
				permissions_json TEXT NOT NULL DEFAULT '[]',
				is_active INTEGER NOT NULL DEFAULT 1,
				expires_at DATETIME,
				ip_allow_json TEXT NOT NULL DEFAULT '[]',
				usage_count INTEGER NOT NULL DEFAULT 0,
				last_used DATETIME,
				rate_limit INTEGER NOT NULL DEFAULT 0,
				created_by TEXT NOT NULL DEFAULT '',
				rotated_at DATETIME,
				rotated_by TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				actor_id INTEGER,
				actor_name TEXT NOT NULL DEFAULT '',
				action TEXT NOT NULL,
				target_type TEXT NOT NULL DEFAULT '',
				target_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				changes_json TEXT NOT NULL DEFAULT '',
				ip_address TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				affected_records INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix, is_active)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_id)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action)`,
		}
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// MySQL lacks CREATE INDEX IF NOT EXISTS; treat duplicates as no-ops.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
