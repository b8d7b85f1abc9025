// Package config holds the gateway's immutable runtime configuration and its
// persistent store (API key records and the audit log).
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration for the gateway. It is assembled once
// at startup and injected into the components that need it; nothing in the
// gate reads ambient global state.
type Config struct {
	Host        string
	Port        int
	Environment string // "production" enables strict origin checks
	CORSOrigins []string

	CSRFSecret          string
	CSRFTokenTTL        time.Duration
	AllowedOrigins      []string
	TrustedParentDomain string

	StoreDriver string // sqlite (default), postgres, mysql
	StoreDSN    string
	DataDir     string

	AuditRetention    time.Duration
	AuditBuffer       int
	AuditWriteTimeout time.Duration

	RateLimitPerMinute int

	ShutdownTimeout time.Duration
}

// Production reports whether the gateway runs with production policies.
func (c Config) Production() bool {
	return c.Environment == "production"
}

// SetDefaults registers every configuration default on v. Called once from
// the CLI before reading the config file and environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("environment", "development")
	v.SetDefault("csrf.ttl_ms", 3600000)
	v.SetDefault("csrf.allowed_origins", []string{})
	v.SetDefault("csrf.trusted_parent_domain", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("audit.retention_days", 180)
	v.SetDefault("audit.buffer", 1024)
	v.SetDefault("audit.write_timeout_ms", 2000)
	v.SetDefault("ratelimit.per_minute", 120)
}

// Load materializes a Config from v. Defaults must already be registered.
func Load(v *viper.Viper) Config {
	return Config{
		Host:        v.GetString("server.host"),
		Port:        v.GetInt("server.port"),
		Environment: v.GetString("environment"),
		CORSOrigins: v.GetStringSlice("server.cors_origins"),

		CSRFSecret:          v.GetString("csrf.secret"),
		CSRFTokenTTL:        time.Duration(v.GetInt64("csrf.ttl_ms")) * time.Millisecond,
		AllowedOrigins:      v.GetStringSlice("csrf.allowed_origins"),
		TrustedParentDomain: v.GetString("csrf.trusted_parent_domain"),

		StoreDriver: v.GetString("store.driver"),
		StoreDSN:    v.GetString("store.dsn"),
		DataDir:     v.GetString("store.data_dir"),

		AuditRetention:    time.Duration(v.GetInt("audit.retention_days")) * 24 * time.Hour,
		AuditBuffer:       v.GetInt("audit.buffer"),
		AuditWriteTimeout: time.Duration(v.GetInt64("audit.write_timeout_ms")) * time.Millisecond,

		RateLimitPerMinute: v.GetInt("ratelimit.per_minute"),

		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
	}
}
