package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// yamlConfig is the YAML representation of the effective runtime
// configuration, used by `trustgate config show`.
type yamlConfig struct {
	Server struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		CORSOrigins     []string `yaml:"cors_origins"`
		ShutdownTimeout string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Environment string `yaml:"environment"`
	CSRF        struct {
		Secret              string   `yaml:"secret"`
		TokenTTL            string   `yaml:"token_ttl"`
		AllowedOrigins      []string `yaml:"allowed_origins"`
		TrustedParentDomain string   `yaml:"trusted_parent_domain,omitempty"`
	} `yaml:"csrf"`
	Store struct {
		Driver  string `yaml:"driver"`
		DSN     string `yaml:"dsn,omitempty"`
		DataDir string `yaml:"data_dir,omitempty"`
	} `yaml:"store"`
	Audit struct {
		RetentionDays int    `yaml:"retention_days"`
		Buffer        int    `yaml:"buffer"`
		WriteTimeout  string `yaml:"write_timeout"`
	} `yaml:"audit"`
	RateLimit struct {
		PerMinute int `yaml:"per_minute"`
	} `yaml:"ratelimit"`
}

// RedactedYAML renders the config as YAML with secret material masked.
// DSNs can embed passwords, so they are masked too when non-empty.
func (c Config) RedactedYAML() ([]byte, error) {
	var y yamlConfig
	y.Server.Host = c.Host
	y.Server.Port = c.Port
	y.Server.CORSOrigins = c.CORSOrigins
	y.Server.ShutdownTimeout = c.ShutdownTimeout.String()
	y.Environment = c.Environment

	y.CSRF.Secret = redact(c.CSRFSecret)
	y.CSRF.TokenTTL = c.CSRFTokenTTL.String()
	y.CSRF.AllowedOrigins = c.AllowedOrigins
	y.CSRF.TrustedParentDomain = c.TrustedParentDomain

	y.Store.Driver = c.StoreDriver
	y.Store.DSN = redact(c.StoreDSN)
	y.Store.DataDir = c.DataDir

	y.Audit.RetentionDays = int(c.AuditRetention / (24 * time.Hour))
	y.Audit.Buffer = c.AuditBuffer
	y.Audit.WriteTimeout = c.AuditWriteTimeout.String()

	y.RateLimit.PerMinute = c.RateLimitPerMinute

	return yaml.Marshal(y)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}
