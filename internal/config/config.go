// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the collector HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty until DB is wired.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment: development, staging, or production.
	Env string `mapstructure:"APP_ENV"`
	// FrontendURL is the app frontend origin (e.g. http://localhost:3000); used as the default CORS origin.
	FrontendURL string `mapstructure:"FRONTEND_URL"`
	// CORSOrigins is a comma-separated list of allowed CORS origins; defaults to FrontendURL.
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
	// JWTPublicKey is the PEM-encoded public key (RSA or ECDSA) or path to file; used to verify access tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the expected iss claim (e.g. "appforge-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim (e.g. "appforge-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12. Used by the seed command.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// ErrorReportPerMinute is the per-user (or per-IP) rate limit on POST /monitoring/log-error.
	ErrorReportPerMinute int `mapstructure:"ERROR_REPORT_PER_MINUTE"`
	// RateLimitPerMinute is the global per-user (or per-IP) request rate limit.
	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	// AuditAllRateLimit when true audits every 429; otherwise exceed events are sampled 1-in-10.
	AuditAllRateLimit bool `mapstructure:"AUDIT_ALL_RATE_LIMIT"`

	// Telemetry (optional). When Kafka brokers are set, the collector emits telemetry events to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the Kafka topic for telemetry events (default appforge-telemetry).
	KafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint is the OTLP gRPC endpoint for traces/metrics/logs (e.g. http://localhost:4317); empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("JWT_ISSUER", "appforge-auth")
	v.SetDefault("JWT_AUDIENCE", "appforge-api")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("ERROR_REPORT_PER_MINUTE", 20)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 100)
	v.SetDefault("AUDIT_ALL_RATE_LIMIT", false)
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "appforge-telemetry")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "appforge-telemetry-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	switch cfg.Env {
	case "development", "staging", "production":
	default:
		return nil, fmt.Errorf("config: APP_ENV must be development, staging, or production, got %q", cfg.Env)
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.ErrorReportPerMinute <= 0 {
		cfg.ErrorReportPerMinute = 20
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 100
	}

	return &cfg, nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// Verbose reports whether verbose request logging is enabled (any non-production environment).
func (c *Config) Verbose() bool {
	return c != nil && c.Env != "production"
}

// CORSOriginsList returns allowed CORS origins from the comma-separated config.
// Falls back to FrontendURL when CORS_ORIGINS is unset.
func (c *Config) CORSOriginsList() []string {
	if c == nil {
		return nil
	}
	raw := c.CORSOrigins
	if raw == "" {
		raw = c.FrontendURL
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
