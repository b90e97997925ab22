package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want %q", cfg.Env, "development")
	}
	if cfg.FrontendURL != "http://localhost:3000" {
		t.Errorf("FrontendURL = %q, want default", cfg.FrontendURL)
	}
	if cfg.JWTIssuer != "appforge-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "appforge-auth")
	}
	if cfg.JWTAudience != "appforge-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "appforge-api")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.ErrorReportPerMinute != 20 {
		t.Errorf("ErrorReportPerMinute = %d, want 20", cfg.ErrorReportPerMinute)
	}
	if cfg.RateLimitPerMinute != 100 {
		t.Errorf("RateLimitPerMinute = %d, want 100", cfg.RateLimitPerMinute)
	}
	if cfg.KafkaTopic != "appforge-telemetry" {
		t.Errorf("KafkaTopic = %q, want default", cfg.KafkaTopic)
	}
	if cfg.AuditAllRateLimit {
		t.Error("AuditAllRateLimit should default to false")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")
	os.Setenv("ERROR_REPORT_PER_MINUTE", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.ErrorReportPerMinute != 5 {
		t.Errorf("ErrorReportPerMinute = %d, want 5", cfg.ErrorReportPerMinute)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "sandbox")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error for unknown APP_ENV")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}

func TestLoad_EnvNormalized(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "  Production ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "production" {
		t.Errorf("Env = %q, want %q", cfg.Env, "production")
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction should be true")
	}
	if cfg.Verbose() {
		t.Error("Verbose should be false in production")
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"valid middle", "12", 12, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false}, // defaults to 12
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestVerbose_Development(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Verbose() {
		t.Error("Verbose should be true in development")
	}
	if cfg.IsProduction() {
		t.Error("IsProduction should be false in development")
	}
}

func TestCORSOriginsList_Default(t *testing.T) {
	os.Clearenv()
	os.Setenv("FRONTEND_URL", "https://app.appforge.dev")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	origins := cfg.CORSOriginsList()
	if len(origins) != 1 || origins[0] != "https://app.appforge.dev" {
		t.Errorf("CORSOriginsList = %v, want [https://app.appforge.dev]", origins)
	}
}

func TestCORSOriginsList_Explicit(t *testing.T) {
	os.Clearenv()
	os.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	origins := cfg.CORSOriginsList()
	if len(origins) != 2 {
		t.Fatalf("CORSOriginsList = %v, want 2 entries", origins)
	}
	if origins[0] != "https://a.example" || origins[1] != "https://b.example" {
		t.Errorf("CORSOriginsList = %v", origins)
	}
}

func TestKafkaBrokersList(t *testing.T) {
	os.Clearenv()
	os.Setenv("KAFKA_BROKERS", "localhost:9092, broker2:9092 ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) != 2 {
		t.Fatalf("KafkaBrokersList = %v, want 2 entries", brokers)
	}
	if brokers[0] != "localhost:9092" || brokers[1] != "broker2:9092" {
		t.Errorf("KafkaBrokersList = %v", brokers)
	}
}

func TestKafkaBrokersList_Empty(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if brokers := cfg.KafkaBrokersList(); brokers != nil {
		t.Errorf("KafkaBrokersList = %v, want nil", brokers)
	}
}
