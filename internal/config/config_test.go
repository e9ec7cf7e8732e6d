package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "Test-Secret-For-Unit-Tests-0123456789"

const baseYAML = `server:
  host: "127.0.0.1"
  port: 3000
  mode: "debug"
database:
  driver: "sqlite"
  sqlite:
    path: "data/test.db"
auth:
  jwt_secret: "` + testSecret + `"
log:
  level: "info"
  format: "json"
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func loadWithEnv(t *testing.T, yaml string, env map[string]string) (*Config, error) {
	t.Helper()
	path := writeTestConfig(t, yaml)
	for k, v := range env {
		t.Setenv(k, v)
	}
	return Load(path)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWithEnv(t, baseYAML, nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"auth.token_expiry", cfg.Auth.TokenExpiry, DefaultTokenExpiry},
		{"auth.email_verification.code_ttl", cfg.Auth.EmailVerification.CodeTTL, DefaultVerificationTTL},
		{"auth.email_verification.max_attempts", cfg.Auth.EmailVerification.MaxAttempts, DefaultMaxAttempts},
		{"auth.password_reset.code_ttl", cfg.Auth.PasswordReset.CodeTTL, DefaultResetTTL},
		{"pagination.default_limit", cfg.Pagination.DefaultLimit, DefaultPageLimit},
		{"pagination.max_limit", cfg.Pagination.MaxLimit, DefaultMaxPageLimit},
		{"graphql.path", cfg.GraphQL.Path, DefaultGraphQLPath},
		{"mail.provider", cfg.Mail.Provider, DefaultMailProvider},
		{"tracing.service_name", cfg.Tracing.ServiceName, DefaultTracingService},
		{"redis.enabled", cfg.Redis.Enabled, false},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	cfg, err := loadWithEnv(t, baseYAML, map[string]string{
		"APP__SERVER__PORT":                           "9090",
		"APP__LOG__LEVEL":                             "error",
		"APP__DATABASE__POOL__MAX_IDLE_CONNS":         "20",
		"APP__AUTH__EMAIL_VERIFICATION__CODE_TTL":     "10m",
		"APP__AUTH__EMAIL_VERIFICATION__MAX_ATTEMPTS": "5",
		"APP__PAGINATION__MAX_LIMIT":                  "50",
		"APP__REDIS__ENABLED":                         "true",
		"APP__REDIS__ADDR":                            "cache:6379",
		"APP__TRACING__SAMPLE_RATIO":                  "0.25",
	})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error", cfg.Log.Level)
	}
	if cfg.Database.Pool.MaxIdleConns != 20 {
		t.Errorf("Pool.MaxIdleConns = %d, want 20", cfg.Database.Pool.MaxIdleConns)
	}
	if cfg.Auth.EmailVerification.CodeTTL != "10m" || cfg.Auth.EmailVerification.MaxAttempts != 5 {
		t.Errorf("EmailVerification = %+v", cfg.Auth.EmailVerification)
	}
	if cfg.Pagination.MaxLimit != 50 {
		t.Errorf("Pagination.MaxLimit = %d, want 50", cfg.Pagination.MaxLimit)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6379" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Tracing.SampleRatio != 0.25 {
		t.Errorf("Tracing.SampleRatio = %v, want 0.25", cfg.Tracing.SampleRatio)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want unchanged", cfg.Server.Host)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"server mode", map[string]string{"APP__SERVER__MODE": "prod"}, "server.mode"},
		{"server port", map[string]string{"APP__SERVER__PORT": "70000"}, "server.port"},
		{"server host", map[string]string{"APP__SERVER__HOST": "  "}, "server.host"},
		{"server timeout", map[string]string{"APP__SERVER__TIMEOUT": "-1s"}, "server.timeout"},
		{"cors max age", map[string]string{"APP__SERVER__CORS__MAX_AGE": "soon"}, "server.cors.max_age"},
		{"database driver", map[string]string{"APP__DATABASE__DRIVER": "mysql"}, "database.driver"},
		{"sqlite path", map[string]string{"APP__DATABASE__SQLITE__PATH": " "}, "database.sqlite.path"},
		{"pool lifetime", map[string]string{"APP__DATABASE__POOL__CONN_MAX_LIFETIME": "0s"}, "conn_max_lifetime"},
		{"postgres host", map[string]string{"APP__DATABASE__DRIVER": "postgres"}, "database.postgres.host"},
		{"jwt secret missing", map[string]string{"APP__AUTH__JWT_SECRET": " "}, "auth.jwt_secret is required"},
		{"jwt secret short", map[string]string{"APP__AUTH__JWT_SECRET": "short"}, "at least 32"},
		{"token expiry", map[string]string{"APP__AUTH__TOKEN_EXPIRY": "forever"}, "auth.token_expiry"},
		{"reset ttl", map[string]string{"APP__AUTH__PASSWORD_RESET__CODE_TTL": "-5m"}, "auth.password_reset.code_ttl"},
		{"max attempts", map[string]string{"APP__AUTH__EMAIL_VERIFICATION__MAX_ATTEMPTS": "-1"}, "max_attempts"},
		{"pagination order", map[string]string{"APP__PAGINATION__DEFAULT_LIMIT": "200"}, "pagination.default_limit"},
		{"pagination negative", map[string]string{"APP__PAGINATION__MAX_LIMIT": "-1"}, "pagination limits"},
		{"graphql path", map[string]string{"APP__GRAPHQL__PATH": "graphql"}, "graphql.path"},
		{"redis addr", map[string]string{"APP__REDIS__ENABLED": "true", "APP__REDIS__ADDR": ""}, "redis.addr"},
		{"redis db", map[string]string{"APP__REDIS__DB": "-1"}, "redis.db"},
		{"mail provider", map[string]string{"APP__MAIL__PROVIDER": "smtp"}, "mail.provider"},
		{"sendgrid key", map[string]string{"APP__MAIL__PROVIDER": "sendgrid", "APP__MAIL__FROM_ADDRESS": "a@b.c"}, "mail.sendgrid_api_key"},
		{"sendgrid from", map[string]string{"APP__MAIL__PROVIDER": "sendgrid", "APP__MAIL__SENDGRID_API_KEY": "SG.x"}, "mail.from_address"},
		{"tracing endpoint", map[string]string{"APP__TRACING__ENABLED": "true"}, "tracing.endpoint"},
		{"tracing ratio", map[string]string{"APP__TRACING__ENABLED": "true", "APP__TRACING__ENDPOINT": "otel:4318", "APP__TRACING__SAMPLE_RATIO": "1.5"}, "tracing.sample_ratio"},
		{"log level", map[string]string{"APP__LOG__LEVEL": "trace"}, "log.level"},
		{"log format", map[string]string{"APP__LOG__FORMAT": "xml"}, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadWithEnv(t, baseYAML, tt.env)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Postgres(t *testing.T) {
	pg := map[string]string{
		"APP__DATABASE__DRIVER":            "postgres",
		"APP__DATABASE__POSTGRES__HOST":    " db.example.com ",
		"APP__DATABASE__POSTGRES__PORT":    "5433",
		"APP__DATABASE__POSTGRES__USER":    "admin",
		"APP__DATABASE__POSTGRES__DBNAME":  "hive",
		"APP__DATABASE__POSTGRES__SSLMODE": "disable",
	}

	cfg, err := loadWithEnv(t, baseYAML, pg)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Postgres.Host != "db.example.com" {
		t.Errorf("Postgres.Host = %q, want trimmed", cfg.Database.Postgres.Host)
	}

	t.Run("release requires tls", func(t *testing.T) {
		pg["APP__SERVER__MODE"] = "release"
		_, err := loadWithEnv(t, baseYAML, pg)
		if err == nil || !strings.Contains(err.Error(), "sslmode") {
			t.Fatalf("error = %v, want an sslmode error", err)
		}
	})
}

func TestLoad_ReleaseSecretClasses(t *testing.T) {
	_, err := loadWithEnv(t, baseYAML, map[string]string{
		"APP__SERVER__MODE":     "release",
		"APP__AUTH__JWT_SECRET": strings.Repeat("a", 40),
	})
	if err == nil || !strings.Contains(err.Error(), "character classes") {
		t.Fatalf("error = %v, want a character class error", err)
	}
}

func TestLoad_DefaultConfigFile(t *testing.T) {
	cfg, err := Load("../../configs/config.yaml")
	if err != nil {
		t.Fatalf("Load(configs/config.yaml) error: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if !cfg.GraphQL.Enabled {
		t.Error("GraphQL.Enabled = false, want true")
	}
	if cfg.Mail.Provider != "log" {
		t.Errorf("Mail.Provider = %q, want log", cfg.Mail.Provider)
	}
	if cfg.Tracing.Enabled || cfg.Redis.Enabled {
		t.Error("optional integrations must be disabled by default")
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		def  time.Duration
		want time.Duration
	}{
		{"30m", time.Hour, 30 * time.Minute},
		{"", time.Hour, time.Hour},
		{"bogus", time.Second, time.Second},
		{"-1s", time.Second, time.Second},
	}
	for _, tt := range tests {
		if got := Duration(tt.in, tt.def); got != tt.want {
			t.Errorf("Duration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCountSecretClasses(t *testing.T) {
	tests := []struct {
		secret string
		want   int
	}{
		{"", 0},
		{"abc", 1},
		{"abcDEF", 2},
		{"abcDEF123", 3},
		{"abcDEF123!@#", 4},
		{"日本語", 1},
	}
	for _, tt := range tests {
		if got := CountSecretClasses(tt.secret); got != tt.want {
			t.Errorf("CountSecretClasses(%q) = %d, want %d", tt.secret, got, tt.want)
		}
	}
}
