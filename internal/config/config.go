package config

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	Auth       AuthConfig       `koanf:"auth"`
	Pagination PaginationConfig `koanf:"pagination"`
	GraphQL    GraphQLConfig    `koanf:"graphql"`
	Redis      RedisConfig      `koanf:"redis"`
	Mail       MailConfig       `koanf:"mail"`
	Tracing    TracingConfig    `koanf:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string     `koanf:"host"`
	Port    int        `koanf:"port"`
	Mode    string     `koanf:"mode"`
	Timeout string     `koanf:"timeout"`
	CORS    CORSConfig `koanf:"cors"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// AuthConfig holds token and one-time code settings.
type AuthConfig struct {
	JWTSecret         string     `koanf:"jwt_secret"`
	TokenExpiry       string     `koanf:"token_expiry"`
	EmailVerification CodeConfig `koanf:"email_verification"`
	PasswordReset     CodeConfig `koanf:"password_reset"`
}

// CodeConfig configures one kind of one-time code.
type CodeConfig struct {
	CodeTTL     string `koanf:"code_ttl"`
	MaxAttempts int    `koanf:"max_attempts"`
}

// PaginationConfig holds cursor pagination limits.
type PaginationConfig struct {
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
}

// GraphQLConfig holds GraphQL endpoint settings.
type GraphQLConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// RedisConfig holds the Redis connection used for one-time codes.
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// MailConfig selects and configures the outgoing mail provider.
type MailConfig struct {
	Provider       string `koanf:"provider"`
	FromAddress    string `koanf:"from_address"`
	FromName       string `koanf:"from_name"`
	SendGridAPIKey string `koanf:"sendgrid_api_key"`
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

// Defaults applied by Validate to unset fields.
const (
	DefaultTokenExpiry      = "24h"
	DefaultVerificationTTL  = "30m"
	DefaultResetTTL         = "5m"
	DefaultMaxAttempts      = 3
	DefaultPageLimit        = 20
	DefaultMaxPageLimit     = 100
	DefaultGraphQLPath      = "/graphql"
	DefaultTracingService   = "hive"
	DefaultMailProvider     = "log"
	minJWTSecretLength      = 32
	minReleaseSecretClasses = 3
)

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__AUTH__EMAIL_VERIFICATION__CODE_TTL=10m overrides auth.email_verification.code_ttl.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values, and fills
// defaults for optional fields.
func (c *Config) Validate() error {
	steps := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateAuth,
		c.validatePagination,
		c.validateGraphQL,
		c.validateRedis,
		c.validateMail,
		c.validateTracing,
		c.validateLog,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	if err := optionalDuration("server.timeout", &c.Server.Timeout); err != nil {
		return err
	}
	return optionalDuration("server.cors.max_age", &c.Server.CORS.MaxAge)
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
	case "postgres":
		if err := c.validatePostgres(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}
	return optionalDuration("database.pool.conn_max_lifetime", &c.Database.Pool.ConnMaxLifetime)
}

func (c *Config) validatePostgres() error {
	pg := &c.Database.Postgres
	pg.Host = strings.TrimSpace(pg.Host)
	pg.User = strings.TrimSpace(pg.User)
	pg.DBName = strings.TrimSpace(pg.DBName)
	pg.SSLMode = strings.TrimSpace(pg.SSLMode)

	if pg.Host == "" {
		return fmt.Errorf("database.postgres.host is required when driver is postgres")
	}
	if pg.Port < 1 || pg.Port > 65535 {
		return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", pg.Port)
	}
	if pg.User == "" {
		return fmt.Errorf("database.postgres.user is required when driver is postgres")
	}
	if pg.DBName == "" {
		return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
	}

	switch pg.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
	}
	if c.Server.Mode == gin.ReleaseMode {
		switch pg.SSLMode {
		case "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", pg.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
		}
	}
	return nil
}

func (c *Config) validateAuth() error {
	secret := strings.TrimSpace(c.Auth.JWTSecret)
	if secret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(secret) < minJWTSecretLength {
		return fmt.Errorf("invalid auth.jwt_secret: must be at least %d characters", minJWTSecretLength)
	}
	if c.Server.Mode == gin.ReleaseMode && CountSecretClasses(secret) < minReleaseSecretClasses {
		return fmt.Errorf("auth.jwt_secret must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode")
	}
	c.Auth.JWTSecret = secret

	defaults := []struct {
		name  string
		value *string
		def   string
	}{
		{"auth.token_expiry", &c.Auth.TokenExpiry, DefaultTokenExpiry},
		{"auth.email_verification.code_ttl", &c.Auth.EmailVerification.CodeTTL, DefaultVerificationTTL},
		{"auth.password_reset.code_ttl", &c.Auth.PasswordReset.CodeTTL, DefaultResetTTL},
	}
	for _, f := range defaults {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = f.def
		}
		if err := optionalDuration(f.name, f.value); err != nil {
			return err
		}
	}

	for _, cc := range []struct {
		name string
		cfg  *CodeConfig
	}{
		{"auth.email_verification.max_attempts", &c.Auth.EmailVerification},
		{"auth.password_reset.max_attempts", &c.Auth.PasswordReset},
	} {
		if cc.cfg.MaxAttempts < 0 {
			return fmt.Errorf("invalid %s %d: must not be negative", cc.name, cc.cfg.MaxAttempts)
		}
		if cc.cfg.MaxAttempts == 0 {
			cc.cfg.MaxAttempts = DefaultMaxAttempts
		}
	}
	return nil
}

func (c *Config) validatePagination() error {
	p := &c.Pagination
	if p.DefaultLimit < 0 || p.MaxLimit < 0 {
		return fmt.Errorf("invalid pagination limits (%d, %d): must not be negative", p.DefaultLimit, p.MaxLimit)
	}
	if p.DefaultLimit == 0 {
		p.DefaultLimit = DefaultPageLimit
	}
	if p.MaxLimit == 0 {
		p.MaxLimit = DefaultMaxPageLimit
	}
	if p.DefaultLimit > p.MaxLimit {
		return fmt.Errorf("invalid pagination.default_limit %d: must not exceed pagination.max_limit %d", p.DefaultLimit, p.MaxLimit)
	}
	return nil
}

func (c *Config) validateGraphQL() error {
	path := strings.TrimSpace(c.GraphQL.Path)
	if path == "" {
		path = DefaultGraphQLPath
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("invalid graphql.path %q: must start with '/'", c.GraphQL.Path)
	}
	c.GraphQL.Path = path
	return nil
}

func (c *Config) validateRedis() error {
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d: must not be negative", c.Redis.DB)
	}
	return nil
}

func (c *Config) validateMail() error {
	provider := strings.ToLower(strings.TrimSpace(c.Mail.Provider))
	if provider == "" {
		provider = DefaultMailProvider
	}
	c.Mail.Provider = provider
	c.Mail.FromAddress = strings.TrimSpace(c.Mail.FromAddress)

	switch provider {
	case "log":
	case "sendgrid":
		if strings.TrimSpace(c.Mail.SendGridAPIKey) == "" {
			return fmt.Errorf("mail.sendgrid_api_key is required when mail.provider is sendgrid")
		}
		if c.Mail.FromAddress == "" {
			return fmt.Errorf("mail.from_address is required when mail.provider is sendgrid")
		}
	default:
		return fmt.Errorf("invalid mail.provider %q: must be one of %q, %q", c.Mail.Provider, "log", "sendgrid")
	}
	return nil
}

func (c *Config) validateTracing() error {
	t := &c.Tracing
	if strings.TrimSpace(t.ServiceName) == "" {
		t.ServiceName = DefaultTracingService
	}
	if !t.Enabled {
		return nil
	}
	t.Endpoint = strings.TrimSpace(t.Endpoint)
	if t.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("invalid tracing.sample_ratio %v: must be between 0 and 1", t.SampleRatio)
	}
	return nil
}

func (c *Config) validateLog() error {
	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}
	return nil
}

// optionalDuration trims *value and, when it is set, checks that it is a
// positive Go duration. Whitespace-only means unset.
func optionalDuration(name string, value *string) error {
	v := strings.TrimSpace(*value)
	*value = v
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", name, v)
	}
	return nil
}

// Duration parses a validated duration field, returning def when it is unset.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// CountSecretClasses counts how many character classes (lowercase, uppercase,
// digit, symbol) are present in the given secret string.
func CountSecretClasses(secret string) int {
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	classes := 0
	for _, has := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if has {
			classes++
		}
	}
	return classes
}
