// Package config builds the process-wide configuration from the environment.
// It is read once at startup and passed explicitly to every constructor.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the service needs to start.
type Config struct {
	Port      string `mapstructure:"PORT"`
	AppEnv    string `mapstructure:"APP_ENV"`
	SentryDSN string `mapstructure:"SENTRY_DSN"`

	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DBConnMaxIdleTime time.Duration `mapstructure:"DB_CONN_MAX_IDLE_TIME"`
	RunMigrations     bool          `mapstructure:"RUN_MIGRATIONS_ON_STARTUP"`

	// JWTSecret signs and verifies every token. Never logged.
	JWTSecret             string        `mapstructure:"JWT_SECRET"`
	JWTIssuer             string        `mapstructure:"JWT_ISSUER"`
	AccessTokenTTL        time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL       time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	TokenLeeway           time.Duration `mapstructure:"TOKEN_LEEWAY"`
	RefreshReuseDetection bool          `mapstructure:"REFRESH_REUSE_DETECTION"`
	CookieSecure          bool          `mapstructure:"COOKIE_SECURE"`

	Argon2Time      uint32 `mapstructure:"ARGON2_TIME"`
	Argon2MemoryKiB uint32 `mapstructure:"ARGON2_MEMORY_KIB"`
	Argon2Threads   uint8  `mapstructure:"ARGON2_THREADS"`

	LoginRateLimitMax    int           `mapstructure:"LOGIN_RATE_LIMIT_MAX"`
	LoginRateLimitWindow time.Duration `mapstructure:"LOGIN_RATE_LIMIT_WINDOW"`

	CronSecret       string `mapstructure:"CRON_SECRET"`
	CleanupBatchSize int    `mapstructure:"AUTH_CLEANUP_BATCH_SIZE"`

	AdminUsername string `mapstructure:"ADMIN_USERNAME"`
	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
}

const (
	minAdminPasswordLength = 8
	maxAdminPasswordLength = 200
)

var defaults = map[string]any{
	"PORT":                      "8080",
	"APP_ENV":                   "development",
	"SENTRY_DSN":                "",
	"DATABASE_URL":              "",
	"DB_MAX_OPEN_CONNS":         10,
	"DB_MAX_IDLE_CONNS":         5,
	"DB_CONN_MAX_LIFETIME":      "30m",
	"DB_CONN_MAX_IDLE_TIME":     "10m",
	"RUN_MIGRATIONS_ON_STARTUP": false,
	"JWT_SECRET":                "",
	"JWT_ISSUER":                "publish-auth",
	"ACCESS_TOKEN_TTL":          "15m",
	"REFRESH_TOKEN_TTL":         "168h",
	"TOKEN_LEEWAY":              "0s",
	"REFRESH_REUSE_DETECTION":   true,
	"COOKIE_SECURE":             false,
	"ARGON2_TIME":               1,
	"ARGON2_MEMORY_KIB":         64 * 1024,
	"ARGON2_THREADS":            4,
	"LOGIN_RATE_LIMIT_MAX":      10,
	"LOGIN_RATE_LIMIT_WINDOW":   "60s",
	"CRON_SECRET":               "",
	"AUTH_CLEANUP_BATCH_SIZE":   500,
	"ADMIN_USERNAME":            "",
	"ADMIN_EMAIL":               "",
	"ADMIN_PASSWORD":            "",
}

// Options controls where Load looks for values.
type Options struct {
	// LoadDotEnv reads ./.env into the process environment first.
	// Variables already set in the environment win.
	LoadDotEnv bool
}

// Load reads the environment and validates the result.
func Load(options Options) (*Config, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.trim()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports the first configuration problem that would keep the
// service from running correctly.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("missing required env: DATABASE_URL")
	}
	if c.JWTSecret == "" {
		return errors.New("missing required env: JWT_SECRET")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("config: ACCESS_TOKEN_TTL must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return errors.New("config: REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL")
	}
	if c.TokenLeeway < 0 {
		return errors.New("config: TOKEN_LEEWAY must not be negative")
	}
	if c.Argon2Time == 0 || c.Argon2MemoryKiB == 0 || c.Argon2Threads == 0 {
		return errors.New("config: ARGON2_TIME, ARGON2_MEMORY_KIB and ARGON2_THREADS must be positive")
	}

	admin := []string{c.AdminUsername, c.AdminEmail, c.AdminPassword}
	set := 0
	for _, value := range admin {
		if value != "" {
			set++
		}
	}
	if set != 0 && set != len(admin) {
		return errors.New("config: ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}
	if set != 0 && (utf8.RuneCountInString(c.AdminPassword) < minAdminPasswordLength || len(c.AdminPassword) > maxAdminPasswordLength) {
		return errors.New("config: ADMIN_PASSWORD must be between 8 and 200 characters")
	}

	return nil
}

// Production reports whether APP_ENV names a production deployment.
func (c *Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func (c *Config) trim() {
	c.Port = strings.TrimSpace(c.Port)
	c.AppEnv = strings.TrimSpace(c.AppEnv)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	c.JWTIssuer = strings.TrimSpace(c.JWTIssuer)
	c.CronSecret = strings.TrimSpace(c.CronSecret)
	c.AdminUsername = strings.TrimSpace(c.AdminUsername)
	c.AdminEmail = strings.TrimSpace(c.AdminEmail)
}
