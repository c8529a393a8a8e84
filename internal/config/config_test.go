package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/blog")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "publish-auth", cfg.JWTIssuer)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, time.Duration(0), cfg.TokenLeeway)
	assert.True(t, cfg.RefreshReuseDetection)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, uint32(64*1024), cfg.Argon2MemoryKiB)
	assert.Equal(t, uint8(4), cfg.Argon2Threads)
	assert.Equal(t, 60*time.Second, cfg.LoginRateLimitWindow)
	assert.Equal(t, 500, cfg.CleanupBatchSize)
	assert.False(t, cfg.Production())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("REFRESH_TOKEN_TTL", "24h")
	t.Setenv("TOKEN_LEEWAY", "2s")
	t.Setenv("REFRESH_REUSE_DETECTION", "false")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "  padded-secret  ")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 2*time.Second, cfg.TokenLeeway)
	assert.False(t, cfg.RefreshReuseDetection)
	assert.True(t, cfg.CookieSecure)
	assert.True(t, cfg.Production())
	assert.Equal(t, "padded-secret", cfg.JWTSecret)
}

func TestLoad_KeepsAdminPasswordVerbatim(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
	t.Setenv("ADMIN_PASSWORD", "  password123  ")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "  password123  ", cfg.AdminPassword)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/blog")
	t.Setenv("JWT_SECRET", "")

	_, err := Load(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "s")

	_, err := Load(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL:     "postgres://x",
			JWTSecret:       "s",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: time.Hour,
			Argon2Time:      1,
			Argon2MemoryKiB: 1024,
			Argon2Threads:   1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "refresh not longer than access",
			mutate:  func(c *Config) { c.RefreshTokenTTL = c.AccessTokenTTL },
			wantErr: "REFRESH_TOKEN_TTL",
		},
		{
			name:    "zero access ttl",
			mutate:  func(c *Config) { c.AccessTokenTTL = 0 },
			wantErr: "ACCESS_TOKEN_TTL",
		},
		{
			name:    "negative leeway",
			mutate:  func(c *Config) { c.TokenLeeway = -time.Second },
			wantErr: "TOKEN_LEEWAY",
		},
		{
			name:    "zero argon2 threads",
			mutate:  func(c *Config) { c.Argon2Threads = 0 },
			wantErr: "ARGON2",
		},
		{
			name:    "partial admin bootstrap",
			mutate:  func(c *Config) { c.AdminUsername = "admin" },
			wantErr: "required together",
		},
		{
			name: "short admin password",
			mutate: func(c *Config) {
				c.AdminUsername = "admin"
				c.AdminEmail = "admin@example.com"
				c.AdminPassword = "x"
			},
			wantErr: "ADMIN_PASSWORD must be between",
		},
		{
			name: "full admin bootstrap",
			mutate: func(c *Config) {
				c.AdminUsername = "admin"
				c.AdminEmail = "admin@example.com"
				c.AdminPassword = "password123"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
