package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"publish-auth/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:           "postgres://localhost/test",
		JWTSecret:             "test-secret",
		JWTIssuer:             "publish-auth",
		AccessTokenTTL:        15 * time.Minute,
		RefreshTokenTTL:       time.Hour,
		RefreshReuseDetection: true,
		Argon2Time:            1,
		Argon2MemoryKiB:       1024,
		Argon2Threads:         1,
		LoginRateLimitMax:     10,
		LoginRateLimitWindow:  time.Minute,
		CleanupBatchSize:      100,
	}
}

func TestNewHandler_Routes(t *testing.T) {
	database, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer database.Close()

	handler, err := NewHandler(context.Background(), testConfig(), database, nil)
	require.NoError(t, err)

	mock.ExpectPing()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, apiPrefix+"/auth/signup", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, apiPrefix+"/users/user_info", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, apiPrefix+"/auth/refresh-token", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "publish_auth_http_request_duration_seconds")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWithRetry(t *testing.T) {
	database, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer database.Close()

	mock.ExpectPing().WillReturnError(errors.New("starting up"))
	mock.ExpectPing()

	require.NoError(t, pingWithRetry(context.Background(), database, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewHandler_BootstrapsAdmin(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	cfg := testConfig()
	cfg.AdminUsername = "admin"
	cfg.AdminEmail = "admin@example.com"
	cfg.AdminPassword = "password123"

	columns := []string{"id", "account_id", "username", "email", "password_hash", "created_at", "updated_at"}
	now := time.Now()
	mock.ExpectQuery(`WHERE username = \$1`).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("id-1", "acct-1", "admin", "admin@example.com", "digest", now, now))

	_, err = NewHandler(context.Background(), cfg, database, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewHandler_RejectsBadTTLs(t *testing.T) {
	database, _, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	cfg := testConfig()
	cfg.RefreshTokenTTL = cfg.AccessTokenTTL

	_, err = NewHandler(context.Background(), cfg, database, nil)
	assert.Error(t, err)
}
