package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAccess(t *testing.T) {
	svc := newTestService(t, &memStore{}, nil)

	access, err := svc.signer.Issue(AccessToken, "acct-1", "a@x.com", time.Minute)
	require.NoError(t, err)
	refresh, err := svc.signer.Issue(RefreshToken, "acct-1", "a@x.com", time.Hour)
	require.NoError(t, err)

	var seen Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		seen = claims
		w.WriteHeader(http.StatusNoContent)
	})
	protected := RequireAccess(svc, next)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + access.Token, want: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer " + access.Token, want: http.StatusNoContent},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + access.Token, want: http.StatusUnauthorized},
		{name: "no token", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "refresh token", header: "Bearer " + refresh.Token, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/user_info", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	assert.Equal(t, "acct-1", seen.Subject)
}

func TestClaimsFromContextEmpty(t *testing.T) {
	_, ok := ClaimsFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
