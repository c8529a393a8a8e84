package auth

import (
	"context"
	"net/http"
	"strings"
)

type claimsKey struct{}

// RequireAccess admits requests carrying a valid Bearer access token and
// makes its claims available through ClaimsFromContext.
func RequireAccess(service *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		scheme, tokenStr, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenStr) == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := service.VerifyAccess(strings.TrimSpace(tokenStr))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok
}
