package auth

import (
	"net/http"
	"time"
)

const RefreshCookieName = "refreshToken"

// CookiePolicy describes where the boundary keeps the refresh token. The
// cookie never outlives the token it carries.
type CookiePolicy struct {
	Name   string
	Path   string
	Secure bool
}

func NewCookiePolicy(secure bool) CookiePolicy {
	return CookiePolicy{Name: RefreshCookieName, Path: "/", Secure: secure}
}

// RefreshCookie carries token until expiresAt, the token's own exp claim.
func (p CookiePolicy) RefreshCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     p.Name,
		Value:    token,
		Path:     p.Path,
		Expires:  expiresAt.UTC(),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (p CookiePolicy) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     p.Name,
		Value:    "",
		Path:     p.Path,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (p CookiePolicy) tokenFrom(r *http.Request) string {
	cookie, err := r.Cookie(p.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
