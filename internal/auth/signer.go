package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("token signing secret is required")
)

// TokenClass separates short-lived access tokens from refresh tokens that
// share the same claim shape. It travels in the "typ" claim.
type TokenClass string

const (
	AccessToken  TokenClass = "access"
	RefreshToken TokenClass = "refresh"
)

// Claims is the payload of every token: subject is the public account id.
type Claims struct {
	jwt.RegisteredClaims
	Email string     `json:"email"`
	Type  TokenClass `json:"typ"`
}

func (c Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

func (c Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

type IssuedToken struct {
	Token  string
	Claims Claims
}

type SignerConfig struct {
	Secret string
	Issuer string
	// Leeway tolerates clock skew on expiry checks. Zero means none.
	Leeway time.Duration
}

// TokenSigner issues and verifies HS256 tokens with a secret fixed at
// construction. It holds no mutable state and is safe for concurrent use.
type TokenSigner struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

func NewTokenSigner(cfg SignerConfig) (*TokenSigner, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.Leeway < 0 {
		return nil, fmt.Errorf("token leeway must not be negative")
	}

	return &TokenSigner{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		now:    time.Now,
	}, nil
}

func (s *TokenSigner) Issue(class TokenClass, subject, email string, ttl time.Duration) (IssuedToken, error) {
	if subject == "" {
		return IssuedToken{}, fmt.Errorf("issue %s token: empty subject", class)
	}
	if ttl <= 0 {
		return IssuedToken{}, fmt.Errorf("issue %s token: ttl must be positive", class)
	}

	now := s.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Type:  class,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign %s token: %w", class, err)
	}

	return IssuedToken{Token: encoded, Claims: claims}, nil
}

// Verify accepts a token only if it is HS256-signed with our secret, names
// our issuer, is of the expected class and has not expired. Every failure
// collapses to ErrInvalidToken.
func (s *TokenSigner) Verify(class TokenClass, tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, ErrInvalidToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(s.leeway),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, options...)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Type != class || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	return claims, nil
}
