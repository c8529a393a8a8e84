package auth

import "time"

// Account is the stored record. ID and PasswordHash never leave the
// package boundary; use Public for anything returned to a caller.
type Account struct {
	ID           string
	AccountID    string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicAccount is the only account shape handed to callers.
type PublicAccount struct {
	AccountID string `json:"acctId"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}

func (a Account) Public() PublicAccount {
	return PublicAccount{
		AccountID: a.AccountID,
		Username:  a.Username,
		Email:     a.Email,
	}
}

// NewAccount is what the engine asks a CredentialStore to insert.
type NewAccount struct {
	Username     string
	Email        string
	PasswordHash string
}

// SessionPair is a freshly issued access/refresh token pair.
type SessionPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

type LoginResult struct {
	Account PublicAccount
	Tokens  SessionPair
}
