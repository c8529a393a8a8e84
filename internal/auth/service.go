package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"publish-auth/internal/observability"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Service registers accounts, logs them in and rotates their session
// tokens. It keeps no per-request state.
type Service struct {
	store      CredentialStore
	hasher     PasswordHasher
	signer     *TokenSigner
	ledger     RefreshLedger
	logger     *observability.Logger
	accessTTL  time.Duration
	refreshTTL time.Duration

	// dummyHash is verified when the username is unknown so that both
	// failure paths cost one full hash verification.
	dummyHash string
}

func NewService(store CredentialStore, hasher PasswordHasher, signer *TokenSigner) (*Service, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if signer == nil {
		return nil, errors.New("token signer is required")
	}

	seed := make([]byte, 24)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate dummy password: %w", err)
	}
	dummyHash, err := hasher.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}

	return &Service{
		store:      store,
		hasher:     hasher,
		signer:     signer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		dummyHash:  dummyHash,
	}, nil
}

// WithSecurityConfig overrides token lifetimes. Non-positive values keep
// the current setting; the access TTL must stay below the refresh TTL.
func (s *Service) WithSecurityConfig(accessTTL, refreshTTL time.Duration) error {
	if accessTTL <= 0 {
		accessTTL = s.accessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = s.refreshTTL
	}
	if accessTTL >= refreshTTL {
		return fmt.Errorf("access token ttl %s must be shorter than refresh token ttl %s", accessTTL, refreshTTL)
	}

	s.accessTTL = accessTTL
	s.refreshTTL = refreshTTL
	return nil
}

// WithRefreshLedger turns on single-use refresh tokens with reuse detection.
func (s *Service) WithRefreshLedger(ledger RefreshLedger) {
	s.ledger = ledger
}

func (s *Service) WithLogger(logger *observability.Logger) {
	s.logger = logger
}

func (s *Service) Register(ctx context.Context, username, email, password string) (_ PublicAccount, err error) {
	defer func() { recordOutcome("register", err) }()

	username = normalizeUsername(username)
	email = normalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return PublicAccount{}, ErrInvalidInput
	}

	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return PublicAccount{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return PublicAccount{}, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.store.Create(ctx, NewAccount{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		var unique *UniqueViolationError
		if errors.As(err, &unique) {
			return PublicAccount{}, ErrAccountExists
		}
		return PublicAccount{}, err
	}

	s.logger.Info("account_registered", map[string]any{"account_id": account.AccountID})

	return account.Public(), nil
}

// ensureAvailable is a fast path only; the store's unique indexes are
// what actually guarantee uniqueness.
func (s *Service) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}

	return nil
}

func (s *Service) Login(ctx context.Context, username, password string) (_ LoginResult, err error) {
	defer func() { recordOutcome("login", err) }()

	username = normalizeUsername(username)

	account, err := s.store.FindByUsername(ctx, username)
	found := true
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			return LoginResult{}, err
		}
		found = false
	}

	digest := s.dummyHash
	if found {
		digest = account.PasswordHash
	}

	ok, err := s.hasher.Verify(password, digest)
	if err != nil {
		if !found {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("verify password for %s: %w", account.AccountID, err)
	}
	if !found || !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	pair, jti, err := s.issuePair(account.AccountID, account.Email)
	if err != nil {
		return LoginResult{}, err
	}

	if s.ledger != nil {
		if err := s.ledger.Record(ctx, account.AccountID, jti, pair.RefreshExpiresAt); err != nil {
			return LoginResult{}, err
		}
	}

	return LoginResult{Account: account.Public(), Tokens: pair}, nil
}

// Refresh exchanges a valid refresh token for a new pair. Expired, forged,
// malformed and reused tokens all fail with ErrInvalidRefreshToken.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ SessionPair, err error) {
	reused := false
	defer func() {
		if reused {
			observability.RecordAuthEvent("refresh", observability.OutcomeReuse)
			return
		}
		recordOutcome("refresh", err)
	}()

	claims, err := s.signer.Verify(RefreshToken, strings.TrimSpace(refreshToken))
	if err != nil {
		return SessionPair{}, ErrInvalidRefreshToken
	}

	pair, nextJTI, err := s.issuePair(claims.Subject, claims.Email)
	if err != nil {
		return SessionPair{}, err
	}

	if s.ledger == nil {
		return pair, nil
	}

	err = s.ledger.Rotate(ctx, claims.Subject, claims.ID, nextJTI, pair.RefreshExpiresAt)
	if errors.Is(err, ErrLineageMismatch) {
		s.logger.Warn("refresh_reuse_detected", map[string]any{"account_id": claims.Subject})
		reused = true
		if revokeErr := s.ledger.Revoke(ctx, claims.Subject); revokeErr != nil {
			return SessionPair{}, fmt.Errorf("revoke reused lineage: %w", revokeErr)
		}
		return SessionPair{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return SessionPair{}, err
	}

	return pair, nil
}

// Logout drops the lineage behind a refresh token when reuse detection is
// on. Without a ledger there is nothing server-side to forget.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if s.ledger == nil {
		return nil
	}

	claims, err := s.signer.Verify(RefreshToken, strings.TrimSpace(refreshToken))
	if err != nil {
		return nil
	}

	return s.ledger.Revoke(ctx, claims.Subject)
}

func (s *Service) VerifyAccess(accessToken string) (Claims, error) {
	return s.signer.Verify(AccessToken, accessToken)
}

// Profile loads the account an access token was issued to.
func (s *Service) Profile(ctx context.Context, claims Claims) (PublicAccount, error) {
	account, err := s.store.FindByEmail(ctx, normalizeEmail(claims.Email))
	if err != nil {
		return PublicAccount{}, err
	}
	if account.AccountID != claims.Subject {
		return PublicAccount{}, ErrAccountNotFound
	}

	return account.Public(), nil
}

// BootstrapAccount seeds an initial account. All three values empty is a
// no-op and an already existing account is left untouched.
func (s *Service) BootstrapAccount(ctx context.Context, username, email, password string) error {
	if username == "" && email == "" && password == "" {
		return nil
	}

	account, err := s.Register(ctx, username, email, password)
	if errors.Is(err, ErrAccountExists) {
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info("bootstrap_account_created", map[string]any{"account_id": account.AccountID})
	return nil
}

func (s *Service) issuePair(subject, email string) (SessionPair, string, error) {
	access, err := s.signer.Issue(AccessToken, subject, email, s.accessTTL)
	if err != nil {
		return SessionPair{}, "", err
	}
	refresh, err := s.signer.Issue(RefreshToken, subject, email, s.refreshTTL)
	if err != nil {
		return SessionPair{}, "", err
	}

	return SessionPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  access.Claims.ExpiresAtTime(),
		RefreshExpiresAt: refresh.Claims.ExpiresAtTime(),
	}, refresh.Claims.ID, nil
}

func recordOutcome(operation string, err error) {
	switch {
	case err == nil:
		observability.RecordAuthEvent(operation, observability.OutcomeSuccess)
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidRefreshToken),
		errors.Is(err, ErrInvalidInput):
		observability.RecordAuthEvent(operation, observability.OutcomeRejected)
	default:
		observability.RecordAuthEvent(operation, observability.OutcomeError)
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
