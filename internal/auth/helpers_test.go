package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testArgon2Params = Argon2Params{Time: 1, MemoryKiB: 1024, Threads: 1}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memStore struct {
	mu       sync.Mutex
	accounts []Account
	// findErr and createErr, when set, are returned by every lookup or insert.
	findErr   error
	createErr error
}

func (m *memStore) FindByUsername(_ context.Context, username string) (Account, error) {
	return m.find(func(a Account) bool { return a.Username == username })
}

func (m *memStore) FindByEmail(_ context.Context, email string) (Account, error) {
	return m.find(func(a Account) bool { return a.Email == email })
}

func (m *memStore) find(match func(Account) bool) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return Account{}, m.findErr
	}
	for _, account := range m.accounts {
		if match(account) {
			return account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (m *memStore) Create(_ context.Context, input NewAccount) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return Account{}, m.createErr
	}
	for _, account := range m.accounts {
		if account.Username == input.Username {
			return Account{}, &UniqueViolationError{Field: "username"}
		}
		if account.Email == input.Email {
			return Account{}, &UniqueViolationError{Field: "email"}
		}
	}

	account := Account{
		ID:           uuid.NewString(),
		AccountID:    uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
	}
	m.accounts = append(m.accounts, account)
	return account, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

type memLedger struct {
	mu      sync.Mutex
	current map[string]string
	revoked []string
}

func newMemLedger() *memLedger {
	return &memLedger{current: make(map[string]string)}
}

func (l *memLedger) Record(_ context.Context, subject, jti string, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current[subject] = jti
	return nil
}

func (l *memLedger) Rotate(_ context.Context, subject, currentJTI, nextJTI string, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current[subject] != currentJTI {
		return ErrLineageMismatch
	}
	l.current[subject] = nextJTI
	return nil
}

func (l *memLedger) Revoke(_ context.Context, subject string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.current, subject)
	l.revoked = append(l.revoked, subject)
	return nil
}

func (l *memLedger) has(subject string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.current[subject]
	return ok
}

func newTestSigner(t *testing.T, secret string, clock *fakeClock) *TokenSigner {
	t.Helper()

	signer, err := NewTokenSigner(SignerConfig{Secret: secret, Issuer: "publish-auth"})
	require.NoError(t, err)
	if clock != nil {
		signer.now = clock.Now
	}
	return signer
}

func newTestService(t *testing.T, store CredentialStore, clock *fakeClock) *Service {
	t.Helper()

	svc, err := NewService(store, NewArgon2idHasher(testArgon2Params), newTestSigner(t, "test-secret", clock))
	require.NoError(t, err)
	return svc
}
