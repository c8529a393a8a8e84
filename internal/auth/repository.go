package auth

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the PostgreSQL CredentialStore and RefreshLedger.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const selectAccount = `
		SELECT id, account_id, username, email, password_hash, created_at, updated_at
		FROM accounts
	`

func (r *Repository) FindByUsername(ctx context.Context, username string) (Account, error) {
	row := r.db.QueryRowContext(ctx, selectAccount+`WHERE username = $1`, username)
	return scanAccount(row, "query account by username")
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (Account, error) {
	row := r.db.QueryRowContext(ctx, selectAccount+`WHERE email = $1`, email)
	return scanAccount(row, "query account by email")
}

func scanAccount(row *sql.Row, op string) (Account, error) {
	var account Account
	err := row.Scan(
		&account.ID,
		&account.AccountID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, storeError(op, err)
	}

	return account, nil
}

func (r *Repository) Create(ctx context.Context, input NewAccount) (Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Account{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := r.now().UTC()
	account := Account{
		ID:           id.String(),
		AccountID:    uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, account_id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, account.ID, account.AccountID, account.Username, account.Email, account.PasswordHash, now)
	if err != nil {
		return Account{}, storeError("insert account", err)
	}

	return account, nil
}

func (r *Repository) Record(ctx context.Context, subject, jti string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_lineages (account_id, current_jti, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id)
		DO UPDATE SET
			current_jti = EXCLUDED.current_jti,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, subject, jti, expiresAt.UTC(), r.now().UTC())
	if err != nil {
		return storeError("upsert refresh lineage", err)
	}

	return nil
}

// Rotate is a single conditional UPDATE, so two refreshes racing on the
// same token cannot both win.
func (r *Repository) Rotate(ctx context.Context, subject, currentJTI, nextJTI string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_lineages
		SET current_jti = $3, expires_at = $4, updated_at = $5
		WHERE account_id = $1 AND current_jti = $2
	`, subject, currentJTI, nextJTI, expiresAt.UTC(), r.now().UTC())
	if err != nil {
		return storeError("rotate refresh lineage", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storeError("rotate refresh lineage rows affected", err)
	}
	if affected == 0 {
		return ErrLineageMismatch
	}

	return nil
}

func (r *Repository) Revoke(ctx context.Context, subject string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_lineages WHERE account_id = $1`, subject); err != nil {
		return storeError("revoke refresh lineage", err)
	}
	return nil
}

// DeleteExpiredLineages removes up to batchSize lineages whose refresh
// token has expired.
func (r *Repository) DeleteExpiredLineages(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT account_id
			FROM refresh_lineages
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM refresh_lineages t
		USING stale
		WHERE t.account_id = stale.account_id
	`, r.now().UTC(), batchSize)
	if err != nil {
		return 0, storeError("delete expired refresh lineages", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("expired refresh lineages rows affected", err)
	}

	return affected, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storeError("ping database", err)
	}
	return nil
}

// storeError maps driver errors onto the engine's error kinds.
func storeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return &UniqueViolationError{Field: constraintField(pgErr.ConstraintName)}
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code):
			return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func constraintField(constraint string) string {
	switch {
	case strings.Contains(constraint, "username"):
		return "username"
	case strings.Contains(constraint, "email"):
		return "email"
	default:
		return ""
	}
}

var (
	_ CredentialStore = (*Repository)(nil)
	_ RefreshLedger   = (*Repository)(nil)
)
