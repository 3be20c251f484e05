package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"identity-service/internal/auth"
	"identity-service/internal/db"

	"github.com/google/uuid"
)

// Store persists accounts and identities. A Store is either bound to the
// connection pool or, inside WithTx, to a single transaction.
type Store struct {
	db  *db.DB
	q   db.Queryer
	now func() time.Time
}

func New(d *db.DB) *Store {
	return &Store{
		db:  d,
		q:   d.DB,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying database handle.
func (s *Store) DB() *db.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// WithClock overrides the timestamp source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	c := *s
	c.now = now
	return &c
}

// WithTx runs fn inside one transaction. fn receives a Store bound to the
// transaction; any error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}

	txStore := &Store{db: s.db, q: tx, now: s.now}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// ----------------------------
// Identities
// ----------------------------

const identityColumns = `id, provider, uid, account_id, created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (*auth.Identity, error) {
	var (
		i                    auth.Identity
		createdAt, updatedAt int64
	)
	if err := row.Scan(&i.ID, &i.Provider, &i.UID, &i.AccountID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	i.CreatedAt = fromMillis(createdAt)
	i.UpdatedAt = fromMillis(updatedAt)
	return &i, nil
}

// FindIdentity looks up the identity for (provider, uid).
func (s *Store) FindIdentity(ctx context.Context, provider, uid string) (*auth.Identity, error) {
	row := s.q.QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+identityColumns+`
		FROM identities
		WHERE provider = ?
		  AND uid = ?
	`), provider, uid)

	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find identity: %w", err)
	}
	return identity, nil
}

// CreateIdentity inserts a new identity. A concurrent insert of the same
// (provider, uid) surfaces as auth.ErrDuplicateIdentity via the unique index.
func (s *Store) CreateIdentity(ctx context.Context, provider, uid, accountID string) (*auth.Identity, error) {
	now := s.now()
	identity := &auth.Identity{
		ID:        uuid.NewString(),
		Provider:  provider,
		UID:       uid,
		AccountID: accountID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.q.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO identities (id, provider, uid, account_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`),
		identity.ID,
		identity.Provider,
		identity.UID,
		identity.AccountID,
		toMillis(now),
		toMillis(now),
	)
	if db.IsUniqueViolation(err) {
		return nil, auth.ErrDuplicateIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("store: create identity: %w", err)
	}
	return identity, nil
}

// ReassignIdentity moves an identity to a different owning account.
func (s *Store) ReassignIdentity(ctx context.Context, identity *auth.Identity, accountID string) error {
	now := s.now()
	res, err := s.q.ExecContext(ctx, s.db.Rebind(`
		UPDATE identities
		SET account_id = ?, updated_at = ?
		WHERE id = ?
	`), accountID, toMillis(now), identity.ID)
	if err != nil {
		return fmt.Errorf("store: reassign identity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}

	identity.AccountID = accountID
	identity.UpdatedAt = now
	return nil
}

// ListIdentities returns the identities owned by an account, ordered by provider.
func (s *Store) ListIdentities(ctx context.Context, accountID string) ([]auth.Identity, error) {
	rows, err := s.q.QueryContext(ctx, s.db.Rebind(`
		SELECT `+identityColumns+`
		FROM identities
		WHERE account_id = ?
		ORDER BY provider, uid
	`), accountID)
	if err != nil {
		return nil, fmt.Errorf("store: list identities: %w", err)
	}
	defer rows.Close()

	var out []auth.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan identity: %w", err)
		}
		out = append(out, *identity)
	}
	return out, rows.Err()
}

// HasProviderIdentity reports whether the account already holds any identity
// for provider.
func (s *Store) HasProviderIdentity(ctx context.Context, accountID, provider string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, s.db.Rebind(`
		SELECT COUNT(*)
		FROM identities
		WHERE account_id = ?
		  AND provider = ?
	`), accountID, provider).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: count identities: %w", err)
	}
	return n > 0, nil
}

// ----------------------------
// Accounts
// ----------------------------

const accountColumns = `id, email, display_name, avatar_url, confirmed_at, credential_hash, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*auth.Account, error) {
	var (
		a                    auth.Account
		confirmedAt          sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.DisplayName,
		&a.AvatarURL,
		&confirmedAt,
		&a.CredentialHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		t := fromMillis(confirmedAt.Int64)
		a.ConfirmedAt = &t
	}
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

// GetAccount loads an account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*auth.Account, error) {
	row := s.q.QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = ?
	`), id)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get account: %w", err)
	}
	return account, nil
}

// FindAccountByEmail matches the email case-insensitively. Stored emails are
// already normalized, so the lookup compares against the normalized input.
func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := s.q.QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = ?
	`), auth.NormalizeEmail(email))

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find account by email: %w", err)
	}
	return account, nil
}

// CreateAccount inserts a new account, assigning id and timestamps.
func (s *Store) CreateAccount(ctx context.Context, a *auth.Account) error {
	now := s.now()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Email = auth.NormalizeEmail(a.Email)
	a.CreatedAt = now
	a.UpdatedAt = now

	var confirmedAt sql.NullInt64
	if a.ConfirmedAt != nil {
		confirmedAt = sql.NullInt64{Int64: toMillis(*a.ConfirmedAt), Valid: true}
	}

	_, err := s.q.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO accounts (id, email, display_name, avatar_url, confirmed_at, credential_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		a.ID,
		a.Email,
		a.DisplayName,
		a.AvatarURL,
		confirmedAt,
		a.CredentialHash,
		toMillis(now),
		toMillis(now),
	)
	if db.IsUniqueViolation(err) {
		return auth.ErrDuplicateAccount
	}
	if err != nil {
		return fmt.Errorf("store: create account: %w", err)
	}
	return nil
}

// UpdateProfile persists the mutable profile fields of an account.
func (s *Store) UpdateProfile(ctx context.Context, a *auth.Account) error {
	now := s.now()
	_, err := s.q.ExecContext(ctx, s.db.Rebind(`
		UPDATE accounts
		SET display_name = ?, avatar_url = ?, updated_at = ?
		WHERE id = ?
	`), a.DisplayName, a.AvatarURL, toMillis(now), a.ID)
	if err != nil {
		return fmt.Errorf("store: update profile: %w", err)
	}
	a.UpdatedAt = now
	return nil
}

// MarkConfirmed sets confirmed_at only if the account is unconfirmed and
// reports whether this call performed the transition. Any pending
// confirmation token is invalidated.
func (s *Store) MarkConfirmed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, s.db.Rebind(`
		UPDATE accounts
		SET confirmed_at = ?, confirmation_nonce = NULL, updated_at = ?
		WHERE id = ?
		  AND confirmed_at IS NULL
	`), toMillis(at), toMillis(s.now()), id)
	if err != nil {
		return false, fmt.Errorf("store: mark confirmed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: mark confirmed: %w", err)
	}
	return n == 1, nil
}

// ResetConfirmation clears confirmed_at and starts a new confirmation round.
// The returned nonce is the only one ConsumeConfirmation accepts; earlier
// rounds are invalidated.
func (s *Store) ResetConfirmation(ctx context.Context, id string) (string, error) {
	nonce := uuid.NewString()
	res, err := s.q.ExecContext(ctx, s.db.Rebind(`
		UPDATE accounts
		SET confirmed_at = NULL, confirmation_nonce = ?, updated_at = ?
		WHERE id = ?
	`), nonce, toMillis(s.now()), id)
	if err != nil {
		return "", fmt.Errorf("store: reset confirmation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", auth.ErrNotFound
	}
	return nonce, nil
}

// ConsumeConfirmation confirms the account if nonce belongs to its current
// confirmation round, and ends that round. It reports false for a used,
// superseded or unknown nonce.
func (s *Store) ConsumeConfirmation(ctx context.Context, id, nonce string, at time.Time) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	res, err := s.q.ExecContext(ctx, s.db.Rebind(`
		UPDATE accounts
		SET confirmed_at = ?, confirmation_nonce = NULL, updated_at = ?
		WHERE id = ?
		  AND confirmation_nonce = ?
	`), toMillis(at), toMillis(s.now()), id, nonce)
	if err != nil {
		return false, fmt.Errorf("store: consume confirmation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: consume confirmation: %w", err)
	}
	return n == 1, nil
}

// Now returns the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}
