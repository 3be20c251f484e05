// Package storetest opens throwaway SQLite stores for tests.
package storetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"identity-service/internal/auth/store"
	"identity-service/internal/db"
)

// Open creates a migrated SQLite database in a temp dir.
func Open(t testing.TB) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "identity.db")
	d, err := db.Open(context.Background(), db.SQLite, path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	return store.New(d)
}

// Count returns the number of rows in table.
func Count(t testing.TB, s *store.Store, table string) int {
	t.Helper()

	var n int
	if err := s.DB().QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// Snapshot captures row counts of both tables for before/after comparisons.
type Snapshot struct {
	Accounts   int
	Identities int
}

func Take(t testing.TB, s *store.Store) Snapshot {
	t.Helper()
	return Snapshot{
		Accounts:   Count(t, s, "accounts"),
		Identities: Count(t, s, "identities"),
	}
}

// AccountRow is one raw accounts row.
type AccountRow struct {
	ID                string
	Email             string
	DisplayName       string
	AvatarURL         string
	ConfirmedAt       sql.NullInt64
	ConfirmationNonce sql.NullString
	CredentialHash    string
	CreatedAt         int64
	UpdatedAt         int64
}

// IdentityRow is one raw identities row.
type IdentityRow struct {
	ID        string
	Provider  string
	UID       string
	AccountID string
	CreatedAt int64
	UpdatedAt int64
}

// Rows is the full content of both tables, ordered by id. Comparing two
// dumps catches in-place updates that row counts miss.
type Rows struct {
	Accounts   []AccountRow
	Identities []IdentityRow
}

func Dump(t testing.TB, s *store.Store) Rows {
	t.Helper()
	ctx := context.Background()

	var out Rows

	rows, err := s.DB().QueryContext(ctx, `
		SELECT id, email, display_name, avatar_url, confirmed_at, confirmation_nonce,
		       credential_hash, created_at, updated_at
		FROM accounts
		ORDER BY id`)
	if err != nil {
		t.Fatalf("dump accounts: %v", err)
	}
	for rows.Next() {
		var r AccountRow
		if err := rows.Scan(&r.ID, &r.Email, &r.DisplayName, &r.AvatarURL, &r.ConfirmedAt,
			&r.ConfirmationNonce, &r.CredentialHash, &r.CreatedAt, &r.UpdatedAt); err != nil {
			t.Fatalf("scan account: %v", err)
		}
		out.Accounts = append(out.Accounts, r)
	}
	_ = rows.Close()

	rows, err = s.DB().QueryContext(ctx, `
		SELECT id, provider, uid, account_id, created_at, updated_at
		FROM identities
		ORDER BY id`)
	if err != nil {
		t.Fatalf("dump identities: %v", err)
	}
	for rows.Next() {
		var r IdentityRow
		if err := rows.Scan(&r.ID, &r.Provider, &r.UID, &r.AccountID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			t.Fatalf("scan identity: %v", err)
		}
		out.Identities = append(out.Identities, r)
	}
	_ = rows.Close()

	return out
}
