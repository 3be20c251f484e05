package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"":           Postgres,
		"postgres":   Postgres,
		"PostgreSQL": Postgres,
		"sqlite":     SQLite,
		"sqlite3":    SQLite,
	} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDialect("mysql")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	assert.Equal(t,
		"SELECT id FROM identities WHERE provider = $1 AND uid = $2",
		pg.Rebind("SELECT id FROM identities WHERE provider = ? AND uid = ?"),
	)

	lite := &DB{Dialect: SQLite}
	assert.Equal(t, "WHERE a = ?", lite.Rebind("WHERE a = ?"))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
}

func TestOpenSQLiteMigratesAndDetectsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	d, err := Open(ctx, SQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	// migration is idempotent
	require.NoError(t, d.Migrate(ctx))

	_, err = d.ExecContext(ctx, `INSERT INTO accounts (id, email, credential_hash, created_at, updated_at) VALUES ('a1', 'a@x.com', 'h', 0, 0)`)
	require.NoError(t, err)

	insert := `INSERT INTO identities (id, provider, uid, account_id, created_at, updated_at) VALUES (?, 'github', '42', 'a1', 0, 0)`
	_, err = d.ExecContext(ctx, insert, "i1")
	require.NoError(t, err)

	_, err = d.ExecContext(ctx, insert, "i2")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), SQLite, " ")
	assert.Error(t, err)
}
