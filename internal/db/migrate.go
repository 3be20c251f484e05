package db

import (
	"context"
	"fmt"
)

const accountsMigration = `
CREATE TABLE IF NOT EXISTS accounts (
    id text PRIMARY KEY,
    email text NOT NULL,
    display_name text NOT NULL DEFAULT '',
    avatar_url text NOT NULL DEFAULT '',
    confirmed_at bigint,
    confirmation_nonce text,
    credential_hash text NOT NULL,
    created_at bigint NOT NULL,
    updated_at bigint NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_lower_unique
ON accounts (LOWER(email));

CREATE TABLE IF NOT EXISTS identities (
    id text PRIMARY KEY,
    provider text NOT NULL,
    uid text NOT NULL,
    account_id text NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    created_at bigint NOT NULL,
    updated_at bigint NOT NULL,
    CONSTRAINT identities_provider_uid_unique
        UNIQUE (provider, uid)
);

CREATE INDEX IF NOT EXISTS identities_account_id_idx
ON identities (account_id);
`

// Migrate applies the account/identity schema. It is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if d.Dialect != Postgres && d.Dialect != SQLite {
		return fmt.Errorf("db: no migration for dialect %q", d.Dialect)
	}
	_, err := d.ExecContext(ctx, accountsMigration)
	return err
}
