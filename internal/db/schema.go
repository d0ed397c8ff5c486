package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the full database layout, applied idempotently at startup.
// The balance check enforces non-negativity at the storage layer as a last
// line of defense behind the engine's own validation.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	username VARCHAR(50) UNIQUE NOT NULL,
	password_hash VARCHAR(255) NOT NULL,
	full_name VARCHAR(100) NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS accounts (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	account_number VARCHAR(20) UNIQUE NOT NULL,
	balance NUMERIC(15, 2) NOT NULL DEFAULT 0.00 CHECK (balance >= 0),
	account_type VARCHAR(20) NOT NULL DEFAULT 'savings',
	created_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
	id UUID PRIMARY KEY,
	account_id UUID NOT NULL REFERENCES accounts(id),
	kind VARCHAR(20) NOT NULL,
	amount NUMERIC(15, 2) NOT NULL CHECK (amount > 0),
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account_created
	ON transactions(account_id, created_at DESC);
`

// InitSchema creates the tables and indexes if they don't exist yet.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
