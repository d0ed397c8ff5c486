package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
)

// AccountRepository implements domain.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{
		pool: pool,
	}
}

// Create persists a new account row.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, account_number, balance, account_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := queryTarget(ctx, r.pool).Exec(ctx, query,
		account.ID,
		account.UserID,
		account.Number,
		account.Balance.StringFixed(2),
		account.Type,
		account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account number collision for %s: %w", account.Number, err)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// ListByUser returns all accounts owned by the user, oldest first.
func (r *AccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	query := `
		SELECT id, user_id, account_number, balance::text, account_type, created_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := queryTarget(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var (
			account domain.Account
			raw     string
		)
		if err := rows.Scan(&account.ID, &account.UserID, &account.Number, &raw, &account.Type, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if account.Balance, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("failed to parse balance %q: %w", raw, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	return accounts, nil
}
