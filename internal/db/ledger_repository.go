package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
)

// LedgerRepository implements domain.LedgerStore using PostgreSQL.
// Balances live in the accounts table; the transaction log is the
// append-only transactions table. NUMERIC values cross the wire as strings
// to preserve decimal precision.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{
		pool: pool,
	}
}

// GetBalance returns the current balance of an account.
func (r *LedgerRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT balance::text
		FROM accounts
		WHERE id = $1
	`
	return r.scanBalance(queryTarget(ctx, r.pool).QueryRow(ctx, query, accountID))
}

// LockBalance reads the balance under SELECT ... FOR UPDATE, holding a row
// lock until the enclosing transaction commits or rolls back. Callers must
// be inside a transaction scope.
func (r *LedgerRepository) LockBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT balance::text
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`
	return r.scanBalance(queryTarget(ctx, r.pool).QueryRow(ctx, query, accountID))
}

func (r *LedgerRepository) scanBalance(row pgx.Row) (decimal.Decimal, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, domain.ErrAccountNotFound
		}
		return decimal.Decimal{}, fmt.Errorf("failed to read balance: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse balance %q: %w", raw, err)
	}
	return balance, nil
}

// SetBalance writes a new balance unconditionally.
func (r *LedgerRepository) SetBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = $2
		WHERE id = $1
	`

	result, err := queryTarget(ctx, r.pool).Exec(ctx, query, accountID, balance.StringFixed(2))
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ResolveNumber maps an external account number to the account id.
func (r *LedgerRepository) ResolveNumber(ctx context.Context, number string) (uuid.UUID, error) {
	query := `
		SELECT id
		FROM accounts
		WHERE account_number = $1
	`

	var id uuid.UUID
	err := queryTarget(ctx, r.pool).QueryRow(ctx, query, number).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, domain.ErrAccountNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to resolve account number: %w", err)
	}
	return id, nil
}

// AppendRecord appends one row to the transaction log. The log is
// append-only; there is no update or delete counterpart.
func (r *LedgerRepository) AppendRecord(ctx context.Context, rec *domain.TransactionRecord) error {
	query := `
		INSERT INTO transactions (id, account_id, kind, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := queryTarget(ctx, r.pool).Exec(ctx, query,
		rec.ID,
		rec.AccountID,
		string(rec.Kind),
		rec.Amount.StringFixed(2),
		rec.Description,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction record: %w", err)
	}
	return nil
}

// ListRecords returns up to limit records for the account, most recent
// first. Record ids break ties between records committed in the same
// instant.
func (r *LedgerRepository) ListRecords(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	query := `
		SELECT id, account_id, kind, amount::text, description, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := queryTarget(ctx, r.pool).Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.TransactionRecord, 0, limit)
	for rows.Next() {
		var (
			rec  domain.TransactionRecord
			kind string
			raw  string
		)
		if err := rows.Scan(&rec.ID, &rec.AccountID, &kind, &raw, &rec.Description, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction record: %w", err)
		}
		rec.Kind = domain.EntryKind(kind)
		if rec.Amount, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", raw, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transaction records: %w", err)
	}
	return records, nil
}
