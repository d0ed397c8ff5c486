package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStore defines the data access operations the Engine is built on.
// All balance reads and writes in the system go through this interface;
// no other component touches balances directly.
type LedgerStore interface {
	// GetBalance returns the current balance of an account.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)

	// LockBalance reads the balance while acquiring an exclusive lock on
	// the account row for the duration of the enclosing transaction scope.
	// Must be called within a transaction context.
	LockBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)

	// SetBalance writes a new balance unconditionally. Invariant checks are
	// the caller's responsibility.
	SetBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error

	// ResolveNumber maps an external account number to the account id.
	// Returns ErrAccountNotFound if the number is unknown.
	ResolveNumber(ctx context.Context, number string) (uuid.UUID, error)

	// AppendRecord durably appends one row to the transaction log.
	AppendRecord(ctx context.Context, rec *TransactionRecord) error

	// ListRecords returns up to limit records for an account, most recent
	// first.
	ListRecords(ctx context.Context, accountID uuid.UUID, limit int) ([]TransactionRecord, error)
}

// AccountRepository persists account rows. Used by the Registry at
// registration time; the Engine never creates accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Account, error)
}

// UserRepository persists users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error

	// GetByUsername returns nil, nil when no such user exists.
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// TransactionManager runs a function under a scoped unit of work: either
// all writes performed inside fn are committed together, or none are.
// This abstraction keeps the Engine decoupled from the database driver.
type TransactionManager interface {
	// WithTransaction executes fn within a transaction scope. If fn returns
	// an error the scope is rolled back, otherwise it is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher publishes domain events to external systems (e.g. RabbitMQ)
// after an operation has committed.
type EventPublisher interface {
	PublishEntryCompleted(ctx context.Context, rec *TransactionRecord) error
	PublishTransferCompleted(ctx context.Context, out, in *TransactionRecord) error
}
