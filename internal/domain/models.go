package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents a bank account in the system.
// Balance is a fixed-point decimal and must never go negative; it is
// mutated only by the Engine inside a transaction scope.
type Account struct {
	ID        uuid.UUID       // Unique identifier of the account
	UserID    uuid.UUID       // Owning user
	Number    string          // External account number, unique (e.g. "KZ1234567890123456")
	Balance   decimal.Decimal // Current account balance
	Type      string          // Account type tag (e.g. "savings")
	CreatedAt time.Time       // Timestamp when the account was created
}

// EntryKind classifies a ledger entry. The amount on a record is always
// unsigned; the kind implies the sign of the balance change.
type EntryKind string

const (
	EntryDeposit     EntryKind = "deposit"
	EntryWithdrawal  EntryKind = "withdrawal"
	EntryTransferOut EntryKind = "transfer_out"
	EntryTransferIn  EntryKind = "transfer_in"
)

// TransactionRecord is one row of the append-only transaction log.
// Records are created only as a byproduct of a committed balance mutation
// and are never updated or deleted.
type TransactionRecord struct {
	ID          uuid.UUID       // Unique identifier of the record
	AccountID   uuid.UUID       // Account the entry was applied to
	Kind        EntryKind       // deposit, withdrawal, transfer_out or transfer_in
	Amount      decimal.Decimal // Unsigned amount; Kind implies the sign
	Description string          // Optional free-form description
	CreatedAt   time.Time       // Timestamp when the record was committed
}

// User owns one or more accounts. Only the password hash is ever stored.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	FullName     string
	CreatedAt    time.Time
}

// NewAccount creates a new Account with the given owner, number and
// opening balance.
func NewAccount(userID uuid.UUID, number string, balance decimal.Decimal, accountType string) *Account {
	return &Account{
		ID:        uuid.New(),
		UserID:    userID,
		Number:    number,
		Balance:   balance,
		Type:      accountType,
		CreatedAt: time.Now(),
	}
}

// NewTransactionRecord creates a log record for a committed entry.
func NewTransactionRecord(accountID uuid.UUID, kind EntryKind, amount decimal.Decimal, description string) *TransactionRecord {
	return &TransactionRecord{
		ID:          uuid.New(),
		AccountID:   accountID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now(),
	}
}
