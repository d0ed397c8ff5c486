package domain

import "errors"

var (
	// ErrAccountNotFound is returned when an account or account number
	// doesn't resolve to an existing account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds is returned when a withdrawal or transfer would
	// drive the source balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned when the requested amount is zero,
	// negative, or finer than the cent precision the ledger stores.
	ErrInvalidAmount = errors.New("invalid amount: must be positive with at most two decimal places")

	// ErrInvalidEntryKind is returned when an entry kind other than deposit
	// or withdrawal is requested.
	ErrInvalidEntryKind = errors.New("entry kind must be deposit or withdrawal")

	// ErrInvalidTransfer is returned for degenerate transfers, e.g. source
	// and destination are the same account while self-transfers are
	// disabled.
	ErrInvalidTransfer = errors.New("invalid transfer: source and destination must differ")

	// ErrConflict is returned when the store detects a concurrent
	// modification (serialization failure or deadlock). The failed attempt
	// has no side effects and the whole operation is safe to retry.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrUserExists is returned when registering a username that is taken.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials is returned when a login fails. The caller is
	// not told whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
