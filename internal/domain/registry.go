package domain

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// RegistryConfig carries the registration policies.
type RegistryConfig struct {
	// OpeningBalance is credited to every newly registered account.
	OpeningBalance decimal.Decimal

	// AccountType tags new accounts; defaults to "savings".
	AccountType string
}

// Registry handles user registration and account creation. It owns account
// number generation and the user's default account; it never mutates
// balances after creation, that's the Engine's job.
type Registry struct {
	users     UserRepository
	accounts  AccountRepository
	txManager TransactionManager
	cfg       RegistryConfig
}

// NewRegistry creates a new Registry.
func NewRegistry(users UserRepository, accounts AccountRepository, txManager TransactionManager, cfg RegistryConfig) *Registry {
	if cfg.AccountType == "" {
		cfg.AccountType = "savings"
	}
	return &Registry{
		users:     users,
		accounts:  accounts,
		txManager: txManager,
		cfg:       cfg,
	}
}

// Register creates a user and their default account with the configured
// opening balance, in one transaction scope. Returns the created account.
func (r *Registry) Register(ctx context.Context, username, password, fullName string) (*Account, error) {
	existing, err := r.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		FullName:     fullName,
		CreatedAt:    time.Now(),
	}

	var account *Account
	err = r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := r.users.Create(txCtx, user); err != nil {
			return err
		}
		account = NewAccount(user.ID, NewAccountNumber(), r.cfg.OpeningBalance, r.cfg.AccountType)
		return r.accounts.Create(txCtx, account)
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// Login verifies a username/password pair and returns the user.
// Fails with ErrInvalidCredentials without distinguishing which part was
// wrong.
func (r *Registry) Login(ctx context.Context, username, password string) (*User, error) {
	user, err := r.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ListAccounts returns all accounts owned by the user.
func (r *Registry) ListAccounts(ctx context.Context, userID uuid.UUID) ([]Account, error) {
	return r.accounts.ListByUser(ctx, userID)
}

// NewAccountNumber generates an external account number: "KZ" followed by
// 16 digits. Uniqueness is enforced by the store's unique constraint.
func NewAccountNumber() string {
	return fmt.Sprintf("KZ%016d", rand.Int63n(10_000_000_000_000_000))
}
