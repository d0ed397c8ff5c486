package domain_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"

	"bank-ledger/internal/domain"
)

type fakeUserRepo struct {
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	if _, ok := r.users[user.Username]; ok {
		return domain.ErrUserExists
	}
	r.users[user.Username] = user
	return nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, ok := r.users[username]
	if !ok {
		return nil, nil
	}
	return user, nil
}

type fakeAccountRepo struct {
	accounts []domain.Account
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	r.accounts = append(r.accounts, *account)
	return nil
}

func (r *fakeAccountRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range r.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestRegistry(users *fakeUserRepo, accounts *fakeAccountRepo, openingBalance string) *domain.Registry {
	return domain.NewRegistry(users, accounts, passthroughTx{}, domain.RegistryConfig{
		OpeningBalance: mustDecimal(openingBalance),
	})
}

func TestRegister(t *testing.T) {
	users := newFakeUserRepo()
	accounts := &fakeAccountRepo{}
	registry := newTestRegistry(users, accounts, "1000.00")

	account, err := registry.Register(context.Background(), "alice", "s3cret", "Alice Smith")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !account.Balance.Equal(mustDecimal("1000.00")) {
		t.Errorf("opening balance = %s, want 1000.00", account.Balance)
	}
	if account.Type != "savings" {
		t.Errorf("account type = %q, want savings", account.Type)
	}
	if len(accounts.accounts) != 1 {
		t.Fatalf("got %d accounts, want 1", len(accounts.accounts))
	}

	user := users.users["alice"]
	if user == nil {
		t.Fatal("user not persisted")
	}
	if account.UserID != user.ID {
		t.Error("account not linked to user")
	}
	if user.PasswordHash == "s3cret" || user.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	users := newFakeUserRepo()
	accounts := &fakeAccountRepo{}
	registry := newTestRegistry(users, accounts, "1000.00")

	if _, err := registry.Register(context.Background(), "alice", "s3cret", "Alice Smith"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := registry.Register(context.Background(), "alice", "other", "Other Alice")
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("err = %v, want ErrUserExists", err)
	}
	if len(accounts.accounts) != 1 {
		t.Errorf("duplicate registration created an account")
	}
}

func TestLogin(t *testing.T) {
	users := newFakeUserRepo()
	registry := newTestRegistry(users, &fakeAccountRepo{}, "0.00")

	if _, err := registry.Register(context.Background(), "alice", "s3cret", "Alice Smith"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, err := registry.Login(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("username = %q, want alice", user.Username)
	}

	if _, err := registry.Login(context.Background(), "alice", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := registry.Login(context.Background(), "bob", "s3cret"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("unknown user: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestNewAccountNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^KZ\d{16}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		number := domain.NewAccountNumber()
		if !pattern.MatchString(number) {
			t.Fatalf("malformed account number %q", number)
		}
		seen[number] = true
	}
	if len(seen) < 2 {
		t.Error("account numbers are not random")
	}
}
