package db_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"bank-ledger/internal/db"
	"bank-ledger/internal/domain"
)

// TestLedgerIntegration exercises the full stack against a real PostgreSQL:
// schema bootstrap, registration, deposits, withdrawals, transfers, and the
// concurrency properties the engine guarantees.
func TestLedgerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, dbURL := startPostgresContainer(t, ctx)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}()

	pool, err := db.NewPool(ctx, dbURL, 10, 2)
	if err != nil {
		t.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	if err := db.InitSchema(ctx, pool.Pool); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	ledgerRepo := db.NewLedgerRepository(pool.Pool)
	accountRepo := db.NewAccountRepository(pool.Pool)
	userRepo := db.NewUserRepository(pool.Pool)
	txManager := db.NewTransactionManager(pool.Pool)

	engine := domain.NewEngine(ledgerRepo, txManager, nil, domain.EngineConfig{})
	registry := domain.NewRegistry(userRepo, accountRepo, txManager, domain.RegistryConfig{
		OpeningBalance: decimal.RequireFromString("1000.00"),
	})

	accountA, err := registry.Register(ctx, "alice", "s3cret", "Alice Smith")
	if err != nil {
		t.Fatalf("failed to register alice: %v", err)
	}
	accountB, err := registry.Register(ctx, "bob", "s3cret", "Bob Jones")
	if err != nil {
		t.Fatalf("failed to register bob: %v", err)
	}

	t.Run("opening balance", func(t *testing.T) {
		assertStoredBalance(t, ctx, engine, accountA, "1000.00")
	})

	t.Run("duplicate username", func(t *testing.T) {
		if _, err := registry.Register(ctx, "alice", "other", "Other Alice"); !errors.Is(err, domain.ErrUserExists) {
			t.Errorf("err = %v, want ErrUserExists", err)
		}
	})

	t.Run("deposit", func(t *testing.T) {
		newBalance, err := engine.ApplyEntry(ctx, accountA.ID, domain.EntryDeposit, decimal.RequireFromString("250.50"), "salary")
		if err != nil {
			t.Fatalf("ApplyEntry: %v", err)
		}
		if newBalance.StringFixed(2) != "1250.50" {
			t.Errorf("new balance = %s, want 1250.50", newBalance)
		}

		records, err := engine.ListTransactions(ctx, accountA.ID, 10)
		if err != nil {
			t.Fatalf("ListTransactions: %v", err)
		}
		if len(records) != 1 || records[0].Kind != domain.EntryDeposit || records[0].Amount.StringFixed(2) != "250.50" {
			t.Errorf("unexpected records %+v", records)
		}
	})

	t.Run("withdrawal exceeding balance", func(t *testing.T) {
		_, err := engine.ApplyEntry(ctx, accountA.ID, domain.EntryWithdrawal, decimal.RequireFromString("5000.00"), "")
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("err = %v, want ErrInsufficientFunds", err)
		}
		assertStoredBalance(t, ctx, engine, accountA, "1250.50")
	})

	t.Run("transfer", func(t *testing.T) {
		err := engine.ApplyTransfer(ctx, accountA.Number, accountB.Number, decimal.RequireFromString("300.00"), "rent")
		if err != nil {
			t.Fatalf("ApplyTransfer: %v", err)
		}
		assertStoredBalance(t, ctx, engine, accountA, "950.50")
		assertStoredBalance(t, ctx, engine, accountB, "1300.00")

		records, err := engine.ListTransactions(ctx, accountB.ID, 1)
		if err != nil {
			t.Fatalf("ListTransactions: %v", err)
		}
		if len(records) != 1 || records[0].Kind != domain.EntryTransferIn {
			t.Fatalf("unexpected records %+v", records)
		}
		if records[0].Description != "rent" {
			t.Errorf("description = %q, want rent", records[0].Description)
		}
	})

	t.Run("transfer insufficient funds", func(t *testing.T) {
		err := engine.ApplyTransfer(ctx, accountA.Number, accountB.Number, decimal.RequireFromString("99999.00"), "")
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("err = %v, want ErrInsufficientFunds", err)
		}
		assertStoredBalance(t, ctx, engine, accountA, "950.50")
		assertStoredBalance(t, ctx, engine, accountB, "1300.00")
	})

	t.Run("concurrent deposits", func(t *testing.T) {
		const n = 10
		amount := decimal.RequireFromString("10.00")

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := engine.ApplyEntry(ctx, accountA.ID, domain.EntryDeposit, amount, ""); err != nil {
					t.Errorf("concurrent deposit: %v", err)
				}
			}()
		}
		wg.Wait()

		// 950.50 + 10 * 10.00, no lost updates
		assertStoredBalance(t, ctx, engine, accountA, "1050.50")
	})

	t.Run("concurrent opposing transfers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := engine.ApplyTransfer(ctx, accountA.Number, accountB.Number, decimal.RequireFromString("100.00"), ""); err != nil {
				t.Errorf("A->B transfer: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := engine.ApplyTransfer(ctx, accountB.Number, accountA.Number, decimal.RequireFromString("50.00"), ""); err != nil {
				t.Errorf("B->A transfer: %v", err)
			}
		}()
		wg.Wait()

		assertStoredBalance(t, ctx, engine, accountA, "1000.50")
		assertStoredBalance(t, ctx, engine, accountB, "1350.00")
	})

	t.Run("account listing", func(t *testing.T) {
		accounts, err := registry.ListAccounts(ctx, accountA.UserID)
		if err != nil {
			t.Fatalf("ListAccounts: %v", err)
		}
		if len(accounts) != 1 || accounts[0].Number != accountA.Number {
			t.Errorf("unexpected accounts %+v", accounts)
		}
	})

	t.Run("login", func(t *testing.T) {
		if _, err := registry.Login(ctx, "alice", "s3cret"); err != nil {
			t.Errorf("Login: %v", err)
		}
		if _, err := registry.Login(ctx, "alice", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})
}

func assertStoredBalance(t *testing.T, ctx context.Context, engine *domain.Engine, account *domain.Account, want string) {
	t.Helper()
	balance, err := engine.GetBalance(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetBalance(%s): %v", account.ID, err)
	}
	if balance.StringFixed(2) != want {
		t.Fatalf("balance(%s) = %s, want %s", account.Number, balance.StringFixed(2), want)
	}
}

// startPostgresContainer starts a PostgreSQL testcontainer and returns the
// connection URL.
func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get postgres host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get postgres port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
	return container, dbURL
}
