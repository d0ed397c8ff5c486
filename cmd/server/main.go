package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"bank-ledger/internal/api"
	"bank-ledger/internal/config"
	"bank-ledger/internal/db"
	"bank-ledger/internal/domain"
	"bank-ledger/internal/events"
)

func main() {
	cfg := config.Load()

	openingBalance, err := decimal.NewFromString(cfg.Ledger.OpeningBalance)
	if err != nil || openingBalance.IsNegative() {
		log.Fatalf("invalid OPENING_BALANCE %q", cfg.Ledger.OpeningBalance)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		log.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()
	log.Println("database connection pool initialized")

	if err := db.InitSchema(ctx, pool.Pool); err != nil {
		log.Fatalf("failed to initialize schema: %v", err)
	}

	// Event publishing is optional; without a broker URL the engine runs
	// without events.
	var publisher domain.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		p, err := events.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Fatalf("failed to create event publisher: %v", err)
		}
		defer p.Close()
		publisher = p
		log.Printf("event publisher initialized on exchange %s", cfg.RabbitMQ.Exchange)
	}

	ledgerRepo := db.NewLedgerRepository(pool.Pool)
	accountRepo := db.NewAccountRepository(pool.Pool)
	userRepo := db.NewUserRepository(pool.Pool)
	txManager := db.NewTransactionManager(pool.Pool)

	engine := domain.NewEngine(ledgerRepo, txManager, publisher, domain.EngineConfig{
		AllowSelfTransfer: cfg.Ledger.AllowSelfTransfer,
	})
	registry := domain.NewRegistry(userRepo, accountRepo, txManager, domain.RegistryConfig{
		OpeningBalance: openingBalance,
	})
	log.Println("domain services initialized")

	handler := api.NewHandler(engine, registry)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(handler),
	}

	go func() {
		log.Printf("bank-ledger HTTP server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("HTTP server stopped")
}
