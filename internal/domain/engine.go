package domain

import (
	"bytes"
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxConflictRetries bounds how often a conflicted operation is re-run
// before ErrConflict is surfaced to the caller.
const maxConflictRetries = 3

// defaultListLimit matches the history page size of the HTTP API.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// EngineConfig carries the policy knobs of the Engine.
type EngineConfig struct {
	// AllowSelfTransfer permits transfers where source and destination are
	// the same account. Off by default; such a transfer still produces a
	// transfer_out/transfer_in pair but leaves the balance unchanged.
	AllowSelfTransfer bool
}

// Engine is the ledger mutation engine. Every balance change in the system
// goes through ApplyEntry or ApplyTransfer, which commit the balance write
// and the corresponding transaction-log row as one atomic unit.
//
// Operations are stateless requests against durable state: the Engine holds
// no balances itself and may be called concurrently from many goroutines.
type Engine struct {
	store     LedgerStore
	txManager TransactionManager
	cfg       EngineConfig
	// Optional event publisher to emit domain events after commit.
	events EventPublisher
}

// NewEngine creates a new Engine. Pass nil for events if no events should
// be emitted.
func NewEngine(store LedgerStore, txManager TransactionManager, events EventPublisher, cfg EngineConfig) *Engine {
	return &Engine{
		store:     store,
		txManager: txManager,
		events:    events,
		cfg:       cfg,
	}
}

// ApplyEntry applies a single-account balance change (deposit or withdrawal)
// and appends the matching transaction record, atomically.
//
// The flow per attempt:
//  1. Open a transaction scope.
//  2. Read the current balance under a row lock (ErrAccountNotFound if the
//     account is missing).
//  3. Compute the new balance; a withdrawal that would go negative fails
//     with ErrInsufficientFunds and nothing is written.
//  4. Write the balance and append one record.
//  5. Commit. Side effects are visible only after the commit.
//
// On ErrConflict the whole operation is retried from scratch.
// Returns the committed new balance.
func (e *Engine) ApplyEntry(ctx context.Context, accountID uuid.UUID, kind EntryKind, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if kind != EntryDeposit && kind != EntryWithdrawal {
		return decimal.Decimal{}, ErrInvalidEntryKind
	}
	if !validAmount(amount) {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	var (
		newBalance decimal.Decimal
		committed  *TransactionRecord
	)

	err := e.runInScope(ctx, func(txCtx context.Context) error {
		balance, err := e.store.LockBalance(txCtx, accountID)
		if err != nil {
			return err
		}

		if kind == EntryDeposit {
			newBalance = balance.Add(amount)
		} else {
			newBalance = balance.Sub(amount)
			if newBalance.IsNegative() {
				return ErrInsufficientFunds
			}
		}

		if err := e.store.SetBalance(txCtx, accountID, newBalance); err != nil {
			return err
		}

		rec := NewTransactionRecord(accountID, kind, amount, description)
		if err := e.store.AppendRecord(txCtx, rec); err != nil {
			return err
		}

		committed = rec
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	e.publishEntry(committed)
	return newBalance, nil
}

// ApplyTransfer atomically moves amount from one account to another,
// resolved by their external account numbers. It appends a transfer_out
// record on the source and a transfer_in record on the destination, both
// carrying the same amount; either everything commits or nothing does.
//
// Both rows are locked in ascending account-id order so that two opposing
// transfers between the same pair of accounts cannot deadlock.
func (e *Engine) ApplyTransfer(ctx context.Context, fromNumber, toNumber string, amount decimal.Decimal, description string) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if fromNumber == toNumber && !e.cfg.AllowSelfTransfer {
		return ErrInvalidTransfer
	}

	var out, in *TransactionRecord

	err := e.runInScope(ctx, func(txCtx context.Context) error {
		fromID, err := e.store.ResolveNumber(txCtx, fromNumber)
		if err != nil {
			return err
		}
		toID, err := e.store.ResolveNumber(txCtx, toNumber)
		if err != nil {
			return err
		}

		if fromID == toID {
			if !e.cfg.AllowSelfTransfer {
				return ErrInvalidTransfer
			}
			out, in, err = e.selfTransfer(txCtx, fromID, fromNumber, amount, description)
			return err
		}

		var fromBalance, toBalance decimal.Decimal
		if lockBefore(fromID, toID) {
			if fromBalance, err = e.store.LockBalance(txCtx, fromID); err != nil {
				return err
			}
			if toBalance, err = e.store.LockBalance(txCtx, toID); err != nil {
				return err
			}
		} else {
			if toBalance, err = e.store.LockBalance(txCtx, toID); err != nil {
				return err
			}
			if fromBalance, err = e.store.LockBalance(txCtx, fromID); err != nil {
				return err
			}
		}

		if fromBalance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		if err := e.store.SetBalance(txCtx, fromID, fromBalance.Sub(amount)); err != nil {
			return err
		}
		if err := e.store.SetBalance(txCtx, toID, toBalance.Add(amount)); err != nil {
			return err
		}

		outDesc, inDesc := transferDescriptions(description, fromNumber, toNumber)
		out = NewTransactionRecord(fromID, EntryTransferOut, amount, outDesc)
		in = NewTransactionRecord(toID, EntryTransferIn, amount, inDesc)
		if err := e.store.AppendRecord(txCtx, out); err != nil {
			return err
		}
		return e.store.AppendRecord(txCtx, in)
	})
	if err != nil {
		return err
	}

	e.publishTransfer(out, in)
	return nil
}

// selfTransfer handles the from == to case when self-transfers are enabled.
// The balance is unchanged (debit and credit cancel out) but the record
// pair is still appended; the account is locked once.
func (e *Engine) selfTransfer(ctx context.Context, accountID uuid.UUID, number string, amount decimal.Decimal, description string) (out, in *TransactionRecord, err error) {
	balance, err := e.store.LockBalance(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if balance.LessThan(amount) {
		return nil, nil, ErrInsufficientFunds
	}

	outDesc, inDesc := transferDescriptions(description, number, number)
	out = NewTransactionRecord(accountID, EntryTransferOut, amount, outDesc)
	in = NewTransactionRecord(accountID, EntryTransferIn, amount, inDesc)
	if err := e.store.AppendRecord(ctx, out); err != nil {
		return nil, nil, err
	}
	if err := e.store.AppendRecord(ctx, in); err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// GetBalance returns the current balance of an account.
func (e *Engine) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return e.store.GetBalance(ctx, accountID)
}

// ListTransactions returns up to limit records for the account, most recent
// first. A non-positive limit falls back to the default page size.
func (e *Engine) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]TransactionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return e.store.ListRecords(ctx, accountID, limit)
}

// runInScope executes fn inside a transaction scope, retrying the whole
// scope on ErrConflict with exponential backoff. Any other error aborts
// immediately; the failed attempt leaves no side effects either way.
func (e *Engine) runInScope(ctx context.Context, fn func(ctx context.Context) error) error {
	op := func() error {
		err := e.txManager.WithTransaction(ctx, fn)
		if err == nil || errors.Is(err, ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxConflictRetries), ctx))
}

// validAmount reports whether amount is positive and representable at the
// cent precision balances are stored with. Finer amounts would round
// differently on the two sides of a transfer and break conservation, so
// they are rejected instead of rounded.
func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

// lockBefore reports whether account a must be locked before account b.
// Any total order works; byte order of the ids is deterministic and cheap.
func lockBefore(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// transferDescriptions derives per-side descriptions when the caller didn't
// supply one, mirroring each side's counterparty account number.
func transferDescriptions(description, fromNumber, toNumber string) (outDesc, inDesc string) {
	if description != "" {
		return description, description
	}
	return "Transfer to " + toNumber, "Transfer from " + fromNumber
}

// publishEntry emits an entry-completed event after the transaction has
// committed. Publishing is asynchronous and best-effort so that transient
// broker failures don't make an already-committed entry appear to fail.
func (e *Engine) publishEntry(rec *TransactionRecord) {
	if e.events == nil {
		return
	}
	go func(r *TransactionRecord) {
		if err := e.events.PublishEntryCompleted(context.Background(), r); err != nil {
			log.Printf("warning: failed to publish entry completed event: %v", err)
		}
	}(rec)
}

func (e *Engine) publishTransfer(out, in *TransactionRecord) {
	if e.events == nil {
		return
	}
	go func(o, i *TransactionRecord) {
		if err := e.events.PublishTransferCompleted(context.Background(), o, i); err != nil {
			log.Printf("warning: failed to publish transfer completed event: %v", err)
		}
	}(out, in)
}
