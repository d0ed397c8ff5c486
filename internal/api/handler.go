package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
)

// Ledger is the engine surface the HTTP layer consumes.
type Ledger interface {
	ApplyEntry(ctx context.Context, accountID uuid.UUID, kind domain.EntryKind, amount decimal.Decimal, description string) (decimal.Decimal, error)
	ApplyTransfer(ctx context.Context, fromNumber, toNumber string, amount decimal.Decimal, description string) error
	GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error)
}

// Registry is the account registry surface the HTTP layer consumes.
type Registry interface {
	Register(ctx context.Context, username, password, fullName string) (*domain.Account, error)
	Login(ctx context.Context, username, password string) (*domain.User, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
}

// Handler holds the HTTP handlers. It validates request shape, hands
// validated values to the domain services and maps domain errors to HTTP
// status codes; it contains no ledger logic of its own.
type Handler struct {
	ledger   Ledger
	registry Registry
}

// NewHandler creates a new Handler.
func NewHandler(ledger Ledger, registry Registry) *Handler {
	return &Handler{
		ledger:   ledger,
		registry: registry,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type transactionRequest struct {
	AccountID   string `json:"account_id"`
	Kind        string `json:"transaction_type"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type transferRequest struct {
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type accountResponse struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	AccountNumber string `json:"account_number"`
	Balance       string `json:"balance"`
	AccountType   string `json:"account_type"`
	CreatedAt     string `json:"created_at"`
}

type recordResponse struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	Kind        string `json:"transaction_type"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Root is the liveness endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "bank ledger is running"})
}

// Register creates a user and their default account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse request body")
		return
	}
	if req.Username == "" || req.Password == "" || req.FullName == "" {
		writeError(w, http.StatusBadRequest, "username, password and full_name are required")
		return
	}

	account, err := h.registry.Register(r.Context(), req.Username, req.Password, req.FullName)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":        "Registration successful",
		"account_number": account.Number,
	})
}

// Login verifies credentials.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse request body")
		return
	}

	user, err := h.registry.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Login successful",
		"user_id":  user.ID.String(),
		"username": user.Username,
	})
}

// ListAccounts returns the accounts owned by a user.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	accounts, err := h.registry.ListAccounts(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

// GetBalance returns the current balance of an account.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"account_id": accountID.String(),
		"balance":    balance.StringFixed(2),
	})
}

// ListTransactions returns an account's transaction history, most recent
// first. The optional limit query parameter caps the page size.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	records, err := h.ledger.ListTransactions(r.Context(), accountID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

// CreateTransaction applies a deposit or withdrawal to an account.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse request body")
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account_id")
		return
	}

	kind := domain.EntryKind(req.Kind)
	if kind != domain.EntryDeposit && kind != domain.EntryWithdrawal {
		writeError(w, http.StatusBadRequest, "transaction_type must be deposit or withdrawal")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	newBalance, err := h.ledger.ApplyEntry(r.Context(), accountID, kind, amount, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":     "Transaction successful",
		"new_balance": newBalance.StringFixed(2),
	})
}

// Transfer moves funds between two accounts identified by account number.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse request body")
		return
	}
	if req.FromAccount == "" || req.ToAccount == "" {
		writeError(w, http.StatusBadRequest, "from_account and to_account are required")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := h.ledger.ApplyTransfer(r.Context(), req.FromAccount, req.ToAccount, amount, req.Description); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Transfer completed successfully"})
}

// writeDomainError maps domain error kinds to HTTP status codes. Unknown
// errors are storage or programming failures and surface as 500 without
// leaking details.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "amount must be positive with at most two decimal places")
	case errors.Is(err, domain.ErrInvalidEntryKind):
		writeError(w, http.StatusBadRequest, "transaction_type must be deposit or withdrawal")
	case errors.Is(err, domain.ErrInvalidTransfer):
		writeError(w, http.StatusBadRequest, "source and destination accounts must differ")
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "operation conflicted with a concurrent request, retry")
	case errors.Is(err, domain.ErrUserExists):
		writeError(w, http.StatusBadRequest, "user already exists")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toAccountResponse(a domain.Account) accountResponse {
	return accountResponse{
		ID:            a.ID.String(),
		UserID:        a.UserID.String(),
		AccountNumber: a.Number,
		Balance:       a.Balance.StringFixed(2),
		AccountType:   a.Type,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toRecordResponse(rec domain.TransactionRecord) recordResponse {
	return recordResponse{
		ID:          rec.ID.String(),
		AccountID:   rec.AccountID.String(),
		Kind:        string(rec.Kind),
		Amount:      rec.Amount.StringFixed(2),
		Description: rec.Description,
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}
