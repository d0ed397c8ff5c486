package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the HTTP routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", h.Root)
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Get("/users/{userID}/accounts", h.ListAccounts)
	r.Get("/accounts/{accountID}/balance", h.GetBalance)
	r.Get("/transactions/{accountID}", h.ListTransactions)
	r.Post("/transaction", h.CreateTransaction)
	r.Post("/transfer", h.Transfer)

	return r
}
