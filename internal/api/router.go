// Package api exposes the HTTP surface: ownership scans, loan
// estimates and CRUD, credential records, collection registry reads,
// and the server-side transaction routes.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"nftcred/internal/observability"
)

// NewRouter assembles the chi router around the handler set.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(h.logRequests)

	r.Get("/health", h.Health)
	r.Handle("/metrics", observability.Handler())

	r.Get("/balance", h.Balance)
	r.Get("/borrower-nfts", h.BorrowerNFTs)

	r.Route("/loan", func(r chi.Router) {
		r.Post("/estimate", h.EstimateLoan)
		r.Post("/borrow", h.Borrow)
		r.Post("/", h.CreateLoan)
		r.Get("/", h.ListLoans)
		r.Get("/{id}", h.GetLoan)
		r.Patch("/{id}/status", h.UpdateLoanStatus)
	})

	r.Route("/nft", func(r chi.Router) {
		r.Get("/registered", h.RegisteredCollections)
		r.Post("/credential", h.CreateCredential)
		r.Patch("/credential/{id}", h.UpdateCredential)
		r.Get("/credential", h.ListCredentials)
		r.Post("/lock", h.LockNFT)
	})

	r.Post("/usdc/deposit", h.DepositUSDC)

	return r
}
