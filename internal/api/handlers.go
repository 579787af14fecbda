package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nftcred/internal/borrow"
	"nftcred/internal/domain"
	"nftcred/internal/loan"
	"nftcred/internal/nft"
	"nftcred/internal/observability"
	"nftcred/internal/storage"
	"nftcred/internal/wallet"
)

// notFoundMessage is the sentinel returned for contracts the wallet
// owns nothing of.
const notFoundMessage = "NFT not found"

// Handlers carries the dependencies of every HTTP handler.
type Handlers struct {
	logger      *zap.Logger
	collections storage.CollectionStore
	credentials storage.CredentialStore
	loans       storage.LoanStore
	aggregator  *nft.Aggregator
	estimator   *loan.Estimator
	depositor   *loan.Depositor
	locker      *Locker
	session     *wallet.Session

	// newBorrow builds a fresh orchestrator per borrow request; a flow
	// owns its state machine.
	newBorrow func() *borrow.Orchestrator
}

// HandlersOptions configures a handler set.
type HandlersOptions struct {
	Logger      *zap.Logger
	Collections storage.CollectionStore
	Credentials storage.CredentialStore
	Loans       storage.LoanStore
	Aggregator  *nft.Aggregator
	Estimator   *loan.Estimator
	Depositor   *loan.Depositor
	Locker      *Locker
	Session     *wallet.Session
	NewBorrow   func() *borrow.Orchestrator
}

// NewHandlers creates the handler set.
func NewHandlers(opts HandlersOptions) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		logger:      logger,
		collections: opts.Collections,
		credentials: opts.Credentials,
		loans:       opts.Loans,
		aggregator:  opts.Aggregator,
		estimator:   opts.Estimator,
		depositor:   opts.Depositor,
		locker:      opts.Locker,
		session:     opts.Session,
		newBorrow:   opts.NewBorrow,
	}
}

func (h *Handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("elapsed", elapsed))
		observability.DefaultMetrics.HTTPRequestDuration.
			WithLabelValues(r.URL.Path, r.Method).Observe(elapsed.Seconds())
		observability.DefaultMetrics.HTTPRequestsTotal.
			WithLabelValues(r.URL.Path, r.Method, http.StatusText(ww.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Balance returns the stablecoin balance of an address.
// GET /balance?address=0x...
func (h *Handlers) Balance(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		h.writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	// A plain read; the shared session binding is never mutated by a
	// request handler.
	balance, err := h.session.BalanceOf(r.Context(), address)
	if err != nil {
		h.serverError(w, "read balance", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": domain.NormalizeAddress(address),
		"balance": balance.String(),
	})
}

// BorrowerNFTs scans a wallet across all registered collections.
// GET /borrower-nfts?address=0x...
func (h *Handlers) BorrowerNFTs(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		h.writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	collections, err := h.collections.List(r.Context())
	if err != nil {
		h.serverError(w, "list collections", err)
		return
	}

	contracts := make([]string, len(collections))
	for i, c := range collections {
		contracts[i] = c.ContractAddress
	}

	results, err := h.aggregator.ScanOwner(r.Context(), address, contracts)
	if err != nil {
		h.serverError(w, "ownership scan", err)
		return
	}

	observability.RecordScan(len(contracts))

	out := make([]map[string]any, len(results))
	tokenCount := 0
	for i, res := range results {
		entry := map[string]any{
			"contractAddress": res.ContractAddress,
		}
		switch {
		case res.Err != nil:
			entry["error"] = res.Err.Error()
		case res.NotFound():
			entry["message"] = notFoundMessage
		default:
			tokens := make([]map[string]any, len(res.Tokens))
			for j, t := range res.Tokens {
				tokens[j] = map[string]any{
					"tokenId":  t.TokenID,
					"metadata": t.Metadata,
				}
			}
			entry["tokens"] = tokens
			tokenCount += len(res.Tokens)
		}
		out[i] = entry
	}
	observability.RecordTokensDiscovered(tokenCount)

	writeJSON(w, http.StatusOK, map[string]any{
		"address": domain.NormalizeAddress(address),
		"results": out,
	})
}

type estimateRequest struct {
	ContractAddress string `json:"contractAddress"`
	Duration        int    `json:"duration"`
}

// EstimateLoan quotes a loan for a registered collection.
// POST /loan/estimate
func (h *Handlers) EstimateLoan(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContractAddress == "" {
		h.writeError(w, http.StatusBadRequest, "contractAddress is required")
		return
	}

	estimate, err := h.estimator.EstimateForCollection(r.Context(), req.ContractAddress, req.Duration)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "collection not registered")
			return
		}
		h.serverError(w, "estimate", err)
		return
	}

	amount, _ := estimate.LoanAmount.Float64()
	observability.RecordEstimate(amount)

	writeJSON(w, http.StatusOK, map[string]any{
		"credentialType": estimate.CredentialType,
		"basePrice":      estimate.BasePrice.String(),
		"ltv":            estimate.LTV,
		"loanAmount":     estimate.LoanAmount.String(),
		"interestRate":   estimate.InterestRate.String(),
		"interest":       estimate.Interest.String(),
		"totalLoan":      estimate.TotalLoan.String(),
		"duration":       estimate.Duration,
	})
}

type createLoanRequest struct {
	Borrower        string `json:"borrower"`
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
	Amount          string `json:"amount"`
	Duration        int    `json:"duration"`
	LTV             int    `json:"ltv"`
	TxHash          string `json:"txHash"`
}

// CreateLoan persists a loan record.
// POST /loan
func (h *Handlers) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Borrower == "" || req.ContractAddress == "" || req.TokenID == "" {
		h.writeError(w, http.StatusBadRequest, "borrower, contractAddress and tokenId are required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		h.writeError(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}

	now := time.Now().UTC()
	record := &domain.Loan{
		ID:              uuid.NewString(),
		Borrower:        domain.NormalizeAddress(req.Borrower),
		ContractAddress: domain.NormalizeAddress(req.ContractAddress),
		TokenID:         req.TokenID,
		Amount:          amount,
		Duration:        req.Duration,
		LTV:             req.LTV,
		Status:          domain.LoanStatusPending,
		TxHash:          req.TxHash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.loans.Insert(r.Context(), record); err != nil {
		h.serverError(w, "insert loan", err)
		return
	}
	observability.RecordLoanCreated()

	writeJSON(w, http.StatusCreated, loanResponse(record))
}

type borrowRequest struct {
	Borrower         string               `json:"borrower"`
	ContractAddress  string               `json:"contractAddress"`
	TokenID          string               `json:"tokenId"`
	CredentialTypeID string               `json:"credentialTypeId"`
	Institution      string               `json:"institution"`
	Metadata         domain.TokenMetadata `json:"metadata"`
	Amount           string               `json:"amount"`
	Duration         int                  `json:"duration"`
}

// Borrow runs the full borrow flow server-side: estimate, approve the
// collateral, lock it, create the loan on chain, and persist the
// credential and loan records.
// POST /loan/borrow
func (h *Handlers) Borrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Borrower == "" || req.ContractAddress == "" || req.TokenID == "" || req.CredentialTypeID == "" {
		h.writeError(w, http.StatusBadRequest,
			"borrower, contractAddress, tokenId and credentialTypeId are required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		h.writeError(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}

	orch := h.newBorrow()
	estimate, err := orch.Start(r.Context(), borrow.Request{
		Borrower:         req.Borrower,
		ContractAddress:  req.ContractAddress,
		TokenID:          req.TokenID,
		CredentialTypeID: req.CredentialTypeID,
		Institution:      req.Institution,
		Metadata:         req.Metadata,
		Amount:           amount,
		Duration:         req.Duration,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "credential type not found")
			return
		}
		h.serverError(w, "borrow estimate", err)
		return
	}

	record, err := orch.Borrow(r.Context())
	if err != nil {
		var txErr *borrow.TxError
		switch {
		case errors.Is(err, loan.ErrAmountExceedsEstimate), errors.Is(err, loan.ErrAmountExceedsPool):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &txErr):
			h.logger.Warn("borrow transaction failed",
				zap.String("kind", string(txErr.Kind)),
				zap.String("state", string(txErr.State)),
				zap.Error(txErr.Err))
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error": string(txErr.Kind),
				"state": string(txErr.State),
			})
		default:
			h.serverError(w, "borrow", err)
		}
		return
	}
	observability.RecordLoanCreated()

	resp := loanResponse(record)
	resp["loanAmount"] = estimate.LoanAmount.String()
	writeJSON(w, http.StatusCreated, resp)
}

// ListLoans returns all loan records, newest first.
// GET /loan
func (h *Handlers) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.List(r.Context())
	if err != nil {
		h.serverError(w, "list loans", err)
		return
	}
	out := make([]map[string]any, len(loans))
	for i, l := range loans {
		out[i] = loanResponse(l)
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": out})
}

// GetLoan returns one loan by id.
// GET /loan/{id}
func (h *Handlers) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.loans.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "loan not found")
			return
		}
		h.serverError(w, "get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loanResponse(record))
}

type updateLoanStatusRequest struct {
	Status domain.LoanStatus `json:"status"`
}

// UpdateLoanStatus transitions a loan's lifecycle status.
// PATCH /loan/{id}/status
func (h *Handlers) UpdateLoanStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateLoanStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case domain.LoanStatusPending, domain.LoanStatusActive,
		domain.LoanStatusRepaid, domain.LoanStatusDefault:
	default:
		h.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if err := h.loans.UpdateStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "loan not found")
			return
		}
		h.serverError(w, "update loan status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

// RegisteredCollections returns all registered collections, or one by
// contract address.
// GET /nft/registered[?contractAddress=0x...]
func (h *Handlers) RegisteredCollections(w http.ResponseWriter, r *http.Request) {
	if address := r.URL.Query().Get("contractAddress"); address != "" {
		coll, err := h.collections.GetByAddress(r.Context(), domain.NormalizeAddress(address))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.writeError(w, http.StatusNotFound, "collection not registered")
				return
			}
			h.serverError(w, "get collection", err)
			return
		}
		writeJSON(w, http.StatusOK, collectionResponse(coll))
		return
	}

	collections, err := h.collections.List(r.Context())
	if err != nil {
		h.serverError(w, "list collections", err)
		return
	}
	out := make([]map[string]any, len(collections))
	for i, c := range collections {
		out[i] = collectionResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

type createCredentialRequest struct {
	UserID           string               `json:"userId"`
	CredentialTypeID string               `json:"credentialTypeId"`
	ContractAddress  string               `json:"contractAddress"`
	TokenID          string               `json:"tokenId"`
	Institution      string               `json:"institution"`
	Metadata         domain.TokenMetadata `json:"metadata"`
}

// CreateCredential persists a credential record in PENDING state.
// POST /nft/credential
func (h *Handlers) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req createCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.ContractAddress == "" || req.TokenID == "" {
		h.writeError(w, http.StatusBadRequest, "userId, contractAddress and tokenId are required")
		return
	}

	cred := &domain.Credential{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		CredentialTypeID: req.CredentialTypeID,
		ContractAddress:  domain.NormalizeAddress(req.ContractAddress),
		TokenID:          req.TokenID,
		Institution:      req.Institution,
		Verification:     domain.VerificationPending,
		Metadata:         req.Metadata,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.credentials.Insert(r.Context(), cred); err != nil {
		h.serverError(w, "insert credential", err)
		return
	}
	writeJSON(w, http.StatusCreated, credentialResponse(cred))
}

type updateCredentialRequest struct {
	Verification domain.VerificationStatus `json:"verification"`
}

// UpdateCredential sets the verification status of a credential.
// PATCH /nft/credential/{id}
func (h *Handlers) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidVerificationStatus(req.Verification) {
		h.writeError(w, http.StatusBadRequest, "unknown verification status")
		return
	}
	if err := h.credentials.UpdateVerification(r.Context(), id, req.Verification); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "credential not found")
			return
		}
		h.serverError(w, "update credential", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "verification": req.Verification})
}

// ListCredentials returns the credentials of one user.
// GET /nft/credential?userId=...
func (h *Handlers) ListCredentials(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	creds, err := h.credentials.ListByUser(r.Context(), userID)
	if err != nil {
		h.serverError(w, "list credentials", err)
		return
	}
	out := make([]map[string]any, len(creds))
	for i, c := range creds {
		out[i] = credentialResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": out})
}

type lockRequest struct {
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
}

// LockNFT locks collateral through the server-side signer.
// POST /nft/lock
func (h *Handlers) LockNFT(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContractAddress == "" || req.TokenID == "" {
		h.writeError(w, http.StatusBadRequest, "contractAddress and tokenId are required")
		return
	}

	txHash, err := h.locker.Lock(r.Context(), req.ContractAddress, req.TokenID)
	if err != nil {
		if errors.Is(err, errInvalidTokenID) {
			h.writeError(w, http.StatusBadRequest, "tokenId must be a decimal integer")
			return
		}
		h.serverError(w, "lock nft", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"txHash": txHash})
}

type depositRequest struct {
	Amount string `json:"amount"`
}

// DepositUSDC funds the lending pool.
// POST /usdc/deposit
func (h *Handlers) DepositUSDC(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		h.writeError(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}

	txHash, err := h.depositor.Deposit(r.Context(), amount)
	if err != nil {
		h.serverError(w, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"txHash": txHash})
}

func loanResponse(l *domain.Loan) map[string]any {
	return map[string]any{
		"id":              l.ID,
		"borrower":        l.Borrower,
		"contractAddress": l.ContractAddress,
		"tokenId":         l.TokenID,
		"amount":          l.Amount.String(),
		"duration":        l.Duration,
		"ltv":             l.LTV,
		"status":          l.Status,
		"txHash":          l.TxHash,
		"createdAt":       l.CreatedAt,
		"updatedAt":       l.UpdatedAt,
	}
}

func collectionResponse(c *domain.RegisteredCollection) map[string]any {
	return map[string]any{
		"id":               c.ID,
		"contractAddress":  c.ContractAddress,
		"tokenName":        c.TokenName,
		"tickerSymbol":     c.TickerSymbol,
		"displayImage":     c.DisplayImage,
		"credentialTypeId": c.CredentialTypeID,
		"createdAt":        c.CreatedAt,
	}
}

func credentialResponse(c *domain.Credential) map[string]any {
	return map[string]any{
		"id":               c.ID,
		"userId":           c.UserID,
		"credentialTypeId": c.CredentialTypeID,
		"contractAddress":  c.ContractAddress,
		"tokenId":          c.TokenID,
		"institution":      c.Institution,
		"verification":     c.Verification,
		"metadata":         c.Metadata,
		"createdAt":        c.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, op+" failed")
}
