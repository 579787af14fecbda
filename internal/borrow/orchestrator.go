package borrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nftcred/internal/domain"
	"nftcred/internal/ethereum"
	"nftcred/internal/loan"
	"nftcred/internal/observability"
)

// State is a step of the borrow flow. Transitions are strictly forward;
// any pending state can fall to StateError, after which the flow must
// be restarted from a fresh estimate.
type State string

const (
	StateIdle              State = "IDLE"
	StateEstimating        State = "ESTIMATING"
	StateReadyToBorrow     State = "READY_TO_BORROW"
	StateApprovalPending   State = "APPROVAL_PENDING"
	StateApprovalConfirmed State = "APPROVAL_CONFIRMED"
	StateLockPending       State = "LOCK_PENDING"
	StateLockConfirmed     State = "LOCK_CONFIRMED"
	StateCreateLoanPending State = "CREATE_LOAN_PENDING"
	StateLoanCreated       State = "LOAN_CREATED"
	StateError             State = "ERROR"
)

// ErrNotReady is returned when Borrow is called outside ReadyToBorrow.
var ErrNotReady = errors.New("session is not ready to borrow")

// Stores groups the persistence the orchestrator reads and writes.
type Stores struct {
	Credentials interface {
		Insert(ctx context.Context, c *domain.Credential) error
	}
	CredentialTypes interface {
		GetByID(ctx context.Context, id string) (*domain.CredentialType, error)
	}
	Loans interface {
		Insert(ctx context.Context, l *domain.Loan) error
	}
	LoanEvents interface {
		Insert(ctx context.Context, e *domain.LoanEvent) error
	}
}

// Orchestrator drives a single borrow flow: estimate, approve the NFT
// to the loan contract, lock it, create the loan. Exactly one
// transaction is in flight at a time; each is awaited to its receipt
// before the next is submitted.
type Orchestrator struct {
	estimator    *loan.Estimator
	signer       ethereum.Signer
	confirmer    *ethereum.Confirmer
	stores       Stores
	loanContract string
	logger       *zap.Logger

	// onComplete fires after LoanCreated, typically a wallet balance
	// refresh.
	onComplete func(ctx context.Context)

	mu          sync.Mutex
	state       State
	estimate    *domain.LoanEstimate
	poolBalance decimal.Decimal
	request     *Request
}

// Request describes what the borrower wants to pledge and receive.
type Request struct {
	Borrower         string
	ContractAddress  string
	TokenID          string
	CredentialTypeID string
	Institution      string
	Metadata         domain.TokenMetadata
	// Amount is the requested loan amount. It is re-validated against
	// the server-side estimate before any transaction is sent.
	Amount   decimal.Decimal
	Duration int // days
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Estimator    *loan.Estimator
	Signer       ethereum.Signer
	Confirmer    *ethereum.Confirmer
	Stores       Stores
	LoanContract string
	Logger       *zap.Logger
	OnComplete   func(ctx context.Context)
}

// NewOrchestrator creates a borrow orchestrator in StateIdle.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		estimator:    opts.Estimator,
		signer:       opts.Signer,
		confirmer:    opts.Confirmer,
		stores:       opts.Stores,
		loanContract: domain.NormalizeAddress(opts.LoanContract),
		logger:       logger,
		onComplete:   opts.OnComplete,
		state:        StateIdle,
	}
}

// State returns the current flow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Estimate returns the current quote, nil before Start.
func (o *Orchestrator) Estimate() *domain.LoanEstimate {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.estimate
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.logger.Debug("borrow state", zap.String("state", string(s)))
}

// Start quotes the loan and reads the pool balance concurrently,
// leaving the session in ReadyToBorrow. The quoted amount is clamped
// to the pool balance.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*domain.LoanEstimate, error) {
	o.mu.Lock()
	if o.state != StateIdle && o.state != StateReadyToBorrow && o.state != StateError && o.state != StateLoanCreated {
		o.mu.Unlock()
		return nil, fmt.Errorf("cannot start estimate in state %s", o.state)
	}
	o.state = StateEstimating
	o.mu.Unlock()

	req.Borrower = domain.NormalizeAddress(req.Borrower)
	req.ContractAddress = domain.NormalizeAddress(req.ContractAddress)

	var (
		estimate *domain.LoanEstimate
		balance  decimal.Decimal
		estErr   error
		balErr   error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		estimate, estErr = o.estimator.Estimate(ctx, req.CredentialTypeID, req.Duration)
	}()
	go func() {
		defer wg.Done()
		balance, balErr = o.estimator.PoolBalance(ctx)
	}()
	wg.Wait()

	if estErr != nil {
		o.setState(StateError)
		return nil, estErr
	}
	if balErr != nil {
		o.setState(StateError)
		return nil, balErr
	}

	estimate.LoanAmount = loan.ClampToPool(estimate.LoanAmount, balance)

	o.mu.Lock()
	o.estimate = estimate
	o.poolBalance = balance
	o.request = &req
	o.state = StateReadyToBorrow
	o.mu.Unlock()

	return estimate, nil
}

// Borrow runs the transaction sequence. On any failure the session
// lands in StateError with a classified TxError; nothing is retried.
func (o *Orchestrator) Borrow(ctx context.Context) (*domain.Loan, error) {
	o.mu.Lock()
	if o.state != StateReadyToBorrow {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrNotReady, o.state)
	}
	req := *o.request
	estimate := o.estimate
	poolBalance := o.poolBalance
	o.mu.Unlock()

	started := time.Now()

	if err := loan.ValidateRequested(req.Amount, estimate, poolBalance); err != nil {
		o.setState(StateError)
		return nil, err
	}

	tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
	if !ok {
		o.setState(StateError)
		return nil, fmt.Errorf("invalid token id %q", req.TokenID)
	}

	if err := o.approve(ctx, req, tokenID); err != nil {
		return nil, err
	}

	// The credential exists from the moment collateral is approved,
	// even if the remaining steps fail.
	if err := o.persistCredential(ctx, req); err != nil {
		o.setState(StateError)
		return nil, err
	}

	if err := o.lock(ctx, req, tokenID); err != nil {
		return nil, err
	}

	record, err := o.createLoan(ctx, req, tokenID)
	if err != nil {
		return nil, err
	}

	o.setState(StateLoanCreated)
	observability.RecordBorrowFlow(time.Since(started).Seconds())

	if o.onComplete != nil {
		o.onComplete(ctx)
	}
	return record, nil
}

// approve submits approve(loanContract, tokenID) on the collateral
// contract and waits for the receipt.
func (o *Orchestrator) approve(ctx context.Context, req Request, tokenID *big.Int) error {
	o.setState(StateApprovalPending)

	data, err := ethereum.ApproveData(o.loanContract, tokenID)
	if err != nil {
		o.setState(StateError)
		return ClassifyTxError(StateApprovalPending, err)
	}
	hash, err := o.signer.Send(ctx, req.ContractAddress, data, nil)
	if err != nil {
		o.setState(StateError)
		return ClassifyTxError(StateApprovalPending, err)
	}
	observability.RecordTx("approve")
	o.logger.Info("approval submitted",
		zap.String("tx_hash", hash),
		zap.String("contract", req.ContractAddress),
		zap.String("token_id", req.TokenID))
	if _, err := o.confirmer.WaitMined(ctx, hash); err != nil {
		o.setState(StateError)
		return ClassifyTxError(StateApprovalPending, err)
	}

	o.setState(StateApprovalConfirmed)
	return nil
}

// lock submits lockNFT(collection, tokenId) on the loan contract.
func (o *Orchestrator) lock(ctx context.Context, req Request, tokenID *big.Int) error {
	o.setState(StateLockPending)

	data, err := ethereum.EncodeCall("lockNFT(address,uint256)", req.ContractAddress, tokenID)
	if err != nil {
		o.setState(StateError)
		return ClassifyTxError(StateLockPending, err)
	}
	hash, err := o.signer.Send(ctx, o.loanContract, data, nil)
	if err != nil {
		o.setState(StateError)
		return ClassifyTxError(StateLockPending, err)
	}
	observability.RecordTx("lock_nft")
	o.logger.Info("collateral lock submitted",
		zap.String("tx_hash", hash),
		zap.String("token_id", req.TokenID))
	if _, err := o.confirmer.WaitMined(ctx, hash); err != nil {
		o.setState(StateError)
		return ClassifyTxError(StateLockPending, err)
	}

	o.setState(StateLockConfirmed)
	return nil
}

// createLoan submits the loan creation transaction and persists the
// loan record plus its analytics event. The contract takes the
// credential type as its on-chain enum value.
func (o *Orchestrator) createLoan(ctx context.Context, req Request, tokenID *big.Int) (*domain.Loan, error) {
	o.setState(StateCreateLoanPending)

	ct, err := o.stores.CredentialTypes.GetByID(ctx, req.CredentialTypeID)
	if err != nil {
		o.setState(StateError)
		return nil, fmt.Errorf("credential type %s: %w", req.CredentialTypeID, err)
	}

	units, err := loan.ToUnits(req.Amount, loan.USDCDecimals)
	if err != nil {
		o.setState(StateError)
		return nil, ClassifyTxError(StateCreateLoanPending, err)
	}
	data, err := ethereum.EncodeCall("createLoan(address,uint256,uint256,uint256,uint256,uint256)",
		req.ContractAddress, tokenID, units, big.NewInt(int64(req.Duration)),
		big.NewInt(int64(o.estimateLTV())), big.NewInt(int64(ct.ChainCode)))
	if err != nil {
		o.setState(StateError)
		return nil, ClassifyTxError(StateCreateLoanPending, err)
	}
	hash, err := o.signer.Send(ctx, o.loanContract, data, nil)
	if err != nil {
		o.setState(StateError)
		return nil, ClassifyTxError(StateCreateLoanPending, err)
	}
	observability.RecordTx("create_loan")
	o.logger.Info("loan creation submitted",
		zap.String("tx_hash", hash),
		zap.String("amount", req.Amount.String()))
	if _, err := o.confirmer.WaitMined(ctx, hash); err != nil {
		o.setState(StateError)
		return nil, ClassifyTxError(StateCreateLoanPending, err)
	}

	now := time.Now().UTC()
	record := &domain.Loan{
		ID:              uuid.NewString(),
		Borrower:        req.Borrower,
		ContractAddress: req.ContractAddress,
		TokenID:         req.TokenID,
		Amount:          req.Amount,
		Duration:        req.Duration,
		LTV:             o.estimateLTV(),
		Status:          domain.LoanStatusActive,
		TxHash:          hash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.stores.Loans.Insert(ctx, record); err != nil {
		o.setState(StateError)
		return nil, fmt.Errorf("persist loan: %w", err)
	}

	if o.stores.LoanEvents != nil {
		amount, _ := req.Amount.Float64()
		event := &domain.LoanEvent{
			LoanID:      record.ID,
			Event:       "created",
			Borrower:    record.Borrower,
			Amount:      amount,
			TimestampMs: now.UnixMilli(),
		}
		if err := o.stores.LoanEvents.Insert(ctx, event); err != nil {
			// Analytics loss does not fail the loan
			o.logger.Warn("loan event insert failed",
				zap.String("loan_id", record.ID),
				zap.Error(err))
		}
	}
	return record, nil
}

func (o *Orchestrator) estimateLTV() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.estimate == nil {
		return 0
	}
	return o.estimate.LTV
}

// persistCredential stores the credential record. Runs only after the
// approval receipt, never before.
func (o *Orchestrator) persistCredential(ctx context.Context, req Request) error {
	cred := &domain.Credential{
		ID:               uuid.NewString(),
		UserID:           req.Borrower,
		CredentialTypeID: req.CredentialTypeID,
		ContractAddress:  req.ContractAddress,
		TokenID:          req.TokenID,
		Institution:      req.Institution,
		Verification:     domain.VerificationPending,
		Metadata:         req.Metadata,
		CreatedAt:        time.Now().UTC(),
	}
	if err := o.stores.Credentials.Insert(ctx, cred); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	return nil
}
