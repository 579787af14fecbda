package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nftcred/internal/borrow"
	"nftcred/internal/domain"
	"nftcred/internal/ethereum"
	"nftcred/internal/ethereum/stub"
	"nftcred/internal/loan"
	"nftcred/internal/metadata"
	"nftcred/internal/nft"
	"nftcred/internal/storage/memory"
	"nftcred/internal/wallet"
)

const (
	apiNFTContract  = "0x2222222222222222222222222222222222222222"
	apiUSDCContract = "0x3333333333333333333333333333333333333333"
	apiLoanContract = "0x4444444444444444444444444444444444444444"
	apiSignerAddr   = "0x5555555555555555555555555555555555555555"
	apiBorrower     = "0x1111111111111111111111111111111111111111"
)

type apiHarness struct {
	rpc         *stub.RPCClient
	server      *httptest.Server
	session     *wallet.Session
	collections *memory.CollectionStore
	credentials *memory.CredentialStore
	loans       *memory.LoanStore
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	ctx := context.Background()

	rpc := stub.NewRPCClient()

	collections := memory.NewCollectionStore()
	if err := collections.Insert(ctx, &domain.RegisteredCollection{
		ID:               "coll-1",
		ContractAddress:  apiNFTContract,
		TokenName:        "Degree Credential",
		TickerSymbol:     "DEG",
		CredentialTypeID: "ct-degree",
		CreatedAt:        time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	types := memory.NewCredentialTypeStore()
	if err := types.Insert(ctx, &domain.CredentialType{
		ID:        "ct-degree",
		Name:      "University Degree",
		BasePrice: decimal.NewFromInt(100),
		LTV:       50,
		ChainCode: 1,
	}); err != nil {
		t.Fatal(err)
	}

	// 1000 USDC in the pool
	poolBal, err := ethereum.EncodeCall("balanceOf(address)", apiLoanContract)
	if err != nil {
		t.Fatal(err)
	}
	rpc.StubUint(apiUSDCContract, poolBal, big.NewInt(1_000_000_000))

	estimator := loan.NewEstimator(loan.EstimatorOptions{
		Collections:     collections,
		CredentialTypes: types,
		PlatformConfig:  memory.NewPlatformConfigStore(),
		Client:          rpc,
		USDCContract:    apiUSDCContract,
		LoanContract:    apiLoanContract,
	})

	signer := ethereum.NewNodeSigner(rpc, apiSignerAddr)
	confirmer := ethereum.NewConfirmer(rpc).WithPollInterval(5 * time.Millisecond)

	h := &apiHarness{
		rpc:         rpc,
		session:     wallet.NewSession(rpc, apiUSDCContract),
		collections: collections,
		credentials: memory.NewCredentialStore(),
		loans:       memory.NewLoanStore(),
	}
	borrowStores := borrow.Stores{
		Credentials:     h.credentials,
		CredentialTypes: types,
		Loans:           h.loans,
		LoanEvents:      memory.NewLoanEventStore(),
	}
	handlers := NewHandlers(HandlersOptions{
		Collections: collections,
		Credentials: h.credentials,
		Loans:       h.loans,
		Aggregator: nft.NewAggregator(nft.AggregatorOptions{
			Client:     rpc,
			Resolver:   metadata.NewResolver(metadata.ResolverOptions{}),
			BatchDelay: time.Millisecond,
		}),
		Estimator: estimator,
		Depositor: loan.NewDepositor(loan.DepositorOptions{
			Signer:       signer,
			Confirmer:    confirmer,
			USDCContract: apiUSDCContract,
			LoanContract: apiLoanContract,
		}),
		Locker:  NewLocker(signer, confirmer, apiLoanContract, nil),
		Session: h.session,
		NewBorrow: func() *borrow.Orchestrator {
			return borrow.NewOrchestrator(borrow.OrchestratorOptions{
				Estimator:    estimator,
				Signer:       signer,
				Confirmer:    confirmer,
				Stores:       borrowStores,
				LoanContract: apiLoanContract,
			})
		},
	})

	h.server = httptest.NewServer(NewRouter(handlers))
	t.Cleanup(h.server.Close)
	return h
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
		t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	return resp, decoded
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)
	resp, body := h.do(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestEstimateLoan(t *testing.T) {
	h := newAPIHarness(t)

	resp, body := h.do(t, http.MethodPost, "/loan/estimate", map[string]any{
		"contractAddress": apiNFTContract,
		"duration":        30,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["loanAmount"] != "50" {
		t.Errorf("loanAmount = %v, want 50", body["loanAmount"])
	}
	if body["interest"] != "0.005" {
		t.Errorf("interest = %v, want 0.005", body["interest"])
	}
	if body["duration"] != float64(30) {
		t.Errorf("duration = %v, want 30", body["duration"])
	}
	if body["credentialType"] != "University Degree" {
		t.Errorf("credentialType = %v", body["credentialType"])
	}
}

func TestEstimateLoan_UnregisteredCollection(t *testing.T) {
	h := newAPIHarness(t)
	resp, body := h.do(t, http.MethodPost, "/loan/estimate", map[string]any{
		"contractAddress": "0xdead000000000000000000000000000000000001",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["error"] != "collection not registered" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestEstimateLoan_MissingAddress(t *testing.T) {
	h := newAPIHarness(t)
	resp, _ := h.do(t, http.MethodPost, "/loan/estimate", map[string]any{"duration": 30})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestLoanLifecycle(t *testing.T) {
	h := newAPIHarness(t)

	resp, created := h.do(t, http.MethodPost, "/loan", map[string]any{
		"borrower":        apiBorrower,
		"contractAddress": apiNFTContract,
		"tokenId":         "42",
		"amount":          "50",
		"duration":        30,
		"ltv":             50,
		"txHash":          "0xabc",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %v", resp.StatusCode, created)
	}
	if created["status"] != string(domain.LoanStatusPending) {
		t.Errorf("new loan status = %v, want PENDING", created["status"])
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created loan has no id")
	}

	resp, fetched := h.do(t, http.MethodGet, "/loan/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if fetched["amount"] != "50" || fetched["tokenId"] != "42" {
		t.Errorf("fetched = %v", fetched)
	}

	resp, listed := h.do(t, http.MethodGet, "/loan/", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if loans, ok := listed["loans"].([]any); !ok || len(loans) != 1 {
		t.Errorf("listed = %v", listed)
	}

	resp, _ = h.do(t, http.MethodPatch, "/loan/"+id+"/status", map[string]any{"status": "ACTIVE"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}
	_, fetched = h.do(t, http.MethodGet, "/loan/"+id, nil)
	if fetched["status"] != string(domain.LoanStatusActive) {
		t.Errorf("status after patch = %v, want ACTIVE", fetched["status"])
	}

	resp, _ = h.do(t, http.MethodPatch, "/loan/"+id+"/status", map[string]any{"status": "SIDEWAYS"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown status accepted: %d", resp.StatusCode)
	}
}

func TestGetLoan_NotFound(t *testing.T) {
	h := newAPIHarness(t)
	resp, _ := h.do(t, http.MethodGet, "/loan/no-such-id", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateLoan_InvalidAmount(t *testing.T) {
	h := newAPIHarness(t)
	for _, amount := range []string{"", "abc", "-5", "0"} {
		resp, _ := h.do(t, http.MethodPost, "/loan", map[string]any{
			"borrower":        apiBorrower,
			"contractAddress": apiNFTContract,
			"tokenId":         "1",
			"amount":          amount,
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("amount %q accepted: %d", amount, resp.StatusCode)
		}
	}
}

func TestRegisteredCollections(t *testing.T) {
	h := newAPIHarness(t)

	resp, body := h.do(t, http.MethodGet, "/nft/registered", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if colls, ok := body["collections"].([]any); !ok || len(colls) != 1 {
		t.Fatalf("collections = %v", body)
	}

	resp, single := h.do(t, http.MethodGet, "/nft/registered?contractAddress="+apiNFTContract, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("single status = %d", resp.StatusCode)
	}
	if single["tickerSymbol"] != "DEG" {
		t.Errorf("single = %v", single)
	}

	resp, _ = h.do(t, http.MethodGet, "/nft/registered?contractAddress=0xdead000000000000000000000000000000000001", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown collection status = %d", resp.StatusCode)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	h := newAPIHarness(t)

	resp, created := h.do(t, http.MethodPost, "/nft/credential", map[string]any{
		"userId":           apiBorrower,
		"credentialTypeId": "ct-degree",
		"contractAddress":  apiNFTContract,
		"tokenId":          "7",
		"institution":      "MIT",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %v", resp.StatusCode, created)
	}
	if created["verification"] != string(domain.VerificationPending) {
		t.Errorf("verification = %v, want PENDING", created["verification"])
	}
	id, _ := created["id"].(string)

	resp, _ = h.do(t, http.MethodPatch, "/nft/credential/"+id, map[string]any{"verification": "VERIFIED"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}

	resp, _ = h.do(t, http.MethodPatch, "/nft/credential/"+id, map[string]any{"verification": "MAYBE"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown verification accepted: %d", resp.StatusCode)
	}

	resp, listed := h.do(t, http.MethodGet, "/nft/credential?userId="+apiBorrower, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	creds, ok := listed["credentials"].([]any)
	if !ok || len(creds) != 1 {
		t.Fatalf("credentials = %v", listed)
	}
	cred := creds[0].(map[string]any)
	if cred["verification"] != string(domain.VerificationVerified) {
		t.Errorf("verification after patch = %v, want VERIFIED", cred["verification"])
	}
}

func TestBorrowerNFTs_NotFoundSentinel(t *testing.T) {
	h := newAPIHarness(t)

	// Zero balance on the registered collection
	balData, err := ethereum.EncodeCall("balanceOf(address)", apiBorrower)
	if err != nil {
		t.Fatal(err)
	}
	h.rpc.StubUint(apiNFTContract, balData, big.NewInt(0))

	resp, body := h.do(t, http.MethodGet, "/borrower-nfts?address="+apiBorrower, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("results = %v", body)
	}
	entry := results[0].(map[string]any)
	if entry["message"] != "NFT not found" {
		t.Errorf("entry = %v, want the not-found sentinel", entry)
	}
	if _, hasTokens := entry["tokens"]; hasTokens {
		t.Error("zero-balance contract should not list tokens")
	}
}

func TestBorrowerNFTs_RequiresAddress(t *testing.T) {
	h := newAPIHarness(t)
	resp, _ := h.do(t, http.MethodGet, "/borrower-nfts", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestBalance(t *testing.T) {
	h := newAPIHarness(t)

	balData, err := ethereum.EncodeCall("balanceOf(address)", apiBorrower)
	if err != nil {
		t.Fatal(err)
	}
	h.rpc.StubUint(apiUSDCContract, balData, big.NewInt(12_500_000))

	resp, body := h.do(t, http.MethodGet, "/balance?address="+apiBorrower, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["balance"] != "12.5" {
		t.Errorf("balance = %v, want 12.5", body["balance"])
	}
	if body["address"] != apiBorrower {
		t.Errorf("address = %v, want normalized %s", body["address"], apiBorrower)
	}
}

func TestBalance_DoesNotRebindSession(t *testing.T) {
	h := newAPIHarness(t)
	other := "0x6666666666666666666666666666666666666666"

	connBal, err := ethereum.EncodeCall("balanceOf(address)", apiBorrower)
	if err != nil {
		t.Fatal(err)
	}
	h.rpc.StubUint(apiUSDCContract, connBal, big.NewInt(100_000_000))
	otherBal, err := ethereum.EncodeCall("balanceOf(address)", other)
	if err != nil {
		t.Fatal(err)
	}
	h.rpc.StubUint(apiUSDCContract, otherBal, big.NewInt(5_000_000))

	if err := h.session.Connect(context.Background(), apiBorrower); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	resp, body := h.do(t, http.MethodGet, "/balance?address="+other, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["balance"] != "5" {
		t.Errorf("balance = %v, want 5", body["balance"])
	}

	// The connected wallet is untouched by the read.
	if h.session.Address() != apiBorrower {
		t.Errorf("session address = %s, want %s", h.session.Address(), apiBorrower)
	}
	bal, err := h.session.Balance()
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !bal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("connected balance = %s, want 100", bal)
	}
}

func TestBorrow(t *testing.T) {
	h := newAPIHarness(t)

	for _, hash := range []string{"0xb1", "0xb2", "0xb3"} {
		h.rpc.StubSend(hash, nil)
		h.rpc.StubReceipt(hash, &ethereum.Receipt{TxHash: hash, Status: 1, BlockNumber: 1})
	}

	resp, body := h.do(t, http.MethodPost, "/loan/borrow", map[string]any{
		"borrower":         apiBorrower,
		"contractAddress":  apiNFTContract,
		"tokenId":          "42",
		"credentialTypeId": "ct-degree",
		"institution":      "MIT",
		"amount":           "50",
		"duration":         30,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["status"] != string(domain.LoanStatusActive) {
		t.Errorf("status = %v, want ACTIVE", body["status"])
	}
	if body["txHash"] != "0xb3" {
		t.Errorf("txHash = %v, want 0xb3", body["txHash"])
	}
	if body["loanAmount"] != "50" {
		t.Errorf("loanAmount = %v, want 50", body["loanAmount"])
	}

	if len(h.rpc.SentTxs) != 3 {
		t.Fatalf("sent %d transactions, want approve, lock, create", len(h.rpc.SentTxs))
	}
	loans, err := h.loans.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(loans) != 1 {
		t.Fatalf("persisted %d loans, want 1", len(loans))
	}
	creds, err := h.credentials.ListByUser(context.Background(), apiBorrower)
	if err != nil {
		t.Fatal(err)
	}
	if len(creds) != 1 {
		t.Fatalf("persisted %d credentials, want 1", len(creds))
	}
}

func TestBorrow_MissingFields(t *testing.T) {
	h := newAPIHarness(t)
	resp, _ := h.do(t, http.MethodPost, "/loan/borrow", map[string]any{
		"borrower": apiBorrower,
		"amount":   "50",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestBorrow_UnknownCredentialType(t *testing.T) {
	h := newAPIHarness(t)
	resp, body := h.do(t, http.MethodPost, "/loan/borrow", map[string]any{
		"borrower":         apiBorrower,
		"contractAddress":  apiNFTContract,
		"tokenId":          "42",
		"credentialTypeId": "ct-missing",
		"amount":           "50",
		"duration":         30,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestBorrow_UserRejection(t *testing.T) {
	h := newAPIHarness(t)

	h.rpc.StubSend("", errors.New("MetaMask Tx Signature: User denied transaction signature."))

	resp, body := h.do(t, http.MethodPost, "/loan/borrow", map[string]any{
		"borrower":         apiBorrower,
		"contractAddress":  apiNFTContract,
		"tokenId":          "42",
		"credentialTypeId": "ct-degree",
		"amount":           "50",
		"duration":         30,
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["error"] != string(borrow.TxErrorRejected) {
		t.Errorf("error = %v, want %s", body["error"], borrow.TxErrorRejected)
	}

	loans, err := h.loans.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(loans) != 0 {
		t.Errorf("persisted %d loans after rejection, want 0", len(loans))
	}
}

func TestLockNFT(t *testing.T) {
	h := newAPIHarness(t)

	h.rpc.StubSend("0xlock", nil)
	h.rpc.StubReceipt("0xlock", &ethereum.Receipt{TxHash: "0xlock", Status: 1})

	resp, body := h.do(t, http.MethodPost, "/nft/lock", map[string]any{
		"contractAddress": apiNFTContract,
		"tokenId":         "42",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["txHash"] != "0xlock" {
		t.Errorf("txHash = %v", body["txHash"])
	}

	resp, _ = h.do(t, http.MethodPost, "/nft/lock", map[string]any{
		"contractAddress": apiNFTContract,
		"tokenId":         "not-a-number",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid token id status = %d", resp.StatusCode)
	}
}

func TestDepositUSDC(t *testing.T) {
	h := newAPIHarness(t)

	// approve then depositUSDC
	h.rpc.StubSend("0xapprove", nil)
	h.rpc.StubReceipt("0xapprove", &ethereum.Receipt{TxHash: "0xapprove", Status: 1})
	h.rpc.StubSend("0xdeposit", nil)
	h.rpc.StubReceipt("0xdeposit", &ethereum.Receipt{TxHash: "0xdeposit", Status: 1})

	resp, body := h.do(t, http.MethodPost, "/usdc/deposit", map[string]any{"amount": "100"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["txHash"] != "0xdeposit" {
		t.Errorf("txHash = %v, want the deposit hash", body["txHash"])
	}
	if len(h.rpc.SentTxs) != 2 {
		t.Fatalf("sent %d transactions, want approve then deposit", len(h.rpc.SentTxs))
	}
	if h.rpc.SentTxs[0].To != apiUSDCContract || h.rpc.SentTxs[1].To != apiLoanContract {
		t.Errorf("tx targets = %s, %s", h.rpc.SentTxs[0].To, h.rpc.SentTxs[1].To)
	}

	resp, _ = h.do(t, http.MethodPost, "/usdc/deposit", map[string]any{"amount": "-1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative amount status = %d", resp.StatusCode)
	}
}
