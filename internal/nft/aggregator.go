package nft

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"nftcred/internal/domain"
	"nftcred/internal/ethereum"
	"nftcred/internal/metadata"
)

var errRevert = errors.New("call reverted")

const (
	// DefaultBatchSize is how many contracts are scanned per batch.
	DefaultBatchSize = 10

	// DefaultBatchDelay separates consecutive batches to stay under
	// provider rate limits.
	DefaultBatchDelay = 1 * time.Second

	// metadataWorkers bounds concurrent metadata fetches per contract.
	metadataWorkers = 4

	// maxEnumerableTokens caps tokens read per contract per owner.
	maxEnumerableTokens = 256
)

// Aggregator discovers the NFTs a wallet owns across a set of
// registered contracts. Enumerable contracts are read by index through
// multicall batches; non-enumerable contracts fall back to a Transfer
// log scan filtered by a current ownerOf check.
type Aggregator struct {
	erc721     *ethereum.ERC721
	multicall  *ethereum.Multicall
	client     ethereum.RPCClient
	resolver   *metadata.Resolver
	logger     *zap.Logger
	batchSize  int
	batchDelay time.Duration

	// sleep is swappable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	Client    ethereum.RPCClient
	Multicall *ethereum.Multicall
	Resolver  *metadata.Resolver
	Logger    *zap.Logger
	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
	// BatchDelay overrides DefaultBatchDelay when positive.
	BatchDelay time.Duration
}

// NewAggregator creates an ownership aggregator.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batchDelay := opts.BatchDelay
	if batchDelay <= 0 {
		batchDelay = DefaultBatchDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mc := opts.Multicall
	if mc == nil {
		mc = ethereum.NewMulticall(opts.Client, "")
	}
	return &Aggregator{
		erc721:     ethereum.NewERC721(opts.Client),
		multicall:  mc,
		client:     opts.Client,
		resolver:   opts.Resolver,
		logger:     logger,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ScanOwner returns one result per contract, in input order. A failing
// contract is isolated in its own result; the scan continues.
func (a *Aggregator) ScanOwner(ctx context.Context, owner string, contracts []string) ([]domain.ContractResult, error) {
	owner = domain.NormalizeAddress(owner)
	results := make([]domain.ContractResult, len(contracts))
	for i, contract := range contracts {
		results[i] = domain.ContractResult{ContractAddress: domain.NormalizeAddress(contract)}
	}

	for start := 0; start < len(results); start += a.batchSize {
		if start > 0 {
			if err := a.sleep(ctx, a.batchDelay); err != nil {
				return nil, err
			}
		}
		end := start + a.batchSize
		if end > len(results) {
			end = len(results)
		}
		if err := a.scanBatch(ctx, owner, results[start:end]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// scanBatch reads balances for a batch in one multicall, then walks
// each contract with a nonzero balance.
func (a *Aggregator) scanBatch(ctx context.Context, owner string, batch []domain.ContractResult) error {
	calls := make([]ethereum.Call, len(batch))
	for i, r := range batch {
		call, err := ethereum.BalanceOfCall(r.ContractAddress, owner)
		if err != nil {
			batch[i].Err = err
			continue
		}
		calls[i] = call
	}

	balances, err := a.multicall.Aggregate(ctx, calls)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Batch-level failure marks every contract in the batch
		for i := range batch {
			if batch[i].Err == nil {
				batch[i].Err = err
			}
		}
		return nil
	}

	for i := range batch {
		if batch[i].Err != nil {
			continue
		}
		if !balances[i].Success {
			// balanceOf reverted; the contract may not be ERC-721 at all
			a.logger.Warn("balanceOf failed, skipping contract",
				zap.String("contract", batch[i].ContractAddress))
			batch[i].Err = &ethereum.ChainReadError{
				Op:      "balanceOf",
				Address: batch[i].ContractAddress,
				Err:     errRevert,
			}
			continue
		}
		balance, err := ethereum.DecodeUint256(balances[i].ReturnData)
		if err != nil {
			batch[i].Err = err
			continue
		}
		if balance.Sign() == 0 {
			continue
		}

		tokens, err := a.scanContract(ctx, owner, batch[i].ContractAddress, balance)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			batch[i].Err = err
			continue
		}
		batch[i].Tokens = tokens
	}
	return nil
}

// scanContract enumerates the owner's tokens of one contract and
// resolves their metadata.
func (a *Aggregator) scanContract(ctx context.Context, owner, contract string, balance *big.Int) ([]domain.OwnedToken, error) {
	count := int(balance.Int64())
	if count > maxEnumerableTokens {
		count = maxEnumerableTokens
	}

	var (
		tokenIDs []*big.Int
		err      error
	)
	enumerable, enumErr := a.erc721.SupportsEnumerable(ctx, contract)
	if enumErr == nil && enumerable {
		tokenIDs, err = a.enumerateByIndex(ctx, owner, contract, count)
	} else {
		tokenIDs, err = a.scanTransferLogs(ctx, owner, contract)
	}
	if err != nil {
		return nil, err
	}
	if len(tokenIDs) == 0 {
		return nil, nil
	}

	uris, err := a.fetchTokenURIs(ctx, contract, tokenIDs)
	if err != nil {
		return nil, err
	}

	return a.resolveTokens(ctx, contract, tokenIDs, uris)
}

// enumerateByIndex reads tokenOfOwnerByIndex for indexes [0, count) in
// one multicall batch.
func (a *Aggregator) enumerateByIndex(ctx context.Context, owner, contract string, count int) ([]*big.Int, error) {
	calls := make([]ethereum.Call, count)
	for i := 0; i < count; i++ {
		call, err := ethereum.TokenOfOwnerByIndexCall(contract, owner, big.NewInt(int64(i)))
		if err != nil {
			return nil, err
		}
		calls[i] = call
	}

	results, err := a.multicall.Aggregate(ctx, calls)
	if err != nil {
		return nil, err
	}

	tokenIDs := make([]*big.Int, 0, count)
	for i, r := range results {
		if !r.Success {
			a.logger.Debug("tokenOfOwnerByIndex failed",
				zap.String("contract", contract),
				zap.Int("index", i))
			continue
		}
		id, err := ethereum.DecodeUint256(r.ReturnData)
		if err != nil {
			return nil, err
		}
		tokenIDs = append(tokenIDs, id)
	}
	return tokenIDs, nil
}

// scanTransferLogs collects token IDs ever transferred to the owner,
// then keeps only those the owner still holds.
func (a *Aggregator) scanTransferLogs(ctx context.Context, owner, contract string) ([]*big.Int, error) {
	ownerTopic := "0x" + zeroPad24 + owner[2:]
	logs, err := a.client.GetLogs(ctx, ethereum.LogFilter{
		Address:   contract,
		Topics:    []string{ethereum.EventTopic(ethereum.TransferEventSig), "", ownerTopic},
		FromBlock: "earliest",
		ToBlock:   "latest",
	})
	if err != nil {
		return nil, &ethereum.ChainReadError{Op: "getLogs", Address: contract, Err: err}
	}

	seen := make(map[string]*big.Int)
	for _, log := range logs {
		if len(log.Topics) < 4 {
			continue
		}
		id, err := ethereum.TopicToBig(log.Topics[3])
		if err != nil {
			continue
		}
		seen[id.String()] = id
	}

	candidates := make([]*big.Int, 0, len(seen))
	for _, id := range seen {
		candidates = append(candidates, id)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Cmp(candidates[j]) < 0 })

	// Transfers out are not tracked above, so confirm current ownership.
	tokenIDs := make([]*big.Int, 0, len(candidates))
	for _, id := range candidates {
		current, err := a.erc721.OwnerOf(ctx, contract, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Burned or revert; not owned anymore
			continue
		}
		if current == owner {
			tokenIDs = append(tokenIDs, id)
		}
	}
	return tokenIDs, nil
}

const zeroPad24 = "000000000000000000000000"

// fetchTokenURIs reads the tokenURI of each token in one multicall.
// A token whose tokenURI call fails yields an empty string and is
// dropped downstream.
func (a *Aggregator) fetchTokenURIs(ctx context.Context, contract string, tokenIDs []*big.Int) ([]string, error) {
	calls := make([]ethereum.Call, len(tokenIDs))
	for i, id := range tokenIDs {
		call, err := ethereum.TokenURICall(contract, id)
		if err != nil {
			return nil, err
		}
		calls[i] = call
	}

	results, err := a.multicall.Aggregate(ctx, calls)
	if err != nil {
		return nil, err
	}

	uris := make([]string, len(tokenIDs))
	for i, r := range results {
		if !r.Success {
			continue
		}
		uri, err := ethereum.DecodeString(r.ReturnData)
		if err != nil {
			continue
		}
		uris[i] = uri
	}
	return uris, nil
}

// resolveTokens fetches metadata with bounded concurrency. Tokens whose
// metadata cannot be resolved are dropped; token ID order is preserved.
func (a *Aggregator) resolveTokens(ctx context.Context, contract string, tokenIDs []*big.Int, uris []string) ([]domain.OwnedToken, error) {
	resolved := make([]domain.TokenMetadata, len(tokenIDs))

	sem := make(chan struct{}, metadataWorkers)
	var wg sync.WaitGroup
	for i := range tokenIDs {
		if uris[i] == "" {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			meta, err := a.resolver.Resolve(ctx, uris[i])
			if err != nil {
				return
			}
			resolved[i] = meta
		}(i)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	tokens := make([]domain.OwnedToken, 0, len(tokenIDs))
	for i, id := range tokenIDs {
		if resolved[i] == nil {
			a.logger.Debug("dropping token without metadata",
				zap.String("contract", contract),
				zap.String("token_id", id.String()))
			continue
		}
		tokens = append(tokens, domain.OwnedToken{
			ContractAddress: contract,
			TokenID:         id.String(),
			Metadata:        resolved[i],
		})
	}
	return tokens, nil
}
