// Package main runs the lending backend: HTTP API, chain access,
// persistent stores and the pool-balance sampling loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nftcred/internal/api"
	"nftcred/internal/borrow"
	"nftcred/internal/config"
	"nftcred/internal/domain"
	"nftcred/internal/ethereum"
	"nftcred/internal/loan"
	"nftcred/internal/metadata"
	"nftcred/internal/nft"
	"nftcred/internal/observability"
	"nftcred/internal/storage"
	chstore "nftcred/internal/storage/clickhouse"
	"nftcred/internal/storage/memory"
	"nftcred/internal/storage/migrations"
	pgstore "nftcred/internal/storage/postgres"
	"nftcred/internal/wallet"
)

type stores struct {
	collections     storage.CollectionStore
	credentialTypes storage.CredentialTypeStore
	platformConfig  storage.PlatformConfigStore
	credentials     storage.CredentialStore
	loans           storage.LoanStore
	poolSnapshots   storage.PoolSnapshotStore
	loanEvents      storage.LoanEventStore
}

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	client := ethereum.NewHTTPClient(cfg.RPCURL)

	var ws *ethereum.WSClient
	if cfg.WSURL != "" {
		ws, err = ethereum.NewWSClient(ctx, cfg.WSURL, nil)
		if err != nil {
			logger.Warn("websocket unavailable, confirmations will poll", zap.Error(err))
			ws = nil
		} else {
			defer ws.Close()
		}
	}

	confirmer := ethereum.NewConfirmer(client)
	if ws != nil {
		confirmer = confirmer.WithHeads(ws)
	}

	var cache metadata.Cache
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		cache = metadata.NewRedisCache(rdb, time.Duration(cfg.MetadataCacheTTLHours)*time.Hour)
	}

	resolver := metadata.NewResolver(metadata.ResolverOptions{
		Cache:  cache,
		Logger: logger.Named("metadata"),
	})

	aggregator := nft.NewAggregator(nft.AggregatorOptions{
		Client:    client,
		Multicall: ethereum.NewMulticall(client, cfg.MulticallAddress),
		Resolver:  resolver,
		Logger:    logger.Named("nft"),
	})

	estimator := loan.NewEstimator(loan.EstimatorOptions{
		Collections:     st.collections,
		CredentialTypes: st.credentialTypes,
		PlatformConfig:  st.platformConfig,
		Client:          client,
		USDCContract:    cfg.USDCContract,
		LoanContract:    cfg.LoanContract,
	})

	signer := ethereum.NewNodeSigner(client, domain.NormalizeAddress(cfg.SignerAddress))
	depositor := loan.NewDepositor(loan.DepositorOptions{
		Signer:       signer,
		Confirmer:    confirmer,
		USDCContract: cfg.USDCContract,
		LoanContract: cfg.LoanContract,
		Logger:       logger.Named("deposit"),
	})
	locker := api.NewLocker(signer, confirmer, cfg.LoanContract, logger.Named("lock"))

	session := wallet.NewSession(client, cfg.USDCContract)

	borrowStores := borrow.Stores{
		Credentials:     st.credentials,
		CredentialTypes: st.credentialTypes,
		Loans:           st.loans,
		LoanEvents:      st.loanEvents,
	}
	newBorrow := func() *borrow.Orchestrator {
		return borrow.NewOrchestrator(borrow.OrchestratorOptions{
			Estimator:    estimator,
			Signer:       signer,
			Confirmer:    confirmer,
			Stores:       borrowStores,
			LoanContract: cfg.LoanContract,
			Logger:       logger.Named("borrow"),
			OnComplete: func(ctx context.Context) {
				if _, err := session.RefreshBalance(ctx); err != nil && !errors.Is(err, wallet.ErrNotConnected) {
					logger.Warn("balance refresh after borrow failed", zap.Error(err))
				}
			},
		})
	}

	handlers := api.NewHandlers(api.HandlersOptions{
		Logger:      logger.Named("api"),
		Collections: st.collections,
		Credentials: st.credentials,
		Loans:       st.loans,
		Aggregator:  aggregator,
		Estimator:   estimator,
		Depositor:   depositor,
		Locker:      locker,
		Session:     session,
		NewBorrow:   newBorrow,
	})

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: api.NewRouter(handlers),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if cfg.PoolSnapshotIntervalSec > 0 {
		go snapshotLoop(ctx, logger.Named("snapshots"), estimator, client, st.poolSnapshots,
			time.Duration(cfg.PoolSnapshotIntervalSec)*time.Second)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStores wires either the Postgres/ClickHouse stack or the
// in-memory stack, running migrations as needed.
func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, func(), error) {
	if cfg.UseMemory {
		logger.Info("using in-memory storage")
		return &stores{
			collections:     memory.NewCollectionStore(),
			credentialTypes: memory.NewCredentialTypeStore(),
			platformConfig:  memory.NewPlatformConfigStore(),
			credentials:     memory.NewCredentialStore(),
			loans:           memory.NewLoanStore(),
			poolSnapshots:   memory.NewPoolSnapshotStore(),
			loanEvents:      memory.NewLoanEventStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	st := &stores{
		collections:     pgstore.NewCollectionStore(pool),
		credentialTypes: pgstore.NewCredentialTypeStore(pool),
		platformConfig:  pgstore.NewPlatformConfigStore(pool),
		credentials:     pgstore.NewCredentialStore(pool),
		loans:           pgstore.NewLoanStore(pool),
	}
	cleanup := func() { pool.Close() }

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.poolSnapshots = chstore.NewPoolSnapshotStore(conn)
		st.loanEvents = chstore.NewLoanEventStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	} else {
		logger.Info("clickhouse not configured, analytics kept in memory")
		st.poolSnapshots = memory.NewPoolSnapshotStore()
		st.loanEvents = memory.NewLoanEventStore()
	}
	return st, cleanup, nil
}

// snapshotLoop samples the pool balance on a fixed cadence and records
// it for analytics.
func snapshotLoop(ctx context.Context, logger *zap.Logger, estimator *loan.Estimator,
	client ethereum.RPCClient, store storage.PoolSnapshotStore, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		balance, err := estimator.PoolBalance(ctx)
		if err != nil {
			logger.Warn("pool balance read failed", zap.Error(err))
			continue
		}
		block, err := client.BlockNumber(ctx)
		if err != nil {
			logger.Warn("block number read failed", zap.Error(err))
			continue
		}

		f, _ := balance.Float64()
		observability.UpdatePoolBalance(f)

		point := &domain.PoolSnapshot{
			TimestampMs: time.Now().UnixMilli(),
			Balance:     f,
			BlockNumber: block,
		}
		if err := store.InsertBulk(ctx, []*domain.PoolSnapshot{point}); err != nil {
			logger.Warn("snapshot insert failed", zap.Error(err))
		}
	}
}
