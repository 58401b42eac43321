// Package main runs the API server: ledger stores, chain clients, the buy/sell
// saga, withdrawals, deposits, ETF listing and the reconciliation sweeper.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"memeetf/internal/api"
	"memeetf/internal/bundle"
	"memeetf/internal/config"
	"memeetf/internal/confirm"
	"memeetf/internal/custody"
	"memeetf/internal/deposit"
	"memeetf/internal/domain"
	"memeetf/internal/etf"
	"memeetf/internal/investment"
	"memeetf/internal/jupiter"
	"memeetf/internal/logging"
	"memeetf/internal/marketdata"
	"memeetf/internal/observability"
	"memeetf/internal/reconcile"
	"memeetf/internal/solana"
	"memeetf/internal/storage"
	chstore "memeetf/internal/storage/clickhouse"
	"memeetf/internal/storage/memory"
	"memeetf/internal/storage/migrations"
	pgstore "memeetf/internal/storage/postgres"
	"memeetf/internal/swap"
	"memeetf/internal/withdrawal"
)

const shutdownTimeout = 30 * time.Second

// allStores holds the storage implementations.
type allStores struct {
	ledger       storage.LedgerStore
	transactions storage.TransactionStore
	etfs         storage.ETFStore
	investments  storage.InvestmentStore
	fees         storage.FeeStore
	fills        storage.SwapFillSink
}

func main() {
	configPath := flag.String("config", os.Getenv("MEMEETF_CONFIG"), "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, "memeetf", string(cfg.Network))
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatalw("server error", "error", err)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(cfg.MetricsPrefix, reg)

	stores, cleanup, err := createStores(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL,
		solana.WithTimeout(cfg.Solana.Timeout),
		solana.WithMaxRetries(cfg.Solana.MaxRetries),
	)

	verifierOpts := []confirm.Option{
		confirm.WithTimeout(cfg.Confirm.Timeout),
		confirm.WithPollInterval(cfg.Confirm.PollInterval),
		confirm.WithLogger(log),
	}
	if cfg.Solana.WSURL != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = log
		ws, err := solana.NewWSClient(ctx, cfg.Solana.WSURL, &wsCfg)
		if err != nil {
			// polling still confirms
			log.Warnw("websocket unavailable, confirmations will poll", "error", err)
		} else {
			defer ws.Close()
			verifierOpts = append(verifierOpts, confirm.WithSubscriber(ws))
		}
	}
	verifier := confirm.NewVerifier(rpc, verifierOpts...)

	signer, err := custody.LoadSigner(cfg.Custody.EncryptedKey, cfg.Custody.Passphrase, rpc, log)
	if err != nil {
		return fmt.Errorf("load custody key: %w", err)
	}
	log.Infow("custody wallet loaded", "address", signer.Address())

	market := newMarketData(cfg.MarketData, log)
	jup := jupiter.NewClient(cfg.Swap.JupiterURL, jupiter.WithTimeout(cfg.Swap.Timeout))

	var executor swap.Executor
	switch cfg.Network {
	case domain.NetworkMainnet:
		executor = swap.NewAggregatorExecutor(jup, signer, verifier, rpc, log)
	default:
		executor = swap.NewSimulatedExecutor(cfg.Swap.SubstituteMint, cfg.Swap.AvailableMints, log)
	}

	orchestrator := investment.NewOrchestrator(investment.OrchestratorOptions{
		Executor:    executor,
		SwapTimeout: cfg.Swap.Timeout,
		SlippageBps: cfg.Swap.SlippageBps,
		Metrics:     metrics,
		Logger:      log,
	})
	compensator := investment.NewCompensator(investment.CompensatorOptions{
		Ledger:       stores.ledger,
		Transactions: stores.transactions,
		Attempts:     cfg.Reconcile.RefundAttempts,
		Metrics:      metrics,
		Logger:       log,
	})
	investments, err := investment.NewService(investment.Options{
		Ledger:       stores.ledger,
		Transactions: stores.transactions,
		ETFs:         stores.etfs,
		Investments:  stores.investments,
		Orchestrator: orchestrator,
		Network:      cfg.Network,
		Fills:        stores.fills,
		Compensator:  compensator,
		MarketData:   market,
		Metrics:      metrics,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("create investment service: %w", err)
	}

	withdrawals, err := withdrawal.NewService(withdrawal.Options{
		Ledger:       stores.ledger,
		Transactions: stores.transactions,
		Custody:      signer,
		Chain:        rpc,
		Confirmer:    verifier,
		Network:      cfg.Network,
		Metrics:      metrics,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("create withdrawal service: %w", err)
	}

	deposits, err := deposit.NewService(deposit.Options{
		Ledger:         stores.ledger,
		Transactions:   stores.transactions,
		Chain:          rpc,
		Confirmer:      verifier,
		CustodyAddress: signer.Address(),
		Network:        cfg.Network,
		Metrics:        metrics,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("create deposit service: %w", err)
	}

	listings, err := etf.NewService(etf.Options{
		Ledger:       stores.ledger,
		ETFs:         stores.etfs,
		Fees:         stores.fees,
		Transactions: stores.transactions,
		Verifier:     verifier,
		Custody:      signer,
		MarketData:   market,
		ProgramID:    cfg.Solana.ProgramID,
		Network:      cfg.Network,
		Metrics:      metrics,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("create etf service: %w", err)
	}

	builder, err := bundle.NewBuilder(bundle.Options{
		Chain:          rpc,
		Quoter:         jup,
		ProgramID:      cfg.Solana.ProgramID,
		PlatformWallet: cfg.PlatformWallet,
		Network:        cfg.Network,
		SlippageBps:    cfg.Swap.SlippageBps,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("create bundle builder: %w", err)
	}

	sweeper, err := reconcile.NewSweeper(
		reconcile.NewService(stores.transactions, metrics, log),
		cfg.Reconcile.SweepInterval,
	)
	if err != nil {
		return err
	}
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	router := api.NewRouter(api.Options{
		Investments: investments,
		Bundles:     builder,
		Withdrawals: withdrawals,
		Deposits:    deposits,
		Listings:    listings,
		ETFs:        stores.etfs,
		Users:       stores.ledger,
		Network:     cfg.Network,
		Gatherer:    reg,
		Metrics:     metrics,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received, draining requests")
	}

	// drain in-flight sagas
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// createStores opens Postgres (+ optional ClickHouse fill sink) or the
// in-memory stores.
func createStores(ctx context.Context, cfg config.StorageConfig, log *zap.SugaredLogger) (*allStores, func(), error) {
	if cfg.UseMemory {
		log.Warn("using in-memory storage, balances are lost on restart")
		db := memory.NewDB()
		return &allStores{
			ledger:       memory.NewLedgerStore(db),
			transactions: memory.NewTransactionStore(db),
			etfs:         memory.NewETFStore(db),
			investments:  memory.NewInvestmentStore(db),
			fees:         memory.NewFeeStore(db),
			fills:        memory.NewSwapFillStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &allStores{
		ledger:       pgstore.NewLedgerStore(pool),
		transactions: pgstore.NewTransactionStore(pool),
		etfs:         pgstore.NewETFStore(pool),
		investments:  pgstore.NewInvestmentStore(pool),
		fees:         pgstore.NewFeeStore(pool),
	}
	cleanup := func() { pool.Close() }

	if cfg.ClickhouseDSN == "" {
		stores.fills = memory.NewSwapFillStore()
		return stores, cleanup, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	stores.fills = chstore.NewSwapFillStore(conn)
	return stores, func() {
		_ = conn.Close()
		pool.Close()
	}, nil
}

// newMarketData returns the price source, cached in redis when configured.
func newMarketData(cfg config.MarketDataConfig, log *zap.SugaredLogger) marketdata.Source {
	src := marketdata.NewDexScreener(cfg.URL, cfg.Timeout)
	if cfg.RedisAddr == "" {
		return src
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	return marketdata.NewCachedSource(src, client, cfg.CacheTTL, "", log)
}
