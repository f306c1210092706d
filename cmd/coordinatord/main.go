// Copyright 2025 Certen Protocol
//
// coordinatord is the chain coordinator's service entrypoint: it wires
// the three Postgres-backed stores, the reward-cycle collaborators, the
// event bus, and the Coordinator event loop, then serves a Prometheus
// metrics endpoint and a JSON health endpoint alongside it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/chain-coordinator/pkg/burnchaindb"
	"github.com/certen/chain-coordinator/pkg/config"
	"github.com/certen/chain-coordinator/pkg/coordinator"
	"github.com/certen/chain-coordinator/pkg/database"
	"github.com/certen/chain-coordinator/pkg/eventbus"
	"github.com/certen/chain-coordinator/pkg/hostchaindb"
	"github.com/certen/chain-coordinator/pkg/rewardcycle"
	"github.com/certen/chain-coordinator/pkg/sortitiondb"
)

func main() {
	var showHelp = flag.Bool("help", false, "Show help message")
	flag.Parse()
	if *showHelp {
		printHelp()
		return
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger.Info("starting chain coordinator")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	epochs, err := config.LoadEpochTable(cfg.EpochConfigPath)
	if err != nil {
		logger.Error("failed to load epoch table", "err", err)
		os.Exit(1)
	}
	logger.Info("loaded epoch table", "epochs", len(epochs))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sortitionStore, err := openSortitionStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect sortition database", "err", err)
		os.Exit(1)
	}
	burnchainStore, err := openBurnchainStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect burnchain database", "err", err)
		os.Exit(1)
	}
	hostchainStore, err := openHostChainStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect host chain database", "err", err)
		os.Exit(1)
	}

	selector := burnchaindb.Selector{Store: burnchainStore}
	checker := hostchaindb.Checker{Store: hostchainStore}
	rewardSets := rewardcycle.NoStackingRewardSetProvider{}
	slots := rewardcycle.FixedNumRewardSlots(cfg.NumRewardSlots)

	bus := eventbus.New(cfg.AttachmentBufferSize)

	// No external RPC/mining dispatcher is wired in this deployment;
	// Notifier still forwards attachments onto the event bus on its own.
	notifier := &coordinator.Notifier{
		Bus: bus,
	}

	coord, err := coordinator.New(
		coordinator.Config{Epochs: epochs, IBDHeightThreshold: cfg.IBDHeightThreshold},
		sortitionStore,
		burnchainStore,
		hostchainStore,
		selector,
		checker,
		rewardSets,
		slots,
		bus,
		notifier,
		logger,
	)
	if err != nil {
		logger.Error("failed to construct coordinator", "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(coord.Metrics().Collectors()...)

	stallMonitor := coordinator.NewStallMonitor(coordinator.StallMonitorConfig{
		StallThreshold: cfg.StallThreshold,
		CheckInterval:  cfg.StallCheckInterval,
	}, coord, logger)
	stallMonitor.SetOnStallDetected(func(height uint64, duration time.Duration) {
		logger.Error("sortition tip stalled", "height", height, "duration", duration)
	})
	stallMonitor.SetOnRecovery(func(height uint64) {
		logger.Info("sortition tip recovered", "height", height)
	})
	if err := stallMonitor.Start(); err != nil {
		logger.Error("failed to start stall monitor", "err", err)
		os.Exit(1)
	}
	defer stallMonitor.Stop()

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		logger.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := stallMonitor.GetStatus()
		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(status)
	})
	healthServer := &http.Server{
		Addr:    cfg.HealthAddr,
		Handler: healthMux,
	}
	go func() {
		logger.Info("health endpoint listening", "addr", cfg.HealthAddr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", "err", err)
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- coord.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			logger.Error("coordinator event loop exited", "err", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "err", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", "err", err)
	}

	logger.Info("chain coordinator stopped")
}

func openSortitionStore(ctx context.Context, cfg *config.Config, logger cmtlog.Logger) (*sortitiondb.PostgresStore, error) {
	client, err := database.NewClient(ctx, database.Options{
		DSN:             cfg.SortitionDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	store := sortitiondb.NewPostgresStore(client)
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate sortition store: %w", err)
	}
	return store, nil
}

func openBurnchainStore(ctx context.Context, cfg *config.Config, logger cmtlog.Logger) (*burnchaindb.PostgresStore, error) {
	client, err := database.NewClient(ctx, database.Options{
		DSN:             cfg.BurnchainDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	store := burnchaindb.NewPostgresStore(client)
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate burnchain store: %w", err)
	}
	return store, nil
}

func openHostChainStore(ctx context.Context, cfg *config.Config, logger cmtlog.Logger) (*hostchaindb.PostgresStore, error) {
	client, err := database.NewClient(ctx, database.Options{
		DSN:             cfg.HostChainDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	store := hostchaindb.NewPostgresStore(client)
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate host chain store: %w", err)
	}
	return store, nil
}

func printHelp() {
	fmt.Println("coordinatord - burnchain/host-chain reorg and affirmation coordinator")
	fmt.Println()
	fmt.Println("Configuration is read from environment variables:")
	fmt.Println("  SORTITION_DB_DSN        Postgres DSN for the sortition store (required)")
	fmt.Println("  BURNCHAIN_DB_DSN        Postgres DSN for the burnchain store (required)")
	fmt.Println("  HOSTCHAIN_DB_DSN        Postgres DSN for the host chain store (required)")
	fmt.Println("  EPOCH_CONFIG_PATH       Path to the epoch table YAML (default ./epochs.yaml)")
	fmt.Println("  NUM_REWARD_SLOTS        Fixed reward-set slot count (default 4000)")
	fmt.Println("  IBD_HEIGHT_THRESHOLD    Blocks behind burnchain tip before reorg engine resumes (default 144)")
	fmt.Println("  ATTACHMENT_BUFFER_SIZE  Event bus attachment channel size (default 256)")
	fmt.Println("  STALL_THRESHOLD         Stall-detection threshold (default 2m)")
	fmt.Println("  STALL_CHECK_INTERVAL    Stall-detection poll interval (default 10s)")
	fmt.Println("  METRICS_ADDR            Prometheus metrics listen address (default 0.0.0.0:9090)")
	fmt.Println("  HEALTH_ADDR             JSON health listen address (default 0.0.0.0:8081)")
}
