// Fraudwatch - Transaction risk scoring and blacklist recommendations.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/fraudwatch/internal/api"
	"github.com/opensource-finance/fraudwatch/internal/blacklist"
	"github.com/opensource-finance/fraudwatch/internal/bus"
	"github.com/opensource-finance/fraudwatch/internal/cache"
	"github.com/opensource-finance/fraudwatch/internal/config"
	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/metrics"
	"github.com/opensource-finance/fraudwatch/internal/recipient"
	"github.com/opensource-finance/fraudwatch/internal/repository"
	"github.com/opensource-finance/fraudwatch/internal/rules"
	"github.com/opensource-finance/fraudwatch/internal/scoring"
	"github.com/opensource-finance/fraudwatch/internal/velocity"
	"github.com/opensource-finance/fraudwatch/internal/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Getenv("FRAUDWATCH_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(config.NewLogger(os.Stdout, cfg.Logging))

	slog.Info("starting fraudwatch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Spans go to whatever provider the process registers; disabled tracing
	// pins the no-op provider.
	if !cfg.Tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	} else {
		slog.Info("tracing enabled", "service_name", cfg.Tracing.ServiceName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fraudwatch stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("fraudwatch shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	m := metrics.New()

	engine, err := rules.NewEngine()
	if err != nil {
		return fmt.Errorf("initialize rule engine: %w", err)
	}

	policy := cfg.Engine.Policy()
	ruleStore := rules.NewStore(repo, cacheImpl, busImpl, policy, cfg.Engine.SnapshotTTL)
	registry := blacklist.NewRegistry(repo, busImpl, m)
	thresholds := blacklist.NewThresholdStore(repo)
	aggregator := recipient.NewAggregator(repo, cfg.Engine.FraudCategories, cfg.Engine.AggregateTimeout, m)
	recommendations := blacklist.NewService(repo, aggregator, registry, thresholds, m, cfg.Engine.RecommendationWorkers, cfg.Engine.AggregateTimeout)
	evaluator := scoring.NewEvaluator(repo, ruleStore, velocity.NewService(repo), registry, scoring.NewProcessor(engine), busImpl, m)

	slog.Info("scoring engine initialized",
		"blacklist_bonus", policy.BlacklistBonus,
		"medium_from", policy.MediumFrom,
		"high_from", policy.HighFrom,
	)

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, evaluator)
		if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Worker.TenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:            repo,
		Cache:           cacheImpl,
		Bus:             busImpl,
		Worker:          asyncWorker,
		Evaluator:       evaluator,
		Rules:           ruleStore,
		Registry:        registry,
		Recommendations: recommendations,
		Thresholds:      thresholds,
		Version:         Version,
	}, m)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("fraudwatch is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	// Stop consuming before the stores close.
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return serveErr
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |               FRAUDWATCH                  |")
	fmt.Println("  |   Risk scoring and blacklist curation     |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /transactions                       - Record and score a transaction")
	fmt.Println("    POST /transactions/{id}/evaluate         - Re-score a stored transaction")
	fmt.Println("    GET  /assessments/{txId}                 - Get the assessment of a transaction")
	fmt.Println("    GET  /rules, POST /rules                 - List or save rules")
	fmt.Println("    GET  /rules/snapshot                     - Active rule snapshot")
	fmt.Println("    GET  /recommendations                    - Blacklist recommendations")
	fmt.Println("    POST /recommendations/{id}/promote       - Blacklist a recommended recipient")
	fmt.Println("    GET  /blacklist, POST /blacklist         - Manage the blacklist")
	fmt.Println("    GET  /blacklist/thresholds               - Recommendation thresholds")
	fmt.Println("    GET  /health, /ready, /metrics           - Operations")
	fmt.Println()
}
