// Package main provides the Scorer worker entry point: consumes leads.raw,
// scores and persists each lead, republishes to leads.scored.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bishnubista/pipeline-whisperer/internal/adapter/circuitbreaker"
	"github.com/bishnubista/pipeline-whisperer/internal/adapter/queue/kafka"
	"github.com/bishnubista/pipeline-whisperer/internal/adapter/repo/postgres"
	"github.com/bishnubista/pipeline-whisperer/internal/adapter/scoring"
	"github.com/bishnubista/pipeline-whisperer/internal/config"
	"github.com/bishnubista/pipeline-whisperer/internal/domain"
	"github.com/bishnubista/pipeline-whisperer/internal/observability"
	"github.com/bishnubista/pipeline-whisperer/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+strconv.Itoa(cfg.MetricsPort), mux); err != nil {
			slog.Error("scorer metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg, cfg.ServiceName+"-scorer")
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting scorer worker", slog.String("env", cfg.AppEnv))

	if err := postgres.Migrate(cfg.DBURL); err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := postgres.NewPool(context.Background(), cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	leadRepo := postgres.NewLeadRepo(pool)

	var scoringClient scoring.Client
	heuristic := scoring.NewHeuristicClient(cfg.ScoringModelVer, nil)
	if cfg.ScoringConfigured() {
		_, initialDelay, maxDelay, multiplier := cfg.GetRetryConfig()
		breaker := circuitbreaker.New("scoring", cfg.CircuitFailureThreshold, cfg.CircuitRecoveryTimeout)
		scoringClient = scoring.NewRealClient(
			cfg.ScoringBaseURL, cfg.ScoringAPIKey, cfg.ScoringModel, cfg.ScoringTimeout,
			breaker, heuristic, cfg.RetryMaxRetries, initialDelay, maxDelay, multiplier,
		)
		slog.Info("scorer: using live scoring backend", slog.String("model", cfg.ScoringModel))
	} else {
		scoringClient = heuristic
		slog.Info("scorer: no scoring API key configured, using heuristic scorer")
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("kafka producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close kafka producer", slog.Any("error", err))
		}
	}()

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, "pipeline-scorer", []string{domain.TopicLeadsRaw}, cfg.PoisonMaxAttempts, producer)
	if err != nil {
		slog.Error("kafka consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close kafka consumer", slog.Any("error", err))
		}
	}()

	s := &worker.Scorer{Leads: leadRepo, Scoring: scoringClient, Publisher: producer}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		if err := consumer.Run(ctx, s.HandleRecord); err != nil && ctx.Err() == nil {
			slog.Error("scorer consumer loop exited", slog.Any("error", err))
		}
	}()

	slog.Info("scorer worker started successfully, waiting for shutdown signal")
	<-ctx.Done()
	slog.Info("signal received, shutting down scorer worker")
}
