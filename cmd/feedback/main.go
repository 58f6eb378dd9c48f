// Package main provides the Feedback worker entry point: consumes
// outreach.events (engagement webhooks plus the Orchestrator's own sent
// events) and applies the resulting Lead/OutreachLog/Experiment updates.
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

	"github.com/bishnubista/pipeline-whisperer/internal/adapter/queue/kafka"
	"github.com/bishnubista/pipeline-whisperer/internal/adapter/repo/postgres"
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
			slog.Error("feedback metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg, cfg.ServiceName+"-feedback")
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting feedback worker", slog.String("env", cfg.AppEnv))

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
	experimentRepo := postgres.NewExperimentRepo(pool)
	outreachLogRepo := postgres.NewOutreachLogRepo(pool)
	txManager := postgres.NewTxManager(pool)

	// Required by NewConsumer to construct its dead-letter path; the
	// Feedback worker itself never publishes to the event log.
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

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, "pipeline-feedback", []string{domain.TopicOutreachEvents}, cfg.PoisonMaxAttempts, producer)
	if err != nil {
		slog.Error("kafka consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close kafka consumer", slog.Any("error", err))
		}
	}()

	// ConversionBetaIncrement stays at its zero value here: the
	// "replied_without_conversion" policy increments beta on a timeout
	// with no matching conversion, which requires reconciling OutreachLog
	// rows against cfg.ConversionWindow on a schedule, not on the
	// converted-event path this worker dispatches. No such sweep exists
	// yet, so only the "none" policy (alpha-only increments) is active.
	f := &worker.Feedback{
		Leads:       leadRepo,
		Experiments: experimentRepo,
		Logs:        outreachLogRepo,
		Tx:          txManager,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		if err := consumer.Run(ctx, f.HandleRecord); err != nil && ctx.Err() == nil {
			slog.Error("feedback consumer loop exited", slog.Any("error", err))
		}
	}()

	slog.Info("feedback worker started successfully, waiting for shutdown signal")
	<-ctx.Done()
	slog.Info("signal received, shutting down feedback worker")
}
