// Package main provides the Orchestrator worker entry point: consumes
// leads.scored, selects an experiment arm via Thompson Sampling, renders
// and sends one outreach message, and republishes to outreach.events.
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
	"github.com/bishnubista/pipeline-whisperer/internal/adapter/delivery"
	"github.com/bishnubista/pipeline-whisperer/internal/adapter/personalize"
	"github.com/bishnubista/pipeline-whisperer/internal/adapter/queue/kafka"
	"github.com/bishnubista/pipeline-whisperer/internal/adapter/repo/postgres"
	"github.com/bishnubista/pipeline-whisperer/internal/config"
	"github.com/bishnubista/pipeline-whisperer/internal/domain"
	"github.com/bishnubista/pipeline-whisperer/internal/observability"
	"github.com/bishnubista/pipeline-whisperer/internal/worker"
)

// outreachChannels are the channel identifiers templates may target:
// email, linkedin, or slack.
var outreachChannels = []string{"email", "linkedin", "slack"}

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
			slog.Error("orchestrator metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg, cfg.ServiceName+"-orchestrator")
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting orchestrator worker", slog.String("env", cfg.AppEnv))

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
	templateRepo := postgres.NewTemplateRepo(pool)
	outreachLogRepo := postgres.NewOutreachLogRepo(pool)
	txManager := postgres.NewTxManager(pool)

	messengers := make([]delivery.Messenger, 0, len(outreachChannels))
	if cfg.DeliveryConfigured() {
		breakers := circuitbreaker.NewManager(cfg.CircuitFailureThreshold, cfg.CircuitRecoveryTimeout)
		for _, ch := range outreachChannels {
			messengers = append(messengers, delivery.NewHTTPClient(ch, cfg.DeliveryBaseURL, cfg.DeliveryAPIKey, "delivery-api", cfg.DeliveryTimeout, breakers.Get("delivery."+ch)))
		}
		slog.Info("orchestrator: using live delivery backend")
	} else {
		for _, ch := range outreachChannels {
			messengers = append(messengers, delivery.NewSimulateClient(ch))
		}
		slog.Info("orchestrator: no delivery API key configured, using simulated delivery")
	}
	registry := delivery.NewRegistry(messengers...)

	var rewriter personalize.Rewriter
	if cfg.PersonalizeAPIKey != "" && cfg.PersonalizeBaseURL != "" {
		rewriter = personalize.NewRemoteRewriter(cfg.PersonalizeBaseURL, cfg.PersonalizeAPIKey, cfg.ScoringModel, cfg.PersonalizeTimeout)
		slog.Info("orchestrator: using remote personalization rewrite")
	}
	personalizeSvc := personalize.NewService(rewriter)

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

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, "pipeline-orchestrator", []string{domain.TopicLeadsScored}, cfg.PoisonMaxAttempts, producer)
	if err != nil {
		slog.Error("kafka consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close kafka consumer", slog.Any("error", err))
		}
	}()

	o := &worker.Orchestrator{
		Leads:       leadRepo,
		Experiments: experimentRepo,
		Templates:   templateRepo,
		Logs:        outreachLogRepo,
		Personalize: personalizeSvc,
		Delivery:    registry,
		Publisher:   producer,
		Tx:          txManager,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		if err := consumer.Run(ctx, o.HandleRecord); err != nil && ctx.Err() == nil {
			slog.Error("orchestrator consumer loop exited", slog.Any("error", err))
		}
	}()

	slog.Info("orchestrator worker started successfully, waiting for shutdown signal")
	<-ctx.Done()
	slog.Info("signal received, shutting down orchestrator worker")
}
