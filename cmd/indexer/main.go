package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus/backend"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tfidf"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/middleware"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/development.yaml", "path to config file")
	port := pflag.IntP("port", "p", 0, "HTTP port (overrides server.port)")
	refreshOnStart := pflag.Bool("refresh-on-start", true, "refresh stale histograms before serving")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"idf_mode", cfg.Indexer.IDFMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, "indexer")
		defer shutdownMetrics(context.Background())
	}

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open corpus store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	tok, err := tokenizer.New(tokenizer.Config{
		Language:       cfg.Indexer.Language,
		Stopwords:      cfg.Indexer.Stopwords,
		MinTokenLength: cfg.Indexer.MinTokenLength,
	})
	if err != nil {
		slog.Error("failed to build tokenizer", "error", err)
		os.Exit(1)
	}
	mode, err := tfidf.ParseMode(cfg.Indexer.IDFMode)
	if err != nil {
		slog.Error("invalid idf mode", "error", err)
		os.Exit(1)
	}

	engineOpts := []indexer.Option{indexer.WithMetrics(m)}
	invalidator := publisher.NewInvalidator(nil)
	var submitter publisher.Submitter
	if cfg.Kafka.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector := analytics.NewCollector(analyticsProducer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		engineOpts = append(engineOpts, indexer.WithCollector(collector))

		invalidationProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
		defer invalidationProducer.Close()
		invalidator = publisher.NewInvalidator(invalidationProducer)

		documentProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIndex)
		defer documentProducer.Close()
		submitter = publisher.New(documentProducer)
	}

	engineOpts = append(engineOpts, indexer.WithRefreshHook(func(ctx context.Context, _ int) {
		invalidator.Announce(ctx, 0, ingestion.ActionRefreshed)
	}))
	engine := indexer.NewEngine(store, tok, indexer.Config{
		IDFMode:         mode,
		RefreshInterval: cfg.Indexer.RefreshInterval,
		RefreshBatch:    cfg.Indexer.RefreshBatch,
		RefreshWorkers:  cfg.Indexer.RefreshWorkers,
	}, engineOpts...)

	if *refreshOnStart {
		if _, err := engine.RefreshStale(ctx); err != nil {
			slog.Error("startup refresh failed", "error", err)
		}
	}
	engine.StartRefreshLoop(ctx)

	if cfg.Kafka.Enabled {
		kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIndex,
			consumer.HandleMessage(engine, invalidator),
			kafka.FromFirstOffset(),
			kafka.WithConsumerMetrics(m),
		)
		indexConsumer := consumer.New(kafkaConsumer)
		go func() {
			if err := indexConsumer.Start(ctx); err != nil {
				slog.Error("consumer error", "error", err)
			}
		}()
		slog.Info("consuming document events",
			"topic", cfg.Kafka.Topics.DocumentIndex,
			"group", cfg.Kafka.ConsumerGroup,
		)
	} else {
		submitter = publisher.NewDirect(engine, invalidator)
		slog.Warn("kafka disabled, documents are indexed synchronously on intake")
	}

	checker := health.NewChecker()
	checker.Register("corpus_store", health.PingCheck(store, health.StatusDown))

	mux := http.NewServeMux()
	handler.New(submitter, engine, invalidator).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Tracing(chain)
	chain = middleware.RequireAPIKey(cfg.Server.APIKeys)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("indexer service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("indexer service stopped")
}
