// Command analytics runs the analytics aggregator on its own. It consumes
// search and index events from Kafka, aggregates them in memory (query
// volume, latency percentiles, cache hit rate, zero-result rate, top
// queries, indexing and refresh counts) and serves GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [--config configs/development.yaml] [--replay]
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
	replay := pflag.Bool("replay", false, "rebuild aggregates from the start of the topic")
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
	if !cfg.Kafka.Enabled {
		slog.Error("analytics service needs kafka")
		os.Exit(1)
	}
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, "analytics")
		defer shutdownMetrics(context.Background())
	}

	aggregator := analytics.NewAggregator()
	opts := []kafka.ConsumerOption{kafka.WithGroupSuffix("analytics"), kafka.WithConsumerMetrics(m)}
	if *replay {
		opts = append(opts, kafka.FromFirstOffset())
	}
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, aggregator.HandleEvent, opts...)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	analyticsHandler := analytics.NewHandler(aggregator)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
