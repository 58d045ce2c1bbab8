// Command ingestion runs the document intake API on its own: documents are
// validated and queued on the document-index topic for the indexer. Corpus
// administration stays with the indexer service.
//
// Usage:
//
//	go run ./cmd/ingestion [--config configs/development.yaml] [--port 8082]
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
		slog.Error("ingestion service needs kafka; run the indexer with kafka disabled to index synchronously")
		os.Exit(1)
	}
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, "ingestion")
		defer shutdownMetrics(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIndex)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIndex)

	h := handler.New(publisher.New(producer), nil, nil)
	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "producer ready"}
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequireAPIKey(cfg.Server.APIKeys)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
