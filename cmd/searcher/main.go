package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus/backend"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tfidf"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/redis"
)

func main() {
	hostname, _ := os.Hostname()
	configPath := pflag.StringP("config", "c", "configs/development.yaml", "path to config file")
	port := pflag.IntP("port", "p", 0, "HTTP port (overrides server.port)")
	instance := pflag.String("instance", hostname, "instance name; every instance gets its own cache-invalidation consumer group")
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
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"page_size", cfg.Search.PageSize,
		"workers", cfg.Search.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, "searcher")
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

	exec := executor.New(store, tok, executor.Config{
		PageSize: cfg.Search.PageSize,
		Workers:  cfg.Search.Workers,
		IDFMode:  mode,
	}, executor.WithMetrics(m))

	var (
		queryCache  *cache.QueryCache
		redisPinger health.Pinger
	)
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, pkgredis.IsNilError, m)
			redisPinger = redisClient
			slog.Info("search cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
			)
		}
	}

	aggregator := analytics.NewAggregator()
	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector = analytics.NewCollector(analyticsProducer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, aggregator.HandleEvent,
			kafka.WithGroupSuffix("analytics-"+*instance),
			kafka.WithConsumerMetrics(m),
		)
		go func() {
			if err := analyticsConsumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()

		if queryCache != nil {
			invalidationConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, queryCache.HandleInvalidation,
				kafka.WithGroupSuffix("cache-"+*instance),
				kafka.WithConsumerMetrics(m),
			)
			go func() {
				if err := invalidationConsumer.Start(ctx); err != nil {
					slog.Error("cache invalidation consumer error", "error", err)
				}
			}()
			slog.Info("cache invalidation consumer started", "topic", cfg.Kafka.Topics.CacheInvalidate)
		}
	} else {
		slog.Warn("kafka disabled, analytics and cache invalidation events are off")
	}

	checker := health.NewChecker()
	checker.Register("corpus_store", health.PingCheck(store, health.StatusDown))
	checker.Register("redis", health.PingCheck(redisPinger, health.StatusDegraded))

	h := handler.New(handler.Config{
		Executor:   exec,
		Weights:    store,
		Tokenizer:  tok,
		Cache:      queryCache,
		Collector:  collector,
		Metrics:    m,
		MaxResults: cfg.Search.MaxResults,
	})
	analyticsH := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Search.Timeout)(chain)
	chain = middleware.Tracing(chain)
	if cfg.Server.RateLimit > 0 {
		chain = middleware.RateLimit(middleware.NewLimiter(ctx, cfg.Server.RateLimit, time.Minute))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
