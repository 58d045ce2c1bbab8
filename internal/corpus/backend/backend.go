// Package backend opens the corpus.Store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus/memory"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus/sqlstore"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/resilience"
)

// connectRetry rides out a database that starts after the service, as in
// docker compose.
var connectRetry = resilience.RetryConfig{
	MaxAttempts:  6,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// Open returns the store for cfg.Store.Driver. The caller owns Close.
func Open(ctx context.Context, cfg *config.Config) (corpus.Store, error) {
	logger := slog.Default().With("component", "corpus", "driver", cfg.Store.Driver)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory corpus, documents are lost on restart")
		return memory.New(), nil

	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating sqlite directory: %w", err)
			}
		}
		store, err := sqlstore.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("corpus store opened", "path", cfg.SQLite.Path)
		return store, nil

	case config.DriverPostgres:
		var client *postgres.Client
		err := resilience.Retry(ctx, "postgres connect", connectRetry, func() error {
			var err error
			client, err = postgres.New(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
		}
		store, err := sqlstore.FromPostgres(ctx, client)
		if err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("corpus store opened", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return store, nil

	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedDriver, cfg.Store.Driver)
	}
}
