package sqlstore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus/corpustest"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/postgres"
)

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// postgresDSN starts one PostgreSQL container for the package. Tests are
// skipped when no container runtime is reachable.
func postgresDSN(t *testing.T) string {
	t.Helper()
	if testing.Short() || os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("skipping PostgreSQL integration tests")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	pgOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				pgErr = fmt.Errorf("container runtime unavailable: %v", r)
			}
		}()
		ctx := context.Background()
		container, err := pgmodule.Run(ctx,
			"postgres:16-alpine",
			pgmodule.WithDatabase("histograms_test"),
			pgmodule.WithUsername("test"),
			pgmodule.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			pgErr = err
			return
		}
		pgDSN, pgErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if pgErr != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", pgErr)
	}
	return pgDSN
}

func newPostgres(t *testing.T) corpus.Store {
	t.Helper()
	ctx := context.Background()
	client, err := postgres.Open(ctx, postgresDSN(t), config.PostgresConfig{MaxOpenConns: 5})
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	s, err := FromPostgres(ctx, client)
	if err != nil {
		client.Close()
		t.Fatalf("creating store: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `TRUNCATE histogram_items, histograms, documents`); err != nil {
		s.Close()
		t.Fatalf("truncating: %v", err)
	}
	return s
}

func TestPostgresContract(t *testing.T) {
	corpustest.Run(t, newPostgres)
}
