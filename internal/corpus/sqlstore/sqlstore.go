// Package sqlstore implements corpus.Store on database/sql. Postgres (lib/pq)
// serves deployments; SQLite (glebarez/go-sqlite, pure Go) serves single
// node setups and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/histogram"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tfidf"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/postgres"
)

// statsChunk bounds the IN list of a single document frequency query.
const statsChunk = 500

type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ corpus.Store = (*Store)(nil)

// New wraps an open pool and creates the schema when missing.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		logger:  slog.Default().With("component", "corpus-store", "dialect", dialect.Name),
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migrating %s schema: %w", dialect.Name, err)
		}
	}
	return s, nil
}

// OpenSQLite opens (or creates) the database at path. ":memory:" yields a
// private in-memory database; the pool is pinned to one connection so every
// query sees it.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring sqlite: %w", err)
	}
	s, err := New(ctx, db, SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// FromPostgres builds a Store on an open postgres client.
func FromPostgres(ctx context.Context, client *postgres.Client) (*Store, error) {
	return New(ctx, client.DB, Postgres)
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

func (s *Store) FetchPage(ctx context.Context, after int64, pageSize int) (corpus.Page, error) {
	if after < 0 || pageSize < 1 {
		return corpus.Page{}, fmt.Errorf("%w: page after %d of size %d", apperrors.ErrInvalidInput, after, pageSize)
	}
	start := time.Now()
	var page corpus.Page
	err := s.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.dialect.rebind(`
			SELECT h.document_id, h.tokens, h.up_to_date
			FROM histograms h
			JOIN documents d ON d.id = h.document_id
			WHERE h.initialized = ? AND d.is_private = ? AND h.document_id > ?
			ORDER BY h.document_id
			LIMIT ?`),
			true, false, after, pageSize+1)
		if err != nil {
			return err
		}
		heads, err := scanHeads(rows, true)
		if err != nil {
			return err
		}
		if len(heads) > pageSize {
			page.HasNext = true
			heads = heads[:pageSize]
		}
		page.Histograms, err = s.loadItems(ctx, tx, heads)
		return err
	})
	if err != nil {
		return corpus.Page{}, storeErr("fetching page", err)
	}
	s.logger.Debug("page fetched",
		"after", after,
		"size", len(page.Histograms),
		"has_next", page.HasNext,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return page, nil
}

func (s *Store) LookupWeight(ctx context.Context, term histogram.NGram, documentID int64) (float64, bool, error) {
	var weight float64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT tfidf FROM histogram_items WHERE document_id = ? AND gram = ?`),
		documentID, string(term)).Scan(&weight)
	switch {
	case err == nil:
		return weight, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, storeErr("looking up weight", err)
	}
	exists, err := s.exists(ctx, documentID)
	if err != nil {
		return 0, false, err
	}
	if !exists {
		return 0, false, apperrors.ErrDocumentNotFound
	}
	return 0, false, nil
}

func (s *Store) Stats(ctx context.Context, terms []histogram.NGram, exclude int64) (tfidf.Stats, error) {
	stats := tfidf.Stats{DocumentFrequency: make(map[histogram.NGram]int, len(terms))}
	err := s.read(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, s.dialect.rebind(`
			SELECT COUNT(*)
			FROM histograms h
			JOIN documents d ON d.id = h.document_id
			WHERE h.initialized = ? AND d.is_private = ? AND h.document_id <> ?`),
			true, false, exclude).Scan(&stats.Size); err != nil {
			return err
		}
		for lo := 0; lo < len(terms); lo += statsChunk {
			chunk := terms[lo:min(lo+statsChunk, len(terms))]
			args := make([]any, 0, len(chunk)+3)
			args = append(args, true, false, exclude)
			for _, term := range chunk {
				args = append(args, string(term))
			}
			rows, err := tx.QueryContext(ctx, s.dialect.rebind(`
				SELECT i.gram, COUNT(*)
				FROM histogram_items i
				JOIN histograms h ON h.document_id = i.document_id
				JOIN documents d ON d.id = i.document_id
				WHERE h.initialized = ? AND d.is_private = ? AND i.document_id <> ?
				  AND i.gram IN (`+placeholders(len(chunk))+`)
				GROUP BY i.gram`), args...)
			if err != nil {
				return err
			}
			for rows.Next() {
				var gram string
				var df int
				if err := rows.Scan(&gram, &df); err != nil {
					rows.Close()
					return err
				}
				stats.DocumentFrequency[histogram.NGram(gram)] = df
			}
			if err := rows.Close(); err != nil {
				return err
			}
			if err := rows.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return tfidf.Stats{}, storeErr("collecting corpus stats", err)
	}
	return stats, nil
}

func (s *Store) Save(ctx context.Context, doc corpus.Document, h *histogram.Histogram) error {
	if doc.ID != h.DocumentID() {
		return fmt.Errorf("%w: histogram of document %d saved under %d", apperrors.ErrInvalidInput, h.DocumentID(), doc.ID)
	}
	tokens, err := json.Marshal(h.Tokens())
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}
	err = postgres.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO documents (id, is_private) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET is_private = excluded.is_private`),
			doc.ID, doc.Private); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO histograms (document_id, initialized, up_to_date, tokens) VALUES (?, ?, ?, ?)
			ON CONFLICT (document_id) DO UPDATE SET
				initialized = excluded.initialized,
				up_to_date = excluded.up_to_date,
				tokens = excluded.tokens`),
			doc.ID, h.Initialized(), h.UpToDate(), string(tokens)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(
			`DELETE FROM histogram_items WHERE document_id = ?`), doc.ID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(
			`INSERT INTO histogram_items (document_id, gram, count, tfidf) VALUES (?, ?, ?, ?)`))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, item := range h.Items() {
			if _, err := stmt.ExecContext(ctx, doc.ID, string(item.Key), item.Count, item.TfIdf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeErr("saving histogram", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, documentID int64) (corpus.Document, *histogram.Histogram, error) {
	var (
		doc  corpus.Document
		hist *histogram.Histogram
	)
	err := s.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.dialect.rebind(`
			SELECT h.document_id, h.tokens, h.initialized, h.up_to_date, d.is_private
			FROM histograms h
			JOIN documents d ON d.id = h.document_id
			WHERE h.document_id = ?`), documentID)
		if err != nil {
			return err
		}
		heads, err := scanFullHeads(rows)
		if err != nil {
			return err
		}
		if len(heads) == 0 {
			return apperrors.ErrDocumentNotFound
		}
		hists, err := s.loadItems(ctx, tx, heads)
		if err != nil {
			return err
		}
		doc = heads[0].doc
		hist = hists[0]
		return nil
	})
	if err != nil {
		return corpus.Document{}, nil, storeErr("getting histogram", err)
	}
	return doc, hist, nil
}

func (s *Store) MarkStale(ctx context.Context, keep int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`UPDATE histograms SET up_to_date = ? WHERE document_id <> ? AND up_to_date = ?`),
		false, keep, true)
	if err != nil {
		return 0, storeErr("marking histograms stale", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("marking histograms stale", err)
	}
	return n, nil
}

func (s *Store) FetchStale(ctx context.Context, limit int) ([]corpus.Document, []*histogram.Histogram, error) {
	var (
		docs  []corpus.Document
		hists []*histogram.Histogram
	)
	err := s.read(ctx, func(tx *sql.Tx) error {
		query := `
			SELECT h.document_id, h.tokens, h.initialized, h.up_to_date, d.is_private
			FROM histograms h
			JOIN documents d ON d.id = h.document_id
			WHERE h.initialized = ? AND h.up_to_date = ?
			ORDER BY h.document_id`
		args := []any{true, false}
		if limit > 0 {
			query += ` LIMIT ?`
			args = append(args, limit)
		}
		rows, err := tx.QueryContext(ctx, s.dialect.rebind(query), args...)
		if err != nil {
			return err
		}
		heads, err := scanFullHeads(rows)
		if err != nil {
			return err
		}
		hists, err = s.loadItems(ctx, tx, heads)
		if err != nil {
			return err
		}
		docs = make([]corpus.Document, len(heads))
		for i, hd := range heads {
			docs[i] = hd.doc
		}
		return nil
	})
	if err != nil {
		return nil, nil, storeErr("fetching stale histograms", err)
	}
	return docs, hists, nil
}

func (s *Store) SetVisibility(ctx context.Context, documentID int64, private bool) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`UPDATE documents SET is_private = ? WHERE id = ?`), private, documentID)
	if err != nil {
		return storeErr("setting visibility", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storeErr("setting visibility", err)
	} else if n == 0 {
		return apperrors.ErrDocumentNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, documentID int64) error {
	var removed int64
	err := postgres.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM histogram_items WHERE document_id = ?`,
			`DELETE FROM histograms WHERE document_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, s.dialect.rebind(stmt), documentID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM documents WHERE id = ?`), documentID)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return storeErr("deleting document", err)
	}
	if removed == 0 {
		return apperrors.ErrDocumentNotFound
	}
	return nil
}

func (s *Store) read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return postgres.InTx(ctx, s.db, &sql.TxOptions{ReadOnly: s.dialect.ReadOnlyTx}, fn)
}

func (s *Store) exists(ctx context.Context, documentID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT 1 FROM histograms WHERE document_id = ?`), documentID).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, storeErr("checking histogram", err)
	}
}

type head struct {
	doc         corpus.Document
	tokens      []string
	initialized bool
	upToDate    bool
}

// scanHeads reads (document_id, tokens, up_to_date) rows of corpus members.
func scanHeads(rows *sql.Rows, initialized bool) ([]head, error) {
	defer rows.Close()
	var heads []head
	for rows.Next() {
		var (
			hd     head
			tokens string
		)
		if err := rows.Scan(&hd.doc.ID, &tokens, &hd.upToDate); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tokens), &hd.tokens); err != nil {
			return nil, fmt.Errorf("decoding tokens of document %d: %w", hd.doc.ID, err)
		}
		hd.initialized = initialized
		heads = append(heads, hd)
	}
	return heads, rows.Err()
}

// scanFullHeads reads (document_id, tokens, initialized, up_to_date,
// is_private) rows.
func scanFullHeads(rows *sql.Rows) ([]head, error) {
	defer rows.Close()
	var heads []head
	for rows.Next() {
		var (
			hd     head
			tokens string
		)
		if err := rows.Scan(&hd.doc.ID, &tokens, &hd.initialized, &hd.upToDate, &hd.doc.Private); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tokens), &hd.tokens); err != nil {
			return nil, fmt.Errorf("decoding tokens of document %d: %w", hd.doc.ID, err)
		}
		heads = append(heads, hd)
	}
	return heads, rows.Err()
}

// loadItems fetches the items of every head in one query and restores the
// histograms in head order.
func (s *Store) loadItems(ctx context.Context, tx *sql.Tx, heads []head) ([]*histogram.Histogram, error) {
	if len(heads) == 0 {
		return nil, nil
	}
	args := make([]any, len(heads))
	items := make(map[int64][]histogram.Item, len(heads))
	for i, hd := range heads {
		args[i] = hd.doc.ID
	}
	rows, err := tx.QueryContext(ctx, s.dialect.rebind(`
		SELECT document_id, gram, count, tfidf
		FROM histogram_items
		WHERE document_id IN (`+placeholders(len(heads))+`)`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			item histogram.Item
			gram string
		)
		if err := rows.Scan(&id, &gram, &item.Count, &item.TfIdf); err != nil {
			return nil, err
		}
		item.Key = histogram.NGram(gram)
		items[id] = append(items[id], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*histogram.Histogram, len(heads))
	for i, hd := range heads {
		out[i] = histogram.Restore(hd.doc.ID, hd.tokens, items[hd.doc.ID], hd.initialized, hd.upToDate)
	}
	return out, nil
}

func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrDocumentNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %s: %v", apperrors.ErrStoreUnavailable, op, err)
}
