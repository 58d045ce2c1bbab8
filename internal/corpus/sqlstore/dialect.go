package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL backends.
// Queries are written with "?" placeholders and rebound per dialect.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
	// ReadOnlyTx marks read transactions read-only; the embedded driver
	// rejects the option.
	ReadOnlyTx bool
}

var (
	Postgres = Dialect{Name: "postgres", Numbered: true, ReadOnlyTx: true}
	SQLite   = Dialect{Name: "sqlite"}
)

func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id         BIGINT PRIMARY KEY,
		is_private BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS histograms (
		document_id BIGINT PRIMARY KEY REFERENCES documents(id),
		initialized BOOLEAN NOT NULL DEFAULT FALSE,
		up_to_date  BOOLEAN NOT NULL DEFAULT FALSE,
		tokens      TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS histogram_items (
		document_id BIGINT NOT NULL REFERENCES histograms(document_id),
		gram        TEXT NOT NULL,
		count       INTEGER NOT NULL,
		tfidf       DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (document_id, gram)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_histogram_items_gram ON histogram_items (gram)`,
	`CREATE INDEX IF NOT EXISTS idx_histograms_state ON histograms (initialized, up_to_date)`,
}
