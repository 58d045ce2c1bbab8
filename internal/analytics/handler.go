package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	defaultTopQueries = 10
	maxTopQueries     = 100
)

// Handler serves the aggregator snapshot on GET /api/v1/analytics for both
// the analytics and searcher services.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats writes the current snapshot. The optional top parameter sets how
// many frequent and zero-result queries are listed (1..100, default 10).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top, err := parseTop(r.URL.Query().Get("top"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.Snapshot(top))
}

func parseTop(raw string) (int, error) {
	if raw == "" {
		return defaultTopQueries, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxTopQueries {
		return 0, fmt.Errorf("top must be an integer between 1 and %d", maxTopQueries)
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
