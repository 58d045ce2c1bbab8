// Package handler serves document intake and corpus administration over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/logger"
)

// Corpus is the write side of indexer.Engine the admin routes drive.
type Corpus interface {
	SetVisibility(ctx context.Context, documentID int64, private bool) error
	Delete(ctx context.Context, documentID int64) error
	RefreshStale(ctx context.Context) (int, error)
}

type Handler struct {
	submitter   publisher.Submitter
	corpus      Corpus
	invalidator *publisher.Invalidator
	logger      *slog.Logger
}

func New(sub publisher.Submitter, corpus Corpus, invalidator *publisher.Invalidator) *Handler {
	return &Handler{
		submitter:   sub,
		corpus:      corpus,
		invalidator: invalidator,
		logger:      slog.Default().With("component", "ingestion-handler"),
	}
}

// Register mounts the intake route, plus the corpus admin routes when the
// handler has a Corpus.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	if h.corpus == nil {
		return
	}
	mux.HandleFunc("PUT /api/v1/documents/{id}/visibility", h.SetVisibility)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/refresh", h.Refresh)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateDocumentRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.submitter.Submit(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("document accepted",
		"doc_id", resp.DocumentID,
		"status", resp.Status,
	)
	status := http.StatusAccepted
	if resp.Status == ingestion.StatusIndexed {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, resp)
}

type visibilityRequest struct {
	Private *bool `json:"private"`
}

func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Private == nil {
		h.writeError(w, http.StatusBadRequest, `body must be {"private": true|false}`)
		return
	}
	if err := h.corpus.SetVisibility(r.Context(), id, *req.Private); err != nil {
		h.fail(w, r, "visibility update failed", id, err)
		return
	}
	h.invalidator.Announce(r.Context(), id, ingestion.ActionVisibility)
	h.writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "private": *req.Private})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.corpus.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete failed", id, err)
		return
	}
	h.invalidator.Announce(r.Context(), id, ingestion.ActionDeleted)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh runs a stale-histogram refresh now instead of waiting for the loop.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	n, err := h.corpus.RefreshStale(r.Context())
	if err != nil {
		h.fail(w, r, "refresh failed", 0, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"refreshed": n})
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "document id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, id int64, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(msg, "doc_id", id, "error", err)
	}
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		msg = "document not found"
	}
	h.writeError(w, status, msg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
