package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sovrhq/clearing/internal/usecase"
)

// ConsistencyService defines the behavior needed by ConsistencyHandler.
type ConsistencyService interface {
	CheckIntent(ctx context.Context, intentID string) (*usecase.IntentConsistency, error)
	Report(ctx context.Context, since time.Time, limit int) (*usecase.ConsistencyReport, error)
}

// ConsistencyHandler compares the finality tracker against the narrative
// mirror and the authority's transfer log. The tracker is truth for what
// was decided; the authority is truth for what was committed.
type ConsistencyHandler struct {
	checker ConsistencyService
}

// NewConsistencyHandler creates a new ConsistencyHandler.
func NewConsistencyHandler(checker ConsistencyService) *ConsistencyHandler {
	return &ConsistencyHandler{checker: checker}
}

// Report runs the mirror consistency check over recently finalized intents.
func (h *ConsistencyHandler) Report(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if ts := parseTimeQuery(r, "since"); ts != nil {
		since = *ts
	}
	limit := parseIntQuery(r, "limit", 100)

	report, err := h.checker.Report(r.Context(), since, limit)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to run consistency check", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// CheckIntent checks a single intent's finality record against its mirror
// and the transfers committed under its leg keys.
func (h *ConsistencyHandler) CheckIntent(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		writeError(w, http.StatusBadRequest, "missing intent ID", "")
		return
	}

	check, err := h.checker.CheckIntent(r.Context(), intentID)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to check intent", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, check)
}
