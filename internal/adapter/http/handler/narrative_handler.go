package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

// NarrativeService defines the behavior needed by NarrativeHandler.
type NarrativeService interface {
	GetByIntent(ctx context.Context, intentID string) (*domain.NarrativeRecord, error)
	Query(ctx context.Context, input usecase.QueryNarrativesInput) ([]*domain.NarrativeRecord, error)
}

// NarrativeHandler serves the non-authoritative narrative mirror.
type NarrativeHandler struct {
	narratives NarrativeService
}

// NewNarrativeHandler creates a new NarrativeHandler.
func NewNarrativeHandler(narratives NarrativeService) *NarrativeHandler {
	return &NarrativeHandler{narratives: narratives}
}

// Get retrieves the narrative record for an intent.
func (h *NarrativeHandler) Get(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		writeError(w, http.StatusBadRequest, "missing intent ID", "")
		return
	}

	record, err := h.narratives.GetByIntent(r.Context(), intentID)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to get narrative", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// Query lists narrative records filtered by source, account, and finalized
// time window.
func (h *NarrativeHandler) Query(w http.ResponseWriter, r *http.Request) {
	input := usecase.QueryNarrativesInput{
		Source:    r.URL.Query().Get("source"),
		AccountID: r.URL.Query().Get("account_id"),
		From:      parseTimeQuery(r, "from"),
		To:        parseTimeQuery(r, "to"),
		Limit:     parseIntQuery(r, "limit", 50),
		Offset:    parseIntQuery(r, "offset", 0),
	}

	records, err := h.narratives.Query(r.Context(), input)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to query narratives", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, records)
}
