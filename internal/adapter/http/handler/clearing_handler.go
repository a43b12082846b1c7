package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sovrhq/clearing/internal/adapter/http/dto"
	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

// ClearingService defines the behavior needed by ClearingHandler.
type ClearingService interface {
	Clear(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error)
	Lookup(ctx context.Context, intentID string) (*domain.ClearingResult, error)
}

// BatchService clears entry sets under a shared reservation.
type BatchService interface {
	ExecuteAtomic(ctx context.Context, entries []*domain.Entry) (*usecase.BatchResult, error)
}

// ClearingHandler handles clearing intent HTTP requests.
type ClearingHandler struct {
	clearing ClearingService
	batch    BatchService
}

// NewClearingHandler creates a new ClearingHandler.
func NewClearingHandler(clearing ClearingService, batch BatchService) *ClearingHandler {
	return &ClearingHandler{clearing: clearing, batch: batch}
}

// Submit clears a single entry to a terminal result.
func (h *ClearingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitClearingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.clearing.Clear(r.Context(), req.ToDomain())
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to clear entry", err.Error())
		return
	}

	writeJSON(w, statusForResult(result), result)
}

// SubmitBatch clears a set of entries under one account reservation.
func (h *ClearingHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.batch.ExecuteAtomic(r.Context(), req.ToDomain())
	if err != nil {
		if errors.Is(err, domain.ErrReservationConflict) {
			// Another batch holds one of these accounts; it resolves
			// within the reservation TTL.
			w.Header().Set("Retry-After", "1")
		}
		status := mapDomainError(err)
		writeError(w, status, "failed to execute batch", err.Error())
		return
	}

	writeJSON(w, statusForBatch(result), result)
}

// Get retrieves the recorded terminal result for an intent.
func (h *ClearingHandler) Get(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		writeError(w, http.StatusBadRequest, "missing intent ID", "")
		return
	}

	result, err := h.clearing.Lookup(r.Context(), intentID)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to look up intent", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// statusForBatch maps a batch result to an HTTP status. Any authority
// failure is a 502 because the batch aborted mid-flight; a batch stopped by
// validation alone is a 422.
func statusForBatch(result *usecase.BatchResult) int {
	switch {
	case result.Outcome == usecase.BatchFullyCommitted:
		return http.StatusCreated
	case result.Failed > 0:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}
