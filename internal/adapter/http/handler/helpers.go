package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sovrhq/clearing/internal/adapter/http/dto"
	"github.com/sovrhq/clearing/internal/domain"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrIntentNotFound),
		errors.Is(err, domain.ErrNarrativeNotFound),
		errors.Is(err, domain.ErrTransferNotFound),
		errors.Is(err, domain.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccountExists),
		errors.Is(err, domain.ErrIntentConflict),
		errors.Is(err, domain.ErrIntentInFlight),
		errors.Is(err, domain.ErrReservationConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrInvalidIdentifier),
		errors.Is(err, domain.ErrInvalidAccountType),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDirection),
		errors.Is(err, domain.ErrUnknownSource):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthorityUnavailable),
		errors.Is(err, domain.ErrOutcomeUnknown):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// statusForResult maps a terminal clearing result to an HTTP status: a fresh
// finalization is a 201, a replay of one is a 200, a rejection carries its
// issues on a 422, and an authority failure surfaces as a 502.
func statusForResult(result *domain.ClearingResult) int {
	switch result.Status {
	case domain.StatusClearedFinalized:
		if result.Replayed {
			return http.StatusOK
		}
		return http.StatusCreated
	case domain.StatusRejected:
		return http.StatusUnprocessableEntity
	case domain.StatusFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// parseTimeQuery parses an RFC 3339 query parameter, nil when absent or
// malformed.
func parseTimeQuery(r *http.Request, key string) *time.Time {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &ts
}
