package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/sovrhq/clearing/internal/adapter/http/dto"
	"github.com/sovrhq/clearing/internal/domain"
)

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/accounts?limit=50", nil)
	if got := parseIntQuery(req, "limit", 10); got != 50 {
		t.Fatalf("expected limit=50, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/accounts?limit=invalid", nil)
	if got := parseIntQuery(req, "limit", 10); got != 10 {
		t.Fatalf("expected fallback to default, got %d", got)
	}

	req.URL = &url.URL{RawQuery: ""}
	if got := parseIntQuery(req, "limit", 25); got != 25 {
		t.Fatalf("expected default when missing, got %d", got)
	}
}

func TestParseTimeQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/narratives?from=2025-06-01T12:30:00Z", nil)
	got := parseTimeQuery(req, "from")
	if got == nil || !got.Equal(time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected parsed RFC 3339 time, got %v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/narratives?from=yesterday", nil)
	if got := parseTimeQuery(req, "from"); got != nil {
		t.Fatalf("expected nil for malformed time, got %v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/narratives", nil)
	if got := parseTimeQuery(req, "from"); got != nil {
		t.Fatalf("expected nil when missing, got %v", got)
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"account not found", domain.ErrAccountNotFound, http.StatusNotFound},
		{"intent not found", domain.ErrIntentNotFound, http.StatusNotFound},
		{"narrative not found", domain.ErrNarrativeNotFound, http.StatusNotFound},
		{"account exists", domain.ErrAccountExists, http.StatusConflict},
		{"intent in flight", domain.ErrIntentInFlight, http.StatusConflict},
		{"reservation conflict", domain.ErrReservationConflict, http.StatusConflict},
		{"invalid amount", domain.ErrInvalidAmount, http.StatusBadRequest},
		{"unknown source", domain.ErrUnknownSource, http.StatusBadRequest},
		{"authority unavailable", domain.ErrAuthorityUnavailable, http.StatusBadGateway},
		{"outcome unknown", domain.ErrOutcomeUnknown, http.StatusBadGateway},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDomainError(tt.err); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestStatusForResult(t *testing.T) {
	tests := []struct {
		name     string
		result   *domain.ClearingResult
		expected int
	}{
		{"fresh finalization", &domain.ClearingResult{Status: domain.StatusClearedFinalized}, http.StatusCreated},
		{"replayed finalization", &domain.ClearingResult{Status: domain.StatusClearedFinalized, Replayed: true}, http.StatusOK},
		{"rejection", &domain.ClearingResult{Status: domain.StatusRejected}, http.StatusUnprocessableEntity},
		{"replayed rejection", &domain.ClearingResult{Status: domain.StatusRejected, Replayed: true}, http.StatusUnprocessableEntity},
		{"authority failure", &domain.ClearingResult{Status: domain.StatusFailed}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForResult(tt.result); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	payload := map[string]string{"status": "ok"}

	writeJSON(rr, http.StatusCreated, payload)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	var decoded map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if decoded["status"] != "ok" {
		t.Fatalf("expected payload to round-trip, got %+v", decoded)
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()

	writeError(rr, http.StatusBadRequest, "bad request", "detail")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error != "bad request" {
		t.Fatalf("expected error message to propagate, got %+v", resp)
	}
}
