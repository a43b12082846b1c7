package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sovrhq/clearing/internal/adapter/http/dto"
	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

type clearingServiceStub struct {
	clearFn  func(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error)
	lookupFn func(ctx context.Context, intentID string) (*domain.ClearingResult, error)
}

func (s *clearingServiceStub) Clear(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error) {
	return s.clearFn(ctx, entry)
}

func (s *clearingServiceStub) Lookup(ctx context.Context, intentID string) (*domain.ClearingResult, error) {
	return s.lookupFn(ctx, intentID)
}

type batchServiceStub struct {
	executeFn func(ctx context.Context, entries []*domain.Entry) (*usecase.BatchResult, error)
}

func (s *batchServiceStub) ExecuteAtomic(ctx context.Context, entries []*domain.Entry) (*usecase.BatchResult, error) {
	return s.executeFn(ctx, entries)
}

func submitRequestBody(t *testing.T, intentID string) []byte {
	t.Helper()
	body, err := json.Marshal(dto.SubmitClearingRequest{
		IntentID:    intentID,
		EntryID:     "entry-1",
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Description: "ach pull settlement",
		Source:      "ACH",
		Lines: []dto.ClearingLineRequest{
			{LineNumber: 1, AccountID: "acct:receivable", Direction: "DEBIT", AmountMinor: 1500},
			{LineNumber: 2, AccountID: "acct:merchant", Direction: "CREDIT", AmountMinor: 1500},
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	return body
}

func TestClearingHandler_Submit_Finalized(t *testing.T) {
	finalizedAt := time.Now().UTC()
	var captured *domain.Entry
	handler := NewClearingHandler(&clearingServiceStub{
		clearFn: func(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error) {
			captured = entry
			return &domain.ClearingResult{
				IntentID:    entry.IntentID,
				EntryID:     entry.ID,
				Status:      domain.StatusClearedFinalized,
				FinalizedAt: &finalizedAt,
			}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/clearings", bytes.NewReader(submitRequestBody(t, "intent-1")))
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if captured.IntentID != "intent-1" || len(captured.Lines) != 2 {
		t.Fatalf("expected entry to reach the service intact, got %+v", captured)
	}
	if captured.Status != domain.StatusPending {
		t.Fatalf("expected pending status on submission, got %s", captured.Status)
	}

	var resp domain.ClearingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.StatusClearedFinalized || resp.Replayed {
		t.Fatalf("unexpected result: %+v", resp)
	}
}

func TestClearingHandler_Submit_ReplayReturns200(t *testing.T) {
	finalizedAt := time.Now().UTC()
	handler := NewClearingHandler(&clearingServiceStub{
		clearFn: func(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error) {
			return &domain.ClearingResult{
				IntentID:    entry.IntentID,
				EntryID:     entry.ID,
				Status:      domain.StatusClearedFinalized,
				FinalizedAt: &finalizedAt,
				Replayed:    true,
			}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/clearings", bytes.NewReader(submitRequestBody(t, "intent-1")))
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a replayed finalization, got %d", rec.Code)
	}
}

func TestClearingHandler_Submit_RejectedCarriesIssues(t *testing.T) {
	handler := NewClearingHandler(&clearingServiceStub{
		clearFn: func(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error) {
			return &domain.ClearingResult{
				IntentID:  entry.IntentID,
				EntryID:   entry.ID,
				Status:    domain.StatusRejected,
				ErrorCode: "validation_failed",
				Issues: []domain.Issue{
					{Code: domain.IssueUnbalanced, Message: "debits 1500 != credits 1400"},
					{Code: domain.IssueAccountInactive, Field: "lines[1].account_id", Message: "account acct:merchant is inactive"},
				},
			}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/clearings", bytes.NewReader(submitRequestBody(t, "intent-1")))
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	var resp domain.ClearingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Issues) != 2 {
		t.Fatalf("expected both issues itemized, got %+v", resp.Issues)
	}
}

func TestClearingHandler_Submit_FailedReturns502(t *testing.T) {
	handler := NewClearingHandler(&clearingServiceStub{
		clearFn: func(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error) {
			return &domain.ClearingResult{
				IntentID:     entry.IntentID,
				EntryID:      entry.ID,
				Status:       domain.StatusFailed,
				ErrorCode:    "authority_unavailable",
				ErrorMessage: "ledger authority rejected the connection",
			}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/clearings", bytes.NewReader(submitRequestBody(t, "intent-1")))
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestClearingHandler_Submit_InvalidJSON(t *testing.T) {
	handler := NewClearingHandler(&clearingServiceStub{
		clearFn: func(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error) {
			t.Fatal("Clear should not be called for invalid payload")
			return nil, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/clearings", bytes.NewBufferString("{invalid json"))
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestClearingHandler_Submit_InFlightConflict(t *testing.T) {
	handler := NewClearingHandler(&clearingServiceStub{
		clearFn: func(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error) {
			return nil, domain.ErrIntentInFlight
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/clearings", bytes.NewReader(submitRequestBody(t, "intent-1")))
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestClearingHandler_SubmitBatch_FullyCommitted(t *testing.T) {
	handler := NewClearingHandler(nil, &batchServiceStub{
		executeFn: func(ctx context.Context, entries []*domain.Entry) (*usecase.BatchResult, error) {
			if len(entries) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(entries))
			}
			return &usecase.BatchResult{
				BatchID:   "batch-1",
				Outcome:   usecase.BatchFullyCommitted,
				Attempted: 2,
				Finalized: 2,
			}, nil
		},
	})

	batch := dto.SubmitBatchRequest{Entries: []dto.SubmitClearingRequest{
		{IntentID: "intent-1", EntryID: "entry-1", Source: "ACH"},
		{IntentID: "intent-2", EntryID: "entry-2", Source: "ACH"},
	}}
	body, _ := json.Marshal(batch)

	req := httptest.NewRequest(http.MethodPost, "/clearings/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.SubmitBatch(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp usecase.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Outcome != usecase.BatchFullyCommitted {
		t.Fatalf("expected fully_committed, got %s", resp.Outcome)
	}
}

func TestClearingHandler_SubmitBatch_RejectedReturns422(t *testing.T) {
	handler := NewClearingHandler(nil, &batchServiceStub{
		executeFn: func(ctx context.Context, entries []*domain.Entry) (*usecase.BatchResult, error) {
			return &usecase.BatchResult{
				BatchID:   "batch-1",
				Outcome:   usecase.BatchFullyRejected,
				Attempted: 1,
				Rejected:  1,
			}, nil
		},
	})

	body, _ := json.Marshal(dto.SubmitBatchRequest{Entries: []dto.SubmitClearingRequest{{IntentID: "intent-1"}}})
	req := httptest.NewRequest(http.MethodPost, "/clearings/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.SubmitBatch(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestClearingHandler_SubmitBatch_AuthorityFailureReturns502(t *testing.T) {
	handler := NewClearingHandler(nil, &batchServiceStub{
		executeFn: func(ctx context.Context, entries []*domain.Entry) (*usecase.BatchResult, error) {
			return &usecase.BatchResult{
				BatchID:   "batch-1",
				Outcome:   usecase.BatchPartiallyCommitted,
				Attempted: 2,
				Finalized: 1,
				Failed:    1,
			}, nil
		},
	})

	body, _ := json.Marshal(dto.SubmitBatchRequest{Entries: []dto.SubmitClearingRequest{{IntentID: "intent-1"}, {IntentID: "intent-2"}}})
	req := httptest.NewRequest(http.MethodPost, "/clearings/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.SubmitBatch(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestClearingHandler_SubmitBatch_ReservationConflict(t *testing.T) {
	handler := NewClearingHandler(nil, &batchServiceStub{
		executeFn: func(ctx context.Context, entries []*domain.Entry) (*usecase.BatchResult, error) {
			return nil, domain.ErrReservationConflict
		},
	})

	body, _ := json.Marshal(dto.SubmitBatchRequest{Entries: []dto.SubmitClearingRequest{{IntentID: "intent-1"}}})
	req := httptest.NewRequest(http.MethodPost, "/clearings/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.SubmitBatch(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got == "" {
		t.Fatal("expected Retry-After header on reservation conflict")
	}
}

func TestClearingHandler_Get(t *testing.T) {
	finalizedAt := time.Now().UTC()
	handler := NewClearingHandler(&clearingServiceStub{
		lookupFn: func(ctx context.Context, intentID string) (*domain.ClearingResult, error) {
			if intentID != "intent-1" {
				t.Fatalf("expected intent-1, got %s", intentID)
			}
			return &domain.ClearingResult{
				IntentID:    intentID,
				EntryID:     "entry-1",
				Status:      domain.StatusClearedFinalized,
				FinalizedAt: &finalizedAt,
				Replayed:    true,
			}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/clearings/intent-1", nil)
	req = setChiURLParam(req, "intentID", "intent-1")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestClearingHandler_Get_NotFound(t *testing.T) {
	handler := NewClearingHandler(&clearingServiceStub{
		lookupFn: func(ctx context.Context, intentID string) (*domain.ClearingResult, error) {
			return nil, domain.ErrIntentNotFound
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/clearings/intent-ghost", nil)
	req = setChiURLParam(req, "intentID", "intent-ghost")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
