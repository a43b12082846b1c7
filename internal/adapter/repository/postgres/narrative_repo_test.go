package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

func TestNarrativeAppendIsIdempotent(t *testing.T) {
	mockPool := newMockPool(t)

	record := &domain.NarrativeRecord{
		ID:               "narr-2",
		IntentID:         "intent-1",
		EntryID:          "entry-1",
		Source:           domain.SourceCard,
		Lines:            []domain.NarrativeLine{{LineNumber: 1, AccountID: "acc-cash", AmountMinor: 500, Amount: "5.00"}},
		Status:           domain.StatusClearedFinalized,
		LedgerTransferID: "transfer-1",
		FinalizedAt:      time.Now().UTC(),
		RecordedAt:       time.Now().UTC(),
	}

	// The conflict clause swallows the duplicate; Append answers with the id
	// of the record already present.
	mockPool.ExpectExec(`INSERT INTO narrative_records`).
		WithArgs("narr-2", "intent-1", "entry-1", "CARD", "", pgxmock.AnyArg(),
			"CLEARED_FINALIZED", "transfer-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mockPool.ExpectQuery(`SELECT id FROM narrative_records WHERE intent_id = \$1`).
		WithArgs("intent-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("narr-1"))

	repo := &NarrativeRepository{pool: mockPool}

	id, err := repo.Append(context.Background(), record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "narr-1" {
		t.Fatalf("expected the existing record id, got %q", id)
	}

	assertExpectations(t, mockPool)
}

func TestNarrativeGetByIntentNotFound(t *testing.T) {
	mockPool := newMockPool(t)

	mockPool.ExpectQuery(`FROM narrative_records WHERE intent_id = \$1`).
		WithArgs("intent-ghost").
		WillReturnError(pgx.ErrNoRows)

	repo := &NarrativeRepository{pool: mockPool}

	if _, err := repo.GetByIntent(context.Background(), "intent-ghost"); !errors.Is(err, domain.ErrNarrativeNotFound) {
		t.Fatalf("expected ErrNarrativeNotFound, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestNarrativeQueryPlaceholderNumbering(t *testing.T) {
	mockPool := newMockPool(t)

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC()

	// Every active filter must land on its own ordinal placeholder.
	mockPool.ExpectQuery(`AND source = \$1 AND lines @> \$2 AND finalized_at >= \$3 AND finalized_at < \$4 ORDER BY finalized_at DESC, id DESC LIMIT \$5 OFFSET \$6`).
		WithArgs("CARD", pgxmock.AnyArg(), from, to, 25, 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "intent_id", "entry_id", "source", "description", "lines",
			"status", "ledger_transfer_id", "finalized_at", "recorded_at",
		}))

	repo := &NarrativeRepository{pool: mockPool}

	records, err := repo.Query(context.Background(), usecase.NarrativeFilter{
		Source:    "CARD",
		AccountID: "acc-cash",
		From:      &from,
		To:        &to,
		Limit:     25,
		Offset:    50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}

	assertExpectations(t, mockPool)
}
