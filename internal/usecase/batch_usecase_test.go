package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
	"github.com/sovrhq/clearing/internal/usecase/mocks"
)

type batchFixture struct {
	finality     *mocks.MockFinalityStore
	authority    *mocks.MockLedgerAuthority
	outbox       *mocks.MockOutboxRepository
	reservations *mocks.MockReservationManager
	manager      *usecase.BatchManager
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &batchFixture{
		finality:     mocks.NewMockFinalityStore(),
		authority:    mocks.NewMockLedgerAuthority(),
		outbox:       mocks.NewMockOutboxRepository(),
		reservations: mocks.NewMockReservationManager(),
	}
	f.authority.SetBalance("acc-cash", 10_000)

	validator := usecase.NewEntryValidator(registryFor(t, ctrl), f.finality, f.authority, usecase.DefaultValidationLimits())
	protocol := usecase.NewClearingProtocol(
		validator,
		f.finality,
		f.authority,
		mocks.NewMockTransactionManager(),
		f.outbox,
		nil,
		mocks.NewMockIDGenerator(),
		nil,
		zerolog.Nop(),
		2,
	)
	f.manager = usecase.NewBatchManager(protocol, validator, f.reservations, mocks.NewMockIDGenerator(), nil, zerolog.Nop())
	return f
}

func batchOf(n int) []*domain.Entry {
	entries := make([]*domain.Entry, 0, n)
	for i := 0; i < n; i++ {
		e := balancedEntry()
		e.ID = fmt.Sprintf("entry-%d", i)
		e.IntentID = fmt.Sprintf("intent-%d", i)
		entries = append(entries, e)
	}
	return entries
}

func TestBatchManager_ExecuteAtomic_AllFinalize(t *testing.T) {
	f := newBatchFixture(t)

	result, err := f.manager.ExecuteAtomic(context.Background(), batchOf(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != usecase.BatchFullyCommitted {
		t.Fatalf("expected fully_committed, got %s", result.Outcome)
	}
	if result.Finalized != 3 || result.Attempted != 3 {
		t.Errorf("expected 3 finalized of 3 attempted, got %d of %d", result.Finalized, result.Attempted)
	}
	if got := f.authority.CommittedTransfers(); got != 3 {
		t.Errorf("expected 3 committed transfers, got %d", got)
	}
	if held := f.reservations.HeldAccounts(); len(held) != 0 {
		t.Errorf("reservations must be released, still held: %v", held)
	}
}

func TestBatchManager_ExecuteAtomic_AbortsAfterAuthorityFailure(t *testing.T) {
	f := newBatchFixture(t)

	entries := batchOf(3)
	// The middle entry passes validation (the registry allows acc-revenue
	// below zero) but the authority refuses it.
	entries[1].Lines[0].AccountID = "acc-revenue"
	entries[1].Lines[1].AccountID = "acc-settlement"

	result, err := f.manager.ExecuteAtomic(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != usecase.BatchPartiallyCommitted {
		t.Fatalf("expected partially_committed, got %s", result.Outcome)
	}
	if result.Attempted != 2 {
		t.Errorf("expected 2 attempted, got %d", result.Attempted)
	}
	if result.Results[0].Status != domain.StatusClearedFinalized {
		t.Errorf("entry 0 should finalize, got %s", result.Results[0].Status)
	}
	if result.Results[1].Status != domain.StatusFailed {
		t.Errorf("entry 1 should fail, got %s", result.Results[1].Status)
	}
	if result.Results[2].Status != domain.StatusPending || result.Results[2].ErrorCode != domain.FailureBatchAborted {
		t.Errorf("entry 2 should report the abort, got %+v", result.Results[2])
	}
	if got := f.authority.CommittedTransfers(); got != 1 {
		t.Errorf("committing must stop at the failure, got %d transfers", got)
	}

	// The unattempted intent must not be burned: nothing recorded for it.
	if claim := f.finality.Claim("intent-2"); claim != nil {
		t.Errorf("unattempted entry must leave no claim, got %+v", claim)
	}
	if held := f.reservations.HeldAccounts(); len(held) != 0 {
		t.Errorf("reservations must be released after an abort, still held: %v", held)
	}
}

func TestBatchManager_ExecuteAtomic_RejectionsDoNotAbort(t *testing.T) {
	f := newBatchFixture(t)

	entries := batchOf(3)
	entries[0].Lines[1].Amount = 499

	result, err := f.manager.ExecuteAtomic(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != usecase.BatchPartiallyCommitted {
		t.Fatalf("expected partially_committed, got %s", result.Outcome)
	}
	if result.Rejected != 1 || result.Finalized != 2 || result.Attempted != 3 {
		t.Errorf("expected 1 rejected and 2 finalized of 3 attempted, got %+v", result)
	}
	if result.Results[0].Status != domain.StatusRejected {
		t.Errorf("entry 0 should be rejected, got %s", result.Results[0].Status)
	}
}

func TestBatchManager_ExecuteAtomic_AllRejected(t *testing.T) {
	f := newBatchFixture(t)

	entries := batchOf(2)
	entries[0].Lines[1].Amount = 499
	entries[1].Lines[1].Amount = 1

	result, err := f.manager.ExecuteAtomic(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != usecase.BatchFullyRejected {
		t.Fatalf("expected fully_rejected, got %s", result.Outcome)
	}
	if result.Rejected != 2 {
		t.Errorf("expected 2 rejected, got %d", result.Rejected)
	}
	if got := f.authority.CommittedTransfers(); got != 0 {
		t.Errorf("nothing may commit, got %d transfers", got)
	}
}

func TestBatchManager_ExecuteAtomic_DuplicateIntents(t *testing.T) {
	f := newBatchFixture(t)

	entries := batchOf(2)
	entries[1].IntentID = entries[0].IntentID

	result, err := f.manager.ExecuteAtomic(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != usecase.BatchFullyRejected {
		t.Fatalf("expected fully_rejected, got %s", result.Outcome)
	}
	if got := f.authority.CommittedTransfers(); got != 0 {
		t.Errorf("a malformed batch must not reach the authority, got %d transfers", got)
	}
	// Batch-level rejection burns no intents.
	if claim := f.finality.Claim(entries[0].IntentID); claim != nil {
		t.Errorf("expected no claim for %s, got %+v", entries[0].IntentID, claim)
	}
}

func TestBatchManager_ExecuteAtomic_ReservationConflict(t *testing.T) {
	f := newBatchFixture(t)

	// Another batch already holds one of the accounts.
	if _, err := f.reservations.Acquire(context.Background(), []string{"acc-cash"}, usecase.DefaultReservationTTL); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	_, err := f.manager.ExecuteAtomic(context.Background(), batchOf(2))
	if !errors.Is(err, domain.ErrReservationConflict) {
		t.Fatalf("expected ErrReservationConflict, got %v", err)
	}
	if got := f.authority.CommittedTransfers(); got != 0 {
		t.Errorf("a blocked batch must not commit, got %d transfers", got)
	}
}

func TestBatchManager_ExecuteAtomic_MixedOriginsWarn(t *testing.T) {
	f := newBatchFixture(t)

	entries := batchOf(2)
	entries[1].Source = domain.SourceACH

	result, err := f.manager.ExecuteAtomic(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != usecase.BatchFullyCommitted {
		t.Fatalf("mixed origins must not block the batch, got %s", result.Outcome)
	}
	found := false
	for _, w := range result.Warnings {
		if w.Code == domain.IssueMixedOrigins {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a mixed_origins warning, got %+v", result.Warnings)
	}
}
