package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/infrastructure/metrics"
)

// BatchOutcome classifies how far a batch got.
type BatchOutcome string

const (
	BatchFullyCommitted     BatchOutcome = "fully_committed"
	BatchPartiallyCommitted BatchOutcome = "partially_committed"
	BatchFullyRejected      BatchOutcome = "fully_rejected"
)

// BatchResult is the per-batch report: one ClearingResult per submitted
// entry, in submission order, plus the overall classification. Warnings
// carry batch-shape advisories (mixed origins) that do not block execution.
type BatchResult struct {
	BatchID   string                   `json:"batch_id"`
	Outcome   BatchOutcome             `json:"outcome"`
	Results   []*domain.ClearingResult `json:"results"`
	Warnings  []domain.Issue           `json:"warnings,omitempty"`
	Attempted int                      `json:"attempted"`
	Finalized int                      `json:"finalized"`
	Rejected  int                      `json:"rejected"`
	Failed    int                      `json:"failed"`
}

// BatchManager clears a set of entries under a shared account reservation.
// Entries are committed one at a time; the first authority failure aborts
// the remainder because their balance preconditions were checked against a
// world that no longer holds.
type BatchManager struct {
	protocol     *ClearingProtocol
	validator    *EntryValidator
	reservations ReservationManager
	idGen        IDGenerator
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	ttl          time.Duration
}

// NewBatchManager creates a new BatchManager. metrics may be nil.
func NewBatchManager(
	protocol *ClearingProtocol,
	validator *EntryValidator,
	reservations ReservationManager,
	idGen IDGenerator,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *BatchManager {
	return &BatchManager{
		protocol:     protocol,
		validator:    validator,
		reservations: reservations,
		idGen:        idGen,
		metrics:      m,
		logger:       logger.With().Str("component", "batch_manager").Logger(),
		ttl:          DefaultReservationTTL,
	}
}

// WithReservationTTL overrides the bounded hold time for batch account
// reservations. Must be called during wiring. Non-positive values keep the
// default.
func (m *BatchManager) WithReservationTTL(ttl time.Duration) *BatchManager {
	if ttl > 0 {
		m.ttl = ttl
	}
	return m
}

// ExecuteAtomic clears the batch under one reservation spanning every
// account the batch touches. Returns ErrReservationConflict when another
// batch holds any of those accounts; the caller retries later.
func (m *BatchManager) ExecuteAtomic(ctx context.Context, entries []*domain.Entry) (*BatchResult, error) {
	batchID := m.idGen.Generate()
	logger := m.logger.With().Str("batch_id", batchID).Int("entries", len(entries)).Logger()

	vres := m.validator.BatchRules(entries)
	if !vres.Valid {
		// Nothing was submitted to the authority, so nothing is recorded in
		// the finality tracker either.
		return m.rejectAll(batchID, entries, vres), nil
	}

	reservation, err := m.reserve(ctx, entries)
	if err != nil {
		if m.metrics != nil {
			m.metrics.ReservationConflicts.Inc()
		}
		return nil, err
	}
	defer func() {
		if relErr := m.reservations.Release(context.WithoutCancel(ctx), reservation); relErr != nil {
			logger.Warn().Err(relErr).Msg("reservation release failed, will expire by TTL")
		}
	}()

	result := m.clearAll(ctx, batchID, entries, logger)
	result.Warnings = vres.Warnings

	if m.metrics != nil {
		m.metrics.BatchesExecuted.WithLabelValues(string(result.Outcome)).Inc()
		m.metrics.BatchSize.Observe(float64(len(entries)))
	}
	logger.Info().
		Str("outcome", string(result.Outcome)).
		Int("finalized", result.Finalized).
		Int("rejected", result.Rejected).
		Int("failed", result.Failed).
		Msg("batch executed")

	return result, nil
}

// reserve acquires every account the batch touches in one call. Account ids
// are deduplicated and sorted by the reservation manager, so two batches
// over overlapping accounts can never deadlock each other.
func (m *BatchManager) reserve(ctx context.Context, entries []*domain.Entry) (*Reservation, error) {
	seen := make(map[string]struct{})
	var accountIDs []string
	for _, entry := range entries {
		for _, id := range entry.AccountIDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			accountIDs = append(accountIDs, id)
		}
	}
	return m.reservations.Acquire(ctx, accountIDs, m.ttl)
}

// clearAll runs entries through the protocol in submission order. A FAILED
// outcome aborts the remainder; REJECTED outcomes are deterministic per
// entry and do not.
func (m *BatchManager) clearAll(ctx context.Context, batchID string, entries []*domain.Entry, logger zerolog.Logger) *BatchResult {
	result := &BatchResult{
		BatchID: batchID,
		Results: make([]*domain.ClearingResult, 0, len(entries)),
	}

	aborted := false
	for _, entry := range entries {
		if aborted {
			result.Results = append(result.Results, pendingResult(entry))
			continue
		}

		res, err := m.protocol.Clear(ctx, entry)
		if err != nil {
			logger.Error().Err(err).Str("intent_id", entry.IntentID).Msg("clearing errored, aborting batch")
			res = domain.NewFailedResult(entry, domain.FailureOutcomeUnknown, err.Error())
		}
		result.Results = append(result.Results, res)
		result.Attempted++

		switch res.Status {
		case domain.StatusClearedFinalized:
			result.Finalized++
		case domain.StatusRejected:
			result.Rejected++
		case domain.StatusFailed:
			result.Failed++
			aborted = true
		}
	}

	result.Outcome = classify(result)
	return result
}

// rejectAll reports a batch that failed structural validation: every entry
// comes back REJECTED with the batch-level issues, none recorded.
func (m *BatchManager) rejectAll(batchID string, entries []*domain.Entry, vres *domain.ValidationResult) *BatchResult {
	result := &BatchResult{
		BatchID:  batchID,
		Outcome:  BatchFullyRejected,
		Results:  make([]*domain.ClearingResult, 0, len(entries)),
		Warnings: vres.Warnings,
	}
	for _, entry := range entries {
		result.Results = append(result.Results, domain.NewRejectedResult(entry, vres.Errors))
		result.Rejected++
	}
	if m.metrics != nil {
		m.metrics.BatchesExecuted.WithLabelValues(string(BatchFullyRejected)).Inc()
	}
	return result
}

func pendingResult(entry *domain.Entry) *domain.ClearingResult {
	return &domain.ClearingResult{
		IntentID:     entry.IntentID,
		EntryID:      entry.ID,
		Status:       domain.StatusPending,
		ErrorCode:    domain.FailureBatchAborted,
		ErrorMessage: "batch aborted before this entry was attempted",
	}
}

func classify(result *BatchResult) BatchOutcome {
	switch {
	case result.Finalized == len(result.Results):
		return BatchFullyCommitted
	case result.Finalized > 0:
		return BatchPartiallyCommitted
	default:
		return BatchFullyRejected
	}
}
