package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/sovrhq/clearing/internal/domain"
)

// ConsistencyChecker compares the finality tracker against the mirror and
// the authority's transfer log. The mirror is eventually consistent, so a
// missing narrative is a lag signal first and a loss signal only once the
// outbox is drained; a finalized record whose legs do not resolve at the
// authority is always a defect.
type ConsistencyChecker struct {
	finality   FinalityStore
	authority  LedgerAuthority
	mirror     MirrorStore
	outboxRepo OutboxRepository
}

// NewConsistencyChecker creates a new ConsistencyChecker.
func NewConsistencyChecker(finality FinalityStore, authority LedgerAuthority, mirror MirrorStore, outboxRepo OutboxRepository) *ConsistencyChecker {
	return &ConsistencyChecker{
		finality:   finality,
		authority:  authority,
		mirror:     mirror,
		outboxRepo: outboxRepo,
	}
}

// IntentConsistency represents the mirror and authority state of one intent.
type IntentConsistency struct {
	IntentID       string     `json:"intent_id"`
	EntryID        string     `json:"entry_id"`
	FinalizedAt    *time.Time `json:"finalized_at,omitempty"`
	Mirrored       bool       `json:"mirrored"`
	OutboxPending  bool       `json:"outbox_pending"`
	NarrativeMatch bool       `json:"narrative_match"`
	AuthorityMatch bool       `json:"authority_match"`
}

// CheckIntent verifies that a finalized intent has a matching narrative
// record and that every leg it claims resolves at the authority.
// Non-finalized intents are consistent by definition: the mirror must hold
// nothing for them, and nothing is asserted about the authority.
func (c *ConsistencyChecker) CheckIntent(ctx context.Context, intentID string) (*IntentConsistency, error) {
	claim, err := c.finality.Lookup(ctx, intentID)
	if err != nil {
		return nil, err
	}

	check := &IntentConsistency{
		IntentID: claim.IntentID,
		EntryID:  claim.EntryID,
	}
	if claim.Result == nil || !claim.Result.Status.Finalized() {
		record, err := c.mirror.GetByIntent(ctx, intentID)
		if err != nil && !errors.Is(err, domain.ErrNarrativeNotFound) {
			return nil, err
		}
		// An orphan narrative for a non-finalized intent is a real defect.
		check.Mirrored = record != nil
		check.NarrativeMatch = record == nil
		check.AuthorityMatch = true
		return check, nil
	}

	check.FinalizedAt = claim.Result.FinalizedAt

	match, err := c.legsResolve(ctx, claim.Result)
	if err != nil {
		return nil, err
	}
	check.AuthorityMatch = match

	record, err := c.mirror.GetByIntent(ctx, intentID)
	if errors.Is(err, domain.ErrNarrativeNotFound) {
		pending, pendErr := c.outboxRepo.HasUnpublished(ctx, intentID)
		if pendErr != nil {
			return nil, pendErr
		}
		check.OutboxPending = pending
		check.NarrativeMatch = pending
		return check, nil
	}
	if err != nil {
		return nil, err
	}

	check.Mirrored = true
	check.NarrativeMatch = record.EntryID == claim.EntryID &&
		record.LedgerTransferID == claim.Result.LedgerTransferID
	return check, nil
}

// legsResolve confirms the authority holds every transfer the finalized
// result claims, under the same deterministic leg keys the protocol commits
// with.
func (c *ConsistencyChecker) legsResolve(ctx context.Context, result *domain.ClearingResult) (bool, error) {
	for i, legID := range result.LegTransferIDs {
		outcome, err := c.authority.GetTransferByIntent(ctx, domain.LegIntentKey(result.IntentID, i))
		if errors.Is(err, domain.ErrTransferNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !outcome.Accepted || outcome.TransferID != legID {
			return false, nil
		}
	}
	return true, nil
}

// ConsistencyReport represents a sweep over recently finalized intents.
type ConsistencyReport struct {
	CheckedIntents   int                  `json:"checked_intents"`
	Mirrored         int                  `json:"mirrored"`
	OutboxBacklog    int                  `json:"outbox_backlog"`
	Discrepancies    []*IntentConsistency `json:"discrepancies"`
	MirrorConsistent bool                 `json:"mirror_consistent"`
	CheckedAt        time.Time            `json:"checked_at"`
}

// Report sweeps finalized intents since the given time and classifies each
// one. Intents whose narrative is still queued in the outbox count toward
// the backlog, not the discrepancies.
func (c *ConsistencyChecker) Report(ctx context.Context, since time.Time, limit int) (*ConsistencyReport, error) {
	limit, _ = domain.ValidatePagination(limit, 0)

	finalized, err := c.finality.ListFinalized(ctx, since, limit)
	if err != nil {
		return nil, err
	}

	backlog, err := c.outboxRepo.CountUnpublished(ctx)
	if err != nil {
		return nil, err
	}

	report := &ConsistencyReport{
		OutboxBacklog: int(backlog),
		Discrepancies: make([]*IntentConsistency, 0),
		CheckedAt:     time.Now().UTC(),
	}

	for _, res := range finalized {
		check, err := c.CheckIntent(ctx, res.IntentID)
		if err != nil {
			return nil, err
		}
		report.CheckedIntents++
		if check.Mirrored {
			report.Mirrored++
		}
		if !check.NarrativeMatch || !check.AuthorityMatch {
			report.Discrepancies = append(report.Discrepancies, check)
		}
	}

	report.MirrorConsistent = len(report.Discrepancies) == 0
	return report, nil
}
