package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sovrhq/clearing/internal/domain"
)

// NarrativeService is the read side of the mirror. Everything it returns is
// non-authoritative: the ledger authority holds the balances, the mirror
// holds the story.
type NarrativeService struct {
	mirror   MirrorStore
	finality FinalityStore
}

// NewNarrativeService creates a new NarrativeService.
func NewNarrativeService(mirror MirrorStore, finality FinalityStore) *NarrativeService {
	return &NarrativeService{
		mirror:   mirror,
		finality: finality,
	}
}

// GetByIntent returns the narrative record for a finalized intent. A
// finalized clearing whose record has not been mirrored yet reports
// ErrNarrativeNotFound with a lag hint rather than inventing a record.
func (s *NarrativeService) GetByIntent(ctx context.Context, intentID string) (*domain.NarrativeRecord, error) {
	record, err := s.mirror.GetByIntent(ctx, intentID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrNarrativeNotFound) {
		return nil, err
	}

	// Distinguish "never finalized" from "finalized, mirror lagging".
	claim, lookupErr := s.finality.Lookup(ctx, intentID)
	if lookupErr == nil && claim.Result != nil && claim.Result.Status.Finalized() {
		return nil, fmt.Errorf("%w: intent %s finalized, mirror pending", domain.ErrNarrativeNotFound, intentID)
	}
	return nil, err
}

// QueryNarrativesInput represents input for querying narrative records.
type QueryNarrativesInput struct {
	Source    string
	AccountID string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Query lists narrative records matching the filter, newest first.
func (s *NarrativeService) Query(ctx context.Context, input QueryNarrativesInput) ([]*domain.NarrativeRecord, error) {
	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)

	filter := NarrativeFilter{
		AccountID: input.AccountID,
		From:      input.From,
		To:        input.To,
		Limit:     limit,
		Offset:    offset,
	}
	if input.Source != "" {
		source, err := domain.ParseSource(input.Source)
		if err != nil {
			return nil, err
		}
		filter.Source = string(source)
	}

	return s.mirror.Query(ctx, filter)
}
