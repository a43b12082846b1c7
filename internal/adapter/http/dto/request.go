package dto

import (
	"time"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

// ClearingLineRequest is one leg of a submitted entry. Amounts are integer
// minor units; direction and account id are passed through raw so the
// validator can itemize every defect instead of the decoder rejecting the
// first one.
type ClearingLineRequest struct {
	LineNumber  int    `json:"line_number"`
	AccountID   string `json:"account_id"`
	Direction   string `json:"direction"`
	AmountMinor uint64 `json:"amount_minor"`
	Description string `json:"description,omitempty"`
}

// SubmitClearingRequest represents a request to clear a single entry.
type SubmitClearingRequest struct {
	IntentID     string                `json:"intent_id"`
	EntryID      string                `json:"entry_id"`
	Date         time.Time             `json:"date"`
	Description  string                `json:"description"`
	Source       string                `json:"source"`
	CorrectionOf string                `json:"correction_of,omitempty"`
	Lines        []ClearingLineRequest `json:"lines"`
}

// ToDomain converts the request to a domain entry without judging it; the
// validator owns all verdicts.
func (r *SubmitClearingRequest) ToDomain() *domain.Entry {
	lines := make([]domain.EntryLine, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = domain.EntryLine{
			LineNumber:  l.LineNumber,
			AccountID:   l.AccountID,
			Direction:   domain.Direction(l.Direction),
			Amount:      l.AmountMinor,
			Description: l.Description,
		}
	}

	return &domain.Entry{
		ID:           r.EntryID,
		IntentID:     r.IntentID,
		Date:         r.Date,
		Description:  r.Description,
		Source:       domain.Source(r.Source),
		Status:       domain.StatusPending,
		CorrectionOf: r.CorrectionOf,
		Lines:        lines,
	}
}

// SubmitBatchRequest represents a request to clear a set of entries under
// one shared account reservation.
type SubmitBatchRequest struct {
	Entries []SubmitClearingRequest `json:"entries"`
}

// ToDomain converts every batch item to a domain entry.
func (r *SubmitBatchRequest) ToDomain() []*domain.Entry {
	entries := make([]*domain.Entry, len(r.Entries))
	for i := range r.Entries {
		entries[i] = r.Entries[i].ToDomain()
	}
	return entries
}

// ProvisionAccountRequest represents a request to provision an account.
type ProvisionAccountRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	AllowNegative *bool  `json:"allow_negative,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *ProvisionAccountRequest) ToUseCaseInput() usecase.ProvisionAccountInput {
	return usecase.ProvisionAccountInput{
		ID:            r.ID,
		Name:          r.Name,
		Type:          r.Type,
		AllowNegative: r.AllowNegative,
	}
}

// SetAccountActiveRequest toggles an account's active flag.
type SetAccountActiveRequest struct {
	Active bool `json:"active"`
}
