package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NarrativeRecord is the append-only mirror projection of a finalized
// clearing: the entry as submitted plus the outcome the ledger authority
// assigned. It carries no authority of its own; when it disagrees with the
// ledger authority, the authority wins.
type NarrativeRecord struct {
	ID               string          `json:"id"`
	IntentID         string          `json:"intent_id"`
	EntryID          string          `json:"entry_id"`
	Source           Source          `json:"source"`
	Description      string          `json:"description,omitempty"`
	Lines            []NarrativeLine `json:"lines"`
	Status           EntryStatus     `json:"status"`
	LedgerTransferID string          `json:"ledger_transfer_id"`
	FinalizedAt      time.Time       `json:"finalized_at"`
	RecordedAt       time.Time       `json:"recorded_at"`
}

// NarrativeLine snapshots one entry line for read-side consumers, carrying
// both the exact minor-unit amount and its display form.
type NarrativeLine struct {
	LineNumber  int       `json:"line_number"`
	AccountID   string    `json:"account_id"`
	Direction   Direction `json:"direction"`
	AmountMinor uint64    `json:"amount_minor"`
	Amount      string    `json:"amount"`
	Description string    `json:"description,omitempty"`
}

// NewNarrativeRecord projects a finalized entry and its result into a mirror
// record. exponent is the power of ten between minor and display units.
func NewNarrativeRecord(id string, entry *Entry, result *ClearingResult, exponent int32, recordedAt time.Time) *NarrativeRecord {
	lines := make([]NarrativeLine, len(entry.Lines))
	for i, l := range entry.Lines {
		lines[i] = NarrativeLine{
			LineNumber:  l.LineNumber,
			AccountID:   l.AccountID,
			Direction:   l.Direction,
			AmountMinor: l.Amount,
			Amount:      FormatMinorAmount(l.Amount, exponent),
			Description: l.Description,
		}
	}

	finalizedAt := recordedAt
	if result.FinalizedAt != nil {
		finalizedAt = *result.FinalizedAt
	}

	return &NarrativeRecord{
		ID:               id,
		IntentID:         entry.IntentID,
		EntryID:          entry.ID,
		Source:           entry.Source,
		Description:      entry.Description,
		Lines:            lines,
		Status:           result.Status,
		LedgerTransferID: result.LedgerTransferID,
		FinalizedAt:      finalizedAt,
		RecordedAt:       recordedAt,
	}
}

// FormatMinorAmount renders an integer minor-unit amount in display units,
// e.g. 500 with exponent 2 becomes "5.00".
func FormatMinorAmount(amount uint64, exponent int32) string {
	return decimal.NewFromUint64(amount).Shift(-exponent).StringFixed(exponent)
}
