package domain

import (
	"fmt"
	"sort"
	"time"
)

// Direction marks which side of the books an entry line touches.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// ParseDirection converts a raw string into a Direction.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(raw) {
	case DirectionDebit:
		return DirectionDebit, nil
	case DirectionCredit:
		return DirectionCredit, nil
	}
	return "", ErrInvalidDirection
}

// Source identifies the subsystem that originated an entry.
type Source string

const (
	SourceACH        Source = "ACH"
	SourceCard       Source = "CARD"
	SourceAnchor     Source = "ANCHOR"
	SourceInternal   Source = "INTERNAL"
	SourceCorrection Source = "CORRECTION"
)

// ParseSource converts a raw string into a Source.
func ParseSource(raw string) (Source, error) {
	s := Source(raw)
	if s.Recognized() {
		return s, nil
	}
	return "", ErrUnknownSource
}

// Recognized reports whether the tag belongs to the closed source set.
func (s Source) Recognized() bool {
	switch s {
	case SourceACH, SourceCard, SourceAnchor, SourceInternal, SourceCorrection:
		return true
	}
	return false
}

// EntryStatus tracks an entry through the clearing lifecycle.
type EntryStatus string

const (
	StatusPending          EntryStatus = "PENDING"
	StatusClearedFinalized EntryStatus = "CLEARED_FINALIZED"
	StatusRejected         EntryStatus = "REJECTED"
	StatusFailed           EntryStatus = "FAILED"
)

// Terminal reports whether the status is an end state.
func (s EntryStatus) Terminal() bool {
	switch s {
	case StatusClearedFinalized, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// Finalized reports whether the status is the irreversible success state.
func (s EntryStatus) Finalized() bool {
	return s == StatusClearedFinalized
}

// EntryLine is one side of a journal entry. Amounts are unsigned integers in
// the smallest currency unit; floating point never enters the model.
type EntryLine struct {
	AccountID   string
	Direction   Direction
	Amount      uint64
	Description string
	LineNumber  int
}

// Entry is the atomic unit of the double-entry model: an ordered, balanced
// set of debit and credit lines submitted under a caller-assigned id and
// idempotency intent.
type Entry struct {
	ID           string
	IntentID     string
	Date         time.Time
	Description  string
	Source       Source
	Status       EntryStatus
	CorrectionOf string
	Lines        []EntryLine
	CreatedAt    time.Time
}

// DebitTotal sums all DEBIT line amounts.
func (e *Entry) DebitTotal() uint64 {
	var total uint64
	for _, l := range e.Lines {
		if l.Direction == DirectionDebit {
			total += l.Amount
		}
	}
	return total
}

// CreditTotal sums all CREDIT line amounts.
func (e *Entry) CreditTotal() uint64 {
	var total uint64
	for _, l := range e.Lines {
		if l.Direction == DirectionCredit {
			total += l.Amount
		}
	}
	return total
}

// Balanced reports whether debit and credit totals match exactly.
func (e *Entry) Balanced() bool {
	return e.DebitTotal() == e.CreditTotal()
}

// Imbalance returns debit total minus credit total as a signed quantity so
// rejections can name the exact gap.
func (e *Entry) Imbalance() int64 {
	d, c := e.DebitTotal(), e.CreditTotal()
	if d >= c {
		return int64(d - c)
	}
	return -int64(c - d)
}

// LinesContiguous reports whether line numbers form a gap-free 1..N sequence
// in order.
func (e *Entry) LinesContiguous() bool {
	for i, l := range e.Lines {
		if l.LineNumber != i+1 {
			return false
		}
	}
	return true
}

// AccountIDs returns the distinct referenced account ids in sorted order.
// Sorted order is what reservation and locking layers rely on to acquire
// accounts deterministically.
func (e *Entry) AccountIDs() []string {
	seen := make(map[string]struct{}, len(e.Lines))
	ids := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		ids = append(ids, l.AccountID)
	}
	sort.Strings(ids)
	return ids
}

// TransferLeg is a single debit-account to credit-account movement derived
// from an entry. The ledger authority commits one transfer per leg.
type TransferLeg struct {
	DebitAccountID  string
	CreditAccountID string
	Amount          uint64
}

// TransferLegs decomposes a balanced entry into the deterministic sequence of
// account-to-account legs the ledger authority can commit. Debit lines are
// matched against credit lines in line-number order; a two-line entry yields
// exactly one leg. The decomposition is only meaningful for balanced entries.
func (e *Entry) TransferLegs() []TransferLeg {
	type side struct {
		accountID string
		remaining uint64
	}

	var debits, credits []side
	for _, l := range e.Lines {
		if l.Amount == 0 {
			continue
		}
		switch l.Direction {
		case DirectionDebit:
			debits = append(debits, side{l.AccountID, l.Amount})
		case DirectionCredit:
			credits = append(credits, side{l.AccountID, l.Amount})
		}
	}

	var legs []TransferLeg
	i, j := 0, 0
	for i < len(debits) && j < len(credits) {
		amount := debits[i].remaining
		if credits[j].remaining < amount {
			amount = credits[j].remaining
		}
		legs = append(legs, TransferLeg{
			DebitAccountID:  debits[i].accountID,
			CreditAccountID: credits[j].accountID,
			Amount:          amount,
		})
		debits[i].remaining -= amount
		credits[j].remaining -= amount
		if debits[i].remaining == 0 {
			i++
		}
		if credits[j].remaining == 0 {
			j++
		}
	}
	return legs
}

// LegIntentKey derives the idempotency key the ledger authority sees for one
// leg of an entry. The first leg uses the bare intent id, so the common
// two-line entry is committed under the intent id itself; later legs get a
// stable suffixed key so a resumed attempt replays them idempotently.
func LegIntentKey(intentID string, index int) string {
	if index == 0 {
		return intentID
	}
	return fmt.Sprintf("%s:%d", intentID, index)
}

// NewReversalEntry builds the compensating entry for a finalized original:
// same lines with swapped directions, source CORRECTION, and a reference back
// to the original. Finalized entries are never edited; this is the only
// sanctioned way to undo one.
func NewReversalEntry(original *Entry, id, intentID string, now time.Time) *Entry {
	lines := make([]EntryLine, len(original.Lines))
	for i, l := range original.Lines {
		dir := DirectionDebit
		if l.Direction == DirectionDebit {
			dir = DirectionCredit
		}
		lines[i] = EntryLine{
			AccountID:   l.AccountID,
			Direction:   dir,
			Amount:      l.Amount,
			Description: l.Description,
			LineNumber:  l.LineNumber,
		}
	}
	return &Entry{
		ID:           id,
		IntentID:     intentID,
		Date:         now,
		Description:  "reversal of " + original.ID,
		Source:       SourceCorrection,
		Status:       StatusPending,
		CorrectionOf: original.ID,
		Lines:        lines,
		CreatedAt:    now,
	}
}
