package domain

import "time"

// Failure codes carried on non-successful clearing results. Rejections carry
// the itemized validation issues as well; these codes classify the attempt
// for callers that branch on outcome class rather than message text.
const (
	FailureValidation           = "validation_failed"
	FailureAuthorityRejected    = "authority_rejected"
	FailureAuthorityUnreachable = "authority_unreachable"
	FailureOutcomeUnknown       = "outcome_unknown"
	FailureOutcomePending       = "outcome_pending"
	FailureBatchAborted         = "batch_aborted"
)

// ClearingResult is the immutable outcome of one clearing attempt. Once a
// result reaches CLEARED_FINALIZED it is never mutated or deleted; a
// correction is a brand-new entry referencing the original.
type ClearingResult struct {
	IntentID         string      `json:"intent_id"`
	EntryID          string      `json:"entry_id"`
	Status           EntryStatus `json:"status"`
	LedgerTransferID string      `json:"ledger_transfer_id,omitempty"`
	LegTransferIDs   []string    `json:"leg_transfer_ids,omitempty"`
	FinalizedAt      *time.Time  `json:"finalized_at,omitempty"`
	ErrorCode        string      `json:"error_code,omitempty"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	Issues           []Issue     `json:"issues,omitempty"`
	Replayed         bool        `json:"replayed"`
}

// NewFinalizedResult builds the success outcome for an entry whose legs were
// all accepted by the ledger authority.
func NewFinalizedResult(entry *Entry, legTransferIDs []string, finalizedAt time.Time) *ClearingResult {
	r := &ClearingResult{
		IntentID:       entry.IntentID,
		EntryID:        entry.ID,
		Status:         StatusClearedFinalized,
		LegTransferIDs: legTransferIDs,
		FinalizedAt:    &finalizedAt,
	}
	if len(legTransferIDs) > 0 {
		r.LedgerTransferID = legTransferIDs[0]
	}
	return r
}

// NewRejectedResult builds the outcome for an entry the validator refused
// before any external call was made.
func NewRejectedResult(entry *Entry, issues []Issue) *ClearingResult {
	msg := "entry failed validation"
	if len(issues) > 0 {
		msg = issues[0].Message
	}
	return &ClearingResult{
		IntentID:     entry.IntentID,
		EntryID:      entry.ID,
		Status:       StatusRejected,
		ErrorCode:    FailureValidation,
		ErrorMessage: msg,
		Issues:       issues,
	}
}

// NewFailedResult builds the outcome for an attempt the ledger authority
// rejected or that could not complete.
func NewFailedResult(entry *Entry, code, message string) *ClearingResult {
	return &ClearingResult{
		IntentID:     entry.IntentID,
		EntryID:      entry.ID,
		Status:       StatusFailed,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// IntentClaim is the finality tracker's record for one intent: a live
// in-flight claim while a commit attempt runs, or a terminal result once one
// was recorded.
type IntentClaim struct {
	IntentID  string
	EntryID   string
	InFlight  bool
	Result    *ClearingResult
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Retryable reports whether resubmitting the same intent can still succeed.
// Finalized results replay from the tracker instead of recommitting, and
// rejected results need a corrected entry, so only failed attempts qualify.
func (r *ClearingResult) Retryable() bool {
	return r.Status == StatusFailed
}

// AsReplay returns a copy marked as an idempotent re-delivery of a previously
// recorded result.
func (r *ClearingResult) AsReplay() *ClearingResult {
	replay := *r
	replay.Replayed = true
	return &replay
}
