package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxDescriptionLength     = 500
	MaxLineDescriptionLength = 255
	MaxIdentifierLength      = 128
	MinEntryLines            = 2
)

// IssueCode classifies a single violated invariant.
type IssueCode string

const (
	IssueMissingField        IssueCode = "missing_field"
	IssueTooFewLines         IssueCode = "too_few_lines"
	IssueLineNumbering       IssueCode = "line_numbering"
	IssueInvalidIdentifier   IssueCode = "invalid_identifier"
	IssueUnbalanced          IssueCode = "unbalanced"
	IssueZeroValue           IssueCode = "zero_value"
	IssueAccountNotFound     IssueCode = "account_not_found"
	IssueAccountInactive     IssueCode = "account_inactive"
	IssueAmountNotPositive   IssueCode = "amount_not_positive"
	IssueAmountCeiling       IssueCode = "amount_ceiling"
	IssueAmountPrecision     IssueCode = "amount_precision"
	IssueUnknownSource       IssueCode = "unknown_source"
	IssueFutureDate          IssueCode = "future_date"
	IssueCorrectionReference IssueCode = "correction_reference"
	IssueIntentConflict      IssueCode = "intent_conflict"
	IssueInsufficientBalance IssueCode = "insufficient_balance"
	IssueDuplicateInBatch    IssueCode = "duplicate_in_batch"
	IssueBatchTooLarge       IssueCode = "batch_too_large"
	IssueMixedOrigins        IssueCode = "mixed_origins"
)

// Issue is one itemized validation finding. Field names the offending part
// of the entry (for line findings, "lines[i]" with the zero-based index).
type Issue struct {
	Code    IssueCode `json:"code"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

// ValidationResult collects every finding for an entry or batch so a caller
// can fix all problems in one round trip.
type ValidationResult struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// AddError appends an error finding and marks the result invalid.
func (r *ValidationResult) AddError(code IssueCode, field, format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, Issue{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

// AddWarning appends a non-fatal finding.
func (r *ValidationResult) AddWarning(code IssueCode, field, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Merge folds another result into this one, prefixing issue fields for batch
// reporting.
func (r *ValidationResult) Merge(prefix string, other *ValidationResult) {
	if !other.Valid {
		r.Valid = false
	}
	for _, iss := range other.Errors {
		iss.Field = joinField(prefix, iss.Field)
		r.Errors = append(r.Errors, iss)
	}
	for _, iss := range other.Warnings {
		iss.Field = joinField(prefix, iss.Field)
		r.Warnings = append(r.Warnings, iss)
	}
}

func joinField(prefix, field string) string {
	if field == "" {
		return prefix
	}
	return prefix + "." + field
}

// ValidationError carries an itemized ValidationResult across an error
// boundary.
type ValidationError struct {
	Result *ValidationResult
}

func (e *ValidationError) Error() string {
	if e.Result == nil || len(e.Result.Errors) == 0 {
		return "validation failed"
	}
	codes := make([]string, len(e.Result.Errors))
	for i, iss := range e.Result.Errors {
		codes[i] = string(iss.Code)
	}
	return "validation failed: " + strings.Join(codes, ", ")
}

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// ValidateIdentifier checks a caller-supplied id (entry id, intent id,
// account id): non-empty, bounded length, stable numeric or namespaced form.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if len(id) > MaxIdentifierLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidIdentifier, MaxIdentifierLength)
	}
	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}

// AmountPrecisionOK reports whether an integer minor-unit amount stays within
// maxPlaces decimal places once converted to display units. With exponent 2
// and maxPlaces 2 every amount passes; with maxPlaces 0 the amount must be a
// whole display unit.
func AmountPrecisionOK(amount uint64, exponent, maxPlaces int32) bool {
	if maxPlaces >= exponent {
		return true
	}
	d := decimal.NewFromUint64(amount).Shift(-exponent)
	return d.Equal(d.Truncate(maxPlaces))
}

// ValidateDescription checks the entry-level description.
func ValidateDescription(desc string) error {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return fmt.Errorf("%w: description", ErrMissingField)
	}
	if len(desc) > MaxDescriptionLength {
		return fmt.Errorf("description exceeds %d characters", MaxDescriptionLength)
	}
	return nil
}

// ValidateEntryDate rejects dates in the future beyond a small skew
// allowance.
func ValidateEntryDate(date, now time.Time) error {
	const maxSkew = 5 * time.Minute
	if date.After(now.Add(maxSkew)) {
		return fmt.Errorf("entry date %s is in the future", date.Format(time.RFC3339))
	}
	return nil
}

// ValidatePagination clamps pagination parameters to sane bounds.
func ValidatePagination(limit, offset int) (int, int) {
	const maxPageSize = 1000
	const defaultPageSize = 50

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
