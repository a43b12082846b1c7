package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sovrhq/clearing/internal/domain"
)

// ValidationLimits are the configurable ceilings the validator enforces.
type ValidationLimits struct {
	// MaxLineAmount is the per-line ceiling in minor units.
	MaxLineAmount uint64
	// CurrencyExponent is the power of ten between minor and display units.
	CurrencyExponent int32
	// MaxDecimalPlaces caps sub-unit precision once converted to display
	// units.
	MaxDecimalPlaces int32
	// MaxBatchEntries caps the size of an atomic batch.
	MaxBatchEntries int
}

// DefaultValidationLimits returns production defaults: cent-denominated
// amounts up to one billion display units per line, batches up to 100
// entries.
func DefaultValidationLimits() ValidationLimits {
	return ValidationLimits{
		MaxLineAmount:    100_000_000_000,
		CurrencyExponent: 2,
		MaxDecimalPlaces: 2,
		MaxBatchEntries:  100,
	}
}

// EntryValidator runs every invariant check an entry must pass before it may
// reach the ledger authority. It never mutates state; all lookups are
// read-only.
type EntryValidator struct {
	accounts  AccountRegistry
	finality  FinalityStore
	authority LedgerAuthority
	limits    ValidationLimits
}

// NewEntryValidator creates a new EntryValidator.
func NewEntryValidator(
	accounts AccountRegistry,
	finality FinalityStore,
	authority LedgerAuthority,
	limits ValidationLimits,
) *EntryValidator {
	return &EntryValidator{
		accounts:  accounts,
		finality:  finality,
		authority: authority,
		limits:    limits,
	}
}

// Validate checks a single entry. The returned result itemizes every
// violated invariant so a caller can fix all problems in one round trip; the
// error return is reserved for lookup infrastructure failures.
func (v *EntryValidator) Validate(ctx context.Context, entry *domain.Entry) (*domain.ValidationResult, error) {
	res := &domain.ValidationResult{Valid: true}

	// Structural failures make the remaining checks meaningless.
	v.checkStructure(entry, res)
	if !res.Valid {
		return res, nil
	}

	v.checkBalance(entry, res)
	if err := v.checkAccounts(ctx, entry, res); err != nil {
		return nil, err
	}
	v.checkAmounts(entry, res)
	if err := v.checkBusinessRules(ctx, entry, res); err != nil {
		return nil, err
	}
	if err := v.checkCrossReferences(ctx, entry, res); err != nil {
		return nil, err
	}
	if err := v.checkSufficiency(ctx, entry, res); err != nil {
		return nil, err
	}

	return res, nil
}

// BatchRules checks the batch-level invariants alone: a non-empty batch of
// bounded size with unique entry and intent ids, plus a warning when entries
// mix originating sources. Per-entry validity is a separate concern decided
// entry by entry.
func (v *EntryValidator) BatchRules(entries []*domain.Entry) *domain.ValidationResult {
	res := &domain.ValidationResult{Valid: true}

	if len(entries) == 0 {
		res.AddError(domain.IssueMissingField, "entries", "batch contains no entries")
		return res
	}
	if len(entries) > v.limits.MaxBatchEntries {
		res.AddError(domain.IssueBatchTooLarge, "entries",
			"batch of %d entries exceeds ceiling of %d", len(entries), v.limits.MaxBatchEntries)
		return res
	}

	seenIDs := make(map[string]int, len(entries))
	seenIntents := make(map[string]int, len(entries))
	sources := make(map[domain.Source]struct{})

	for i, entry := range entries {
		field := fmt.Sprintf("entries[%d]", i)

		if prev, ok := seenIDs[entry.ID]; ok {
			res.AddError(domain.IssueDuplicateInBatch, field,
				"entry id %q duplicates entries[%d]", entry.ID, prev)
		} else {
			seenIDs[entry.ID] = i
		}
		if prev, ok := seenIntents[entry.IntentID]; ok {
			res.AddError(domain.IssueDuplicateInBatch, field,
				"intent id %q duplicates entries[%d]", entry.IntentID, prev)
		} else {
			seenIntents[entry.IntentID] = i
		}
		sources[entry.Source] = struct{}{}
	}

	// An atomic batch is meaningful when its entries share one originating
	// event; mixed origins are suspicious but not fatal.
	if len(sources) > 1 {
		tags := make([]string, 0, len(sources))
		for s := range sources {
			tags = append(tags, string(s))
		}
		sort.Strings(tags)
		res.AddWarning(domain.IssueMixedOrigins, "entries",
			"batch mixes originating sources: %s", strings.Join(tags, ", "))
	}

	return res
}

// ValidateBatch is the dry-run form: the batch rules plus the full
// single-entry checks for every entry, each finding prefixed with the entry
// index. Nothing is claimed or committed.
func (v *EntryValidator) ValidateBatch(ctx context.Context, entries []*domain.Entry) (*domain.ValidationResult, error) {
	res := v.BatchRules(entries)
	if len(entries) == 0 || len(entries) > v.limits.MaxBatchEntries {
		return res, nil
	}

	for i, entry := range entries {
		field := fmt.Sprintf("entries[%d]", i)
		entryRes, err := v.Validate(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", field, err)
		}
		res.Merge(field, entryRes)
	}
	return res, nil
}

func (v *EntryValidator) checkStructure(entry *domain.Entry, res *domain.ValidationResult) {
	if err := domain.ValidateIdentifier(entry.ID); err != nil {
		res.AddError(domain.IssueInvalidIdentifier, "id", "%v", err)
	}
	if err := domain.ValidateIdentifier(entry.IntentID); err != nil {
		res.AddError(domain.IssueInvalidIdentifier, "intent_id", "%v", err)
	}
	if err := domain.ValidateDescription(entry.Description); err != nil {
		res.AddError(domain.IssueMissingField, "description", "%v", err)
	}
	if entry.Date.IsZero() {
		res.AddError(domain.IssueMissingField, "date", "entry date is required")
	}
	if entry.Source == "" {
		res.AddError(domain.IssueMissingField, "source", "source tag is required")
	}

	if len(entry.Lines) < domain.MinEntryLines {
		res.AddError(domain.IssueTooFewLines, "lines",
			"entry has %d lines, at least %d required", len(entry.Lines), domain.MinEntryLines)
		return
	}
	if !entry.LinesContiguous() {
		res.AddError(domain.IssueLineNumbering, "lines",
			"line numbers must form a contiguous 1..%d sequence", len(entry.Lines))
	}
	for i, line := range entry.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if err := domain.ValidateIdentifier(line.AccountID); err != nil {
			res.AddError(domain.IssueInvalidIdentifier, field, "account id: %v", err)
		}
		if _, err := domain.ParseDirection(string(line.Direction)); err != nil {
			res.AddError(domain.IssueMissingField, field, "direction must be DEBIT or CREDIT")
		}
	}
}

func (v *EntryValidator) checkBalance(entry *domain.Entry, res *domain.ValidationResult) {
	debits, credits := entry.DebitTotal(), entry.CreditTotal()
	if debits != credits {
		res.AddError(domain.IssueUnbalanced, "lines",
			"entry imbalanced by %d minor units (debits %d, credits %d)",
			entry.Imbalance(), debits, credits)
		return
	}
	if debits == 0 {
		res.AddError(domain.IssueZeroValue, "lines", "entry moves zero value")
	}
}

func (v *EntryValidator) checkAccounts(ctx context.Context, entry *domain.Entry, res *domain.ValidationResult) error {
	ids := entry.AccountIDs()
	accounts, err := v.accounts.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	byID := make(map[string]*domain.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	// One finding per bad account, not fail-fast.
	for _, id := range ids {
		account, ok := byID[id]
		if !ok {
			res.AddError(domain.IssueAccountNotFound, "lines", "account %q does not exist", id)
			continue
		}
		if !account.Referencable() {
			res.AddError(domain.IssueAccountInactive, "lines", "account %q is inactive", id)
		}
	}
	return nil
}

func (v *EntryValidator) checkAmounts(entry *domain.Entry, res *domain.ValidationResult) {
	for i, line := range entry.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if line.Amount == 0 {
			res.AddError(domain.IssueAmountNotPositive, field, "line amount must be positive")
			continue
		}
		if line.Amount > v.limits.MaxLineAmount {
			res.AddError(domain.IssueAmountCeiling, field,
				"amount %d exceeds per-line ceiling %d", line.Amount, v.limits.MaxLineAmount)
		}
		if !domain.AmountPrecisionOK(line.Amount, v.limits.CurrencyExponent, v.limits.MaxDecimalPlaces) {
			res.AddError(domain.IssueAmountPrecision, field,
				"amount %s exceeds %d decimal places",
				domain.FormatMinorAmount(line.Amount, v.limits.CurrencyExponent), v.limits.MaxDecimalPlaces)
		}
	}
}

func (v *EntryValidator) checkBusinessRules(ctx context.Context, entry *domain.Entry, res *domain.ValidationResult) error {
	if !entry.Source.Recognized() {
		res.AddError(domain.IssueUnknownSource, "source", "source %q is not a recognized tag", entry.Source)
	}
	if err := domain.ValidateEntryDate(entry.Date, time.Now().UTC()); err != nil {
		res.AddError(domain.IssueFutureDate, "date", "%v", err)
	}

	if entry.Source == domain.SourceCorrection {
		if entry.CorrectionOf == "" {
			res.AddError(domain.IssueCorrectionReference, "correction_of",
				"a CORRECTION entry must reference the entry it corrects")
			return nil
		}
		claim, err := v.finality.LookupEntry(ctx, entry.CorrectionOf)
		if err != nil {
			if errors.Is(err, domain.ErrIntentNotFound) {
				res.AddError(domain.IssueCorrectionReference, "correction_of",
					"referenced entry %q has no clearing record", entry.CorrectionOf)
				return nil
			}
			return fmt.Errorf("resolve correction reference: %w", err)
		}
		if claim.Result == nil || !claim.Result.Status.Finalized() {
			res.AddError(domain.IssueCorrectionReference, "correction_of",
				"referenced entry %q is not finalized", entry.CorrectionOf)
		}
	}
	return nil
}

func (v *EntryValidator) checkCrossReferences(ctx context.Context, entry *domain.Entry, res *domain.ValidationResult) error {
	claim, err := v.finality.Lookup(ctx, entry.IntentID)
	if err != nil && !errors.Is(err, domain.ErrIntentNotFound) {
		return fmt.Errorf("lookup intent: %w", err)
	}
	if claim != nil && claim.EntryID != entry.ID {
		res.AddError(domain.IssueIntentConflict, "intent_id",
			"intent %q is already bound to entry %q", entry.IntentID, claim.EntryID)
	}

	byEntry, err := v.finality.LookupEntry(ctx, entry.ID)
	if err != nil && !errors.Is(err, domain.ErrIntentNotFound) {
		return fmt.Errorf("lookup entry id: %w", err)
	}
	if byEntry != nil && byEntry.IntentID != entry.IntentID {
		res.AddError(domain.IssueIntentConflict, "id",
			"entry id %q was already submitted under intent %q", entry.ID, byEntry.IntentID)
	}

	if entry.CorrectionOf != "" {
		if err := domain.ValidateIdentifier(entry.CorrectionOf); err != nil {
			res.AddError(domain.IssueInvalidIdentifier, "correction_of", "%v", err)
		}
	}
	return nil
}

// checkSufficiency projects the entry's net effect onto every floor-enforced
// account using the authority's current balance. Only accounts that forbid
// negative balances are consulted; everything else is the authority's call
// at commit time.
func (v *EntryValidator) checkSufficiency(ctx context.Context, entry *domain.Entry, res *domain.ValidationResult) error {
	accounts, err := v.accounts.GetByIDs(ctx, entry.AccountIDs())
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	net := make(map[string]int64, len(accounts))
	for _, line := range entry.Lines {
		if line.Direction == domain.DirectionDebit {
			net[line.AccountID] -= int64(line.Amount)
		} else {
			net[line.AccountID] += int64(line.Amount)
		}
	}

	for _, account := range accounts {
		if account.AllowNegative || net[account.ID] >= 0 {
			continue
		}
		balance, err := v.authority.GetBalance(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("authority balance for %s: %w", account.ID, err)
		}
		if projected := balance + net[account.ID]; projected < 0 {
			res.AddError(domain.IssueInsufficientBalance, "lines",
				"account %q would drop to %d minor units (balance %d, net %d)",
				account.ID, projected, balance, net[account.ID])
		}
	}
	return nil
}
