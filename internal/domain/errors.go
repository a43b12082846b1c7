package domain

import "errors"

var (
	// Account errors
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidAccountType = errors.New("invalid account type")

	// Entry errors
	ErrInvalidDirection = errors.New("invalid line direction")
	ErrUnknownSource    = errors.New("unknown entry source")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrEntryFinalized   = errors.New("entry is finalized and immutable")
	ErrInvalidAmount    = errors.New("amount must be positive")

	// Intent errors
	ErrIntentNotFound = errors.New("clearing intent not found")
	ErrIntentInFlight = errors.New("clearing intent already in flight")
	ErrIntentConflict = errors.New("intent id is bound to a different entry")
	ErrOutcomeUnknown = errors.New("ledger authority outcome unknown")

	// Ledger authority errors
	ErrAuthorityUnavailable = errors.New("ledger authority unavailable")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrTransferNotFound     = errors.New("transfer not found")

	// Reservation errors
	ErrReservationConflict = errors.New("account reserved by another batch")
	ErrReservationExpired  = errors.New("account reservation expired")

	// Mirror errors
	ErrNarrativeNotFound = errors.New("narrative record not found")

	// Validation errors
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrMissingField      = errors.New("missing required field")
)
