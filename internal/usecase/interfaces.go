package usecase

import (
	"context"
	"time"

	"github.com/sovrhq/clearing/internal/domain"
)

// AccountRegistry defines data access for provisioned accounts. The registry
// holds identity and policy only; balances live at the ledger authority.
type AccountRegistry interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Account, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Account, error)
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
}

// FinalityStore is the durable idempotency tracker: the single source of
// truth for whether an intent has already produced a terminal result. It is
// the compare-and-swap gate that makes at-most-one commit per intent hold
// under concurrent callers.
type FinalityStore interface {
	// Lookup returns the recorded claim for an intent, or
	// domain.ErrIntentNotFound.
	Lookup(ctx context.Context, intentID string) (*domain.IntentClaim, error)
	// LookupEntry returns the claim that references the given entry id, or
	// domain.ErrIntentNotFound.
	LookupEntry(ctx context.Context, entryID string) (*domain.IntentClaim, error)
	// Begin atomically claims an intent for commit. A fresh intent, a prior
	// FAILED attempt, or a stale abandoned claim yields claimed=true; a
	// finalized or rejected record or a live in-flight claim yields
	// claimed=false with the prior claim.
	Begin(ctx context.Context, intentID, entryID string) (claimed bool, prior *domain.IntentClaim, err error)
	// Complete records a terminal result. First writer wins once a result is
	// CLEARED_FINALIZED: later writes are no-ops and the stored result is
	// returned with recorded=false.
	Complete(ctx context.Context, tx Transaction, intentID string, result *domain.ClearingResult) (stored *domain.ClearingResult, recorded bool, err error)
	// Release drops an in-flight claim without recording a terminal result.
	// Only valid when the ledger authority outcome is known not committed.
	Release(ctx context.Context, intentID string) error
	// ListFinalized pages through results finalized at or after since, newest
	// first.
	ListFinalized(ctx context.Context, since time.Time, limit int) ([]*domain.ClearingResult, error)
}

// TransferOutcome is the ledger authority's answer to a commit attempt.
type TransferOutcome struct {
	Accepted   bool
	TransferID string
	Reason     string
}

// LedgerAuthority is the external deterministic system of record. It alone
// decides whether a transfer is possible; the engine never computes or
// asserts a balance on its own.
type LedgerAuthority interface {
	// CreateTransfer commits one debit-to-credit movement, idempotent on
	// intentKey: replaying a committed key returns the original outcome.
	CreateTransfer(ctx context.Context, debitAccountID, creditAccountID string, amount uint64, intentKey string) (*TransferOutcome, error)
	// GetTransferByIntent resolves the outcome previously committed under a
	// key, or domain.ErrTransferNotFound.
	GetTransferByIntent(ctx context.Context, intentKey string) (*TransferOutcome, error)
	// GetBalance returns the current balance in minor units. May be negative
	// for accounts the authority allows below zero.
	GetBalance(ctx context.Context, accountID string) (int64, error)
}

// AuthorityProvisioner is implemented by ledger authorities that accept
// account registration from the engine. Remote authorities typically
// provision out of band and leave this unwired.
type AuthorityProvisioner interface {
	ProvisionAccount(ctx context.Context, accountID string, allowNegative bool) error
}

// MirrorStore is the append-only narrative store. It is a cache of truth,
// not truth: nothing read from it feeds a correctness decision.
type MirrorStore interface {
	Append(ctx context.Context, record *domain.NarrativeRecord) (string, error)
	GetByIntent(ctx context.Context, intentID string) (*domain.NarrativeRecord, error)
	Query(ctx context.Context, filter NarrativeFilter) ([]*domain.NarrativeRecord, error)
}

// NarrativeFilter narrows mirror queries for read-side consumers.
type NarrativeFilter struct {
	Source    string
	AccountID string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// OutboxRepository defines data access for queued mirror publications.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.MirrorOutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.MirrorOutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	RecordAttempt(ctx context.Context, id string) error
	HasUnpublished(ctx context.Context, intentID string) (bool, error)
	CountUnpublished(ctx context.Context) (int64, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// Reservation is a held set of per-account advisory locks.
type Reservation struct {
	Token      string
	AccountIDs []string
}

// ReservationManager serializes batches that share accounts. Reservations
// are an admission gate with a bounded hold time, never a source of truth
// for balances.
type ReservationManager interface {
	// Acquire reserves every account or none, returning
	// domain.ErrReservationConflict when another holder is present.
	Acquire(ctx context.Context, accountIDs []string, ttl time.Duration) (*Reservation, error)
	Release(ctx context.Context, reservation *Reservation) error
}

// FinalityListener observes clearing outcomes that reached
// CLEARED_FINALIZED. Honoring adapters hang off this hook; they are invoked
// only after the terminal result is durably recorded.
type FinalityListener interface {
	OnClearingFinalized(ctx context.Context, entry *domain.Entry, result *domain.ClearingResult)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
