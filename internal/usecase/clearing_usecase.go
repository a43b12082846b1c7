package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/infrastructure/metrics"
)

// ClearingProtocol orchestrates validate, commit-to-authority, and
// record-result for a single entry, guaranteeing at-most-one finalized
// effect per intent id.
type ClearingProtocol struct {
	validator        *EntryValidator
	finality         FinalityStore
	authority        LedgerAuthority
	txManager        TransactionManager
	outboxRepo       OutboxRepository
	cache            Cache
	idGen            IDGenerator
	metrics          *metrics.Metrics
	logger           zerolog.Logger
	listeners        []FinalityListener
	currencyExponent int32
	authorityTimeout time.Duration
	inFlightWait     time.Duration
	resultCacheTTL   time.Duration
}

// NewClearingProtocol creates a new ClearingProtocol. cache and metrics may
// be nil.
func NewClearingProtocol(
	validator *EntryValidator,
	finality FinalityStore,
	authority LedgerAuthority,
	txManager TransactionManager,
	outboxRepo OutboxRepository,
	cache Cache,
	idGen IDGenerator,
	m *metrics.Metrics,
	logger zerolog.Logger,
	currencyExponent int32,
) *ClearingProtocol {
	return &ClearingProtocol{
		validator:        validator,
		finality:         finality,
		authority:        authority,
		txManager:        txManager,
		outboxRepo:       outboxRepo,
		cache:            cache,
		idGen:            idGen,
		metrics:          m,
		logger:           logger.With().Str("component", "clearing_protocol").Logger(),
		currencyExponent: currencyExponent,
		authorityTimeout: DefaultAuthorityTimeout,
		inFlightWait:     DefaultInFlightWait,
		resultCacheTTL:   ResultCacheTTL,
	}
}

// Subscribe registers a listener for finalized clearings. Must be called
// during wiring, before the protocol serves requests.
func (p *ClearingProtocol) Subscribe(listener FinalityListener) {
	p.listeners = append(p.listeners, listener)
}

// WithTimeouts overrides the per-commit authority deadline and the wait for
// a concurrent winner of the same intent. Must be called during wiring.
// Non-positive values keep the defaults.
func (p *ClearingProtocol) WithTimeouts(authorityTimeout, inFlightWait time.Duration) *ClearingProtocol {
	if authorityTimeout > 0 {
		p.authorityTimeout = authorityTimeout
	}
	if inFlightWait > 0 {
		p.inFlightWait = inFlightWait
	}
	return p
}

// WithResultCacheTTL overrides how long terminal results stay in the read
// cache. The durable record in the finality store never expires. Must be
// called during wiring. Non-positive values keep the default.
func (p *ClearingProtocol) WithResultCacheTTL(ttl time.Duration) *ClearingProtocol {
	if ttl > 0 {
		p.resultCacheTTL = ttl
	}
	return p
}

// Clear runs one clearing attempt to a terminal result. Duplicate intents
// return the previously recorded result marked as a replay; that is
// reentrancy resolved, not an error. The error return is reserved for
// infrastructure failures before any commit decision was made.
func (p *ClearingProtocol) Clear(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error) {
	if entry == nil {
		return nil, domain.ErrMissingField
	}
	if entry.IntentID == "" {
		return nil, fmt.Errorf("%w: intent_id", domain.ErrMissingField)
	}

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.ClearingDuration.Observe(time.Since(start).Seconds())
		}
	}()

	// Fast idempotency check before doing any work.
	if result, err := p.lookupTerminal(ctx, entry.IntentID); err != nil {
		return nil, err
	} else if result != nil {
		return p.replay(result), nil
	}

	vres, err := p.validator.Validate(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("validate intent %s: %w", entry.IntentID, err)
	}
	if p.metrics != nil {
		for _, iss := range vres.Errors {
			p.metrics.ValidationIssues.WithLabelValues(string(iss.Code)).Inc()
		}
	}
	if !vres.Valid {
		rejected := domain.NewRejectedResult(entry, vres.Errors)
		stored, recorded, err := p.record(ctx, entry, rejected, false)
		if err != nil {
			if errors.Is(err, domain.ErrIntentConflict) {
				// The entry id is bound to another intent, which is among
				// the reasons this entry was rejected. The verdict stands
				// without a durable row of its own.
				if p.metrics != nil {
					p.metrics.ClearingsRejected.Inc()
				}
				return rejected, nil
			}
			return nil, err
		}
		if !recorded {
			// A concurrent attempt finalized this intent first.
			return p.replay(stored), nil
		}
		if p.metrics != nil {
			p.metrics.ClearingsRejected.Inc()
		}
		return stored, nil
	}

	// Atomic re-check: claim the intent so only one caller commits.
	claimed, prior, err := p.finality.Begin(ctx, entry.IntentID, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("claim intent %s: %w", entry.IntentID, err)
	}
	if !claimed {
		return p.loseClaim(ctx, entry, prior)
	}

	result, recordable := p.commitLegs(ctx, entry)
	if !recordable {
		// Outcome unknown at the authority: the claim stays in flight so no
		// retry can double-commit until the outcome is resolved.
		p.logger.Warn().
			Str("intent_id", entry.IntentID).
			Str("error_code", result.ErrorCode).
			Msg("authority outcome unknown, leaving intent in flight")
		if p.metrics != nil {
			p.metrics.ClearingsFailed.Inc()
		}
		return result, nil
	}

	stored, recorded, err := p.record(ctx, entry, result, result.Status.Finalized())
	if err != nil {
		return nil, err
	}
	if !recorded {
		return p.replay(stored), nil
	}

	switch stored.Status {
	case domain.StatusClearedFinalized:
		if p.metrics != nil {
			p.metrics.ClearingsFinalized.Inc()
			p.metrics.ClearingAmount.Observe(float64(entry.DebitTotal()))
		}
		p.notifyFinalized(ctx, entry, stored)
	case domain.StatusFailed:
		if p.metrics != nil {
			p.metrics.ClearingsFailed.Inc()
		}
	}

	return stored, nil
}

// Lookup returns the recorded outcome for an intent. In-flight claims
// surface as a PENDING result so callers can distinguish "running" from
// "unknown intent".
func (p *ClearingProtocol) Lookup(ctx context.Context, intentID string) (*domain.ClearingResult, error) {
	claim, err := p.finality.Lookup(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if claim.Result != nil {
		return claim.Result, nil
	}
	return &domain.ClearingResult{
		IntentID: claim.IntentID,
		EntryID:  claim.EntryID,
		Status:   domain.StatusPending,
	}, nil
}

// lookupTerminal consults the read cache then the finality store and returns
// a result only when a non-retryable terminal outcome exists. Failed
// attempts return nil so the caller runs a fresh attempt.
func (p *ClearingProtocol) lookupTerminal(ctx context.Context, intentID string) (*domain.ClearingResult, error) {
	if p.cache != nil {
		if raw, err := p.cache.Get(ctx, resultCacheKey(intentID)); err == nil && len(raw) > 0 {
			var cached domain.ClearingResult
			if err := json.Unmarshal(raw, &cached); err == nil && cached.Status.Finalized() {
				return &cached, nil
			}
		}
	}

	claim, err := p.finality.Lookup(ctx, intentID)
	if errors.Is(err, domain.ErrIntentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup intent %s: %w", intentID, err)
	}
	if claim.Result != nil && claim.Result.Status.Terminal() && !claim.Result.Retryable() {
		return claim.Result, nil
	}
	return nil, nil
}

// loseClaim handles a Begin that found the intent already taken. Begin
// re-claims failed priors itself, so a terminal prior here is finalized or
// rejected and simply replays; a live claim is waited on.
func (p *ClearingProtocol) loseClaim(ctx context.Context, entry *domain.Entry, prior *domain.IntentClaim) (*domain.ClearingResult, error) {
	if prior != nil && prior.Result != nil && prior.Result.Status.Terminal() {
		return p.replay(prior.Result), nil
	}

	if result := p.waitForTerminal(ctx, entry.IntentID); result != nil {
		return p.replay(result), nil
	}

	// The winner is still running (or its claim is not yet stale enough to
	// take over). Report without recording; the tracker still holds the
	// in-flight claim.
	return domain.NewFailedResult(entry, domain.FailureOutcomePending,
		"another attempt for this intent is in flight"), nil
}

// waitForTerminal polls the tracker with backoff until the concurrent winner
// records a terminal result, bounded by inFlightWait.
func (p *ClearingProtocol) waitForTerminal(ctx context.Context, intentID string) *domain.ClearingResult {
	var result *domain.ClearingResult

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 25 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = p.inFlightWait

	_ = backoff.Retry(func() error {
		claim, err := p.finality.Lookup(ctx, intentID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if claim.Result == nil || !claim.Result.Status.Terminal() {
			return domain.ErrIntentInFlight
		}
		result = claim.Result
		return nil
	}, backoff.WithContext(bo, ctx))

	return result
}

// commitLegs commits every transfer leg of the entry to the ledger
// authority in order. recordable is false only when the authority's outcome
// could not be determined, in which case no terminal result may be recorded.
func (p *ClearingProtocol) commitLegs(ctx context.Context, entry *domain.Entry) (result *domain.ClearingResult, recordable bool) {
	legs := entry.TransferLegs()
	transferIDs := make([]string, 0, len(legs))

	for i, leg := range legs {
		key := domain.LegIntentKey(entry.IntentID, i)
		outcome, err := p.createTransfer(ctx, leg, key)
		if err != nil {
			outcome, err = p.resolveLeg(ctx, key)
			if err != nil {
				if errors.Is(err, domain.ErrTransferNotFound) {
					// The authority never saw this leg; safe to fail
					// terminally. Already-committed legs replay on retry.
					return domain.NewFailedResult(entry, domain.FailureAuthorityUnreachable,
						fmt.Sprintf("ledger authority unreachable on leg %d", i+1)), true
				}
				return domain.NewFailedResult(entry, domain.FailureOutcomeUnknown,
					fmt.Sprintf("ledger authority outcome unknown on leg %d", i+1)), false
			}
		}
		if !outcome.Accepted {
			return domain.NewFailedResult(entry, domain.FailureAuthorityRejected, outcome.Reason), true
		}
		transferIDs = append(transferIDs, outcome.TransferID)
	}

	return domain.NewFinalizedResult(entry, transferIDs, time.Now().UTC()), true
}

func (p *ClearingProtocol) createTransfer(ctx context.Context, leg domain.TransferLeg, key string) (*TransferOutcome, error) {
	commitCtx, cancel := context.WithTimeout(ctx, p.authorityTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := p.authority.CreateTransfer(commitCtx, leg.DebitAccountID, leg.CreditAccountID, leg.Amount, key)
	if p.metrics != nil {
		p.metrics.CommitDuration.Observe(time.Since(start).Seconds())
	}
	return outcome, err
}

// resolveLeg asks the authority whether a leg whose commit call failed was
// actually committed.
func (p *ClearingProtocol) resolveLeg(ctx context.Context, key string) (*TransferOutcome, error) {
	resolveCtx, cancel := context.WithTimeout(ctx, p.authorityTimeout)
	defer cancel()

	outcome, err := p.authority.GetTransferByIntent(resolveCtx, key)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// record writes the terminal result. Finalized results also enqueue their
// narrative record in the same transaction, so a crash after commit loses
// nothing; the mirror itself is written later by the worker and can never
// gate this path. recorded is false when a prior finalized result won the
// write, in which case stored carries that prior result.
func (p *ClearingProtocol) record(ctx context.Context, entry *domain.Entry, result *domain.ClearingResult, withNarrative bool) (*domain.ClearingResult, bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := p.txManager.Begin(txCtx)
	if err != nil {
		return nil, false, fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	stored, recorded, err := p.finality.Complete(txCtx, tx, entry.IntentID, result)
	if err != nil {
		return nil, false, fmt.Errorf("record intent %s: %w", entry.IntentID, err)
	}

	if withNarrative && recorded && stored.Status.Finalized() {
		if err := p.enqueueNarrative(txCtx, tx, entry, stored); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, false, fmt.Errorf("commit record tx: %w", err)
	}

	p.cacheResult(ctx, stored)
	return stored, recorded, nil
}

func (p *ClearingProtocol) enqueueNarrative(ctx context.Context, tx Transaction, entry *domain.Entry, result *domain.ClearingResult) error {
	record := domain.NewNarrativeRecord(p.idGen.Generate(), entry, result, p.currencyExponent, time.Now().UTC())
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal narrative record: %w", err)
	}

	event := &domain.MirrorOutboxEvent{
		ID:        p.idGen.Generate(),
		IntentID:  entry.IntentID,
		EventType: domain.EventTypeClearingFinalized,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.outboxRepo.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("enqueue narrative record: %w", err)
	}
	return nil
}

func (p *ClearingProtocol) cacheResult(ctx context.Context, result *domain.ClearingResult) {
	if p.cache == nil || !result.Status.Finalized() {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, resultCacheKey(result.IntentID), raw, p.resultCacheTTL); err != nil {
		p.logger.Debug().Err(err).Str("intent_id", result.IntentID).Msg("result cache write failed")
	}
}

func (p *ClearingProtocol) replay(result *domain.ClearingResult) *domain.ClearingResult {
	if p.metrics != nil {
		p.metrics.ClearingReplays.Inc()
	}
	return result.AsReplay()
}

// notifyFinalized invokes honoring listeners strictly after the terminal
// result is durably recorded. Listener failures are contained; nothing they
// do can reach back into the clearing.
func (p *ClearingProtocol) notifyFinalized(ctx context.Context, entry *domain.Entry, result *domain.ClearingResult) {
	for _, listener := range p.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error().
						Interface("panic", r).
						Str("intent_id", result.IntentID).
						Msg("finality listener panicked")
				}
			}()
			listener.OnClearingFinalized(ctx, entry, result)
		}()
	}
}

func resultCacheKey(intentID string) string {
	return "clearing:result:" + intentID
}
