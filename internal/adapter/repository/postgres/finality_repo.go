package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

// claimStatusInFlight marks a live claim that has not reached a terminal
// result yet. Terminal rows store the result status itself.
const claimStatusInFlight = "IN_FLIGHT"

// DefaultClaimStaleAfter is how long an in-flight claim may sit untouched
// before Begin treats it as abandoned and re-admits the intent. Re-admission
// is safe for ledger state because leg keys are idempotent at the authority;
// the window only avoids racing an attempt that is still running.
const DefaultClaimStaleAfter = 60 * time.Second

// FinalityRepository implements usecase.FinalityStore on the clearing_intents
// table. Begin is a single INSERT ... ON CONFLICT statement, so the claim is
// atomic without advisory locks; Complete joins the caller's transaction so
// the terminal record and the mirror outbox row commit together.
type FinalityRepository struct {
	pool       dbConn
	staleAfter time.Duration
}

// NewFinalityRepository creates a new FinalityRepository. staleAfter <= 0
// selects DefaultClaimStaleAfter.
func NewFinalityRepository(pool *pgxpool.Pool, staleAfter time.Duration) *FinalityRepository {
	if staleAfter <= 0 {
		staleAfter = DefaultClaimStaleAfter
	}

	return &FinalityRepository{pool: pool, staleAfter: staleAfter}
}

const claimColumns = `
	SELECT intent_id, entry_id, status, result, attempts, created_at, updated_at
	FROM clearing_intents`

// Lookup returns the recorded claim for an intent.
func (r *FinalityRepository) Lookup(ctx context.Context, intentID string) (*domain.IntentClaim, error) {
	claim, err := scanClaim(r.pool.QueryRow(ctx, claimColumns+` WHERE intent_id = $1`, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIntentNotFound
		}

		return nil, err
	}

	return claim, nil
}

// LookupEntry returns the claim bound to an entry id.
func (r *FinalityRepository) LookupEntry(ctx context.Context, entryID string) (*domain.IntentClaim, error) {
	claim, err := scanClaim(r.pool.QueryRow(ctx, claimColumns+` WHERE entry_id = $1`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIntentNotFound
		}

		return nil, err
	}

	return claim, nil
}

// beginClaim claims the intent in one statement. The insert wins for a fresh
// intent; the conflict update wins only when the existing row is a FAILED
// attempt or an abandoned in-flight claim bound to the same entry. Finalized
// and rejected rows, live claims, and entry mismatches fall through with no
// row returned.
const beginClaim = `
	INSERT INTO clearing_intents (intent_id, entry_id, status, attempts, created_at, claimed_at, updated_at)
	VALUES ($1, $2, 'IN_FLIGHT', 1, now(), now(), now())
	ON CONFLICT (intent_id) DO UPDATE SET
		status     = 'IN_FLIGHT',
		result     = NULL,
		attempts   = clearing_intents.attempts + 1,
		claimed_at = now(),
		updated_at = now()
	WHERE clearing_intents.entry_id = EXCLUDED.entry_id
	  AND (clearing_intents.status = 'FAILED'
	       OR (clearing_intents.status = 'IN_FLIGHT' AND clearing_intents.claimed_at < $3))
	RETURNING intent_id, entry_id, status, result, attempts, created_at, updated_at
`

// Begin atomically claims an intent for commit.
func (r *FinalityRepository) Begin(ctx context.Context, intentID, entryID string) (bool, *domain.IntentClaim, error) {
	// Two passes: losing the claim and then finding no row means the owner
	// released between our statements, so the claim is winnable again.
	for attempt := 0; attempt < 2; attempt++ {
		cutoff := time.Now().UTC().Add(-r.staleAfter)

		claim, err := scanClaim(r.pool.QueryRow(ctx, beginClaim, intentID, entryID, cutoff))
		if err == nil {
			return true, claim, nil
		}

		if !errors.Is(err, pgx.ErrNoRows) {
			if isUniqueViolation(err) {
				// The entry id is already bound to a different intent.
				return false, nil, domain.ErrIntentConflict
			}

			return false, nil, err
		}

		prior, err := r.Lookup(ctx, intentID)
		if err != nil {
			if errors.Is(err, domain.ErrIntentNotFound) {
				continue
			}

			return false, nil, err
		}

		if prior.EntryID != entryID {
			return false, prior, domain.ErrIntentConflict
		}

		return false, prior, nil
	}

	return false, nil, fmt.Errorf("claim intent %s: %w", intentID, domain.ErrIntentInFlight)
}

// completeResult records the terminal result, creating the row when no claim
// preceded it (rejections are recorded without a Begin). A finalized row is
// immutable, and a live claim may only be completed by its own entry; both
// fall through with no row returned.
const completeResult = `
	INSERT INTO clearing_intents (intent_id, entry_id, status, result, finalized_at, created_at, claimed_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, now(), now(), now())
	ON CONFLICT (intent_id) DO UPDATE SET
		status       = EXCLUDED.status,
		result       = EXCLUDED.result,
		finalized_at = EXCLUDED.finalized_at,
		updated_at   = now()
	WHERE clearing_intents.status <> 'CLEARED_FINALIZED'
	  AND (clearing_intents.status <> 'IN_FLIGHT' OR clearing_intents.entry_id = EXCLUDED.entry_id)
	RETURNING intent_id
`

// Complete records a terminal result inside the caller's transaction. Once a
// row is CLEARED_FINALIZED it is immutable; a losing write returns the stored
// result with recorded=false. domain.ErrIntentConflict means the entry id is
// bound to a different intent and no row was written.
func (r *FinalityRepository) Complete(ctx context.Context, tx usecase.Transaction, intentID string, result *domain.ClearingResult) (*domain.ClearingResult, bool, error) {
	pgxTx := tx.(*Tx).PgxTx()

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, false, fmt.Errorf("encode clearing result: %w", err)
	}

	var updated string

	err = pgxTx.QueryRow(ctx, completeResult, intentID, result.EntryID, string(result.Status), payload, result.FinalizedAt).Scan(&updated)
	if err == nil {
		return result, true, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		if isUniqueViolation(err) {
			return nil, false, domain.ErrIntentConflict
		}

		return nil, false, err
	}

	var storedJSON []byte
	if err := pgxTx.QueryRow(ctx, `SELECT result FROM clearing_intents WHERE intent_id = $1`, intentID).Scan(&storedJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, domain.ErrIntentNotFound
		}

		return nil, false, err
	}

	if len(storedJSON) == 0 {
		// A live claim under a different entry blocked the write.
		return nil, false, domain.ErrIntentConflict
	}

	stored, err := decodeResult(storedJSON)
	if err != nil {
		return nil, false, err
	}

	return stored, false, nil
}

// Release drops an in-flight claim without recording a terminal result.
// Releasing an intent that is not in flight is a no-op.
func (r *FinalityRepository) Release(ctx context.Context, intentID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM clearing_intents WHERE intent_id = $1 AND status = 'IN_FLIGHT'`, intentID)

	return err
}

// ListFinalized pages through finalized results, newest first.
func (r *FinalityRepository) ListFinalized(ctx context.Context, since time.Time, limit int) ([]*domain.ClearingResult, error) {
	query := `
		SELECT result FROM clearing_intents
		WHERE status = 'CLEARED_FINALIZED' AND finalized_at >= $1
		ORDER BY finalized_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.ClearingResult

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		result, err := decodeResult(payload)
		if err != nil {
			return nil, err
		}

		results = append(results, result)
	}

	return results, rows.Err()
}

func scanClaim(row pgx.Row) (*domain.IntentClaim, error) {
	var (
		claim   domain.IntentClaim
		status  string
		payload []byte
	)

	err := row.Scan(
		&claim.IntentID,
		&claim.EntryID,
		&status,
		&payload,
		&claim.Attempts,
		&claim.CreatedAt,
		&claim.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	claim.InFlight = status == claimStatusInFlight

	if len(payload) > 0 {
		result, err := decodeResult(payload)
		if err != nil {
			return nil, err
		}

		claim.Result = result
	}

	return &claim, nil
}

func decodeResult(payload []byte) (*domain.ClearingResult, error) {
	var result domain.ClearingResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode clearing result: %w", err)
	}

	return &result, nil
}
