package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

// dbConn is the slice of pgxpool.Pool the authority uses. Tests substitute a
// pgxmock pool.
type dbConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Authority is a deterministic ledger authority backed by its own tables. It
// implements the same port a remote authority would: single-transfer commits,
// idempotent on intent key, refusals expressed as outcomes rather than
// errors. The clearing engine never reads or writes these tables directly.
type Authority struct {
	pool    dbConn
	idGen   usecase.IDGenerator
	retrier *Retrier
}

// NewAuthority creates a new Authority.
func NewAuthority(pool *pgxpool.Pool, idGen usecase.IDGenerator, logger zerolog.Logger) *Authority {
	return &Authority{
		pool:    pool,
		idGen:   idGen,
		retrier: NewRetrier(logger),
	}
}

// CreateTransfer commits one debit-to-credit movement. Replaying a committed
// intent key returns the original outcome without moving balances again.
// Refused transfers leave no trace, so a later retry re-evaluates them.
func (a *Authority) CreateTransfer(ctx context.Context, debitAccountID, creditAccountID string, amount uint64, intentKey string) (*usecase.TransferOutcome, error) {
	var outcome *usecase.TransferOutcome

	err := a.retrier.Retry(ctx, func() error {
		var err error
		outcome, err = a.createTransferOnce(ctx, debitAccountID, creditAccountID, amount, intentKey)

		return err
	})
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

func (a *Authority) createTransferOnce(ctx context.Context, debitAccountID, creditAccountID string, amount uint64, intentKey string) (*usecase.TransferOutcome, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row locks ordered by id, so two commits touching the same accounts
	// cannot deadlock each other.
	rows, err := tx.Query(ctx, `
		SELECT id, balance, allow_negative FROM authority_accounts
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, []string{debitAccountID, creditAccountID})
	if err != nil {
		return nil, err
	}

	type authorityAccount struct {
		balance       int64
		allowNegative bool
	}

	accounts := make(map[string]authorityAccount, 2)

	for rows.Next() {
		var (
			id  string
			acc authorityAccount
		)

		if err := rows.Scan(&id, &acc.balance, &acc.allowNegative); err != nil {
			rows.Close()

			return nil, err
		}

		accounts[id] = acc
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range []string{debitAccountID, creditAccountID} {
		if _, ok := accounts[id]; !ok {
			return &usecase.TransferOutcome{
				Accepted: false,
				Reason:   fmt.Sprintf("account %s not registered with the ledger authority", id),
			}, nil
		}
	}

	// Idempotency check under the row locks: a key committed by an earlier
	// attempt replays its outcome.
	var existingID string

	err = tx.QueryRow(ctx,
		`SELECT id FROM authority_transfers WHERE intent_key = $1`, intentKey).Scan(&existingID)
	if err == nil {
		return &usecase.TransferOutcome{Accepted: true, TransferID: existingID}, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	debit := accounts[debitAccountID]
	if !debit.allowNegative && debit.balance < int64(amount) {
		return &usecase.TransferOutcome{
			Accepted: false,
			Reason:   fmt.Sprintf("insufficient balance on account %s", debitAccountID),
		}, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE authority_accounts SET balance = balance - $2, updated_at = now() WHERE id = $1`,
		debitAccountID, int64(amount)); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE authority_accounts SET balance = balance + $2, updated_at = now() WHERE id = $1`,
		creditAccountID, int64(amount)); err != nil {
		return nil, err
	}

	transferID := a.idGen.Generate()

	if _, err := tx.Exec(ctx, `
		INSERT INTO authority_transfers (id, intent_key, debit_account_id, credit_account_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, transferID, intentKey, debitAccountID, creditAccountID, int64(amount), time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &usecase.TransferOutcome{Accepted: true, TransferID: transferID}, nil
}

// GetTransferByIntent resolves a committed intent key. Only commits are
// stored, so a stored key always means an accepted transfer.
func (a *Authority) GetTransferByIntent(ctx context.Context, intentKey string) (*usecase.TransferOutcome, error) {
	var transferID string

	err := a.pool.QueryRow(ctx,
		`SELECT id FROM authority_transfers WHERE intent_key = $1`, intentKey).Scan(&transferID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransferNotFound
		}

		return nil, err
	}

	return &usecase.TransferOutcome{Accepted: true, TransferID: transferID}, nil
}

// GetBalance returns the account's current balance in minor units.
func (a *Authority) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64

	err := a.pool.QueryRow(ctx,
		`SELECT balance FROM authority_accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrAccountNotFound
		}

		return 0, err
	}

	return balance, nil
}

// ProvisionAccount registers an account at zero balance. Idempotent: an
// existing account keeps its balance and only the negative policy is
// refreshed.
func (a *Authority) ProvisionAccount(ctx context.Context, accountID string, allowNegative bool) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO authority_accounts (id, balance, allow_negative, created_at, updated_at)
		VALUES ($1, 0, $2, now(), now())
		ON CONFLICT (id) DO UPDATE SET allow_negative = EXCLUDED.allow_negative, updated_at = now()
	`, accountID, allowNegative)

	return err
}
