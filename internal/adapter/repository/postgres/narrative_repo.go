package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

// NarrativeRepository implements usecase.MirrorStore on the narrative_records
// table. The table is append-only: inserts and reads, never updates or
// deletes. It is a projection of finalized clearings, not a source of truth.
type NarrativeRepository struct {
	pool dbConn
}

// NewNarrativeRepository creates a new NarrativeRepository.
func NewNarrativeRepository(pool *pgxpool.Pool) *NarrativeRepository {
	return &NarrativeRepository{pool: pool}
}

// Append stores a narrative record. Appending the same intent twice returns
// the id of the record already present, so outbox re-publishes converge.
func (r *NarrativeRepository) Append(ctx context.Context, record *domain.NarrativeRecord) (string, error) {
	lines, err := json.Marshal(record.Lines)
	if err != nil {
		return "", fmt.Errorf("encode narrative lines: %w", err)
	}

	query := `
		INSERT INTO narrative_records (
			id, intent_id, entry_id, source, description, lines,
			status, ledger_transfer_id, finalized_at, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (intent_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		record.ID,
		record.IntentID,
		record.EntryID,
		string(record.Source),
		record.Description,
		lines,
		string(record.Status),
		record.LedgerTransferID,
		record.FinalizedAt,
		record.RecordedAt,
	)
	if err != nil {
		return "", err
	}

	if tag.RowsAffected() > 0 {
		return record.ID, nil
	}

	var existingID string
	if err := r.pool.QueryRow(ctx,
		`SELECT id FROM narrative_records WHERE intent_id = $1`, record.IntentID).Scan(&existingID); err != nil {
		return "", err
	}

	return existingID, nil
}

// GetByIntent retrieves the narrative record for an intent.
func (r *NarrativeRepository) GetByIntent(ctx context.Context, intentID string) (*domain.NarrativeRecord, error) {
	query := narrativeColumns + ` WHERE intent_id = $1`

	record, err := scanNarrative(r.pool.QueryRow(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNarrativeNotFound
		}

		return nil, err
	}

	return record, nil
}

// Query retrieves narrative records with filtering, newest first.
func (r *NarrativeRepository) Query(ctx context.Context, filter usecase.NarrativeFilter) ([]*domain.NarrativeRecord, error) {
	query := narrativeColumns + ` WHERE 1=1`
	args := []any{}
	argPos := 1

	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argPos)
		args = append(args, filter.Source)
		argPos++
	}

	if filter.AccountID != "" {
		probe, err := json.Marshal([]map[string]string{{"account_id": filter.AccountID}})
		if err != nil {
			return nil, err
		}

		query += fmt.Sprintf(` AND lines @> $%d`, argPos)
		args = append(args, probe)
		argPos++
	}

	if filter.From != nil {
		query += fmt.Sprintf(` AND finalized_at >= $%d`, argPos)
		args = append(args, *filter.From)
		argPos++
	}

	if filter.To != nil {
		query += fmt.Sprintf(` AND finalized_at < $%d`, argPos)
		args = append(args, *filter.To)
		argPos++
	}

	query += ` ORDER BY finalized_at DESC, id DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argPos)
	args = append(args, filter.Limit)
	argPos++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argPos)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.NarrativeRecord

	for rows.Next() {
		record, err := scanNarrative(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

const narrativeColumns = `
	SELECT id, intent_id, entry_id, source, description, lines,
	       status, ledger_transfer_id, finalized_at, recorded_at
	FROM narrative_records`

func scanNarrative(row pgx.Row) (*domain.NarrativeRecord, error) {
	var (
		record domain.NarrativeRecord
		source string
		status string
		lines  []byte
	)

	err := row.Scan(
		&record.ID,
		&record.IntentID,
		&record.EntryID,
		&source,
		&record.Description,
		&lines,
		&status,
		&record.LedgerTransferID,
		&record.FinalizedAt,
		&record.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Source = domain.Source(source)
	record.Status = domain.EntryStatus(status)

	if err := json.Unmarshal(lines, &record.Lines); err != nil {
		return nil, fmt.Errorf("decode narrative lines: %w", err)
	}

	return &record, nil
}
