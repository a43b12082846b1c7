package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository on the mirror_outbox
// table. Rows are written in the finalization transaction and drained by the
// mirror worker, so publication survives a crash between commit and publish.
type OutboxRepository struct {
	pool dbConn
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Create enqueues a narrative publication within a transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.MirrorOutboxEvent) error {
	pgxTx := tx.(*Tx).PgxTx()

	query := `
		INSERT INTO mirror_outbox (id, intent_id, event_type, payload, attempts, created_at, published)
		VALUES ($1, $2, $3, $4, $5, $6, false)
	`

	_, err := pgxTx.Exec(ctx, query,
		event.ID,
		event.IntentID,
		event.EventType,
		event.Payload,
		event.Attempts,
		event.CreatedAt,
	)

	return err
}

// GetUnpublished retrieves unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.MirrorOutboxEvent, error) {
	query := `
		SELECT id, intent_id, event_type, payload, attempts, created_at, published_at, published
		FROM mirror_outbox
		WHERE published = false
		ORDER BY created_at, id
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.MirrorOutboxEvent

	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE mirror_outbox SET published = true, published_at = $2 WHERE id = $1`, id, publishedAt)

	return err
}

// RecordAttempt bumps the attempt counter after a failed publish.
func (r *OutboxRepository) RecordAttempt(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE mirror_outbox SET attempts = attempts + 1 WHERE id = $1`, id)

	return err
}

// HasUnpublished reports whether an intent still has a queued publication.
func (r *OutboxRepository) HasUnpublished(ctx context.Context, intentID string) (bool, error) {
	var pending bool

	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM mirror_outbox WHERE intent_id = $1 AND published = false)`,
		intentID).Scan(&pending)

	return pending, err
}

// CountUnpublished returns the outbox backlog size.
func (r *OutboxRepository) CountUnpublished(ctx context.Context) (int64, error) {
	var count int64

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM mirror_outbox WHERE published = false`).Scan(&count)

	return count, err
}

// DeletePublished deletes published events older than the given time.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM mirror_outbox WHERE published = true AND published_at < $1`, before)

	return err
}

func scanOutboxEvent(row pgx.Row) (*domain.MirrorOutboxEvent, error) {
	var (
		event       domain.MirrorOutboxEvent
		publishedAt *time.Time
	)

	err := row.Scan(
		&event.ID,
		&event.IntentID,
		&event.EventType,
		&event.Payload,
		&event.Attempts,
		&event.CreatedAt,
		&publishedAt,
		&event.Published,
	)
	if err != nil {
		return nil, err
	}

	event.PublishedAt = publishedAt

	return &event, nil
}
