package mirrorworker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/infrastructure/metrics"
	"github.com/sovrhq/clearing/internal/usecase"
)

// Worker drains the mirror outbox into the narrative store. It is the only
// writer of the mirror, and clearing never waits for it, so a backlog delays
// narrative visibility without gating finality.
type Worker struct {
	outboxRepo usecase.OutboxRepository
	mirror     usecase.MirrorStore
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	batchSize  int
	interval   time.Duration
	maxElapsed time.Duration
}

// Config for Worker.
type Config struct {
	OutboxRepo usecase.OutboxRepository
	Mirror     usecase.MirrorStore
	Metrics    *metrics.Metrics // may be nil
	Logger     zerolog.Logger
	BatchSize  int           // events fetched per poll
	Interval   time.Duration // polling interval
	MaxElapsed time.Duration // per-record publish backoff budget
}

// New creates a new Worker.
func New(cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 5 * time.Second
	}

	return &Worker{
		outboxRepo: cfg.OutboxRepo,
		mirror:     cfg.Mirror,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With().Str("component", "mirror_worker").Logger(),
		batchSize:  cfg.BatchSize,
		interval:   cfg.Interval,
		maxElapsed: cfg.MaxElapsed,
	}
}

// Start runs the worker until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().
		Int("batch_size", w.batchSize).
		Dur("interval", w.interval).
		Msg("mirror worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Drain immediately so a restart publishes pending rows without
	// waiting a full interval.
	if err := w.drain(ctx); err != nil {
		w.logger.Error().Err(err).Msg("mirror drain failed")
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("mirror worker shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				w.logger.Error().Err(err).Msg("mirror drain failed")
			}
		}
	}
}

// drain publishes one batch of pending outbox rows. A failing row is left
// unpublished with its attempt counted; the rest of the batch still goes out.
func (w *Worker) drain(ctx context.Context) error {
	events, err := w.outboxRepo.GetUnpublished(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("fetch unpublished: %w", err)
	}

	for _, event := range events {
		if err := w.publish(ctx, event); err != nil {
			w.logger.Error().Err(err).
				Str("event_id", event.ID).
				Str("intent_id", event.IntentID).
				Int("attempts", event.Attempts+1).
				Msg("mirror publish failed")

			if w.metrics != nil {
				w.metrics.MirrorPublishFailures.Inc()
			}
			if recErr := w.outboxRepo.RecordAttempt(ctx, event.ID); recErr != nil {
				w.logger.Error().Err(recErr).Str("event_id", event.ID).Msg("record attempt failed")
			}
			continue
		}

		if err := w.outboxRepo.MarkPublished(ctx, event.ID, time.Now().UTC()); err != nil {
			// Append is idempotent on intent id, so the re-publish after
			// this failure converges instead of duplicating.
			w.logger.Error().Err(err).Str("event_id", event.ID).Msg("mark published failed")
			continue
		}

		if w.metrics != nil {
			w.metrics.MirrorPublished.Inc()
		}
	}

	w.observeBacklog(ctx)
	return nil
}

// publish decodes one outbox row and appends it to the mirror, retrying
// transient store errors within the per-record backoff budget.
func (w *Worker) publish(ctx context.Context, event *domain.MirrorOutboxEvent) error {
	var record domain.NarrativeRecord
	if err := json.Unmarshal(event.Payload, &record); err != nil {
		return fmt.Errorf("decode narrative payload: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = w.maxElapsed

	return backoff.Retry(func() error {
		_, err := w.mirror.Append(ctx, &record)
		return err
	}, backoff.WithContext(bo, ctx))
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	count, err := w.outboxRepo.CountUnpublished(ctx)
	if err != nil {
		return
	}
	w.metrics.MirrorBacklog.Set(float64(count))
}
