package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

const outboxColumns = `id, kind, payload, status, attempts, last_error, next_attempt_at, delivered_at, created_at`

// OutboxRepository provides database access for the durable mail outbox.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository creates a new instance of OutboxRepository.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue records a pending entry. The dispatcher picks it up on its next
// poll, so enqueueing survives a process restart.
func (r *OutboxRepository) Enqueue(ctx context.Context, entry *models.OutboxEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.NextAttemptAt.IsZero() {
		entry.NextAttemptAt = now
	}
	if entry.Status == "" {
		entry.Status = models.OutboxPending
	}
	const query = `INSERT INTO outbox_entries (id, kind, payload, status, attempts, last_error, next_attempt_at, delivered_at, created_at) VALUES (:id, :kind, :payload, :status, :attempts, :last_error, :next_attempt_at, :delivered_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("enqueue outbox entry: %w", err)
	}
	return nil
}

// ListDue returns pending entries whose next attempt time has passed.
func (r *OutboxRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM outbox_entries WHERE status = $1 AND next_attempt_at <= $2 ORDER BY next_attempt_at ASC LIMIT %d`, outboxColumns, limit)
	var entries []models.OutboxEntry
	if err := r.db.SelectContext(ctx, &entries, query, models.OutboxPending, now); err != nil {
		return nil, fmt.Errorf("list due outbox entries: %w", err)
	}
	return entries, nil
}

// MarkDelivered finalizes a successfully dispatched entry.
func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE outbox_entries SET status = $2, delivered_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.OutboxDelivered, at); err != nil {
		return fmt.Errorf("mark outbox delivered: %w", err)
	}
	return nil
}

// RescheduleFailure bumps the attempt counter and pushes the next attempt
// into the future. The entry stays pending.
func (r *OutboxRepository) RescheduleFailure(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error {
	const query = `UPDATE outbox_entries SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lastError, nextAttemptAt); err != nil {
		return fmt.Errorf("reschedule outbox entry: %w", err)
	}
	return nil
}

// MarkFailed parks an entry that exhausted its retries.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	const query = `UPDATE outbox_entries SET status = $2, attempts = attempts + 1, last_error = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.OutboxFailed, lastError); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
