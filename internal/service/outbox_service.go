package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	"github.com/build-biblical-leaders/bbl-api/pkg/jobs"
	"github.com/build-biblical-leaders/bbl-api/pkg/mailer"
)

type outboxRepository interface {
	Enqueue(ctx context.Context, entry *models.OutboxEntry) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxEntry, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	RescheduleFailure(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error
	MarkFailed(ctx context.Context, id string, lastError string) error
}

// OutboxConfig tunes the dispatch loop.
type OutboxConfig struct {
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
	PollInterval time.Duration
}

// OutboxService writes durable delivery records and dispatches them through
// the worker queue. A crash between enqueue and delivery loses nothing; the
// pending row is picked up on the next poll.
type OutboxService struct {
	repo   outboxRepository
	mailer mailer.Mailer
	queue  *jobs.Queue
	logger *zap.Logger
	config OutboxConfig

	cancel context.CancelFunc
}

// NewOutboxService constructs an OutboxService instance.
func NewOutboxService(repo outboxRepository, m mailer.Mailer, logger *zap.Logger, config OutboxConfig) *OutboxService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 15 * time.Second
	}

	s := &OutboxService{repo: repo, mailer: m, logger: logger, config: config}
	s.queue = jobs.NewQueue("outbox", s.handleJob, jobs.QueueConfig{
		Workers:    config.Workers,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// EnqueueMail records a pending mail delivery.
func (s *OutboxService) EnqueueMail(ctx context.Context, kind string, payload models.MailPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}
	entry := &models.OutboxEntry{
		Kind:    kind,
		Payload: raw,
	}
	if err := s.repo.Enqueue(ctx, entry); err != nil {
		return err
	}
	return nil
}

// Start launches the dispatch workers and the poll loop.
func (s *OutboxService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)

	go func() {
		ticker := time.NewTicker(s.config.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pollOnce(ctx)
			}
		}
	}()
}

// Stop halts the poll loop and drains the workers.
func (s *OutboxService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.queue.Stop()
}

func (s *OutboxService) pollOnce(ctx context.Context) {
	entries, err := s.repo.ListDue(ctx, time.Now().UTC(), 50)
	if err != nil {
		s.logger.Warn("outbox poll failed", zap.Error(err))
		return
	}
	for i := range entries {
		entry := entries[i]
		if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: entry.Kind, Payload: entry}); err != nil {
			s.logger.Warn("failed to enqueue outbox job", zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}
}

func (s *OutboxService) handleJob(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.OutboxEntry)
	if !ok {
		return fmt.Errorf("unexpected outbox job payload %T", job.Payload)
	}
	return s.deliver(ctx, entry)
}

func (s *OutboxService) deliver(ctx context.Context, entry models.OutboxEntry) error {
	var payload models.MailPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		// Undeliverable by construction; park it instead of retrying forever.
		if markErr := s.repo.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
			s.logger.Warn("failed to park malformed outbox entry", zap.Error(markErr))
		}
		return nil
	}

	sendErr := s.mailer.Send(ctx, mailer.Message{
		ToName:    payload.ToName,
		ToAddress: payload.ToAddress,
		Subject:   payload.Subject,
		TextBody:  payload.TextBody,
		HTMLBody:  payload.HTMLBody,
	})
	if sendErr == nil {
		if err := s.repo.MarkDelivered(ctx, entry.ID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to mark outbox entry delivered", zap.Error(err))
		}
		return nil
	}

	if entry.Attempts+1 >= s.config.MaxRetries {
		if err := s.repo.MarkFailed(ctx, entry.ID, sendErr.Error()); err != nil {
			s.logger.Warn("failed to mark outbox entry failed", zap.Error(err))
		}
		s.logger.Error("outbox entry exhausted retries",
			zap.String("entry_id", entry.ID),
			zap.String("kind", entry.Kind),
			zap.Error(sendErr),
		)
		return nil
	}

	next := time.Now().UTC().Add(s.backoff(entry.Attempts + 1))
	if err := s.repo.RescheduleFailure(ctx, entry.ID, sendErr.Error(), next); err != nil {
		s.logger.Warn("failed to reschedule outbox entry", zap.Error(err))
	}
	return nil
}

func (s *OutboxService) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 10 {
		attempt = 10
	}
	return s.config.RetryDelay << (attempt - 1)
}
