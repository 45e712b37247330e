package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxRepo interface for outbox operations (for testing)
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) (string, error)
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

// EventSource names this service in published stream metadata.
const EventSource = "pricelist-scraper"

// Relay processes events from the outbox table to Redis streams
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	maxLen    int64
}

// RelayConfig contains configuration for the relay
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Stream       string
	// MaxLen approximately caps the stream length. Zero keeps the default.
	MaxLen int64
}

// NewRelay creates a new relay instance
func NewRelay(db *DB, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.MaxLen == 0 {
		config.MaxLen = 10000
	}

	return &Relay{
		redis:     redisClient,
		outbox:    NewOutboxRepository(db, config.Stream),
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
		maxLen:    config.MaxLen,
	}
}

// Start begins processing events from the outbox
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay",
		"interval", r.interval,
		"batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Process immediately on start
	if _, err := r.processEvents(ctx); err != nil {
		r.logger.Error("failed to process events on startup", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.processEvents(ctx); err != nil {
				r.logger.Error("failed to process events", "error", err)
			}
		}
	}
}

// Drain publishes pending events batch by batch until a batch delivers
// nothing, so a one-shot run can flush its outbox before exiting. Events
// that keep failing stay in the outbox for the next drain.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		published, err := r.processEvents(ctx)
		if err != nil {
			return total, err
		}
		if published == 0 {
			return total, nil
		}
		total += published
	}
}

// processEvents fetches and processes a batch of events and reports how
// many were published.
func (r *Relay) processEvents(ctx context.Context) (int, error) {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	if len(events) == 0 {
		return 0, nil
	}

	r.logger.Debug("processing events", "count", len(events))

	published := 0
	for _, event := range events {
		if err := r.processEvent(ctx, event); err != nil {
			r.logger.Error("failed to process event",
				"event_id", event.ID,
				"aggregate_id", event.AggregateID,
				"error", err)
			continue
		}
		published++
	}

	return published, nil
}

// processEvent processes a single event
func (r *Relay) processEvent(ctx context.Context, event *OutboxEvent) error {
	if err := r.publishToRedis(ctx, event); err != nil {
		status, markErr := r.outbox.MarkFailed(ctx, event.ID, err)
		switch {
		case markErr != nil:
			r.logger.Error("failed to mark event as failed",
				"event_id", event.ID,
				"error", markErr)
		case status == OutboxStatusDeadLetter:
			r.logger.Warn("event moved to dead letter",
				"event_id", event.ID,
				"run_id", event.AggregateID,
				"attempts", event.RetryCount+1)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		r.logger.Error("failed to mark event as processed",
			"event_id", event.ID,
			"error", err)
		return err
	}

	r.logger.Info("event published",
		"event_id", event.ID,
		"event_type", event.EventType,
		"run_id", event.AggregateID,
		"stream", event.TargetStream)

	return nil
}

// streamValues flattens an outbox event into stream fields. Consumers read
// the run id and event type without decoding the payload, which is passed
// through as the JSON stored in the outbox.
func streamValues(event *OutboxEvent) (map[string]interface{}, error) {
	if !json.Valid(event.Payload) {
		return nil, fmt.Errorf("invalid payload for event %s", event.ID)
	}
	return map[string]interface{}{
		"event_id":       event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"run_id":         event.AggregateID,
		"occurred_at":    event.CreatedAt.UTC().Format(time.RFC3339Nano),
		"attempt":        event.RetryCount + 1,
		"source":         EventSource,
		"payload":        string(event.Payload),
	}, nil
}

// publishToRedis appends the event to its target stream.
func (r *Relay) publishToRedis(ctx context.Context, event *OutboxEvent) error {
	values, err := streamValues(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		MaxLen: r.maxLen,
		Approx: r.maxLen > 0,
		Values: values,
	}
	if _, err := r.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// GetPendingCount returns the number of pending events in the outbox
func (r *Relay) GetPendingCount(ctx context.Context) (int64, error) {
	count, err := r.outbox.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return count, nil
}

// GetDeadLetterCount returns the number of events in dead letter
func (r *Relay) GetDeadLetterCount(ctx context.Context) (int64, error) {
	count, err := r.outbox.CountByStatus(ctx, OutboxStatusDeadLetter)
	if err != nil {
		return 0, fmt.Errorf("failed to get dead letter count: %w", err)
	}
	return count, nil
}
