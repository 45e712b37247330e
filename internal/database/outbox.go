package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	// OutboxStatusPending indicates the event is waiting to be processed
	OutboxStatusPending = "pending"
	// OutboxStatusProcessed indicates the event was successfully processed
	OutboxStatusProcessed = "processed"
	// OutboxStatusFailed indicates the event processing failed (will be retried)
	OutboxStatusFailed = "failed"
	// OutboxStatusDeadLetter indicates the event failed too many times
	OutboxStatusDeadLetter = "dead_letter"

	// MaxRetryCount is the maximum number of retries before moving to dead letter
	MaxRetryCount = 5

	// maxRetryDelay caps the 2^attempt second backoff between retries.
	maxRetryDelay = 5 * time.Minute

	// DefaultStream receives events that name no target stream.
	DefaultStream = "stream:price_list"
)

// ErrIncompleteEvent is returned for events missing their aggregate type,
// event type or payload.
var ErrIncompleteEvent = errors.New("outbox event is incomplete")

// OutboxEvent represents an event in the transactional outbox
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

// OutboxRepository handles outbox event persistence
type OutboxRepository struct {
	db     *DB
	stream string
}

// NewOutboxRepository creates a new outbox repository. Events inserted
// without a target stream go to stream, or DefaultStream when it is empty.
func NewOutboxRepository(db *DB, stream string) *OutboxRepository {
	if stream == "" {
		stream = DefaultStream
	}
	return &OutboxRepository{db: db, stream: stream}
}

// InsertWithTx inserts an event into the outbox within a transaction
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if event.AggregateType == "" || event.EventType == "" || len(event.Payload) == 0 {
		return ErrIncompleteEvent
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = r.stream
	}

	now := time.Now()
	event.CreatedAt = now
	if event.NextRetryAt == nil {
		event.NextRetryAt = &now
	}

	query := `
		INSERT INTO outbox_event (
			id, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			created_at, next_retry_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := tx.Exec(ctx, query,
		event.ID, event.AggregateType, event.AggregateID, event.EventType,
		event.Payload, event.TargetStream, event.Status, event.RetryCount,
		event.CreatedAt, event.NextRetryAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

// pendingQuery selects events that are due, oldest first. Failed events
// come back once their backoff has passed.
const pendingQuery = `
	SELECT id, aggregate_type, aggregate_id, event_type,
		payload, target_stream, status, retry_count,
		error_message, created_at, processed_at, next_retry_at
	FROM outbox_event
	WHERE status = ANY($1) AND next_retry_at <= $2
	ORDER BY created_at, id
	LIMIT $3`

// GetPending returns up to limit events that are due for publishing.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.pool.Query(ctx, pendingQuery,
		[]string{OutboxStatusPending, OutboxStatusFailed}, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}

	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[OutboxEvent])
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending events: %w", err)
	}
	return events, nil
}

// MarkProcessed records a successful publish.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE outbox_event SET status = $1, processed_at = now(), error_message = NULL WHERE id = $2`,
		OutboxStatusProcessed, id)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

// markFailedQuery bumps the attempt counter and schedules the next attempt
// in one statement. SET expressions see the row before the update, so
// retry_count + 1 is the attempt that just failed.
const markFailedQuery = `
	UPDATE outbox_event
	SET retry_count = retry_count + 1,
		error_message = $2,
		status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE $5 END,
		next_retry_at = now() + make_interval(secs => LEAST(power(2, retry_count + 1), $6))
	WHERE id = $1
	RETURNING status`

// MarkFailed records a failed publish and returns the event's new status.
// The event is retried with exponential backoff until MaxRetryCount
// attempts have failed, then it moves to the dead letter state.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, processErr error) (string, error) {
	var status string
	err := r.db.pool.QueryRow(ctx, markFailedQuery,
		id, processErr.Error(), MaxRetryCount,
		OutboxStatusDeadLetter, OutboxStatusFailed,
		maxRetryDelay.Seconds(),
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("event not found: %s", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to mark event as failed: %w", err)
	}
	return status, nil
}

// CountByStatus returns how many events are in any of the given states.
func (r *OutboxRepository) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	var count int64
	err := r.db.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox_event WHERE status = ANY($1)", statuses).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox events: %w", err)
	}
	return count, nil
}
