// Package events records finished runs and announces them through the
// transactional outbox.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/pricelist-scraper/internal/database"
	"github.com/maltedev/pricelist-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypePriceListScraped is published when a run produced a dataset
	EventTypePriceListScraped EventType = "PRICE_LIST_SCRAPED"
	// EventTypePriceListScrapeFailed is published for every other outcome
	EventTypePriceListScrapeFailed EventType = "PRICE_LIST_SCRAPE_FAILED"

	aggregateType = "scrape_run"
)

// RunPayload is the outbox payload describing one run.
type RunPayload struct {
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	Timestamp   time.Time         `json:"timestamp"`
	RunID       string            `json:"run_id"`
	Status      string            `json:"status"`
	StopReason  string            `json:"stop_reason,omitempty"`
	Pages       int               `json:"pages"`
	RawRecords  int               `json:"raw_records"`
	Products    int               `json:"products"`
	NewProducts int               `json:"new_products"`
	Currencies  map[string]int    `json:"currencies,omitempty"`
	Images      models.ImageStats `json:"images"`
	Error       string            `json:"error,omitempty"`
	DurationMS  int64             `json:"duration_ms"`
	Source      string            `json:"source"`
}

// NewRunPayload summarises a run and its products.
func NewRunPayload(run *models.RunResult, products []models.Product) *RunPayload {
	eventType := EventTypePriceListScrapeFailed
	if run.Status == models.RunCompleted {
		eventType = EventTypePriceListScraped
	}

	var currencies map[string]int
	if len(products) > 0 {
		currencies = make(map[string]int)
		for _, p := range products {
			currencies[p.Currency]++
		}
	}

	return &RunPayload{
		EventID:    uuid.New().String(),
		EventType:  string(eventType),
		Timestamp:  time.Now(),
		RunID:      run.ID.String(),
		Status:     string(run.Status),
		StopReason: string(run.StopReason),
		Pages:      run.Pages,
		RawRecords: run.RawRecords,
		Products:   len(products),
		Currencies: currencies,
		Images:     run.Images,
		Error:      run.Error,
		DurationMS: run.Duration().Milliseconds(),
		Source:     "scraper",
	}
}

type transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type runStore interface {
	InsertRunWithTx(ctx context.Context, tx pgx.Tx, run *models.RunResult) error
	UpsertProductsWithTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, products []models.Product) (int, error)
}

type outboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher handles event publishing using transactional outbox pattern
type Publisher struct {
	db     transactor
	runs   runStore
	outbox outboxWriter
	logger *slog.Logger
}

// NewPublisher creates a publisher writing to the given stream.
func NewPublisher(db *database.DB, stream string, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		runs:   database.NewRunRepository(db),
		outbox: database.NewOutboxRepository(db, stream),
		logger: logger.With("component", "event_publisher"),
	}
}

// SaveRun stores the run, upserts its products and queues the run event,
// all in one transaction.
func (p *Publisher) SaveRun(ctx context.Context, run *models.RunResult, products []models.Product) error {
	payload := NewRunPayload(run, products)

	var outboxEvent *database.OutboxEvent
	err := p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.runs.InsertRunWithTx(ctx, tx, run); err != nil {
			return err
		}

		added, err := p.runs.UpsertProductsWithTx(ctx, tx, run.ID, products)
		if err != nil {
			return err
		}
		payload.NewProducts = added

		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		outboxEvent = &database.OutboxEvent{
			AggregateType: aggregateType,
			AggregateID:   payload.RunID,
			EventType:     payload.EventType,
			Payload:       data,
		}
		if err := p.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"run_id", payload.RunID,
		"new_products", payload.NewProducts,
		"outbox_id", outboxEvent.ID,
	)
	return nil
}
