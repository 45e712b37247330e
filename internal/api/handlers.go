// Package api serves the read-only status endpoints of a running job.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/maltedev/pricelist-scraper/internal/models"
)

const (
	pendingWarnThreshold     = 1000
	deadLetterErrorThreshold = 100
)

// ProductSource returns the most recently saved dataset.
type ProductSource interface {
	Products() []models.Product
}

// Catalog is the persisted product catalogue and run history.
type Catalog interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	LastRun(ctx context.Context) (*models.RunResult, error)
}

// OutboxStats reports the outbox backlog for health checks.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	tracker  *Tracker
	products ProductSource
	catalog  Catalog
	outbox   OutboxStats
	logger   *slog.Logger
}

func NewHandlers(tracker *Tracker, products ProductSource, logger *slog.Logger) *Handlers {
	return &Handlers{
		tracker:  tracker,
		products: products,
		logger:   logger.With("component", "api"),
	}
}

// WithOutbox adds outbox counts to the health check.
func (h *Handlers) WithOutbox(o OutboxStats) *Handlers {
	h.outbox = o
	return h
}

// WithCatalog serves the persisted catalogue when no dataset is in memory
// and adds the last finished run to the health check.
func (h *Handlers) WithCatalog(c Catalog) *Handlers {
	h.catalog = c
	return h
}

// Health reports ok, or the outbox backlog when one is attached.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
	}
	status := http.StatusOK

	if h.outbox != nil {
		pendingCount, err := h.outbox.GetPendingCount(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox backlog", "error", err)
		}
		deadLetterCount, err := h.outbox.GetDeadLetterCount(r.Context())
		if err != nil {
			h.logger.Warn("failed to read dead letter count", "error", err)
		}

		health["outbox"] = map[string]interface{}{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}
		if pendingCount > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > deadLetterErrorThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	if h.catalog != nil {
		if run, err := h.catalog.LastRun(r.Context()); err != nil {
			h.logger.Debug("no previous run", "error", err)
		} else {
			health["last_run"] = map[string]interface{}{
				"id":          run.ID,
				"status":      run.Status,
				"products":    run.Products,
				"finished_at": run.FinishedAt,
			}
		}
	}

	h.respondJSON(w, status, health)
}

// GetProgress returns the current stage, page and record count.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.tracker.Snapshot())
}

// ListProducts returns the saved dataset, optionally filtered by currency.
// Before the first dataset of this process exists it falls back to the
// persisted catalogue.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	var products []models.Product
	if h.products != nil {
		products = h.products.Products()
	}
	if len(products) == 0 && h.catalog != nil {
		stored, err := h.catalog.ListProducts(r.Context())
		if err != nil {
			h.logger.Error("failed to list catalogue", "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to load products")
			return
		}
		products = stored
	}
	if h.products == nil && h.catalog == nil {
		h.respondError(w, http.StatusServiceUnavailable, "no dataset available")
		return
	}

	if currency := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency"))); currency != "" {
		filtered := make([]models.Product, 0, len(products))
		for _, p := range products {
			if p.Currency == currency {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}
	if products == nil {
		products = []models.Product{}
	}

	h.respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
