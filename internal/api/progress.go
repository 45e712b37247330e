package api

import (
	"sync"
	"time"

	"github.com/maltedev/pricelist-scraper/internal/models"
)

// Tracker holds the latest progress report of the running job.
type Tracker struct {
	mu      sync.RWMutex
	current models.Progress
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Update replaces the current progress. Its signature matches the
// scraper's progress callback.
func (t *Tracker) Update(p models.Progress) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	t.mu.Lock()
	t.current = p
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() models.Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}
