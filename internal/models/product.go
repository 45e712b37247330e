package models

import (
	"time"

	"github.com/google/uuid"
)

// RawRecord is one product row or card as read from the page, before any
// normalization.
type RawRecord struct {
	ImageURL     string
	SKU          string
	Title        string
	Stock        string
	KDV          string
	Birim        string
	PriceText    string
	CurrencyHint string
}

// Product is the persisted unit. SKU is non-empty and unique within a
// dataset, Price is finite and non-negative.
type Product struct {
	ImageURL string  `json:"image_url" csv:"image_url"`
	SKU      string  `json:"sku" csv:"sku"`
	Title    string  `json:"title" csv:"title"`
	Stock    string  `json:"stock" csv:"stock"`
	KDV      string  `json:"kdv" csv:"kdv"`
	Birim    string  `json:"birim" csv:"birim"`
	Price    float64 `json:"price" csv:"price"`
	Currency string  `json:"currency" csv:"currency"`
}

type RunStatus string

const (
	RunCompleted        RunStatus = "completed"
	RunNavigationFailed RunStatus = "navigation_failed"
	RunEmpty            RunStatus = "empty"
	RunFailed           RunStatus = "failed"
)

// StopReason tells why the page walk ended.
type StopReason string

const (
	StopNoNextPage StopReason = "no_next_page"
	StopNoContent  StopReason = "no_content"
	StopMaxPages   StopReason = "max_pages"
	StopCancelled  StopReason = "cancelled"
)

type RunResult struct {
	ID         uuid.UUID  `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Status     RunStatus  `json:"status"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	Pages      int        `json:"pages"`
	RawRecords int        `json:"raw_records"`
	Products   int        `json:"products"`
	Images     ImageStats `json:"images"`
	Error      string     `json:"error,omitempty"`
}

type ImageStats struct {
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func NewRunResult() *RunResult {
	return &RunResult{
		ID:        uuid.New(),
		StartedAt: time.Now(),
	}
}

func (r *RunResult) Finish(status RunStatus) {
	r.Status = status
	r.FinishedAt = time.Now()
}

func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage is the step a run is currently in.
type Stage string

const (
	StageLogin    Stage = "login"
	StageNavigate Stage = "navigate"
	StageWalk     Stage = "walk"
	StageSave     Stage = "save"
	StageImages   Stage = "images"
	StageDone     Stage = "done"
)

// Progress is a point-in-time view of a running job.
type Progress struct {
	RunID     uuid.UUID `json:"run_id"`
	Stage     Stage     `json:"stage"`
	Page      int       `json:"page"`
	Records   int       `json:"records"`
	UpdatedAt time.Time `json:"updated_at"`
}
