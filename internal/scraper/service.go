// Package scraper drives one price list job from login to image download.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/pricelist-scraper/internal/auth"
	"github.com/maltedev/pricelist-scraper/internal/config"
	"github.com/maltedev/pricelist-scraper/internal/dataset"
	"github.com/maltedev/pricelist-scraper/internal/dom"
	"github.com/maltedev/pricelist-scraper/internal/extract"
	"github.com/maltedev/pricelist-scraper/internal/locator"
	"github.com/maltedev/pricelist-scraper/internal/metrics"
	"github.com/maltedev/pricelist-scraper/internal/models"
	"github.com/maltedev/pricelist-scraper/internal/navigator"
	"github.com/maltedev/pricelist-scraper/internal/pager"
)

// Store writes the normalized dataset.
type Store interface {
	SaveProducts(products []models.Product) error
}

// Sink persists a finished run somewhere outside the output directory.
type Sink interface {
	SaveRun(ctx context.Context, run *models.RunResult, products []models.Product) error
}

// ImageFetcher downloads product images.
type ImageFetcher interface {
	FetchAll(ctx context.Context, products []models.Product) models.ImageStats
}

// ProgressFunc receives every progress change of a run.
type ProgressFunc func(models.Progress)

type Options struct {
	LoginURL       string
	PriceListURLs  []string
	MaxPages       int
	DiagnosticsDir string
	Auth           auth.Timing
	Navigator      navigator.Timing
	Pager          pager.Timing
	Walk           WalkTiming
	// LocatorInterval is the poll interval of every element lookup.
	LocatorInterval time.Duration
}

// OptionsFromConfig maps the scraper settings onto component timings.
func OptionsFromConfig(cfg *config.Config, diagnosticsDir string) Options {
	opts := Options{
		LoginURL:       cfg.LoginURL(),
		PriceListURLs:  cfg.PriceListURLs(),
		MaxPages:       cfg.Scraper.MaxPages,
		DiagnosticsDir: diagnosticsDir,
		Auth:           auth.DefaultTiming(),
		Navigator:      navigator.DefaultTiming(),
		Pager:          pager.DefaultTiming(),
		Walk:           DefaultWalkTiming(),
	}
	opts.Auth.FieldTimeout = cfg.Scraper.LocatorTimeout
	opts.Auth.SuccessTimeout = cfg.Scraper.LoginTimeout
	opts.Navigator.ContentTimeout = cfg.Scraper.ContentTimeout
	opts.Walk.ContentTimeout = cfg.Scraper.ContentTimeout
	opts.Walk.Settle = cfg.Scraper.SettleDelay
	return opts
}

type Service struct {
	session  dom.Session
	opts     Options
	store    Store
	sink     Sink
	images   ImageFetcher
	progress ProgressFunc
	metrics  *metrics.Metrics
	base     *slog.Logger
	logger   *slog.Logger
}

func NewService(session dom.Session, store Store, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		session: session,
		opts:    opts,
		store:   store,
		base:    logger,
		logger:  logger.With("component", "scraper"),
	}
}

func (s *Service) WithSink(sink Sink) *Service {
	s.sink = sink
	return s
}

func (s *Service) WithImages(f ImageFetcher) *Service {
	s.images = f
	return s
}

func (s *Service) WithProgress(fn ProgressFunc) *Service {
	s.progress = fn
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// Run executes the whole job. The returned error is set only for the
// conditions that abort a run: missing credentials and failed login.
// Navigation failure and an empty walk end the run cleanly with the
// matching status.
func (s *Service) Run(ctx context.Context, creds config.Credentials) (*models.RunResult, error) {
	run := models.NewRunResult()
	log := s.logger.With("run_id", run.ID.String())
	log.Info("run started")

	resolver := locator.New(s.session, s.base)
	if s.opts.LocatorInterval > 0 {
		resolver = resolver.WithInterval(s.opts.LocatorInterval)
	}

	s.report(run, models.StageLogin, 0, 0)
	diag := auth.NewDiagnostics(s.opts.DiagnosticsDir, s.base)
	if err := auth.New(resolver, s.opts.LoginURL, diag, s.opts.Auth, s.base).Login(ctx, creds); err != nil {
		return s.finish(ctx, run, models.RunFailed, nil, fmt.Errorf("failed to log in: %w", err))
	}

	s.report(run, models.StageNavigate, 0, 0)
	nav := navigator.New(resolver, s.opts.PriceListURLs, s.opts.Navigator, s.base)
	if !nav.GotoPriceList(ctx) {
		log.Error("price list could not be reached")
		return s.finish(ctx, run, models.RunNavigationFailed, nil, nil)
	}

	s.report(run, models.StageWalk, 0, 0)
	walker := NewWalker(s.session,
		extract.New(s.session, s.base),
		pager.New(resolver, s.opts.Pager, s.base),
		s.opts.MaxPages, s.opts.Walk, s.base).
		WithMetrics(s.metrics).
		WithObserver(func(page, _, total int) {
			s.report(run, models.StageWalk, page, total)
		})
	walk := walker.Walk(ctx)
	run.Pages = walk.Pages
	run.StopReason = walk.StopReason
	run.RawRecords = len(walk.Records)

	if len(walk.Records) == 0 {
		log.Warn("no records found")
		return s.finish(ctx, run, models.RunEmpty, nil, nil)
	}

	products, err := s.Persist(ctx, run, walk.Records)
	if err != nil {
		return s.finish(ctx, run, models.RunFailed, products, err)
	}

	if s.images != nil {
		s.report(run, models.StageImages, run.Pages, len(products))
		run.Images = s.images.FetchAll(ctx, products)
	}

	return s.finish(ctx, run, models.RunCompleted, products, nil)
}

// Persist normalizes raw records and writes the dataset. It is shared with
// offline re-parsing.
func (s *Service) Persist(ctx context.Context, run *models.RunResult, raw []models.RawRecord) ([]models.Product, error) {
	s.report(run, models.StageSave, run.Pages, len(raw))

	products := dataset.Normalize(raw)
	run.Products = len(products)
	s.metrics.SetProducts(len(products))

	if err := s.store.SaveProducts(products); err != nil {
		return products, fmt.Errorf("failed to save products: %w", err)
	}
	s.logger.Info("dataset written", "products", len(products), "raw_records", len(raw))
	return products, nil
}

func (s *Service) finish(ctx context.Context, run *models.RunResult, status models.RunStatus, products []models.Product, err error) (*models.RunResult, error) {
	if err != nil {
		run.Error = err.Error()
	}
	run.Finish(status)
	s.metrics.ObserveRun(string(status), run.Duration())
	s.report(run, models.StageDone, run.Pages, run.Products)

	if s.sink != nil {
		// the run context may already be spent on a deadline
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if serr := s.sink.SaveRun(sinkCtx, run, products); serr != nil {
			s.logger.Error("failed to persist run", "run_id", run.ID.String(), "error", serr)
		}
	}

	s.logger.Info("run finished",
		"run_id", run.ID.String(),
		"status", run.Status,
		"stop_reason", run.StopReason,
		"pages", run.Pages,
		"products", run.Products,
		"duration", run.Duration().Round(time.Millisecond),
	)
	return run, err
}

func (s *Service) report(run *models.RunResult, stage models.Stage, page, records int) {
	if s.progress == nil {
		return
	}
	s.progress(models.Progress{
		RunID:     run.ID,
		Stage:     stage,
		Page:      page,
		Records:   records,
		UpdatedAt: time.Now(),
	})
}
