package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/maltedev/pricelist-scraper/internal/dom"
	"github.com/maltedev/pricelist-scraper/internal/extract"
	"github.com/maltedev/pricelist-scraper/internal/metrics"
	"github.com/maltedev/pricelist-scraper/internal/models"
	"github.com/maltedev/pricelist-scraper/internal/navigator"
)

const DefaultMaxPages = 149

// PageReader reads the records of the page currently shown.
type PageReader interface {
	Read(ctx context.Context) ([]models.RawRecord, extract.Layout)
}

// Advancer moves to the page after current. False ends the walk.
type Advancer interface {
	Advance(ctx context.Context, current int) bool
}

// PageObserver is told about every extracted page.
type PageObserver func(page, records, total int)

type WalkTiming struct {
	ScrollStep      int
	ScrollPause     time.Duration
	AfterScroll     time.Duration
	TopPause        time.Duration
	Settle          time.Duration
	ContentTimeout  time.Duration
	ContentInterval time.Duration
}

func DefaultWalkTiming() WalkTiming {
	return WalkTiming{
		ScrollStep:      700,
		ScrollPause:     250 * time.Millisecond,
		AfterScroll:     time.Second,
		TopPause:        500 * time.Millisecond,
		Settle:          7 * time.Second,
		ContentTimeout:  20 * time.Second,
		ContentInterval: 250 * time.Millisecond,
	}
}

type WalkResult struct {
	Records    []models.RawRecord
	Pages      int
	StopReason models.StopReason
}

type Walker struct {
	session  dom.Session
	reader   PageReader
	pager    Advancer
	maxPages int
	timing   WalkTiming
	observer PageObserver
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewWalker(session dom.Session, reader PageReader, pager Advancer, maxPages int, timing WalkTiming, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPages < 1 {
		maxPages = DefaultMaxPages
	}
	return &Walker{
		session:  session,
		reader:   reader,
		pager:    pager,
		maxPages: maxPages,
		timing:   timing,
		logger:   logger.With("component", "walker"),
	}
}

func (w *Walker) WithObserver(fn PageObserver) *Walker {
	w.observer = fn
	return w
}

func (w *Walker) WithMetrics(m *metrics.Metrics) *Walker {
	w.metrics = m
	return w
}

// Walk extracts the current page and keeps advancing until the pager gives
// up, a page shows no content or the page ceiling is hit. Records gathered
// before the stop are always returned. At most maxPages pages are read.
func (w *Walker) Walk(ctx context.Context) WalkResult {
	var res WalkResult

	for page := 1; page <= w.maxPages; page++ {
		if ctx.Err() != nil {
			res.StopReason = models.StopCancelled
			break
		}
		start := time.Now()

		w.logger.Info("scrolling page for lazy content", "page", page)
		w.scrollWholePage(ctx)
		dom.Sleep(ctx, w.timing.Settle)

		if !navigator.HasContent(ctx, w.session, w.timing.ContentTimeout, w.timing.ContentInterval) {
			if ctx.Err() != nil {
				res.StopReason = models.StopCancelled
			} else {
				w.logger.Warn("page content did not appear", "page", page)
				res.StopReason = models.StopNoContent
			}
			break
		}

		records, layout := w.reader.Read(ctx)
		res.Pages++
		if len(records) > 0 {
			res.Records = append(res.Records, records...)
		}
		w.logger.Info("page extracted", "page", page, "records", len(records), "layout", layout, "total", len(res.Records))
		w.metrics.ObservePage(string(layout), len(records), time.Since(start))
		if w.observer != nil {
			w.observer(page, len(records), len(res.Records))
		}

		if page == w.maxPages {
			res.StopReason = models.StopMaxPages
			break
		}
		if !w.pager.Advance(ctx, page) {
			res.StopReason = models.StopNoNextPage
			break
		}
	}

	w.logger.Info("walk finished", "pages", res.Pages, "records", len(res.Records), "reason", res.StopReason)
	return res
}

// scrollWholePage steps through the document so lazy images load, then
// returns to the top. Scroll faults are ignored.
func (w *Walker) scrollWholePage(ctx context.Context) {
	height, err := w.session.ScrollHeight()
	if err != nil {
		return
	}
	if height <= 0 {
		height = 3000
	}
	step := w.timing.ScrollStep
	if step <= 0 {
		step = 700
	}

	for y := 0; y < height; y += step {
		if ctx.Err() != nil {
			return
		}
		if err := w.session.ScrollTo(y); err != nil {
			return
		}
		dom.Sleep(ctx, w.timing.ScrollPause)
	}
	dom.Sleep(ctx, w.timing.AfterScroll)
	_ = w.session.ScrollTo(0)
	dom.Sleep(ctx, w.timing.TopPause)
}
