// Package assets downloads one image per product into the downloads
// directory.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/maltedev/pricelist-scraper/internal/dataset"
	"github.com/maltedev/pricelist-scraper/internal/metrics"
	"github.com/maltedev/pricelist-scraper/internal/models"
	"github.com/maltedev/pricelist-scraper/internal/queue"
	"github.com/maltedev/pricelist-scraper/internal/ratelimit"
)

const (
	OutcomeSaved   = "saved"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"

	defaultExt = ".jpg"
)

var (
	ErrEmptyBody = errors.New("empty response body")
	ErrStatus    = errors.New("unexpected status")
	// ErrTransient marks failures worth another attempt: transport errors,
	// 5xx and 429 responses.
	ErrTransient = errors.New("transient failure")
)

var knownExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true, ".bmp": true,
}

type Options struct {
	Dir     string
	BaseURL string
	Workers int
	Timeout time.Duration
	RateMin time.Duration
	RateMax time.Duration
	// Retries is how many extra attempts a transient failure gets.
	Retries int
}

type Fetcher struct {
	client  *resty.Client
	dir     string
	base    *url.URL
	workers int
	retries int
	limiter *ratelimit.AdaptiveRateLimiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(opts Options, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}

	var base *url.URL
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse base url: %w", err)
		}
		base = u
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetHeader("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	return &Fetcher{
		client:  client,
		dir:     opts.Dir,
		base:    base,
		workers: opts.Workers,
		retries: max(opts.Retries, 0),
		limiter: ratelimit.NewAdaptiveRateLimiter(opts.RateMin, opts.RateMax),
		logger:  logger.With("component", "assets"),
	}, nil
}

// Client exposes the HTTP client, for example to install a transport.
func (f *Fetcher) Client() *resty.Client { return f.client }

func (f *Fetcher) WithMetrics(m *metrics.Metrics) *Fetcher {
	f.metrics = m
	return f
}

// Tasks turns products into download tasks. Products without an image URL
// or a usable SKU produce none.
func (f *Fetcher) Tasks(products []models.Product) []*queue.Task {
	tasks := make([]*queue.Task, 0, len(products))
	for _, p := range products {
		raw := strings.TrimSpace(p.ImageURL)
		name := dataset.SanitizeName(strings.TrimSpace(p.SKU))
		if raw == "" || name == "" {
			continue
		}
		target, err := f.resolve(raw)
		if err != nil {
			f.logger.Debug("skipping unusable image url", "sku", p.SKU, "url", raw, "error", err)
			continue
		}
		tasks = append(tasks, &queue.Task{
			ID:   uuid.NewString(),
			URL:  target,
			SKU:  p.SKU,
			Path: filepath.Join(f.dir, name+Extension(target)),
		})
	}
	return tasks
}

// FetchAll downloads every product image through a queue drained by the
// configured number of workers. Transient failures go back on the queue
// behind first attempts until their retries are used up. Individual
// failures are counted, never returned.
func (f *Fetcher) FetchAll(ctx context.Context, products []models.Product) models.ImageStats {
	tasks := f.Tasks(products)
	q := queue.NewInMemoryQueue()
	if err := q.PushAll(tasks); err != nil {
		f.logger.Error("failed to queue image downloads", "error", err)
	}

	var (
		mu        sync.Mutex
		stats     models.ImageStats
		remaining = len(tasks)
		wg        sync.WaitGroup
	)
	if remaining == 0 {
		q.Close()
	}
	settle := func(outcome string) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case OutcomeSaved:
			stats.Saved++
		case OutcomeSkipped:
			stats.Skipped++
		default:
			stats.Failed++
		}
		remaining--
		if remaining == 0 {
			q.Close()
		}
	}

	f.logger.Info("downloading images", "tasks", len(tasks), "workers", f.workers, "retries", f.retries)

	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.Pop(ctx)
				if err != nil {
					return
				}
				outcome, err := f.run(ctx, task)
				if f.retry(ctx, q, task, err) {
					continue
				}
				settle(outcome)
			}
		}()
	}
	wg.Wait()

	f.logger.Info("image download finished", "saved", stats.Saved, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats
}

// retry requeues a transiently failed task with a lower priority than
// every first attempt. It reports whether the task went back on the queue.
func (f *Fetcher) retry(ctx context.Context, q queue.Queue, task *queue.Task, err error) bool {
	if err == nil || !errors.Is(err, ErrTransient) || task.Retries >= f.retries || ctx.Err() != nil {
		return false
	}
	task.Retries++
	task.Priority = -task.Retries
	if pushErr := q.Push(task); pushErr != nil {
		return false
	}
	f.logger.Debug("retrying image download", "sku", task.SKU, "attempt", task.Retries+1)
	return true
}

func (f *Fetcher) run(ctx context.Context, task *queue.Task) (string, error) {
	start := time.Now()
	outcome, err := f.Fetch(ctx, task)
	if err != nil {
		f.logger.Warn("image download failed", "sku", task.SKU, "url", task.URL, "attempt", task.Retries+1, "error", err)
	}
	var elapsed time.Duration
	if outcome != OutcomeSkipped {
		elapsed = time.Since(start)
	}
	f.metrics.ObserveImage(outcome, elapsed)
	return outcome, err
}

// Fetch downloads one task unless its file already exists.
func (f *Fetcher) Fetch(ctx context.Context, task *queue.Task) (string, error) {
	if _, err := os.Stat(task.Path); err == nil {
		return OutcomeSkipped, nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return OutcomeFailed, err
	}

	resp, err := f.client.R().SetContext(ctx).Get(task.URL)
	if err != nil {
		f.limiter.RecordError()
		return OutcomeFailed, fmt.Errorf("failed to fetch image: %w: %w", ErrTransient, err)
	}
	if !resp.IsSuccess() {
		f.limiter.RecordError()
		code := resp.StatusCode()
		if code >= 500 || code == http.StatusTooManyRequests {
			return OutcomeFailed, fmt.Errorf("%w: %w: %s", ErrTransient, ErrStatus, resp.Status())
		}
		return OutcomeFailed, fmt.Errorf("%w: %s", ErrStatus, resp.Status())
	}
	body := resp.Body()
	if len(body) == 0 {
		f.limiter.RecordError()
		return OutcomeFailed, ErrEmptyBody
	}
	f.limiter.RecordSuccess()

	created, err := writeExclusive(task.Path, body)
	if err != nil {
		return OutcomeFailed, err
	}
	if !created {
		return OutcomeSkipped, nil
	}
	return OutcomeSaved, nil
}

// writeExclusive stores data at path unless a file is already there. The
// bytes go to a temporary file first and are hard linked into place, so a
// reader never sees a partial image and two writers never both win.
func writeExclusive(target string, data []byte) (bool, error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".img-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return false, fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Link(tmp.Name(), target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to link image into place: %w", err)
	}
	return true, nil
}

func (f *Fetcher) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "data" {
		return "", errors.New("inline data url")
	}
	if !u.IsAbs() {
		if f.base == nil {
			return "", errors.New("relative url without base")
		}
		u = f.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Extension returns the lower-cased image extension of the URL path, or
// ".jpg" when it is missing or not an image type.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(p))
	if knownExts[ext] {
		return ext
	}
	return defaultExt
}
