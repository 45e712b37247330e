package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors of one scraper process. All
// methods are safe on a nil receiver.
type Metrics struct {
	Registry        *prometheus.Registry
	PagesTotal      prometheus.Counter
	RecordsTotal    *prometheus.CounterVec
	PageDuration    prometheus.Histogram
	ProductsTotal   prometheus.Gauge
	ImagesTotal     *prometheus.CounterVec
	ImageDuration   prometheus.Histogram
	RunsTotal       *prometheus.CounterVec
	LastRunDuration prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pricelist_pages_total",
		Help: "Price list pages extracted.",
	})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricelist_raw_records_total",
		Help: "Raw records read from pages, by layout.",
	}, []string{"layout"})
	pageDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricelist_page_duration_seconds",
		Help:    "Time spent on one page including settle delays.",
		Buckets: []float64{1, 2.5, 5, 10, 15, 20, 30, 60},
	})
	products := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pricelist_products",
		Help: "Unique products in the last normalized dataset.",
	})
	images := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricelist_images_total",
		Help: "Image downloads by outcome.",
	}, []string{"outcome"})
	imageDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricelist_image_fetch_duration_seconds",
		Help:    "Image fetch latency.",
		Buckets: prometheus.DefBuckets,
	})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricelist_runs_total",
		Help: "Finished runs by terminal status.",
	}, []string{"status"})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pricelist_last_run_duration_seconds",
		Help: "Wall time of the last finished run.",
	})

	registry.MustRegister(pages, records, pageDuration, products, images, imageDuration, runs, lastRun)

	return &Metrics{
		Registry:        registry,
		PagesTotal:      pages,
		RecordsTotal:    records,
		PageDuration:    pageDuration,
		ProductsTotal:   products,
		ImagesTotal:     images,
		ImageDuration:   imageDuration,
		RunsTotal:       runs,
		LastRunDuration: lastRun,
	}
}

func (m *Metrics) ObservePage(layout string, records int, d time.Duration) {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
	m.RecordsTotal.WithLabelValues(layout).Add(float64(records))
	m.PageDuration.Observe(d.Seconds())
}

func (m *Metrics) SetProducts(n int) {
	if m == nil {
		return
	}
	m.ProductsTotal.Set(float64(n))
}

// ObserveImage records one asset outcome: saved, skipped or failed.
func (m *Metrics) ObserveImage(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.ImageDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.LastRunDuration.Set(d.Seconds())
}
