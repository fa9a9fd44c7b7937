package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics bundles Prometheus collectors for one scrape run.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	PagesTotal        prometheus.Counter
	ItemsScrapedTotal prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	RunSuccess        prometheus.Gauge
	RunDuration       prometheus.Gauge
	LastRunTimestamp  prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total catalogue page requests by response status class.",
		},
		[]string{"status_class"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for catalogue pages.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Catalogue pages fetched with a 2xx response.",
		},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of records extracted.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	runSuccess := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_run_success",
			Help: "1 if the last run published its document, 0 otherwise.",
		},
	)
	runDuration := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_run_duration_seconds",
			Help: "Wall-clock duration of the last run.",
		},
	)
	lastRun := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		},
	)

	registry.MustRegister(requests, requestDuration, pages, itemsScraped, errorsTotal, runSuccess, runDuration, lastRun)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		PagesTotal:        pages,
		ItemsScrapedTotal: itemsScraped,
		ErrorsTotal:       errorsTotal,
		RunSuccess:        runSuccess,
		RunDuration:       runDuration,
		LastRunTimestamp:  lastRun,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(statusClass string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(statusClass).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages counts a fetched catalogue page.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// AddItems increments the items scraped counter by n.
func (m *Metrics) AddItems(n int) {
	if m == nil {
		return
	}
	m.ItemsScrapedTotal.Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveRun records the outcome of a finished run.
func (m *Metrics) ObserveRun(success bool, d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	if success {
		m.RunSuccess.Set(1)
	} else {
		m.RunSuccess.Set(0)
	}
	m.RunDuration.Set(d.Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

// Pusher sends the registry to a Prometheus Pushgateway. Batch runs end with
// the machine gone, so nothing is left to scrape.
type Pusher struct {
	pusher *push.Pusher
}

// NewPusher groups the pushed metrics by instance name.
func NewPusher(m *Metrics, url, job, instance string) *Pusher {
	p := push.New(url, job).Gatherer(m.Registry)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	return &Pusher{pusher: p}
}

// Push replaces the job's metrics on the gateway.
func (p *Pusher) Push(ctx context.Context) error {
	if err := p.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
