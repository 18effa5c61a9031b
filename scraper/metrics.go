package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request phases used as metric labels.
const (
	phaseListing = "listing"
	phaseDetail  = "detail"
)

// Metrics bundles Prometheus collectors for the harvester.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PagesWalked     prometheus.Counter
	ItemsHarvested  prometheus.Counter
	ItemsFailed     *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_requests_total",
			Help: "Total HTTP requests issued by the harvester.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_request_duration_seconds",
			Help:    "HTTP request latency for harvester requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_listing_pages_total",
			Help: "Total number of catalog listing pages walked.",
		},
	)
	harvested := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_items_total",
			Help: "Total number of detail pages turned into records.",
		},
	)
	failed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_items_failed_total",
			Help: "Total number of detail pages that produced no record.",
		},
		[]string{"kind"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_retries_total",
			Help: "Total number of retry attempts issued.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_errors_total",
			Help: "Total number of request and extraction errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, pages, harvested, failed, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PagesWalked:     pages,
		ItemsHarvested:  harvested,
		ItemsFailed:     failed,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// IncPages increments the listing pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesWalked.Inc()
}

// IncItems increments the harvested items counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsHarvested.Inc()
}

// IncFailed increments the failed items counter for a failure kind.
func (m *Metrics) IncFailed(kind string) {
	if m == nil {
		return
	}
	m.ItemsFailed.WithLabelValues(kind).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
