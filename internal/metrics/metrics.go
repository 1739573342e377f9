// Package metrics exposes the Prometheus collectors of the pricing engine.
// Collectors are registered once by Init; the Record* helpers are no-ops until
// then so services can be unit tested without a registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Sync metrics
	SyncRunsTotal    *prometheus.CounterVec
	SyncDuration     *prometheus.HistogramVec
	FeedFetchesTotal *prometheus.CounterVec
	FeedFetchLatency *prometheus.HistogramVec

	// Pricing pipeline metrics
	RepricesTotal        *prometheus.CounterVec
	PriceConflictsTotal  prometheus.Counter
	CompetitorObsTotal   prometheus.Counter
	BulkUpdatesTotal     *prometheus.CounterVec
	CircuitBreakerStates *prometheus.GaugeVec

	initOnce sync.Once
)

// Init registers every collector under prefix on the default registry.
// Subsequent calls are ignored.
func Init(prefix string) {
	initOnce.Do(func() {
		HTTPRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		)
		HTTPRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		)

		SyncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_sync_runs_total",
				Help: "Supplier and competitor sync cycles by target kind and status",
			},
			[]string{"kind", "status"},
		)
		SyncDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_sync_duration_seconds",
				Help:    "Duration of sync cycles in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"kind"},
		)
		FeedFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_feed_fetches_total",
				Help: "Price feed fetches by source type and outcome",
			},
			[]string{"source", "outcome"},
		)
		FeedFetchLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_feed_fetch_duration_seconds",
				Help:    "Duration of price feed fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		)

		RepricesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_reprices_total",
				Help: "Pipeline runs by outcome (applied, pending_approval, unchanged, no_rule)",
			},
			[]string{"status"},
		)
		PriceConflictsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_price_write_conflicts_total",
				Help: "Optimistic price writes that lost the race",
			},
		)
		CompetitorObsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_competitor_observations_total",
				Help: "Competitor price observations recorded",
			},
		)
		BulkUpdatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_bulk_updates_total",
				Help: "Bulk price updates by mode",
			},
			[]string{"mode"},
		)
		CircuitBreakerStates = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: prefix + "_circuit_breaker_state",
				Help: "Circuit breaker state per feed (0 closed, 1 open, 2 half-open)",
			},
			[]string{"name"},
		)
	})
}

// RecordHTTP records one served request.
func RecordHTTP(method, path, status string, d time.Duration) {
	if HTTPRequestsTotal == nil {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

// RecordSync records one finished sync cycle. kind is supplier or competitor.
func RecordSync(kind, status string, d time.Duration) {
	if SyncRunsTotal == nil {
		return
	}
	SyncRunsTotal.WithLabelValues(kind, status).Inc()
	SyncDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// TrackFeedFetch returns a function that records the outcome and duration of
// a feed fetch started at the time of the call.
func TrackFeedFetch(source string) func(err error) {
	start := time.Now()
	return func(err error) {
		if FeedFetchesTotal == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		FeedFetchesTotal.WithLabelValues(source, outcome).Inc()
		FeedFetchLatency.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}
}

func RecordReprice(status string) {
	if RepricesTotal == nil {
		return
	}
	RepricesTotal.WithLabelValues(status).Inc()
}

func RecordConflict() {
	if PriceConflictsTotal == nil {
		return
	}
	PriceConflictsTotal.Inc()
}

func RecordCompetitorObservations(n int) {
	if CompetitorObsTotal == nil || n <= 0 {
		return
	}
	CompetitorObsTotal.Add(float64(n))
}

func RecordBulkUpdate(mode string) {
	if BulkUpdatesTotal == nil {
		return
	}
	BulkUpdatesTotal.WithLabelValues(mode).Inc()
}

func SetCircuitBreakerState(name string, state int) {
	if CircuitBreakerStates == nil {
		return
	}
	CircuitBreakerStates.WithLabelValues(name).Set(float64(state))
}
