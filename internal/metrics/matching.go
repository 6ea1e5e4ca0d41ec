package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Matching engine Prometheus metrics.
var (
	MatchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itemmatch",
			Name:      "match_requests_total",
			Help:      "Match queries by operation, search method and recommended action",
		},
		[]string{"operation", "method", "action"},
	)

	MatchScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "itemmatch",
			Name:      "match_scan_duration_seconds",
			Help:      "Time spent scoring one collection scan",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"collection"},
	)

	MatchBestScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "itemmatch",
			Name:      "match_best_score",
			Help:      "Best composite score per match query",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	ItemsStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itemmatch",
			Name:      "items_stored_total",
			Help:      "Stored item reports by type and whether descriptors were attached",
		},
		[]string{"type", "has_descriptors"},
	)

	MalformedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itemmatch",
			Name:      "malformed_records_skipped_total",
			Help:      "Stored records skipped during a scan because their descriptors could not be decoded",
		},
		[]string{"collection"},
	)

	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itemmatch",
			Name:      "extractions_total",
			Help:      "Descriptor extraction outcomes",
		},
		[]string{"outcome"}, // "ok" / "no_features" / "failed" / "unavailable" / "invalid_image"
	)

	ExtractorRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "itemmatch",
			Name:      "extractor_request_duration_seconds",
			Help:      "Descriptor extractor HTTP round-trip duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ExtractorBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "itemmatch",
			Name:      "extractor_breaker_state",
			Help:      "Extractor circuit breaker state (1 for the current state)",
		},
		[]string{"state"},
	)

	DescriptorCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itemmatch",
			Name:      "descriptor_cache_total",
			Help:      "Descriptor cache hits, misses and malformed entries",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// RegisterMatchingMetrics registers the matching engine metrics. Call once from main.
func RegisterMatchingMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			MatchRequestsTotal,
			MatchScanDuration,
			MatchBestScore,
			ItemsStoredTotal,
			MalformedRecordsTotal,
			ExtractionsTotal,
			ExtractorRequestDuration,
			ExtractorBreakerState,
			DescriptorCacheTotal,
		)
	})
}
