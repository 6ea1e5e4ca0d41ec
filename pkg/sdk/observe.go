package itemmatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	outcomes   *prometheus.CounterVec
	bestScore  *prometheus.HistogramVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itemmatch",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "SDK operations by type and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "itemmatch",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itemmatch",
			Subsystem: "sdk",
			Name:      "match_outcomes_total",
			Help:      "Answered match requests by search method and recommended next step.",
		}, []string{"method", "next_step"}),
		bestScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "itemmatch",
			Subsystem: "sdk",
			Name:      "match_best_score",
			Help:      "Composite score of the top candidate per answered match request.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}, []string{"method"}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.outcomes); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.bestScore); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector, or adopts the one already registered under its name.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("itemmatch: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("itemmatch: metric already registered with incompatible type: %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// observer logs and counts SDK operations. A nil observer is a no-op.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

func (o *observer) observe(op string, start time.Time, err error, attrs ...any) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}

	if o.logger == nil {
		return
	}
	args := append([]any{"op", op, "duration", dur}, attrs...)
	if err != nil {
		o.logger.Warn("operation failed", append(args, "error", err)...)
		return
	}
	o.logger.Debug("operation completed", args...)
}

// observeMatch records a match request along with how it was answered.
// Failed requests carry no outcome.
func (o *observer) observeMatch(op string, start time.Time, err error, t ReportType, res *Result) {
	if o == nil {
		return
	}
	if err != nil {
		o.observe(op, start, err, "type", t)
		return
	}
	if o.metrics != nil {
		o.metrics.outcomes.WithLabelValues(res.Method, res.NextStep).Inc()
		if res.Found {
			o.metrics.bestScore.WithLabelValues(res.Method).Observe(float64(res.BestScore))
		}
	}
	o.observe(op, start, nil, "type", t, "method", res.Method,
		"next_step", res.NextStep, "best_score", res.BestScore, "matches", len(res.Matches))
}
