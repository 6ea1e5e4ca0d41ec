package itemmatch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	extractorURL     string
	extractorTimeout time.Duration
	httpClient       *http.Client

	cacheAddrs    []string
	cachePassword string
	cacheTTL      time.Duration

	fallback bool
	topK     int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithExtractor enables image matching through the descriptor extractor at baseURL.
func WithExtractor(baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.extractorURL = baseURL
	})
}

// WithExtractorTimeout bounds each extractor call. Default: 15s.
func WithExtractorTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.extractorTimeout = d
	})
}

// WithHTTPClient sets the HTTP client used to reach the extractor.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithRedisCache caches extracted descriptors in Redis, keyed by image digest.
func WithRedisCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheAddrs = []string{addr}
		c.cachePassword = password
		c.cacheTTL = ttl
	})
}

// WithFallback returns the legacy placeholder candidates when nothing matches.
// Disabled by default.
func WithFallback(enabled bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.fallback = enabled
	})
}

// WithTopK sets the maximum number of returned matches. Default: 5.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
