package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/retreivo/itemmatch/internal/domain"
	"github.com/retreivo/itemmatch/internal/domain/descriptor"
	"github.com/retreivo/itemmatch/internal/metrics"
)

// maxResponseBytes bounds the extractor response body.
const maxResponseBytes = 8 << 20

// Config holds the extractor client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Circuit breaker.
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// extractResponse is the extractor's JSON reply. Descriptors is the base64 concatenation of
// DescriptorBytes-long descriptors.
type extractResponse struct {
	DescriptorBytes int    `json:"descriptor_bytes"`
	Count           int    `json:"count"`
	Descriptors     []byte `json:"descriptors"`
}

// Client calls an external descriptor extraction service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[descriptor.Set]
	logger  *zap.Logger
}

var _ domain.Extractor = (*Client)(nil)

// NewClient creates an extractor client.
func NewClient(cfg *Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "descriptor-extractor",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// An image without features is a valid answer, and a caller giving up is not an
		// extractor fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNoFeatures) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Extractor circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			setBreakerState(to)
		},
	}
	setBreakerState(gobreaker.StateClosed)

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		breaker: gobreaker.NewCircuitBreaker[descriptor.Set](settings),
		logger:  logger,
	}
}

func setBreakerState(current gobreaker.State) {
	for _, s := range []gobreaker.State{gobreaker.StateClosed, gobreaker.StateHalfOpen, gobreaker.StateOpen} {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.ExtractorBreakerState.WithLabelValues(s.String()).Set(v)
	}
}

// Extract implements domain.Extractor.
func (c *Client) Extract(ctx context.Context, image []byte) (descriptor.Set, error) {
	if len(image) == 0 {
		return descriptor.Set{}, fmt.Errorf("empty image: %w", domain.ErrExtractionFailed)
	}

	set, err := c.breaker.Execute(func() (descriptor.Set, error) {
		return c.extract(ctx, image)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return descriptor.Set{}, fmt.Errorf("%w: %w", domain.ErrExtractorUnavailable, err)
	}
	return set, err
}

func (c *Client) extract(ctx context.Context, image []byte) (descriptor.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(image))
	if err != nil {
		return descriptor.Set{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ExtractorRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return descriptor.Set{}, fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return descriptor.Set{}, domain.ErrNoFeatures
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return descriptor.Set{}, domain.NewExtractorStatusError(resp.StatusCode)
	}

	var body extractResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return descriptor.Set{}, fmt.Errorf("%w: decode response: %w", domain.ErrExtractionFailed, err)
	}

	if len(body.Descriptors) == 0 {
		return descriptor.Set{}, domain.ErrNoFeatures
	}
	set, err := descriptor.Split(body.DescriptorBytes, body.Descriptors)
	if err != nil {
		return descriptor.Set{}, fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
	}
	if set.IsEmpty() {
		return descriptor.Set{}, domain.ErrNoFeatures
	}
	if body.Count > 0 && body.Count != set.Len() {
		return descriptor.Set{}, fmt.Errorf("%w: response declares %d descriptors, got %d",
			domain.ErrExtractionFailed, body.Count, set.Len())
	}
	return set, nil
}

// HealthCheck calls GET /health on the extractor.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("extractor health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extractor health: status %d", resp.StatusCode)
	}
	return nil
}

// State returns the circuit breaker state name.
func (c *Client) State() string {
	return c.breaker.State().String()
}
