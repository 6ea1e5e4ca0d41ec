package itemmatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	dbRedis "github.com/retreivo/itemmatch/internal/db/redis"
	"github.com/retreivo/itemmatch/internal/domain"
	"github.com/retreivo/itemmatch/internal/domain/item"
	"github.com/retreivo/itemmatch/internal/domain/match"
	"github.com/retreivo/itemmatch/internal/metrics"
	"github.com/retreivo/itemmatch/internal/repository/desccache"
	itemrepo "github.com/retreivo/itemmatch/internal/repository/item"
	"github.com/retreivo/itemmatch/internal/transport/extractor"
	healthuc "github.com/retreivo/itemmatch/internal/usecase/health"
	matchinguc "github.com/retreivo/itemmatch/internal/usecase/matching"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultExtractorTimeout = 15 * time.Second
)

// Use cases consumed by Client.
type matchingUseCase interface {
	StoreItem(ctx context.Context, req matchinguc.StoreRequest) (matchinguc.StoreResult, error)
	MatchByImage(ctx context.Context, t item.ReportType, image string, meta item.Metadata) (match.Result, error)
	MatchByText(ctx context.Context, t item.ReportType, meta item.Metadata) (match.Result, error)
	MatchCombined(ctx context.Context, t item.ReportType, image string, meta item.Metadata) (match.Result, error)
	List(ctx context.Context, t item.ReportType) ([]item.Record, error)
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the itemmatch SDK entry point.
type Client struct {
	cache     *dbRedis.Store
	matching  matchingUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client. The provided context is used for the cache readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{extractorTimeout: defaultExtractorTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	policy := match.DefaultPolicy()
	policy.FallbackEnabled = cfg.fallback
	if cfg.topK > 0 {
		policy.TopK = cfg.topK
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var cache *dbRedis.Store
	if len(cfg.cacheAddrs) > 0 {
		cache, err = dbRedis.NewStore(dbRedis.Config{Addrs: cfg.cacheAddrs, Password: cfg.cachePassword})
		if err != nil {
			return nil, fmt.Errorf("itemmatch: create cache store: %w", err)
		}
		if err := cache.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			cache.Close()
			return nil, fmt.Errorf("itemmatch: cache not ready: %w", err)
		}
	}

	return wireClient(cfg, policy, cache, obs), nil
}

func wireClient(cfg *clientConfig, policy match.Policy, cache *dbRedis.Store, obs *observer) *Client {
	logger := zap.NewNop()

	var ext domain.Extractor = domain.DisabledExtractor{}
	var extChecker healthuc.ExtractorChecker
	if cfg.extractorURL != "" {
		client := extractor.NewClient(&extractor.Config{
			BaseURL:     cfg.extractorURL,
			Timeout:     cfg.extractorTimeout,
			OpenTimeout: 30 * time.Second,
			HTTPClient:  cfg.httpClient,
			Logger:      logger,
		})
		ext, extChecker = client, client
		if cache != nil {
			ext = desccache.New(client, cache, cfg.cacheTTL, metrics.DescriptorCacheTotal, logger)
		}
	}

	var cachePinger healthuc.CachePinger
	if cache != nil {
		cachePinger = cache
	}

	store := itemrepo.New()
	return &Client{
		cache:     cache,
		matching:  matchinguc.New(store, ext, policy, logger),
		healthSvc: healthuc.New(store, extChecker, cachePinger),
		obs:       obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// Store adds a report to its collection. A failed extraction stores the report without
// descriptors.
func (c *Client) Store(ctx context.Context, it Item) (res StoreResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("store", start, err, "type", it.Type) }()

	out, err := c.matching.StoreItem(ctx, matchinguc.StoreRequest{
		ID:       it.ID,
		Type:     item.ReportType(it.Type),
		Metadata: metadata(it.Name, it.Category, it.Description, it.Location, it.Date),
		Image:    encodeImage(it.Image),
	})
	if err != nil {
		return StoreResult{}, fmt.Errorf("store: %w", err)
	}
	return StoreResult{ID: out.ID, HasDescriptors: out.HasDescriptors}, nil
}

// Match matches whatever the query carries: image, metadata or both.
func (c *Client) Match(ctx context.Context, q Query) (Result, error) {
	return c.run(ctx, "match", q, func(t item.ReportType, image string, meta item.Metadata) (match.Result, error) {
		return c.matching.MatchCombined(ctx, t, image, meta)
	})
}

// MatchImage matches by image, using metadata as a secondary signal when present.
func (c *Client) MatchImage(ctx context.Context, q Query) (Result, error) {
	return c.run(ctx, "match_image", q, func(t item.ReportType, image string, meta item.Metadata) (match.Result, error) {
		return c.matching.MatchByImage(ctx, t, image, meta)
	})
}

// MatchText matches by metadata only; q.Image is ignored.
func (c *Client) MatchText(ctx context.Context, q Query) (Result, error) {
	return c.run(ctx, "match_text", q, func(t item.ReportType, _ string, meta item.Metadata) (match.Result, error) {
		return c.matching.MatchByText(ctx, t, meta)
	})
}

// List returns the stored reports of type t in insertion order.
func (c *Client) List(ctx context.Context, t ReportType) (items []StoredItem, err error) {
	start := time.Now()
	defer func() { c.obs.observe("list", start, err, "type", t) }()

	recs, err := c.matching.List(ctx, item.ReportType(t))
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	items = make([]StoredItem, len(recs))
	for i := range recs {
		rec := &recs[i]
		meta := rec.Metadata()
		items[i] = StoredItem{
			ID:             rec.ID(),
			Type:           ReportType(rec.Type()),
			Name:           meta.Name,
			Category:       meta.Category,
			Description:    meta.Description,
			Location:       meta.Location,
			Date:           meta.Date,
			HasDescriptors: rec.HasDescriptors(),
			CreatedAt:      rec.CreatedAt(),
		}
	}
	return items, nil
}

// Health checks the engine and its optional dependencies.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	items := make(map[ReportType]int, len(report.Items))
	for k, v := range report.Items {
		items[ReportType(k)] = v
	}
	return HealthStatus{Status: string(report.Status), Checks: checks, Items: items}
}

type matchFunc func(t item.ReportType, image string, meta item.Metadata) (match.Result, error)

func (c *Client) run(ctx context.Context, op string, q Query, fn matchFunc) (res Result, err error) {
	start := time.Now()
	defer func() { c.obs.observeMatch(op, start, err, q.Type, &res) }()

	if err = ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	out, err := fn(item.ReportType(q.Type), encodeImage(q.Image),
		metadata(q.Name, q.Category, q.Description, q.Location, q.Date))
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	return resultFromDomain(&out), nil
}

func resultFromDomain(r *match.Result) Result {
	matches := make([]Match, len(r.Candidates))
	for i := range r.Candidates {
		c := &r.Candidates[i]
		matches[i] = Match{
			ItemID:             c.ID,
			Name:               c.Name,
			Category:           c.Category,
			Description:        c.Description,
			Location:           c.Location,
			Date:               c.Date,
			Score:              c.CompositeScore,
			ImageSimilarity:    c.VisualScore,
			MetadataSimilarity: c.MetadataScore,
			NextStep:           string(c.Action),
			Type:               ReportType(c.Type),
		}
	}
	return Result{
		Matches:   matches,
		Found:     r.Found,
		BestScore: r.BestScore,
		NextStep:  string(r.Action),
		Method:    string(r.Method),
	}
}

func metadata(name, category, description, location, date string) item.Metadata {
	return item.Metadata{
		Name:        name,
		Category:    category,
		Description: description,
		Location:    location,
		Date:        date,
	}
}

// encodeImage converts raw bytes to the base64 form the matching service accepts.
func encodeImage(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}
