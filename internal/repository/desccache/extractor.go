package desccache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/retreivo/itemmatch/internal/db"
	"github.com/retreivo/itemmatch/internal/domain"
	"github.com/retreivo/itemmatch/internal/domain/descriptor"
)

const cacheKeyPrefix = "itemmatch:desc:"

// noFeaturesMarker records that the extractor found no features in an image.
var noFeaturesMarker = []byte{0}

// store is the consumer interface for the extraction cache (ISP).
type store interface {
	Fetch(ctx context.Context, key string, ttl time.Duration) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedExtractor caches descriptor sets in a key-value store, keyed by the image digest.
type CachedExtractor struct {
	inner      domain.Extractor
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"/"malformed"), passed explicitly.
func New(
	inner domain.Extractor,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedExtractor {
	return &CachedExtractor{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Extract returns cached descriptors or calls the inner extractor.
// "No features" outcomes are cached too; transport failures are not.
func (c *CachedExtractor) Extract(ctx context.Context, image []byte) (descriptor.Set, error) {
	key := c.cacheKey(image)

	if set, noFeatures, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		if noFeatures {
			return descriptor.Set{}, domain.ErrNoFeatures
		}
		return set, nil
	}

	c.incCache("miss")

	set, err := c.inner.Extract(ctx, image)
	switch {
	case errors.Is(err, domain.ErrNoFeatures):
		c.putToCache(ctx, key, noFeaturesMarker)
		return descriptor.Set{}, err
	case err != nil:
		return descriptor.Set{}, fmt.Errorf("extract descriptors: %w", err)
	case set.IsEmpty():
		c.putToCache(ctx, key, noFeaturesMarker)
		return descriptor.Set{}, domain.ErrNoFeatures
	}

	c.putToCache(ctx, key, set.Encode())
	return set, nil
}

func (c *CachedExtractor) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedExtractor) cacheKey(image []byte) string {
	h := sha256.Sum256(image)
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedExtractor) getFromCache(ctx context.Context, key string) (set descriptor.Set, noFeatures, ok bool) {
	data, err := c.store.Fetch(ctx, key, c.ttl)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached descriptors", zap.String("key", key), zap.Error(err))
		}
		return descriptor.Set{}, false, false
	}
	if len(data) == 0 {
		return descriptor.Set{}, false, false
	}
	if bytes.Equal(data, noFeaturesMarker) {
		return descriptor.Set{}, true, true
	}

	set, err = descriptor.Decode(data)
	if err != nil || set.IsEmpty() {
		c.incCache("malformed")
		c.logger.Warn("Failed to parse cached descriptors", zap.String("key", key), zap.Error(err))
		return descriptor.Set{}, false, false
	}

	return set, false, true
}

func (c *CachedExtractor) putToCache(ctx context.Context, key string, data []byte) {
	if err := c.store.Put(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache descriptors", zap.String("key", key), zap.Error(err))
	}
}
