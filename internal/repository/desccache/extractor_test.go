package desccache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/retreivo/itemmatch/internal/db"
	"github.com/retreivo/itemmatch/internal/domain"
	"github.com/retreivo/itemmatch/internal/domain/descriptor"
)

// --- Mocks ---

type mockExtractor struct {
	set   descriptor.Set
	err   error
	calls int
}

func (m *mockExtractor) Extract(_ context.Context, _ []byte) (descriptor.Set, error) {
	m.calls++
	return m.set, m.err
}

// memKV is an in-memory store recording writes.
type memKV struct {
	data    map[string][]byte
	getErr  error
	lastTTL time.Duration
	sets    int
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Fetch(_ context.Context, key string, _ time.Duration) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.sets++
	m.lastTTL = ttl
	m.data[key] = value
	return nil
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
}

func testSet(t *testing.T) descriptor.Set {
	t.Helper()
	s, err := descriptor.NewSet([][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return s
}

// --- Tests ---

func TestExtract_MissThenHit(t *testing.T) {
	inner := &mockExtractor{set: testSet(t)}
	kv := newMemKV()
	counter := newCounter()
	ce := New(inner, kv, time.Hour, counter, zap.NewNop())
	ctx := context.Background()

	first, err := ce.Extract(ctx, []byte("image"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Len() != 2 {
		t.Fatalf("expected 2 descriptors, got %d", first.Len())
	}
	if kv.lastTTL != time.Hour {
		t.Errorf("expected ttl 1h, got %v", kv.lastTTL)
	}

	second, err := ce.Extract(ctx, []byte("image"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Len() != 2 || second.At(1).Bytes()[0] != 5 {
		t.Fatalf("unexpected cached set")
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("hit")); got != 1 {
		t.Errorf("expected 1 hit, got %f", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("miss")); got != 1 {
		t.Errorf("expected 1 miss, got %f", got)
	}
}

func TestExtract_DifferentImagesDifferentKeys(t *testing.T) {
	inner := &mockExtractor{set: testSet(t)}
	ce := New(inner, newMemKV(), 0, nil, zap.NewNop())
	ctx := context.Background()

	_, _ = ce.Extract(ctx, []byte("a"))
	_, _ = ce.Extract(ctx, []byte("b"))
	if inner.calls != 2 {
		t.Errorf("expected 2 inner calls, got %d", inner.calls)
	}
}

func TestExtract_NoFeaturesIsCached(t *testing.T) {
	inner := &mockExtractor{err: domain.ErrNoFeatures}
	ce := New(inner, newMemKV(), 0, nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := ce.Extract(ctx, []byte("blank"))
		if !errors.Is(err, domain.ErrNoFeatures) {
			t.Fatalf("call %d: expected ErrNoFeatures, got %v", i, err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
}

func TestExtract_EmptySetTreatedAsNoFeatures(t *testing.T) {
	inner := &mockExtractor{}
	ce := New(inner, newMemKV(), 0, nil, zap.NewNop())

	_, err := ce.Extract(context.Background(), []byte("img"))
	if !errors.Is(err, domain.ErrNoFeatures) {
		t.Fatalf("expected ErrNoFeatures, got %v", err)
	}
}

func TestExtract_InnerFailureNotCached(t *testing.T) {
	inner := &mockExtractor{err: domain.ErrExtractorUnavailable}
	kv := newMemKV()
	ce := New(inner, kv, 0, nil, zap.NewNop())

	_, err := ce.Extract(context.Background(), []byte("img"))
	if !errors.Is(err, domain.ErrExtractorUnavailable) {
		t.Fatalf("expected ErrExtractorUnavailable, got %v", err)
	}
	if kv.sets != 0 {
		t.Errorf("expected no cache writes, got %d", kv.sets)
	}
}

func TestExtract_MalformedCacheEntryIsMiss(t *testing.T) {
	tests := map[string][]byte{
		"garbage": {0xde, 0xad, 0xbe, 0xef, 0x00, 0x01, 0x02},
		// size and count header without the leading codec version
		"previous layout": append([]byte{0x00, 0x20, 0x00, 0x00, 0x00, 0x01}, make([]byte, 32)...),
	}
	for name, entry := range tests {
		t.Run(name, func(t *testing.T) {
			inner := &mockExtractor{set: testSet(t)}
			kv := newMemKV()
			counter := newCounter()
			ce := New(inner, kv, 0, counter, zap.NewNop())

			kv.data[ce.cacheKey([]byte("img"))] = entry

			set, err := ce.Extract(context.Background(), []byte("img"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if set.Len() != 2 {
				t.Errorf("expected fresh extraction, got %d descriptors", set.Len())
			}
			if inner.calls != 1 {
				t.Errorf("expected inner call after malformed entry, got %d", inner.calls)
			}
			if got := testutil.ToFloat64(counter.WithLabelValues("malformed")); got != 1 {
				t.Errorf("expected 1 malformed, got %f", got)
			}
		})
	}
}

func TestExtract_StoreErrorFallsThrough(t *testing.T) {
	inner := &mockExtractor{set: testSet(t)}
	kv := newMemKV()
	kv.getErr = errors.New("connection refused")
	ce := New(inner, kv, 0, nil, zap.NewNop())

	if _, err := ce.Extract(context.Background(), []byte("img")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected inner call, got %d", inner.calls)
	}
}
