package itemmatch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	photo = []byte("photo-of-a-black-iphone")
	blank = []byte("blank-wall")
)

// newExtractorServer serves four fixed 32-byte descriptors for photo and 422 for anything else.
func newExtractorServer(t *testing.T) *httptest.Server {
	t.Helper()
	descs := make([]byte, 0, 4*32)
	for i := range 4 {
		descs = append(descs, bytes.Repeat([]byte{byte(i * 37)}, 32)...)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /extract", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		if !bytes.Equal(buf.Bytes(), photo) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"descriptor_bytes": 32,
			"count":            4,
			"descriptors":      descs,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestClient_StoreAndMatchImage(t *testing.T) {
	ctx := context.Background()
	srv := newExtractorServer(t)
	reg := prometheus.NewRegistry()
	c := newTestClient(t, WithExtractor(srv.URL), WithPrometheus(reg))

	stored, err := c.Store(ctx, Item{
		ID:       "found-1",
		Type:     Found,
		Name:     "iPhone 12",
		Category: "Electronics",
		Image:    photo,
	})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if stored.ID != "found-1" || !stored.HasDescriptors {
		t.Fatalf("unexpected store result: %+v", stored)
	}

	res, err := c.MatchImage(ctx, Query{Type: Lost, Name: "iPhone 12", Category: "Electronics", Image: photo})
	if err != nil {
		t.Fatalf("MatchImage: %v", err)
	}
	if !res.Found || len(res.Matches) != 1 {
		t.Fatalf("expected one match, got %+v", res)
	}
	m := res.Matches[0]
	if m.ItemID != "found-1" || m.Type != Found {
		t.Errorf("unexpected match: %+v", m)
	}
	if m.Score != 100 || m.ImageSimilarity != 100 || m.MetadataSimilarity != 100 {
		t.Errorf("expected perfect scores, got %+v", m)
	}
	if res.NextStep != "approve_online" || res.Method != "image_matching" {
		t.Errorf("got next step %q, method %q", res.NextStep, res.Method)
	}

	if got := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("store", "ok")); got != 1 {
		t.Errorf("store ok counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("match_image", "ok")); got != 1 {
		t.Errorf("match_image ok counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.obs.metrics.outcomes.WithLabelValues("image_matching", "approve_online")); got != 1 {
		t.Errorf("image_matching outcome counter = %v, want 1", got)
	}
}

func TestClient_MatchOutcomeMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c := newTestClient(t, WithPrometheus(reg))

	if _, err := c.MatchText(ctx, Query{Type: Lost, Name: "wallet"}); err != nil {
		t.Fatalf("MatchText: %v", err)
	}
	if _, err := c.Store(ctx, Item{ID: "u-1", Type: Found, Name: "black umbrella"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	for range 2 {
		if _, err := c.MatchText(ctx, Query{Type: Lost, Name: "black umbrella"}); err != nil {
			t.Fatalf("MatchText: %v", err)
		}
	}
	if _, err := c.MatchText(ctx, Query{Type: "stolen", Name: "bike"}); err == nil {
		t.Fatal("expected error for invalid report type")
	}

	outcomes := c.obs.metrics.outcomes
	if got := testutil.ToFloat64(outcomes.WithLabelValues("text_matching", "reject")); got != 1 {
		t.Errorf("text_matching/reject = %v, want 1", got)
	}
	if got := testutil.ToFloat64(outcomes.WithLabelValues("text_matching", "approve_online")); got != 2 {
		t.Errorf("text_matching/approve_online = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(outcomes); got != 2 {
		t.Errorf("outcome series = %d, want 2", got)
	}
	// only answers with a candidate feed the score histogram
	if got := testutil.CollectAndCount(c.obs.metrics.bestScore); got != 1 {
		t.Errorf("best score series = %d, want 1", got)
	}
}

func TestClient_ImageWithoutFeaturesStoredWithoutDescriptors(t *testing.T) {
	srv := newExtractorServer(t)
	c := newTestClient(t, WithExtractor(srv.URL))

	stored, err := c.Store(context.Background(), Item{Type: Lost, Name: "wallet", Image: blank})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if stored.ID == "" {
		t.Error("expected a generated id")
	}
	if stored.HasDescriptors {
		t.Error("expected no descriptors")
	}
}

func TestClient_MatchTextWithoutExtractor(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	for _, it := range []Item{
		{ID: "f1", Type: Found, Name: "black leather wallet", Category: "Accessories"},
		{ID: "f2", Type: Found, Name: "umbrella", Category: "Other"},
	} {
		if _, err := c.Store(ctx, it); err != nil {
			t.Fatalf("Store(%s): %v", it.ID, err)
		}
	}

	res, err := c.MatchText(ctx, Query{Type: Lost, Name: "black leather wallet", Category: "Accessories", Image: photo})
	if err != nil {
		t.Fatalf("MatchText: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].ItemID != "f1" {
		t.Fatalf("expected only f1, got %+v", res.Matches)
	}
	if res.Method != "text_matching" {
		t.Errorf("method = %q, want text_matching", res.Method)
	}
	if res.Matches[0].ImageSimilarity != 0 {
		t.Errorf("image similarity = %d, want 0", res.Matches[0].ImageSimilarity)
	}
}

func TestClient_EmptyCollection(t *testing.T) {
	ctx := context.Background()
	q := Query{Type: Lost, Name: "wallet"}

	t.Run("reject without fallback", func(t *testing.T) {
		res, err := newTestClient(t).Match(ctx, q)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if res.Found || len(res.Matches) != 0 || res.NextStep != "reject" {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("placeholders with fallback", func(t *testing.T) {
		res, err := newTestClient(t, WithFallback(true)).Match(ctx, q)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if res.Method != "fallback" || len(res.Matches) != 3 {
			t.Fatalf("expected three fallback matches, got %+v", res)
		}
		if res.BestScore != 92 || res.NextStep != "approve_online" {
			t.Errorf("best %d, next step %q", res.BestScore, res.NextStep)
		}
		for _, m := range res.Matches {
			if m.Type != Found {
				t.Errorf("placeholder %s has type %s, want found", m.ItemID, m.Type)
			}
		}
	})
}

func TestClient_TopK(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, WithTopK(2))
	for _, id := range []string{"a", "b", "c"} {
		if _, err := c.Store(ctx, Item{ID: id, Type: Lost, Name: "blue backpack"}); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	res, err := c.MatchText(ctx, Query{Type: Found, Name: "blue backpack"})
	if err != nil {
		t.Fatalf("MatchText: %v", err)
	}
	if len(res.Matches) != 2 || res.Matches[0].ItemID != "a" || res.Matches[1].ItemID != "b" {
		t.Errorf("expected [a b], got %+v", res.Matches)
	}
}

func TestClient_InvalidReportType(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c := newTestClient(t, WithPrometheus(reg))

	if _, err := c.Store(ctx, Item{Type: "stolen", Name: "bike"}); !errors.Is(err, ErrInvalidReportType) {
		t.Errorf("Store: expected ErrInvalidReportType, got %v", err)
	}
	if _, err := c.Match(ctx, Query{Type: "stolen", Name: "bike"}); !errors.Is(err, ErrInvalidReportType) {
		t.Errorf("Match: expected ErrInvalidReportType, got %v", err)
	}
	if _, err := c.List(ctx, "stolen"); !errors.Is(err, ErrInvalidReportType) {
		t.Errorf("List: expected ErrInvalidReportType, got %v", err)
	}

	if got := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("store", "error")); got != 1 {
		t.Errorf("store error counter = %v, want 1", got)
	}
}

func TestClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t).MatchText(ctx, Query{Type: Lost, Name: "wallet"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClient_List(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	_, _ = c.Store(ctx, Item{ID: "l1", Type: Lost, Name: "keys", Location: "Library"})
	_, _ = c.Store(ctx, Item{ID: "f1", Type: Found, Name: "gloves"})
	_, _ = c.Store(ctx, Item{ID: "l2", Type: Lost, Name: "scarf"})

	items, err := c.List(ctx, Lost)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[0].ID != "l1" || items[1].ID != "l2" {
		t.Fatalf("expected [l1 l2], got %+v", items)
	}
	if items[0].Location != "Library" || items[0].Type != Lost || items[0].CreatedAt.IsZero() {
		t.Errorf("unexpected item: %+v", items[0])
	}
}

func TestClient_Health(t *testing.T) {
	srv := newExtractorServer(t)
	c := newTestClient(t, WithExtractor(srv.URL))
	_, _ = c.Store(context.Background(), Item{Type: Found, Name: "bag"})

	h := c.Health(context.Background())
	if h.Status != "ok" {
		t.Errorf("status = %q, want ok", h.Status)
	}
	if h.Checks["extractor"] != "ok" || h.Checks["cache"] != "disabled" {
		t.Errorf("unexpected checks: %v", h.Checks)
	}
	if h.Items[Found] != 1 || h.Items[Lost] != 0 {
		t.Errorf("unexpected counts: %v", h.Items)
	}
}

func TestNew_MetricsReusedAcrossClients(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newTestClient(t, WithPrometheus(reg))
	b := newTestClient(t, WithPrometheus(reg))

	_, _ = a.List(context.Background(), Lost)
	_, _ = b.List(context.Background(), Lost)

	if got := testutil.ToFloat64(a.obs.metrics.operations.WithLabelValues("list", "ok")); got != 2 {
		t.Errorf("shared list counter = %v, want 2", got)
	}
}
