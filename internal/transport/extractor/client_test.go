package extractor

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/retreivo/itemmatch/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := NewClient(&Config{
		BaseURL:          server.URL + "/",
		Timeout:          time.Second,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})
	return c, server
}

func TestExtract_Success(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/octet-stream" {
			t.Errorf("unexpected content type: %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "jpeg-bytes" {
			t.Errorf("unexpected body: %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"descriptor_bytes":4,"count":2,"descriptors":"` +
			base64.StdEncoding.EncodeToString(raw) + `"}`))
	})

	set, err := c.Extract(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 2 || set.Size() != 4 {
		t.Fatalf("expected 2x4 descriptors, got %dx%d", set.Len(), set.Size())
	}
	if set.At(1).Bytes()[0] != 5 {
		t.Errorf("unexpected second descriptor: %v", set.At(1).Bytes())
	}
}

func TestExtract_NoFeatures(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	// Repeated no-feature answers must not trip the breaker.
	for i := 0; i < 5; i++ {
		if _, err := c.Extract(context.Background(), []byte("img")); !errors.Is(err, domain.ErrNoFeatures) {
			t.Fatalf("call %d: expected ErrNoFeatures, got %v", i, err)
		}
	}
	if c.State() != "closed" {
		t.Errorf("expected closed breaker, got %s", c.State())
	}
}

func TestExtract_EmptyDescriptorList(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"descriptor_bytes":32,"count":0,"descriptors":""}`))
	})

	if _, err := c.Extract(context.Background(), []byte("img")); !errors.Is(err, domain.ErrNoFeatures) {
		t.Fatalf("expected ErrNoFeatures, got %v", err)
	}
}

func TestExtract_EmptyReplyMeansNoFeatures(t *testing.T) {
	for _, body := range []string{
		`{"descriptor_bytes":0,"descriptors":""}`,
		`{"descriptor_bytes":0,"count":0}`,
		`{}`,
	} {
		t.Run(body, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			for i := 0; i < 3; i++ {
				if _, err := c.Extract(context.Background(), []byte("img")); !errors.Is(err, domain.ErrNoFeatures) {
					t.Fatalf("call %d: expected ErrNoFeatures, got %v", i, err)
				}
			}
			if c.State() != "closed" {
				t.Errorf("expected closed breaker, got %s", c.State())
			}
		})
	}
}

func TestExtract_CanceledCallerKeepsBreakerClosed(t *testing.T) {
	c, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 3; i++ {
		if _, err := c.Extract(ctx, []byte("img")); !errors.Is(err, context.Canceled) {
			t.Fatalf("call %d: expected context.Canceled, got %v", i, err)
		}
	}
	if c.State() != "closed" {
		t.Errorf("expected closed breaker after canceled calls, got %s", c.State())
	}
}

func TestExtract_MalformedPayload(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		// 5 bytes cannot be split into 4-byte descriptors.
		_, _ = w.Write([]byte(`{"descriptor_bytes":4,"descriptors":"` +
			base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4, 5}) + `"}`))
	})

	_, err := c.Extract(context.Background(), []byte("img"))
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if !errors.Is(err, domain.ErrMalformedDescriptors) {
		t.Errorf("expected cause ErrMalformedDescriptors, got %v", err)
	}
}

func TestExtract_CountMismatch(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"descriptor_bytes":4,"count":3,"descriptors":"` +
			base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}) + `"}`))
	})

	if _, err := c.Extract(context.Background(), []byte("img")); !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestExtract_EmptyImage(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	})

	if _, err := c.Extract(context.Background(), nil); !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no HTTP call, got %d", calls.Load())
	}
}

func TestExtract_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Extract(ctx, []byte("img"))
		var se *domain.ExtractorStatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
			t.Fatalf("call %d: expected ExtractorStatusError(500), got %v", i, err)
		}
	}

	_, err := c.Extract(ctx, []byte("img"))
	if !errors.Is(err, domain.ErrExtractorUnavailable) {
		t.Fatalf("expected ErrExtractorUnavailable once open, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected open breaker to skip the HTTP call, got %d calls", calls.Load())
	}
	if c.State() != "open" {
		t.Errorf("expected open breaker, got %s", c.State())
	}
}

func TestHealthCheck(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	healthy.Store(false)
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error for 503")
	}
}
