package nsfw

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type memoryCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func newScorer(t *testing.T, handler http.HandlerFunc, cache Cache) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Options{URL: srv.URL, Rate: 1000, CacheTTL: time.Hour}, cache, zerolog.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestScoreAndCache(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	cache := newMemoryCache()
	client := newScorer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"url":"https://pbs.example/a.jpg"`) {
			t.Errorf("unexpected body: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nsfw":0.93}`))
	}, cache)

	for i := 0; i < 2; i++ {
		score, err := client.Score(context.Background(), "https://pbs.example/a.jpg")
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if score != 0.93 {
			t.Fatalf("unexpected score: got %v want 0.93", score)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("unexpected upstream calls: got %d want 1", got)
	}
	if _, ok := cache.values["nsfw:https://pbs.example/a.jpg"]; !ok {
		t.Fatalf("expected cached score")
	}
}

func TestScoreInvalidImage(t *testing.T) {
	t.Parallel()

	client := newScorer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
	}, nil)

	_, err := client.Score(context.Background(), "https://pbs.example/broken.gif")
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("unexpected error: got %v want ErrInvalidImage", err)
	}
}

func TestScoreUpstreamFailure(t *testing.T) {
	t.Parallel()

	client := newScorer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}, nil)

	_, err := client.Score(context.Background(), "https://pbs.example/a.jpg")
	if err == nil || errors.Is(err, ErrInvalidImage) {
		t.Fatalf("unexpected error: got %v want upstream failure", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newScorer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)

	for i := 0; i < 8; i++ {
		_, _ = client.Score(context.Background(), "https://pbs.example/a.jpg")
	}
	if got := calls.Load(); got != 5 {
		t.Fatalf("unexpected upstream calls: got %d want 5", got)
	}
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Rate: 1}, nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected missing url error")
	}
}
