package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"horse.fit/storify/internal/config"
)

func TestDaemonBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		host string
		want string
	}{
		{host: "127.0.0.1", want: "http://127.0.0.1:8090"},
		{host: "0.0.0.0", want: "http://127.0.0.1:8090"},
		{host: "", want: "http://127.0.0.1:8090"},
		{host: "::1", want: "http://[::1]:8090"},
	}
	for _, tc := range cases {
		if got := daemonBaseURL(&config.Config{HTTPHost: tc.host, HTTPPort: 8090}); got != tc.want {
			t.Fatalf("host %q: got %s want %s", tc.host, got, tc.want)
		}
	}
}

func TestClearViaDaemon(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		cleared []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodDelete || !strings.HasPrefix(r.URL.Path, "/api/v1/active/") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":"fail","message":"Not Found"}`))
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/api/v1/active/")
		if key == "kapot" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"error","message":"Failed to clear active stories"}`))
			return
		}
		mu.Lock()
		cleared = append(cleared, key)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"status":"success","data":{"cleared":true}}`))
	}))
	t.Cleanup(srv.Close)

	client := newDaemonClient(srv.URL+"/", time.Second)
	if code := clearViaDaemon(context.Background(), client, []string{"bloemen", "groente_en_fruit"}); code != 0 {
		t.Fatalf("unexpected exit code: %d", code)
	}
	mu.Lock()
	got := strings.Join(cleared, ",")
	mu.Unlock()
	if got != "bloemen,groente_en_fruit" {
		t.Fatalf("unexpected cleared keys: %s", got)
	}

	if code := clearViaDaemon(context.Background(), client, []string{"kapot"}); code != 1 {
		t.Fatalf("expected failure exit code, got %d", code)
	}
}

func TestDaemonClientHealthy(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":"fail"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"service":"storify"}}`))
	}))
	t.Cleanup(srv.Close)

	if err := newDaemonClient(srv.URL, time.Second).Healthy(context.Background()); err != nil {
		t.Fatalf("healthy: %v", err)
	}

	srv.Close()
	if err := newDaemonClient(srv.URL, time.Second).Healthy(context.Background()); err == nil {
		t.Fatalf("expected error once the daemon is gone")
	}
}
