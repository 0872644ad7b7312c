package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsBadSpec(t *testing.T) {
	t.Parallel()

	if _, err := New("every hour", func(context.Context) {}, zerolog.Nop()); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := New("5 * * * *", nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected missing job error")
	}
}

func TestNextIsUTCHourly(t *testing.T) {
	t.Parallel()

	s, err := New("5 * * * *", func(context.Context) {}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	from := time.Date(2017, 5, 8, 13, 30, 0, 0, time.UTC)
	want := time.Date(2017, 5, 8, 14, 5, 0, 0, time.UTC)
	if got := s.Next(from); !got.Equal(want) {
		t.Fatalf("unexpected next run: got %s want %s", got, want)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	s, err := New("5 * * * *", func(context.Context) {}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected serve error: got %v want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}
