package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"

	"horse.fit/storify/internal/logging"
	"horse.fit/storify/internal/metrics"
)

// SpamMarker applies spam marks to stored documents.
type SpamMarker interface {
	MarkSpam(ctx context.Context, tweetIDs []string, level float64) (int64, error)
}

// Worker consumes one queue and applies its tasks.
type Worker struct {
	router *message.Router
	marker SpamMarker
	level  float64
	logger zerolog.Logger
}

func NewWorker(transport *Transport, queue string, marker SpamMarker, level float64, logger zerolog.Logger) (*Worker, error) {
	if transport == nil || transport.Subscriber == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if marker == nil {
		return nil, fmt.Errorf("spam marker is required")
	}

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 10 * time.Second,
	}, transport.Logger)
	if err != nil {
		return nil, fmt.Errorf("create task router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		Logger:          transport.Logger,
	}.Middleware)

	w := &Worker{
		router: router,
		marker: marker,
		level:  level,
		logger: logging.Component(logger, "task_worker"),
	}
	router.AddConsumerHandler("storify-"+TaskMarkAsSpam, Topic(queue), transport.Subscriber, w.handle)
	return w, nil
}

// Run blocks until ctx is cancelled or the router stops.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Running is closed once the handlers are subscribed.
func (w *Worker) Running() chan struct{} {
	return w.router.Running()
}

func (w *Worker) Close() error {
	return w.router.Close()
}

func (w *Worker) handle(msg *message.Message) error {
	task, err := DecodeMarkAsSpam(msg)
	if err != nil {
		// A payload that cannot be decoded will never succeed; drop it.
		w.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed task")
		metrics.TasksHandledTotal.WithLabelValues(TaskMarkAsSpam, "invalid").Inc()
		return nil
	}

	updated, err := w.marker.MarkSpam(msg.Context(), task.DocumentIDs, w.level)
	if err != nil {
		metrics.TasksHandledTotal.WithLabelValues(TaskMarkAsSpam, "failed").Inc()
		return fmt.Errorf("mark spam key=%s story_id=%d: %w", task.Key, task.StoryID, err)
	}

	metrics.TasksHandledTotal.WithLabelValues(TaskMarkAsSpam, "ok").Inc()
	w.logger.Info().
		Str("key", task.Key).
		Int64("story_id", task.StoryID).
		Int("documents", len(task.DocumentIDs)).
		Int64("updated", updated).
		Msg("marked documents as spam")
	return nil
}
