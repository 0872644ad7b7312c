// Package tasks publishes and consumes the fire-and-forget side effects of
// story closure.
package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"horse.fit/storify/internal/metrics"
)

const (
	TaskMarkAsSpam = "mark_as_spam"

	metadataTask = "task"
	topicPrefix  = "storify.tasks."
)

// MarkAsSpam asks the worker to raise the spam score of the listed documents.
type MarkAsSpam struct {
	Key         string   `json:"key"`
	StoryID     int64    `json:"story_id"`
	DocumentIDs []string `json:"document_ids"`
}

// Topic maps a queue name onto its pub/sub topic.
func Topic(queue string) string {
	return topicPrefix + strings.TrimSpace(queue)
}

// Dispatcher publishes tasks onto one named queue.
type Dispatcher struct {
	publisher message.Publisher
	topic     string
}

func NewDispatcher(publisher message.Publisher, queue string) (*Dispatcher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if strings.TrimSpace(queue) == "" {
		return nil, fmt.Errorf("queue is required")
	}
	return &Dispatcher{publisher: publisher, topic: Topic(queue)}, nil
}

// MarkAsSpam publishes one mark_as_spam task. Empty id lists publish nothing.
func (d *Dispatcher) MarkAsSpam(ctx context.Context, task MarkAsSpam) error {
	if len(task.DocumentIDs) == 0 {
		return nil
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode %s task: %w", TaskMarkAsSpam, err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(metadataTask, TaskMarkAsSpam)
	msg.SetContext(ctx)

	if err := d.publisher.Publish(d.topic, msg); err != nil {
		return fmt.Errorf("publish %s topic=%s: %w", TaskMarkAsSpam, d.topic, err)
	}
	metrics.TasksPublishedTotal.WithLabelValues(TaskMarkAsSpam).Inc()
	return nil
}

// DecodeMarkAsSpam reads a mark_as_spam payload from a queue message.
func DecodeMarkAsSpam(msg *message.Message) (MarkAsSpam, error) {
	if name := msg.Metadata.Get(metadataTask); name != "" && name != TaskMarkAsSpam {
		return MarkAsSpam{}, fmt.Errorf("unexpected task %q", name)
	}
	var task MarkAsSpam
	if err := json.Unmarshal(msg.Payload, &task); err != nil {
		return MarkAsSpam{}, fmt.Errorf("decode %s task: %w", TaskMarkAsSpam, err)
	}
	return task, nil
}
