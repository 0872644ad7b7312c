package tasks

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

type recordingMarker struct {
	mu    sync.Mutex
	calls [][]string
	level float64
	fail  int
	done  chan struct{}
}

func (m *recordingMarker) MarkSpam(_ context.Context, ids []string, level float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		return 0, errors.New("database unavailable")
	}
	m.calls = append(m.calls, append([]string(nil), ids...))
	m.level = level
	close(m.done)
	return int64(len(ids)), nil
}

type capturePublisher struct {
	topic string
	msgs  []*message.Message
}

func (p *capturePublisher) Publish(topic string, msgs ...*message.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestDispatcherPublishesTaskMetadata(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	dispatcher, err := NewDispatcher(pub, "web")
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	task := MarkAsSpam{Key: "bloemen", StoryID: 42, DocumentIDs: []string{"t1", "t2"}}
	if err := dispatcher.MarkAsSpam(context.Background(), task); err != nil {
		t.Fatalf("mark as spam: %v", err)
	}

	if pub.topic != "storify.tasks.web" {
		t.Fatalf("unexpected topic: got %q want storify.tasks.web", pub.topic)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("unexpected message count: got %d want 1", len(pub.msgs))
	}
	if got := pub.msgs[0].Metadata.Get("task"); got != TaskMarkAsSpam {
		t.Fatalf("unexpected task metadata: got %q", got)
	}

	decoded, err := DecodeMarkAsSpam(pub.msgs[0])
	if err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if !reflect.DeepEqual(decoded, task) {
		t.Fatalf("unexpected task: got %+v want %+v", decoded, task)
	}
}

func TestDispatcherSkipsEmptyTask(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	dispatcher, err := NewDispatcher(pub, "web")
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if err := dispatcher.MarkAsSpam(context.Background(), MarkAsSpam{Key: "bloemen", StoryID: 1}); err != nil {
		t.Fatalf("mark as spam: %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Fatalf("expected no published messages, got %d", len(pub.msgs))
	}
}

func TestDecodeMarkAsSpamRejectsOtherTask(t *testing.T) {
	t.Parallel()

	msg := message.NewMessage("id", []byte(`{"document_ids":["t1"]}`))
	msg.Metadata.Set("task", "translate")
	if _, err := DecodeMarkAsSpam(msg); err == nil {
		t.Fatalf("expected unexpected task error")
	}
}

func TestWorkerAppliesTaskOverGoChannel(t *testing.T) {
	t.Parallel()

	transport, err := NewTransport("", zerolog.Nop())
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	defer transport.Close()

	marker := &recordingMarker{fail: 1, done: make(chan struct{})}
	worker, err := NewWorker(transport, "web", marker, 0.8, zerolog.Nop())
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- worker.Run(ctx) }()

	select {
	case <-worker.Running():
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not start")
	}

	dispatcher, err := NewDispatcher(transport.Publisher, "web")
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if err := dispatcher.MarkAsSpam(ctx, MarkAsSpam{Key: "bloemen", StoryID: 7, DocumentIDs: []string{"t9"}}); err != nil {
		t.Fatalf("mark as spam: %v", err)
	}

	select {
	case <-marker.done:
	case <-time.After(10 * time.Second):
		t.Fatalf("task was not handled")
	}

	marker.mu.Lock()
	calls := marker.calls
	level := marker.level
	marker.mu.Unlock()

	if !reflect.DeepEqual(calls, [][]string{{"t9"}}) {
		t.Fatalf("unexpected mark calls: got %v", calls)
	}
	if level != 0.8 {
		t.Fatalf("unexpected mark level: got %v want 0.8", level)
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(15 * time.Second):
		t.Fatalf("worker did not stop")
	}
}
