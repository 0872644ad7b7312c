package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"horse.fit/storify/internal/db"
	"horse.fit/storify/internal/statestore"
	"horse.fit/storify/internal/storify"
	"horse.fit/storify/internal/tasks"
	"horse.fit/storify/internal/textsim"
)

var hour13 = time.Date(2017, 5, 8, 13, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	windows map[string]map[time.Time][]db.WindowDocument
	groups  []string
	err     error
}

func newFakeSource() *fakeSource {
	return &fakeSource{windows: make(map[string]map[time.Time][]db.WindowDocument)}
}

func (f *fakeSource) put(key string, from time.Time, rows ...db.WindowDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.windows[key] == nil {
		f.windows[key] = make(map[time.Time][]db.WindowDocument)
	}
	f.windows[key][from] = append(f.windows[key][from], rows...)
}

func (f *fakeSource) FetchWindow(_ context.Context, key string, from, _ time.Time) ([]db.WindowDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]db.WindowDocument(nil), f.windows[key][from]...), nil
}

func (f *fakeSource) ListActiveGroups(context.Context, time.Time) ([]string, error) {
	return f.groups, nil
}

type fakeSink struct {
	mu      sync.Mutex
	stories map[string]db.ClosedStoryRecord
	order   []string
	err     error
}

func newFakeSink() *fakeSink {
	return &fakeSink{stories: make(map[string]db.ClosedStoryRecord)}
}

func (f *fakeSink) InsertClosedStory(_ context.Context, row db.ClosedStoryRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	id := fmt.Sprintf("%s/%d", row.StoryKey, row.StoryID)
	if _, exists := f.stories[id]; exists {
		return false, nil
	}
	f.stories[id] = row
	f.order = append(f.order, id)
	return true, nil
}

func (f *fakeSink) records() []db.ClosedStoryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]db.ClosedStoryRecord, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.stories[id])
	}
	return out
}

type fakeTasks struct {
	mu    sync.Mutex
	tasks []tasks.MarkAsSpam
}

func (f *fakeTasks) MarkAsSpam(_ context.Context, task tasks.MarkAsSpam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(task.DocumentIDs) == 0 {
		return nil
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type fakeScorer map[string]float64

func (f fakeScorer) Score(_ context.Context, url string) (float64, error) {
	score, ok := f[url]
	if !ok {
		return 0, errors.New("scorer unavailable")
	}
	return score, nil
}

type harness struct {
	svc    *Service
	source *fakeSource
	state  *statestore.Store
	sink   *fakeSink
	tasks  *fakeTasks
	now    time.Time
}

func newHarness(t *testing.T, maxIdle int, images ImageScorer) *harness {
	t.Helper()

	state, err := statestore.Open(statestore.Options{InMemory: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = state.Close() })

	h := &harness{
		source: newFakeSource(),
		state:  state,
		sink:   newFakeSink(),
		tasks:  &fakeTasks{},
	}

	svc, err := NewService(h.deps(images), harnessOptions(maxIdle), zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	clock := func() time.Time { return h.now }
	svc.now = clock
	svc.ids = storify.NewIDSource(clock)
	h.svc = svc
	return h
}

func (h *harness) deps(images ImageScorer) Deps {
	return Deps{
		Source: h.source,
		State:  h.state,
		Sink:   h.sink,
		Tasks:  h.tasks,
		Images: images,
	}
}

func harnessOptions(maxIdle int) Options {
	return Options{
		Period:           time.Hour,
		Granularity:      time.Hour,
		StateTTL:         90 * time.Minute,
		ClusterThreshold: 0.5,
		Params: storify.Params{
			MaxIdle:           maxIdle,
			Threshold:         0.3,
			OriginalThreshold: 0.15,
			Metric:            textsim.JaccardMetric{},
		},
		SpamThreshold: 0.6,
		NSFWThreshold: 0.8,
		Concurrency:   2,
	}
}

// at moves the clock into the hour after from, so the run's window starts
// at from.
func (h *harness) at(from time.Time) {
	h.now = from.Add(time.Hour + 5*time.Minute)
}

type docSpec struct {
	id        string
	at        time.Time
	lemmas    []string
	media     []string
	retweetOf string
	spam      *float64
}

func row(t *testing.T, spec docSpec) db.WindowDocument {
	t.Helper()

	tokens := make([]map[string]any, 0, len(spec.lemmas))
	for _, lemma := range spec.lemmas {
		tokens = append(tokens, map[string]any{"lemma": lemma, "pos": "N(soort,ev,basis,zijd,stan)", "posprob": 0.9})
	}
	payload := map[string]any{
		"id":         spec.id,
		"created_at": spec.at.Format(time.RFC3339),
		"text":       "tekst van " + spec.id,
		"user":       map[string]any{"id": "u-" + spec.id, "screen_name": "kweker_" + spec.id},
		"tokens":     tokens,
		"groups":     []string{"bloemen"},
	}
	if len(spec.media) > 0 {
		media := make([]map[string]any, 0, len(spec.media))
		for _, url := range spec.media {
			media = append(media, map[string]any{"media_url_https": url})
		}
		payload["entities"] = map[string]any{"media": media}
	}
	if spec.retweetOf != "" {
		payload["retweeted_status"] = map[string]any{
			"id":   spec.retweetOf,
			"user": map[string]any{"id": "u-" + spec.retweetOf, "screen_name": "kweker_" + spec.retweetOf},
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload %s: %v", spec.id, err)
	}
	return db.WindowDocument{TweetID: spec.id, Payload: raw, Spam: spec.spam}
}

func score(v float64) *float64 {
	return &v
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
