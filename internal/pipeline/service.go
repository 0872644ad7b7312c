package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/storify/internal/db"
	"horse.fit/storify/internal/globaltime"
	"horse.fit/storify/internal/langdetect"
	"horse.fit/storify/internal/logging"
	"horse.fit/storify/internal/metrics"
	"horse.fit/storify/internal/snapshot"
	"horse.fit/storify/internal/statestore"
	"horse.fit/storify/internal/storify"
	"horse.fit/storify/internal/tasks"
	"horse.fit/storify/internal/tweet"
)

// DocumentSource reads annotated documents per key and time window.
type DocumentSource interface {
	FetchWindow(ctx context.Context, key string, from, to time.Time) ([]db.WindowDocument, error)
	ListActiveGroups(ctx context.Context, since time.Time) ([]string, error)
}

// StateStore holds each key's active story list with an expiration.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// StorySink receives closed stories. Inserts must be idempotent per
// (key, story id).
type StorySink interface {
	InsertClosedStory(ctx context.Context, row db.ClosedStoryRecord) (bool, error)
}

type TaskDispatcher interface {
	MarkAsSpam(ctx context.Context, task tasks.MarkAsSpam) error
}

// ImageScorer returns the probability that an image is not safe for work.
type ImageScorer interface {
	Score(ctx context.Context, imageURL string) (float64, error)
}

type Deps struct {
	Source DocumentSource
	State  StateStore
	Sink   StorySink
	Tasks  TaskDispatcher
	// Images is optional; without it closed stories keep every photo.
	Images ImageScorer
}

type Options struct {
	Period           time.Duration
	Granularity      time.Duration
	StateTTL         time.Duration
	ClusterThreshold float64
	Params           storify.Params
	SpamThreshold    float64
	NSFWThreshold    float64
	Concurrency      int
	Lexicon          *tweet.Lexicon
	Language         *langdetect.Guard
}

type Service struct {
	deps   Deps
	opts   Options
	ids    *storify.IDSource
	now    func() time.Time
	logger zerolog.Logger

	// keyLocks serialise runs of the same key within this process.
	keyLocks sync.Map
}

// KeyResult summarises one key run.
type KeyResult struct {
	Key        string
	From       time.Time
	To         time.Time
	Fetched    int
	Accepted   int
	Skipped    int
	Routed     int
	Clusters   int
	Created    int
	Extended   int
	Closed     int
	Active     int
	Flagged    int
	Duplicates int
	StateReset bool
}

// RunResult summarises a pass over several keys.
type RunResult struct {
	Keys   []KeyResult
	Failed map[string]error
}

func NewService(deps Deps, opts Options, logger zerolog.Logger) (*Service, error) {
	if deps.Source == nil || deps.State == nil || deps.Sink == nil || deps.Tasks == nil {
		return nil, fmt.Errorf("pipeline requires a document source, state store, story sink and task dispatcher")
	}
	if opts.Period <= 0 {
		return nil, fmt.Errorf("period must be > 0")
	}
	if opts.Granularity <= 0 {
		opts.Granularity = time.Hour
	}
	if opts.StateTTL <= 0 {
		return nil, fmt.Errorf("state ttl must be > 0")
	}
	if opts.Params.MaxIdle < 1 {
		return nil, fmt.Errorf("max idle must be >= 1")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Lexicon == nil {
		opts.Lexicon = tweet.DefaultLexicon()
	}

	return &Service{
		deps:   deps,
		opts:   opts,
		ids:    storify.NewIDSource(time.Now),
		now:    globaltime.UTC,
		logger: logging.Component(logger, "pipeline"),
	}, nil
}

// Window returns the fetch range of the run happening now.
func (s *Service) Window() (time.Time, time.Time) {
	end := globaltime.Floor(s.now(), s.opts.Granularity)
	return end.Add(-s.opts.Period), end
}

// ResolveKeys returns keys when given. Otherwise it returns the groups seen
// on documents of the current period merged with every key that still holds
// active stories, so quiet keys keep aging until their stories close.
func (s *Service) ResolveKeys(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) > 0 {
		return keys, nil
	}
	from, _ := s.Window()
	groups, err := s.deps.Source.ListActiveGroups(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("list active groups: %w", err)
	}
	stored, err := s.StateKeys(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(groups)+len(stored))
	out := make([]string, 0, len(groups)+len(stored))
	for _, list := range [][]string{groups, stored} {
		for _, key := range list {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// StateKeys lists the keys that have a persisted active story list.
func (s *Service) StateKeys(ctx context.Context) ([]string, error) {
	stateKeys, err := s.deps.State.Keys(ctx, snapshot.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list state keys: %w", err)
	}
	keys := make([]string, 0, len(stateKeys))
	for _, stateKey := range stateKeys {
		if key, ok := snapshot.KeyFromState(stateKey); ok && key != "" {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// RunAll runs every key with bounded parallelism. One key failing does not
// stop the others; failures are reported per key.
func (s *Service) RunAll(ctx context.Context, keys []string) (RunResult, error) {
	keys, err := s.ResolveKeys(ctx, keys)
	if err != nil {
		return RunResult{}, err
	}

	var (
		mu     sync.Mutex
		result = RunResult{Failed: make(map[string]error)}
		g      errgroup.Group
	)
	g.SetLimit(s.opts.Concurrency)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			res, err := s.RunKey(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[key] = err
				return nil
			}
			result.Keys = append(result.Keys, res)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Keys, func(i, j int) bool { return result.Keys[i].Key < result.Keys[j].Key })

	if len(result.Failed) > 0 {
		failed := make([]string, 0, len(result.Failed))
		for key := range result.Failed {
			failed = append(failed, key)
		}
		sort.Strings(failed)
		errs := make([]error, 0, len(failed))
		for _, key := range failed {
			errs = append(errs, fmt.Errorf("key=%s: %w", key, result.Failed[key]))
		}
		return result, errors.Join(errs...)
	}
	return result, nil
}

// RunKey advances one key by one window. A fetch failure returns before
// any state is touched; a sink failure returns before the new state is
// saved so the next run closes the same stories again.
func (s *Service) RunKey(ctx context.Context, key string) (KeyResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return KeyResult{}, fmt.Errorf("key is required")
	}

	unlock := s.lockKey(key)
	defer unlock()

	started := time.Now()
	res, err := s.runKey(ctx, key)
	metrics.RecordRun(key, time.Since(started), err)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("run failed")
		return res, err
	}

	s.logger.Info().
		Str("key", key).
		Time("from", res.From).
		Time("to", res.To).
		Int("fetched", res.Fetched).
		Int("accepted", res.Accepted).
		Int("routed", res.Routed).
		Int("clusters", res.Clusters).
		Int("created", res.Created).
		Int("extended", res.Extended).
		Int("closed", res.Closed).
		Int("active", res.Active).
		Int("duplicates", res.Duplicates).
		Msg("run completed")
	return res, nil
}

func (s *Service) runKey(ctx context.Context, key string) (KeyResult, error) {
	from, to := s.Window()
	res := KeyResult{Key: key, From: from, To: to}

	rows, err := s.deps.Source.FetchWindow(ctx, key, from, to)
	if err != nil {
		return res, fmt.Errorf("fetch window: %w", err)
	}
	res.Fetched = len(rows)

	docs := s.prepare(key, rows)
	res.Accepted = len(docs)
	res.Skipped = res.Fetched - res.Accepted

	stories, reset, err := s.loadStories(ctx, key)
	if err != nil {
		return res, err
	}
	res.StateReset = reset

	remaining, routed := storify.RouteRetweets(stories, docs)
	res.Routed = routed
	metrics.RecordDocuments(key, metrics.DocumentRetweet, routed)

	clusters := storify.NewBuilder(s.opts.ClusterThreshold, s.ids, s.now).Build(remaining)
	res.Clusters = len(clusters)
	metrics.ClustersTotal.WithLabelValues(key).Add(float64(len(clusters)))

	advance := storify.NewTracker(s.opts.Params, s.ids, s.now).Advance(stories, clusters)
	res.Created = advance.Created
	res.Extended = advance.Extended
	res.Closed = len(advance.Closed)
	res.Active = len(advance.Active)

	for _, story := range advance.Closed {
		flagged, inserted, err := s.emit(ctx, key, story)
		if err != nil {
			return res, err
		}
		res.Flagged += flagged
		if !inserted {
			res.Duplicates++
		}
	}

	if err := s.saveStories(ctx, key, advance.Active); err != nil {
		return res, err
	}

	metrics.RecordStories(key, metrics.StoryCreated, advance.Created)
	metrics.RecordStories(key, metrics.StoryExtended, advance.Extended)
	metrics.RecordStories(key, metrics.StoryClosed, len(advance.Closed))
	metrics.ActiveStories.WithLabelValues(key).Set(float64(len(advance.Active)))
	return res, nil
}

// prepare decodes and filters fetched rows in fetch order.
func (s *Service) prepare(key string, rows []db.WindowDocument) []tweet.Document {
	seen := make(map[string]struct{}, len(rows))
	docs := make([]tweet.Document, 0, len(rows))
	counts := map[string]int{}

	for _, row := range rows {
		if _, dup := seen[row.TweetID]; dup {
			counts[metrics.DocumentDuplicate]++
			continue
		}
		seen[row.TweetID] = struct{}{}

		if row.Spam != nil && *row.Spam > s.opts.SpamThreshold {
			counts[metrics.DocumentSpam]++
			continue
		}

		doc, err := tweet.Decode(row.Payload, s.opts.Lexicon)
		if err != nil {
			counts[metrics.DocumentInvalid]++
			s.logger.Warn().Err(err).Str("key", key).Str("tweet_id", row.TweetID).Msg("skipping undecodable document")
			continue
		}
		if doc.ID != row.TweetID {
			counts[metrics.DocumentInvalid]++
			s.logger.Warn().Str("key", key).Str("tweet_id", row.TweetID).Str("payload_id", doc.ID).Msg("skipping document with mismatched id")
			continue
		}
		if !s.opts.Language.Accept(doc.Text) {
			counts[metrics.DocumentLanguage]++
			continue
		}

		docs = append(docs, doc)
	}

	counts[metrics.DocumentAccepted] = len(docs)
	for outcome, n := range counts {
		metrics.RecordDocuments(key, outcome, n)
	}
	return docs
}

// loadStories returns the persisted active list. Missing, expired or
// unreadable state starts the key from scratch.
func (s *Service) loadStories(ctx context.Context, key string) ([]*storify.Story, bool, error) {
	raw, err := s.deps.State.Get(ctx, snapshot.StateKey(key))
	if errors.Is(err, statestore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load state: %w", err)
	}

	snap, err := snapshot.Decode(key, raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding unreadable story state")
		return nil, true, nil
	}
	return snap.Stories, false, nil
}

// saveStories persists the active list. A key left without stories has its
// entry removed so it drops out of key discovery.
func (s *Service) saveStories(ctx context.Context, key string, stories []*storify.Story) error {
	if len(stories) == 0 {
		if err := s.deps.State.Delete(ctx, snapshot.StateKey(key)); err != nil {
			return fmt.Errorf("drop empty state: %w", err)
		}
		return nil
	}
	raw, err := snapshot.Encode(key, stories, s.now())
	if err != nil {
		return err
	}
	if err := s.deps.State.Set(ctx, snapshot.StateKey(key), raw, s.opts.StateTTL); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// emit writes a closed story to the sink and dispatches its spam marks.
// It returns the number of flagged documents and whether the sink took the
// story as a new row.
func (s *Service) emit(ctx context.Context, key string, story *storify.Story) (int, bool, error) {
	screening, flagged := s.screen(ctx, key, story)

	document, err := story.Publish(key, screening)
	if err != nil {
		return 0, false, err
	}
	payload, err := json.Marshal(document)
	if err != nil {
		return 0, false, fmt.Errorf("encode story key=%s story_id=%d: %w", key, story.ID, err)
	}

	inserted, err := s.deps.Sink.InsertClosedStory(ctx, db.ClosedStoryRecord{
		StoryKey:      key,
		StoryID:       story.ID,
		StartStory:    story.CreatedAt,
		EndStory:      story.ClosedAt.Add(time.Hour),
		ClosedAt:      *story.ClosedAt,
		DocumentCount: document.DocumentCount,
		Document:      payload,
	})
	if err != nil {
		return 0, false, fmt.Errorf("store closed story: %w", err)
	}
	if !inserted {
		s.logger.Warn().Str("key", key).Int64("story_id", story.ID).Msg("closed story id already stored, row skipped")
	}

	if err := s.deps.Tasks.MarkAsSpam(ctx, tasks.MarkAsSpam{
		Key:         key,
		StoryID:     story.ID,
		DocumentIDs: flagged,
	}); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Int64("story_id", story.ID).Msg("dispatch spam marks")
	}
	return len(flagged), inserted, nil
}

// ClearKey drops the active story list of key.
func (s *Service) ClearKey(ctx context.Context, key string) error {
	unlock := s.lockKey(key)
	defer unlock()

	if err := s.deps.State.Delete(ctx, snapshot.StateKey(key)); err != nil {
		return fmt.Errorf("clear state key=%s: %w", key, err)
	}
	return nil
}

// ActiveStories reads the persisted active list of key without changing it.
func (s *Service) ActiveStories(ctx context.Context, key string) ([]*storify.Story, error) {
	stories, _, err := s.loadStories(ctx, key)
	return stories, err
}

func (s *Service) lockKey(key string) func() {
	value, _ := s.keyLocks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
