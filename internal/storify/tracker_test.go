package storify

import (
	"testing"
	"time"

	"horse.fit/storify/internal/textsim"
	"horse.fit/storify/internal/tweet"
)

func newTestTracker(maxIdle int, threshold, original float64) *Tracker {
	clock := fixedClock(baseTime)
	return NewTracker(Params{
		MaxIdle:           maxIdle,
		Threshold:         threshold,
		OriginalThreshold: original,
		Metric:            textsim.JaccardMetric{},
	}, NewIDSource(clock), clock)
}

func TestTrackerSpawnsStoriesFromEmptyState(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(3, 0.3, 0.1)
	out := tr.Advance(nil, []*Cluster{
		clusterOf(1, doc("1", "tulp", "veiling")),
		clusterOf(2, doc("2", "tulp", "veiling")),
	})

	if out.Created != 2 || len(out.Active) != 2 || len(out.Closed) != 0 {
		t.Fatalf("unexpected advance: %+v", out)
	}
	for _, s := range out.Active {
		if s.IdleCount != 0 {
			t.Fatalf("expected new story idle=0, got %d", s.IdleCount)
		}
	}
	if out.Active[0].ID == out.Active[1].ID {
		t.Fatalf("expected distinct story ids")
	}
}

func TestTrackerIdleCloseAndReset(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(3, 0.3, 0.1)
	quiet := NewStory(10, baseTime, clusterOf(1, doc("1", "tulp", "veiling")))
	busy := NewStory(11, baseTime, clusterOf(2, doc("2", "appel", "peer")))
	quiet.IdleCount = 2
	busy.IdleCount = 2

	out := tr.Advance([]*Story{quiet, busy}, []*Cluster{clusterOf(3, doc("3", "appel", "peer", "oogst"))})

	if len(out.Closed) != 1 || out.Closed[0] != quiet {
		t.Fatalf("expected quiet story to close, got %+v", out.Closed)
	}
	if !quiet.Closed() || !quiet.ClosedAt.Equal(baseTime) {
		t.Fatalf("expected closed_at stamp, got %v", quiet.ClosedAt)
	}
	if quiet.Views() == nil {
		t.Fatalf("expected views computed at closure")
	}
	if len(out.Active) != 1 || out.Active[0] != busy {
		t.Fatalf("expected busy story to remain active")
	}
	if busy.IdleCount != 0 {
		t.Fatalf("expected matched story idle reset, got %d", busy.IdleCount)
	}
	if !busy.Contains("3") || len(busy.Clusters) != 2 {
		t.Fatalf("expected cluster merged into busy story")
	}
	if out.Extended != 1 || out.Aged != 1 || out.Created != 0 {
		t.Fatalf("unexpected counters: %+v", out)
	}
}

func TestTrackerDualThresholdRejectsDrift(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(3, 0.5, 0.5)
	s := NewStory(10, baseTime, clusterOf(1, doc("1", "a", "b")))
	// Drift the current profile far from the origin.
	s.AddCluster(clusterOf(2, doc("2", "c", "d", "e", "f", "g", "h")))

	c := clusterOf(3, doc("3", "a", "c", "d", "e", "f", "g", "h"))
	current, original := tr.Similarity(s, c)
	if current < 0.5 {
		t.Fatalf("expected high current similarity, got %v", current)
	}
	if original >= 0.5 {
		t.Fatalf("expected low original similarity, got %v", original)
	}

	out := tr.Advance([]*Story{s}, []*Cluster{c})
	if out.Created != 1 || out.Extended != 0 {
		t.Fatalf("expected drifted cluster to spawn a story, got %+v", out)
	}
	if s.Contains("3") {
		t.Fatalf("drifted cluster must not join the story")
	}
	if s.IdleCount != 1 {
		t.Fatalf("expected unmatched story to age, got %d", s.IdleCount)
	}
}

func TestTrackerBestMatchAndOneClusterPerStory(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(5, 0.2, 0.1)
	weak := NewStory(10, baseTime, clusterOf(1, doc("1", "tulp", "x", "y")))
	strong := NewStory(11, baseTime, clusterOf(2, doc("2", "tulp", "veiling")))

	first := clusterOf(3, doc("3", "tulp", "veiling"))
	second := clusterOf(4, doc("4", "tulp", "veiling"))
	out := tr.Advance([]*Story{weak, strong}, []*Cluster{first, second})

	if !strong.Contains("3") {
		t.Fatalf("expected best match to take the first cluster")
	}
	if !weak.Contains("4") {
		t.Fatalf("expected matched story to be skipped for the second cluster")
	}
	if out.Extended != 2 || out.Created != 0 {
		t.Fatalf("unexpected counters: %+v", out)
	}
}

func TestTrackerTieGoesToEarlierStory(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(5, 0.2, 0.1)
	a := NewStory(10, baseTime, clusterOf(1, doc("1", "tulp", "veiling")))
	b := NewStory(11, baseTime, clusterOf(2, doc("2", "tulp", "veiling")))

	tr.Advance([]*Story{a, b}, []*Cluster{clusterOf(3, doc("3", "tulp", "veiling"))})
	if !a.Contains("3") || b.Contains("3") {
		t.Fatalf("expected tie to resolve to the earlier story")
	}
}

func TestTrackerAgesOnEmptyWindow(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(2, 0.3, 0.1)
	s := NewStory(10, baseTime, clusterOf(1, doc("1", "tulp")))

	out := tr.Advance([]*Story{s}, nil)
	if s.IdleCount != 1 || len(out.Active) != 1 {
		t.Fatalf("expected story to age on an empty window")
	}
	out = tr.Advance(out.Active, nil)
	if len(out.Closed) != 1 || len(out.Active) != 0 {
		t.Fatalf("expected story to close at max idle")
	}
	if s.Close(baseTime.Add(time.Hour)) {
		t.Fatalf("expected second close to be refused")
	}
}

func TestOriginalTokensStayFrozen(t *testing.T) {
	t.Parallel()

	s := NewStory(10, baseTime, clusterOf(1, doc("1", "tulp")))
	s.AddCluster(clusterOf(2, doc("2", "tulp", "veiling")))

	if s.OriginalTokens["tulp"] != 1 || s.OriginalFiltered.Has("veiling") {
		t.Fatalf("original profile changed: %v %v", s.OriginalTokens, s.OriginalFiltered.Sorted())
	}
	if s.Tokens["tulp"] != 2 || !s.Filtered.Has("veiling") {
		t.Fatalf("current profile not merged: %v %v", s.Tokens, s.Filtered.Sorted())
	}
}

func TestRouteRetweets(t *testing.T) {
	t.Parallel()

	original := doc("1", "tulp")
	s := NewStory(10, baseTime, clusterOf(1, original))

	routedRT := retweetOf("2", original)
	strayRT := retweetOf("3", doc("99", "appel"))
	plain := doc("4", "appel")

	remaining, routed := RouteRetweets([]*Story{s}, []tweet.Document{routedRT, strayRT, plain})
	if routed != 1 {
		t.Fatalf("unexpected routed count: got %d want 1", routed)
	}
	if got := memberIDs(remaining); len(got) != 2 {
		t.Fatalf("unexpected remaining: %v", got)
	}
	if !s.Contains("2") || len(s.Retweets["1"]) != 1 {
		t.Fatalf("expected retweet attached to story")
	}
}

func TestBloemenLifecycle(t *testing.T) {
	t.Parallel()

	clock := fixedClock(baseTime)
	ids := NewIDSource(clock)
	builder := NewBuilder(0.5, ids, clock)
	tr := NewTracker(Params{MaxIdle: 3, Threshold: 0.3, OriginalThreshold: 0.1, Metric: textsim.JaccardMetric{}}, ids, clock)

	window1 := []tweet.Document{
		doc("1", "tulp", "veiling", "prijs"),
		doc("2", "tulp", "veiling", "prijs", "record"),
		doc("3", "roos", "kas"),
	}
	clusters := builder.Build(window1)
	if len(clusters) != 2 || clusters[0].Size() != 2 || clusters[1].Size() != 1 {
		t.Fatalf("unexpected window 1 clusters: %d", len(clusters))
	}

	out := tr.Advance(nil, clusters)
	if out.Created != 2 {
		t.Fatalf("expected two stories, got %+v", out)
	}
	active := out.Active

	for window := 2; window <= 3; window++ {
		out = tr.Advance(active, builder.Build(nil))
		active = out.Active
		for _, s := range active {
			if s.IdleCount != window-1 {
				t.Fatalf("window %d: unexpected idle count %d", window, s.IdleCount)
			}
		}
		if len(out.Closed) != 0 {
			t.Fatalf("window %d: unexpected closures", window)
		}
	}

	out = tr.Advance(active, nil)
	if len(out.Closed) != 2 || len(out.Active) != 0 {
		t.Fatalf("expected both stories closed in window 4, got closed=%d active=%d", len(out.Closed), len(out.Active))
	}
	for _, s := range out.Closed {
		if s.IdleCount != 3 {
			t.Fatalf("unexpected idle at closure: %d", s.IdleCount)
		}
	}
}

func TestTrackerUsesConfiguredMetric(t *testing.T) {
	t.Parallel()

	// Cosine over shared lemmas scores 1 here while Jaccard scores 0.2.
	tests := []struct {
		name     string
		metric   textsim.Metric
		extended int
		created  int
	}{
		{name: "cosine", metric: textsim.CosineMetric{}, extended: 1, created: 0},
		{name: "jaccard", metric: textsim.JaccardMetric{}, extended: 0, created: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			clock := fixedClock(baseTime)
			tr := NewTracker(Params{
				MaxIdle:           3,
				Threshold:         0.3,
				OriginalThreshold: 0.1,
				Metric:            tc.metric,
			}, NewIDSource(clock), clock)

			story := NewStory(10, baseTime, clusterOf(1, doc("1", "tulp", "veiling")))
			out := tr.Advance([]*Story{story}, []*Cluster{
				clusterOf(2, doc("2", "tulp", "oogst", "appel", "peer")),
			})

			if out.Extended != tc.extended || out.Created != tc.created {
				t.Fatalf("unexpected advance: extended=%d created=%d want %d/%d", out.Extended, out.Created, tc.extended, tc.created)
			}
			wantIdle := 0
			if tc.extended == 0 {
				wantIdle = 1
			}
			if story.IdleCount != wantIdle {
				t.Fatalf("unexpected idle count: got %d want %d", story.IdleCount, wantIdle)
			}
		})
	}

	t.Run("cosine without shared lemmas", func(t *testing.T) {
		t.Parallel()

		clock := fixedClock(baseTime)
		tr := NewTracker(Params{MaxIdle: 3, Threshold: 0.3, OriginalThreshold: 0.1, Metric: textsim.CosineMetric{}}, NewIDSource(clock), clock)
		story := NewStory(10, baseTime, clusterOf(1, doc("1", "tulp", "veiling")))
		out := tr.Advance([]*Story{story}, []*Cluster{clusterOf(2, doc("2", "appel", "peer"))})
		if out.Created != 1 || out.Extended != 0 {
			t.Fatalf("unexpected advance: %+v", out)
		}
	})
}

func TestEligibleRequiresBothThresholds(t *testing.T) {
	t.Parallel()

	story := NewStory(10, baseTime, clusterOf(1, doc("1", "tulp", "veiling")))
	story.AddCluster(clusterOf(2, doc("2", "oogst", "appel", "peer")))

	tests := []struct {
		name      string
		original  float64
		candidate *Cluster
		want      bool
	}{
		// current 3/5, original 0
		{name: "current only", original: 0.1, candidate: clusterOf(3, doc("3", "oogst", "appel", "peer")), want: false},
		{name: "current with zero original threshold", original: 0, candidate: clusterOf(4, doc("4", "oogst", "appel", "peer")), want: true},
		// current 2/5, original 1
		{name: "original only", original: 0.1, candidate: clusterOf(5, doc("5", "tulp", "veiling")), want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tr := newTestTracker(3, 0.5, tc.original)
			if _, ok := tr.Eligible(story, tc.candidate); ok != tc.want {
				t.Fatalf("eligible=%v want %v", ok, tc.want)
			}
		})
	}
}
