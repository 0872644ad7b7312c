package storify

import (
	"time"

	"horse.fit/storify/internal/textsim"
	"horse.fit/storify/internal/tweet"
)

// Params configure story matching and lifecycle.
type Params struct {
	MaxIdle           int
	Threshold         float64
	OriginalThreshold float64
	Metric            textsim.Metric
}

// Tracker advances a key's active stories by one window.
type Tracker struct {
	params Params
	ids    *IDSource
	now    func() time.Time
}

// Advance is the outcome of one window. Active holds surviving stories
// followed by the ones created in this window; Closed holds stories that
// ran out of idle budget, already closed.
type Advance struct {
	Active   []*Story
	Closed   []*Story
	Created  int
	Extended int
	Aged     int
}

func NewTracker(params Params, ids *IDSource, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	if ids == nil {
		ids = NewIDSource(now)
	}
	if params.Metric == nil {
		params.Metric = textsim.JaccardMetric{}
	}
	return &Tracker{params: params, ids: ids, now: now}
}

// Similarity returns the current and original similarity of c to s.
func (t *Tracker) Similarity(s *Story, c *Cluster) (current, original float64) {
	current = t.params.Metric.Compare(s.Filtered, s.Tokens, c.Filtered, c.Tokens)
	original = t.params.Metric.Compare(s.OriginalFiltered, s.OriginalTokens, c.Filtered, c.Tokens)
	return current, original
}

// Eligible applies both thresholds and returns the current similarity.
func (t *Tracker) Eligible(s *Story, c *Cluster) (float64, bool) {
	current, original := t.Similarity(s, c)
	return current, current >= t.params.Threshold && original >= t.params.OriginalThreshold
}

// Advance matches clusters in order against stories. Each story takes at
// most one cluster; the eligible story with the highest current similarity
// wins and ties go to the earlier story. Unmatched clusters start new
// stories, which count as matched for this window.
func (t *Tracker) Advance(stories []*Story, clusters []*Cluster) Advance {
	now := t.now()
	out := Advance{}
	matched := make([]bool, len(stories))
	spawned := make([]*Story, 0)

	for _, c := range clusters {
		best := -1
		bestCurrent := 0.0
		for i, s := range stories {
			if matched[i] {
				continue
			}
			current, ok := t.Eligible(s, c)
			if !ok {
				continue
			}
			if best < 0 || current > bestCurrent {
				best, bestCurrent = i, current
			}
		}

		if best < 0 {
			spawned = append(spawned, NewStory(t.ids.Next(), now, c))
			out.Created++
			continue
		}
		stories[best].AddCluster(c)
		matched[best] = true
		out.Extended++
	}

	out.Active = make([]*Story, 0, len(stories)+len(spawned))
	for i, s := range stories {
		if matched[i] {
			out.Active = append(out.Active, s)
			continue
		}
		s.AddDelay()
		out.Aged++
		if s.IdleCount >= t.params.MaxIdle {
			s.Close(now)
			out.Closed = append(out.Closed, s)
			continue
		}
		out.Active = append(out.Active, s)
	}
	out.Active = append(out.Active, spawned...)
	return out
}

// RouteRetweets attaches retweets whose target already belongs to one of
// the stories and returns the documents left for clustering.
func RouteRetweets(stories []*Story, docs []tweet.Document) ([]tweet.Document, int) {
	owner := make(map[string]*Story)
	for _, s := range stories {
		for _, doc := range s.Members() {
			if _, taken := owner[doc.ID]; !taken {
				owner[doc.ID] = s
			}
		}
	}

	remaining := make([]tweet.Document, 0, len(docs))
	routed := 0
	for _, doc := range docs {
		target, ok := doc.RetweetTarget()
		if !ok {
			remaining = append(remaining, doc)
			continue
		}
		s, found := owner[target]
		if !found {
			remaining = append(remaining, doc)
			continue
		}
		if s.AddDocument(doc) {
			routed++
		}
	}
	return remaining, routed
}
