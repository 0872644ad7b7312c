package storify

import (
	"time"

	"horse.fit/storify/internal/globaltime"
	"horse.fit/storify/internal/textsim"
	"horse.fit/storify/internal/tweet"
)

// Story is a long-lived chain of clusters for one key. Original* fields are
// frozen at creation and anchor drift control.
type Story struct {
	ID               int64                       `json:"id"`
	CreatedAt        time.Time                   `json:"created_at"`
	Origin           time.Time                   `json:"origin"`
	IdleCount        int                         `json:"idle_count"`
	Tokens           textsim.Counts              `json:"tokens"`
	OriginalTokens   textsim.Counts              `json:"original_tokens"`
	Filtered         textsim.Set                 `json:"filtered"`
	OriginalFiltered textsim.Set                 `json:"original_filtered"`
	Clusters         []ClusterDetail             `json:"clusters"`
	Documents        []tweet.Document            `json:"documents"`
	Retweets         map[string][]tweet.Document `json:"retweets,omitempty"`
	ClosedAt         *time.Time                  `json:"closed_at,omitempty"`

	views *Views
	index map[string]struct{}
}

// NewStory seeds a story from its first cluster.
func NewStory(id int64, now time.Time, c *Cluster) *Story {
	s := &Story{
		ID:               id,
		CreatedAt:        globaltime.Hour(now),
		Origin:           c.CreatedAt,
		Tokens:           c.Tokens.Clone(),
		OriginalTokens:   c.Tokens.Clone(),
		Filtered:         c.Filtered.Clone(),
		OriginalFiltered: c.Filtered.Clone(),
		Clusters:         []ClusterDetail{c.Details()},
		Retweets:         make(map[string][]tweet.Document),
	}
	s.absorbMembers(c)
	return s
}

// AddCluster merges c into the story and marks it matched for this window.
func (s *Story) AddCluster(c *Cluster) {
	if s.Tokens == nil {
		s.Tokens = make(textsim.Counts)
	}
	if s.Filtered == nil {
		s.Filtered = make(textsim.Set)
	}
	s.Tokens.Merge(c.Tokens)
	s.Filtered.Union(c.Filtered)
	s.Clusters = append(s.Clusters, c.Details())
	s.absorbMembers(c)
	s.IdleCount = 0
}

// AddDocument attaches one document outside clustering. Token statistics
// are left alone: routed retweets repeat vocabulary the story already has.
func (s *Story) AddDocument(doc tweet.Document) bool {
	s.ensureIndex()
	if _, seen := s.index[doc.ID]; seen {
		return false
	}
	s.index[doc.ID] = struct{}{}

	if target, ok := doc.RetweetTarget(); ok {
		if s.Retweets == nil {
			s.Retweets = make(map[string][]tweet.Document)
		}
		s.Retweets[target] = append(s.Retweets[target], doc)
	} else {
		s.Documents = append(s.Documents, doc)
	}
	return true
}

// AddDelay records one idle window.
func (s *Story) AddDelay() {
	s.IdleCount++
}

func (s *Story) Contains(id string) bool {
	s.ensureIndex()
	_, ok := s.index[id]
	return ok
}

func (s *Story) Closed() bool {
	return s.ClosedAt != nil
}

// Close stamps closed_at and computes the closure views. It reports false
// when the story was already closed.
func (s *Story) Close(at time.Time) bool {
	if s.ClosedAt != nil {
		return false
	}
	closedAt := globaltime.Hour(at)
	s.ClosedAt = &closedAt
	views := s.buildViews()
	s.views = &views
	return true
}

// Views returns the closure views; nil until Close.
func (s *Story) Views() *Views {
	return s.views
}

func (s *Story) Members() []tweet.Document {
	return members(s.Documents, s.Retweets)
}

func (s *Story) MemberIDs() []string {
	all := s.Members()
	ids := make([]string, 0, len(all))
	for _, doc := range all {
		ids = append(ids, doc.ID)
	}
	return ids
}

func (s *Story) Summary() (tweet.Document, bool) {
	return bestDocument(s.Tokens, s.Filtered, s.Documents, s.Retweets)
}

func (s *Story) absorbMembers(c *Cluster) {
	for _, doc := range c.Documents {
		s.AddDocument(doc)
	}
	for _, doc := range members(nil, c.Retweets) {
		s.AddDocument(doc)
	}
}

func (s *Story) ensureIndex() {
	if s.index != nil {
		return
	}
	s.index = make(map[string]struct{}, len(s.Documents)+len(s.Retweets))
	for _, doc := range s.Members() {
		s.index[doc.ID] = struct{}{}
	}
}
