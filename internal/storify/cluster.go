package storify

import (
	"math"
	"sort"
	"time"

	"horse.fit/storify/internal/globaltime"
	"horse.fit/storify/internal/textsim"
	"horse.fit/storify/internal/tweet"
)

// Cluster groups the documents of one window that share vocabulary.
type Cluster struct {
	ID        int64
	CreatedAt time.Time
	Tokens    textsim.Counts
	Filtered  textsim.Set
	Documents []tweet.Document
	Retweets  map[string][]tweet.Document

	index map[string]struct{}
}

// ClusterDetail is what a story keeps of each cluster it absorbed.
type ClusterDetail struct {
	ID           int64  `json:"id"`
	StartingTime int64  `json:"starting_time"`
	Display      string `json:"display"`
	SummaryTweet string `json:"summarytweet"`
	Size         int    `json:"size"`
}

func NewCluster(id int64, createdAt time.Time) *Cluster {
	return &Cluster{
		ID:        id,
		CreatedAt: globaltime.Hour(createdAt),
		Tokens:    make(textsim.Counts),
		Filtered:  make(textsim.Set),
		Retweets:  make(map[string][]tweet.Document),
		index:     make(map[string]struct{}),
	}
}

// AddDocument adds doc and its tokens. A document id already present is
// ignored and reported as false.
func (c *Cluster) AddDocument(doc tweet.Document) bool {
	if _, seen := c.index[doc.ID]; seen {
		return false
	}
	c.index[doc.ID] = struct{}{}

	c.Tokens.Merge(doc.Counts())
	c.Filtered.Union(doc.Filtered)
	if target, ok := doc.RetweetTarget(); ok {
		c.Retweets[target] = append(c.Retweets[target], doc)
	} else {
		c.Documents = append(c.Documents, doc)
	}
	return true
}

func (c *Cluster) Size() int {
	return len(c.index)
}

func (c *Cluster) Members() []tweet.Document {
	return members(c.Documents, c.Retweets)
}

// Summary returns the member that best represents the cluster.
func (c *Cluster) Summary() (tweet.Document, bool) {
	return bestDocument(c.Tokens, c.Filtered, c.Documents, c.Retweets)
}

func (c *Cluster) Details() ClusterDetail {
	detail := ClusterDetail{
		ID:           c.ID,
		StartingTime: c.CreatedAt.UnixMilli(),
		Display:      "circle",
		Size:         c.Size(),
	}
	if best, ok := c.Summary(); ok {
		detail.SummaryTweet = best.Text
	}
	return detail
}

func members(docs []tweet.Document, retweets map[string][]tweet.Document) []tweet.Document {
	out := make([]tweet.Document, 0, len(docs)+len(retweets))
	out = append(out, docs...)
	targets := make([]string, 0, len(retweets))
	for target := range retweets {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	for _, target := range targets {
		out = append(out, retweets[target]...)
	}
	return out
}

// bestDocument ranks non-retweet documents by cosine similarity to the
// aggregate over the filtered lemmas. Equal similarities fall back to the
// score amplified by sqrt(retweet count), then to insertion order.
func bestDocument(tokens textsim.Counts, filtered textsim.Set, docs []tweet.Document, retweets map[string][]tweet.Document) (tweet.Document, bool) {
	if len(docs) == 0 {
		return tweet.Document{}, false
	}

	aggregate := tokens.Restrict(filtered)
	bestIdx := -1
	bestSim, bestAmplified := 0.0, 0.0
	for i, doc := range docs {
		sim := textsim.Cosine(aggregate, doc.Counts().Restrict(filtered))
		amplified := sim
		if n := len(retweets[doc.ID]); n > 0 {
			amplified = sim * math.Sqrt(float64(n))
		}

		switch {
		case bestIdx < 0:
		case sim > bestSim+similarityEpsilon:
		case math.Abs(sim-bestSim) <= similarityEpsilon && amplified > bestAmplified+similarityEpsilon:
		default:
			continue
		}
		bestIdx, bestSim, bestAmplified = i, sim, amplified
	}
	return docs[bestIdx], true
}

const similarityEpsilon = 1e-12
