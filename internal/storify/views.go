package storify

import (
	"sort"
	"time"

	"horse.fit/storify/internal/tweet"
)

// DefaultCenter is used when no member carries a location.
var DefaultCenter = tweet.Point{Lng: 5, Lat: 52}

type Occurrence struct {
	Link string `json:"link"`
	Occ  int    `json:"occ"`
}

type HashtagCount struct {
	Hashtag string `json:"ht"`
	Occ     int    `json:"occ"`
}

type WeightedTerm struct {
	Text   string `json:"text"`
	Weight int    `json:"weight"`
}

type TimeBucket struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type GraphNode struct {
	ID string `json:"id"`
}

type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Value  string `json:"value"`
}

type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type SummaryTweet struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	ScreenName string `json:"screen_name"`
}

// Views are the aggregates computed once when a story closes. Media maps
// each image to the documents that carried it, for spam flagging.
type Views struct {
	Summary    *SummaryTweet
	TimeSeries []TimeBucket
	Photos     []Occurrence
	Media      map[string][]string
	URLs       []Occurrence
	TagCloud   []WeightedTerm
	Hashtags   []HashtagCount
	Locations  []tweet.Point
	Center     tweet.Point
	Graph      Graph
	Clusters   []ClusterDetail
}

func (s *Story) buildViews() Views {
	all := s.Members()
	v := Views{
		TimeSeries: timeSeries(all),
		Media:      make(map[string][]string),
		TagCloud:   tagCloud(s),
		Graph:      interactionGraph(all),
		Clusters:   append([]ClusterDetail(nil), s.Clusters...),
		Center:     DefaultCenter,
	}

	if best, ok := s.Summary(); ok {
		v.Summary = &SummaryTweet{ID: best.ID, Text: best.Text, ScreenName: best.User.ScreenName}
	}

	photos := newCounter()
	urls := newCounter()
	hashtags := newCounter()
	for _, doc := range all {
		for _, media := range doc.Entities.Media {
			photos.add(media)
			v.Media[media] = append(v.Media[media], doc.ID)
		}
		for _, u := range doc.Entities.URLs {
			urls.add(u)
		}
		for _, ht := range doc.Entities.Hashtags {
			hashtags.add(ht)
		}
		if p, ok := doc.Point(); ok {
			v.Locations = append(v.Locations, p)
		}
	}
	for _, e := range photos.mostCommon() {
		v.Photos = append(v.Photos, Occurrence{Link: e.key, Occ: e.n})
	}
	for _, e := range urls.mostCommon() {
		v.URLs = append(v.URLs, Occurrence{Link: e.key, Occ: e.n})
	}
	for _, e := range hashtags.mostCommon() {
		v.Hashtags = append(v.Hashtags, HashtagCount{Hashtag: e.key, Occ: e.n})
	}

	if len(v.Locations) > 0 {
		var lng, lat float64
		for _, p := range v.Locations {
			lng += p.Lng
			lat += p.Lat
		}
		n := float64(len(v.Locations))
		v.Center = tweet.Point{Lng: lng / n, Lat: lat / n}
	}
	return v
}

// timeSeries counts members per UTC hour, zero-filling gaps between the
// first and last hour.
func timeSeries(docs []tweet.Document) []TimeBucket {
	if len(docs) == 0 {
		return nil
	}
	counts := make(map[time.Time]int)
	var first, last time.Time
	for i, doc := range docs {
		hour := doc.CreatedAt.UTC().Truncate(time.Hour)
		counts[hour]++
		if i == 0 || hour.Before(first) {
			first = hour
		}
		if i == 0 || hour.After(last) {
			last = hour
		}
	}

	out := make([]TimeBucket, 0, int(last.Sub(first)/time.Hour)+1)
	for hour := first; !hour.After(last); hour = hour.Add(time.Hour) {
		out = append(out, TimeBucket{
			Year:  hour.Year(),
			Month: int(hour.Month()),
			Day:   hour.Day(),
			Hour:  hour.Hour(),
			Count: counts[hour],
		})
	}
	return out
}

func tagCloud(s *Story) []WeightedTerm {
	out := make([]WeightedTerm, 0, len(s.Filtered))
	for lemma := range s.Filtered {
		if n := s.Tokens[lemma]; n > 0 {
			out = append(out, WeightedTerm{Text: lemma, Weight: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Text < out[j].Text
	})
	return out
}

// interactionGraph links users by retweets (author of the original to the
// retweeter), mentions and replies. Nodes are named by screen name.
func interactionGraph(docs []tweet.Document) Graph {
	names := make(map[string]string)
	order := make([]string, 0)
	node := func(u tweet.User) {
		if _, ok := names[u.ID]; ok {
			return
		}
		name := u.ScreenName
		if name == "" {
			name = u.ID
		}
		names[u.ID] = name
		order = append(order, u.ID)
	}

	type edge struct{ source, target, value string }
	edges := make([]edge, 0)
	for _, doc := range docs {
		if doc.Retweet != nil && doc.Retweet.User.ID != "" {
			node(doc.Retweet.User)
			node(doc.User)
			edges = append(edges, edge{source: doc.Retweet.User.ID, target: doc.User.ID, value: "retweet"})
		}
		for _, mention := range doc.Entities.Mentions {
			node(mention)
			node(doc.User)
			edges = append(edges, edge{source: doc.User.ID, target: mention.ID, value: "mention"})
		}
		if reply, ok := doc.Reply(); ok {
			node(reply)
			node(doc.User)
			edges = append(edges, edge{source: doc.User.ID, target: reply.ID, value: "reply"})
		}
	}

	g := Graph{Nodes: make([]GraphNode, 0, len(order)), Edges: make([]GraphEdge, 0, len(edges))}
	for _, id := range order {
		g.Nodes = append(g.Nodes, GraphNode{ID: names[id]})
	}
	for _, e := range edges {
		g.Edges = append(g.Edges, GraphEdge{Source: names[e.source], Target: names[e.target], Value: e.value})
	}
	return g
}

type counted struct {
	key string
	n   int
}

// counter tallies keys and lists them most common first, ties in
// first-seen order.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) mostCommon() []counted {
	out := make([]counted, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, counted{key: key, n: c.counts[key]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].n > out[j].n })
	return out
}
