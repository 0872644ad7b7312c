package storify

import (
	"time"

	"horse.fit/storify/internal/textsim"
	"horse.fit/storify/internal/tweet"
)

// Builder partitions one window's documents into clusters: documents are
// vertices, an edge joins two documents whose filtered-token Jaccard
// similarity reaches Threshold, and every connected component becomes a
// cluster.
type Builder struct {
	Threshold float64

	ids *IDSource
	now func() time.Time
}

func NewBuilder(threshold float64, ids *IDSource, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	if ids == nil {
		ids = NewIDSource(now)
	}
	return &Builder{Threshold: threshold, ids: ids, now: now}
}

// Build returns clusters ordered by the position of their first document.
func (b *Builder) Build(docs []tweet.Document) []*Cluster {
	if len(docs) == 0 {
		return nil
	}

	sets := newDisjointSets(len(docs))
	for _, pair := range b.candidatePairs(docs) {
		i, j := pair[0], pair[1]
		if sets.find(i) == sets.find(j) {
			continue
		}
		if textsim.Jaccard(docs[i].Filtered, docs[j].Filtered) >= b.Threshold {
			sets.union(i, j)
		}
	}

	createdAt := b.now()
	byRoot := make(map[int]*Cluster)
	clusters := make([]*Cluster, 0)
	for i, doc := range docs {
		root := sets.find(i)
		c, ok := byRoot[root]
		if !ok {
			c = NewCluster(b.ids.Next(), createdAt)
			byRoot[root] = c
			clusters = append(clusters, c)
		}
		c.AddDocument(doc)
	}
	return clusters
}

// candidatePairs lists the pairs worth comparing. With a positive threshold
// only documents sharing a filtered lemma can be joined, so pairs come from
// an inverted index; otherwise every pair is a candidate.
func (b *Builder) candidatePairs(docs []tweet.Document) [][2]int {
	if b.Threshold <= 0 {
		pairs := make([][2]int, 0, len(docs)*(len(docs)-1)/2)
		for i := range docs {
			for j := i + 1; j < len(docs); j++ {
				pairs = append(pairs, [2]int{i, j})
			}
		}
		return pairs
	}

	postings := make(map[string][]int)
	for i, doc := range docs {
		for lemma := range doc.Filtered {
			postings[lemma] = append(postings[lemma], i)
		}
	}

	seen := make(map[[2]int]struct{})
	pairs := make([][2]int, 0)
	for i, doc := range docs {
		for lemma := range doc.Filtered {
			for _, j := range postings[lemma] {
				if j <= i {
					continue
				}
				pair := [2]int{i, j}
				if _, dup := seen[pair]; dup {
					continue
				}
				seen[pair] = struct{}{}
				pairs = append(pairs, pair)
			}
		}
	}
	return pairs
}

type disjointSets struct {
	parent []int
	rank   []int
}

func newDisjointSets(n int) *disjointSets {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &disjointSets{parent: parent, rank: make([]int, n)}
}

func (d *disjointSets) find(i int) int {
	for d.parent[i] != i {
		d.parent[i] = d.parent[d.parent[i]]
		i = d.parent[i]
	}
	return i
}

func (d *disjointSets) union(i, j int) {
	ri, rj := d.find(i), d.find(j)
	if ri == rj {
		return
	}
	switch {
	case d.rank[ri] < d.rank[rj]:
		d.parent[ri] = rj
	case d.rank[ri] > d.rank[rj]:
		d.parent[rj] = ri
	default:
		d.parent[rj] = ri
		d.rank[ri]++
	}
}
