package textsim

import (
	"fmt"
	"strings"
)

// Metric compares a story-side token profile with a cluster-side one.
type Metric interface {
	Name() string
	Compare(storyFiltered Set, storyCounts Counts, clusterFiltered Set, clusterCounts Counts) float64
}

// JaccardMetric compares filtered token sets.
type JaccardMetric struct{}

func (JaccardMetric) Name() string { return "jaccard" }

func (JaccardMetric) Compare(storyFiltered Set, _ Counts, clusterFiltered Set, _ Counts) float64 {
	return Jaccard(storyFiltered, clusterFiltered)
}

// CosineMetric compares token counts over the filtered lemmas both sides
// share.
type CosineMetric struct{}

func (CosineMetric) Name() string { return "cosine" }

func (CosineMetric) Compare(storyFiltered Set, storyCounts Counts, clusterFiltered Set, clusterCounts Counts) float64 {
	shared := storyFiltered.Intersect(clusterFiltered)
	return CosineOver(shared, storyCounts, clusterCounts)
}

func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "jaccard":
		return JaccardMetric{}, nil
	case "cosine":
		return CosineMetric{}, nil
	default:
		return nil, fmt.Errorf("unknown similarity metric %q", name)
	}
}
