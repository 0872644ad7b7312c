package storify

import (
	"fmt"
	"time"

	"horse.fit/storify/internal/tweet"
)

// TimeFormat is the layout of startStory and endStory.
const TimeFormat = "Mon Jan 02 15:04:05 +0000 2006"

// StoryDocument is the durable record of a closed story. Its JSON keys are
// read by the dashboard and must stay stable.
type StoryDocument struct {
	Key            string          `json:"key"`
	StoryID        int64           `json:"story_id"`
	StartStory     string          `json:"startStory"`
	EndStory       string          `json:"endStory"`
	ClosedAt       time.Time       `json:"closed_at"`
	Tweets         []string        `json:"tweets"`
	SummaryTweet   *SummaryTweet   `json:"summary_tweet"`
	TimeSeries     []TimeBucket    `json:"timeSeries"`
	Photos         []Occurrence    `json:"photos"`
	URLs           []Occurrence    `json:"URLs"`
	TagCloud       []WeightedTerm  `json:"tagCloud"`
	Hashtags       []HashtagCount  `json:"hashtags"`
	Locations      []tweet.Point   `json:"locations"`
	CenterLoc      tweet.Point     `json:"centerloc"`
	Graph          Graph           `json:"graph"`
	ClusterDetails []ClusterDetail `json:"cluster_details"`
	DocumentCount  int             `json:"document_count"`
}

// Screening is the spam verdict applied when publishing. Excluded member
// ids are left out of the tweet list; when PhotosScreened is set Photos
// replaces the unscreened image table.
type Screening struct {
	Excluded       map[string]struct{}
	Photos         []Occurrence
	PhotosScreened bool
}

// Publish renders a closed story for the story sink.
func (s *Story) Publish(key string, screen Screening) (StoryDocument, error) {
	if s.ClosedAt == nil || s.views == nil {
		return StoryDocument{}, fmt.Errorf("story %d is not closed", s.ID)
	}
	v := s.views

	all := s.MemberIDs()
	tweets := make([]string, 0, len(all))
	for _, id := range all {
		if _, excluded := screen.Excluded[id]; excluded {
			continue
		}
		tweets = append(tweets, id)
	}

	photos := v.Photos
	if screen.PhotosScreened {
		photos = screen.Photos
	}

	return StoryDocument{
		Key:            key,
		StoryID:        s.ID,
		StartStory:     s.CreatedAt.UTC().Format(TimeFormat),
		EndStory:       s.ClosedAt.Add(time.Hour).UTC().Format(TimeFormat),
		ClosedAt:       *s.ClosedAt,
		Tweets:         tweets,
		SummaryTweet:   v.Summary,
		TimeSeries:     orEmpty(v.TimeSeries),
		Photos:         orEmpty(photos),
		URLs:           orEmpty(v.URLs),
		TagCloud:       orEmpty(v.TagCloud),
		Hashtags:       orEmpty(v.Hashtags),
		Locations:      orEmpty(v.Locations),
		CenterLoc:      v.Center,
		Graph:          Graph{Nodes: orEmpty(v.Graph.Nodes), Edges: orEmpty(v.Graph.Edges)},
		ClusterDetails: orEmpty(v.Clusters),
		DocumentCount:  len(all),
	}, nil
}

func orEmpty[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
