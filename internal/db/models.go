package db

import (
	"encoding/json"
	"time"
)

// Tweet maps storify.tweets, the annotated documents written by ingestion.
type Tweet struct {
	TweetID    string          `gorm:"column:tweet_id;type:text;primaryKey"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:timestamptz;not null;index:ix_tweets_created_at"`
	Keywords   json.RawMessage `gorm:"column:keywords;type:jsonb;not null;default:'[]'"`
	Groups     json.RawMessage `gorm:"column:groups;type:jsonb;not null;default:'[]'"`
	Payload    json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Spam       *float64        `gorm:"column:spam;type:double precision"`
	InsertedAt time.Time       `gorm:"column:inserted_at;type:timestamptz;not null;default:now()"`
}

func (Tweet) TableName() string { return "storify.tweets" }

// ClosedStory maps storify.closed_stories. Document holds the published
// story JSON as readers consume it.
type ClosedStory struct {
	ClosedStoryID   int64           `gorm:"column:closed_story_id;primaryKey;autoIncrement"`
	ClosedStoryUUID string          `gorm:"column:closed_story_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	StoryKey        string          `gorm:"column:story_key;type:text;not null;uniqueIndex:ux_closed_stories_key_story,priority:1"`
	StoryID         int64           `gorm:"column:story_id;type:bigint;not null;uniqueIndex:ux_closed_stories_key_story,priority:2"`
	StartStory      time.Time       `gorm:"column:start_story;type:timestamptz;not null"`
	EndStory        time.Time       `gorm:"column:end_story;type:timestamptz;not null"`
	ClosedAt        time.Time       `gorm:"column:closed_at;type:timestamptz;not null"`
	DocumentCount   int             `gorm:"column:document_count;type:integer;not null;default:0"`
	Document        json.RawMessage `gorm:"column:document;type:jsonb;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ClosedStory) TableName() string { return "storify.closed_stories" }

func autoMigrateModels() []any {
	return []any{
		&Tweet{},
		&ClosedStory{},
	}
}
