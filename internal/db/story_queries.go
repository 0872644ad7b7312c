package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ClosedStoryRecord is a closed story as written by the story sink.
type ClosedStoryRecord struct {
	StoryKey      string          `json:"key"`
	StoryID       int64           `json:"story_id"`
	StoryUUID     string          `json:"story_uuid,omitempty"`
	StartStory    time.Time       `json:"start_story"`
	EndStory      time.Time       `json:"end_story"`
	ClosedAt      time.Time       `json:"closed_at"`
	DocumentCount int             `json:"document_count"`
	Document      json.RawMessage `json:"document,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InsertClosedStory appends a closed story. Re-inserting the same
// (key, story_id) is a no-op and reports false.
func (p *Pool) InsertClosedStory(ctx context.Context, row ClosedStoryRecord) (bool, error) {
	if strings.TrimSpace(row.StoryKey) == "" {
		return false, fmt.Errorf("story key is required")
	}
	if len(row.Document) == 0 {
		return false, fmt.Errorf("story document is required")
	}

	const q = `
INSERT INTO storify.closed_stories (
	story_key,
	story_id,
	start_story,
	end_story,
	closed_at,
	document_count,
	document
)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
ON CONFLICT (story_key, story_id) DO NOTHING
`

	tag, err := p.Exec(ctx, q,
		row.StoryKey,
		row.StoryID,
		row.StartStory.UTC(),
		row.EndStory.UTC(),
		row.ClosedAt.UTC(),
		row.DocumentCount,
		string(row.Document),
	)
	if err != nil {
		return false, fmt.Errorf("insert closed story key=%s story_id=%d: %w", row.StoryKey, row.StoryID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListClosedStories lists closed stories newest first, without documents.
// An empty key lists every key.
func (p *Pool) ListClosedStories(ctx context.Context, key string, limit int) ([]ClosedStoryRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	cs.story_key,
	cs.story_id,
	cs.closed_story_uuid::text,
	cs.start_story,
	cs.end_story,
	cs.closed_at,
	cs.document_count,
	cs.created_at
FROM storify.closed_stories cs
WHERE ($1 = '' OR cs.story_key = $1)
ORDER BY cs.closed_at DESC, cs.story_id DESC
LIMIT $2
`

	rows, err := p.Query(ctx, q, strings.TrimSpace(key), limit)
	if err != nil {
		return nil, fmt.Errorf("query closed stories: %w", err)
	}
	defer rows.Close()

	items := make([]ClosedStoryRecord, 0, limit)
	for rows.Next() {
		var row ClosedStoryRecord
		if err := rows.Scan(
			&row.StoryKey,
			&row.StoryID,
			&row.StoryUUID,
			&row.StartStory,
			&row.EndStory,
			&row.ClosedAt,
			&row.DocumentCount,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan closed story row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed story rows: %w", err)
	}
	return items, nil
}

// GetClosedStory loads one closed story with its document. It returns
// ErrNoRows when absent.
func (p *Pool) GetClosedStory(ctx context.Context, key string, storyID int64) (*ClosedStoryRecord, error) {
	const q = `
SELECT
	cs.story_key,
	cs.story_id,
	cs.closed_story_uuid::text,
	cs.start_story,
	cs.end_story,
	cs.closed_at,
	cs.document_count,
	cs.document,
	cs.created_at
FROM storify.closed_stories cs
WHERE cs.story_key = $1
  AND cs.story_id = $2
`

	var (
		row      ClosedStoryRecord
		document []byte
	)
	err := p.QueryRow(ctx, q, strings.TrimSpace(key), storyID).Scan(
		&row.StoryKey,
		&row.StoryID,
		&row.StoryUUID,
		&row.StartStory,
		&row.EndStory,
		&row.ClosedAt,
		&row.DocumentCount,
		&document,
		&row.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("get closed story key=%s story_id=%d: %w", key, storyID, err)
	}
	row.Document = json.RawMessage(document)
	return &row, nil
}
