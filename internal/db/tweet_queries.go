package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WindowDocument is one stored document inside a fetch window.
type WindowDocument struct {
	TweetID string
	Payload json.RawMessage
	Spam    *float64
}

// InsertTweetParams carries one annotated document for storage.
type InsertTweetParams struct {
	TweetID   string
	CreatedAt time.Time
	Keywords  []string
	Groups    []string
	Payload   json.RawMessage
	Spam      *float64
}

// FetchWindow returns the documents tagged with key (as group or keyword)
// created in [from, to), oldest first.
func (p *Pool) FetchWindow(ctx context.Context, key string, from, to time.Time) ([]WindowDocument, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}
	from = from.UTC()
	to = to.UTC()
	if !from.Before(to) {
		return nil, fmt.Errorf("from must be before to")
	}

	const q = `
SELECT
	t.tweet_id,
	t.payload,
	t.spam
FROM storify.tweets t
WHERE t.created_at >= $1
  AND t.created_at < $2
  AND (
	t.groups @> jsonb_build_array($3::text)
	OR t.keywords @> jsonb_build_array($3::text)
  )
ORDER BY t.created_at ASC, t.tweet_id ASC
`

	rows, err := p.Query(ctx, q, from, to, key)
	if err != nil {
		return nil, fmt.Errorf("query window key=%s: %w", key, err)
	}
	defer rows.Close()

	items := make([]WindowDocument, 0)
	for rows.Next() {
		var (
			row     WindowDocument
			payload []byte
		)
		if err := rows.Scan(&row.TweetID, &payload, &row.Spam); err != nil {
			return nil, fmt.Errorf("scan window row: %w", err)
		}
		row.Payload = json.RawMessage(payload)
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate window rows: %w", err)
	}
	return items, nil
}

// ListActiveGroups returns the groups seen on documents created since the
// given time.
func (p *Pool) ListActiveGroups(ctx context.Context, since time.Time) ([]string, error) {
	const q = `
SELECT DISTINCT g.value
FROM storify.tweets t
CROSS JOIN LATERAL jsonb_array_elements_text(t.groups) AS g(value)
WHERE t.created_at >= $1
ORDER BY g.value ASC
`

	rows, err := p.Query(ctx, q, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query active groups: %w", err)
	}
	defer rows.Close()

	groups := make([]string, 0)
	for rows.Next() {
		var group string
		if err := rows.Scan(&group); err != nil {
			return nil, fmt.Errorf("scan active group row: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active group rows: %w", err)
	}
	return groups, nil
}

// InsertTweet stores a document; an existing tweet id is left untouched.
func (p *Pool) InsertTweet(ctx context.Context, row InsertTweetParams) (bool, error) {
	if strings.TrimSpace(row.TweetID) == "" {
		return false, fmt.Errorf("tweet id is required")
	}

	keywords, err := json.Marshal(nonNil(row.Keywords))
	if err != nil {
		return false, fmt.Errorf("encode keywords: %w", err)
	}
	groups, err := json.Marshal(nonNil(row.Groups))
	if err != nil {
		return false, fmt.Errorf("encode groups: %w", err)
	}

	const q = `
INSERT INTO storify.tweets (tweet_id, created_at, keywords, groups, payload, spam)
VALUES ($1, $2, $3::jsonb, $4::jsonb, $5::jsonb, $6)
ON CONFLICT (tweet_id) DO NOTHING
`

	tag, err := p.Exec(ctx, q, row.TweetID, row.CreatedAt.UTC(), string(keywords), string(groups), string(row.Payload), row.Spam)
	if err != nil {
		return false, fmt.Errorf("insert tweet_id=%s: %w", row.TweetID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSpam raises the spam score of the given tweets to at least level.
func (p *Pool) MarkSpam(ctx context.Context, tweetIDs []string, level float64) (int64, error) {
	if len(tweetIDs) == 0 {
		return 0, nil
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin mark spam tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const q = `
UPDATE storify.tweets
SET spam = GREATEST(COALESCE(spam, 0), $2)
WHERE tweet_id = $1
`

	var updated int64
	for _, id := range tweetIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		tag, err := tx.Exec(ctx, q, id, level)
		if err != nil {
			return 0, fmt.Errorf("mark spam tweet_id=%s: %w", id, err)
		}
		updated += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit mark spam tx: %w", err)
	}
	return updated, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
