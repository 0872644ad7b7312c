package db

import (
	"context"
	"fmt"
	"time"
)

// KeyStatsRow stores per-key counts for one day.
type KeyStatsRow struct {
	Key           string `json:"key"`
	Documents     int64  `json:"documents"`
	SpamDocuments int64  `json:"spam_documents"`
	ClosedStories int64  `json:"closed_stories"`
	StoryDocs     int64  `json:"story_documents"`
}

// KeyStatsTotals stores totals across keys.
type KeyStatsTotals struct {
	Documents     int64 `json:"documents"`
	SpamDocuments int64 `json:"spam_documents"`
	ClosedStories int64 `json:"closed_stories"`
	StoryDocs     int64 `json:"story_documents"`
}

// KeyStats is the read model returned by the stats command.
type KeyStats struct {
	Day    string         `json:"day"`
	Keys   []KeyStatsRow  `json:"keys"`
	Totals KeyStatsTotals `json:"totals"`
}

// QueryKeyStats counts documents per group and closed stories per key in
// [dayStart, dayEnd). Documents count once per group they carry.
func (p *Pool) QueryKeyStats(ctx context.Context, dayStart, dayEnd time.Time, spamLevel float64) (*KeyStats, error) {
	startUTC := dayStart.UTC()
	endUTC := dayEnd.UTC()
	if !startUTC.Before(endUTC) {
		return nil, fmt.Errorf("dayStart must be before dayEnd")
	}

	stats := &KeyStats{
		Day:  startUTC.Format("2006-01-02"),
		Keys: make([]KeyStatsRow, 0, 16),
	}

	const countsQuery = `
WITH document_counts AS (
	SELECT g.key,
		COUNT(*)::BIGINT AS documents,
		COUNT(*) FILTER (WHERE COALESCE(t.spam, 0) > $3)::BIGINT AS spam_documents
	FROM storify.tweets t
	CROSS JOIN LATERAL jsonb_array_elements_text(t.groups) AS g(key)
	WHERE t.created_at >= $1 AND t.created_at < $2
	GROUP BY g.key
),
story_counts AS (
	SELECT cs.story_key AS key,
		COUNT(*)::BIGINT AS closed_stories,
		COALESCE(SUM(cs.document_count), 0)::BIGINT AS story_documents
	FROM storify.closed_stories cs
	WHERE cs.closed_at >= $1 AND cs.closed_at < $2
	GROUP BY cs.story_key
)
SELECT
	COALESCE(d.key, s.key) AS key,
	COALESCE(d.documents, 0),
	COALESCE(d.spam_documents, 0),
	COALESCE(s.closed_stories, 0),
	COALESCE(s.story_documents, 0)
FROM document_counts d
FULL OUTER JOIN story_counts s
	ON s.key = d.key
ORDER BY 1
`

	rows, err := p.Query(ctx, countsQuery, startUTC, endUTC, spamLevel)
	if err != nil {
		return nil, fmt.Errorf("query key stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row KeyStatsRow
		if err := rows.Scan(&row.Key, &row.Documents, &row.SpamDocuments, &row.ClosedStories, &row.StoryDocs); err != nil {
			return nil, fmt.Errorf("scan key stats row: %w", err)
		}
		stats.Keys = append(stats.Keys, row)
		stats.Totals.Documents += row.Documents
		stats.Totals.SpamDocuments += row.SpamDocuments
		stats.Totals.ClosedStories += row.ClosedStories
		stats.Totals.StoryDocs += row.StoryDocs
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key stats rows: %w", err)
	}

	return stats, nil
}
