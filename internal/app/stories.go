package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"horse.fit/storify/internal/cli"
	"horse.fit/storify/internal/db"
	"horse.fit/storify/internal/storify"
)

func runStories(args []string) int {
	fs := flag.NewFlagSet("stories", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	key := fs.String("key", "", "Only list stories of this key")
	limit := fs.Int("limit", 25, "Maximum number of stories")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	cfg, _, code := loadEnvironment(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	records, err := pool.ListClosedStories(ctx, strings.TrimSpace(*key), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list stories: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(records); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.StoryKey,
			strconv.FormatInt(record.StoryID, 10),
			formatUTCTimestamp(record.StartStory),
			formatUTCTimestamp(record.EndStory),
			strconv.Itoa(record.DocumentCount),
			truncateForTable(summaryText(record.Document), 60),
		})
	}
	if err := writeTable([]string{"key", "story_id", "start", "end", "documents", "summary"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render stories table: %v\n", err)
		return 1
	}
	return 0
}

func summaryText(document []byte) string {
	var doc struct {
		SummaryTweet *storify.SummaryTweet `json:"summary_tweet"`
	}
	if err := json.Unmarshal(document, &doc); err != nil || doc.SummaryTweet == nil {
		return ""
	}
	return doc.SummaryTweet.Text
}
