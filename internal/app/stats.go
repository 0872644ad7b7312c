package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/storify/internal/cli"
	"horse.fit/storify/internal/db"
	"horse.fit/storify/internal/globaltime"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	dayRaw := fs.String("day", "", "UTC day (YYYY-MM-DD), default today")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}
	dayStart, err := parseUTCDay(*dayRaw, globaltime.UTC())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
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

	stats, err := pool.QueryKeyStats(ctx, dayStart, dayStart.Add(24*time.Hour), cfg.SpamThreshold)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query key stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(stats.Keys)+1)
	for _, row := range stats.Keys {
		rows = append(rows, []string{
			row.Key,
			fmt.Sprintf("%d", row.Documents),
			fmt.Sprintf("%d", row.SpamDocuments),
			fmt.Sprintf("%d", row.ClosedStories),
			fmt.Sprintf("%d", row.StoryDocs),
		})
	}
	rows = append(rows, []string{
		"TOTAL",
		fmt.Sprintf("%d", stats.Totals.Documents),
		fmt.Sprintf("%d", stats.Totals.SpamDocuments),
		fmt.Sprintf("%d", stats.Totals.ClosedStories),
		fmt.Sprintf("%d", stats.Totals.StoryDocs),
	})

	fmt.Printf("day=%s\n", stats.Day)
	if err := writeTable([]string{"key", "documents", "spam", "closed_stories", "story_documents"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render stats table: %v\n", err)
		return 1
	}
	return 0
}
