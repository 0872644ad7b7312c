package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/storify/internal/cli"
	"horse.fit/storify/internal/db"
	"horse.fit/storify/internal/ingest"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "", "JSON or JSON-lines file of annotated tweets (use - for stdin)")
	dir := fs.String("dir", "", "Directory of .json/.jsonl files (alternative to --file)")
	recursive := fs.Bool("recursive", true, "Recursively scan --dir")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall ingest timeout")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	filePath := strings.TrimSpace(*file)
	dirPath := strings.TrimSpace(*dir)
	if (filePath == "") == (dirPath == "") {
		fmt.Fprintln(os.Stderr, "exactly one of --file or --dir is required")
		return 2
	}

	var paths []string
	if dirPath != "" {
		found, err := collectJSONFiles(dirPath, *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest setup failed: %v\n", err)
			return 1
		}
		paths = found
	} else {
		paths = []string{filePath}
	}

	cfg, logger, code := loadEnvironment(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := ingest.NewService(pool, logger)
	var total ingest.Result
	for _, path := range paths {
		result, err := ingestPath(ctx, svc, path)
		total.Read += result.Read
		total.Inserted += result.Inserted
		total.Duplicates += result.Duplicates
		total.Invalid += result.Invalid
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("ingest failed")
			fmt.Fprintf(os.Stderr, "Ingest failed for %s: %v\n", path, err)
			return 1
		}
	}

	fmt.Printf(
		"ingest files=%d read=%d inserted=%d duplicates=%d invalid=%d\n",
		len(paths),
		total.Read,
		total.Inserted,
		total.Duplicates,
		total.Invalid,
	)
	if total.Invalid > 0 {
		return 1
	}
	return 0
}

func ingestPath(ctx context.Context, svc *ingest.Service, path string) (ingest.Result, error) {
	if path == "-" {
		return svc.IngestReader(ctx, os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return svc.IngestReader(ctx, f)
}
