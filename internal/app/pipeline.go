package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"horse.fit/storify/internal/cli"
	"horse.fit/storify/internal/globaltime"
	"horse.fit/storify/internal/pipeline"
)

func runPipeline(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	var keys cli.KeyList
	fs.Var(&keys, "key", "Story key to process (repeatable or comma separated); defaults to STORIFY_KEYS, then active groups")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall run timeout")
	at := fs.String("at", "", "Replay the window ending at this RFC3339 time instead of now")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if raw := strings.TrimSpace(*at); raw != "" {
		replayAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fmt.Fprintln(os.Stderr, "--at must be an RFC3339 time")
			return 2
		}
		// Windows and story timestamps follow the replayed clock. Story ids keep
		// the wall clock.
		globaltime.SetMockTime(replayAt.UTC())
		defer globaltime.ResetTime()
	}

	cfg, logger, code := loadEnvironment(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("run setup failed")
		fmt.Fprintf(os.Stderr, "Run setup failed: %v\n", err)
		return 1
	}
	defer rt.Close()

	result, err := rt.pipeline.RunAll(ctx, resolveKeys(keys, cfg))
	for _, kr := range result.Keys {
		printKeyResult(kr)
	}
	failed := make([]string, 0, len(result.Failed))
	for key := range result.Failed {
		failed = append(failed, key)
	}
	sort.Strings(failed)
	for _, key := range failed {
		fmt.Fprintf(os.Stderr, "FAILED key=%s: %v\n", key, result.Failed[key])
	}
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		return 1
	}
	return 0
}

func printKeyResult(kr pipeline.KeyResult) {
	fmt.Printf(
		"run key=%s from=%s to=%s fetched=%d accepted=%d skipped=%d routed=%d clusters=%d created=%d extended=%d closed=%d active=%d flagged=%d state_reset=%t\n",
		kr.Key,
		kr.From.Format(time.RFC3339),
		kr.To.Format(time.RFC3339),
		kr.Fetched,
		kr.Accepted,
		kr.Skipped,
		kr.Routed,
		kr.Clusters,
		kr.Created,
		kr.Extended,
		kr.Closed,
		kr.Active,
		kr.Flagged,
		kr.StateReset,
	)
}
