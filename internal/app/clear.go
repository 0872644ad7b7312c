package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/storify/internal/cli"
	"horse.fit/storify/internal/statestore"
)

func runClear(args []string) int {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	var keys cli.KeyList
	fs.Var(&keys, "key", "Story key to clear (repeatable or comma separated)")
	timeout := fs.Duration("timeout", 30*time.Second, "Operation timeout")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if len(keys) == 0 {
		fmt.Fprintln(os.Stderr, "--key is required")
		return 2
	}

	cfg, logger, code := loadEnvironment(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := openRuntime(ctx, cfg, logger)
	if errors.Is(err, statestore.ErrLocked) {
		logger.Info().Msg("state store held by daemon, clearing through its api")
		return clearViaDaemon(ctx, newDaemonClient(daemonBaseURL(cfg), *timeout), keys)
	}
	if err != nil {
		logger.Error().Err(err).Msg("clear setup failed")
		fmt.Fprintf(os.Stderr, "Clear setup failed: %v\n", err)
		return 1
	}
	defer rt.Close()

	for _, key := range keys {
		if err := rt.pipeline.ClearKey(ctx, key); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("clear failed")
			fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
			return 1
		}
		fmt.Printf("clear key=%s ok\n", key)
	}
	return 0
}

type keyClearer interface {
	ClearKey(ctx context.Context, key string) error
}

func clearViaDaemon(ctx context.Context, daemon keyClearer, keys []string) int {
	for _, key := range keys {
		if err := daemon.ClearKey(ctx, key); err != nil {
			fmt.Fprintf(os.Stderr, "Clear failed: state store held by daemon and its api is unreachable: %v\n", err)
			return 1
		}
		fmt.Printf("clear key=%s ok (via daemon)\n", key)
	}
	return 0
}
