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
)

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", time.Minute, "Migration timeout")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, logger, code := loadEnvironment(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// NewPool migrates on connect; the second pass reports the steps.
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("migrate failed")
		fmt.Fprintf(os.Stderr, "Migrate failed: %v\n", err)
		return 1
	}
	defer pool.Close()

	steps, err := pool.Migrate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migrate failed: %v\n", err)
		return 1
	}

	fmt.Printf("migrate ok steps=%s\n", strings.Join(steps, ","))
	return 0
}
