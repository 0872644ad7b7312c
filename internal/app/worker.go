package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/storify/internal/cli"
	"horse.fit/storify/internal/db"
	"horse.fit/storify/internal/tasks"
)

func runWorker(args []string) int {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, logger, code := loadEnvironment(envLoader)
	if code != 0 {
		return code
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("worker failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	transport, err := tasks.NewTransport(cfg.NATSURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open task transport: %v\n", err)
		return 1
	}
	defer transport.Close()

	worker, err := tasks.NewWorker(transport, cfg.SpamQueue, pool, cfg.SpamMarkLevel, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build worker: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	if transport.Backend == "gochannel" {
		logger.Warn().Msg("NATS_URL is empty; worker only sees tasks published by this process")
	}
	logger.Info().
		Str("queue", cfg.SpamQueue).
		Str("backend", transport.Backend).
		Msg("task worker started")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker failed")
		fmt.Fprintf(os.Stderr, "Worker failed: %v\n", err)
		return 1
	}
	return 0
}
