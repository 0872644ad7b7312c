package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"horse.fit/storify/internal/cli"
	"horse.fit/storify/internal/httpapi"
	"horse.fit/storify/internal/scheduler"
	"horse.fit/storify/internal/tasks"
)

// namedService adapts a blocking function to suture.Service.
type namedService struct {
	name  string
	serve func(ctx context.Context) error
}

func (s namedService) Serve(ctx context.Context) error {
	return s.serve(ctx)
}

func (s namedService) String() string {
	return s.name
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	var keys cli.KeyList
	fs.Var(&keys, "key", "Story key to process (repeatable or comma separated); defaults to STORIFY_KEYS, then active groups")
	runNow := fs.Bool("run-now", false, "Run once immediately in addition to the schedule")
	runTimeout := fs.Duration("run-timeout", 30*time.Minute, "Timeout of one scheduled run")
	gcEvery := fs.Duration("gc-every", 10*time.Minute, "State store value log GC interval")
	noWorker := fs.Bool("no-worker", false, "Do not consume mark_as_spam tasks in this process")
	noHTTP := fs.Bool("no-http", false, "Do not serve the story API")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, logger, code := loadEnvironment(envLoader)
	if code != 0 {
		return code
	}

	setupCtx, setupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer setupCancel()

	rt, err := openRuntime(setupCtx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("daemon setup failed")
		fmt.Fprintf(os.Stderr, "Daemon setup failed: %v\n", err)
		return 1
	}
	defer rt.Close()

	keyList := resolveKeys(keys, cfg)
	job := func(ctx context.Context) {
		runCtx, cancel := context.WithTimeout(ctx, *runTimeout)
		defer cancel()

		started := time.Now()
		result, err := rt.pipeline.RunAll(runCtx, keyList)
		event := logger.Info()
		if err != nil {
			event = logger.Error().Err(err)
		}
		event.
			Int("keys", len(result.Keys)).
			Int("failed", len(result.Failed)).
			Dur("elapsed", time.Since(started)).
			Msg("scheduled run finished")
	}

	sched, err := scheduler.New(cfg.Schedule, job, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid schedule: %v\n", err)
		return 1
	}

	sup := suture.New("storify", suture.Spec{
		EventHook: supervisorHook(logger),
		Timeout:   15 * time.Second,
	})

	sup.Add(namedService{name: "scheduler", serve: sched.Serve})
	sup.Add(namedService{name: "state-gc", serve: func(ctx context.Context) error {
		rt.state.RunGC(ctx, *gcEvery)
		return ctx.Err()
	}})
	if !*noWorker {
		sup.Add(namedService{name: "spam-worker", serve: func(ctx context.Context) error {
			worker, err := tasks.NewWorker(rt.transport, cfg.SpamQueue, rt.pool, cfg.SpamMarkLevel, logger)
			if err != nil {
				return err
			}
			defer worker.Close()
			return worker.Run(ctx)
		}})
	}
	if !*noHTTP {
		srv := httpapi.NewServer(rt.pool, rt.pipeline, logger, httpOptions(cfg))
		sup.Add(namedService{name: "http", serve: srv.Start})
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *runNow {
		go job(ctx)
	}

	logger.Info().
		Str("schedule", cfg.Schedule).
		Strs("keys", keyList).
		Str("transport", rt.transport.Backend).
		Time("next_run", sched.Next(time.Now())).
		Msg("daemon started")

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("supervisor stopped")
		fmt.Fprintf(os.Stderr, "Daemon failed: %v\n", err)
		return 1
	}
	logger.Info().Msg("daemon stopped")
	return 0
}

func supervisorHook(logger zerolog.Logger) suture.EventHook {
	return func(ev suture.Event) {
		logger.Warn().
			Str("component", "supervisor").
			Fields(ev.Map()).
			Msg(ev.String())
	}
}
