package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"horse.fit/storify/internal/cli"
	"horse.fit/storify/internal/config"
	"horse.fit/storify/internal/db"
	"horse.fit/storify/internal/langdetect"
	"horse.fit/storify/internal/logging"
	"horse.fit/storify/internal/nsfw"
	"horse.fit/storify/internal/pipeline"
	"horse.fit/storify/internal/statestore"
	"horse.fit/storify/internal/storify"
	"horse.fit/storify/internal/tasks"
	"horse.fit/storify/internal/textsim"
	"horse.fit/storify/internal/tweet"
)

// parseFlags parses args and reports the exit code to use when parsing
// did not succeed.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

// loadEnvironment reads the .env file, the configuration and builds the
// logger. A zero exit code means success.
func loadEnvironment(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, int) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), 1
	}
	return cfg, logger, 0
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runtime holds every collaborator of the orchestrator.
type runtime struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pool      *db.Pool
	state     *statestore.Store
	transport *tasks.Transport
	pipeline  *pipeline.Service
}

func openRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	rt.pool = pool

	state, err := statestore.Open(statestore.Options{Dir: cfg.StateDir}, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.state = state

	transport, err := tasks.NewTransport(cfg.NATSURL, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.transport = transport

	svc, err := buildPipeline(rt)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.pipeline = svc
	return rt, nil
}

func buildPipeline(rt *runtime) (*pipeline.Service, error) {
	cfg := rt.cfg

	lexicon, err := tweet.LoadLexicon(cfg.StopwordsFile, cfg.ObsceneFile)
	if err != nil {
		return nil, err
	}
	metric, err := textsim.ParseMetric(cfg.Similarity)
	if err != nil {
		return nil, err
	}
	dispatcher, err := tasks.NewDispatcher(rt.transport.Publisher, cfg.SpamQueue)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Source: rt.pool,
		State:  rt.state,
		Sink:   rt.pool,
		Tasks:  dispatcher,
	}
	if cfg.NSFWURL != "" {
		client, err := nsfw.New(nsfw.Options{
			URL:      cfg.NSFWURL,
			Timeout:  cfg.NSFWTimeout,
			Rate:     cfg.NSFWRate,
			CacheTTL: cfg.NSFWCacheTTL,
		}, rt.state, rt.logger)
		if err != nil {
			return nil, err
		}
		deps.Images = client
	}

	guard := langdetect.NewGuard(cfg.Language)
	if cfg.Language != "" && !guard.Enabled() {
		rt.logger.Warn().Str("language", cfg.Language).Msg("unsupported language, language filter disabled")
	}

	return pipeline.NewService(deps, pipeline.Options{
		Period:           cfg.Period,
		Granularity:      cfg.Granularity,
		StateTTL:         cfg.StateTTL,
		ClusterThreshold: cfg.TweetThreshold,
		Params: storify.Params{
			MaxIdle:           cfg.MaxIdle,
			Threshold:         cfg.ClusterThreshold,
			OriginalThreshold: cfg.ClusterOriginalThreshold,
			Metric:            metric,
		},
		SpamThreshold: cfg.SpamThreshold,
		NSFWThreshold: cfg.NSFWThreshold,
		Concurrency:   cfg.KeyConcurrency,
		Lexicon:       lexicon,
		Language:      guard,
	}, rt.logger)
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	if rt.transport != nil {
		if err := rt.transport.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("close task transport")
		}
	}
	if rt.state != nil {
		if err := rt.state.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("close state store")
		}
	}
	if rt.pool != nil {
		if err := rt.pool.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("close database pool")
		}
	}
}

// resolveKeys prefers keys given on the command line over STORIFY_KEYS.
func resolveKeys(flagKeys cli.KeyList, cfg *config.Config) []string {
	if len(flagKeys) > 0 {
		return []string(flagKeys)
	}
	return cfg.KeyList()
}
