package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/storify/internal/cli"
	"horse.fit/storify/internal/config"
	"horse.fit/storify/internal/httpapi"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "", "Host interface to bind (default STORIFY_HTTP_HOST)")
	port := fs.Int("port", 0, "HTTP port (default STORIFY_HTTP_PORT)")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if *port < 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	cfg, logger, code := loadEnvironment(envLoader)
	if code != 0 {
		return code
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	rt, err := openRuntime(dbCtx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("serve setup failed")
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	opts := httpOptions(cfg)
	if *host != "" {
		opts.Host = *host
	}
	if *port != 0 {
		opts.Port = *port
	}
	opts.ReadTimeout = *readTimeout
	opts.WriteTimeout = *writeTimeout
	opts.ShutdownTimeout = *shutdownTimeout

	srv := httpapi.NewServer(rt.pool, rt.pipeline, logger, opts)
	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", opts.Host).Int("port", opts.Port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}
	return 0
}

func httpOptions(cfg *config.Config) httpapi.Options {
	return httpapi.Options{
		Host:           cfg.HTTPHost,
		Port:           cfg.HTTPPort,
		AllowedOrigins: cfg.CORSAllowedOriginsList(),
	}
}
