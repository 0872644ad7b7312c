package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	SimilarityJaccard = "jaccard"
	SimilarityCosine  = "cosine"
)

type Config struct {
	Environment string `envconfig:"STORIFY_ENV" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMinConns  int32  `envconfig:"STORIFY_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"STORIFY_DB_MAX_CONNS" default:"8"`

	StateDir string        `envconfig:"STORIFY_STATE_DIR" default:"./data/state"`
	StateTTL time.Duration `envconfig:"STORIFY_STATE_TTL" default:"90m"`

	Period      time.Duration `envconfig:"STORIFY_PERIOD" default:"1h"`
	Granularity time.Duration `envconfig:"STORIFY_GRANULARITY" default:"1h"`

	MaxIdle                  int     `envconfig:"STORIFY_MAX_IDLE" default:"6"`
	TweetThreshold           float64 `envconfig:"STORIFY_TWEET_THRESHOLD" default:"0.5"`
	ClusterThreshold         float64 `envconfig:"STORIFY_CLUSTER_THRESHOLD" default:"0.3"`
	ClusterOriginalThreshold float64 `envconfig:"STORIFY_CLUSTER_ORIGINAL_THRESHOLD" default:"0.15"`
	Similarity               string  `envconfig:"STORIFY_SIMILARITY" default:"jaccard"`

	Keys           string `envconfig:"STORIFY_KEYS" default:""`
	KeyConcurrency int    `envconfig:"STORIFY_KEY_CONCURRENCY" default:"4"`
	Language       string `envconfig:"STORIFY_LANGUAGE" default:"nl"`

	SpamThreshold float64 `envconfig:"STORIFY_SPAM_THRESHOLD" default:"0.6"`
	SpamMarkLevel float64 `envconfig:"STORIFY_SPAM_MARK_LEVEL" default:"0.8"`
	SpamQueue     string  `envconfig:"STORIFY_SPAM_QUEUE" default:"web"`
	NATSURL       string  `envconfig:"NATS_URL" default:""`

	StopwordsFile string `envconfig:"STORIFY_STOPWORDS_FILE" default:""`
	ObsceneFile   string `envconfig:"STORIFY_OBSCENE_FILE" default:""`

	NSFWURL       string        `envconfig:"STORIFY_NSFW_URL" default:""`
	NSFWThreshold float64       `envconfig:"STORIFY_NSFW_THRESHOLD" default:"0.8"`
	NSFWRate      float64       `envconfig:"STORIFY_NSFW_RATE" default:"5"`
	NSFWTimeout   time.Duration `envconfig:"STORIFY_NSFW_TIMEOUT" default:"10s"`
	NSFWCacheTTL  time.Duration `envconfig:"STORIFY_NSFW_CACHE_TTL" default:"12h"`

	Schedule           string `envconfig:"STORIFY_SCHEDULE" default:"5 * * * *"`
	HTTPHost           string `envconfig:"STORIFY_HTTP_HOST" default:"127.0.0.1"`
	HTTPPort           int    `envconfig:"STORIFY_HTTP_PORT" default:"8090"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBMinConns < 0 {
		return fmt.Errorf("STORIFY_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("STORIFY_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("STORIFY_DB_MIN_CONNS (%d) cannot exceed STORIFY_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.StateTTL <= 0 {
		return fmt.Errorf("STORIFY_STATE_TTL must be > 0")
	}
	if c.Period <= 0 {
		return fmt.Errorf("STORIFY_PERIOD must be > 0")
	}
	if c.Granularity <= 0 || c.Granularity > c.Period {
		return fmt.Errorf("STORIFY_GRANULARITY must be > 0 and <= STORIFY_PERIOD")
	}
	if c.MaxIdle < 1 {
		return fmt.Errorf("STORIFY_MAX_IDLE must be >= 1")
	}
	for name, value := range map[string]float64{
		"STORIFY_TWEET_THRESHOLD":            c.TweetThreshold,
		"STORIFY_CLUSTER_THRESHOLD":          c.ClusterThreshold,
		"STORIFY_CLUSTER_ORIGINAL_THRESHOLD": c.ClusterOriginalThreshold,
		"STORIFY_SPAM_THRESHOLD":             c.SpamThreshold,
		"STORIFY_SPAM_MARK_LEVEL":            c.SpamMarkLevel,
		"STORIFY_NSFW_THRESHOLD":             c.NSFWThreshold,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, value)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Similarity)) {
	case SimilarityJaccard, SimilarityCosine:
	default:
		return fmt.Errorf("STORIFY_SIMILARITY must be %q or %q, got %q", SimilarityJaccard, SimilarityCosine, c.Similarity)
	}
	if c.KeyConcurrency < 1 {
		return fmt.Errorf("STORIFY_KEY_CONCURRENCY must be >= 1")
	}
	if strings.TrimSpace(c.SpamQueue) == "" {
		return fmt.Errorf("STORIFY_SPAM_QUEUE is required")
	}
	if c.NSFWRate <= 0 {
		return fmt.Errorf("STORIFY_NSFW_RATE must be > 0")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("STORIFY_HTTP_PORT must be within 1..65535")
	}
	return nil
}

// RequireDatabase reports a configuration error for commands that need
// the document store.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func (c *Config) KeyList() []string {
	return splitList(c.Keys)
}

func (c *Config) CORSAllowedOriginsList() []string {
	return splitList(c.CORSAllowedOrigins)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
