package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORIFY_KEYS", "bloemen, groente_en_fruit,bloemen")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MaxIdle != 6 {
		t.Fatalf("unexpected max idle: got %d want 6", cfg.MaxIdle)
	}
	if cfg.Similarity != SimilarityJaccard {
		t.Fatalf("unexpected metric: got %q", cfg.Similarity)
	}
	if cfg.SpamQueue != "web" {
		t.Fatalf("unexpected spam queue: got %q want web", cfg.SpamQueue)
	}
	want := []string{"bloemen", "groente_en_fruit"}
	if got := cfg.KeyList(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected keys: got %v want %v", got, want)
	}
	if err := cfg.RequireDatabase(); err == nil {
		t.Fatalf("expected missing DATABASE_URL error")
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "threshold", mutate: func(c *Config) { c.ClusterThreshold = 1.5 }, want: "STORIFY_CLUSTER_THRESHOLD"},
		{name: "max idle", mutate: func(c *Config) { c.MaxIdle = 0 }, want: "STORIFY_MAX_IDLE"},
		{name: "metric", mutate: func(c *Config) { c.Similarity = "euclid" }, want: "STORIFY_SIMILARITY"},
		{name: "granularity", mutate: func(c *Config) { c.Granularity = 2 * c.Period }, want: "STORIFY_GRANULARITY"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: got %v want mention of %s", err, tc.want)
			}
		})
	}
}

func validConfig() Config {
	return Config{
		DBMinConns:               1,
		DBMaxConns:               8,
		StateTTL:                 90 * time.Minute,
		Period:                   time.Hour,
		Granularity:              time.Hour,
		MaxIdle:                  3,
		TweetThreshold:           0.5,
		ClusterThreshold:         0.3,
		ClusterOriginalThreshold: 0.15,
		Similarity:               SimilarityJaccard,
		KeyConcurrency:           1,
		SpamThreshold:            0.6,
		SpamMarkLevel:            0.8,
		SpamQueue:                "web",
		NSFWThreshold:            0.8,
		NSFWRate:                 5,
		HTTPPort:                 8090,
	}
}
