// Package nsfw is the client of the image scoring service used to screen
// closed-story photos.
package nsfw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"horse.fit/storify/internal/logging"
	"horse.fit/storify/internal/metrics"
)

// ErrInvalidImage is returned when the scorer cannot read the image.
var ErrInvalidImage = errors.New("nsfw: invalid image")

// CacheKeyPrefix namespaces cached scores in the state store.
const CacheKeyPrefix = "nsfw:"

// Cache stores scores between runs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Options struct {
	URL        string
	Timeout    time.Duration
	Rate       float64
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

type Client struct {
	url      string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[float64]
	cache    Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

type scoreRequest struct {
	URL string `json:"url"`
}

type scoreResponse struct {
	NSFW float64 `json:"nsfw"`
}

type cachedScore struct {
	NSFW    float64 `json:"nsfw"`
	Invalid bool    `json:"invalid,omitempty"`
}

// New builds a client. cache may be nil.
func New(opts Options, cache Cache, logger zerolog.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(opts.URL)
	if endpoint == "" {
		return nil, fmt.Errorf("nsfw url is required")
	}
	if opts.Rate <= 0 {
		return nil, fmt.Errorf("nsfw rate must be > 0")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	log := logging.Component(logger, "nsfw")
	breaker := gobreaker.NewCircuitBreaker[float64](gobreaker.Settings{
		Name:        "nsfw",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidImage) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	burst := int(opts.Rate)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		url:      endpoint,
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(opts.Rate), burst),
		breaker:  breaker,
		cache:    cache,
		cacheTTL: opts.CacheTTL,
		logger:   log,
	}, nil
}

// Score returns the probability that the image at imageURL is not safe for
// work.
func (c *Client) Score(ctx context.Context, imageURL string) (float64, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return 0, ErrInvalidImage
	}

	if cached, ok := c.lookup(ctx, imageURL); ok {
		metrics.NSFWRequestsTotal.WithLabelValues("cache_hit").Inc()
		if cached.Invalid {
			return 0, ErrInvalidImage
		}
		return cached.NSFW, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("wait for nsfw rate limit: %w", err)
	}

	score, err := c.breaker.Execute(func() (float64, error) {
		return c.request(ctx, imageURL)
	})
	switch {
	case errors.Is(err, ErrInvalidImage):
		metrics.NSFWRequestsTotal.WithLabelValues("invalid").Inc()
		c.store(ctx, imageURL, cachedScore{Invalid: true})
		return 0, ErrInvalidImage
	case err != nil:
		metrics.NSFWRequestsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("score image url=%s: %w", imageURL, err)
	}

	metrics.NSFWRequestsTotal.WithLabelValues("scored").Inc()
	c.store(ctx, imageURL, cachedScore{NSFW: score})
	return score, nil
}

func (c *Client) request(ctx context.Context, imageURL string) (float64, error) {
	body, err := json.Marshal(scoreRequest{URL: imageURL})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnsupportedMediaType {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, ErrInvalidImage
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded scoreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if decoded.NSFW < 0 || decoded.NSFW > 1 {
		return 0, fmt.Errorf("score %v out of range", decoded.NSFW)
	}
	return decoded.NSFW, nil
}

func (c *Client) lookup(ctx context.Context, imageURL string) (cachedScore, bool) {
	if c.cache == nil {
		return cachedScore{}, false
	}
	raw, err := c.cache.Get(ctx, CacheKeyPrefix+imageURL)
	if err != nil {
		return cachedScore{}, false
	}
	var cached cachedScore
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.logger.Debug().Err(err).Str("url", imageURL).Msg("ignoring unreadable cached score")
		return cachedScore{}, false
	}
	return cached, true
}

func (c *Client) store(ctx context.Context, imageURL string, score cachedScore) {
	if c.cache == nil || c.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(score)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, CacheKeyPrefix+imageURL, raw, c.cacheTTL); err != nil {
		c.logger.Warn().Err(err).Str("url", imageURL).Msg("cache image score")
	}
}
