package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"horse.fit/storify/internal/db"
	"horse.fit/storify/internal/globaltime"
	"horse.fit/storify/internal/logging"
	"horse.fit/storify/internal/storify"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// ClosedStories reads the story sink.
type ClosedStories interface {
	ListClosedStories(ctx context.Context, key string, limit int) ([]db.ClosedStoryRecord, error)
	GetClosedStory(ctx context.Context, key string, storyID int64) (*db.ClosedStoryRecord, error)
}

// ActiveStories reads and clears a key's active story list in the state
// store.
type ActiveStories interface {
	ActiveStories(ctx context.Context, key string) ([]*storify.Story, error)
	ClearKey(ctx context.Context, key string) error
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type Server struct {
	closed ClosedStories
	active ActiveStories
	logger zerolog.Logger
	opts   Options
}

type activeStoryItem struct {
	StoryID       int64                 `json:"story_id"`
	CreatedAt     time.Time             `json:"created_at"`
	Origin        time.Time             `json:"origin"`
	IdleCount     int                   `json:"idle_count"`
	ClusterCount  int                   `json:"cluster_count"`
	DocumentCount int                   `json:"document_count"`
	SummaryTweet  *storify.SummaryTweet `json:"summary_tweet,omitempty"`
}

func NewServer(closed ClosedStories, active ActiveStories, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	opts.Host = host

	return &Server{
		closed: closed,
		active: active,
		logger: logging.Component(logger, "httpapi"),
		opts:   opts,
	}
}

// Handler builds the echo instance with every route mounted.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.logger.Debug()
			if v.Error != nil {
				ev = s.logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stories", s.handleStories)
	api.GET("/stories/:key/:id", s.handleStoryDetail)
	api.GET("/active/:key", s.handleActive)
	api.DELETE("/active/:key", s.handleClearActive)
	return e
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.closed == nil || s.active == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("storify api started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("storify api stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if text, ok := he.Message.(string); ok && strings.TrimSpace(text) != "" {
			message = text
		} else if text := http.StatusText(status); text != "" {
			message = text
		}
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "storify",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStories(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	key := strings.TrimSpace(c.QueryParam("key"))

	items, err := s.closed.ListClosedStories(c.Request().Context(), key, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("list closed stories failed")
		return internalError(c, "Failed to load stories")
	}
	return success(c, map[string]any{
		"items": items,
		"limit": limit,
	})
}

func (s *Server) handleStoryDetail(c echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	storyID, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || storyID <= 0 {
		return failValidation(c, map[string]string{"id": "must be a positive integer"})
	}

	record, err := s.closed.GetClosedStory(c.Request().Context(), key, storyID)
	if errors.Is(err, db.ErrNoRows) {
		return failNotFound(c, "Story not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Int64("story_id", storyID).Msg("get closed story failed")
		return internalError(c, "Failed to load story")
	}
	return success(c, record)
}

func (s *Server) handleActive(c echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		return failValidation(c, map[string]string{"key": "is required"})
	}

	stories, err := s.active.ActiveStories(c.Request().Context(), key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("load active stories failed")
		return internalError(c, "Failed to load active stories")
	}

	items := make([]activeStoryItem, 0, len(stories))
	for _, story := range stories {
		item := activeStoryItem{
			StoryID:       story.ID,
			CreatedAt:     story.CreatedAt,
			Origin:        story.Origin,
			IdleCount:     story.IdleCount,
			ClusterCount:  len(story.Clusters),
			DocumentCount: len(story.MemberIDs()),
		}
		if best, ok := story.Summary(); ok {
			item.SummaryTweet = &storify.SummaryTweet{ID: best.ID, Text: best.Text, ScreenName: best.User.ScreenName}
		}
		items = append(items, item)
	}
	return success(c, map[string]any{
		"key":   key,
		"items": items,
	})
}

// handleClearActive drops a key's active stories without closing them. The
// daemon holds the state store, so the clear command routes through here
// while it runs.
func (s *Server) handleClearActive(c echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		return failValidation(c, map[string]string{"key": "is required"})
	}

	if err := s.active.ClearKey(c.Request().Context(), key); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("clear active stories failed")
		return internalError(c, "Failed to clear active stories")
	}
	s.logger.Info().Str("key", key).Msg("active stories cleared")
	return success(c, map[string]any{
		"key":     key,
		"cleared": true,
	})
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
