package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"horse.fit/storify/internal/config"
)

// daemonClient talks to the HTTP surface of a running daemon. Commands that
// need the state store use it when the daemon holds the store's lock.
type daemonClient struct {
	baseURL string
	http    *http.Client
}

type daemonEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func newDaemonClient(baseURL string, timeout time.Duration) *daemonClient {
	return &daemonClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// daemonBaseURL maps the configured listen address to a dialable one.
func daemonBaseURL(cfg *config.Config) string {
	host := strings.TrimSpace(cfg.HTTPHost)
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.HTTPPort))
}

func (c *daemonClient) Healthy(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz")
}

func (c *daemonClient) ClearKey(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/active/"+url.PathEscape(key))
}

func (c *daemonClient) do(ctx context.Context, method, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build daemon request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reach daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read daemon response: %w", err)
	}
	var env daemonEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode daemon response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("daemon %s %s: %s", method, path, msg)
	}
	return nil
}
