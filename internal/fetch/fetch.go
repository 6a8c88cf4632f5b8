// Package fetch retrieves raw page HTML through an ordered chain of
// strategies. Each strategy wraps the target URL through a different
// indirection (direct, then proxy endpoints); the first one returning a
// plausibly-HTML response wins. Responses are validated before acceptance
// so a proxy's own error page is never mistaken for content.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds each individual strategy attempt.
	DefaultTimeout = 12 * time.Second
	// minHTMLBytes rejects responses too small to be a real page.
	minHTMLBytes = 512
	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 5 << 20
)

// ErrExhausted is wrapped into the error returned when every strategy in
// the chain has failed.
var ErrExhausted = errors.New("all fetch strategies exhausted")

// Strategy names one way of reaching a URL. Wrap rewrites the target into
// the request URL actually issued.
type Strategy struct {
	Name string
	Wrap func(target string) string
}

// Direct fetches the URL as-is.
func Direct() Strategy {
	return Strategy{
		Name: "direct",
		Wrap: func(target string) string { return target },
	}
}

// Proxy builds a strategy from an endpoint template. The target URL is
// query-escaped and appended to the template.
func Proxy(name, template string) Strategy {
	return Strategy{
		Name: name,
		Wrap: func(target string) string {
			return template + url.QueryEscape(target)
		},
	}
}

// DefaultStrategies is the fallback chain used when none is configured.
func DefaultStrategies() []Strategy {
	return []Strategy{
		Direct(),
		Proxy("allorigins", "https://api.allorigins.win/raw?url="),
		Proxy("corsproxy", "https://corsproxy.io/?url="),
	}
}

// Client walks the strategy chain for each fetch.
type Client struct {
	httpClient *http.Client
	strategies []Strategy
	timeout    time.Duration
	userAgent  string
	logger     *slog.Logger
}

// Config holds retrieval settings.
type Config struct {
	Strategies []Strategy
	Timeout    time.Duration
	UserAgent  string
}

// New creates a retrieval client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "readlater/1.0"
	}
	return &Client{
		httpClient: &http.Client{},
		strategies: cfg.Strategies,
		timeout:    cfg.Timeout,
		userAgent:  cfg.UserAgent,
		logger:     logger.With("component", "fetch"),
	}
}

// FetchHTML returns the raw HTML for the URL, trying each strategy in
// order. It fails only when the whole chain is exhausted.
func (c *Client) FetchHTML(ctx context.Context, target string) (string, error) {
	var errs []error

	for _, strategy := range c.strategies {
		html, err := c.attempt(ctx, strategy, target)
		if err == nil {
			c.logger.Debug("fetched html",
				"strategy", strategy.Name,
				"url", target,
				"bytes", len(html),
			)
			return html, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		c.logger.Warn("fetch strategy failed",
			"strategy", strategy.Name,
			"url", target,
			"error", err,
		)
		errs = append(errs, fmt.Errorf("%s: %w", strategy.Name, err))
	}

	return "", fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}

func (c *Client) attempt(ctx context.Context, strategy Strategy, target string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, strategy.Wrap(target), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	html := string(body)
	if err := validateHTML(html); err != nil {
		return "", err
	}

	return html, nil
}

// validateHTML guards against proxies answering with their own error or
// placeholder pages: the body must carry an HTML marker and meet a minimum
// size.
func validateHTML(body string) error {
	if len(body) < minHTMLBytes {
		return fmt.Errorf("response too short: %d bytes", len(body))
	}
	lower := strings.ToLower(body)
	if !strings.Contains(lower, "<html") && !strings.Contains(lower, "<!doctype") && !strings.Contains(lower, "<body") {
		return errors.New("response does not look like html")
	}
	return nil
}
