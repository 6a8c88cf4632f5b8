package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"readlater/internal/domain"
)

// TokenSource supplies the bearer credential for each request. The actual
// OAuth flow lives behind the auth boundary.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config holds remote store settings.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	PollInterval   time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client is an HTTP client for the remote document collection.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	tokens         TokenSource
	pollInterval   time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a remote store client.
func New(cfg Config, tokens TokenSource, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:         tokens,
		pollInterval:   cfg.PollInterval,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "remote"),
	}
}

type document struct {
	Fields map[string]Value `json:"fields"`
}

type listResponse struct {
	Documents []document `json:"documents"`
}

// Set writes one article document. With merge true the remote merges the
// fields into the existing document instead of overwriting it, so partial
// updates cannot clobber unrelated remote-only fields.
func (c *Client) Set(ctx context.Context, uid, articleID string, fields map[string]Value, merge bool) error {
	url := fmt.Sprintf("%s/users/%s/articles/%s", c.baseURL, uid, articleID)
	if merge {
		url += "?merge=true"
	}

	body, err := json.Marshal(document{Fields: fields})
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	return c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPatch, url, body, nil)
	})
}

// SetArticle encodes the article into the typed-value envelope and writes
// it with Set. This is the form the sync session consumes.
func (c *Client) SetArticle(ctx context.Context, uid string, article domain.Article, merge bool) error {
	return c.Set(ctx, uid, article.ID, EncodeArticle(article), merge)
}

// DeleteArticle removes the article's document.
func (c *Client) DeleteArticle(ctx context.Context, uid, articleID string) error {
	return c.Delete(ctx, uid, articleID)
}

// Delete removes one article document.
func (c *Client) Delete(ctx context.Context, uid, articleID string) error {
	url := fmt.Sprintf("%s/users/%s/articles/%s", c.baseURL, uid, articleID)
	return c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodDelete, url, nil, nil)
	})
}

// List fetches the full collection for the user, ordered by creation time
// descending. This is the snapshot payload the subscription delivers.
func (c *Client) List(ctx context.Context, uid string) ([]domain.Article, error) {
	url := fmt.Sprintf("%s/users/%s/articles?orderBy=dateAdded&direction=desc", c.baseURL, uid)

	var resp listResponse
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, url, nil, &resp)
	})
	if err != nil {
		return nil, err
	}

	articles := make([]domain.Article, 0, len(resp.Documents))
	for _, doc := range resp.Documents {
		articles = append(articles, DecodeArticle(doc.Fields))
	}
	return articles, nil
}

// Subscribe starts a polling subscription delivering full snapshots of the
// user's collection. The returned stop function tears the subscription
// down; callers must never hold two live subscriptions at once.
func (c *Client) Subscribe(uid string, onSnapshot func([]domain.Article), onError func(error)) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		c.poll(ctx, uid, onSnapshot, onError)

		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.poll(ctx, uid, onSnapshot, onError)
			}
		}
	}()

	return cancel
}

func (c *Client) poll(ctx context.Context, uid string, onSnapshot func([]domain.Article), onError func(error)) {
	articles, err := c.List(ctx, uid)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("snapshot poll failed", "uid", uid, "error", err)
		onError(err)
		return
	}
	onSnapshot(articles)
}

// withRetry retries transient failures with bounded exponential backoff.
// Classified auth and permission errors are returned immediately; retrying
// them cannot help and the caller owns the refresh flow.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if isTerminal(err) || attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("remote request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

func isTerminal(err error) bool {
	return errors.Is(err, domain.ErrAuthExpired) ||
		errors.Is(err, domain.ErrPermissionDenied) ||
		errors.Is(err, domain.ErrNotFound)
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, dest any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// classifyStatus maps HTTP rejections onto the error taxonomy: 401 and an
// explicit UNAUTHENTICATED signal mean the credential expired (one silent
// refresh and retry is allowed); 403 means the remote rejects even valid
// auth and must not be retried.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	signal := strings.ToUpper(string(payload))

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		strings.Contains(signal, "UNAUTHENTICATED"):
		return fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrAuthExpired)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrPermissionDenied)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrNotFound)
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}
