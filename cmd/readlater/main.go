package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"readlater/internal/analytics"
	"readlater/internal/auth"
	"readlater/internal/config"
	"readlater/internal/domain"
	"readlater/internal/events"
	"readlater/internal/extract"
	"readlater/internal/fetch"
	"readlater/internal/reconciler"
	"readlater/internal/remote"
	"readlater/internal/server"
	"readlater/internal/store"
	syncpkg "readlater/internal/sync"
	"readlater/internal/tags"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := store.Open(cfg.Storage.Path, logger)
	if err != nil {
		logger.Error("failed to open local store", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("local store ready", "path", cfg.Storage.Path)

	// Startup maintenance: collapse case-variant duplicate tags before
	// anything reads the collection.
	if changed, err := tags.New(db, logger).Run(); err != nil {
		logger.Error("tag normalization failed", "error", err)
	} else if changed > 0 {
		logger.Info("tag casing normalized", "articles_changed", changed)
	}

	strategies := []fetch.Strategy{fetch.Direct()}
	for _, p := range cfg.Fetch.Proxies {
		strategies = append(strategies, fetch.Proxy(p.Name, p.Template))
	}
	if len(cfg.Fetch.Proxies) == 0 {
		strategies = fetch.DefaultStrategies()
	}
	fetcher := fetch.New(fetch.Config{
		Strategies: strategies,
		Timeout:    cfg.Fetch.Timeout,
	}, logger)

	var authProvider syncpkg.AuthProvider
	var tokens remote.TokenSource
	if cfg.Auth.Configured() {
		provider := auth.NewStaticProvider(
			domain.Identity{
				UID:         cfg.Auth.UID,
				Email:       cfg.Auth.Email,
				DisplayName: cfg.Auth.DisplayName,
			},
			auth.Credentials{Token: cfg.Auth.Token},
			tokenRefresher(cfg.Auth.RefreshURL, cfg.Auth.RefreshToken),
		)
		authProvider = provider
		tokens = provider
	} else {
		logger.Info("no sync credentials configured, running local-only")
		tokens = noTokens{}
	}

	remoteClient := remote.New(remote.Config{
		BaseURL:        cfg.Remote.BaseURL,
		Timeout:        cfg.Remote.Timeout,
		PollInterval:   cfg.Remote.PollInterval,
		MaxAttempts:    cfg.Remote.Retry.MaxAttempts,
		InitialBackoff: cfg.Remote.Retry.InitialBackoff,
		MaxBackoff:     cfg.Remote.Retry.MaxBackoff,
	}, tokens, logger)

	var publisher syncpkg.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := events.NewRabbitMQ(events.Config{
			URL:          cfg.RabbitMQ.URL,
			Exchange:     cfg.RabbitMQ.Exchange,
			ExchangeType: cfg.RabbitMQ.ExchangeType,
			RoutingKey:   cfg.RabbitMQ.RoutingKey,
			QueueName:    cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		publisher = rabbitMQ
	}

	session := syncpkg.NewSession(db, remoteClient, authProvider, publisher, logger)
	session.OnWarning(func(message string) {
		logger.Warn("sync warning", "message", message)
	})

	if authProvider != nil {
		if err := session.SignIn(); err != nil {
			logger.Error("sign in failed, staying local-only", "error", err)
		}
	}

	tracker := analytics.New(db, logger)

	srv := server.New(session, db, fetcher, extract.Extract, tracker, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Routes(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	}()

	go func() {
		flusher := reconciler.New(session, cfg.Flush.Interval, logger)
		if err := flusher.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("reconciler error", "error", err)
		}
	}()

	logger.Info("starting readlater",
		"addr", cfg.Server.Addr,
		"sync_configured", cfg.Auth.Configured(),
		"events_enabled", cfg.RabbitMQ.Enabled,
	)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}

// noTokens is the token source when sync is unconfigured. The session never
// attempts remote writes in that state, so any call here is a bug surfaced
// as a credential error rather than a silent empty bearer.
type noTokens struct{}

func (noTokens) Token(ctx context.Context) (string, error) {
	return "", auth.ErrNoCredentials
}

// tokenRefresher exchanges the long-lived refresh token for a fresh bearer
// credential against the configured token endpoint.
func tokenRefresher(refreshURL, refreshToken string) auth.RefreshFunc {
	if refreshURL == "" || refreshToken == "" {
		return nil
	}

	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, old auth.Credentials) (auth.Credentials, error) {
		payload, err := json.Marshal(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		})
		if err != nil {
			return auth.Credentials{}, fmt.Errorf("encode refresh request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, bytes.NewReader(payload))
		if err != nil {
			return auth.Credentials{}, fmt.Errorf("create refresh request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return auth.Credentials{}, fmt.Errorf("execute refresh request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return auth.Credentials{}, fmt.Errorf("refresh rejected: status %d", resp.StatusCode)
		}

		var body struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return auth.Credentials{}, fmt.Errorf("decode refresh response: %w", err)
		}

		return auth.Credentials{
			Token:     body.AccessToken,
			ExpiresAt: time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
		}, nil
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
