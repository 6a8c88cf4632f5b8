package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func validPage() string {
	return "<html><body>" + strings.Repeat("<p>article text</p>", 100) + "</body></html>"
}

func strategyFor(name string, srv *httptest.Server) Strategy {
	return Strategy{Name: name, Wrap: func(string) string { return srv.URL }}
}

func TestFetchHTML_FallbackChain(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(validPage()))
	}))
	defer good.Close()

	client := New(Config{
		Timeout: 50 * time.Millisecond,
		Strategies: []Strategy{
			strategyFor("timeout", slow),
			strategyFor("bad-status", failing),
			strategyFor("good", good),
		},
	}, testLogger())

	html, err := client.FetchHTML(context.Background(), "https://example.com/post")
	require.NoError(t, err)
	assert.Contains(t, html, "article text")
}

func TestFetchHTML_RejectsProxyErrorPage(t *testing.T) {
	// A proxy answering 200 with a tiny non-HTML body must not be accepted.
	proxyError := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"upstream unreachable"}`))
	}))
	defer proxyError.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(validPage()))
	}))
	defer good.Close()

	client := New(Config{
		Strategies: []Strategy{
			strategyFor("proxy-error", proxyError),
			strategyFor("good", good),
		},
	}, testLogger())

	html, err := client.FetchHTML(context.Background(), "https://example.com/post")
	require.NoError(t, err)
	assert.Contains(t, html, "article text")
}

func TestFetchHTML_AllExhausted(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer failing.Close()

	client := New(Config{
		Strategies: []Strategy{
			strategyFor("first", failing),
			strategyFor("second", failing),
		},
	}, testLogger())

	_, err := client.FetchHTML(context.Background(), "https://example.com/post")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}

func TestFetchHTML_ContextCancellation(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer slow.Close()

	client := New(Config{
		Strategies: []Strategy{strategyFor("slow", slow)},
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchHTML(ctx, "https://example.com/post")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProxyStrategyEscapesTarget(t *testing.T) {
	s := Proxy("p", "https://proxy.example/raw?url=")
	wrapped := s.Wrap("https://example.com/a?b=c")
	assert.Equal(t, "https://proxy.example/raw?url=https%3A%2F%2Fexample.com%2Fa%3Fb%3Dc", wrapped)
}
