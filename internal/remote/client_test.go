package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readlater/internal/domain"
)

type staticTokens string

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testClient(baseURL string) *Client {
	return New(Config{
		BaseURL:        baseURL,
		Timeout:        2 * time.Second,
		PollInterval:   20 * time.Millisecond,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, staticTokens("tok-1"), testLogger())
}

func TestSetArticleSendsBearerAndMergeFlag(t *testing.T) {
	var gotAuth, gotQuery, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	article := domain.NewArticle("https://example.com/a", "A")
	err := testClient(srv.URL).SetArticle(context.Background(), "uid-1", article, true)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "merge=true", gotQuery)
	assert.Equal(t, http.MethodPatch, gotMethod)
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := testClient(srv.URL).DeleteArticle(context.Background(), "uid-1", "a1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAuthExpiredIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := testClient(srv.URL).DeleteArticle(context.Background(), "uid-1", "a1")
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
	assert.Equal(t, int32(1), calls.Load(), "terminal errors must not be retried")
}

func TestPermissionDeniedClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := testClient(srv.URL).DeleteArticle(context.Background(), "uid-1", "a1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestUnauthenticatedBodySignalClassifiedAsAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"status":"UNAUTHENTICATED"}}`))
	}))
	defer srv.Close()

	err := testClient(srv.URL).DeleteArticle(context.Background(), "uid-1", "a1")
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
}

func TestListDecodesSnapshot(t *testing.T) {
	article := domain.NewArticle("https://example.com/post", "Post")
	article.Tags = []string{"go"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "orderBy=dateAdded")
		w.Header().Set("Content-Type", "application/json")
		writeListResponse(t, w, article)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).List(context.Background(), "uid-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, article.ID, got[0].ID)
	assert.Equal(t, []string{"go"}, got[0].Tags)
}

func TestSubscribeDeliversSnapshotsUntilStopped(t *testing.T) {
	article := domain.NewArticle("https://example.com/post", "Post")

	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		writeListResponse(t, w, article)
	}))
	defer srv.Close()

	snapshots := make(chan []domain.Article, 16)
	stop := testClient(srv.URL).Subscribe("uid-1",
		func(articles []domain.Article) { snapshots <- articles },
		func(err error) { t.Errorf("unexpected subscription error: %v", err) },
	)

	select {
	case got := <-snapshots:
		require.Len(t, got, 1)
		assert.Equal(t, article.ID, got[0].ID)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	stop()
	settled := polls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, polls.Load(), settled+1, "polling must stop after cancel")
}

func writeListResponse(t *testing.T, w http.ResponseWriter, articles ...domain.Article) {
	t.Helper()
	docs := make([]document, len(articles))
	for i, a := range articles {
		docs[i] = document{Fields: EncodeArticle(a)}
	}
	if err := json.NewEncoder(w).Encode(listResponse{Documents: docs}); err != nil {
		t.Fatal(err)
	}
}
