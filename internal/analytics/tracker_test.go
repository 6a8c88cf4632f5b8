package analytics

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readlater/internal/domain"
)

// fakeStore is an in-memory Store for tracker tests.
type fakeStore struct {
	sessions []domain.ReadingSession
	articles map[string]domain.Article
}

func newFakeStore() *fakeStore {
	return &fakeStore{articles: make(map[string]domain.Article)}
}

func (f *fakeStore) Sessions() ([]domain.ReadingSession, error) {
	return f.sessions, nil
}

func (f *fakeStore) AppendSession(s domain.ReadingSession) error {
	f.sessions = append(f.sessions, s)
	if excess := len(f.sessions) - domain.SessionHistoryLimit; excess > 0 {
		f.sessions = f.sessions[excess:]
	}
	return nil
}

func (f *fakeStore) Articles() ([]domain.Article, error) {
	out := make([]domain.Article, 0, len(f.articles))
	for _, a := range f.articles {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeStore) GetArticle(id string) (domain.Article, error) {
	a, ok := f.articles[id]
	if !ok {
		return domain.Article{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) UpdateArticle(id string, patch domain.ArticlePatch) (domain.Article, error) {
	a, ok := f.articles[id]
	if !ok {
		return domain.Article{}, domain.ErrNotFound
	}
	patch.Apply(&a)
	f.articles[id] = a
	return a, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSessionLifecycleUpdatesArticleCounters(t *testing.T) {
	store := newFakeStore()
	article := domain.NewArticle("https://example.com/post", "Post")
	store.articles[article.ID] = article

	tracker := New(store, testLogger())

	start := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	current := start
	tracker.now = func() time.Time { return current }

	id := tracker.StartSession(article.ID)
	current = start.Add(90 * time.Second)

	session, err := tracker.EndSession(id)
	require.NoError(t, err)
	assert.Equal(t, int64(90000), session.Duration)

	got := store.articles[article.ID]
	assert.Equal(t, 1, got.ReadCount)
	assert.Equal(t, int64(90000), got.TotalReadTime)
	require.NotNil(t, got.LastReadAt)
	assert.Equal(t, session.EndTime, *got.LastReadAt)
}

func TestEndSessionUnknownID(t *testing.T) {
	tracker := New(newFakeStore(), testLogger())
	_, err := tracker.EndSession("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEndSessionSurvivesDeletedArticle(t *testing.T) {
	store := newFakeStore()
	tracker := New(store, testLogger())

	id := tracker.StartSession("deleted-article")
	session, err := tracker.EndSession(id)
	require.NoError(t, err)
	assert.Equal(t, "deleted-article", session.ArticleID)
	assert.Len(t, store.sessions, 1)
}

func TestStreakConsecutiveDays(t *testing.T) {
	store := newFakeStore()
	tracker := New(store, testLogger())

	now := time.Date(2025, 8, 10, 20, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	for _, daysAgo := range []int{0, 1, 2, 4} {
		store.sessions = append(store.sessions, domain.ReadingSession{
			ID:        "s",
			ArticleID: "a",
			StartTime: now.AddDate(0, 0, -daysAgo),
			Duration:  1000,
		})
	}

	stats, err := tracker.Stats()
	require.NoError(t, err)
	// Day -4 is separated by the gap at -3; only today, -1, -2 count.
	assert.Equal(t, 3, stats.CurrentStreak)
}

func TestStreakAllowsUnfinishedToday(t *testing.T) {
	store := newFakeStore()
	tracker := New(store, testLogger())

	now := time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	// Sessions yesterday and the day before, none yet today.
	for _, daysAgo := range []int{1, 2} {
		store.sessions = append(store.sessions, domain.ReadingSession{
			StartTime: now.AddDate(0, 0, -daysAgo),
		})
	}

	stats, err := tracker.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CurrentStreak)
}

func TestDailyTotalsAggregation(t *testing.T) {
	store := newFakeStore()
	tracker := New(store, testLogger())

	day := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	store.sessions = []domain.ReadingSession{
		{StartTime: day.Add(8 * time.Hour), Duration: 1000},
		{StartTime: day.Add(20 * time.Hour), Duration: 2000},
		{StartTime: day.AddDate(0, 0, 1), Duration: 500},
	}

	stats, err := tracker.Stats()
	require.NoError(t, err)
	require.Len(t, stats.Daily, 2)
	assert.Equal(t, "2025-08-10", stats.Daily[0].Day)
	assert.Equal(t, 2, stats.Daily[0].Sessions)
	assert.Equal(t, int64(3000), stats.Daily[0].TotalTime)
}

func TestMostReadAndRecentlyRead(t *testing.T) {
	store := newFakeStore()
	tracker := New(store, testLogger())

	newest := time.Date(2025, 8, 10, 10, 0, 0, 0, time.UTC)
	older := newest.Add(-time.Hour)

	a := domain.NewArticle("https://example.com/a", "A")
	a.ReadCount = 5
	a.LastReadAt = &older
	b := domain.NewArticle("https://example.com/b", "B")
	b.ReadCount = 2
	b.LastReadAt = &newest
	c := domain.NewArticle("https://example.com/c", "C")

	store.articles[a.ID] = a
	store.articles[b.ID] = b
	store.articles[c.ID] = c

	stats, err := tracker.Stats()
	require.NoError(t, err)

	require.Len(t, stats.MostRead, 2, "never-read articles excluded")
	assert.Equal(t, a.ID, stats.MostRead[0].ID)

	require.Len(t, stats.RecentlyRead, 2)
	assert.Equal(t, b.ID, stats.RecentlyRead[0].ID)
}
