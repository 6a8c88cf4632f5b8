// Package analytics records reading sessions and derives statistics from
// the session history and article collection. All reads are simple, pure
// computations; the only state is the open-session table.
package analytics

import (
	"fmt"
	"log/slog"
	"sort"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"readlater/internal/domain"
)

// Store is the slice of the local cache the tracker needs.
type Store interface {
	Sessions() ([]domain.ReadingSession, error)
	AppendSession(session domain.ReadingSession) error
	Articles() ([]domain.Article, error)
	GetArticle(id string) (domain.Article, error)
	UpdateArticle(id string, patch domain.ArticlePatch) (domain.Article, error)
}

// Tracker opens a session when the reader view opens and closes it when
// the view closes.
type Tracker struct {
	mu     stdsync.Mutex
	open   map[string]domain.ReadingSession
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a tracker.
func New(store Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		open:   make(map[string]domain.ReadingSession),
		store:  store,
		logger: logger.With("component", "analytics"),
		now:    time.Now,
	}
}

// StartSession opens a session for the article and returns its id.
func (t *Tracker) StartSession(articleID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	session := domain.ReadingSession{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		StartTime: t.now().UTC(),
	}
	t.open[session.ID] = session
	return session.ID
}

// EndSession closes the session, appends it to the bounded history, and
// rolls its duration into the owning article's counters. readCount goes up
// once per completed session.
func (t *Tracker) EndSession(sessionID string) (domain.ReadingSession, error) {
	t.mu.Lock()
	session, ok := t.open[sessionID]
	if ok {
		delete(t.open, sessionID)
	}
	t.mu.Unlock()

	if !ok {
		return domain.ReadingSession{}, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	session.EndTime = t.now().UTC()
	session.Duration = session.EndTime.Sub(session.StartTime).Milliseconds()

	if err := t.store.AppendSession(session); err != nil {
		return domain.ReadingSession{}, fmt.Errorf("append session: %w", err)
	}

	article, err := t.store.GetArticle(session.ArticleID)
	if err != nil {
		// The article may have been deleted mid-read; the session record
		// alone is still worth keeping.
		t.logger.Warn("session closed for missing article", "article", session.ArticleID)
		return session, nil
	}

	readCount := article.ReadCount + 1
	totalTime := article.TotalReadTime + session.Duration
	lastRead := session.EndTime
	_, err = t.store.UpdateArticle(article.ID, domain.ArticlePatch{
		ReadCount:     &readCount,
		TotalReadTime: &totalTime,
		LastReadAt:    &lastRead,
	})
	if err != nil {
		return domain.ReadingSession{}, fmt.Errorf("update article counters: %w", err)
	}

	return session, nil
}

// Stats derives the reading statistics snapshot.
func (t *Tracker) Stats() (domain.ReadingStats, error) {
	sessions, err := t.store.Sessions()
	if err != nil {
		return domain.ReadingStats{}, err
	}
	articles, err := t.store.Articles()
	if err != nil {
		return domain.ReadingStats{}, err
	}

	stats := domain.ReadingStats{
		TotalArticles: len(articles),
		Daily:         dailyTotals(sessions),
		CurrentStreak: streak(sessions, t.now().UTC()),
		MostRead:      topBy(articles, 5, func(a, b domain.Article) bool { return a.ReadCount > b.ReadCount }),
		RecentlyRead:  recentlyRead(articles, 5),
	}
	for _, a := range articles {
		if a.IsRead {
			stats.TotalRead++
		}
		stats.TotalReadTime += a.TotalReadTime
	}
	return stats, nil
}

func dailyTotals(sessions []domain.ReadingSession) []domain.DailyTotal {
	byDay := make(map[string]*domain.DailyTotal)
	for _, s := range sessions {
		day := s.StartTime.UTC().Format("2006-01-02")
		total, ok := byDay[day]
		if !ok {
			total = &domain.DailyTotal{Day: day}
			byDay[day] = total
		}
		total.Sessions++
		total.TotalTime += s.Duration
	}

	totals := make([]domain.DailyTotal, 0, len(byDay))
	for _, total := range byDay {
		totals = append(totals, *total)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Day < totals[j].Day })
	return totals
}

// streak counts consecutive days with at least one session, ending today
// or yesterday (an unfinished today does not break the streak).
func streak(sessions []domain.ReadingSession, now time.Time) int {
	days := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		days[s.StartTime.UTC().Format("2006-01-02")] = true
	}
	if len(days) == 0 {
		return 0
	}

	cursor := now
	if !days[cursor.Format("2006-01-02")] {
		cursor = cursor.AddDate(0, 0, -1)
		if !days[cursor.Format("2006-01-02")] {
			return 0
		}
	}

	count := 0
	for days[cursor.Format("2006-01-02")] {
		count++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return count
}

func topBy(articles []domain.Article, n int, less func(a, b domain.Article) bool) []domain.Article {
	sorted := append([]domain.Article{}, articles...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	kept := sorted[:0]
	for _, a := range sorted {
		if a.ReadCount > 0 {
			kept = append(kept, a)
		}
	}
	if len(kept) > n {
		kept = kept[:n]
	}
	return kept
}

func recentlyRead(articles []domain.Article, n int) []domain.Article {
	var read []domain.Article
	for _, a := range articles {
		if a.LastReadAt != nil {
			read = append(read, a)
		}
	}
	sort.Slice(read, func(i, j int) bool { return read[i].LastReadAt.After(*read[j].LastReadAt) })
	if len(read) > n {
		read = read[:n]
	}
	return read
}
