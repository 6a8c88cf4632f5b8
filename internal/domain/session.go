package domain

import "time"

// SessionHistoryLimit caps the persisted reading-session history. Oldest
// entries are evicted first.
const SessionHistoryLimit = 100

// ReadingSession records one open-to-close span of the reader view.
// Sessions stay on the device; they are never synced remotely.
type ReadingSession struct {
	ID        string    `json:"id"`
	ArticleID string    `json:"articleId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  int64     `json:"duration"` // milliseconds
}

// DailyTotal aggregates read time for one calendar day.
type DailyTotal struct {
	Day       string `json:"day"` // YYYY-MM-DD
	Sessions  int    `json:"sessions"`
	TotalTime int64  `json:"totalTime"`
}

// ReadingStats is derived from the session history and article collection.
type ReadingStats struct {
	TotalArticles int          `json:"totalArticles"`
	TotalRead     int          `json:"totalRead"`
	TotalReadTime int64        `json:"totalReadTime"`
	CurrentStreak int          `json:"currentStreak"`
	Daily         []DailyTotal `json:"daily"`
	MostRead      []Article    `json:"mostRead"`
	RecentlyRead  []Article    `json:"recentlyRead"`
}
