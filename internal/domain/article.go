package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Categories an article can be filed under. Unknown values collapse to
// CategoryGeneral on normalization.
const (
	CategoryGeneral  = "general"
	CategoryTech     = "tech"
	CategoryScience  = "science"
	CategoryBusiness = "business"
	CategoryCulture  = "culture"
	CategoryPolitics = "politics"
	CategoryHealth   = "health"
	CategoryOther    = "other"
)

// Categories lists the valid article categories.
var Categories = []string{
	CategoryGeneral, CategoryTech, CategoryScience, CategoryBusiness,
	CategoryCulture, CategoryPolitics, CategoryHealth, CategoryOther,
}

// HighlightColors is the fixed palette for highlights.
var HighlightColors = []string{"yellow", "green", "blue", "pink", "orange"}

// Article is a saved reading-list entry. JSON field names match the legacy
// storage blobs so existing user data loads unchanged.
type Article struct {
	ID            string      `json:"id"`
	URL           string      `json:"url"`
	Title         string      `json:"title"`
	Category      string      `json:"category"`
	Tags          []string    `json:"tags"`
	IsRead        bool        `json:"isRead"`
	IsFavorite    bool        `json:"isFavorite"`
	IsArchived    bool        `json:"isArchived"`
	DateAdded     time.Time   `json:"dateAdded"`
	LastModified  time.Time   `json:"lastModified"`
	Thumbnail     string      `json:"thumbnail"`
	Excerpt       string      `json:"excerpt"`
	Content       string      `json:"content"`
	Highlights    []Highlight `json:"highlights"`
	ReadProgress  int         `json:"readProgress"`
	FolderID      *string     `json:"folderId"`
	LastReadAt    *time.Time  `json:"lastReadAt"`
	ReadCount     int         `json:"readCount"`
	TotalReadTime int64       `json:"totalReadTime"`
}

// Highlight is a user-marked span of article text. Owned by its Article.
type Highlight struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Color     string    `json:"color"`
	Note      string    `json:"note"`
	Tags      []string  `json:"tags"`
	Timestamp time.Time `json:"timestamp"`
}

// Folder groups articles. Deleting a folder does not delete its articles.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewArticle builds an article with a generated id and creation timestamps.
func NewArticle(url, title string) Article {
	now := time.Now().UTC()
	return Article{
		ID:           uuid.NewString(),
		URL:          url,
		Title:        title,
		Category:     CategoryGeneral,
		Tags:         []string{},
		Highlights:   []Highlight{},
		DateAdded:    now,
		LastModified: now,
	}
}

// NewHighlight builds a highlight for the given text span.
func NewHighlight(text, color string) Highlight {
	return Highlight{
		ID:        uuid.NewString(),
		Text:      text,
		Color:     color,
		Tags:      []string{},
		Timestamp: time.Now().UTC(),
	}
}

// Normalize fills defaults for fields a remote snapshot may omit.
func (a *Article) Normalize() {
	if a.Category == "" {
		a.Category = CategoryGeneral
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.Highlights == nil {
		a.Highlights = []Highlight{}
	}
	for i := range a.Highlights {
		if a.Highlights[i].Tags == nil {
			a.Highlights[i].Tags = []string{}
		}
	}
	if a.DateAdded.IsZero() {
		a.DateAdded = time.Now().UTC()
	}
	if a.LastModified.IsZero() {
		a.LastModified = a.DateAdded
	}
	if a.ReadProgress < 0 {
		a.ReadProgress = 0
	} else if a.ReadProgress > 100 {
		a.ReadProgress = 100
	}
}

// NormalizeURL reduces a URL to a duplicate-detection key: protocol and
// leading "www." removed, trailing slash dropped, case-folded.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	return s
}

// ArticlePatch is a partial article update. Nil fields are left untouched
// by Apply, mirroring the shallow-merge semantics of the storage layer.
// FolderID uses a double pointer so a patch can distinguish "leave alone"
// (nil) from "clear the association" (pointer to nil).
type ArticlePatch struct {
	Title         *string
	Category      *string
	Tags          *[]string
	IsRead        *bool
	IsFavorite    *bool
	IsArchived    *bool
	Thumbnail     *string
	Excerpt       *string
	Content       *string
	Highlights    *[]Highlight
	ReadProgress  *int
	FolderID      **string
	LastReadAt    *time.Time
	ReadCount     *int
	TotalReadTime *int64
}

// Apply merges the patch onto the article and stamps LastModified.
// ReadProgress never decreases.
func (p ArticlePatch) Apply(a *Article) {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Category != nil {
		a.Category = *p.Category
	}
	if p.Tags != nil {
		a.Tags = *p.Tags
	}
	if p.IsRead != nil {
		a.IsRead = *p.IsRead
	}
	if p.IsFavorite != nil {
		a.IsFavorite = *p.IsFavorite
	}
	if p.IsArchived != nil {
		a.IsArchived = *p.IsArchived
	}
	if p.Thumbnail != nil {
		a.Thumbnail = *p.Thumbnail
	}
	if p.Excerpt != nil {
		a.Excerpt = *p.Excerpt
	}
	if p.Content != nil {
		a.Content = *p.Content
	}
	if p.Highlights != nil {
		a.Highlights = *p.Highlights
	}
	if p.ReadProgress != nil && *p.ReadProgress > a.ReadProgress {
		a.ReadProgress = *p.ReadProgress
	}
	if p.FolderID != nil {
		a.FolderID = *p.FolderID
	}
	if p.LastReadAt != nil {
		a.LastReadAt = p.LastReadAt
	}
	if p.ReadCount != nil {
		a.ReadCount = *p.ReadCount
	}
	if p.TotalReadTime != nil {
		a.TotalReadTime = *p.TotalReadTime
	}
	a.LastModified = time.Now().UTC()
}
