// Package server exposes the reading list over a local HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"readlater/internal/domain"
	"readlater/internal/extract"
)

// Articles is the sync session surface the API mutates through. Writes go
// local-first and mirror remotely when a session is live.
type Articles interface {
	AddArticle(ctx context.Context, article domain.Article) (domain.WriteResult, error)
	UpdateArticle(ctx context.Context, id string, patch domain.ArticlePatch) (domain.WriteResult, error)
	DeleteArticle(ctx context.Context, id string) (domain.WriteResult, error)
	Status() domain.SyncStatus
}

// Library is the read and folder/highlight surface of the local cache.
type Library interface {
	Articles() ([]domain.Article, error)
	GetArticle(id string) (domain.Article, error)
	Folders() ([]domain.Folder, error)
	AddFolder(f domain.Folder) error
	RenameFolder(id, name, color string) error
	DeleteFolder(id string) error
	SaveReadProgress(id string, percent int) (domain.Article, error)
	AddHighlight(articleID string, h domain.Highlight) (domain.Article, error)
	UpdateHighlightNote(articleID, highlightID, note string) (domain.Article, error)
	RemoveHighlight(articleID, highlightID string) (domain.Article, error)
}

// Fetcher retrieves raw HTML for a URL.
type Fetcher interface {
	FetchHTML(ctx context.Context, target string) (string, error)
}

// Extractor turns raw HTML into readable article content.
type Extractor func(html string) extract.Result

// Tracker records reading sessions and answers statistics queries.
type Tracker interface {
	StartSession(articleID string) string
	EndSession(sessionID string) (domain.ReadingSession, error)
	Stats() (domain.ReadingStats, error)
}

type Server struct {
	articles Articles
	library  Library
	fetcher  Fetcher
	extract  Extractor
	tracker  Tracker
	logger   *slog.Logger
}

func New(articles Articles, library Library, fetcher Fetcher, extract Extractor, tracker Tracker, logger *slog.Logger) *Server {
	return &Server{
		articles: articles,
		library:  library,
		fetcher:  fetcher,
		extract:  extract,
		tracker:  tracker,
		logger:   logger.With("component", "server"),
	}
}

func (s *Server) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)

	mux.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthcheck", s.healthcheck)

		r.Route("/articles", func(r chi.Router) {
			r.Get("/", s.listArticles)
			r.Post("/", s.saveArticle)
			r.Get("/{id}", s.getArticle)
			r.Patch("/{id}", s.updateArticle)
			r.Delete("/{id}", s.deleteArticle)
			r.Put("/{id}/progress", s.saveProgress)
			r.Post("/{id}/highlights", s.addHighlight)
			r.Patch("/{id}/highlights/{highlightID}", s.updateHighlightNote)
			r.Delete("/{id}/highlights/{highlightID}", s.removeHighlight)
		})

		r.Route("/folders", func(r chi.Router) {
			r.Get("/", s.listFolders)
			r.Post("/", s.addFolder)
			r.Patch("/{id}", s.renameFolder)
			r.Delete("/{id}", s.deleteFolder)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.startSession)
			r.Post("/{id}/end", s.endSession)
		})

		r.Get("/stats", s.stats)
		r.Get("/sync/status", s.syncStatus)
	})

	return mux
}

func (s *Server) healthcheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.library.Articles()
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, articles)
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	article, err := s.library.GetArticle(chi.URLParam(r, "id"))
	if err != nil {
		s.libraryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, article)
}

type saveArticleRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type saveArticleResponse struct {
	Article     domain.Article `json:"article"`
	Synced      bool           `json:"synced"`
	Duplicate   bool           `json:"duplicate"`
	DuplicateID string         `json:"duplicateId,omitempty"`
	Extracted   bool           `json:"extracted"`
}

// saveArticle runs the full capture pipeline: fetch the page through the
// fallback chain, extract readable content, and store the result. A fetch
// or extraction failure still saves the bare URL so nothing is lost; the
// Extracted flag tells the client whether to offer manual entry.
func (s *Server) saveArticle(w http.ResponseWriter, r *http.Request) {
	var req saveArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.clientError(w, http.StatusBadRequest, "url is required")
		return
	}

	article := domain.NewArticle(req.URL, req.Title)

	extracted := false
	html, err := s.fetcher.FetchHTML(r.Context(), req.URL)
	if err != nil {
		s.logger.Warn("fetch failed, saving bare link", "url", req.URL, "error", err)
	} else {
		result := s.extract(html)
		if result.Title != "" && article.Title == "" {
			article.Title = result.Title
		}
		article.Excerpt = result.Description
		article.Thumbnail = result.Image
		article.Content = result.Content
		// Near-empty content means the heuristics found nothing readable;
		// whatever was salvaged is kept, but it does not count as a
		// successful extraction.
		extracted = !result.Failed()
	}
	if article.Title == "" {
		article.Title = req.URL
	}

	res, err := s.articles.AddArticle(r.Context(), article)
	if err != nil {
		s.serverError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, saveArticleResponse{
		Article:     article,
		Synced:      res.RemoteOK,
		Duplicate:   res.Duplicate,
		DuplicateID: res.DuplicateID,
		Extracted:   extracted,
	})
}

type updateArticleRequest struct {
	Title        *string      `json:"title"`
	Category     *string      `json:"category"`
	Tags         *[]string    `json:"tags"`
	IsRead       *bool        `json:"isRead"`
	IsFavorite   *bool        `json:"isFavorite"`
	IsArchived   *bool        `json:"isArchived"`
	Excerpt      *string      `json:"excerpt"`
	Content      *string      `json:"content"`
	ReadProgress *int         `json:"readProgress"`
	FolderID     jsonOptional `json:"folderId"`
}

// jsonOptional distinguishes an absent JSON field from an explicit null.
// Needed for folderId, where null means "remove from folder".
type jsonOptional struct {
	Present bool
	Value   *string
}

func (o *jsonOptional) UnmarshalJSON(data []byte) error {
	o.Present = true
	if string(data) == "null" {
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (s *Server) updateArticle(w http.ResponseWriter, r *http.Request) {
	var req updateArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid body")
		return
	}

	patch := domain.ArticlePatch{
		Title:        req.Title,
		Category:     req.Category,
		Tags:         req.Tags,
		IsRead:       req.IsRead,
		IsFavorite:   req.IsFavorite,
		IsArchived:   req.IsArchived,
		Excerpt:      req.Excerpt,
		Content:      req.Content,
		ReadProgress: req.ReadProgress,
	}
	if req.FolderID.Present {
		patch.FolderID = &req.FolderID.Value
	}

	res, err := s.articles.UpdateArticle(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.libraryError(w, err)
		return
	}

	article, err := s.library.GetArticle(chi.URLParam(r, "id"))
	if err != nil {
		s.libraryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"article": article, "synced": res.RemoteOK})
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	if _, err := s.articles.DeleteArticle(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) saveProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Progress int `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid body")
		return
	}

	article, err := s.library.SaveReadProgress(chi.URLParam(r, "id"), req.Progress)
	if err != nil {
		s.libraryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, article)
}

func (s *Server) addHighlight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text  string   `json:"text"`
		Color string   `json:"color"`
		Note  string   `json:"note"`
		Tags  []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		s.clientError(w, http.StatusBadRequest, "text is required")
		return
	}

	h := domain.NewHighlight(req.Text, req.Color)
	h.Note = req.Note
	if len(req.Tags) > 0 {
		h.Tags = req.Tags
	}

	article, err := s.library.AddHighlight(chi.URLParam(r, "id"), h)
	if err != nil {
		s.libraryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, article)
}

func (s *Server) updateHighlightNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid body")
		return
	}

	article, err := s.library.UpdateHighlightNote(chi.URLParam(r, "id"), chi.URLParam(r, "highlightID"), req.Note)
	if err != nil {
		s.libraryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, article)
}

func (s *Server) removeHighlight(w http.ResponseWriter, r *http.Request) {
	article, err := s.library.RemoveHighlight(chi.URLParam(r, "id"), chi.URLParam(r, "highlightID"))
	if err != nil {
		s.libraryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, article)
}

func (s *Server) listFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.library.Folders()
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, folders)
}

func (s *Server) addFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.clientError(w, http.StatusBadRequest, "name is required")
		return
	}

	folder := domain.Folder{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Color:     req.Color,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.library.AddFolder(folder); err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, folder)
}

func (s *Server) renameFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := s.library.RenameFolder(chi.URLParam(r, "id"), req.Name, req.Color); err != nil {
		s.libraryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := s.library.DeleteFolder(chi.URLParam(r, "id")); err != nil {
		s.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ArticleID string `json:"articleId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ArticleID == "" {
		s.clientError(w, http.StatusBadRequest, "articleId is required")
		return
	}

	id := s.tracker.StartSession(req.ArticleID)
	s.writeJSON(w, http.StatusCreated, map[string]string{"sessionId": id})
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.tracker.EndSession(chi.URLParam(r, "id"))
	if err != nil {
		s.libraryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.tracker.Stats()
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(s.articles.Status())})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) clientError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// libraryError maps not-found onto 404 and everything else onto 500.
func (s *Server) libraryError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	s.serverError(w, err)
}
