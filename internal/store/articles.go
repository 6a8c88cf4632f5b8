package store

import (
	"fmt"
	"time"

	"readlater/internal/domain"
)

// Articles returns the full article collection.
func (s *Store) Articles() ([]domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articlesLocked()
}

func (s *Store) articlesLocked() ([]domain.Article, error) {
	var articles []domain.Article
	if err := s.getBlob(nsArticles, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// GetArticle returns one article by id.
func (s *Store) GetArticle(id string) (domain.Article, error) {
	articles, err := s.Articles()
	if err != nil {
		return domain.Article{}, err
	}
	for _, a := range articles {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Article{}, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
}

// ReplaceArticles overwrites the whole collection. Used by the sync engine
// when a remote snapshot becomes authoritative and on sign-out.
func (s *Store) ReplaceArticles(articles []domain.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if articles == nil {
		articles = []domain.Article{}
	}
	return s.putBlob(nsArticles, articles)
}

// AddArticle appends the article. When another record's URL normalizes to
// the same key, the new article is still stored and the colliding id is
// returned; duplicates are a decision for the caller, not an error.
func (s *Store) AddArticle(a domain.Article) (dupID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.articlesLocked()
	if err != nil {
		return "", err
	}

	key := domain.NormalizeURL(a.URL)
	for _, existing := range articles {
		if domain.NormalizeURL(existing.URL) == key {
			dupID = existing.ID
			break
		}
	}

	a.Normalize()
	if err := s.putBlob(nsArticles, append(articles, a)); err != nil {
		return "", err
	}
	return dupID, nil
}

// UpdateArticle shallow-merges the patch onto the stored record and returns
// the updated article. Unspecified fields are preserved.
func (s *Store) UpdateArticle(id string, patch domain.ArticlePatch) (domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.articlesLocked()
	if err != nil {
		return domain.Article{}, err
	}

	for i := range articles {
		if articles[i].ID != id {
			continue
		}
		patch.Apply(&articles[i])
		if err := s.putBlob(nsArticles, articles); err != nil {
			return domain.Article{}, err
		}
		return articles[i], nil
	}

	return domain.Article{}, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
}

// DeleteArticle removes the record. Deleting an unknown id is a no-op.
func (s *Store) DeleteArticle(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.articlesLocked()
	if err != nil {
		return err
	}

	kept := articles[:0]
	for _, a := range articles {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(articles) {
		return nil
	}
	return s.putBlob(nsArticles, kept)
}

// SaveReadProgress stores the reading position. Progress is monotonic: a
// lower percentage than the stored one is ignored.
func (s *Store) SaveReadProgress(id string, percent int) (domain.Article, error) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	return s.UpdateArticle(id, domain.ArticlePatch{ReadProgress: &percent})
}

// AddHighlight appends a highlight to the article.
func (s *Store) AddHighlight(articleID string, h domain.Highlight) (domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.articlesLocked()
	if err != nil {
		return domain.Article{}, err
	}

	for i := range articles {
		if articles[i].ID != articleID {
			continue
		}
		articles[i].Highlights = append(articles[i].Highlights, h)
		articles[i].LastModified = time.Now().UTC()
		if err := s.putBlob(nsArticles, articles); err != nil {
			return domain.Article{}, err
		}
		return articles[i], nil
	}

	return domain.Article{}, fmt.Errorf("article %s: %w", articleID, domain.ErrNotFound)
}

// UpdateHighlightNote rewrites the note on one highlight. The highlighted
// text itself is immutable.
func (s *Store) UpdateHighlightNote(articleID, highlightID, note string) (domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.articlesLocked()
	if err != nil {
		return domain.Article{}, err
	}

	for i := range articles {
		if articles[i].ID != articleID {
			continue
		}
		for j := range articles[i].Highlights {
			if articles[i].Highlights[j].ID != highlightID {
				continue
			}
			articles[i].Highlights[j].Note = note
			articles[i].LastModified = time.Now().UTC()
			if err := s.putBlob(nsArticles, articles); err != nil {
				return domain.Article{}, err
			}
			return articles[i], nil
		}
		return domain.Article{}, fmt.Errorf("highlight %s: %w", highlightID, domain.ErrNotFound)
	}

	return domain.Article{}, fmt.Errorf("article %s: %w", articleID, domain.ErrNotFound)
}

// RemoveHighlight deletes one highlight from the article.
func (s *Store) RemoveHighlight(articleID, highlightID string) (domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.articlesLocked()
	if err != nil {
		return domain.Article{}, err
	}

	for i := range articles {
		if articles[i].ID != articleID {
			continue
		}
		kept := articles[i].Highlights[:0]
		for _, h := range articles[i].Highlights {
			if h.ID != highlightID {
				kept = append(kept, h)
			}
		}
		articles[i].Highlights = kept
		articles[i].LastModified = time.Now().UTC()
		if err := s.putBlob(nsArticles, articles); err != nil {
			return domain.Article{}, err
		}
		return articles[i], nil
	}

	return domain.Article{}, fmt.Errorf("article %s: %w", articleID, domain.ErrNotFound)
}
