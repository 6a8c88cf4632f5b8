// Package tags reconciles case-variant duplicate tags across the cached
// collection. "golang", "Golang" and "GoLang" are the same tag; the casing
// seen most often wins and every record is rewritten to use it.
package tags

import (
	"log/slog"
	"strings"

	"readlater/internal/domain"
)

// Store is the slice of the local cache the normalizer needs. The pass
// writes locally only: bulk re-casing on every start must not generate
// remote write traffic, so remote sync of the result happens lazily on the
// next unrelated edit to an affected article.
type Store interface {
	Articles() ([]domain.Article, error)
	ReplaceArticles(articles []domain.Article) error
}

// Normalizer is the idempotent startup maintenance pass.
type Normalizer struct {
	store  Store
	logger *slog.Logger
}

// New creates a normalizer over the local cache.
func New(store Store, logger *slog.Logger) *Normalizer {
	return &Normalizer{store: store, logger: logger.With("component", "tags")}
}

// Run rewrites every tag to its canonical casing and persists only when at
// least one article actually changed. Running it twice in a row with no
// intervening edits produces zero second-pass writes.
func (n *Normalizer) Run() (changed int, err error) {
	articles, err := n.store.Articles()
	if err != nil {
		return 0, err
	}
	if len(articles) == 0 {
		return 0, nil
	}

	canonical := canonicalForms(articles)

	for i := range articles {
		dirty := rewrite(articles[i].Tags, canonical)
		for j := range articles[i].Highlights {
			if rewrite(articles[i].Highlights[j].Tags, canonical) {
				dirty = true
			}
		}
		if dirty {
			changed++
		}
	}

	if changed == 0 {
		return 0, nil
	}

	n.logger.Info("normalized tag casing", "articles_changed", changed)
	return changed, n.store.ReplaceArticles(articles)
}

// canonicalForms groups every tag by its lowercase key and elects the most
// frequent casing per group. Frequency ties break to the lexicographically
// smallest variant so the result does not depend on iteration order.
func canonicalForms(articles []domain.Article) map[string]string {
	counts := make(map[string]map[string]int)

	observe := func(tag string) {
		key := strings.ToLower(tag)
		if counts[key] == nil {
			counts[key] = make(map[string]int)
		}
		counts[key][tag]++
	}

	for _, a := range articles {
		for _, tag := range a.Tags {
			observe(tag)
		}
		for _, h := range a.Highlights {
			for _, tag := range h.Tags {
				observe(tag)
			}
		}
	}

	canonical := make(map[string]string, len(counts))
	for key, variants := range counts {
		var best string
		bestCount := -1
		for variant, count := range variants {
			if count > bestCount || (count == bestCount && variant < best) {
				best = variant
				bestCount = count
			}
		}
		canonical[key] = best
	}
	return canonical
}

func rewrite(tagList []string, canonical map[string]string) (dirty bool) {
	for i, tag := range tagList {
		if want := canonical[strings.ToLower(tag)]; want != tag {
			tagList[i] = want
			dirty = true
		}
	}
	return dirty
}
