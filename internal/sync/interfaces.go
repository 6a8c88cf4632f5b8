package sync

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"readlater/internal/domain"
)

// LocalStore is the durable on-device cache. It is always written first;
// remote propagation only ever happens after a local write succeeds.
type LocalStore interface {
	Articles() ([]domain.Article, error)
	GetArticle(id string) (domain.Article, error)
	ReplaceArticles(articles []domain.Article) error
	AddArticle(a domain.Article) (dupID string, err error)
	UpdateArticle(id string, patch domain.ArticlePatch) (domain.Article, error)
	DeleteArticle(id string) error
	PendingIDs() ([]string, error)
	MarkPending(id string) error
	ClearPending(id string) error
	ClearAllPending() error
}

// RemoteStore mirrors articles to the cloud document collection.
type RemoteStore interface {
	// SetArticle writes one document. Merge semantics: partial updates must
	// not clobber unrelated remote-only fields.
	SetArticle(ctx context.Context, uid string, article domain.Article, merge bool) error
	DeleteArticle(ctx context.Context, uid, articleID string) error
	// Subscribe opens a live snapshot feed ordered by creation time
	// descending. The stop function tears the subscription down.
	Subscribe(uid string, onSnapshot func([]domain.Article), onError func(error)) (stop func())
}

// AuthProvider is the slice of the auth boundary the session consumes.
type AuthProvider interface {
	IsAuthenticated() bool
	CurrentIdentity() *domain.Identity
	RefreshToken(ctx context.Context) error
}

// Publisher fans out article mutation events to downstream consumers.
// Optional; a nil Publisher disables fan-out.
type Publisher interface {
	Publish(ctx context.Context, action string, article *domain.Article) error
	Close() error
}
