// Package sync reconciles the local cache with the remote document store.
// The session is local-first: every mutation lands in the local store
// before any remote write is attempted, so the operation succeeds offline
// and a crash after the call returns loses nothing.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"

	"readlater/internal/domain"
)

// State is the lifecycle position of the sync session.
type State int

const (
	// StateUnauthenticated: no identity; the local cache is the sole
	// source of truth.
	StateUnauthenticated State = iota
	// StateSubscribing: signed in, waiting for the first remote snapshot.
	StateSubscribing
	// StateLive: snapshots flowing; remote is authoritative.
	StateLive
	// StateDegraded: subscription hit a transient error; local cache
	// serves reads until recovery.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	default:
		return "unauthenticated"
	}
}

// Mutation event actions handed to the publisher.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Session owns the sync state machine for one identity. All auth and
// subscription state lives here rather than in package globals.
type Session struct {
	mu      stdsync.Mutex
	state   State
	status  domain.SyncStatus
	uid     string
	stopSub func()

	local     LocalStore
	remote    RemoteStore
	auth      AuthProvider
	publisher Publisher
	logger    *slog.Logger

	// warn surfaces permission-denied notices to the user. Transient
	// network loss stays silent.
	warn func(message string)
}

// NewSession wires a sync session. auth may be nil when sync is
// unconfigured; publisher may be nil when event fan-out is disabled.
func NewSession(local LocalStore, remote RemoteStore, auth AuthProvider, publisher Publisher, logger *slog.Logger) *Session {
	return &Session{
		state:     StateUnauthenticated,
		status:    domain.SyncStatusLocal,
		local:     local,
		remote:    remote,
		auth:      auth,
		publisher: publisher,
		logger:    logger.With("component", "sync"),
		warn:      func(string) {},
	}
}

// OnWarning registers the hook for user-visible sync warnings.
func (s *Session) OnWarning(fn func(message string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.warn = fn
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the user-visible sync indicator.
func (s *Session) Status() domain.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SignIn opens the live subscription for the authenticated identity. Any
// existing subscription is torn down first; at most one may be live.
func (s *Session) SignIn() error {
	if s.auth == nil || !s.auth.IsAuthenticated() {
		return fmt.Errorf("sign in: %w", domain.ErrAuthExpired)
	}
	identity := s.auth.CurrentIdentity()
	if identity == nil {
		return fmt.Errorf("sign in: %w", domain.ErrAuthExpired)
	}

	s.mu.Lock()
	s.teardownLocked()
	s.uid = identity.UID
	s.state = StateSubscribing
	s.status = domain.SyncStatusSyncing
	s.mu.Unlock()

	s.logger.Info("subscribing to remote collection", "uid", identity.UID)

	stop := s.remote.Subscribe(identity.UID, s.applySnapshot, s.subscriptionError)

	s.mu.Lock()
	s.stopSub = stop
	s.mu.Unlock()

	return nil
}

// SignOut tears down the subscription and clears the locally cached
// article collection so one account's data cannot leak into the next
// session on a shared device. The pending set goes with it: replaying the
// previous account's unpushed writes against the next account would leak
// state across identities.
func (s *Session) SignOut() error {
	s.mu.Lock()
	s.teardownLocked()
	s.uid = ""
	s.state = StateUnauthenticated
	s.status = domain.SyncStatusLocal
	s.mu.Unlock()

	s.logger.Info("signed out, clearing cached collection")
	if err := s.local.ClearAllPending(); err != nil {
		return fmt.Errorf("clear pending set: %w", err)
	}
	return s.local.ReplaceArticles(nil)
}

func (s *Session) teardownLocked() {
	if s.stopSub != nil {
		s.stopSub()
		s.stopSub = nil
	}
}

// applySnapshot makes the remote snapshot authoritative: the local article
// collection is replaced wholesale. Records in the pending set — local
// changes not yet confirmed remotely — are overlaid on top so a snapshot
// racing a local edit cannot silently discard it.
func (s *Session) applySnapshot(snapshot []domain.Article) {
	for i := range snapshot {
		snapshot[i].Normalize()
	}

	pending, err := s.local.PendingIDs()
	if err != nil {
		s.logger.Error("read pending set", "error", err)
		pending = nil
	}

	if len(pending) > 0 {
		snapshot = s.overlayPending(snapshot, pending)
	}

	if err := s.local.ReplaceArticles(snapshot); err != nil {
		s.logger.Error("apply snapshot", "error", err)
		s.mu.Lock()
		s.state = StateDegraded
		s.status = domain.SyncStatusError
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.state = StateLive
	if len(pending) > 0 {
		s.status = domain.SyncStatusSyncing
	} else {
		s.status = domain.SyncStatusSynced
	}
	s.mu.Unlock()

	s.logger.Debug("snapshot applied", "articles", len(snapshot), "pending", len(pending))
}

func (s *Session) overlayPending(snapshot []domain.Article, pendingIDs []string) []domain.Article {
	local, err := s.local.Articles()
	if err != nil {
		s.logger.Error("read local articles for overlay", "error", err)
		return snapshot
	}

	localByID := make(map[string]domain.Article, len(local))
	for _, a := range local {
		localByID[a.ID] = a
	}

	pending := make(map[string]bool, len(pendingIDs))
	for _, id := range pendingIDs {
		pending[id] = true
	}

	seen := make(map[string]bool, len(snapshot))
	merged := make([]domain.Article, 0, len(snapshot))
	for _, a := range snapshot {
		seen[a.ID] = true
		if pending[a.ID] {
			// The local edit has not been pushed yet; it wins over the
			// remote copy until confirmed.
			if localCopy, ok := localByID[a.ID]; ok {
				merged = append(merged, localCopy)
				continue
			}
		}
		merged = append(merged, a)
	}

	// Local-only additions the remote has never seen.
	for _, id := range pendingIDs {
		if seen[id] {
			continue
		}
		if localCopy, ok := localByID[id]; ok {
			merged = append(merged, localCopy)
		}
	}

	return merged
}

func (s *Session) subscriptionError(err error) {
	s.mu.Lock()
	s.state = StateDegraded
	s.status = domain.SyncStatusError
	s.mu.Unlock()

	if errors.Is(err, domain.ErrPermissionDenied) {
		// Configuration problem the user must act on, unlike transient
		// network loss which stays silent.
		s.logger.Error("subscription rejected", "error", err)
		s.warn("sync access denied: check account permissions")
		return
	}

	s.logger.Warn("subscription degraded", "error", err)
}

// AddArticle saves a new article: local cache first, then a mirrored
// remote write when authenticated. A normalized-URL collision is reported
// in the result, never treated as an error.
func (s *Session) AddArticle(ctx context.Context, article domain.Article) (domain.WriteResult, error) {
	article.Normalize()

	dupID, err := s.local.AddArticle(article)
	if err != nil {
		return domain.WriteResult{}, fmt.Errorf("local add: %w", err)
	}

	res := domain.WriteResult{LocalOK: true}
	if dupID != "" {
		res.Duplicate = true
		res.DuplicateID = dupID
	}

	res.RemoteOK = s.mirror(ctx, article.ID, func(ctx context.Context) error {
		return s.remote.SetArticle(ctx, s.currentUID(), article, false)
	})

	s.publish(ctx, ActionCreate, &article)
	return res, nil
}

// UpdateArticle applies a partial update locally, then mirrors it with
// merge semantics so concurrent edits do not clobber unrelated fields.
func (s *Session) UpdateArticle(ctx context.Context, id string, patch domain.ArticlePatch) (domain.WriteResult, error) {
	updated, err := s.local.UpdateArticle(id, patch)
	if err != nil {
		return domain.WriteResult{}, fmt.Errorf("local update: %w", err)
	}

	res := domain.WriteResult{LocalOK: true}
	res.RemoteOK = s.mirror(ctx, id, func(ctx context.Context) error {
		return s.remote.SetArticle(ctx, s.currentUID(), updated, true)
	})

	s.publish(ctx, ActionUpdate, &updated)
	return res, nil
}

// DeleteArticle removes the article locally and remotely.
func (s *Session) DeleteArticle(ctx context.Context, id string) (domain.WriteResult, error) {
	article, err := s.local.GetArticle(id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.WriteResult{}, fmt.Errorf("local read: %w", err)
	}

	if err := s.local.DeleteArticle(id); err != nil {
		return domain.WriteResult{}, fmt.Errorf("local delete: %w", err)
	}

	res := domain.WriteResult{LocalOK: true}
	res.RemoteOK = s.mirror(ctx, id, func(ctx context.Context) error {
		return s.deleteRemote(ctx, id)
	})

	if article.ID != "" {
		s.publish(ctx, ActionDelete, &article)
	}
	return res, nil
}

// deleteRemote issues the remote delete. A not-found reply means the
// document is already gone, which is the state the delete wants; treating
// it as a failure would pin the id in the pending set forever.
func (s *Session) deleteRemote(ctx context.Context, id string) error {
	err := s.remote.DeleteArticle(ctx, s.currentUID(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// FlushPending re-attempts remote writes for every record in the pending
// set. Called by the reconciler while the session is live.
func (s *Session) FlushPending(ctx context.Context) error {
	if s.State() != StateLive {
		return nil
	}

	pending, err := s.local.PendingIDs()
	if err != nil {
		return fmt.Errorf("read pending set: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	s.logger.Info("flushing pending writes", "count", len(pending))

	for _, id := range pending {
		article, err := s.local.GetArticle(id)
		if errors.Is(err, domain.ErrNotFound) {
			// Deleted locally before it was ever pushed.
			s.mirror(ctx, id, func(ctx context.Context) error {
				return s.deleteRemote(ctx, id)
			})
			continue
		}
		if err != nil {
			return fmt.Errorf("read pending article %s: %w", id, err)
		}

		s.mirror(ctx, id, func(ctx context.Context) error {
			return s.remote.SetArticle(ctx, s.currentUID(), article, true)
		})
	}

	return nil
}

// mirror attempts the remote half of a mutation. The local write has
// already succeeded, so every failure path here marks the record pending
// and reports a partial (local-only) success to the caller.
//
// Failure classified as authentication-expired gets exactly one silent
// token refresh and one retry; if that also fails the session falls back
// to unauthenticated and the user must sign in again.
func (s *Session) mirror(ctx context.Context, id string, write func(ctx context.Context) error) bool {
	if s.auth == nil || !s.auth.IsAuthenticated() {
		s.markPending(id)
		return false
	}

	err := write(ctx)
	if err == nil {
		s.clearPending(id)
		s.recomputeStatus()
		return true
	}

	if errors.Is(err, domain.ErrAuthExpired) {
		s.logger.Info("remote write rejected, refreshing token", "article", id)
		if refreshErr := s.auth.RefreshToken(ctx); refreshErr == nil {
			if retryErr := write(ctx); retryErr == nil {
				s.clearPending(id)
				s.recomputeStatus()
				return true
			}
		}

		// Local write already succeeded; no data loss. Degrade and prompt
		// re-sign-in.
		s.markPending(id)
		s.mu.Lock()
		s.teardownLocked()
		s.state = StateUnauthenticated
		s.status = domain.SyncStatusLocal
		s.mu.Unlock()
		s.logger.Warn("token refresh failed, session unauthenticated", "article", id)
		return false
	}

	if errors.Is(err, domain.ErrPermissionDenied) {
		s.markPending(id)
		s.mu.Lock()
		s.status = domain.SyncStatusError
		s.mu.Unlock()
		s.logger.Error("remote write denied", "article", id, "error", err)
		s.warn("sync access denied: check account permissions")
		return false
	}

	s.markPending(id)
	s.mu.Lock()
	s.status = domain.SyncStatusError
	s.mu.Unlock()
	s.logger.Warn("remote write failed, keeping local copy pending", "article", id, "error", err)
	return false
}

// recomputeStatus heals the user-visible indicator after a confirmed
// remote write. Without it a drained pending set would keep showing the
// stale error/syncing state until the next snapshot poll.
func (s *Session) recomputeStatus() {
	if s.State() != StateLive {
		return
	}

	pending, err := s.local.PendingIDs()
	if err != nil {
		s.logger.Error("read pending set", "error", err)
		return
	}

	s.mu.Lock()
	if s.state == StateLive {
		if len(pending) == 0 {
			s.status = domain.SyncStatusSynced
		} else {
			s.status = domain.SyncStatusSyncing
		}
	}
	s.mu.Unlock()
}

func (s *Session) markPending(id string) {
	if err := s.local.MarkPending(id); err != nil {
		s.logger.Error("mark pending", "article", id, "error", err)
	}
}

func (s *Session) clearPending(id string) {
	if err := s.local.ClearPending(id); err != nil {
		s.logger.Error("clear pending", "article", id, "error", err)
	}
}

func (s *Session) currentUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uid != "" {
		return s.uid
	}
	if s.auth != nil {
		if identity := s.auth.CurrentIdentity(); identity != nil {
			return identity.UID
		}
	}
	return ""
}

func (s *Session) publish(ctx context.Context, action string, article *domain.Article) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, action, article); err != nil {
		s.logger.Warn("publish mutation event", "action", action, "error", err)
	}
}
