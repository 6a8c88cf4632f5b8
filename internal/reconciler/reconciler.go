// Package reconciler periodically retries writes that failed to reach the
// remote store. Writes marked pending by the sync session stay in the
// local cache until a flush pass pushes them through.
package reconciler

import (
	"context"
	"log/slog"
	"time"
)

// Flusher retries pending remote writes.
type Flusher interface {
	FlushPending(ctx context.Context) error
}

type Reconciler struct {
	flusher  Flusher
	interval time.Duration
	logger   *slog.Logger
}

func New(flusher Flusher, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		flusher:  flusher,
		interval: interval,
		logger:   logger.With("component", "reconciler"),
	}
}

// Start runs an immediate flush and then one per interval until the
// context is cancelled.
func (r *Reconciler) Start(ctx context.Context) error {
	r.logger.Info("reconciler started", "interval", r.interval)

	r.runFlush(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.runFlush(ctx)
		}
	}
}

func (r *Reconciler) runFlush(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := r.flusher.FlushPending(flushCtx); err != nil {
		r.logger.Error("pending flush failed", "error", err)
	}
}
