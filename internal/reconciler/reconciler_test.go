package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingFlusher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFlusher) FlushPending(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStartFlushesImmediatelyThenTicks(t *testing.T) {
	flusher := &countingFlusher{}
	r := New(flusher, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return flusher.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond, "expected immediate flush plus at least one tick")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestFlushErrorDoesNotStopLoop(t *testing.T) {
	flusher := &countingFlusher{err: errors.New("remote down")}
	r := New(flusher, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return flusher.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
