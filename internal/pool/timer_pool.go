// Package pool keeps reusable timers for the polling loops of workers and
// sessions, which sleep in short steps for the whole life of the process.
package pool

import (
	"context"
	"sync"
	"time"
)

var timers = sync.Pool{
	New: func() any {
		t := time.NewTimer(time.Hour)
		t.Stop()

		return t
	},
}

// drain empties t.C after a Stop that raced with the timer firing.
func drain(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

// GetTimer returns a pooled timer armed for d. Hand it back with PutTimer.
//
// Pooled timers are always stopped and drained, so Reset cannot deliver a
// stale tick.
func GetTimer(d time.Duration) *time.Timer {
	t, _ := timers.Get().(*time.Timer)
	t.Reset(d)

	return t
}

// PutTimer stops t and returns it to the pool. The caller must not touch t
// afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		drain(t)
	}
	timers.Put(t)
}

// Sleep blocks for d or until ctx is done. It returns ctx.Err() when the
// context ended first, nil otherwise. A non-positive d only checks ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := GetTimer(d)
	defer PutTimer(t)

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
