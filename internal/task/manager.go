// Package task manages the lifecycle of the hub's long-running goroutines.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-serialhub/logger"
)

// Func is run by Manager.Go once; it should return when ctx is done.
type Func func(ctx context.Context)

// LoopFunc is called on every tick by Manager.StartInterval.
// It should return true to continue running the task, or false to stop the goroutine.
type LoopFunc func() bool

// Manager manages the lifecycle of goroutines (tasks).
//
// Every task receives a context derived from the manager's parent context.
// Stop cancels that context; Wait blocks until every task has returned.
// A panic inside a task is recovered and logged so that one misbehaving
// task never takes the process down.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//	mgr.Go("worker/COM4", func(ctx context.Context) {
//	    // ... runs until ctx is done ...
//	})
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx    context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
	count   atomic.Int32
	tickers sync.Map // map[string]*time.Ticker
	mu      sync.RWMutex
}

// NewManager creates a new Manager with the given context as the parent context and logger.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

func (mgr *Manager) getContext() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Go starts fn in a new goroutine. fn is called exactly once.
func (mgr *Manager) Go(name string, fn Func) error {
	ctx := mgr.getContext()
	if ctx.Err() != nil {
		return fmt.Errorf("task manager already stopped, cannot start %s", name)
	}

	mgr.logger.Debug("start task", "name", name)
	mgr.spawn(name, func() {
		mgr.callWithRecover(name, func() { fn(ctx) })
	})

	return nil
}

// StartInterval starts a new goroutine that executes loopFunc at the specified interval.
// If runNow is true, loopFunc is executed immediately before starting the interval.
func (mgr *Manager) StartInterval(name string, loopFunc LoopFunc, interval time.Duration, runNow bool) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval: %v", interval)
	}

	ctx := mgr.getContext()
	if ctx.Err() != nil {
		return fmt.Errorf("task manager already stopped, cannot start %s", name)
	}

	ticker := time.NewTicker(interval)
	if _, loaded := mgr.tickers.LoadOrStore(name, ticker); loaded {
		ticker.Stop()
		return fmt.Errorf("interval task %s already exists", name)
	}

	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "runNow", runNow)
	mgr.spawn(name, func() {
		defer func() {
			ticker.Stop()
			mgr.tickers.Delete(name)
		}()

		if runNow && !mgr.callWithRecoverBool(name, loopFunc) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.callWithRecoverBool(name, loopFunc) {
					return
				}
			}
		}
	})

	return nil
}

// Stop signals all running goroutines.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.cancel != nil {
		mgr.cancel()
	}
}

// Wait waits for all goroutines to terminate, then re-arms the manager so
// that new tasks can be started again.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()

	mgr.mu.Lock()
	if mgr.ctx.Err() != nil {
		mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	}
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) spawn(name string, body func()) {
	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		body()
	}()
}

func (mgr *Manager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}

// callWithRecoverBool stops the task (returns false) when fn panics.
func (mgr *Manager) callWithRecoverBool(name string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			ok = false
		}
	}()

	return fn()
}
