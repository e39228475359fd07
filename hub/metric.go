package hub

import "sync/atomic"

// WorkerMetrics contains atomic counters of a Worker.
type WorkerMetrics struct {
	// OpenCount is the number of successful opens of the line.
	OpenCount atomic.Uint64
	// OpenFailCount is the number of failed open attempts.
	OpenFailCount atomic.Uint64
	// SessionCount is the number of sessions run on the line.
	SessionCount atomic.Uint64
	// SurrenderCount is the number of times the line was taken by a bridge.
	SurrenderCount atomic.Uint64
}

func (m *WorkerMetrics) incOpenCount() { m.OpenCount.Add(1) }

func (m *WorkerMetrics) incOpenFailCount() { m.OpenFailCount.Add(1) }

func (m *WorkerMetrics) incSessionCount() { m.SessionCount.Add(1) }

func (m *WorkerMetrics) incSurrenderCount() { m.SurrenderCount.Add(1) }
