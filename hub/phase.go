package hub

import "sync/atomic"

// Phase is the lifecycle phase of a Worker.
type Phase uint32

const (
	// PhaseNeverOpened is the phase before the first open attempt finished.
	PhaseNeverOpened Phase = iota
	// PhaseOpen means the worker holds the line and runs a session on it.
	PhaseOpen
	// PhaseRetrying means the last open failed or the line was lost.
	PhaseRetrying
	// PhaseSurrendered means a bridge holds the line; the worker waits for
	// it to be restored.
	PhaseSurrendered
	// PhasePermanentlyStopped means the worker has exited and will not
	// open the line again.
	PhasePermanentlyStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseNeverOpened:
		return "never_opened"
	case PhaseOpen:
		return "open"
	case PhaseRetrying:
		return "retrying"
	case PhaseSurrendered:
		return "surrendered"
	case PhasePermanentlyStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (p Phase) IsOpen() bool { return p == PhaseOpen }

func (p Phase) IsSurrendered() bool { return p == PhaseSurrendered }

// IsStopped reports whether the worker has exited for good.
func (p Phase) IsStopped() bool { return p == PhasePermanentlyStopped }

// AtomicPhase holds a Phase that can be read from any goroutine.
type AtomicPhase struct {
	phase atomic.Uint32
}

func (ap *AtomicPhase) String() string {
	return ap.Get().String()
}

// Get returns the current phase.
func (ap *AtomicPhase) Get() Phase {
	return Phase(ap.phase.Load())
}

// Set stores phase unless the worker is already permanently stopped.
// It reports whether the phase was stored.
func (ap *AtomicPhase) Set(phase Phase) bool {
	for {
		cur := ap.phase.Load()
		if Phase(cur).IsStopped() {
			return false
		}

		if ap.phase.CompareAndSwap(cur, uint32(phase)) {
			return true
		}
	}
}
