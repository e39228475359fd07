package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-serialhub/internal/task"
	"github.com/arloliu/go-serialhub/logger"
	"github.com/arloliu/go-serialhub/serialport"
	"github.com/arloliu/go-serialhub/session"
)

// ErrDuplicatePort is returned by New when two lines name the same device.
var ErrDuplicatePort = errors.New("hub: duplicate port")

// Hub starts and stops the workers of all configured lines.
type Hub struct {
	env     *session.Env
	opts    *options
	logger  logger.Logger
	taskMgr *task.Manager
	order   []string
	workers *xsync.MapOf[string, *Worker]
}

// WorkerStatus is a point-in-time view of one worker.
type WorkerStatus struct {
	ID           string
	Name         string
	Phase        Phase
	Opens        uint64
	OpenFailures uint64
	Sessions     uint64
	Surrenders   uint64
}

// Summary counts workers by phase.
type Summary struct {
	Lines       int
	Open        int
	Surrendered int
	Stopped     int
	// Tasks is the number of running hub goroutines, workers included.
	Tasks int
}

// New validates env and creates a worker for every line in ports. Workers
// start with Start.
func New(ctx context.Context, env *session.Env, ports []*serialport.PortConfig, opts ...Option) (*Hub, error) {
	if env == nil {
		return nil, errors.New("hub: session env is nil")
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}

	h := &Hub{
		env:     env,
		opts:    o,
		logger:  env.Logger,
		taskMgr: task.NewManager(ctx, env.Logger),
		workers: xsync.NewMapOf[string, *Worker](),
	}

	for _, cfg := range ports {
		if cfg == nil {
			return nil, errors.New("hub: port config is nil")
		}

		w := newWorker(cfg, env, o)
		if _, loaded := h.workers.LoadOrStore(cfg.Key(), w); loaded {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePort, cfg.ID())
		}
		h.order = append(h.order, cfg.Key())
	}

	return h, nil
}

// Start launches every worker and the periodic status log.
func (h *Hub) Start() error {
	for _, key := range h.order {
		w, _ := h.workers.Load(key)

		err := h.taskMgr.Go("worker/"+key, func(ctx context.Context) {
			if err := w.Run(ctx); err != nil {
				h.logger.Warn("worker exited", "port", w.ID(), "error", err)
			}
		})
		if err != nil {
			return err
		}
	}

	h.logger.Info("hub started", "lines", len(h.order))

	return h.taskMgr.StartInterval("status", func() bool {
		h.logStatus()
		return true
	}, h.opts.statusInterval, false)
}

// Stop ends every session and worker and waits for them to return.
func (h *Hub) Stop() {
	h.taskMgr.Stop()
	h.taskMgr.Wait()
	h.logger.Info("hub stopped")
}

// Env returns the environment shared by all sessions.
func (h *Hub) Env() *session.Env { return h.env }

// Worker returns the worker of the line id.
func (h *Hub) Worker(id string) (*Worker, bool) {
	return h.workers.Load(serialport.NormalizeID(id))
}

// Status returns the status of every worker, ordered by port identifier.
func (h *Hub) Status() []WorkerStatus {
	out := make([]WorkerStatus, 0, h.workers.Size())

	h.workers.Range(func(_ string, w *Worker) bool {
		m := w.Metrics()
		out = append(out, WorkerStatus{
			ID:           w.ID(),
			Name:         w.Config().Name(),
			Phase:        w.Phase(),
			Opens:        m.OpenCount.Load(),
			OpenFailures: m.OpenFailCount.Load(),
			Sessions:     m.SessionCount.Load(),
			Surrenders:   m.SurrenderCount.Load(),
		})

		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Summary returns worker counts by phase.
func (h *Hub) Summary() Summary {
	sum := Summary{Tasks: h.taskMgr.TaskCount()}
	for _, st := range h.Status() {
		sum.Lines++
		switch {
		case st.Phase.IsOpen():
			sum.Open++
		case st.Phase.IsSurrendered():
			sum.Surrendered++
		case st.Phase.IsStopped():
			sum.Stopped++
		}
	}

	return sum
}

func (h *Hub) logStatus() {
	for _, st := range h.Status() {
		h.logger.Info("line status",
			"port", st.ID,
			"line", st.Name,
			"phase", st.Phase.String(),
			"opens", st.Opens,
			"open_failures", st.OpenFailures,
			"sessions", st.Sessions,
			"surrenders", st.Surrenders,
		)
	}

	sum := h.Summary()
	em := h.env.Engine.Metrics()
	snap := h.env.Registry.Snapshot()
	h.logger.Info("hub status",
		"lines", sum.Lines,
		"open", sum.Open,
		"surrendered_lines", sum.Surrendered,
		"stopped", sum.Stopped,
		"tasks", sum.Tasks,
		"transfers_ok", em.TransferOKCount.Load(),
		"transfers_failed", em.TransferErrCount.Load(),
		"block_retries", em.RetryCount.Load(),
		"owned", len(snap.Owned),
		"surrendered", snap.Surrendered,
	)
}
