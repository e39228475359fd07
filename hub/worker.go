package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-serialhub/internal/pool"
	"github.com/arloliu/go-serialhub/logger"
	"github.com/arloliu/go-serialhub/serialport"
	"github.com/arloliu/go-serialhub/session"
)

// Worker owns one configured serial line for the life of the process. It
// opens the line, runs a session on it, and reopens it when the line is lost
// or handed back after a bridge.
type Worker struct {
	cfg    *serialport.PortConfig
	env    *session.Env
	opts   *options
	owner  string
	logger logger.Logger

	phase   AtomicPhase
	metrics WorkerMetrics
}

// NewWorker creates a worker for the line described by cfg. env must have
// passed Validate.
func NewWorker(cfg *serialport.PortConfig, env *session.Env, opts ...Option) (*Worker, error) {
	if cfg == nil {
		return nil, errors.New("hub: port config is nil")
	}
	if env == nil {
		return nil, errors.New("hub: session env is nil")
	}

	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}

	return newWorker(cfg, env, o), nil
}

func newWorker(cfg *serialport.PortConfig, env *session.Env, o *options) *Worker {
	return &Worker{
		cfg:    cfg,
		env:    env,
		opts:   o,
		owner:  "worker/" + cfg.Key(),
		logger: env.Logger.With("port", cfg.ID(), "line", cfg.Name()),
	}
}

// ID returns the device identifier of the line.
func (w *Worker) ID() string { return w.cfg.ID() }

// Config returns the line configuration.
func (w *Worker) Config() *serialport.PortConfig { return w.cfg }

// Phase returns the current lifecycle phase.
func (w *Worker) Phase() Phase { return w.phase.Get() }

// Metrics returns the worker counters.
func (w *Worker) Metrics() *WorkerMetrics { return &w.metrics }

// Run serves the line until ctx is done. It returns an error wrapping
// serialport.ErrDeviceAbsent when the device does not exist at the first
// open attempt; every later failure is retried.
func (w *Worker) Run(ctx context.Context) error {
	defer w.phase.Set(PhasePermanentlyStopped)

	id := w.cfg.ID()
	first := true

	for ctx.Err() == nil {
		if w.env.Registry.IsSurrendered(id) {
			if w.waitRestore(ctx) != nil {
				break
			}

			continue
		}

		port, err := w.env.Opener.Open(w.cfg)
		if err != nil {
			w.metrics.incOpenFailCount()

			if first && serialport.IsDeviceAbsent(err) {
				w.logger.Warn("device not present, line disabled", "error", err)
				return fmt.Errorf("hub: %s: %w", id, err)
			}
			first = false

			w.retry(ctx, "open failed", err)

			continue
		}
		first = false

		if err := w.env.Registry.Register(id, w.owner, port); err != nil {
			// surrendered between the open and the registration
			_ = port.Close()
			w.retry(ctx, "register failed", err)

			continue
		}

		w.metrics.incOpenCount()
		w.metrics.incSessionCount()
		w.phase.Set(PhaseOpen)
		w.logger.Info("line open", "config", w.cfg.String())

		err = w.serve(ctx, port)

		if w.env.Registry.Unregister(id, port) {
			if cerr := port.Close(); cerr != nil {
				w.logger.Debug("close line", "error", cerr)
			}
		}

		if ctx.Err() != nil {
			break
		}

		if w.env.Registry.IsSurrendered(id) {
			w.metrics.incSurrenderCount()
			w.logger.Info("line surrendered to a bridge")

			continue
		}

		w.retry(ctx, "line lost", err)
	}

	w.logger.Debug("worker stopped")

	return nil
}

// serve runs one session on the open line.
func (w *Worker) serve(ctx context.Context, port serialport.Port) error {
	return session.New(w.env, w.cfg, port).Run(ctx)
}

// retry records a transient failure and waits for the retry delay, or
// returns at once when the line has been surrendered meanwhile.
func (w *Worker) retry(ctx context.Context, msg string, err error) {
	w.phase.Set(PhaseRetrying)

	if w.env.Registry.IsSurrendered(w.cfg.ID()) {
		return
	}

	w.logger.Warn(msg, "error", err, "retry_in", w.opts.retryDelay)
	_ = pool.Sleep(ctx, w.opts.retryDelay)
}

// waitRestore polls the registry until the line is no longer surrendered.
func (w *Worker) waitRestore(ctx context.Context) error {
	w.phase.Set(PhaseSurrendered)
	w.logger.Debug("waiting for line to be restored", "poll", w.opts.surrenderPoll)

	for w.env.Registry.IsSurrendered(w.cfg.ID()) {
		if err := pool.Sleep(ctx, w.opts.surrenderPoll); err != nil {
			return err
		}
	}

	w.logger.Info("line restored")

	return nil
}
