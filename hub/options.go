package hub

import (
	"fmt"
	"time"
)

// Default worker and hub timing.
const (
	DefaultRetryDelay        = 5 * time.Second
	DefaultSurrenderPoll     = 1 * time.Second
	DefaultStatusLogInterval = time.Minute
)

type options struct {
	retryDelay     time.Duration
	surrenderPoll  time.Duration
	statusInterval time.Duration
}

func newOptions(opts ...Option) (*options, error) {
	o := &options{
		retryDelay:     DefaultRetryDelay,
		surrenderPoll:  DefaultSurrenderPoll,
		statusInterval: DefaultStatusLogInterval,
	}

	for _, opt := range opts {
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Option is a functional option for workers and the hub.
type Option interface {
	apply(*options) error
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error { return f(o) }

// WithRetryDelay sets the wait between failed opens, and after a lost line.
func WithRetryDelay(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("hub: retry delay %v must be positive", d)
		}
		o.retryDelay = d

		return nil
	})
}

// WithSurrenderPollInterval sets how often a worker whose line is
// surrendered checks whether it has been restored.
func WithSurrenderPollInterval(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("hub: surrender poll interval %v must be positive", d)
		}
		o.surrenderPoll = d

		return nil
	})
}

// WithStatusLogInterval sets how often the hub logs the phase of every
// worker.
func WithStatusLogInterval(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("hub: status log interval %v must be positive", d)
		}
		o.statusInterval = d

		return nil
	})
}
