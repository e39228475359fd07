package transfer

import (
	"fmt"
	"time"

	"github.com/arloliu/go-serialhub/logger"
)

// Default timing and retry values.
const (
	DefaultStartTimeout     = 20 * time.Second
	DefaultBlockTimeout     = 10 * time.Second
	DefaultEOTTimeout       = 10 * time.Second
	DefaultInterCharTimeout = 1 * time.Second
	DefaultPollInterval     = 5 * time.Millisecond
	DefaultRetryLimit       = 10

	MaxRetryLimit = 255
)

// Config holds the engine settings. Build it with NewConfig.
type Config struct {
	startTimeout       time.Duration
	blockTimeout       time.Duration
	eotTimeout         time.Duration
	interCharTimeout   time.Duration
	pollInterval       time.Duration
	retryLimit         int
	duplicateDetection bool
	logger             logger.Logger
}

// NewConfig returns the default configuration with opts applied.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		startTimeout:       DefaultStartTimeout,
		blockTimeout:       DefaultBlockTimeout,
		eotTimeout:         DefaultEOTTimeout,
		interCharTimeout:   DefaultInterCharTimeout,
		pollInterval:       DefaultPollInterval,
		retryLimit:         DefaultRetryLimit,
		duplicateDetection: true,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.logger == nil {
		cfg.logger = logger.GetLogger()
	}

	return cfg, nil
}

// StartTimeout is how long a sender waits for the receiver's start request.
func (cfg *Config) StartTimeout() time.Duration { return cfg.startTimeout }

// BlockTimeout bounds each wait for a block reply, or for a block on receive.
func (cfg *Config) BlockTimeout() time.Duration { return cfg.blockTimeout }

// EOTTimeout bounds the wait for the EOT acknowledgment.
func (cfg *Config) EOTTimeout() time.Duration { return cfg.eotTimeout }

func (cfg *Config) InterCharTimeout() time.Duration { return cfg.interCharTimeout }

func (cfg *Config) RetryLimit() int { return cfg.retryLimit }

// DuplicateDetection reports whether a retransmitted, already accepted block
// is acknowledged and dropped instead of rejected.
func (cfg *Config) DuplicateDetection() bool { return cfg.duplicateDetection }

func (cfg *Config) Logger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring the transfer engine.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

func positiveDuration(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("transfer: %s %v must be positive", name, d)
	}

	return nil
}

// WithStartTimeout sets the wait for the receiver's first NAK or 'C'.
func WithStartTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positiveDuration("start timeout", d); err != nil {
			return err
		}
		cfg.startTimeout = d

		return nil
	})
}

// WithBlockTimeout sets the per-block reply and receive wait.
func WithBlockTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positiveDuration("block timeout", d); err != nil {
			return err
		}
		cfg.blockTimeout = d

		return nil
	})
}

// WithEOTTimeout sets the wait for the final ACK.
func WithEOTTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positiveDuration("EOT timeout", d); err != nil {
			return err
		}
		cfg.eotTimeout = d

		return nil
	})
}

// WithInterCharTimeout sets the maximum gap between bytes of one frame.
func WithInterCharTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positiveDuration("inter-character timeout", d); err != nil {
			return err
		}
		cfg.interCharTimeout = d

		return nil
	})
}

// WithPollInterval sets the sleep between empty reads of the channel.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positiveDuration("poll interval", d); err != nil {
			return err
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithRetryLimit sets how many consecutive resends of one frame, or failed
// receive attempts, are tolerated before the transfer gives up.
func WithRetryLimit(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("transfer: retry limit %d out of range [0, %d]", n, MaxRetryLimit)
		}
		cfg.retryLimit = n

		return nil
	})
}

// WithDuplicateDetection enables or disables duplicate block suppression on receive.
func WithDuplicateDetection(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.duplicateDetection = enabled
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		cfg.logger = l
		return nil
	})
}
