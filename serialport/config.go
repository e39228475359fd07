package serialport

import (
	"errors"
	"fmt"
	"strings"
)

// Default line settings.
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultStopBits = 1
)

// Parity is the parity mode of a serial line.
type Parity byte

const (
	ParityNone Parity = 'N'
	ParityOdd  Parity = 'O'
	ParityEven Parity = 'E'
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return fmt.Sprintf("parity(%q)", byte(p))
	}
}

// ParseParity accepts "N", "O", "E" or the spelled-out names, case-insensitive.
// Only the first letter is significant, so "none", "Odd" and "e" all parse.
func ParseParity(s string) (Parity, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ParityNone, nil
	}

	switch Parity(s[0]) {
	case ParityNone, ParityOdd, ParityEven:
		return Parity(s[0]), nil
	default:
		return ParityNone, fmt.Errorf("serialport: invalid parity %q", s)
	}
}

// PortConfig is the static description of one serial line. It is immutable
// once built by NewPortConfig.
type PortConfig struct {
	name     string
	id       string
	baudRate int
	dataBits int
	parity   Parity
	stopBits int
	xonxoff  bool
	rtscts   bool
	ansi     bool
}

// NewPortConfig creates a configuration for the serial device id
// (e.g. "COM4" or "/dev/ttyUSB0").
//
// Defaults are 9600 8N1, no flow control, ANSI capable. opts are functional
// options applied in order; see With* functions.
func NewPortConfig(id string, opts ...PortOption) (*PortConfig, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("serialport: port identifier is empty")
	}

	cfg := &PortConfig{
		name:     id,
		id:       id,
		baudRate: DefaultBaudRate,
		dataBits: DefaultDataBits,
		parity:   ParityNone,
		stopBits: DefaultStopBits,
		ansi:     true,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// Name returns the human label of the line, e.g. "APPLE2".
func (cfg *PortConfig) Name() string { return cfg.name }

// ID returns the device identifier as configured.
func (cfg *PortConfig) ID() string { return cfg.id }

// Key returns the registry key of the device, see NormalizeID.
func (cfg *PortConfig) Key() string { return NormalizeID(cfg.id) }

func (cfg *PortConfig) BaudRate() int { return cfg.baudRate }

func (cfg *PortConfig) DataBits() int { return cfg.dataBits }

func (cfg *PortConfig) Parity() Parity { return cfg.parity }

func (cfg *PortConfig) StopBits() int { return cfg.stopBits }

// SoftwareFlowControl reports whether XON/XOFF is requested.
func (cfg *PortConfig) SoftwareFlowControl() bool { return cfg.xonxoff }

// HardwareFlowControl reports whether RTS/CTS is requested.
func (cfg *PortConfig) HardwareFlowControl() bool { return cfg.rtscts }

// ANSI reports whether the attached terminal understands ANSI escapes.
func (cfg *PortConfig) ANSI() bool { return cfg.ansi }

// String renders the line settings in the usual "9600 8N1" shorthand.
func (cfg *PortConfig) String() string {
	return fmt.Sprintf("%s %d %d%c%d", cfg.id, cfg.baudRate, cfg.dataBits, byte(cfg.parity), cfg.stopBits)
}

// --- PortOption ---

// PortOption is a functional option for configuring a PortConfig.
type PortOption interface {
	apply(*PortConfig) error
}

type portOptFunc func(*PortConfig) error

func (f portOptFunc) apply(cfg *PortConfig) error { return f(cfg) }

// WithName sets the human label of the line.
func WithName(name string) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if name = strings.TrimSpace(name); name != "" {
			cfg.name = name
		}

		return nil
	})
}

// WithBaudRate sets the baud rate. Must be positive.
func WithBaudRate(baud int) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if baud <= 0 {
			return fmt.Errorf("serialport: baud rate %d must be positive", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithDataBits sets the byte size. Must be in [5, 8].
func WithDataBits(bits int) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if bits < 5 || bits > 8 {
			return fmt.Errorf("serialport: data bits %d out of range [5, 8]", bits)
		}
		cfg.dataBits = bits

		return nil
	})
}

// WithParity sets the parity mode.
func WithParity(p Parity) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		switch p {
		case ParityNone, ParityOdd, ParityEven:
			cfg.parity = p
			return nil
		default:
			return fmt.Errorf("serialport: invalid parity %q", byte(p))
		}
	})
}

// WithStopBits sets the number of stop bits, 1 or 2.
func WithStopBits(bits int) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if bits != 1 && bits != 2 {
			return fmt.Errorf("serialport: stop bits %d must be 1 or 2", bits)
		}
		cfg.stopBits = bits

		return nil
	})
}

// WithSoftwareFlowControl enables or disables XON/XOFF.
func WithSoftwareFlowControl(enabled bool) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		cfg.xonxoff = enabled
		return nil
	})
}

// WithHardwareFlowControl enables or disables RTS/CTS.
func WithHardwareFlowControl(enabled bool) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		cfg.rtscts = enabled
		return nil
	})
}

// WithANSI marks the attached terminal as ANSI capable or not.
func WithANSI(enabled bool) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		cfg.ansi = enabled
		return nil
	})
}
