package serialport

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-serialhub/logger"
)

// DefaultReadTimeout is the read timeout applied to every opened line.
// Reads return (0, nil) when no byte arrives within it, which lets the
// session loop poll the line without blocking.
const DefaultReadTimeout = 20 * time.Millisecond

// Port is an open serial line.
//
// Read follows go.bug.st/serial semantics: it returns (0, nil) when the read
// timeout elapses without data. Any returned error means the line is gone.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// Opener opens serial lines.
type Opener interface {
	Open(cfg *PortConfig) (Port, error)
}

// ErrDeviceAbsent is wrapped by OpenError when the device does not exist on this host.
var ErrDeviceAbsent = errors.New("serialport: device not present")

// OpenError describes a failed attempt to open a line.
type OpenError struct {
	ID  string
	Err error
}

func (e *OpenError) Error() string {
	if IsDeviceAbsent(e.Err) {
		return fmt.Sprintf("open %s: %v: %v", e.ID, ErrDeviceAbsent, e.Err)
	}

	return fmt.Sprintf("open %s: %v", e.ID, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDeviceAbsent) hold for absent devices.
func (e *OpenError) Is(target error) bool {
	return target == ErrDeviceAbsent && IsDeviceAbsent(e.Err)
}

// IsDeviceAbsent reports whether err says the device does not exist on this
// host, as opposed to being busy, misconfigured or failing.
func IsDeviceAbsent(err error) bool {
	if err == nil {
		return false
	}

	var perr *serial.PortError
	if errors.As(err, &perr) {
		return perr.Code() == serial.PortNotFound
	}

	return errors.Is(err, fs.ErrNotExist)
}

// NormalizeID returns the registry key for a device identifier. Windows COM
// names are case-insensitive, device paths elsewhere are not.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if runtime.GOOS == "windows" {
		return strings.ToUpper(id)
	}

	return id
}

// SerialOpener opens real serial devices through go.bug.st/serial.
type SerialOpener struct {
	ReadTimeout time.Duration
	Logger      logger.Logger
}

var _ Opener = (*SerialOpener)(nil)

// NewSerialOpener returns an opener with DefaultReadTimeout.
func NewSerialOpener(l logger.Logger) *SerialOpener {
	if l == nil {
		l = logger.GetLogger()
	}

	return &SerialOpener{ReadTimeout: DefaultReadTimeout, Logger: l}
}

// Open opens the line described by cfg and applies the read timeout.
func (o *SerialOpener) Open(cfg *PortConfig) (Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate(),
		DataBits: cfg.DataBits(),
		Parity:   toSerialParity(cfg.Parity()),
		StopBits: toSerialStopBits(cfg.StopBits()),
	}

	// go.bug.st/serial has no flow-control switch; for RTS/CTS lines assert
	// RTS and DTR from the start so the remote side is allowed to send.
	if cfg.HardwareFlowControl() {
		mode.InitialStatusBits = &serial.ModemOutputBits{RTS: true, DTR: true}
	}
	if cfg.SoftwareFlowControl() {
		o.Logger.Debug("serialport: XON/XOFF requested, relying on the terminal side", "port", cfg.ID())
	}

	p, err := serial.Open(cfg.ID(), mode)
	if err != nil {
		return nil, &OpenError{ID: cfg.ID(), Err: err}
	}

	timeout := o.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		_ = p.Close()
		return nil, &OpenError{ID: cfg.ID(), Err: err}
	}

	return p, nil
}

func toSerialParity(p Parity) serial.Parity {
	switch p {
	case ParityOdd:
		return serial.OddParity
	case ParityEven:
		return serial.EvenParity
	default:
		return serial.NoParity
	}
}

func toSerialStopBits(bits int) serial.StopBits {
	if bits == 2 {
		return serial.TwoStopBits
	}

	return serial.OneStopBit
}
