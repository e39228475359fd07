package session

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"time"

	"github.com/arloliu/go-serialhub/logger"
	"github.com/arloliu/go-serialhub/serialport"
	"github.com/arloliu/go-serialhub/transfer"
)

// Defaults for Env fields left zero.
const (
	DefaultDialTimeout        = 10 * time.Second
	DefaultBridgeOpenAttempts = 6
	DefaultBridgeOpenBackoff  = 250 * time.Millisecond
	DefaultKeyWait            = 5 * time.Minute
	DefaultRemotePoll         = 10 * time.Millisecond
	DefaultBridgePoll         = 10 * time.Millisecond
)

// DirectoryEntry is one dial target.
type DirectoryEntry struct {
	Name string
	Host string
	Port int
}

// Address returns host:port.
func (e DirectoryEntry) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Env is shared by every session of a hub.
type Env struct {
	Registry *serialport.Registry
	// Opener opens lines for the bridge.
	Opener serialport.Opener
	Engine *transfer.Engine
	Logger logger.Logger

	Directory []DirectoryEntry
	FilesDir  string
	TextDir   string
	NotesDir  string

	// BridgeTemplate turns a bridge port number into a device identifier,
	// e.g. "COM%d" or "/dev/ttyS%d".
	BridgeTemplate string
	// BridgeLineMode relays complete local lines with CRLF endings to the
	// bridged line instead of every byte as typed.
	BridgeLineMode     bool
	BridgeOpenAttempts int
	BridgeOpenBackoff  time.Duration

	DialTimeout time.Duration
	KeyWait     time.Duration
	RemotePoll  time.Duration
	BridgePoll  time.Duration
}

// DefaultBridgeTemplate returns the device pattern of the host OS.
func DefaultBridgeTemplate() string {
	if runtime.GOOS == "windows" {
		return "COM%d"
	}

	return "/dev/ttyS%d"
}

// Validate checks required fields and fills defaults.
func (env *Env) Validate() error {
	if env.Registry == nil {
		return errors.New("session: registry is nil")
	}
	if env.Opener == nil {
		return errors.New("session: opener is nil")
	}

	if env.Logger == nil {
		env.Logger = logger.GetLogger()
	}
	if env.Engine == nil {
		engine, err := transfer.NewEngine(transfer.WithLogger(env.Logger))
		if err != nil {
			return err
		}
		env.Engine = engine
	}
	if env.BridgeTemplate == "" {
		env.BridgeTemplate = DefaultBridgeTemplate()
	}
	if env.BridgeOpenAttempts <= 0 {
		env.BridgeOpenAttempts = DefaultBridgeOpenAttempts
	}
	if env.BridgeOpenBackoff <= 0 {
		env.BridgeOpenBackoff = DefaultBridgeOpenBackoff
	}
	if env.DialTimeout <= 0 {
		env.DialTimeout = DefaultDialTimeout
	}
	if env.KeyWait <= 0 {
		env.KeyWait = DefaultKeyWait
	}
	if env.RemotePoll <= 0 {
		env.RemotePoll = DefaultRemotePoll
	}
	if env.BridgePoll <= 0 {
		env.BridgePoll = DefaultBridgePoll
	}

	return nil
}

// bridgeID returns the device identifier of bridge port number n.
func (env *Env) bridgeID(n int) string {
	return fmt.Sprintf(env.BridgeTemplate, n)
}
