package session

import (
	"errors"

	"github.com/arloliu/go-serialhub/serialport"
	"github.com/arloliu/go-serialhub/transfer"
)

// Mode identifies the active interaction mode of a session.
type Mode int

const (
	ModeMenu Mode = iota
	ModeDial
	ModeFiles
	ModeText
	ModeNotes
	ModeBridgePrompt
	ModeBridgeRuntime
)

func (m Mode) String() string {
	switch m {
	case ModeMenu:
		return "menu"
	case ModeDial:
		return "dial"
	case ModeFiles:
		return "files"
	case ModeText:
		return "text"
	case ModeNotes:
		return "notes"
	case ModeBridgePrompt:
		return "bridge setup"
	case ModeBridgeRuntime:
		return "bridge"
	default:
		return "unknown"
	}
}

// Handler is a mode plugin. The session owns the handler for as long as its
// mode is active and feeds it one command line at a time.
//
// HandleLine returns whether the line was consumed and an optional Action
// for the session to carry out. A nil Action means the handler already
// produced its output and stays in control. A handler may panic; the session
// reports the failure and returns to the main menu.
type Handler interface {
	Mode() Mode
	// Render draws the mode screen, re-reading any listing it shows.
	Render()
	HandleLine(line string) (bool, Action)
}

// Factory creates a handler for one session.
type Factory func(caps *Capabilities) (Handler, error)

// Capabilities is what a handler may use: the shared environment, the
// session terminal, and a view of the session's own state.
type Capabilities struct {
	Env       *Env
	Term      *Terminal
	LocalID   string
	Connected func() bool
}

// Action is a request from a handler to the session. The concrete types
// below are the complete set.
type Action interface {
	action()
}

// ReturnToMenu ends the mode, closing any remote or bridge connection.
type ReturnToMenu struct{}

// Dial asks the session to connect to a directory entry.
type Dial struct {
	Entry DirectoryEntry
}

// Transmit asks the session to send Data to the connected remote end.
type Transmit struct {
	Data []byte
}

// Hangup asks the session to drop the remote connection and stay in the mode.
type Hangup struct{}

// SendFile asks the session to send a file over the local line.
type SendFile struct {
	Protocol Protocol
	Path     string
}

// ReceiveFile asks the session to receive an XMODEM upload into Path.
type ReceiveFile struct {
	Path string
}

// OpenBridge hands an opened serial line to the session for relaying.
type OpenBridge struct {
	Port serialport.Port
	// ID is the device identifier of Port.
	ID string
	// Surrendered is true when the line was taken from its worker and must
	// be restored when the bridge ends.
	Surrendered bool
}

func (ReturnToMenu) action() {}

func (Dial) action() {}

func (Transmit) action() {}

func (Hangup) action() {}

func (SendFile) action() {}

func (ReceiveFile) action() {}

func (OpenBridge) action() {}

// Protocol is a file transfer protocol selectable in the files menu.
type Protocol int

const (
	ProtocolXMODEM Protocol = iota
	ProtocolYMODEM
	ProtocolASCII
)

func (p Protocol) String() string {
	switch p {
	case ProtocolXMODEM:
		return "XMODEM"
	case ProtocolYMODEM:
		return "YMODEM"
	case ProtocolASCII:
		return "ASCII"
	default:
		return "UNKNOWN"
	}
}

// menuEntry is one selection of the main menu.
type menuEntry struct {
	key     string
	title   string
	factory Factory
}

// menuEntries is the static handler table, keyed by menu selection.
var menuEntries = []menuEntry{
	{key: "1", title: "Bulletin Boards", factory: newDialHandler},
	{key: "2", title: "File Transfers", factory: newFilesHandler},
	{key: "3", title: "Text Library", factory: newTextHandler},
	{key: "4", title: "Notes", factory: newNotesHandler},
	{key: "5", title: "COM Port Bridge", factory: newBridgePrompt},
}

func lookupEntry(key string) (menuEntry, bool) {
	for _, e := range menuEntries {
		if e.key == key {
			return e, true
		}
	}

	return menuEntry{}, false
}

// transferError maps an engine error to the line shown to the user.
func transferError(err error) string {
	switch {
	case err == nil:
		return "Transfer complete."
	case errors.Is(err, transfer.ErrNoReceiver):
		return "No receiver detected. Aborting."
	case errors.Is(err, transfer.ErrCancelled):
		return "Transfer cancelled by receiver."
	case errors.Is(err, transfer.ErrEOTNotAcked):
		return "Receiver did not ACK EOT. Transfer ended."
	case errors.Is(err, transfer.ErrRetryExhausted):
		return "Too many retries. Aborting."
	case errors.Is(err, transfer.ErrTimeout):
		return "Timeout waiting for ACK/NAK. Aborting."
	default:
		return "*** Transfer error: " + err.Error() + " ***"
	}
}
