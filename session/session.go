package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/arloliu/go-serialhub/logger"
	"github.com/arloliu/go-serialhub/serialport"
	"github.com/arloliu/go-serialhub/transfer"
)

var (
	// ErrSessionSurrendered is returned by Run when ATM is typed on a line
	// that has been taken over by a bridge.
	ErrSessionSurrendered = errors.New("session: line surrendered to a bridge")
	// ErrLocalIO wraps failures of the session's own line.
	ErrLocalIO = errors.New("session: local line failure")
)

// bridgeLink is the second serial line of an active bridge.
type bridgeLink struct {
	port        serialport.Port
	id          string
	surrendered bool
}

// Session is the state machine of one serial line. The zero mode is the
// main menu; at most one Handler is active at a time.
//
// A Session is not goroutine-safe; Run owns it.
type Session struct {
	env    *Env
	cfg    *serialport.PortConfig
	port   serialport.Port
	logger logger.Logger

	ctx       context.Context //nolint:containedctx
	term      *Terminal
	caps      *Capabilities
	lines     lineAssembler
	dialLines lineAssembler
	handler   Handler
	remote    net.Conn
	bridge    *bridgeLink
	remoteBuf []byte
	bridgeBuf []byte
}

// New creates a session for the open line port described by cfg. env must
// have passed Validate.
func New(env *Env, cfg *serialport.PortConfig, port serialport.Port) *Session {
	return &Session{
		env:       env,
		cfg:       cfg,
		port:      port,
		logger:    env.Logger.With("port", cfg.ID(), "line", cfg.Name()),
		remoteBuf: make([]byte, 1024),
		bridgeBuf: make([]byte, 1024),
	}
}

// Run serves the line until ctx ends, the line fails, or the line is found
// surrendered on ATM. Remote and bridge connections are closed on return;
// the local line is left open for its owner to close.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	s.term = newTerminal(ctx, s.port, s.cfg.ANSI(), s.env.KeyWait)
	s.caps = &Capabilities{
		Env:       s.env,
		Term:      s.term,
		LocalID:   s.cfg.ID(),
		Connected: func() bool { return s.remote != nil },
	}
	defer s.cleanup()

	s.logger.Debug("session started")
	s.showMenu()

	buf := make([]byte, 1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLocalIO, err)
		}

		if n > 0 {
			if err := s.handleLocal(buf[:n]); err != nil {
				return err
			}
		}

		s.pollRemote()
		s.pollBridge()

		if err := s.term.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrLocalIO, err)
		}
	}
}

func (s *Session) cleanup() {
	s.closeRemote()
	s.teardownBridge()
	s.handler = nil
	s.logger.Debug("session ended")
}

// --- Local input ---

func (s *Session) handleLocal(data []byte) error {
	if s.remote != nil {
		return s.passthrough(data)
	}

	_, _ = s.term.Write(data)

	if s.bridge != nil && !s.env.BridgeLineMode {
		if _, err := s.bridge.port.Write(data); err != nil {
			s.logger.Warn("bridge write failed", "target", s.bridge.id, "error", err)
			s.term.Print("\r\n*** COM bridge write failed ***\r\n")
			s.toMenu()

			return nil
		}
	}

	for _, line := range s.lines.Feed(data) {
		if err := s.dispatch(line); err != nil {
			return err
		}
	}

	return nil
}

// passthrough forwards typed bytes to the remote end unmodified and watches
// the same bytes for a locally typed ATH line.
func (s *Session) passthrough(data []byte) error {
	s.transmit(data)
	if s.remote == nil {
		return nil
	}

	for _, line := range s.dialLines.Feed(data) {
		if strings.EqualFold(line, "ATH") {
			s.term.Print("\r\nDisconnecting...\r\n")
			s.closeRemote()
			s.render()

			return nil
		}
	}

	return nil
}

func (s *Session) dispatch(line string) error {
	if strings.EqualFold(line, "ATM") {
		return s.atm()
	}

	if s.handler == nil {
		s.selectMenu(line)
		return nil
	}

	h := s.handler
	var (
		consumed bool
		action   Action
	)

	if !s.guard(h.Mode(), func() { consumed, action = h.HandleLine(line) }) {
		s.toMenu()
		return nil
	}

	if !consumed {
		s.term.Invalid("Invalid command")
		return nil
	}

	s.apply(action)

	return nil
}

// atm drops any remote or bridge connection and returns to the menu.
func (s *Session) atm() error {
	if s.remote != nil {
		s.term.Print("\r\nDisconnecting...\r\n")
		s.closeRemote()
	}
	s.teardownBridge()

	if s.env.Registry.IsSurrendered(s.cfg.ID()) {
		s.term.Print("\r\nThis session's COM port was surrendered to a bridge. Exiting session.\r\n")
		return ErrSessionSurrendered
	}

	s.handler = nil
	s.showMenu()

	return nil
}

// guard runs fn, turning a panic into a report on the terminal.
func (s *Session) guard(mode Mode, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("mode handler panic", "mode", mode.String(), "panic", r, "stack", string(debug.Stack()))
			s.term.Printf("\r\n*** %s error: %v ***\r\n", mode, r)
			ok = false
		}
	}()

	fn()

	return true
}

// --- Menu ---

func (s *Session) showMenu() {
	t := s.term
	t.Clear()
	t.Title("Welcome to the Retro Serial Hub")
	t.Printf("Line %s (%s)\r\n\r\n", s.cfg.Name(), s.cfg.ID())
	t.Print("Please select a command from the options below:\r\n\r\n")
	for _, e := range menuEntries {
		t.Printf(" %s] %s\r\n", e.key, e.title)
	}
	t.Print("\r\n")
	t.Prompt()
}

func (s *Session) selectMenu(line string) {
	entry, ok := lookupEntry(line)
	if !ok {
		s.term.Invalid("Invalid command")
		return
	}

	var (
		h   Handler
		err error
	)
	mode := ModeMenu
	if !s.guard(mode, func() { h, err = entry.factory(s.caps) }) {
		s.showMenu()
		return
	}
	if err != nil {
		s.logger.Warn("mode unavailable", "mode", entry.title, "error", err)
		s.term.Printf("\r\n*** %s error: %v ***\r\n", entry.title, err)
		s.term.WaitKey(false)
		s.showMenu()

		return
	}

	s.logger.Debug("mode entered", "mode", h.Mode().String())
	s.handler = h
	s.render()
}

// toMenu ends the active mode and its connections.
func (s *Session) toMenu() {
	s.closeRemote()
	s.teardownBridge()
	s.handler = nil
	s.showMenu()
}

// render redraws the active mode, or the menu when there is none.
func (s *Session) render() {
	h := s.handler
	if h == nil {
		s.showMenu()
		return
	}

	if !s.guard(h.Mode(), h.Render) {
		s.toMenu()
	}
}

// --- Actions ---

func (s *Session) apply(action Action) {
	switch a := action.(type) {
	case nil:
	case ReturnToMenu:
		s.toMenu()
	case Dial:
		s.dial(a.Entry)
	case Transmit:
		s.transmit(a.Data)
	case Hangup:
		if s.remote != nil {
			s.term.Print("\r\nDisconnecting...\r\n")
			s.closeRemote()
		}
		s.render()
	case SendFile:
		s.sendFile(a)
		s.render()
	case ReceiveFile:
		s.receiveFile(a)
		s.render()
	case OpenBridge:
		s.openBridge(a)
	default:
		s.logger.Error("unknown action", "action", fmt.Sprintf("%T", action))
		s.toMenu()
	}
}

func (s *Session) dial(e DirectoryEntry) {
	s.term.Printf("\r\nDialing %s...\r\n", e.Name)

	d := net.Dialer{Timeout: s.env.DialTimeout}
	conn, err := d.DialContext(s.ctx, "tcp", e.Address())
	if err != nil {
		s.logger.Info("dial failed", "name", e.Name, "addr", e.Address(), "error", err)
		s.term.Printf("\r\n*** Unable to connect to %s ***\r\n", e.Address())
		s.term.Print("NO CARRIER\r\n")
		s.term.WaitKey(false)
		s.render()

		return
	}

	s.logger.Info("dial connected", "name", e.Name, "addr", e.Address())
	s.remote = conn
	s.dialLines.Reset()
	s.term.Print("\r\nCONNECT\r\n")
}

func (s *Session) transmit(data []byte) {
	if s.remote == nil {
		return
	}

	if _, err := s.remote.Write(data); err != nil {
		s.logger.Info("remote write failed", "error", err)
		s.term.Print("\r\n*** Connection to remote lost ***\r\n")
		s.closeRemote()
		s.render()
	}
}

func (s *Session) closeRemote() {
	if s.remote == nil {
		return
	}

	_ = s.remote.Close()
	s.remote = nil
	s.dialLines.Reset()
}

// pollRemote relays whatever the remote end sent within the poll window.
func (s *Session) pollRemote() {
	if s.remote == nil {
		return
	}

	_ = s.remote.SetReadDeadline(time.Now().Add(s.env.RemotePoll))
	n, err := s.remote.Read(s.remoteBuf)
	if n > 0 {
		_, _ = s.term.Write(s.remoteBuf[:n])
	}
	if err == nil {
		return
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return
	}

	if errors.Is(err, io.EOF) {
		s.term.Print("\r\n*** Connection closed by remote ***\r\n")
	} else {
		s.term.Print("\r\n*** Connection to remote lost ***\r\n")
	}
	s.logger.Info("remote disconnected", "error", err)
	s.closeRemote()
	s.render()
}

func (s *Session) openBridge(a OpenBridge) {
	_ = a.Port.SetReadTimeout(s.env.BridgePoll)

	s.bridge = &bridgeLink{port: a.Port, id: a.ID, surrendered: a.Surrendered}
	s.handler = newBridgeRuntime(s.caps, a.ID, a.Port)
	s.logger.Info("bridge opened", "target", a.ID, "surrendered", a.Surrendered)
	s.render()
}

// teardownBridge closes the bridged line and hands a surrendered line back
// to its worker.
func (s *Session) teardownBridge() {
	if s.bridge == nil {
		return
	}

	_ = s.bridge.port.Close()
	if s.bridge.surrendered {
		s.env.Registry.Restore(s.bridge.id)
	}
	s.logger.Info("bridge closed", "target", s.bridge.id, "restored", s.bridge.surrendered)
	s.bridge = nil
}

func (s *Session) pollBridge() {
	if s.bridge == nil {
		return
	}

	n, err := s.bridge.port.Read(s.bridgeBuf)
	if n > 0 {
		_, _ = s.term.Write(s.bridgeBuf[:n])
	}
	if err != nil {
		s.logger.Warn("bridge read failed", "target", s.bridge.id, "error", err)
		s.term.Print("\r\n*** COM bridge connection lost ***\r\n")
		s.toMenu()
	}
}

// --- Transfers ---

func (s *Session) sendFile(a SendFile) {
	name := filepath.Base(a.Path)

	data, err := os.ReadFile(a.Path)
	if err != nil {
		s.term.Printf("\r\n*** Unable to read %s: %v ***\r\n", name, err)
		return
	}

	engine := s.env.Engine
	switch a.Protocol {
	case ProtocolYMODEM:
		s.term.Printf("\r\nYMODEM SEND: %s (%d bytes)\r\n", name, len(data))
		err = engine.SendYMODEM(s.ctx, s.port, name, data)
	case ProtocolASCII:
		s.term.Printf("\r\nASCII SEND: %s\r\n", name)
		err = engine.SendASCII(s.ctx, s.port, bytes.NewReader(data))
	default:
		s.term.Printf("\r\nXMODEM SEND: %s\r\n", name)
		s.term.Print("Waiting for receiver (send NAK)...\r\n")
		err = engine.SendXMODEM(s.ctx, s.port, data)
	}

	s.lines.Reset()
	s.logger.Info("file sent", "file", name, "protocol", a.Protocol.String(), "bytes", len(data), "error", err)
	s.term.Printf("\r\n%s\r\n", transferError(err))
}

func (s *Session) receiveFile(a ReceiveFile) {
	name := filepath.Base(a.Path)
	s.term.Printf("\r\nXMODEM RECEIVE: saving to %s\r\n", name)

	data, err := s.env.Engine.ReceiveXMODEM(s.ctx, s.port)
	s.lines.Reset()
	s.logger.Info("file received", "file", name, "bytes", len(data), "error", err)

	switch {
	case err == nil:
		if err := os.WriteFile(a.Path, data, 0o644); err != nil { //nolint:gosec
			s.term.Printf("\r\n*** Unable to save %s: %v ***\r\n", name, err)
			return
		}
		s.term.Print("\r\nUpload complete.\r\n")
	case errors.Is(err, transfer.ErrCancelled):
		s.term.Print("\r\nUpload cancelled by sender.\r\n")
	default:
		s.term.Printf("\r\n*** Upload failed: %v ***\r\n", err)
	}
}
