package session

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-serialhub/internal/fakeport"
	"github.com/arloliu/go-serialhub/logger"
	"github.com/arloliu/go-serialhub/serialport"
	"github.com/arloliu/go-serialhub/transfer"
)

const waitFor = 3 * time.Second

// harness runs one session on the A end of a fake pair. The test plays the
// user on the B end.
type harness struct {
	t      *testing.T
	env    *Env
	opener *fakeport.Opener
	local  *fakeport.Port
	user   *fakeport.Port
	cfg    *serialport.PortConfig
	cancel context.CancelFunc

	finished chan struct{}
	err      error
}

func testEngine(t *testing.T) *transfer.Engine {
	t.Helper()

	e, err := transfer.NewEngine(
		transfer.WithLogger(logger.NewMockLogger().Permissive()),
		transfer.WithPollInterval(time.Millisecond),
		transfer.WithStartTimeout(2*time.Second),
		transfer.WithBlockTimeout(2*time.Second),
		transfer.WithEOTTimeout(2*time.Second),
		transfer.WithInterCharTimeout(100*time.Millisecond),
	)
	require.NoError(t, err)

	return e
}

func newHarness(t *testing.T, configure func(env *Env)) *harness {
	t.Helper()

	l := logger.NewMockLogger().Permissive()
	opener := fakeport.NewOpener()
	root := t.TempDir()

	env := &Env{
		Registry:          serialport.NewRegistry(l),
		Opener:            opener,
		Engine:            testEngine(t),
		Logger:            l,
		FilesDir:          filepath.Join(root, "files"),
		TextDir:           filepath.Join(root, "text"),
		NotesDir:          filepath.Join(root, "notes"),
		BridgeTemplate:    "COM%d",
		BridgeOpenBackoff: time.Millisecond,
		DialTimeout:       time.Second,
		KeyWait:           100 * time.Millisecond,
	}
	for _, dir := range []string{env.FilesDir, env.TextDir, env.NotesDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	if configure != nil {
		configure(env)
	}
	require.NoError(t, env.Validate())

	cfg, err := serialport.NewPortConfig("COM1", serialport.WithName("Front desk"), serialport.WithANSI(false))
	require.NoError(t, err)

	local, user := fakeport.NewPair()
	require.NoError(t, env.Registry.Register("COM1", "worker-COM1", local))

	return &harness{t: t, env: env, opener: opener, local: local, user: user, cfg: cfg}
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.finished = make(chan struct{})

	s := New(h.env, h.cfg, h.local)
	go func() {
		h.err = s.Run(ctx)
		close(h.finished)
	}()

	h.t.Cleanup(func() {
		cancel()
		select {
		case <-h.finished:
		case <-time.After(waitFor):
		}
	})

	h.expect("Welcome to the Retro Serial Hub")
}

// typeLine sends s followed by CR, as a terminal does on Enter.
func (h *harness) typeLine(s string) {
	_, _ = h.user.Write([]byte(s + "\r"))
}

func (h *harness) expect(s string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return strings.Contains(h.local.Output(), s) }, waitFor, 5*time.Millisecond,
		"expected %q in output:\n%s", s, h.local.Output())
}

func (h *harness) expectCount(s string, n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return strings.Count(h.local.Output(), s) >= n }, waitFor, 5*time.Millisecond,
		"expected %d x %q in output:\n%s", n, s, h.local.Output())
}

func (h *harness) result() error {
	h.t.Helper()

	select {
	case <-h.finished:
		return h.err
	case <-time.After(waitFor):
		require.FailNow(h.t, "session did not return")
		return nil
	}
}

func TestSession_MenuAndInvalidCommand(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.expect("Line Front desk (COM1)")
	h.expect(" 5] COM Port Bridge")

	h.typeLine("9")
	h.expect("Invalid command\r\nCommand: ")
}

func TestSession_ATMReturnsToMenuFromEveryMode(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	for i, key := range []string{"1", "2", "3", "4", "5"} {
		h.typeLine(key)
		h.typeLine("atm")
		h.expectCount("Welcome to the Retro Serial Hub", i+2)
	}
}

func TestSession_LocalReadFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.local.FailReads(errors.New("line dropped"))
	require.ErrorIs(t, h.result(), ErrLocalIO)
}

func TestSession_SurrenderedLineExitsOnATM(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	_, ok := h.env.Registry.Surrender("COM1")
	require.True(t, ok)

	h.typeLine("ATM")
	h.expect("surrendered to a bridge. Exiting session.")
	require.ErrorIs(t, h.result(), ErrSessionSurrendered)
}

type panicHandler struct{}

func (panicHandler) Mode() Mode { return ModeText }

func (panicHandler) Render() {}

func (panicHandler) HandleLine(string) (bool, Action) { panic("boom") }

func TestSession_HandlerPanicReturnsToMenu(t *testing.T) {
	saved := menuEntries
	menuEntries = append([]menuEntry{}, saved...)
	menuEntries[2].factory = func(*Capabilities) (Handler, error) { return panicHandler{}, nil }
	t.Cleanup(func() { menuEntries = saved })

	h := newHarness(t, nil)
	h.start()

	h.typeLine("3")
	h.typeLine("anything")
	h.expect("*** text error: boom ***")
	h.expectCount("Welcome to the Retro Serial Hub", 2)

	h.typeLine("9")
	h.expect("Invalid command")
}

func TestSession_FactoryErrorStaysInMenu(t *testing.T) {
	saved := menuEntries
	menuEntries = append([]menuEntry{}, saved...)
	menuEntries[3].factory = func(*Capabilities) (Handler, error) { return nil, errors.New("notes offline") }
	t.Cleanup(func() { menuEntries = saved })

	h := newHarness(t, nil)
	h.start()

	h.typeLine("4")
	h.expect("*** Notes error: notes offline ***")
	h.expectCount("Welcome to the Retro Serial Hub", 2)
}

func listen(t *testing.T) (net.Listener, DirectoryEntry) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	addr := ln.Addr().(*net.TCPAddr)

	return ln, DirectoryEntry{Name: "Local Board", Host: "127.0.0.1", Port: addr.Port}
}

func TestSession_DialPassthroughAndHangup(t *testing.T) {
	ln, entry := listen(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	h := newHarness(t, func(env *Env) { env.Directory = []DirectoryEntry{entry} })
	h.start()

	h.typeLine("1")
	h.expect("Available BBS Systems:")
	h.expect(" 1] Local Board")

	h.typeLine("1")
	h.expect("Dialing Local Board...")
	h.expect("CONNECT")

	var remote net.Conn
	select {
	case remote = <-accepted:
	case <-time.After(waitFor):
		require.FailNow(t, "no connection")
	}
	defer remote.Close()

	_, err := remote.Write([]byte("WELCOME TO THE BOARD"))
	require.NoError(t, err)
	h.expect("WELCOME TO THE BOARD")

	h.typeLine("hello")
	buf := make([]byte, 6)
	require.NoError(t, remote.SetReadDeadline(time.Now().Add(waitFor)))
	_, err = io.ReadFull(remote, buf)
	require.NoError(t, err)
	require.Equal(t, "hello\r", string(buf))

	h.typeLine("ath")
	h.expect("Disconnecting...")
	h.expectCount("Available BBS Systems:", 2)

	// the hangup line was relayed before the line was recognised
	rest, _ := io.ReadAll(remote)
	require.Equal(t, "ath\r", string(rest))
}

func TestSession_RemoteClose(t *testing.T) {
	ln, entry := listen(t)

	go func() {
		c, err := ln.Accept()
		if err == nil {
			_ = c.Close()
		}
	}()

	h := newHarness(t, func(env *Env) { env.Directory = []DirectoryEntry{entry} })
	h.start()

	h.typeLine("1")
	h.typeLine("1")
	h.expect("*** Connection closed by remote ***")
	h.expectCount("Available BBS Systems:", 2)
}

func TestSession_DialFailure(t *testing.T) {
	ln, entry := listen(t)
	require.NoError(t, ln.Close())

	h := newHarness(t, func(env *Env) { env.Directory = []DirectoryEntry{entry} })
	h.start()

	h.typeLine("1")
	h.typeLine("1")
	h.expect("*** Unable to connect to " + entry.Address() + " ***")
	h.expect("NO CARRIER")
	h.expectCount("Available BBS Systems:", 2)

	h.typeLine("7")
	h.expect("Invalid BBS number")
	h.typeLine("q")
	h.expectCount("Welcome to the Retro Serial Hub", 2)
}

func TestSession_EmptyDirectory(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.typeLine("1")
	h.expect("No BBS entries configured.")
	h.typeLine("x")
	h.expect("Invalid command")
}

func TestSession_FilesSendXMODEM(t *testing.T) {
	h := newHarness(t, nil)
	payload := []byte(strings.Repeat("0123456789", 30) + "END")
	require.NoError(t, os.WriteFile(filepath.Join(h.env.FilesDir, "GAME.ZIP"), payload, 0o644))
	h.start()

	h.typeLine("2")
	h.expect("File Transfer Menu (Current mode: XMODEM)")
	h.expect(" 1] GAME.ZIP")

	h.typeLine("1")
	h.expect("XMODEM SEND: GAME.ZIP")
	h.expect("Waiting for receiver (send NAK)...")

	got, err := testEngine(t).ReceiveXMODEM(context.Background(), h.user)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	h.expect("Transfer complete.")
	h.expectCount("File Transfer Menu", 2)
}

func TestSession_FilesNoReceiver(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(h.env.FilesDir, "A.TXT"), []byte("a"), 0o644))

	e, err := transfer.NewEngine(
		transfer.WithLogger(logger.NewMockLogger().Permissive()),
		transfer.WithPollInterval(time.Millisecond),
		transfer.WithStartTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)
	h.env.Engine = e
	h.start()

	h.typeLine("2")
	h.typeLine("1")
	h.expect("No receiver detected. Aborting.")
}

func TestSession_FilesUpload(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.typeLine("2")
	h.typeLine("u")
	h.expect("Enter filename to save as: ")
	h.typeLine(`..\..\evil\UP.BIN`)
	h.expect("XMODEM RECEIVE: saving to UP.BIN")

	payload := []byte("uploaded over xmodem")
	require.NoError(t, testEngine(t).SendXMODEM(context.Background(), h.user, payload))

	h.expect("Upload complete.")
	h.expect(" 1] UP.BIN")

	got, err := os.ReadFile(filepath.Join(h.env.FilesDir, "UP.BIN"))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestSession_FilesProtocolSwitch(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.typeLine("2")
	h.typeLine("y")
	h.expect("(Current mode: YMODEM)")
	h.typeLine("a")
	h.expect("(Current mode: ASCII)")
	h.typeLine("5")
	h.expect("Invalid file number")
}

func TestSession_TextLibrary(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(h.env.TextDir, "story.txt"), []byte("Once upon\r\na time\r\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.env.TextDir, "skip.bin"), []byte("x"), 0o644))
	h.start()

	h.typeLine("3")
	h.expect("Text library:")
	h.expect(" 1] story.txt")
	require.NotContains(t, h.local.Output(), "skip.bin")

	h.typeLine("1")
	h.expect("Once upon\r\na time\r\n")
	h.expectCount("Text library:", 2)
}

func TestSession_Notes(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.typeLine("4")
	h.expect("No notes available.")

	h.typeLine("c")
	h.expect("Title: ")
	h.typeLine("Shopping")
	h.expect("Type END on a line by itself to finish.")
	h.typeLine("milk")
	h.typeLine("eggs")
	h.typeLine("END")
	h.expect("Saved Shopping.txt.")
	h.expect(" 1] Shopping.txt")

	data, err := os.ReadFile(filepath.Join(h.env.NotesDir, "Shopping.txt"))
	require.NoError(t, err)
	require.Equal(t, "milk\neggs\n", string(data))

	h.typeLine("1")
	h.expect("milk\r\neggs\r\n")
	h.expectCount(" 1] Shopping.txt", 2)

	h.typeLine("dx")
	h.expect("Invalid delete syntax")
	h.typeLine("d9")
	h.expect("Invalid note number")

	h.typeLine("d1")
	h.expect("Are you sure you want to delete Shopping.txt? (Y/N): ")
	h.typeLine("y")
	h.expect("Deleted Shopping.txt.")
	h.expectCount("No notes available.", 2)

	_, err = os.Stat(filepath.Join(h.env.NotesDir, "Shopping.txt"))
	require.True(t, os.IsNotExist(err))
}

func enterBridge(h *harness, port string) {
	h.typeLine("5")
	h.expect(bridgePrompts[stagePort])
	h.typeLine(port)
	// one Enter per prompt; Enters sharing a read collapse into one
	for _, prompt := range bridgePrompts[stageBaud:] {
		h.expect(prompt)
		h.typeLine("")
	}
}

func TestSession_BridgeTakesOverAndRestores(t *testing.T) {
	h := newHarness(t, nil)

	owned := fakeport.New("COM7")
	require.NoError(t, h.env.Registry.Register("COM7", "worker-COM7", owned))
	h.start()

	enterBridge(h, "7")
	h.expect("Note: COM7 is currently owned by this hub. Taking over...")
	h.expect("Routing COM7 <-> this session. Type ATM to stop.")

	require.True(t, owned.Closed())
	require.True(t, h.env.Registry.IsSurrendered("COM7"))

	bridged := h.opener.Last("COM7")
	require.NotNil(t, bridged)
	cfg := h.opener.LastConfig("COM7")
	require.Equal(t, 115200, cfg.BaudRate())
	require.Equal(t, 8, cfg.DataBits())
	require.Equal(t, serialport.ParityNone, cfg.Parity())

	bridged.FeedString("ring ring")
	h.expect("ring ring")

	_, _ = h.user.Write([]byte("xyz"))
	require.Eventually(t, func() bool { return strings.Contains(bridged.Output(), "xyz") }, waitFor, 5*time.Millisecond)

	h.typeLine("ATM")
	h.expectCount("Welcome to the Retro Serial Hub", 2)
	require.Eventually(t, bridged.Closed, waitFor, 5*time.Millisecond)
	require.False(t, h.env.Registry.IsSurrendered("COM7"))
}

func TestSession_BridgeLineMode(t *testing.T) {
	h := newHarness(t, func(env *Env) { env.BridgeLineMode = true })
	h.start()

	enterBridge(h, "3")
	h.expect("Routing COM3 <-> this session.")

	bridged := h.opener.Last("COM3")
	h.typeLine("AT&F")
	require.Eventually(t, func() bool { return bridged.Output() == "AT&F\r\n" }, waitFor, 5*time.Millisecond)

	h.typeLine("ATH")
	h.expect("Disconnecting...")
	h.expectCount("Welcome to the Retro Serial Hub", 2)
}

func TestSession_BridgeRejectsOwnLine(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	enterBridge(h, "1")
	h.expect("*** Cannot bridge COM1 to itself ***")
	h.expectCount("COM Port Number (Default: 1): ", 2)
	require.Equal(t, 0, h.opener.Opens("COM1"))
}

func TestSession_BridgeOpenFailureRestores(t *testing.T) {
	h := newHarness(t, func(env *Env) { env.BridgeOpenAttempts = 2 })

	owned := fakeport.New("COM4")
	require.NoError(t, h.env.Registry.Register("COM4", "worker-COM4", owned))
	h.opener.SetError("COM4", syscall.EACCES)
	h.start()

	enterBridge(h, "4")
	h.expect("*** Unable to open COM4")
	h.expectCount("COM Port Number (Default: 1): ", 2)

	require.Equal(t, 2, h.opener.Opens("COM4"))
	require.False(t, h.env.Registry.IsSurrendered("COM4"))
}

func TestSession_BridgeInvalidInput(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.typeLine("5")
	h.typeLine("x")
	h.expect("Invalid port number. COM Port Number (Default: 1): ")
	h.typeLine("2")
	h.typeLine("fast")
	h.expect("Invalid baud. Baud (Default: 115200): ")
	h.typeLine("")
	h.typeLine("6")
	h.expect("Invalid. Data Bits (Options: 8,7 Default: 8): ")
}
