package hub

import (
	"context"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-serialhub/internal/fakeport"
	"github.com/arloliu/go-serialhub/logger"
	"github.com/arloliu/go-serialhub/serialport"
	"github.com/arloliu/go-serialhub/session"
)

const waitFor = 3 * time.Second

func newTestEnv(t *testing.T) (*session.Env, *fakeport.Opener) {
	t.Helper()

	l := logger.NewMockLogger().Permissive()
	opener := fakeport.NewOpener()
	env := &session.Env{
		Registry: serialport.NewRegistry(l),
		Opener:   opener,
		Logger:   l,
		FilesDir: t.TempDir(),
		TextDir:  t.TempDir(),
		NotesDir: t.TempDir(),
	}
	require.NoError(t, env.Validate())

	return env, opener
}

func newTestWorker(t *testing.T, env *session.Env, id string) *Worker {
	t.Helper()

	cfg, err := serialport.NewPortConfig(id)
	require.NoError(t, err)

	w, err := NewWorker(cfg, env, WithRetryDelay(10*time.Millisecond), WithSurrenderPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	return w
}

func runWorker(t *testing.T, w *Worker) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitFor):
		}
	})

	return cancel, done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(waitFor):
		require.FailNow(t, "worker did not return")
		return nil
	}
}

func TestWorker_AbsentDeviceStopsPermanently(t *testing.T) {
	require := require.New(t)
	env, opener := newTestEnv(t)
	opener.SetError("COM9", syscall.ENOENT)

	w := newTestWorker(t, env, "COM9")
	_, done := runWorker(t, w)

	err := waitErr(t, done)
	require.ErrorIs(err, serialport.ErrDeviceAbsent)
	require.Equal(1, opener.Opens("COM9"))
	require.Equal(PhasePermanentlyStopped, w.Phase())
	require.Equal(uint64(1), w.Metrics().OpenFailCount.Load())
	require.True(env.Logger.(*logger.MockLogger).Logged(logger.WarnLevel, "device not present, line disabled"))
}

func TestWorker_TransientFailureRetries(t *testing.T) {
	require := require.New(t)
	env, opener := newTestEnv(t)
	opener.SetError("COM2", syscall.EBUSY)

	w := newTestWorker(t, env, "COM2")
	cancel, done := runWorker(t, w)

	require.Eventually(func() bool { return opener.Opens("COM2") >= 3 }, waitFor, 5*time.Millisecond)
	require.Equal(PhaseRetrying, w.Phase())

	opener.SetError("COM2", nil)
	require.Eventually(func() bool { return w.Phase() == PhaseOpen }, waitFor, 5*time.Millisecond)

	owner, ok := env.Registry.Owner("COM2")
	require.True(ok)
	require.Equal("worker/COM2", owner)

	port := opener.Last("COM2")
	require.Eventually(func() bool { return len(port.Output()) > 0 }, waitFor, 5*time.Millisecond)

	cancel()
	require.NoError(waitErr(t, done))
	require.True(port.Closed())
	require.Equal(PhasePermanentlyStopped, w.Phase())

	_, ok = env.Registry.Owner("COM2")
	require.False(ok)
}

func TestWorker_AbsentAfterFirstOpenIsTransient(t *testing.T) {
	require := require.New(t)
	env, opener := newTestEnv(t)
	opener.SetError("COM3", syscall.EBUSY)

	w := newTestWorker(t, env, "COM3")
	_, _ = runWorker(t, w)

	require.Eventually(func() bool { return opener.Opens("COM3") >= 1 }, waitFor, time.Millisecond)
	opener.SetError("COM3", syscall.ENOENT)

	require.Eventually(func() bool { return opener.Opens("COM3") >= 4 }, waitFor, 5*time.Millisecond)
	require.NotEqual(PhasePermanentlyStopped, w.Phase())
}

func TestWorker_LostLineIsReopened(t *testing.T) {
	require := require.New(t)
	env, opener := newTestEnv(t)

	w := newTestWorker(t, env, "COM5")
	_, _ = runWorker(t, w)

	require.Eventually(func() bool { return w.Phase() == PhaseOpen }, waitFor, 5*time.Millisecond)
	first := opener.Last("COM5")
	first.FailReads(syscall.EIO)

	require.Eventually(func() bool { return opener.Opens("COM5") == 2 && w.Phase() == PhaseOpen }, waitFor, 5*time.Millisecond)
	require.True(first.Closed())
	require.Equal(uint64(2), w.Metrics().SessionCount.Load())
}

func TestWorker_SurrenderAndRestore(t *testing.T) {
	require := require.New(t)
	env, opener := newTestEnv(t)

	w := newTestWorker(t, env, "COM4")
	_, _ = runWorker(t, w)

	require.Eventually(func() bool { return w.Phase() == PhaseOpen }, waitFor, 5*time.Millisecond)

	held, ok := env.Registry.Surrender("COM4")
	require.True(ok)
	require.Same(opener.Last("COM4"), held)
	require.NoError(held.Close())

	require.Eventually(func() bool { return w.Phase() == PhaseSurrendered }, waitFor, 5*time.Millisecond)

	// the line stays with the bridge for several poll intervals
	time.Sleep(50 * time.Millisecond)
	require.Equal(1, opener.Opens("COM4"))
	_, owned := env.Registry.Owner("COM4")
	require.False(owned)

	require.True(env.Registry.Restore("COM4"))
	require.Eventually(func() bool { return w.Phase() == PhaseOpen }, waitFor, 5*time.Millisecond)
	require.Equal(2, opener.Opens("COM4"))
	require.Equal(uint64(1), w.Metrics().SurrenderCount.Load())

	l := env.Logger.(*logger.MockLogger)
	require.True(l.Logged(logger.InfoLevel, "line surrendered to a bridge"))
	require.True(l.Logged(logger.InfoLevel, "line restored"))

	owner, ok := env.Registry.Owner("COM4")
	require.True(ok)
	require.Equal("worker/COM4", owner)
}

func TestNewWorker_Invalid(t *testing.T) {
	env, _ := newTestEnv(t)
	cfg, err := serialport.NewPortConfig("COM1")
	require.NoError(t, err)

	_, err = NewWorker(nil, env)
	require.Error(t, err)
	_, err = NewWorker(cfg, nil)
	require.Error(t, err)
	_, err = NewWorker(cfg, env, WithRetryDelay(0))
	require.Error(t, err)
	_, err = NewWorker(cfg, env, WithSurrenderPollInterval(-time.Second))
	require.Error(t, err)
}

func TestAtomicPhase(t *testing.T) {
	require := require.New(t)

	var p AtomicPhase
	require.Equal(PhaseNeverOpened, p.Get())
	require.Equal("never_opened", p.String())

	require.True(p.Set(PhaseOpen))
	require.True(p.Get().IsOpen())
	require.True(p.Set(PhaseSurrendered))
	require.True(p.Get().IsSurrendered())
	require.False(p.Get().IsOpen())

	require.True(p.Set(PhasePermanentlyStopped))
	require.False(p.Set(PhaseOpen))
	require.True(p.Get().IsStopped())
	require.Equal("stopped", p.String())
}

func TestWorker_BridgedAwayByAnotherSession(t *testing.T) {
	require := require.New(t)
	env, opener := newTestEnv(t)
	env.BridgeTemplate = "COM%d"
	env.BridgeOpenBackoff = time.Millisecond

	target := newTestWorker(t, env, "COM2")
	_, _ = runWorker(t, target)
	bridger := newTestWorker(t, env, "COM1")
	_, _ = runWorker(t, bridger)

	require.Eventually(func() bool {
		return target.Phase().IsOpen() && bridger.Phase().IsOpen()
	}, waitFor, 5*time.Millisecond)

	terminal := opener.Last("COM1")
	expect := func(s string, n int) {
		t.Helper()
		require.Eventually(func() bool { return strings.Count(terminal.Output(), s) >= n }, waitFor, 5*time.Millisecond,
			"expected %q in output:\n%s", s, terminal.Output())
	}

	expect("Welcome to the Retro Serial Hub", 1)
	terminal.FeedString("5\r")
	expect("COM Port Number (Default: 1): ", 1)
	terminal.FeedString("2\r")
	for _, prompt := range []string{
		"Baud (Default: 115200): ",
		"Data Bits (Options: 8,7 Default: 8): ",
		"Stop Bits (Default: 1): ",
		"Parity (Options: O, E, N, Default: N): ",
		"XON/XOFF (Options: Y, N, Default: N): ",
		"RTS/CTS (Options: Y, N, Default: N): ",
	} {
		expect(prompt, 1)
		terminal.FeedString("\r")
	}

	expect("Routing COM2 <-> this session.", 1)
	require.Eventually(func() bool { return target.Phase().IsSurrendered() }, waitFor, 5*time.Millisecond)
	require.True(env.Registry.IsSurrendered("COM2"))
	require.Equal(2, opener.Opens("COM2"))

	bridged := opener.Last("COM2")
	bridged.FeedString("CONNECT 1200")
	expect("CONNECT 1200", 1)

	terminal.FeedString("ATM\r")
	expect("Welcome to the Retro Serial Hub", 2)
	require.Eventually(bridged.Closed, waitFor, 5*time.Millisecond)

	require.Eventually(func() bool { return target.Phase().IsOpen() }, waitFor, 5*time.Millisecond)
	require.Equal(3, opener.Opens("COM2"))
	require.False(env.Registry.IsSurrendered("COM2"))
	require.Equal(uint64(1), target.Metrics().SurrenderCount.Load())

	owner, ok := env.Registry.Owner("COM2")
	require.True(ok)
	require.Equal("worker/COM2", owner)
	require.True(bridger.Phase().IsOpen())
}
