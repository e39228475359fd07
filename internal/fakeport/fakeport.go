// Package fakeport provides in-memory serial lines for tests.
package fakeport

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/arloliu/go-serialhub/serialport"
)

// ErrClosed is returned by operations on a closed Port.
var ErrClosed = errors.New("fakeport: port closed")

// Port is an in-memory serial line. Bytes passed to Feed are returned by
// Read, bytes passed to Write are recorded and, when the port is one end of
// a Pair, fed to the peer.
type Port struct {
	ID string

	mu          sync.Mutex
	in          bytes.Buffer
	out         bytes.Buffer
	closed      bool
	readErr     error
	readTimeout time.Duration
	peer        *Port
	notify      chan struct{}
}

var _ serialport.Port = (*Port)(nil)

// New returns an open fake port.
func New(id string) *Port {
	return &Port{ID: id, readTimeout: 5 * time.Millisecond, notify: make(chan struct{}, 1)}
}

// NewPair returns two ports wired back to back.
func NewPair() (*Port, *Port) {
	a, b := New("A"), New("B")
	a.peer, b.peer = b, a

	return a, b
}

// Feed queues bytes for Read.
func (p *Port) Feed(data []byte) {
	p.mu.Lock()
	p.in.Write(data)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// FeedString queues s for Read.
func (p *Port) FeedString(s string) { p.Feed([]byte(s)) }

// FailReads makes every following Read return err.
func (p *Port) FailReads(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
}

// Output returns a copy of everything written so far.
func (p *Port) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.out.String()
}

// ResetOutput discards the recorded output.
func (p *Port) ResetOutput() {
	p.mu.Lock()
	p.out.Reset()
	p.mu.Unlock()
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if p.readErr != nil {
		err := p.readErr
		p.mu.Unlock()

		return 0, err
	}
	if p.in.Len() > 0 {
		n, _ := p.in.Read(b)
		p.mu.Unlock()

		return n, nil
	}
	timeout := p.readTimeout
	p.mu.Unlock()

	select {
	case <-p.notify:
	case <-time.After(timeout):
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	n, _ := p.in.Read(b)

	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	p.out.Write(b)
	peer := p.peer
	p.mu.Unlock()

	if peer != nil {
		peer.Feed(b)
	}

	return len(b), nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.closed = true

	return nil
}

func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.readTimeout = t
	p.mu.Unlock()

	return nil
}

// ErrBusy is returned by Opener.Open while the previous handle of a line is still open.
var ErrBusy = errors.New("fakeport: port busy")

// Opener hands out fake ports. Like a real OS it refuses a second open of a
// line whose previous handle has not been closed.
type Opener struct {
	mu      sync.Mutex
	errs    map[string]error
	last    map[string]*Port
	configs map[string]*serialport.PortConfig
	counts  map[string]int
}

var _ serialport.Opener = (*Opener)(nil)

// NewOpener returns an opener where every line exists.
func NewOpener() *Opener {
	return &Opener{
		errs:    make(map[string]error),
		last:    make(map[string]*Port),
		configs: make(map[string]*serialport.PortConfig),
		counts:  make(map[string]int),
	}
}

// SetError makes opens of id fail with err until cleared with a nil err.
func (o *Opener) SetError(id string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err == nil {
		delete(o.errs, id)
		return
	}
	o.errs[id] = err
}

// Open implements serialport.Opener.
func (o *Opener) Open(cfg *serialport.PortConfig) (serialport.Port, error) {
	id := cfg.ID()

	o.mu.Lock()
	defer o.mu.Unlock()

	o.counts[id]++
	if err, ok := o.errs[id]; ok {
		return nil, &serialport.OpenError{ID: id, Err: err}
	}
	if prev, ok := o.last[id]; ok && !prev.Closed() {
		return nil, &serialport.OpenError{ID: id, Err: ErrBusy}
	}

	p := New(id)
	o.last[id] = p
	o.configs[id] = cfg

	return p, nil
}

// Last returns the most recently opened port for id.
func (o *Opener) Last(id string) *Port {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.last[id]
}

// LastConfig returns the configuration of the most recent successful open of id.
func (o *Opener) LastConfig(id string) *serialport.PortConfig {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.configs[id]
}

// Opens returns how many times Open was called for id.
func (o *Opener) Opens(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.counts[id]
}
