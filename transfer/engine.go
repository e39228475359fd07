package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arloliu/go-serialhub/internal/pool"
	"github.com/arloliu/go-serialhub/logger"
)

var (
	ErrTimeout          = errors.New("transfer: timeout")
	ErrCancelled        = errors.New("transfer: cancelled by peer")
	ErrRetryExhausted   = errors.New("transfer: retries exhausted")
	ErrNoReceiver       = errors.New("transfer: no receiver detected")
	ErrEOTNotAcked      = errors.New("transfer: receiver did not acknowledge EOT")
	ErrShortFrame       = errors.New("transfer: short frame")
	ErrBadComplement    = errors.New("transfer: block number complement mismatch")
	ErrChecksumMismatch = errors.New("transfer: checksum mismatch")
)

// Channel is the byte channel a transfer runs over, normally a serial line.
//
// Read must not block for long: it returns (0, nil) when no byte is
// available, the way a serial port with a short read timeout does.
type Channel interface {
	io.Reader
	io.Writer
}

// Engine runs file transfers. An Engine may be shared by many sessions; the
// state of one transfer lives on the stack of the call running it.
type Engine struct {
	cfg     *Config
	logger  logger.Logger
	metrics Metrics
}

// NewEngine creates an engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Engine{cfg: cfg, logger: cfg.Logger()}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config { return e.cfg }

// Metrics returns the engine counters.
func (e *Engine) Metrics() *Metrics { return &e.metrics }

// --- Low-level I/O helpers ---

// lineIO buffers reads from a Channel and turns its polling reads into reads
// with deadlines.
type lineIO struct {
	ctx     context.Context //nolint:containedctx
	ch      Channel
	poll    time.Duration
	pending []byte
	buf     []byte
}

func (e *Engine) newLineIO(ctx context.Context, ch Channel) *lineIO {
	return &lineIO{
		ctx:  ctx,
		ch:   ch,
		poll: e.cfg.pollInterval,
		buf:  make([]byte, BlockSize1K+frameOverhead),
	}
}

// readByte returns the next byte, or ErrTimeout when none arrives within timeout.
func (l *lineIO) readByte(timeout time.Duration) (byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		if len(l.pending) > 0 {
			b := l.pending[0]
			l.pending = l.pending[1:]

			return b, nil
		}

		if err := l.ctx.Err(); err != nil {
			return 0, err
		}

		n, err := l.ch.Read(l.buf)
		if n > 0 {
			l.pending = append(l.pending, l.buf[:n]...)
			continue
		}
		if err != nil {
			return 0, err
		}

		if !time.Now().Before(deadline) {
			return 0, ErrTimeout
		}

		if err := pool.Sleep(l.ctx, l.poll); err != nil {
			return 0, err
		}
	}
}

// readFull reads n bytes, allowing at most interChar between two of them.
func (l *lineIO) readFull(n int, interChar time.Duration) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		b, err := l.readByte(interChar)
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}

	return out, nil
}

// drainUntilSilence discards input until the line is quiet for quiet.
func (l *lineIO) drainUntilSilence(quiet time.Duration) {
	for {
		if _, err := l.readByte(quiet); err != nil {
			return
		}
	}
}

func (l *lineIO) writeByte(b byte) error {
	return l.writeAll([]byte{b})
}

func (l *lineIO) writeAll(data []byte) error {
	for written := 0; written < len(data); {
		n, err := l.ch.Write(data[written:])
		written += n

		if err != nil {
			return err
		}
	}

	return nil
}

// waitFor reads until one of want arrives and returns it. CAN aborts, other
// bytes are ignored. ErrTimeout is returned when the deadline passes.
func (l *lineIO) waitFor(timeout time.Duration, want ...byte) (byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		b, err := l.readByte(time.Until(deadline))
		if err != nil {
			return 0, err
		}

		if b == CAN {
			return b, ErrCancelled
		}

		for _, w := range want {
			if b == w {
				return b, nil
			}
		}
	}
}

// --- Send ---

// sendFrame writes frame and waits for its ACK, resending the identical
// bytes on every NAK. Each resend restarts the block timeout.
func (e *Engine) sendFrame(l *lineIO, frame *Frame) error {
	pkt := frame.Pack()
	retry := 0

	for {
		if err := l.writeAll(pkt); err != nil {
			return fmt.Errorf("transfer: write block %d: %w", frame.Number, err)
		}

		b, err := l.waitFor(e.cfg.blockTimeout, ACK, NAK)
		switch {
		case errors.Is(err, ErrTimeout):
			return fmt.Errorf("%w: waiting for reply to block %d", ErrTimeout, frame.Number)
		case err != nil:
			return err
		case b == ACK:
			e.metrics.incBlockSendCount()
			return nil
		}

		retry++
		e.metrics.incRetryCount()
		e.logger.Debug("transfer: block rejected, resending",
			"block", frame.Number,
			"retry", retry,
			"maxRetry", e.cfg.retryLimit,
		)

		if retry > e.cfg.retryLimit {
			return fmt.Errorf("%w: block %d", ErrRetryExhausted, frame.Number)
		}
	}
}

// sendBlocks frames data into size-byte blocks numbered from 1, wrapping
// from 255 to 0, and sends them in order.
func (e *Engine) sendBlocks(l *lineIO, data []byte, size int) error {
	number := byte(1)

	for off := 0; off < len(data); off += size {
		end := min(off+size, len(data))

		if err := e.sendFrame(l, NewFrame(number, data[off:end], size, Pad)); err != nil {
			return err
		}

		number++
	}

	return nil
}

// finish sends EOT and waits for the final ACK, resending EOT on NAK.
// Data already sent is not retracted when this fails.
func (e *Engine) finish(l *lineIO) error {
	retry := 0

	for {
		if err := l.writeByte(EOT); err != nil {
			return fmt.Errorf("transfer: write EOT: %w", err)
		}

		b, err := l.waitFor(e.cfg.eotTimeout, ACK, NAK)
		switch {
		case errors.Is(err, ErrTimeout):
			return ErrEOTNotAcked
		case err != nil:
			return err
		case b == ACK:
			return nil
		}

		retry++
		e.metrics.incRetryCount()
		if retry > e.cfg.retryLimit {
			return fmt.Errorf("%w: EOT", ErrRetryExhausted)
		}
	}
}

// waitReceiver waits for the receiver's start request.
func (e *Engine) waitReceiver(l *lineIO, want ...byte) error {
	_, err := l.waitFor(e.cfg.startTimeout, want...)
	if errors.Is(err, ErrTimeout) {
		return ErrNoReceiver
	}

	return err
}
