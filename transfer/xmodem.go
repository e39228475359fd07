package transfer

import (
	"context"
	"errors"
	"fmt"
)

// SendXMODEM sends data as classic XMODEM: 128-byte blocks with an 8-bit
// checksum, the last short block padded with 0x1A.
//
// The first frame goes out only after the receiver sends NAK (or ACK) within
// the start timeout; otherwise ErrNoReceiver is returned. A CAN from the
// receiver aborts with ErrCancelled, a missing reply with ErrTimeout.
func (e *Engine) SendXMODEM(ctx context.Context, ch Channel, data []byte) (err error) {
	defer func() { e.metrics.done(err) }()

	l := e.newLineIO(ctx, ch)

	if err := e.waitReceiver(l, NAK, ACK); err != nil {
		return err
	}

	if err := e.sendBlocks(l, data, BlockSize); err != nil {
		return err
	}

	return e.finish(l)
}

// ReceiveXMODEM receives a classic XMODEM transfer and returns the data with
// trailing 0x1A padding removed.
//
// Nothing is returned unless the sender ends with EOT. Each wait for a block
// is bounded by the block timeout and answered with NAK when it expires;
// after more consecutive failures than the retry limit the transfer is
// cancelled with ErrRetryExhausted.
func (e *Engine) ReceiveXMODEM(ctx context.Context, ch Channel) (out []byte, err error) {
	defer func() { e.metrics.done(err) }()

	l := e.newLineIO(ctx, ch)
	expected := byte(1)
	accepted := 0
	failures := 0
	received := make([]byte, 0, 16*BlockSize)

	reject := func(reason error) error {
		failures++
		e.metrics.incRetryCount()
		e.logger.Debug("transfer: rejecting block",
			"expected", expected,
			"failures", failures,
			"error", reason,
		)

		if failures > e.cfg.retryLimit {
			_ = l.writeAll([]byte{CAN, CAN})
			return fmt.Errorf("%w: %w", ErrRetryExhausted, reason)
		}

		return l.writeByte(NAK)
	}

	if err := l.writeByte(NAK); err != nil {
		return nil, fmt.Errorf("transfer: write NAK: %w", err)
	}

	for {
		c, err := l.readByte(e.cfg.blockTimeout)
		if errors.Is(err, ErrTimeout) {
			if err := reject(err); err != nil {
				return nil, err
			}

			continue
		}
		if err != nil {
			return nil, err
		}

		switch c {
		case SOH:
			body, err := l.readFull(BlockSize+3, e.cfg.interCharTimeout)
			if errors.Is(err, ErrTimeout) {
				if err := reject(fmt.Errorf("%w: got %d bytes", ErrShortFrame, len(body))); err != nil {
					return nil, err
				}

				continue
			}
			if err != nil {
				return nil, err
			}

			frame, err := ParseFrame(SOH, body)
			if err != nil {
				l.drainUntilSilence(e.cfg.interCharTimeout)
				if err := reject(err); err != nil {
					return nil, err
				}

				continue
			}

			switch {
			case frame.Number == expected:
				received = append(received, frame.Data...)
				if err := l.writeByte(ACK); err != nil {
					return nil, fmt.Errorf("transfer: write ACK: %w", err)
				}
				e.metrics.incBlockRecvCount()
				accepted++
				expected++
				failures = 0

			case e.cfg.duplicateDetection && accepted > 0 && frame.Number == expected-1:
				// the sender missed our ACK
				e.logger.Debug("transfer: duplicate block dropped", "block", frame.Number)
				if err := l.writeByte(ACK); err != nil {
					return nil, fmt.Errorf("transfer: write ACK: %w", err)
				}

			default:
				if err := reject(fmt.Errorf("transfer: got block %d, want %d", frame.Number, expected)); err != nil {
					return nil, err
				}
			}

		case EOT:
			if err := l.writeByte(ACK); err != nil {
				return nil, fmt.Errorf("transfer: write ACK: %w", err)
			}

			return StripPadding(received), nil

		case CAN:
			return nil, ErrCancelled
		}
	}
}
