package transfer

import "context"

// SendYMODEM sends one file as YMODEM batch: a block 0 header carrying name
// and size, then 1024-byte STX blocks padded with 0x1A, then EOT.
//
// The receiver may start with either NAK or 'C'. Frames use the same 8-bit
// checksum as XMODEM.
func (e *Engine) SendYMODEM(ctx context.Context, ch Channel, name string, data []byte) (err error) {
	defer func() { e.metrics.done(err) }()

	header, err := HeaderFrame(name, len(data))
	if err != nil {
		return err
	}

	l := e.newLineIO(ctx, ch)

	if err := e.waitReceiver(l, NAK, CRCRequest); err != nil {
		return err
	}

	if err := e.sendFrame(l, header); err != nil {
		return err
	}

	if err := e.sendBlocks(l, data, BlockSize1K); err != nil {
		return err
	}

	return e.finish(l)
}
