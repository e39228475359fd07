package transfer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
)

// SendASCII streams r line by line, each line terminated with CRLF. Bytes
// outside 7-bit ASCII are dropped. There is no acknowledgment: an error
// means the stream stopped part way.
func (e *Engine) SendASCII(ctx context.Context, ch Channel, r io.Reader) (err error) {
	defer func() { e.metrics.done(err) }()

	l := e.newLineIO(ctx, ch)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	lines := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := toASCII(bytes.TrimRight(sc.Bytes(), "\r"))
		line = append(line, '\r', '\n')

		if err := l.writeAll(line); err != nil {
			return fmt.Errorf("transfer: line %d: %w", lines+1, err)
		}
		lines++
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("transfer: read source: %w", err)
	}

	e.logger.Debug("transfer: ASCII send complete", "lines", lines)

	return nil
}

func toASCII(b []byte) []byte {
	out := make([]byte, 0, len(b)+2)
	for _, c := range b {
		if c < 0x80 {
			out = append(out, c)
		}
	}

	return out
}
