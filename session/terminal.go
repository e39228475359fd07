package session

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/arloliu/go-serialhub/internal/pool"
	"github.com/arloliu/go-serialhub/serialport"
)

// Screen layout constants.
const (
	leftColumnWidth = 38
	maxNameWidth    = 34
	textPageLines   = 22
	dialPageLines   = 19
)

const (
	ansiClear   = "\x1b[2J\x1b[H"
	commandText = "Command: "
)

// Terminal writes to and reads keys from the local serial line of a session.
//
// Write failures are sticky: the first one is kept and returned by Err, and
// every later write is dropped. The session loop checks Err after each step.
type Terminal struct {
	ctx     context.Context //nolint:containedctx
	port    serialport.Port
	ansi    bool
	keyWait time.Duration
	poll    time.Duration
	title   *color.Color
	err     error
}

func newTerminal(ctx context.Context, port serialport.Port, ansi bool, keyWait time.Duration) *Terminal {
	title := color.New(color.FgHiCyan, color.Bold)
	title.EnableColor()

	return &Terminal{
		ctx:     ctx,
		port:    port,
		ansi:    ansi,
		keyWait: keyWait,
		poll:    10 * time.Millisecond,
		title:   title,
	}
}

// ANSI reports whether the terminal understands ANSI escapes.
func (t *Terminal) ANSI() bool { return t.ansi }

// Err returns the first write or read failure on the line.
func (t *Terminal) Err() error { return t.err }

func (t *Terminal) Write(p []byte) (int, error) {
	if t.err != nil {
		return 0, t.err
	}

	for written := 0; written < len(p); {
		n, err := t.port.Write(p[written:])
		written += n

		if err != nil {
			t.err = err
			return written, err
		}
	}

	return len(p), nil
}

// Print writes s as is.
func (t *Terminal) Print(s string) {
	_, _ = t.Write([]byte(s))
}

func (t *Terminal) Printf(format string, args ...any) {
	t.Print(fmt.Sprintf(format, args...))
}

// Prompt writes the command prompt.
func (t *Terminal) Prompt() {
	t.Print(commandText)
}

// Invalid reports a rejected command and prompts again.
func (t *Terminal) Invalid(msg string) {
	t.Print(msg + "\r\n")
	t.Prompt()
}

// Clear clears the screen on ANSI terminals and starts a new line otherwise.
func (t *Terminal) Clear() {
	if t.ansi {
		t.Print(ansiClear)
		return
	}
	t.Print("\r\n")
}

// Title writes a heading line, coloured on ANSI terminals.
func (t *Terminal) Title(text string) {
	if t.ansi {
		text = t.title.Sprint(text)
	}
	t.Print("\r\n" + text + "\r\n\r\n")
}

// Lines writes each line followed by CRLF.
func (t *Terminal) Lines(lines []string) {
	for _, ln := range lines {
		t.Print(ln + "\r\n")
	}
}

// ReadKey waits up to timeout for one byte from the line. ok is false when
// the wait timed out, the context ended or the line failed.
func (t *Terminal) ReadKey(timeout time.Duration) (byte, bool) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1)

	for t.err == nil {
		if t.ctx.Err() != nil {
			return 0, false
		}

		n, err := t.port.Read(buf)
		if err != nil {
			t.err = err
			return 0, false
		}
		if n > 0 {
			return buf[0], true
		}

		if !time.Now().Before(deadline) {
			return 0, false
		}

		if pool.Sleep(t.ctx, t.poll) != nil {
			return 0, false
		}
	}

	return 0, false
}

// WaitKey prints the continue prompt and waits for a key. It returns the key
// upper-cased. An idle line counts as 'Q'.
func (t *Terminal) WaitKey(withQuit bool) byte {
	if withQuit {
		t.Print("\r\nPress any key to continue (Q to quit)...\r\n")
	} else {
		t.Print("\r\nPress any key to continue...\r\n")
	}

	key, ok := t.ReadKey(t.keyWait)
	if !ok {
		return 'Q'
	}

	if key >= 'a' && key <= 'z' {
		key -= 'a' - 'A'
	}

	return key
}

// Paginate writes lines pageLines at a time with a key wait between pages.
// With withQuit a final key wait follows the last page. It reports whether
// the user quit with Q.
func (t *Terminal) Paginate(lines []string, pageLines int, withQuit bool) bool {
	count := 0
	for _, ln := range lines {
		t.Print(ln + "\r\n")
		count++

		if count >= pageLines {
			if t.WaitKey(withQuit) == 'Q' {
				return true
			}
			count = 0
		}
	}

	if withQuit {
		return t.WaitKey(withQuit) == 'Q'
	}

	return false
}

// TwoColumn lays out a numbered list in two columns, the second column
// starting at column 38. Numbering runs down the left column first.
func TwoColumn(items []string) []string {
	half := (len(items) + 1) / 2
	lines := make([]string, 0, half)

	for i := 0; i < half; i++ {
		left := fmt.Sprintf("%2d] %s", i+1, items[i])

		j := i + half
		if j >= len(items) || items[j] == "" {
			lines = append(lines, left)
			continue
		}

		right := fmt.Sprintf("%2d] %s", j+1, items[j])
		lines = append(lines, padRight(left, leftColumnWidth)+right)
	}

	return lines
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}

	return s + strings.Repeat(" ", width-n)
}

// truncateName shortens names wider than maxNameWidth.
func truncateName(name string) string {
	if utf8.RuneCountInString(name) <= maxNameWidth {
		return name
	}

	r := []rune(name)

	return string(r[:maxNameWidth-3]) + "..."
}

func truncateNames(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = truncateName(n)
	}

	return out
}
