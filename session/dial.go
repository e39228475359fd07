package session

import (
	"strconv"
	"strings"
)

// dialHandler is the Bulletin Boards directory. Connecting and relaying is
// done by the session; the handler picks the entry.
type dialHandler struct {
	caps    *Capabilities
	entries []DirectoryEntry
}

func newDialHandler(caps *Capabilities) (Handler, error) {
	return &dialHandler{caps: caps, entries: caps.Env.Directory}, nil
}

func (h *dialHandler) Mode() Mode { return ModeDial }

func (h *dialHandler) Render() {
	h.draw()
}

// draw shows the directory and reports whether the user quit the pager.
func (h *dialHandler) draw() bool {
	t := h.caps.Term

	if len(h.entries) == 0 {
		t.Print("\r\nNo BBS entries configured.\r\n")
		t.Print("\r\nEnter Q to return to the main menu.\r\n")
		t.Prompt()

		return false
	}

	t.Clear()
	t.Title("Available BBS Systems:")

	names := make([]string, len(h.entries))
	for i, e := range h.entries {
		names[i] = truncateName(e.Name)
	}
	lines := TwoColumn(names)

	count := 0
	for i, ln := range lines {
		t.Print(ln + "\r\n")
		count++

		if count >= dialPageLines && i < len(lines)-1 {
			if t.WaitKey(true) == 'Q' {
				return true
			}
			count = 0
		}
	}

	t.Print("\r\n")
	t.Prompt()

	return false
}

func (h *dialHandler) HandleLine(line string) (bool, Action) {
	t := h.caps.Term

	if h.caps.Connected() {
		if strings.EqualFold(line, "ATH") {
			return true, Hangup{}
		}

		return true, Transmit{Data: []byte(line + "\r\n")}
	}

	if line == "" {
		if h.draw() {
			return true, ReturnToMenu{}
		}

		return true, nil
	}

	if strings.EqualFold(line, "Q") {
		return true, ReturnToMenu{}
	}

	n, err := strconv.Atoi(line)
	if err != nil {
		t.Invalid("Invalid command")
		return true, nil
	}

	if n < 1 || n > len(h.entries) {
		t.Invalid("Invalid BBS number")
		return true, nil
	}

	return true, Dial{Entry: h.entries[n-1]}
}
