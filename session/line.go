package session

import "strings"

const (
	bs  = 0x08
	del = 0x7F
)

// lineAssembler collects bytes into command lines.
//
// CR and LF end a line and are dropped, together with every CR or LF that
// directly follows in the same read. A pair split across two reads (CR at
// the end of one, LF at the start of the next) still counts as one
// terminator. Enter pressed again in a later read yields an empty line.
// BS and DEL erase the last byte.
type lineAssembler struct {
	buf []byte
	// splitTerm is the terminator that ended the previous read, when it was
	// that read's last byte.
	splitTerm byte
}

// Feed consumes data and returns the lines it completed.
func (a *lineAssembler) Feed(data []byte) []string {
	var lines []string

	collapsing := false
	split := a.splitTerm
	a.splitTerm = 0

	for i, b := range data {
		switch b {
		case '\r', '\n':
			if collapsing {
				continue
			}
			collapsing = true
			if i == 0 && split != 0 && split != b {
				continue
			}
			lines = append(lines, decodeLine(a.buf))
			a.buf = a.buf[:0]
			if i == len(data)-1 {
				a.splitTerm = b
			}

		case bs, del:
			collapsing = false
			if len(a.buf) > 0 {
				a.buf = a.buf[:len(a.buf)-1]
			}

		default:
			collapsing = false
			a.buf = append(a.buf, b)
		}
	}

	return lines
}

// Reset drops any partial line.
func (a *lineAssembler) Reset() {
	a.buf = a.buf[:0]
	a.splitTerm = 0
}

func decodeLine(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}
