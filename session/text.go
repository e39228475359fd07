package session

import (
	"path/filepath"
	"strings"
)

// textHandler is the Text Library: a pager over the *.txt files of the
// text directory.
type textHandler struct {
	caps  *Capabilities
	dir   string
	files []string
}

func newTextHandler(caps *Capabilities) (Handler, error) {
	return &textHandler{caps: caps, dir: caps.Env.TextDir}, nil
}

func (h *textHandler) Mode() Mode { return ModeText }

func (h *textHandler) Render() {
	t := h.caps.Term

	files, err := listFiles(h.dir, ".txt")
	if err != nil {
		t.Printf("\r\n*** Unable to list text files: %v ***\r\n", err)
	}
	h.files = files

	if len(h.files) == 0 {
		t.Print("\r\nNo text files available.\r\n")
		t.Print("\r\nEnter Q to return to the main menu.\r\n")
		t.Prompt()

		return
	}

	t.Title("Text library:")
	t.Lines(TwoColumn(truncateNames(h.files)))
	t.Print("\r\nEnter the number to read the file. Enter Q to return to the main menu.\r\n")
	t.Prompt()
}

func (h *textHandler) HandleLine(line string) (bool, Action) {
	t := h.caps.Term

	switch strings.ToUpper(line) {
	case "Q":
		return true, ReturnToMenu{}
	case "":
		h.Render()
		return true, nil
	}

	idx, isNumber := selectIndex(line, len(h.files))
	switch {
	case !isNumber:
		t.Invalid("Invalid command")
		return true, nil
	case idx < 0:
		t.Invalid("Invalid file number")
		return true, nil
	}

	lines, err := readLines(filepath.Join(h.dir, h.files[idx]))
	if err != nil {
		t.Printf("\r\n*** Error reading file: %v ***\r\n", err)
		t.WaitKey(false)
		h.Render()

		return true, nil
	}

	t.Clear()
	t.Print("\r\n")
	t.Paginate(lines, textPageLines, true)
	h.Render()

	return true, nil
}
