package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type notesState int

const (
	notesBrowse notesState = iota
	notesTitle
	notesBody
	notesConfirmDelete
)

const noteTerminator = "END"

// notesHandler lists, shows, creates and deletes the notes of the notes
// directory.
type notesHandler struct {
	caps    *Capabilities
	dir     string
	notes   []string
	state   notesState
	title   string
	body    []string
	pending string
}

func newNotesHandler(caps *Capabilities) (Handler, error) {
	return &notesHandler{caps: caps, dir: caps.Env.NotesDir}, nil
}

func (h *notesHandler) Mode() Mode { return ModeNotes }

func (h *notesHandler) Render() {
	t := h.caps.Term
	h.state = notesBrowse

	notes, err := listFiles(h.dir, ".txt")
	if err != nil {
		t.Printf("\r\n*** Unable to list notes: %v ***\r\n", err)
	}
	h.notes = notes

	if len(h.notes) == 0 {
		t.Print("\r\nNo notes available.\r\n")
		t.Print("\r\nC=Create, Q=Quit\r\n")
		t.Prompt()

		return
	}

	t.Title("Notes:")
	t.Lines(TwoColumn(truncateNames(h.notes)))
	t.Print("\r\nEnter number to read, C=Create, D=Delete, Q=Quit\r\n")
	t.Prompt()
}

func (h *notesHandler) HandleLine(line string) (bool, Action) {
	switch h.state {
	case notesTitle:
		return h.handleTitle(line)
	case notesBody:
		return h.handleBody(line)
	case notesConfirmDelete:
		return h.handleConfirm(line)
	}

	t := h.caps.Term
	upper := strings.ToUpper(line)

	switch {
	case upper == "":
		h.Render()
		return true, nil
	case upper == "Q":
		return true, ReturnToMenu{}
	case upper == "C":
		h.state = notesTitle
		t.Print("\r\nTitle: ")

		return true, nil
	case upper[0] == 'D' && len(upper) > 1:
		idx, isNumber := selectIndex(strings.TrimSpace(line[1:]), len(h.notes))
		switch {
		case !isNumber:
			t.Invalid("Invalid delete syntax")
		case idx < 0:
			t.Invalid("Invalid note number")
		default:
			h.pending = h.notes[idx]
			h.state = notesConfirmDelete
			t.Printf("\r\nAre you sure you want to delete %s? (Y/N): ", h.pending)
		}

		return true, nil
	}

	idx, isNumber := selectIndex(line, len(h.notes))
	switch {
	case !isNumber:
		t.Invalid("Invalid command")
		return true, nil
	case idx < 0:
		t.Invalid("Invalid note number")
		return true, nil
	}

	lines, err := readLines(filepath.Join(h.dir, h.notes[idx]))
	if err != nil {
		t.Printf("\r\n*** Error reading note: %v ***\r\n", err)
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

func (h *notesHandler) handleTitle(line string) (bool, Action) {
	name := sanitizeName(line)
	if name == "" {
		h.caps.Term.Print("\r\nNote cancelled.\r\n")
		h.Render()

		return true, nil
	}

	if !strings.EqualFold(filepath.Ext(name), ".txt") {
		name += ".txt"
	}

	h.title = name
	h.body = h.body[:0]
	h.state = notesBody
	h.caps.Term.Print("\r\nEnter note text. Type END on a line by itself to finish.\r\n")

	return true, nil
}

func (h *notesHandler) handleBody(line string) (bool, Action) {
	if line != noteTerminator {
		h.body = append(h.body, line)
		return true, nil
	}

	t := h.caps.Term
	p, err := h.uniquePath(h.title)
	if err == nil {
		err = os.WriteFile(p, []byte(strings.Join(h.body, "\n")+"\n"), 0o644) //nolint:gosec
	}

	if err != nil {
		t.Printf("\r\n*** Unable to save note: %v ***\r\n", err)
	} else {
		t.Printf("\r\nSaved %s.\r\n", filepath.Base(p))
		h.caps.Env.Logger.Info("note created", "note", filepath.Base(p), "by", h.caps.LocalID)
	}

	h.Render()

	return true, nil
}

func (h *notesHandler) handleConfirm(line string) (bool, Action) {
	t := h.caps.Term

	if strings.EqualFold(line, "Y") {
		if err := os.Remove(filepath.Join(h.dir, h.pending)); err != nil {
			t.Printf("\r\n*** Unable to delete %s: %v ***\r\n", h.pending, err)
		} else {
			t.Printf("\r\nDeleted %s.\r\n", h.pending)
			h.caps.Env.Logger.Info("note deleted", "note", h.pending, "by", h.caps.LocalID)
		}
	}

	h.pending = ""
	h.Render()

	return true, nil
}

// uniquePath returns a path in the notes directory for name that does not
// exist yet, adding -1, -2, ... before the extension when needed.
func (h *notesHandler) uniquePath(name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}

		p := filepath.Join(h.dir, candidate)
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return p, nil
		} else if err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("session: no free note name for %q", name)
}
