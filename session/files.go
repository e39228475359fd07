package session

import (
	"path/filepath"
	"strings"
)

// filesHandler is the File Transfers menu. Transfers themselves run in the
// session; the handler picks the file and protocol.
type filesHandler struct {
	caps      *Capabilities
	dir       string
	files     []string
	protocol  Protocol
	uploading bool
}

func newFilesHandler(caps *Capabilities) (Handler, error) {
	return &filesHandler{caps: caps, dir: caps.Env.FilesDir, protocol: ProtocolXMODEM}, nil
}

func (h *filesHandler) Mode() Mode { return ModeFiles }

func (h *filesHandler) Render() {
	t := h.caps.Term

	files, err := listFiles(h.dir, "")
	if err != nil {
		t.Printf("\r\n*** Unable to list files: %v ***\r\n", err)
	}
	h.files = files
	h.uploading = false

	t.Printf("\r\nFile Transfer Menu (Current mode: %s)\r\n\r\n", h.protocol)
	t.Lines(TwoColumn(truncateNames(h.files)))
	t.Print("\r\nEnter number to transfer, U=Upload, X=XMODEM, Y=YMODEM, A=ASCII, Q=Quit\r\n")
	t.Prompt()
}

func (h *filesHandler) HandleLine(line string) (bool, Action) {
	t := h.caps.Term

	if h.uploading {
		if line == "" {
			t.Print("Filename: ")
			return true, nil
		}

		name := sanitizeName(line)
		if name == "" {
			t.Print("\r\nInvalid filename. Enter filename to save as: ")
			return true, nil
		}
		h.uploading = false

		return true, ReceiveFile{Path: filepath.Join(h.dir, name)}
	}

	switch strings.ToUpper(line) {
	case "":
		h.Render()
		return true, nil
	case "Q":
		return true, ReturnToMenu{}
	case "U":
		h.uploading = true
		t.Print("\r\nEnter filename to save as: ")

		return true, nil
	case "X":
		h.protocol = ProtocolXMODEM
		h.Render()

		return true, nil
	case "Y":
		h.protocol = ProtocolYMODEM
		h.Render()

		return true, nil
	case "A":
		h.protocol = ProtocolASCII
		h.Render()

		return true, nil
	}

	idx, isNumber := selectIndex(line, len(h.files))
	switch {
	case !isNumber:
		t.Invalid("Invalid command")
	case idx < 0:
		t.Invalid("Invalid file number")
	default:
		return true, SendFile{Protocol: h.protocol, Path: filepath.Join(h.dir, h.files[idx])}
	}

	return true, nil
}
