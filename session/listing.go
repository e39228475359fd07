package session

import (
	"bufio"
	"bytes"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// listFiles returns the names of the regular files in dir, sorted. When ext
// is not empty only names with that extension, ignoring case, are returned.
func listFiles(dir string, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		names = append(names, e.Name())
	}

	return names, nil
}

// readLines returns the lines of a text file without line terminators.
// Invalid UTF-8 is dropped.
func readLines(p string) ([]string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		lines = append(lines, strings.ToValidUTF8(strings.TrimRight(sc.Text(), "\r"), ""))
	}

	return lines, sc.Err()
}

// sanitizeName reduces a user supplied file name to its base name. It
// returns "" for names that do not name a file.
func sanitizeName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := path.Base(name)

	switch base {
	case ".", "..", "/", "":
		return ""
	}

	return base
}

// selectIndex parses a 1-based list selection.
func selectIndex(line string, n int) (idx int, isNumber bool) {
	v, ok := parseIntDefault(line, 0)
	if !ok || line == "" {
		return -1, false
	}
	if v < 1 || v > n {
		return -1, true
	}

	return v - 1, true
}
