// Package ledger keeps the append-only file of keywords seen per
// half-month bucket.
package ledger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Ledger is a plain text file with one keyword per line. A single
// process is expected to own the file while appending.
type Ledger struct {
	path string
}

// Open returns the ledger at path; the file is created on first append
func Open(path string) *Ledger {
	return &Ledger{path: path}
}

// Append writes every keyword that is not already a line of the file.
// The file is re-read right before writing, so running twice with the
// same input appends nothing the second time.
func (l *Ledger) Append(keywords []string) (added []string, err error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close ledger: %w", closeErr)
		}
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	members, terminated := parseMembers(data)
	present := make(map[string]bool, len(members))
	for _, m := range members {
		present[m] = true
	}

	var buf bytes.Buffer
	if !terminated {
		// never glue a new keyword onto an unterminated last line
		buf.WriteByte('\n')
	}
	for _, kw := range keywords {
		if kw == "" || strings.ContainsAny(kw, "\r\n") || present[kw] {
			continue
		}
		present[kw] = true
		buf.WriteString(kw)
		buf.WriteByte('\n')
		added = append(added, kw)
	}
	if len(added) == 0 {
		return nil, nil
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("append ledger: %w", err)
	}
	return added, nil
}

// parseMembers returns the lines that end with a newline. An unterminated
// last line is not a member; terminated is false when one exists.
func parseMembers(data []byte) (members []string, terminated bool) {
	if len(data) == 0 {
		return nil, true
	}
	lines := strings.SplitAfter(string(data), "\n")
	for _, line := range lines {
		if strings.HasSuffix(line, "\n") {
			members = append(members, strings.TrimSuffix(line, "\n"))
		}
	}
	return members, strings.HasSuffix(string(data), "\n")
}
