// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package ledger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// maxLine bounds the length of a single ledger line.
const maxLine = 1 << 20

// escapedPrefix marks lines holding an encoded identity. Other lines are
// identities stored verbatim.
const escapedPrefix = "%%"

var (
	escaper   = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A")
	unescaper = strings.NewReplacer("%25", "%", "%0D", "\r", "%0A", "\n")
)

// ErrTooLong is returned by Record for identities that don't fit on a line.
var ErrTooLong = errors.New("identity too long for the ledger")

// encode returns the line identity is stored as. Only identities that can't
// be stored verbatim are encoded, so each identity has exactly one line and
// each line decodes to exactly one identity.
func encode(identity string) string {
	if strings.ContainsAny(identity, "\r\n") || strings.HasPrefix(identity, escapedPrefix) {
		return escapedPrefix + escaper.Replace(identity)
	}
	return identity
}

func decode(line string) string {
	if rest, ok := strings.CutPrefix(line, escapedPrefix); ok {
		return unescaper.Replace(rest)
	}
	return line
}

// File is a ledger stored as a UTF-8 text file, one identity per line.
//
// Files written on Windows end lines with CRLF; the carriage return is ignored
// when reading. Identities containing line breaks are stored percent-encoded
// after a "%%" marker, so every entry is exactly one line.
type File struct {
	path string
	set  set
}

// NewFile returns a ledger backed by the text file at path. The file is not
// touched until Load or Record is called.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the path of the underlying file.
func (f *File) Path() string { return f.path }

// Load reads the file. A missing file means an empty ledger. On any other
// error the ledger is left empty and usable.
func (f *File) Load(ctx context.Context) error {
	f.set.reset()

	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	s := bufio.NewScanner(file)
	s.Buffer(make([]byte, 0, 4096), maxLine)
	for s.Scan() {
		if err := ctx.Err(); err != nil {
			f.set.reset()
			return err
		}
		line := strings.TrimSuffix(s.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		f.set.add(line)
	}
	if err := s.Err(); err != nil {
		f.set.reset()
		return fmt.Errorf("reading %s: %w", f.path, err)
	}
	return nil
}

// Contains reports whether identity was recorded.
func (f *File) Contains(identity string) bool {
	return f.set.has(encode(identity))
}

// Record appends identity to the file and syncs it to disk. Recording an
// identity that is already present does nothing.
func (f *File) Record(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line := encode(identity)
	if f.set.has(line) {
		return nil
	}
	// Longer lines couldn't be read back.
	if len(line) >= maxLine {
		return fmt.Errorf("%w: %d bytes", ErrTooLong, len(line))
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(line + "\n"); err != nil {
		return errors.Join(err, file.Close())
	}
	if err := file.Sync(); err != nil {
		return errors.Join(err, file.Close())
	}
	if err := file.Close(); err != nil {
		return err
	}

	f.set.add(line)
	return nil
}

// Entries returns recorded identities in file order.
func (f *File) Entries() []string {
	entries := f.set.entries()
	for i, e := range entries {
		entries[i] = decode(e)
	}
	return entries
}
