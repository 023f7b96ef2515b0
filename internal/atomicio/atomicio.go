// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package atomicio writes files atomically, keeping a few backups of what
// was replaced.
package atomicio

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const backupTimeFormat = "20060102150405.000000000"

// MaxBackups is how many backups of a file WriteFile keeps.
const MaxBackups = 5

// WriteFile writes data to name atomically: readers see either the old or
// the new contents, never a partial write. The replaced file is kept as
// name.<timestamp>.bak and old backups beyond [MaxBackups] are removed.
func WriteFile(name string, data []byte, perm fs.FileMode) (err error) {
	// Same directory, so the rename below stays on one filesystem.
	f, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Chmod(perm); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := backup(name); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), name); err != nil {
		return err
	}
	return pruneBackups(name)
}

// backup hard-links the current file to a timestamped name, so name itself
// never disappears.
func backup(name string) error {
	if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	backupName := name + "." + time.Now().UTC().Format(backupTimeFormat) + ".bak"
	return os.Link(name, backupName)
}

// Backups returns the backups of name, oldest first.
func Backups(name string) ([]string, error) {
	backups, err := filepath.Glob(name + ".*.bak")
	if err != nil {
		return nil, err
	}
	slices.Sort(backups)
	return backups, nil
}

func pruneBackups(name string) error {
	backups, err := Backups(name)
	if err != nil {
		return err
	}
	if len(backups) <= MaxBackups {
		return nil
	}
	var errs []error
	for _, b := range backups[:len(backups)-MaxBackups] {
		if err := os.Remove(b); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
