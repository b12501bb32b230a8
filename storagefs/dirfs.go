// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package storagefs implements the on-disk archive tree: a root
// directory holding metadata/ and a forest of year/week partition
// directories, with atomic file writes and atomic directory renames
// so that a partition only becomes visible to readers once it is
// fully written.
package storagefs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirFS roots an archive in a local directory.
type DirFS struct {
	Root string
}

// NewDirFS constructs a DirFS rooted at dir, creating it if
// necessary.
func NewDirFS(dir string) (*DirFS, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &DirFS{Root: dir}, nil
}

func (d *DirFS) abs(rel string) string {
	return filepath.Join(d.Root, filepath.FromSlash(rel))
}

// MkdirAll creates rel (and any parents) under the archive root.
func (d *DirFS) MkdirAll(rel string) error {
	return os.MkdirAll(d.abs(rel), 0o750)
}

// WriteFile atomically creates or replaces the file at rel with
// buf: write to a temp file in the same directory, then rename, so
// readers never observe a partially written file.
func (d *DirFS) WriteFile(rel string, buf []byte) error {
	full := d.abs(rel)
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(full)+".tmp-*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(buf)
	cerr := tmp.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// AppendFile opens rel for appending, creating it and any parent
// directories if necessary.
func (d *DirFS) AppendFile(rel string) (*os.File, error) {
	full := d.abs(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return nil, err
	}
	return os.OpenFile(full, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
}

// Rename atomically moves the directory or file at oldRel to
// newRel, both relative to the archive root — used to promote a
// temp/ partition directory to its final partition-keyed name on
// roll.
func (d *DirFS) Rename(oldRel, newRel string) error {
	if err := os.MkdirAll(filepath.Dir(d.abs(newRel)), 0o750); err != nil {
		return err
	}
	return os.Rename(d.abs(oldRel), d.abs(newRel))
}

// RemoveAll removes rel and everything beneath it.
func (d *DirFS) RemoveAll(rel string) error {
	return os.RemoveAll(d.abs(rel))
}

// AppendFrom appends the contents of the file at srcRel to the file
// at dstRel, creating dstRel if necessary. Row-file blocks are
// self-contained, so appending one partition leaf to another merges
// their contents; the writer uses this when a rolled partition's
// final name collides with a directory an earlier roll already
// produced.
func (d *DirFS) AppendFrom(dstRel, srcRel string) error {
	src, err := os.Open(d.abs(srcRel))
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := d.AppendFile(dstRel)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	cerr := dst.Close()
	if err == nil {
		err = cerr
	}
	return err
}

// Exists reports whether rel exists under the archive root.
func (d *DirFS) Exists(rel string) bool {
	_, err := os.Stat(d.abs(rel))
	return err == nil
}

// ListDir returns the names of rel's immediate subdirectories, sorted
// by name — the raw material the fetch engine's partition
// pruner parses and filters.
func (d *DirFS) ListDir(rel string) ([]string, error) {
	entries, err := os.ReadDir(d.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Open opens the file at rel for reading.
func (d *DirFS) Open(rel string) (*os.File, error) {
	return os.Open(d.abs(rel))
}

// RemoveStaleTemp removes a leftover temp/ directory from a prior
// aborted put; a stale staging directory holds only unpromoted data
// and is safe to discard.
func RemoveStaleTemp(d *DirFS, rel string) error {
	err := os.RemoveAll(d.abs(rel))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storagefs: removing stale %s: %w", rel, err)
	}
	return nil
}
