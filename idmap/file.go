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

package idmap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirFile is a File implementation that appends rows to a single
// flat file under the archive's metadata directory — the
// itemMapping/propertyMapping/contextMapping files under metadata/.
// Each row is a fixed 12-byte header (8-byte id, 4-byte uri length)
// followed by the UTF-8 uri bytes: a mapping is only ever scanned
// front to back over its two logical columns, so a flat append log
// stands in for the columnar container the partition leaves use.
type DirFile struct {
	path string
	f    *os.File
}

// OpenDirFile opens (creating if necessary) the mapping file at
// path for appending, and leaves it positioned for Append calls.
func OpenDirFile(path string) (*DirFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &DirFile{path: path, f: f}, nil
}

// Append implements File.
func (d *DirFile) Append(id uint64, uri string) error {
	var hdr [12]byte
	binary.BigEndian.PutUint64(hdr[0:8], id)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(uri)))
	if _, err := d.f.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := d.f.Write([]byte(uri)); err != nil {
		return err
	}
	return d.f.Sync()
}

// Load implements File.
func (d *DirFile) Load(fn func(id uint64, uri string) error) error {
	r, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer r.Close()
	br := bufio.NewReader(r)
	var hdr [12]byte
	for {
		_, err := io.ReadFull(br, hdr[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("idmap: reading %s: %w", d.path, err)
		}
		id := binary.BigEndian.Uint64(hdr[0:8])
		n := binary.BigEndian.Uint32(hdr[8:12])
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return fmt.Errorf("idmap: reading %s: %w", d.path, err)
		}
		if err := fn(id, string(buf)); err != nil {
			return err
		}
	}
}

// Close closes the underlying file handle.
func (d *DirFile) Close() error {
	return d.f.Close()
}
