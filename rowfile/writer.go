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

package rowfile

import (
	"encoding/binary"
	"io"

	"github.com/tuplearchive/archive/compr"
)

// TargetBlockBytes bounds the amount of uncompressed row data
// buffered before a block is flushed, so a row group stays
// compressible in one pass without holding an entire partition leaf
// in memory.
const TargetBlockBytes = 1 << 20 // 1 MiB

// Writer accumulates rows into ZSTD-compressed blocks and appends
// them to an underlying file, one row-group leaf per Writer.
type Writer struct {
	w    io.Writer
	comp compr.Compressor

	pending []byte // uncompressed rows accumulated for the current block
	rows    int
}

// NewWriter returns a Writer that appends blocks compressed with
// profile (typically "zstd-archive", the level-12 profile partition
// leaves are written with) to w.
func NewWriter(w io.Writer, profile string) *Writer {
	return &Writer{w: w, comp: compr.Compression(profile)}
}

// Append buffers r for the current block, flushing the block first
// if it has grown past TargetBlockBytes.
func (wtr *Writer) Append(r Row) error {
	buf, err := appendRow(wtr.pending, r)
	if err != nil {
		return err
	}
	wtr.pending = buf
	wtr.rows++
	if len(wtr.pending) >= TargetBlockBytes {
		return wtr.flush()
	}
	return nil
}

// flush compresses and writes the current block as:
// [4-byte uncompressed length][4-byte compressed length][compressed bytes].
func (wtr *Writer) flush() error {
	if len(wtr.pending) == 0 {
		return nil
	}
	compressed := wtr.comp.Compress(wtr.pending, nil)
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(wtr.pending)))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(compressed)))
	if _, err := wtr.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := wtr.w.Write(compressed); err != nil {
		return err
	}
	wtr.pending = wtr.pending[:0]
	return nil
}

// Close flushes any buffered rows. It does not close the underlying
// writer.
func (wtr *Writer) Close() error {
	return wtr.flush()
}

// Rows returns the number of rows appended so far.
func (wtr *Writer) Rows() int {
	return wtr.rows
}
