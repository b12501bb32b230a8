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
	"fmt"
	"io"

	"github.com/tuplearchive/archive/archiveerr"
	"github.com/tuplearchive/archive/compr"
	"github.com/tuplearchive/archive/partkey"
)

// Predicate reports whether a row whose id is k should be decoded.
// Because the id column is stored first in every row frame, a
// Predicate lets Reader.Next skip a non-matching row's value bytes
// entirely instead of decoding them.
type Predicate func(k partkey.Key) bool

// Exact matches rows whose id is exactly k, the pruning used by a
// fetch for one fully-specified (item, property, context) triple.
func Exact(k partkey.Key) Predicate {
	return func(x partkey.Key) bool { return x == k }
}

// ItemIn matches rows whose item id falls within [min, max], used
// when scanning every property and context of an item.
func ItemIn(min, max uint64) Predicate {
	return func(x partkey.Key) bool { return x.Item >= min && x.Item <= max }
}

// All matches every row; equivalent to a nil Predicate.
func All() Predicate { return nil }

// Reader decodes the blocks a Writer produced, applying a Predicate
// to each row's id before paying the cost of decoding its value.
type Reader struct {
	r      io.Reader
	decomp compr.Decompressor

	block []byte
	off   int
}

// NewReader returns a Reader over r, whose blocks were compressed
// with profile (matched against the same name a Writer used; "zstd"
// and "zstd-archive" share a decoder).
func NewReader(r io.Reader, profile string) *Reader {
	return &Reader{r: r, decomp: compr.Decompression(profile)}
}

// nextBlock reads and decompresses the next block into rd.block,
// resetting rd.off to 0. It returns io.EOF once the underlying
// reader is exhausted between blocks.
func (rd *Reader) nextBlock() error {
	var hdr [8]byte
	if _, err := io.ReadFull(rd.r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return archiveerr.New(archiveerr.KindIOFailure, "rowfile.Reader.nextBlock",
				fmt.Errorf("truncated block header"))
		}
		return err // io.EOF propagates as-is
	}
	uncompressedLen := binary.BigEndian.Uint32(hdr[0:4])
	compressedLen := binary.BigEndian.Uint32(hdr[4:8])
	compressed := make([]byte, compressedLen)
	if _, err := io.ReadFull(rd.r, compressed); err != nil {
		return archiveerr.New(archiveerr.KindIOFailure, "rowfile.Reader.nextBlock", err)
	}
	block := make([]byte, uncompressedLen)
	if err := rd.decomp.Decompress(compressed, block); err != nil {
		return archiveerr.New(archiveerr.KindIOFailure, "rowfile.Reader.nextBlock", err)
	}
	rd.block = block
	rd.off = 0
	return nil
}

// Next returns the next row matching pred (nil matches everything),
// decoding only the rows that pass the predicate. It returns
// (Row{}, false, nil) at end of stream.
func (rd *Reader) Next(pred Predicate) (Row, bool, error) {
	for {
		if rd.block == nil || rd.off >= len(rd.block) {
			if err := rd.nextBlock(); err != nil {
				if err == io.EOF {
					return Row{}, false, nil
				}
				return Row{}, false, err
			}
			continue
		}
		if rd.off+4 > len(rd.block) {
			return Row{}, false, archiveerr.New(archiveerr.KindIOFailure, "rowfile.Reader.Next",
				fmt.Errorf("truncated row frame length"))
		}
		bodyLen := int(binary.BigEndian.Uint32(rd.block[rd.off : rd.off+4]))
		start := rd.off + 4
		end := start + bodyLen
		if end > len(rd.block) {
			return Row{}, false, archiveerr.New(archiveerr.KindIOFailure, "rowfile.Reader.Next",
				fmt.Errorf("truncated row body"))
		}
		body := rd.block[start:end]
		rd.off = end

		if pred != nil {
			if bodyLen < partkey.Size {
				return Row{}, false, archiveerr.New(archiveerr.KindIOFailure, "rowfile.Reader.Next",
					fmt.Errorf("row body too short for id column"))
			}
			id, err := partkey.FromBytes(body[0:partkey.Size])
			if err != nil {
				return Row{}, false, archiveerr.New(archiveerr.KindIOFailure, "rowfile.Reader.Next", err)
			}
			if !pred(id) {
				continue
			}
		}
		row, err := decodeRowBody(body)
		if err != nil {
			return Row{}, false, err
		}
		return row, true, nil
	}
}
