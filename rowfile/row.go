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

// Package rowfile implements the row file container that backs each
// "data.parquet" partition leaf: a block-buffered, ZSTD-compressed
// row format with predicate pushdown on the leading id column, which
// is all the fetch path asks of its columnar container.
package rowfile

import (
	"encoding/binary"
	"fmt"

	"github.com/tuplearchive/archive/archiveerr"
	"github.com/tuplearchive/archive/partkey"
	"github.com/tuplearchive/archive/value"
)

// valueKind tags which value column of the row is populated:
// exactly one of valueInt/valueLong/valueFloat/valueDouble/
// valueString/valueBool/valueObject.
type valueKind byte

const (
	kindInt32 valueKind = iota + 1
	kindInt64
	kindFloat32
	kindFloat64
	kindString
	kindBool
	kindObject
)

// Row is one on-disk row: (id, time, seqNr, value).
type Row struct {
	ID    partkey.Key
	Time  int64
	SeqNr int32
	Value value.Value
}

// appendRow serializes one row as a length-prefixed frame:
// [4-byte frame length][24-byte id][8-byte time][4-byte seqNr]
// [1-byte kind][payload]. The id is placed immediately after the
// length so a reader can test the predicate after reading only 28
// bytes and skip the rest of the frame on a miss.
func appendRow(dst []byte, r Row) ([]byte, error) {
	body, err := encodeRowBody(r)
	if err != nil {
		return nil, err
	}
	var lenbuf [4]byte
	binary.BigEndian.PutUint32(lenbuf[:], uint32(len(body)))
	dst = append(dst, lenbuf[:]...)
	dst = append(dst, body...)
	return dst, nil
}

func encodeRowBody(r Row) ([]byte, error) {
	id := r.ID.Bytes()
	body := make([]byte, 0, partkey.Size+8+4+1+8)
	body = append(body, id[:]...)
	var tbuf [8]byte
	binary.BigEndian.PutUint64(tbuf[:], uint64(r.Time))
	body = append(body, tbuf[:]...)
	var sbuf [4]byte
	binary.BigEndian.PutUint32(sbuf[:], uint32(r.SeqNr))
	body = append(body, sbuf[:]...)

	switch r.Value.Kind() {
	case value.KindInt32:
		n, _ := r.Value.Int32()
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		body = append(body, byte(kindInt32))
		body = append(body, b[:]...)
	case value.KindInt64:
		n, _ := r.Value.Int64()
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(n))
		body = append(body, byte(kindInt64))
		body = append(body, b[:]...)
	case value.KindFloat32:
		f, _ := r.Value.Float32()
		enc, err := value.Encode(value.Float32(f))
		if err != nil {
			return nil, err
		}
		body = append(body, byte(kindFloat32))
		body = append(body, enc[1:]...) // strip value's own tag byte, row already has one
	case value.KindFloat64:
		f, _ := r.Value.Float64()
		enc, err := value.Encode(value.Float64(f))
		if err != nil {
			return nil, err
		}
		body = append(body, byte(kindFloat64))
		body = append(body, enc[1:]...)
	case value.KindString:
		s, _ := r.Value.String()
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(len(s)))
		body = append(body, byte(kindString))
		body = append(body, lb[:]...)
		body = append(body, s...)
	case value.KindBool:
		b, _ := r.Value.Bool()
		n := byte(0)
		if b {
			n = 1
		}
		body = append(body, byte(kindBool), n)
	case value.KindShort, value.KindBigInt, value.KindBigDecimal, value.KindURI, value.KindRecord:
		enc, err := value.Encode(r.Value)
		if err != nil {
			return nil, err
		}
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(len(enc)))
		body = append(body, byte(kindObject))
		body = append(body, lb[:]...)
		body = append(body, enc...)
	default:
		return nil, archiveerr.New(archiveerr.KindValueEncoding, "rowfile.appendRow",
			fmt.Errorf("unsupported row value kind %v", r.Value.Kind()))
	}
	return body, nil
}

// decodeRowBody is the inverse of encodeRowBody.
func decodeRowBody(body []byte) (Row, error) {
	if len(body) < partkey.Size+8+4+1 {
		return Row{}, archiveerr.New(archiveerr.KindValueDecoding, "rowfile.decodeRowBody",
			fmt.Errorf("truncated row"))
	}
	id, err := partkey.FromBytes(body[0:partkey.Size])
	if err != nil {
		return Row{}, archiveerr.New(archiveerr.KindValueDecoding, "rowfile.decodeRowBody", err)
	}
	off := partkey.Size
	t := int64(binary.BigEndian.Uint64(body[off : off+8]))
	off += 8
	seq := int32(binary.BigEndian.Uint32(body[off : off+4]))
	off += 4
	kind := valueKind(body[off])
	off++

	var v value.Value
	switch kind {
	case kindInt32:
		v = value.Int32(int32(binary.BigEndian.Uint32(body[off : off+4])))
	case kindInt64:
		v = value.Int64(int64(binary.BigEndian.Uint64(body[off : off+8])))
	case kindFloat32:
		enc := append([]byte{'f'}, body[off:off+4]...)
		v, err = value.Decode(enc)
	case kindFloat64:
		enc := append([]byte{'d'}, body[off:off+8]...)
		v, err = value.Decode(enc)
	case kindString:
		n := binary.BigEndian.Uint32(body[off : off+4])
		v = value.String(string(body[off+4 : off+4+int(n)]))
	case kindBool:
		v = value.Bool(body[off] != 0)
	case kindObject:
		n := binary.BigEndian.Uint32(body[off : off+4])
		v, err = value.Decode(body[off+4 : off+4+int(n)])
	default:
		return Row{}, archiveerr.New(archiveerr.KindValueDecoding, "rowfile.decodeRowBody",
			fmt.Errorf("unknown row value kind %d", kind))
	}
	if err != nil {
		return Row{}, err
	}
	return Row{ID: id, Time: t, SeqNr: seq, Value: v}, nil
}
