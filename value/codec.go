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

package value

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/tuplearchive/archive/archiveerr"
)

// Wire tags. 'R' opens a URI frame and 'O' a record-entry frame;
// the remaining tags cover the scalar kinds. 'N' delimits a Record
// value nested inside another Record's entry, where the number of
// trailing 'O' frames belonging to the child would otherwise be
// ambiguous.
const (
	tagURI          = 'R'
	tagRecordEntry  = 'O'
	tagNestedRecord = 'N'
	tagInt32        = 'i'
	tagInt64        = 'l'
	tagFloat32      = 'f'
	tagFloat64      = 'd'
	tagString       = 's'
	tagBool         = 'b'
	tagShort        = 'h'
	tagBigInt       = 'g'
	tagBigDecimal   = 'c'
)

const maxURILen = 255

// Encode renders v as the self-describing byte sequence stored in
// the row file's valueObject column. It fails with a
// archiveerr ValueEncoding error if a URI or property name exceeds
// 255 UTF-8 bytes (the format's 1-byte length prefix).
func Encode(v Value) ([]byte, error) {
	return appendValue(nil, v, false)
}

func appendValue(dst []byte, v Value, wrapRecord bool) ([]byte, error) {
	switch v.kind {
	case KindURI:
		if len(v.str) > maxURILen {
			return nil, archiveerr.New(archiveerr.KindValueEncoding, "value.Encode",
				fmt.Errorf("uri value %d bytes exceeds %d byte limit", len(v.str), maxURILen))
		}
		dst = append(dst, tagURI, byte(len(v.str)))
		dst = append(dst, v.str...)
		return dst, nil
	case KindRecord:
		body, err := appendRecordFrames(nil, v.rec)
		if err != nil {
			return nil, err
		}
		if wrapRecord {
			dst = append(dst, tagNestedRecord)
			var lenbuf [4]byte
			binary.BigEndian.PutUint32(lenbuf[:], uint32(len(body)))
			dst = append(dst, lenbuf[:]...)
		}
		dst = append(dst, body...)
		return dst, nil
	case KindInt32:
		n, _ := v.Int32()
		var buf [5]byte
		buf[0] = tagInt32
		binary.BigEndian.PutUint32(buf[1:], uint32(n))
		return append(dst, buf[:]...), nil
	case KindInt64:
		n, _ := v.Int64()
		var buf [9]byte
		buf[0] = tagInt64
		binary.BigEndian.PutUint64(buf[1:], uint64(n))
		return append(dst, buf[:]...), nil
	case KindFloat32:
		f, _ := v.Float32()
		var buf [5]byte
		buf[0] = tagFloat32
		binary.BigEndian.PutUint32(buf[1:], math.Float32bits(f))
		return append(dst, buf[:]...), nil
	case KindFloat64:
		f, _ := v.Float64()
		var buf [9]byte
		buf[0] = tagFloat64
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(f))
		return append(dst, buf[:]...), nil
	case KindString:
		s, _ := v.String()
		dst = append(dst, tagString)
		var lenbuf [4]byte
		binary.BigEndian.PutUint32(lenbuf[:], uint32(len(s)))
		dst = append(dst, lenbuf[:]...)
		return append(dst, s...), nil
	case KindBool:
		b, _ := v.Bool()
		n := byte(0)
		if b {
			n = 1
		}
		return append(dst, tagBool, n), nil
	case KindShort:
		n, _ := v.Short()
		var buf [3]byte
		buf[0] = tagShort
		binary.BigEndian.PutUint16(buf[1:], uint16(n))
		return append(dst, buf[:]...), nil
	case KindBigInt:
		n, _ := v.BigInt()
		payload := bigIntBytes(n)
		dst = append(dst, tagBigInt)
		var lenbuf [4]byte
		binary.BigEndian.PutUint32(lenbuf[:], uint32(len(payload)))
		dst = append(dst, lenbuf[:]...)
		return append(dst, payload...), nil
	case KindBigDecimal:
		unscaled, scale, _ := v.BigDecimal()
		payload := bigIntBytes(unscaled)
		dst = append(dst, tagBigDecimal)
		var scalebuf [4]byte
		binary.BigEndian.PutUint32(scalebuf[:], uint32(scale))
		dst = append(dst, scalebuf[:]...)
		var lenbuf [4]byte
		binary.BigEndian.PutUint32(lenbuf[:], uint32(len(payload)))
		dst = append(dst, lenbuf[:]...)
		return append(dst, payload...), nil
	default:
		return nil, archiveerr.New(archiveerr.KindValueEncoding, "value.Encode",
			fmt.Errorf("unsupported value kind %v", v.kind))
	}
}

// appendRecordFrames appends one 'O' frame per entry of r.
func appendRecordFrames(dst []byte, r *Record) ([]byte, error) {
	for _, e := range r.Entries() {
		if len(e.Property) > maxURILen {
			return nil, archiveerr.New(archiveerr.KindValueEncoding, "value.Encode",
				fmt.Errorf("property uri %d bytes exceeds %d byte limit", len(e.Property), maxURILen))
		}
		dst = append(dst, tagRecordEntry, byte(len(e.Property)))
		dst = append(dst, e.Property...)
		var err error
		dst, err = appendValue(dst, e.Value, true)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// bigIntBytes renders n as a minimal two's-complement big-endian
// byte sequence, the representation math/big.Int doesn't provide
// directly (big.Int.Bytes is sign-magnitude). Two's complement of n
// within a W-bit window is exactly n mod 2^W, and big.Int.Mod always
// returns a non-negative result, so growing the window by a byte at
// a time until n fits its signed range gives the minimal encoding.
func bigIntBytes(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0}
	}
	size := 1
	for {
		bits := uint(8 * size)
		lower := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), bits-1))
		upper := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits-1), big.NewInt(1))
		if n.Cmp(lower) >= 0 && n.Cmp(upper) <= 0 {
			break
		}
		size++
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(8*size))
	val := new(big.Int).Mod(n, mod)
	b := val.Bytes()
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

func bigIntFromBytes(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	if b[0]&0x80 == 0 {
		return new(big.Int).SetBytes(b)
	}
	// negative: invert two's complement back to magnitude
	inv := make([]byte, len(b))
	for i, by := range b {
		inv[i] = ^by
	}
	mag := new(big.Int).SetBytes(inv)
	mag.Add(mag, big.NewInt(1))
	return mag.Neg(mag)
}

// Decode parses the self-describing byte sequence produced by
// Encode back into a Value. It fails with a ValueDecoding error if
// the leading tag byte is unrecognized or the buffer is truncated.
// An empty buffer decodes to the empty Record, the only value Encode
// renders as zero bytes.
func Decode(buf []byte) (Value, error) {
	if len(buf) == 0 {
		return NewRecord(NewRecordEmpty()), nil
	}
	if buf[0] == tagRecordEntry {
		rec := NewRecordEmpty()
		off := 0
		for off < len(buf) {
			_, consumed, err := decodeRecordFrame(buf[off:], rec)
			if err != nil {
				return Value{}, err
			}
			off += consumed
		}
		return NewRecord(rec), nil
	}
	v, consumed, err := decodeOne(buf)
	if err != nil {
		return Value{}, err
	}
	if consumed != len(buf) {
		return Value{}, archiveerr.New(archiveerr.KindValueDecoding, "value.Decode",
			fmt.Errorf("%d trailing bytes after value", len(buf)-consumed))
	}
	return v, nil
}

// decodeRecordFrame decodes exactly one 'O' frame from buf (which
// must begin with it) and appends the resulting entry to rec.
func decodeRecordFrame(buf []byte, rec *Record) (Value, int, error) {
	if len(buf) < 2 || buf[0] != tagRecordEntry {
		return Value{}, 0, archiveerr.New(archiveerr.KindValueDecoding, "value.Decode",
			fmt.Errorf("expected record entry frame"))
	}
	plen := int(buf[1])
	if len(buf) < 2+plen {
		return Value{}, 0, archiveerr.New(archiveerr.KindValueDecoding, "value.Decode",
			fmt.Errorf("truncated property name"))
	}
	prop := string(buf[2 : 2+plen])
	child, consumed, err := decodeChild(buf[2+plen:])
	if err != nil {
		return Value{}, 0, err
	}
	rec.Append(prop, child)
	return child, 2 + plen + consumed, nil
}

// decodeChild decodes one child value of an 'O' frame, which may be
// a plain self-delimiting value or a length-wrapped nested Record.
func decodeChild(buf []byte) (Value, int, error) {
	if len(buf) == 0 {
		return Value{}, 0, archiveerr.New(archiveerr.KindValueDecoding, "value.Decode",
			fmt.Errorf("truncated record entry"))
	}
	if buf[0] == tagNestedRecord {
		if len(buf) < 5 {
			return Value{}, 0, archiveerr.New(archiveerr.KindValueDecoding, "value.Decode",
				fmt.Errorf("truncated nested record length"))
		}
		n := int(binary.BigEndian.Uint32(buf[1:5]))
		if len(buf) < 5+n {
			return Value{}, 0, archiveerr.New(archiveerr.KindValueDecoding, "value.Decode",
				fmt.Errorf("truncated nested record body"))
		}
		body := buf[5 : 5+n]
		rec := NewRecordEmpty()
		off := 0
		for off < len(body) {
			_, consumed, err := decodeRecordFrame(body[off:], rec)
			if err != nil {
				return Value{}, 0, err
			}
			off += consumed
		}
		return NewRecord(rec), 5 + n, nil
	}
	return decodeOne(buf)
}

// decodeOne decodes exactly one non-record-sequence value starting
// at buf[0] (URI or a scalar tag), returning the value and the
// number of bytes consumed.
func decodeOne(buf []byte) (Value, int, error) {
	switch buf[0] {
	case tagURI:
		if len(buf) < 2 {
			return Value{}, 0, truncated("uri")
		}
		n := int(buf[1])
		if len(buf) < 2+n {
			return Value{}, 0, truncated("uri")
		}
		return URI(string(buf[2 : 2+n])), 2 + n, nil
	case tagInt32:
		if len(buf) < 5 {
			return Value{}, 0, truncated("int32")
		}
		return Int32(int32(binary.BigEndian.Uint32(buf[1:5]))), 5, nil
	case tagInt64:
		if len(buf) < 9 {
			return Value{}, 0, truncated("int64")
		}
		return Int64(int64(binary.BigEndian.Uint64(buf[1:9]))), 9, nil
	case tagFloat32:
		if len(buf) < 5 {
			return Value{}, 0, truncated("float32")
		}
		return Float32(math.Float32frombits(binary.BigEndian.Uint32(buf[1:5]))), 5, nil
	case tagFloat64:
		if len(buf) < 9 {
			return Value{}, 0, truncated("float64")
		}
		return Float64(math.Float64frombits(binary.BigEndian.Uint64(buf[1:9]))), 9, nil
	case tagString:
		if len(buf) < 5 {
			return Value{}, 0, truncated("string")
		}
		n := int(binary.BigEndian.Uint32(buf[1:5]))
		if len(buf) < 5+n {
			return Value{}, 0, truncated("string")
		}
		return String(string(buf[5 : 5+n])), 5 + n, nil
	case tagBool:
		if len(buf) < 2 {
			return Value{}, 0, truncated("bool")
		}
		return Bool(buf[1] != 0), 2, nil
	case tagShort:
		if len(buf) < 3 {
			return Value{}, 0, truncated("short")
		}
		return Short(int16(binary.BigEndian.Uint16(buf[1:3]))), 3, nil
	case tagBigInt:
		if len(buf) < 5 {
			return Value{}, 0, truncated("bigint")
		}
		n := int(binary.BigEndian.Uint32(buf[1:5]))
		if len(buf) < 5+n {
			return Value{}, 0, truncated("bigint")
		}
		return BigInt(bigIntFromBytes(buf[5 : 5+n])), 5 + n, nil
	case tagBigDecimal:
		if len(buf) < 9 {
			return Value{}, 0, truncated("bigdecimal")
		}
		scale := int32(binary.BigEndian.Uint32(buf[1:5]))
		n := int(binary.BigEndian.Uint32(buf[5:9]))
		if len(buf) < 9+n {
			return Value{}, 0, truncated("bigdecimal")
		}
		return BigDecimal(bigIntFromBytes(buf[9:9+n]), scale), 9 + n, nil
	default:
		return Value{}, 0, archiveerr.New(archiveerr.KindValueDecoding, "value.Decode",
			fmt.Errorf("unknown value tag %#x", buf[0]))
	}
}

func truncated(kind string) error {
	return archiveerr.New(archiveerr.KindValueDecoding, "value.Decode",
		fmt.Errorf("truncated %s value", kind))
}
