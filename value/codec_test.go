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
	"math/big"
	"strings"
	"testing"
)

func roundtrip(t *testing.T, v Value) {
	t.Helper()
	buf, err := Encode(v)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if !got.Equal(v) {
		t.Fatalf("roundtrip mismatch: got %#v want %#v", got, v)
	}
}

func TestScalarRoundtrip(t *testing.T) {
	roundtrip(t, Int32(-42))
	roundtrip(t, Int64(1<<40))
	roundtrip(t, Float32(3.25))
	roundtrip(t, Float64(-1.5e10))
	roundtrip(t, String("hello, \x00 world"))
	roundtrip(t, Bool(true))
	roundtrip(t, Bool(false))
	roundtrip(t, Short(-5))
	roundtrip(t, URI("http://example.org/p"))
	roundtrip(t, BigInt(big.NewInt(0)))
	roundtrip(t, BigInt(big.NewInt(-123456789012345)))
	roundtrip(t, BigInt(new(big.Int).Lsh(big.NewInt(1), 300)))
	roundtrip(t, BigDecimal(big.NewInt(12345), 2))
	roundtrip(t, BigDecimal(big.NewInt(-987), 4))
}

func TestRecordRoundtrip(t *testing.T) {
	r := NewRecordEmpty()
	r.Append("p1", String("v1"))
	r.Append("nested", NewRecord(func() *Record {
		n := NewRecordEmpty()
		n.Append("a", Int32(1))
		n.Append("b", URI("http://example.org/value"))
		return n
	}()))
	r.Append("p1", String("v1-again")) // duplicate property allowed
	roundtrip(t, NewRecord(r))
}

func TestDeeplyNestedRecord(t *testing.T) {
	inner := NewRecordEmpty()
	inner.Append("leaf", Int64(7))
	mid := NewRecordEmpty()
	mid.Append("mid1", NewRecord(inner))
	mid.Append("mid2", Int32(2))
	outer := NewRecordEmpty()
	outer.Append("top", NewRecord(mid))
	roundtrip(t, NewRecord(outer))
}

func TestURITooLong(t *testing.T) {
	_, err := Encode(URI(strings.Repeat("a", 256)))
	if err == nil {
		t.Fatal("expected ValueEncodingError for oversized URI")
	}
}

func TestPropertyTooLong(t *testing.T) {
	r := NewRecordEmpty()
	r.Append(strings.Repeat("p", 256), Int32(1))
	_, err := Encode(NewRecord(r))
	if err == nil {
		t.Fatal("expected ValueEncodingError for oversized property name")
	}
}

func TestUnknownTag(t *testing.T) {
	_, err := Decode([]byte{0xFF, 0x01, 0x02})
	if err == nil {
		t.Fatal("expected ValueDecodingError for unknown tag")
	}
}
