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

// Package value implements the tuple value codec: a tagged sum type
// covering the scalar kinds, URIs, and nested Records, along with the
// self-describing byte encoding used for the "valueObject" row column.
package value

import (
	"math/big"

	"golang.org/x/exp/slices"
)

// Kind identifies the concrete type held by a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindBool
	KindShort
	KindBigInt
	KindBigDecimal
	KindURI
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindShort:
		return "short"
	case KindBigInt:
		return "bigint"
	case KindBigDecimal:
		return "bigdecimal"
	case KindURI:
		return "uri"
	case KindRecord:
		return "record"
	default:
		return "invalid"
	}
}

// Value is any tuple value: one of the scalar kinds, a URI, or a
// nested Record. The zero Value is invalid; construct one with the
// Int32, Int64, Float32, Float64, String, Bool, Short, BigInt,
// BigDecimal, URI, or NewRecord constructors.
type Value struct {
	kind Kind

	i64 int64   // int32, int64, short, bool(0/1)
	f64 float64 // float32, float64 (float32 stored widened)
	str string  // string, uri
	big *big.Int
	dec bigDecimal
	rec *Record
}

type bigDecimal struct {
	unscaled big.Int
	scale    int32
}

func (k Kind) valid() bool { return k > KindInvalid && k <= KindRecord }

// Kind returns the concrete type of v.
func (v Value) Kind() Kind { return v.kind }

func Int32(n int32) Value     { return Value{kind: KindInt32, i64: int64(n)} }
func Int64(n int64) Value     { return Value{kind: KindInt64, i64: n} }
func Float32(f float32) Value { return Value{kind: KindFloat32, f64: float64(f)} }
func Float64(f float64) Value { return Value{kind: KindFloat64, f64: f} }
func String(s string) Value   { return Value{kind: KindString, str: s} }
func Bool(b bool) Value {
	n := int64(0)
	if b {
		n = 1
	}
	return Value{kind: KindBool, i64: n}
}
func Short(n int16) Value  { return Value{kind: KindShort, i64: int64(n)} }
func URI(uri string) Value { return Value{kind: KindURI, str: uri} }

func BigInt(n *big.Int) Value {
	return Value{kind: KindBigInt, big: new(big.Int).Set(n)}
}

// BigDecimal constructs a value equal to unscaled * 10^-scale,
// matching the canonical (unscaledValue, scale) representation of
// a fixed-point decimal.
func BigDecimal(unscaled *big.Int, scale int32) Value {
	v := Value{kind: KindBigDecimal}
	v.dec.unscaled.Set(unscaled)
	v.dec.scale = scale
	return v
}

// NewRecord wraps r as a Value.
func NewRecord(r *Record) Value { return Value{kind: KindRecord, rec: r} }

func (v Value) Int32() (int32, bool) {
	if v.kind != KindInt32 {
		return 0, false
	}
	return int32(v.i64), true
}

func (v Value) Int64() (int64, bool) {
	if v.kind != KindInt64 {
		return 0, false
	}
	return v.i64, true
}

func (v Value) Float32() (float32, bool) {
	if v.kind != KindFloat32 {
		return 0, false
	}
	return float32(v.f64), true
}

func (v Value) Float64() (float64, bool) {
	if v.kind != KindFloat64 {
		return 0, false
	}
	return v.f64, true
}

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.i64 != 0, true
}

func (v Value) Short() (int16, bool) {
	if v.kind != KindShort {
		return 0, false
	}
	return int16(v.i64), true
}

func (v Value) URI() (string, bool) {
	if v.kind != KindURI {
		return "", false
	}
	return v.str, true
}

func (v Value) BigInt() (*big.Int, bool) {
	if v.kind != KindBigInt {
		return nil, false
	}
	return new(big.Int).Set(v.big), true
}

func (v Value) BigDecimal() (unscaled *big.Int, scale int32, ok bool) {
	if v.kind != KindBigDecimal {
		return nil, 0, false
	}
	return new(big.Int).Set(&v.dec.unscaled), v.dec.scale, true
}

func (v Value) Record() (*Record, bool) {
	if v.kind != KindRecord {
		return nil, false
	}
	return v.rec, true
}

// Numeric reports whether v holds one of the numeric kinds that
// min/max/avg/sum aggregation can operate on, and returns it widened
// to a float64.
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindInt32, KindInt64, KindShort:
		return float64(v.i64), true
	case KindFloat32, KindFloat64:
		return v.f64, true
	case KindBigInt:
		f := new(big.Float).SetInt(v.big)
		out, _ := f.Float64()
		return out, true
	case KindBigDecimal:
		f := new(big.Float).SetInt(&v.dec.unscaled)
		scale := new(big.Float).SetFloat64(pow10(v.dec.scale))
		f.Quo(f, scale)
		out, _ := f.Float64()
		return out, true
	default:
		return 0, false
	}
}

func pow10(n int32) float64 {
	neg := n < 0
	if neg {
		n = -n
	}
	out := 1.0
	for i := int32(0); i < n; i++ {
		out *= 10
	}
	if neg {
		return 1 / out
	}
	return out
}

// Equal reports whether v and x are structurally identical: same
// kind and same payload (Records compare entry-by-entry, in order).
func (v Value) Equal(x Value) bool {
	if v.kind != x.kind {
		return false
	}
	switch v.kind {
	case KindInt32, KindInt64, KindShort, KindBool:
		return v.i64 == x.i64
	case KindFloat32, KindFloat64:
		return v.f64 == x.f64
	case KindString, KindURI:
		return v.str == x.str
	case KindBigInt:
		return v.big.Cmp(x.big) == 0
	case KindBigDecimal:
		return v.dec.scale == x.dec.scale && v.dec.unscaled.Cmp(&x.dec.unscaled) == 0
	case KindRecord:
		return v.rec.Equal(x.rec)
	default:
		return false
	}
}

// Clone returns a deep copy of v, safe to retain past the lifetime
// of the buffer v was decoded from.
func (v Value) Clone() Value {
	out := v
	if v.big != nil {
		out.big = new(big.Int).Set(v.big)
	}
	if v.kind == KindBigDecimal {
		out.dec.unscaled.Set(&v.dec.unscaled)
	}
	if v.kind == KindString || v.kind == KindURI {
		out.str = string(slices.Clone([]byte(v.str)))
	}
	if v.rec != nil {
		out.rec = v.rec.Clone()
	}
	return out
}
