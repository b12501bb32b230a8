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

// Package partkey implements the partition key: the 24-byte
// (itemId, propertyId, contextId) composite that both names the
// "id" row column and, encoded as a decimal string, names the
// year/week partition directories on disk.
package partkey

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Size is the byte width of an encoded Key: three big-endian
// uint64 ids concatenated.
const Size = 24

// Key is the composite (itemId, propertyId, contextId) partition
// key, compared lexicographically the same way its 24-byte encoding
// is.
type Key struct {
	Item, Property, Context uint64
}

// Bytes renders k as the 24-byte big-endian row id: itemId ||
// propertyId || contextId.
func (k Key) Bytes() [Size]byte {
	var b [Size]byte
	binary.BigEndian.PutUint64(b[0:8], k.Item)
	binary.BigEndian.PutUint64(b[8:16], k.Property)
	binary.BigEndian.PutUint64(b[16:24], k.Context)
	return b
}

// FromBytes parses a 24-byte row id back into a Key.
func FromBytes(b []byte) (Key, error) {
	if len(b) != Size {
		return Key{}, fmt.Errorf("partkey: expected %d bytes, got %d", Size, len(b))
	}
	return Key{
		Item:     binary.BigEndian.Uint64(b[0:8]),
		Property: binary.BigEndian.Uint64(b[8:16]),
		Context:  binary.BigEndian.Uint64(b[16:24]),
	}, nil
}

// Less reports whether k sorts before x under the same byte-lexicographic
// order as comparing their 24-byte encodings.
func (k Key) Less(x Key) bool {
	if k.Item != x.Item {
		return k.Item < x.Item
	}
	if k.Property != x.Property {
		return k.Property < x.Property
	}
	return k.Context < x.Context
}

// LessEq reports k.Less(x) || k == x.
func (k Key) LessEq(x Key) bool {
	return k == x || k.Less(x)
}

// Min returns the componentwise (not lexicographic) minimum of k
// and x, used when widening a partition's observed id range.
func Min(k, x Key) Key {
	return Key{
		Item:     minU64(k.Item, x.Item),
		Property: minU64(k.Property, x.Property),
		Context:  minU64(k.Context, x.Context),
	}
}

// Max returns the componentwise maximum of k and x.
func Max(k, x Key) Key {
	return Key{
		Item:     maxU64(k.Item, x.Item),
		Property: maxU64(k.Property, x.Property),
		Context:  maxU64(k.Context, x.Context),
	}
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// Encode reads k's 24-byte encoding as one big-endian 192-bit
// unsigned integer and renders it in decimal, the form used in
// directory names; decimal keeps names sortable by length then
// content.
func Encode(k Key) string {
	b := k.Bytes()
	n := new(big.Int).SetBytes(b[:])
	return n.String()
}

// Decode is the inverse of Encode. Names that are not valid decimal
// are rejected so the fetch engine can skip non-data directories
// silently.
func Decode(name string) (Key, error) {
	if name == "" {
		return Key{}, fmt.Errorf("partkey: empty name")
	}
	n, ok := new(big.Int).SetString(name, 10)
	if !ok || n.Sign() < 0 {
		return Key{}, fmt.Errorf("partkey: %q is not a decimal partition key", name)
	}
	b := n.Bytes()
	if len(b) > Size {
		return Key{}, fmt.Errorf("partkey: %q overflows %d bytes", name, Size)
	}
	var full [Size]byte
	copy(full[Size-len(b):], b)
	return FromBytes(full[:])
}
