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

// Package archive implements the columnar archive engine: the Store
// API and its writer, fetch, and aggregation engines.
package archive

import "github.com/tuplearchive/archive/value"

// Tuple is the atomic unit written and queried: (item, property,
// context, time, seqNr, value). Item, Property, and Context are
// non-empty URI strings when writing; a caller never mutates a
// Tuple once it has been put.
type Tuple struct {
	Item     string
	Property string
	Context  string
	Time     int64 // seconds, wall time, Time >= 0
	SeqNr    int32
	Value    value.Value
}
