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

package partkey

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is the [Min, Max] id-range bound a partition directory's
// name encodes.
type Range struct {
	Min, Max Key
}

// Valid reports Min <= Max under the same lexicographic order the
// archive compares 24-byte ids with.
func (r Range) Valid() bool {
	return r.Min.LessEq(r.Max)
}

// ContainsItem reports whether an item id falls within the range's
// Item bounds, the predicate the fetch engine prunes directories
// with.
func (r Range) ContainsItem(item uint64) bool {
	return item >= r.Min.Item && item <= r.Max.Item
}

// WeekDirName names a week-leaf directory "<encode(Min)>_<encode(Max)>".
func WeekDirName(r Range) string {
	return Encode(r.Min) + "_" + Encode(r.Max)
}

// ParseWeekDirName is the inverse of WeekDirName. It returns an
// error (which callers treat as "skip this directory") for anything
// that isn't two decimal components joined by an underscore.
func ParseWeekDirName(name string) (Range, error) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("partkey: %q is not a week directory name", name)
	}
	min, err := Decode(parts[0])
	if err != nil {
		return Range{}, err
	}
	max, err := Decode(parts[1])
	if err != nil {
		return Range{}, err
	}
	return Range{Min: min, Max: max}, nil
}

// YearDirName names a year directory "<encode(Min)>_<encode(Max)>_<YYYY>".
func YearDirName(r Range, year int) string {
	return Encode(r.Min) + "_" + Encode(r.Max) + "_" + strconv.Itoa(year)
}

// ParseYearDirName is the inverse of YearDirName.
func ParseYearDirName(name string) (Range, int, error) {
	parts := strings.SplitN(name, "_", 3)
	if len(parts) != 3 {
		return Range{}, 0, fmt.Errorf("partkey: %q is not a year directory name", name)
	}
	min, err := Decode(parts[0])
	if err != nil {
		return Range{}, 0, err
	}
	max, err := Decode(parts[1])
	if err != nil {
		return Range{}, 0, err
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return Range{}, 0, fmt.Errorf("partkey: %q has a non-numeric year suffix", name)
	}
	return Range{Min: min, Max: max}, year, nil
}
