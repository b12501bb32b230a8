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

import "testing"

func TestEncodeDecodeRoundtrip(t *testing.T) {
	k := Key{Item: 1, Property: 2, Context: 3}
	name := Encode(k)
	got, err := Decode(name)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if got != k {
		t.Fatalf("got %+v want %+v", got, k)
	}
}

func TestEncodeZero(t *testing.T) {
	if Encode(Key{}) != "0" {
		t.Fatalf("expected zero key to encode as %q, got %q", "0", Encode(Key{}))
	}
}

func TestDecodeRejectsNonDecimal(t *testing.T) {
	for _, bad := range []string{"", "abc", "-1", "12_34"} {
		if _, err := Decode(bad); err == nil {
			t.Fatalf("expected error decoding %q", bad)
		}
	}
}

func TestWeekDirNameRoundtrip(t *testing.T) {
	r := Range{Min: Key{1, 1, 1}, Max: Key{5, 9, 9}}
	name := WeekDirName(r)
	got, err := ParseWeekDirName(name)
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	if got != r {
		t.Fatalf("got %+v want %+v", got, r)
	}
}

func TestYearDirNameRoundtrip(t *testing.T) {
	r := Range{Min: Key{1, 1, 1}, Max: Key{5, 9, 9}}
	name := YearDirName(r, 2024)
	got, year, err := ParseYearDirName(name)
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	if got != r || year != 2024 {
		t.Fatalf("got %+v/%d want %+v/2024", got, year, r)
	}
}

func TestParseMalformedDirsSkipped(t *testing.T) {
	if _, err := ParseWeekDirName("not-a-week-dir"); err == nil {
		t.Fatal("expected error for malformed week directory name")
	}
	if _, _, err := ParseYearDirName("1_2_notayear"); err == nil {
		t.Fatal("expected error for non-numeric year suffix")
	}
}

func TestKeyOrdering(t *testing.T) {
	a := Key{Item: 1, Property: 5, Context: 9}
	b := Key{Item: 1, Property: 5, Context: 10}
	if !a.Less(b) {
		t.Fatal("expected a < b")
	}
	if Min(a, b) != a || Max(a, b) != b {
		t.Fatal("componentwise min/max mismatch")
	}
}
