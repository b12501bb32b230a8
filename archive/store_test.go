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

package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tuplearchive/archive/value"
)

func drain(t *testing.T, it *Iterator) []Tuple {
	t.Helper()
	var out []Tuple
	for {
		tup, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, tup)
	}
	it.Close()
	return out
}

func TestPutFetchRoundtrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	err = s.Put([]Tuple{
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: 100, Value: value.Int64(42)},
	})
	if err != nil {
		t.Fatal(err)
	}

	it, err := s.Fetch("http://ex/i", "http://ex/p", "http://ex/c", true, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := drain(t, it)
	if len(got) != 1 {
		t.Fatalf("got %d tuples, want 1", len(got))
	}
	if got[0].Time != 100 || !got[0].Value.Equal(value.Int64(42)) {
		t.Fatalf("unexpected tuple: %+v", got[0])
	}
}

func TestFetchUnknownItemIsEmpty(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	it, err := s.Fetch("http://ex/missing", "", "", false, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := drain(t, it); len(got) != 0 {
		t.Fatalf("got %d tuples, want 0", len(got))
	}
}

// Writing at t, t+604799, and t+604800 rolls the week once: two week
// directories, the first holding two rows and the second one.
func TestWeekRoll(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	const t0 = int64(1700000000)
	err = s.Put([]Tuple{
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: t0, Value: value.Int32(1)},
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: t0 + 604799, Value: value.Int32(2)},
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: t0 + 604800, Value: value.Int32(3)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	years, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var yearDir string
	for _, e := range years {
		if e.IsDir() && e.Name() != "metadata" && e.Name() != "temp" {
			yearDir = e.Name()
		}
	}
	if yearDir == "" {
		t.Fatal("no year directory produced")
	}
	weeks, err := os.ReadDir(filepath.Join(dir, yearDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(weeks) != 2 {
		t.Fatalf("got %d week directories, want 2", len(weeks))
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	it, err := s2.Fetch("http://ex/i", "http://ex/p", "http://ex/c", true, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := drain(t, it)
	if len(got) != 3 {
		t.Fatalf("got %d tuples across both weeks, want 3", len(got))
	}
}

// 10 tuples each for properties A and B under the same item; a fetch
// with limit 3 yields exactly 3 per property.
func TestPropertyLimit(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var tuples []Tuple
	for i := 0; i < 10; i++ {
		tuples = append(tuples, Tuple{Item: "http://ex/i", Property: "http://ex/A", Context: "http://ex/c",
			Time: int64(i), Value: value.Int32(int32(i))})
	}
	for i := 0; i < 10; i++ {
		tuples = append(tuples, Tuple{Item: "http://ex/i", Property: "http://ex/B", Context: "http://ex/c",
			Time: int64(i), Value: value.Int32(int32(i))})
	}
	if err := s.Put(tuples); err != nil {
		t.Fatal(err)
	}

	it, err := s.Fetch("http://ex/i", "", "", false, false, 3)
	if err != nil {
		t.Fatal(err)
	}
	got := drain(t, it)
	if len(got) != 6 {
		t.Fatalf("got %d tuples, want 6", len(got))
	}
	counts := map[string]int{}
	for _, tup := range got {
		counts[tup.Property]++
	}
	if counts["http://ex/A"] != 3 || counts["http://ex/B"] != 3 {
		t.Fatalf("unexpected per-property counts: %+v", counts)
	}
}

// Values [1,2,3,4] at times [10,20,30,40], averaged over 20-second
// buckets ending at 40, yield 3.5 then 1.5.
func TestAggregateAverage(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	err = s.Put([]Tuple{
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: 10, Value: value.Int32(1)},
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: 20, Value: value.Int32(2)},
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: 30, Value: value.Int32(3)},
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: 40, Value: value.Int32(4)},
	})
	if err != nil {
		t.Fatal(err)
	}

	it, err := s.FetchWindow("http://ex/i", "http://ex/p", "http://ex/c", true, true, 40, 10, 0, 20, "avg")
	if err != nil {
		t.Fatal(err)
	}
	got := drain(t, it)
	if len(got) != 2 {
		t.Fatalf("got %d buckets, want 2", len(got))
	}
	f0, _ := got[0].Value.Float64()
	f1, _ := got[1].Value.Float64()
	if got[0].Time != 40 || f0 != 3.5 {
		t.Fatalf("bucket 0: got time=%d value=%v, want time=40 value=3.5", got[0].Time, f0)
	}
	if got[1].Time != 20 || f1 != 1.5 {
		t.Fatalf("bucket 1: got time=%d value=%v, want time=20 value=1.5", got[1].Time, f1)
	}
}

// A property whose rows span several week partitions still yields at
// most limit tuples in total: the limit state survives the reader
// boundary between partition files.
func TestPropertyLimitAcrossWeeks(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	const t0 = int64(1700000000)
	err = s.Put([]Tuple{
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: t0, Value: value.Int32(1)},
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: t0 + 604800, Value: value.Int32(2)},
	})
	if err != nil {
		t.Fatal(err)
	}

	it, err := s.Fetch("http://ex/i", "", "", false, false, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := drain(t, it); len(got) != 1 {
		t.Fatalf("got %d tuples, want 1 across both weeks", len(got))
	}
}

// The second and third Put calls against the same archive produce
// identical partition bounds; colliding directories merge rather than clobber,
// and everything stays fetchable after a reopen.
func TestRepeatedPutsMergeAndReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	const t0 = int64(1700000000)
	for i := 0; i < 3; i++ {
		err = s.Put([]Tuple{
			{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c",
				Time: t0 + int64(i), SeqNr: int32(i), Value: value.Int32(int32(i))},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	it, err := s2.Fetch("http://ex/i", "http://ex/p", "http://ex/c", true, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := drain(t, it)
	if len(got) != 3 {
		t.Fatalf("got %d tuples after three puts and a reopen, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Time < got[i].Time {
			t.Fatalf("results not in time-descending order: %+v", got)
		}
	}
}

// A fetch that misses caches the miss; a later put of that URI must
// still be visible to the next fetch.
func TestPutAfterCachedMiss(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	it, err := s.Fetch("http://ex/late", "", "", false, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := drain(t, it); len(got) != 0 {
		t.Fatalf("expected empty fetch before put, got %d", len(got))
	}

	err = s.Put([]Tuple{
		{Item: "http://ex/late", Property: "http://ex/p", Context: "http://ex/c", Time: 50, Value: value.Bool(true)},
	})
	if err != nil {
		t.Fatal(err)
	}

	it, err = s.Fetch("http://ex/late", "", "", false, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := drain(t, it); len(got) != 1 {
		t.Fatalf("got %d tuples after put, want 1", len(got))
	}
}

func TestProperties(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	err = s.Put([]Tuple{
		{Item: "http://ex/i", Property: "http://ex/p1", Context: "http://ex/c", Time: 1, Value: value.Int32(1)},
		{Item: "http://ex/i", Property: "http://ex/p2", Context: "http://ex/c", Time: 2, Value: value.Int32(2)},
		{Item: "http://ex/i", Property: "http://ex/p1", Context: "http://ex/c", Time: 3, Value: value.Int32(3)},
	})
	if err != nil {
		t.Fatal(err)
	}
	props, err := s.Properties("http://ex/i")
	if err != nil {
		t.Fatal(err)
	}
	if len(props) != 2 {
		t.Fatalf("got %v, want 2 distinct properties", props)
	}
}

func TestUnsupportedAggregation(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	err = s.Put([]Tuple{
		{Item: "http://ex/i", Property: "http://ex/p", Context: "http://ex/c", Time: 1, Value: value.String("not numeric")},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.FetchWindow("http://ex/i", "http://ex/p", "http://ex/c", true, true, 10, 0, 0, 10, "sum")
	if err == nil {
		t.Fatal("expected UnsupportedAggregation error")
	}
}
