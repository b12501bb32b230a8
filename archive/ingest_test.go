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

// End-to-end tests exercising the ingest decoders against a real
// Store. Deliberately in package archive_test: the ingest packages
// import archive, so these tests live on the outside of the package
// they exercise.
package archive_test

import (
	"testing"

	"github.com/tuplearchive/archive/archive"
	"github.com/tuplearchive/archive/ingest/jsonfmt"
	"github.com/tuplearchive/archive/ingest/linep"
)

// Line-protocol decode -> put -> fetch round trip.
func TestLineProtocolPutFetch(t *testing.T) {
	tup, ok, err := linep.ParseLine("http://example.org/p,item=http://example.org/i value=42i")
	if err != nil || !ok {
		t.Fatalf("ParseLine: ok=%v err=%v", ok, err)
	}

	s, err := archive.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Put([]archive.Tuple{tup}); err != nil {
		t.Fatal(err)
	}

	it, err := s.Fetch("http://example.org/i", "http://example.org/p", "", true, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	got, ok := it.Next()
	if !ok {
		t.Fatal("expected one tuple")
	}
	n, ok := got.Value.Int64()
	if !ok || n != 42 {
		t.Fatalf("expected int64 42, got %+v", got.Value)
	}
}

// Nested JSON Record decode -> put -> fetch: the decoded Record is
// equal to the input's nested sub-object.
func TestJSONNestedRecordPutFetch(t *testing.T) {
	doc := []byte(`{
		"http://example.root": {
			"p1": [{"value": "v1", "time": 1}],
			"nested": [{"value": {"a": 1, "link": {"@id": "http://example.org/target"}}, "time": 2}]
		}
	}`)
	tuples, err := jsonfmt.Decode(doc)
	if err != nil {
		t.Fatal(err)
	}

	s, err := archive.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Put(tuples); err != nil {
		t.Fatal(err)
	}

	it, err := s.Fetch("http://example.root", "nested", "", true, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	got, ok := it.Next()
	if !ok {
		t.Fatal("expected one tuple for the 'nested' property")
	}
	rec, ok := got.Value.Record()
	if !ok {
		t.Fatalf("expected a Record value, got %+v", got.Value)
	}
	a, ok := rec.Get("a")
	if !ok {
		t.Fatal("expected entry 'a'")
	}
	if n, _ := a.Int64(); n != 1 {
		t.Fatalf("a = %+v, want 1", a)
	}
	link, ok := rec.Get("link")
	if !ok {
		t.Fatal("expected entry 'link'")
	}
	if uri, ok := link.URI(); !ok || uri != "http://example.org/target" {
		t.Fatalf("link = %+v, want URI http://example.org/target", link)
	}
}
