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

package jsonfmt

import "testing"

func TestDecodeFlatProperty(t *testing.T) {
	doc := []byte(`{
		"http://example.root": {
			"http://example.org/p1": [{"value": "v1", "time": 10}]
		}
	}`)
	tuples, err := Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tuples) != 1 {
		t.Fatalf("expected 1 tuple, got %d", len(tuples))
	}
	tup := tuples[0]
	if tup.Item != "http://example.root" || tup.Property != "http://example.org/p1" || tup.Time != 10 {
		t.Fatalf("unexpected tuple: %+v", tup)
	}
	s, ok := tup.Value.String()
	if !ok || s != "v1" {
		t.Fatalf("expected string v1, got %+v", tup.Value)
	}
}

// S3: nested Record with a @id URI child.
func TestDecodeNestedRecordWithURIChild(t *testing.T) {
	doc := []byte(`{
		"http://example.root": {
			"nested": [{"value": {"p1": "v1", "link": {"@id": "http://example.org/target"}}, "time": 5, "seqNr": 1}]
		}
	}`)
	tuples, err := Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tuples) != 1 {
		t.Fatalf("expected 1 tuple, got %d", len(tuples))
	}
	tup := tuples[0]
	if tup.SeqNr != 1 {
		t.Fatalf("expected seqNr 1, got %d", tup.SeqNr)
	}
	rec, ok := tup.Value.Record()
	if !ok {
		t.Fatalf("expected a Record value, got %+v", tup.Value)
	}
	p1, ok := rec.Get("p1")
	if !ok {
		t.Fatal("expected p1 entry")
	}
	if s, _ := p1.String(); s != "v1" {
		t.Fatalf("p1 = %+v, want v1", p1)
	}
	link, ok := rec.Get("link")
	if !ok {
		t.Fatal("expected link entry")
	}
	uri, ok := link.URI()
	if !ok || uri != "http://example.org/target" {
		t.Fatalf("link = %+v, want URI http://example.org/target", link)
	}
}

func TestDecodeContextPrefixExpansion(t *testing.T) {
	doc := []byte(`{
		"@context": {"ex": "http://example.org/"},
		"ex:root": {
			"ex:p1": [{"value": 7, "time": 1}]
		}
	}`)
	tuples, err := Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tuples) != 1 {
		t.Fatalf("expected 1 tuple, got %d", len(tuples))
	}
	tup := tuples[0]
	if tup.Item != "http://example.org/root" || tup.Property != "http://example.org/p1" {
		t.Fatalf("expected expanded prefixes, got %+v", tup)
	}
	n, ok := tup.Value.Int64()
	if !ok || n != 7 {
		t.Fatalf("expected int64 7, got %+v", tup.Value)
	}
}

func TestDecodeMergesMultipleContexts(t *testing.T) {
	// Only one top-level "@context" key can exist in a JSON object, so
	// this exercises the merge path via the single map that
	// encoding/json naturally decodes into; later keys simply override
	// earlier ones within that one object.
	doc := []byte(`{
		"@context": {"ex": "http://example.org/", "ex2": "http://example.org/v2/"},
		"ex2:root": {
			"ex:p1": [{"value": 1, "time": 1}]
		}
	}`)
	tuples, err := Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tuples) != 1 {
		t.Fatalf("expected 1 tuple, got %d", len(tuples))
	}
	if tuples[0].Item != "http://example.org/v2/root" {
		t.Fatalf("unexpected item: %q", tuples[0].Item)
	}
}
