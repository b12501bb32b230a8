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

package idmap

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tuplearchive/archive/archiveerr"
)

func openFiles(t *testing.T, dir string) (*DirFile, *DirFile, *DirFile) {
	t.Helper()
	item, err := OpenDirFile(filepath.Join(dir, "itemMapping"))
	if err != nil {
		t.Fatal(err)
	}
	prop, err := OpenDirFile(filepath.Join(dir, "propertyMapping"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := OpenDirFile(filepath.Join(dir, "contextMapping"))
	if err != nil {
		t.Fatal(err)
	}
	return item, prop, ctx
}

func TestMapperAllocatesDenseIds(t *testing.T) {
	dir := t.TempDir()
	item, prop, ctx := openFiles(t, dir)
	m, err := NewMapper(item, prop, ctx)
	if err != nil {
		t.Fatal(err)
	}
	uris := []string{"http://a", "http://b", "http://a", "http://c"}
	var ids []uint64
	for _, u := range uris {
		id, _, err := m.Resolve(RoleItem, u)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 1 || ids[3] != 3 {
		t.Fatalf("got %v, want dense reused ids [1 2 1 3]", ids)
	}
	if m.Count(RoleItem) != 3 {
		t.Fatalf("count = %d, want 3", m.Count(RoleItem))
	}
}

func TestMapperReloadsOnReopen(t *testing.T) {
	dir := t.TempDir()
	item, prop, ctx := openFiles(t, dir)
	m, err := NewMapper(item, prop, ctx)
	if err != nil {
		t.Fatal(err)
	}
	id1, _, _ := m.Resolve(RoleItem, "http://a")
	item.Close()
	prop.Close()
	ctx.Close()

	item2, prop2, ctx2 := openFiles(t, dir)
	m2, err := NewMapper(item2, prop2, ctx2)
	if err != nil {
		t.Fatal(err)
	}
	id2, changed, err := m2.Resolve(RoleItem, "http://a")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("expected reload to recognize the existing uri, not allocate a new id")
	}
	if id1 != id2 {
		t.Fatalf("id changed across reopen: %d != %d", id1, id2)
	}
	id3, changed, err := m2.Resolve(RoleItem, "http://b")
	if err != nil {
		t.Fatal(err)
	}
	if !changed || id3 != 2 {
		t.Fatalf("expected fresh id 2 for new uri, got %d changed=%v", id3, changed)
	}
}

func TestResolverMissingMapping(t *testing.T) {
	dir := t.TempDir()
	item, prop, ctx := openFiles(t, dir)
	m, err := NewMapper(item, prop, ctx)
	if err != nil {
		t.Fatal(err)
	}
	m.Resolve(RoleItem, "http://a")

	r, err := NewResolver(item, prop, ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Resolve(Triple{Item: "http://missing"})
	if !archiveerr.Is(err, archiveerr.KindMappingNotFound) {
		t.Fatalf("expected MappingNotFound, got %v", err)
	}
	var ae *archiveerr.Error
	if !errors.As(err, &ae) {
		t.Fatal("expected *archiveerr.Error")
	}
}

func TestResolverRoundtrip(t *testing.T) {
	dir := t.TempDir()
	item, prop, ctx := openFiles(t, dir)
	m, err := NewMapper(item, prop, ctx)
	if err != nil {
		t.Fatal(err)
	}
	itemID, _, _ := m.Resolve(RoleItem, "http://item")
	propID, _, _ := m.Resolve(RoleProperty, "http://prop")

	r, err := NewResolver(item, prop, ctx)
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Resolve(Triple{Item: "http://item", Property: "http://prop", HasProperty: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Item != itemID || res.Property != propID || !res.HasProperty {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	uri, err := r.ReverseProperty(propID)
	if err != nil {
		t.Fatal(err)
	}
	if uri != "http://prop" {
		t.Fatalf("reverse lookup got %q", uri)
	}
}
