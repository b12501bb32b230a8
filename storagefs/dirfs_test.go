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

package storagefs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	d, err := NewDirFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteFile("a/b/data.parquet", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(d.Root, "a/b/data.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
	// no leftover temp files
	entries, _ := os.ReadDir(filepath.Join(d.Root, "a/b"))
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file, got %d", len(entries))
	}
}

func TestRenameAndListDir(t *testing.T) {
	d, err := NewDirFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteFile("temp/deadbeef/data.parquet", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := d.Rename("temp/deadbeef", "1_100"); err != nil {
		t.Fatal(err)
	}
	names, err := d.ListDir(".")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range names {
		if n == "1_100" {
			found = true
		}
		if n == "temp" {
			t.Fatal("expected temp/deadbeef to have been renamed away, not left in place")
		}
	}
	if !found {
		t.Fatal("expected renamed directory 1_100 to be listed")
	}
}

func TestAppendFromMergesFiles(t *testing.T) {
	d, err := NewDirFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteFile("1_2/data.parquet", []byte("aaa")); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteFile("temp/week/data.parquet", []byte("bbb")); err != nil {
		t.Fatal(err)
	}
	if err := d.AppendFrom("1_2/data.parquet", "temp/week/data.parquet"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(d.Root, "1_2/data.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "aaabbb" {
		t.Fatalf("got %q, want appended contents", got)
	}
	if err := d.RemoveAll("temp/week"); err != nil {
		t.Fatal(err)
	}
	if d.Exists("temp/week") {
		t.Fatal("expected temp/week to be removed")
	}
}

func TestRemoveStaleTemp(t *testing.T) {
	d, err := NewDirFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteFile("temp/stale/data.parquet", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := RemoveStaleTemp(d, "temp"); err != nil {
		t.Fatal(err)
	}
	if d.Exists("temp") {
		t.Fatal("expected temp to be removed")
	}
	// removing an already-absent temp dir is tolerated, not an error
	if err := RemoveStaleTemp(d, "temp"); err != nil {
		t.Fatalf("expected no-op removal to succeed, got %s", err)
	}
}
