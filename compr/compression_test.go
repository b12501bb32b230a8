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

package compr

import (
	"bytes"
	"testing"
)

func TestRoundtrip(t *testing.T) {
	for _, name := range []string{"zstd", "zstd-archive"} {
		c := Compression(name)
		if c == nil {
			t.Fatalf("no compressor for %q", name)
		}
		src := bytes.Repeat([]byte("row-file-block-payload "), 500)
		enc := c.Compress(src, nil)
		d := Decompression(name)
		dst := make([]byte, len(src))
		if err := d.Decompress(enc, dst); err != nil {
			t.Fatalf("%s: decompress: %s", name, err)
		}
		if !bytes.Equal(src, dst) {
			t.Fatalf("%s: roundtrip mismatch", name)
		}
	}
}

func TestUnknown(t *testing.T) {
	if Compression("bogus") != nil {
		t.Fatal("expected nil compressor for unknown name")
	}
	if Decompression("bogus") != nil {
		t.Fatal("expected nil decompressor for unknown name")
	}
}
