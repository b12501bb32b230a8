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

// Package compr provides a unified interface wrapping
// third-party compression libraries used by the row file format.
package compr

import (
	"fmt"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

// Compressor describes the interface that a row-block
// writer needs a compression algorithm to implement.
type Compressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Compress should append the compressed contents
	// of src to dst and return the result.
	Compress(src, dst []byte) []byte
}

// Decompressor is the interface that a row-block
// reader uses to decompress blocks.
type Decompressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Decompress decompresses source data into dst.
	// It errors out if dst is not large enough to fit
	// the decoded source data.
	//
	// It must be safe to make multiple calls to
	// Decompress simultaneously from different goroutines.
	Decompress(src, dst []byte) error
}

type zstdCompressor struct {
	name string
	enc  *zstd.Encoder
}

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

func (z zstdCompressor) Name() string { return z.name }

var zstdDecoder *zstd.Decoder

func init() {
	// by default, concurrency is set to min(4, GOMAXPROCS);
	// we'd like it to always be GOMAXPROCS
	z, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
}

type zstdDecompressor zstd.Decoder

func (z *zstdDecompressor) Name() string { return "zstd" }

func (z *zstdDecompressor) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := (*zstd.Decoder)(z).DecodeAll(src, into)
	if err != nil {
		return err
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("expected %d bytes decompressed; got %d", len(dst), len(ret))
	}
	return nil
}

// Compression selects a compression algorithm by name.
//
// "zstd" is the default (fast) profile. "zstd-archive" matches
// the level-12 profile used for row files committed to partitions:
// slower to encode, smaller on disk, appropriate for data that is
// written once and read many times.
func Compression(name string) Compressor {
	switch name {
	case "zstd":
		z, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return zstdCompressor{name: name, enc: z}
	case "zstd-archive":
		z, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)),
			zstd.WithEncoderConcurrency(1))
		return zstdCompressor{name: name, enc: z}
	default:
		return nil
	}
}

// Decompression selects a decompression algorithm by name.
// Both "zstd" and "zstd-archive" streams are read by the same
// decoder; the distinct names only select the encoder profile.
func Decompression(name string) Decompressor {
	switch name {
	case "zstd", "zstd-archive":
		return (*zstdDecompressor)(zstdDecoder)
	default:
		return nil
	}
}
