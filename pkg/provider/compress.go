// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-pgpkit.
//
// go-pgpkit is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package provider

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// Compression algorithm numbers of the legacy packet format.
const (
	CompressionNone  = 0
	CompressionZIP   = 1
	CompressionZLIB  = 2
	CompressionBZIP2 = 3
)

// MaxInflated bounds the output of every decompressor.
const MaxInflated = 256 << 20

var (
	// ErrCompression is returned for corrupt or oversized compressed data.
	ErrCompression = pgperr.New(pgperr.KindFormat, "provider: corrupt compressed data")

	// ErrUnknownCompression is returned for an unsupported algorithm number.
	ErrUnknownCompression = pgperr.New(pgperr.KindCapability, "provider: unknown compression algorithm")
)

// Deflate compresses b as a raw deflate stream with no zlib header, the
// window-bits -15 form written by legacy PGP.
func Deflate(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Inflate reverses Deflate.
func Inflate(b []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(b))
	defer r.Close()
	return readBounded(r)
}

// ZlibCompress compresses b with a zlib header and checksum.
func ZlibCompress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ZlibDecompress reverses ZlibCompress.
func ZlibDecompress(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	defer r.Close()
	return readBounded(r)
}

// Bzip2Compress compresses b as a bzip2 stream.
func Bzip2Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, nil)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Bzip2Decompress reverses Bzip2Compress.
func Bzip2Decompress(b []byte) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(b), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	defer r.Close()
	return readBounded(r)
}

// Known reports whether algo is a compression algorithm number this
// package implements, other than CompressionNone.
func Known(algo byte) bool {
	switch algo {
	case CompressionZIP, CompressionZLIB, CompressionBZIP2:
		return true
	}
	return false
}

// Compress dispatches on the packet-format algorithm number.
func Compress(algo byte, b []byte) ([]byte, error) {
	switch algo {
	case CompressionNone:
		return append([]byte(nil), b...), nil
	case CompressionZIP:
		return Deflate(b)
	case CompressionZLIB:
		return ZlibCompress(b)
	case CompressionBZIP2:
		return Bzip2Compress(b)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, algo)
}

// Decompress dispatches on the packet-format algorithm number.
func Decompress(algo byte, b []byte) ([]byte, error) {
	switch algo {
	case CompressionNone:
		return append([]byte(nil), b...), nil
	case CompressionZIP:
		return Inflate(b)
	case CompressionZLIB:
		return ZlibDecompress(b)
	case CompressionBZIP2:
		return Bzip2Decompress(b)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, algo)
}

func readBounded(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, MaxInflated+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	if len(out) > MaxInflated {
		return nil, fmt.Errorf("%w: output exceeds %d bytes", ErrCompression, MaxInflated)
	}
	return out, nil
}
