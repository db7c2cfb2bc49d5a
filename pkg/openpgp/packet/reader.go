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

package packet

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
)

// Raw is a framed packet whose body has not been parsed.
type Raw struct {
	Header Header
	Body   []byte
}

// Type returns the packet type.
func (r *Raw) Type() Type { return r.Header.Type }

// WriteTo re-emits the packet with the header width it was read with, so
// a stream copied packet by packet is reproduced byte for byte.
func (r *Raw) WriteTo(w io.Writer) (int64, error) {
	var (
		b   []byte
		err error
	)
	if r.Header.Length == Indeterminate {
		b = []byte{ctbTag | byte(r.Header.Type)<<2 | llIndeterminate}
	} else {
		b, err = appendHeaderWidth(nil, r.Header.Type, len(r.Body), r.Header.Width)
		if err != nil {
			return 0, err
		}
	}
	b = append(b, r.Body...)
	n, err := w.Write(b)
	if err == nil {
		metrics.RecordPacket(r.Header.Type.String(), metrics.DirectionWrite)
	}
	return int64(n), err
}

// Reader splits a byte stream into packets.
type Reader struct {
	r    io.Reader
	done bool
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// NewBytesReader returns a Reader over an in-memory packet stream.
func NewBytesReader(b []byte) *Reader {
	return NewReader(bytes.NewReader(b))
}

// Next returns the next packet. It returns io.EOF at a clean end of input.
// Any other error leaves the stream position undefined; the caller cannot
// resynchronize and must stop.
func (pr *Reader) Next() (*Raw, error) {
	if pr.done {
		return nil, io.EOF
	}
	h, err := ReadHeader(pr.r)
	if err != nil {
		if err == io.EOF {
			pr.done = true
		}
		return nil, err
	}

	var body []byte
	if h.Length == Indeterminate {
		body, err = io.ReadAll(io.LimitReader(pr.r, MaxBodySize+1))
		if err != nil {
			return nil, fmt.Errorf("%w: %s body: %w", ErrTruncated, h.Type, err)
		}
		if len(body) > MaxBodySize {
			return nil, fmt.Errorf("%w: %s body exceeds %d bytes", ErrBadLength, h.Type, MaxBodySize)
		}
		pr.done = true
	} else {
		if h.Length > MaxBodySize {
			return nil, fmt.Errorf("%w: %s body of %d bytes", ErrBadLength, h.Type, h.Length)
		}
		body = make([]byte, h.Length)
		if _, err := io.ReadFull(pr.r, body); err != nil {
			return nil, fmt.Errorf("%w: %s body wants %d bytes", ErrTruncated, h.Type, h.Length)
		}
	}
	metrics.RecordPacket(h.Type.String(), metrics.DirectionRead)
	return &Raw{Header: h, Body: body}, nil
}

// ReadAll returns every remaining packet.
func (pr *Reader) ReadAll() ([]*Raw, error) {
	var out []*Raw
	for {
		raw, err := pr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, raw)
	}
}
