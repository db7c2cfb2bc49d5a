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

// Package packet reads and writes the legacy (version 2 and 3) OpenPGP
// packet format.
//
// Every packet starts with a cipher type byte (CTB) of the form
// 0b10TTTTLL, where T is the packet type and L selects a 1, 2 or 4 byte
// big-endian body length, or an indeterminate length running to the end
// of input. The writer uses the narrowest length field that fits, except
// for signatures and key packets, which always carry at least two length
// bytes because legacy readers expect them.
//
// Reader splits a byte stream into Raw packets and Parse turns a Raw
// packet into its typed form. Framing errors from Reader are fatal for the
// stream; errors from Parse concern a single body and can be skipped.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
)

// Type is the packet type carried in bits 5..2 of the CTB.
type Type byte

const (
	TypePKEncrypted  Type = 1
	TypeSignature    Type = 2
	TypeSecretKey    Type = 5
	TypePublicKey    Type = 6
	TypeCompressed   Type = 8
	TypeSymEncrypted Type = 9
	TypeLiteral      Type = 11
	TypeTrust        Type = 12
	TypeUserID       Type = 13
	TypeComment      Type = 14
)

func (t Type) String() string {
	switch t {
	case TypePKEncrypted:
		return "pk-encrypted"
	case TypeSignature:
		return "signature"
	case TypeSecretKey:
		return "secret-key"
	case TypePublicKey:
		return "public-key"
	case TypeCompressed:
		return "compressed"
	case TypeSymEncrypted:
		return "sym-encrypted"
	case TypeLiteral:
		return "literal"
	case TypeTrust:
		return "trust"
	case TypeUserID:
		return "user-id"
	case TypeComment:
		return "comment"
	default:
		return fmt.Sprintf("type-%d", byte(t))
	}
}

// Indeterminate is the Header.Length of a packet whose body runs to the
// end of input.
const Indeterminate = -1

// MaxBodySize bounds the body of a single packet.
const MaxBodySize = 64 << 20

const (
	ctbTag           = 0x80
	ctbMask          = 0xc0
	llIndeterminate  = 3
	minKeyLengthSize = 2
)

var (
	// ErrBadHeader is returned for a CTB without the 0b10 tag bits or with
	// packet type 0.
	ErrBadHeader = pgperr.New(pgperr.KindFormat, "packet: bad cipher type byte")

	// ErrBadLength is returned for a length field the reader cannot honor.
	ErrBadLength = pgperr.New(pgperr.KindFormat, "packet: bad length")

	// ErrTruncated is returned when input ends inside a header or body.
	ErrTruncated = pgperr.New(pgperr.KindFormat, "packet: truncated")

	// ErrMalformed is returned for a body that does not match its type.
	ErrMalformed = pgperr.New(pgperr.KindFormat, "packet: malformed body")

	// ErrUnsupported is returned for packet types, versions and algorithms
	// outside the legacy format.
	ErrUnsupported = pgperr.New(pgperr.KindCapability, "packet: unsupported")

	// ErrBadSignatureFormat is returned for a signature whose hashed
	// material length is not 5.
	ErrBadSignatureFormat = pgperr.New(pgperr.KindFormat, "packet: bad signature format")

	// ErrBadChecksum is returned for an unprotected secret key whose
	// checksum does not match its integers.
	ErrBadChecksum = pgperr.New(pgperr.KindCrypto, "packet: secret key checksum mismatch")

	// ErrBadField is returned when a value does not fit its wire field.
	ErrBadField = pgperr.New(pgperr.KindDomain, "packet: field out of range")
)

// Header is a decoded CTB and length.
type Header struct {
	Type Type

	// Length is the body length, or Indeterminate.
	Length int64

	// Width is the number of length bytes: 1, 2 or 4, or 0 for an
	// indeterminate length.
	Width int
}

// ReadHeader reads one packet header. It returns io.EOF, unwrapped, when r
// is exhausted before the first byte.
func ReadHeader(r io.Reader) (Header, error) {
	var ctb [1]byte
	if _, err := io.ReadFull(r, ctb[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, io.EOF
		}
		return Header{}, pgperr.Wrap(pgperr.KindIO, "packet: reading header", err)
	}
	if ctb[0]&ctbMask != ctbTag {
		return Header{}, fmt.Errorf("%w: 0x%02x", ErrBadHeader, ctb[0])
	}
	h := Header{Type: Type((ctb[0] >> 2) & 0x0f)}
	if h.Type == 0 {
		return Header{}, fmt.Errorf("%w: 0x%02x", ErrBadHeader, ctb[0])
	}
	ll := ctb[0] & 0x03
	if ll == llIndeterminate {
		h.Length = Indeterminate
		return h, nil
	}
	h.Width = 1 << ll
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[4-h.Width:]); err != nil {
		return Header{}, fmt.Errorf("%w: length field", ErrTruncated)
	}
	h.Length = int64(binary.BigEndian.Uint32(buf[:]))
	return h, nil
}

// LengthWidth returns the number of length bytes the writer uses for a
// body of n bytes of type t.
func LengthWidth(t Type, n int) int {
	w := 1
	switch {
	case n > math.MaxUint16:
		w = 4
	case n > math.MaxUint8:
		w = 2
	}
	switch t {
	case TypeSignature, TypeSecretKey, TypePublicKey:
		if w < minKeyLengthSize {
			w = minKeyLengthSize
		}
	}
	return w
}

// AppendHeader appends the header for a body of n bytes of type t.
func AppendHeader(b []byte, t Type, n int) ([]byte, error) {
	return appendHeaderWidth(b, t, n, LengthWidth(t, n))
}

func appendHeaderWidth(b []byte, t Type, n, width int) ([]byte, error) {
	if t == 0 || t > 0x0f {
		return nil, fmt.Errorf("%w: packet type %d", ErrBadField, t)
	}
	if n < 0 || int64(n) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: body of %d bytes", ErrBadField, n)
	}
	ctb := byte(ctbTag) | byte(t)<<2
	switch width {
	case 1:
		if n > math.MaxUint8 {
			return nil, fmt.Errorf("%w: body of %d bytes in 1 length byte", ErrBadField, n)
		}
		return append(b, ctb, byte(n)), nil
	case 2:
		if n > math.MaxUint16 {
			return nil, fmt.Errorf("%w: body of %d bytes in 2 length bytes", ErrBadField, n)
		}
		return binary.BigEndian.AppendUint16(append(b, ctb|1), uint16(n)), nil
	case 4:
		return binary.BigEndian.AppendUint32(append(b, ctb|2), uint32(n)), nil
	}
	return nil, fmt.Errorf("%w: length width %d", ErrBadField, width)
}

// WriteHeader writes the header for a body of n bytes of type t.
func WriteHeader(w io.Writer, t Type, n int) error {
	b, err := AppendHeader(nil, t, n)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// WriteStream writes a packet of type t with an indeterminate length and
// copies body to w. It must be the last packet written to w.
func WriteStream(w io.Writer, t Type, body io.Reader) error {
	if t == 0 || t > 0x0f {
		return fmt.Errorf("%w: packet type %d", ErrBadField, t)
	}
	if _, err := w.Write([]byte{ctbTag | byte(t)<<2 | llIndeterminate}); err != nil {
		return err
	}
	if _, err := io.Copy(w, body); err != nil {
		return err
	}
	metrics.RecordPacket(t.String(), metrics.DirectionWrite)
	return nil
}
