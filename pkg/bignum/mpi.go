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

package bignum

import (
	"encoding/binary"
	"io"
	"math/big"

	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
)

// MaxMPIBits is the largest bit count an MPI length prefix can carry.
const MaxMPIBits = 0xFFFF

var (
	// ErrShortMPI is returned when the input ends inside an MPI.
	ErrShortMPI = pgperr.New(pgperr.KindFormat, "bignum: truncated MPI")

	// ErrMPITooLarge is returned when an integer needs more than 65535 bits.
	ErrMPITooLarge = pgperr.New(pgperr.KindDomain, "bignum: integer too large for MPI")

	// ErrNonCanonicalMPI is returned when the bit count disagrees with the
	// magnitude bytes.
	ErrNonCanonicalMPI = pgperr.New(pgperr.KindFormat, "bignum: non-canonical MPI")
)

// EncodeMPI returns the MPI encoding of a: a big-endian u16 bit count
// followed by ceil(bits/8) magnitude bytes. The integer 0 encodes as 0x0000.
func EncodeMPI(a *big.Int) ([]byte, error) {
	if a.Sign() < 0 {
		return nil, ErrNegative
	}
	bits := a.BitLen()
	if bits > MaxMPIBits {
		return nil, ErrMPITooLarge
	}
	out := make([]byte, 2, 2+ByteLen(a))
	binary.BigEndian.PutUint16(out, uint16(bits))
	return append(out, a.Bytes()...), nil
}

// MPILen returns the encoded length of a in bytes.
func MPILen(a *big.Int) int {
	return 2 + ByteLen(a)
}

// WriteMPI writes the MPI encoding of a to w.
func WriteMPI(w io.Writer, a *big.Int) error {
	b, err := EncodeMPI(a)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadMPI reads one MPI from r. A bit count whose top byte has leading
// zero bits beyond the declared count is rejected so that encoding and
// decoding stay a bijection.
func ReadMPI(r io.Reader) (*big.Int, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, ErrShortMPI
	}
	bits := int(binary.BigEndian.Uint16(hdr[:]))
	body := make([]byte, (bits+7)/8)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, ErrShortMPI
	}
	v := new(big.Int).SetBytes(body)
	if v.BitLen() != bits {
		return nil, ErrNonCanonicalMPI
	}
	return v, nil
}

// ParseMPI decodes one MPI from the front of b and returns the remainder.
func ParseMPI(b []byte) (*big.Int, []byte, error) {
	if len(b) < 2 {
		return nil, nil, ErrShortMPI
	}
	bits := int(binary.BigEndian.Uint16(b))
	n := (bits + 7) / 8
	if len(b) < 2+n {
		return nil, nil, ErrShortMPI
	}
	v := new(big.Int).SetBytes(b[2 : 2+n])
	if v.BitLen() != bits {
		return nil, nil, ErrNonCanonicalMPI
	}
	return v, b[2+n:], nil
}
