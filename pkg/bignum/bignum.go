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

// Package bignum is the unbounded integer facade used by the public-key and
// packet layers. It adds to math/big the operations whose exact behavior is
// visible on the wire or in test vectors: fixed-width big- and little-endian
// byte conversion, the MPI codec, a checked modular inverse, and a
// uniform-sequence modular exponentiation for secret exponents.
//
// All functions allocate their results and never modify their arguments.
package bignum

import (
	"math/big"

	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
)

var (
	// ErrNoInverse is returned by ModInverse when gcd(a, m) != 1.
	ErrNoInverse = pgperr.New(pgperr.KindDomain, "bignum: no modular inverse")

	// ErrNegative is returned when a negative integer is given to a
	// magnitude-only codec.
	ErrNegative = pgperr.New(pgperr.KindDomain, "bignum: negative integer")

	// ErrTooWide is returned when an integer does not fit the requested width.
	ErrTooWide = pgperr.New(pgperr.KindDomain, "bignum: integer wider than requested width")

	// ErrZeroModulus is returned for a zero or negative modulus.
	ErrZeroModulus = pgperr.New(pgperr.KindDomain, "bignum: modulus must be positive")
)

var one = big.NewInt(1)

// Zero returns a new integer set to 0.
func Zero() *big.Int { return new(big.Int) }

// One returns a new integer set to 1.
func One() *big.Int { return big.NewInt(1) }

// Add returns a + b.
func Add(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) }

// Sub returns a - b.
func Sub(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }

// Mul returns a * b.
func Mul(a, b *big.Int) *big.Int { return new(big.Int).Mul(a, b) }

// Div returns the Euclidean quotient a / b. It panics if b is zero, as
// math/big does.
func Div(a, b *big.Int) *big.Int { return new(big.Int).Div(a, b) }

// Mod returns the Euclidean remainder a mod b, always in [0, |b|).
func Mod(a, b *big.Int) *big.Int { return new(big.Int).Mod(a, b) }

// GCD returns the greatest common divisor of |a| and |b|.
func GCD(a, b *big.Int) *big.Int {
	x := new(big.Int).Abs(a)
	y := new(big.Int).Abs(b)
	return new(big.Int).GCD(nil, nil, x, y)
}

// ShiftLeft returns a << n.
func ShiftLeft(a *big.Int, n uint) *big.Int { return new(big.Int).Lsh(a, n) }

// ShiftRight returns a >> n.
func ShiftRight(a *big.Int, n uint) *big.Int { return new(big.Int).Rsh(a, n) }

// BitLength returns the bit length of |a|; 0 has bit length 0.
func BitLength(a *big.Int) int { return a.BitLen() }

// PowMod returns base^exp mod m with the result in [0, m). Negative
// exponents are resolved through the modular inverse of base.
func PowMod(base, exp, m *big.Int) (*big.Int, error) {
	if m.Sign() <= 0 {
		return nil, ErrZeroModulus
	}
	if m.Cmp(one) == 0 {
		return Zero(), nil
	}
	b := Mod(base, m)
	e := exp
	if exp.Sign() < 0 {
		inv, err := ModInverse(b, m)
		if err != nil {
			return nil, err
		}
		b = inv
		e = new(big.Int).Neg(exp)
	}
	return new(big.Int).Exp(b, e, m), nil
}

// ModInverse returns x in [0, m) with a*x = 1 mod m using the extended
// Euclidean algorithm. It fails with ErrNoInverse when gcd(a, m) != 1.
func ModInverse(a, m *big.Int) (*big.Int, error) {
	if m.Sign() <= 0 {
		return nil, ErrZeroModulus
	}
	r0 := new(big.Int).Set(m)
	r1 := Mod(a, m)
	t0 := Zero()
	t1 := One()
	q := new(big.Int)
	tmp := new(big.Int)
	for r1.Sign() != 0 {
		q.Div(r0, r1)
		tmp.Mul(q, r1)
		r0, r1 = r1, new(big.Int).Sub(r0, tmp)
		tmp.Mul(q, t1)
		t0, t1 = t1, new(big.Int).Sub(t0, tmp)
	}
	if r0.Cmp(one) != 0 {
		return nil, ErrNoInverse
	}
	return t0.Mod(t0, m), nil
}

// ToBytesBE returns the big-endian magnitude of a. With width 0 the encoding
// is minimal, and the integer 0 encodes as a single 0x00 byte. A positive
// width left-pads with zero bytes and fails with ErrTooWide when the value
// does not fit.
func ToBytesBE(a *big.Int, width int) ([]byte, error) {
	if a.Sign() < 0 {
		return nil, ErrNegative
	}
	raw := a.Bytes()
	if width <= 0 {
		if len(raw) == 0 {
			return []byte{0}, nil
		}
		return raw, nil
	}
	if len(raw) > width {
		return nil, ErrTooWide
	}
	out := make([]byte, width)
	copy(out[width-len(raw):], raw)
	return out, nil
}

// FromBytesBE parses a big-endian magnitude. The empty slice is 0.
func FromBytesBE(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// ToBytesLE returns the little-endian magnitude of a, padded to width when
// width is positive.
func ToBytesLE(a *big.Int, width int) ([]byte, error) {
	be, err := ToBytesBE(a, width)
	if err != nil {
		return nil, err
	}
	return reverse(be), nil
}

// FromBytesLE parses a little-endian magnitude.
func FromBytesLE(b []byte) *big.Int {
	return FromBytesBE(reverse(b))
}

// ByteLen returns the number of bytes in the minimal encoding of |a|.
func ByteLen(a *big.Int) int {
	return (a.BitLen() + 7) / 8
}

// Equal reports whether a == b.
func Equal(a, b *big.Int) bool {
	return a.Cmp(b) == 0
}

// InRange reports whether lo <= a < hi.
func InRange(a, lo, hi *big.Int) bool {
	return a.Cmp(lo) >= 0 && a.Cmp(hi) < 0
}

// IsZero reports whether a is 0.
func IsZero(a *big.Int) bool {
	return a.Sign() == 0
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

// Zeroize overwrites the backing words of a and sets it to 0. It is safe to
// call with nil.
func Zeroize(a *big.Int) {
	if a == nil {
		return
	}
	words := a.Bits()
	for i := range words {
		words[i] = 0
	}
	a.SetInt64(0)
}

// Clone returns an independent copy of a, or nil when a is nil.
func Clone(a *big.Int) *big.Int {
	if a == nil {
		return nil
	}
	return new(big.Int).Set(a)
}
