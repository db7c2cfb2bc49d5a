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
	"math/big"
)

// PowModSecret returns base^exp mod m for a secret, non-negative exponent.
//
// It runs a Montgomery ladder over max(bitlen(exp), bitlen(m)) bits and
// performs exactly one multiplication and one squaring per bit, selecting
// operands by index rather than by branch. The sequence of big.Int calls is
// therefore independent of the exponent bits. math/big itself is not
// constant time, so this removes the square-and-multiply pattern but not
// every data-dependent timing.
func PowModSecret(base, exp, m *big.Int) (*big.Int, error) {
	if m.Sign() <= 0 {
		return nil, ErrZeroModulus
	}
	if exp.Sign() < 0 {
		return nil, ErrNegative
	}
	if m.Cmp(one) == 0 {
		return Zero(), nil
	}

	r := [2]*big.Int{One(), Mod(base, m)}
	prod := new(big.Int)
	sq := new(big.Int)

	n := m.BitLen()
	if exp.BitLen() > n {
		n = exp.BitLen()
	}
	for i := n - 1; i >= 0; i-- {
		bit := exp.Bit(i)
		prod.Mul(r[0], r[1])
		prod.Mod(prod, m)
		sq.Mul(r[bit], r[bit])
		sq.Mod(sq, m)
		r[1-bit].Set(prod)
		r[bit].Set(sq)
	}
	Zeroize(r[1])
	Zeroize(prod)
	Zeroize(sq)
	return r[0], nil
}
