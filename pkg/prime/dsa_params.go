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

package prime

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	// SeedLen is the size of the DSA parameter seed in bytes.
	SeedLen = 20

	// QBits is the size of the DSA subgroup order.
	QBits = 160

	// MaxCounter bounds the p search for one q.
	MaxCounter = 4096

	// MinPBits is the smallest modulus GenerateP accepts.
	MinPBits = 512
)

var (
	seedMod = new(big.Int).Lsh(one, QBits)
	qLow    = new(big.Int).Lsh(one, QBits-1)
)

// GenerateQ draws a seed S from rng and derives the DSA subgroup order
//
//	U = SHA1(S) XOR SHA1((S+1) mod 2^160)
//
// with the top and bottom bits forced, stepping by 2 to the next probable
// prime. A result outside (2^159, 2^160) is discarded and a new seed drawn.
func GenerateQ(rng io.Reader, rounds int) (*big.Int, []byte, error) {
	for {
		seed := make([]byte, SeedLen)
		if _, err := io.ReadFull(rng, seed); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrNoRandom, err)
		}
		q, err := QFromSeed(seed, rounds, rng)
		if err != nil {
			return nil, nil, err
		}
		if q.Cmp(qLow) > 0 && q.BitLen() == QBits {
			return q, seed, nil
		}
	}
}

// QFromSeed derives q from a fixed seed. It is exposed so that parameters
// can be re-derived and checked from a published seed.
func QFromSeed(seed []byte, rounds int, rng io.Reader) (*big.Int, error) {
	h1 := sha1.Sum(seed)
	h2 := sha1.Sum(seedPlus(seed, 1))
	var u [sha1.Size]byte
	for i := range u {
		u[i] = h1[i] ^ h2[i]
	}
	u[0] |= 0x80
	u[len(u)-1] |= 0x01
	return NextPrime(new(big.Int).SetBytes(u[:]), rounds, rng)
}

// GenerateP searches for a bits-bit prime p with q | p-1, following the
// seed-driven construction: for counter 0..4095 with offset starting at 2,
//
//	V_k = SHA1((S + offset + k) mod 2^160), k = 0..n
//	W   = V_0 + V_1*2^160 + ... + (V_n mod 2^b)*2^(160n)
//	X   = W + 2^(bits-1)
//	p   = X - ((X mod 2q) - 1)
//
// and accepts the first p >= 2^(bits-1) that is prime. It returns the
// counter of the accepted candidate, or ErrExhausted after 4096 misses.
func GenerateP(bits int, q *big.Int, seed []byte, rounds int, rng io.Reader, progress ProgressFunc) (*big.Int, int, error) {
	if bits < MinPBits || bits%64 != 0 {
		return nil, 0, ErrBitSize
	}
	n := (bits - 1) / QBits
	b := (bits - 1) - QBits*n

	lowBound := new(big.Int).Lsh(one, uint(bits-1))
	maskB := new(big.Int).Sub(new(big.Int).Lsh(one, uint(b)), one)
	twoQ := new(big.Int).Lsh(q, 1)

	offset := 2
	w := new(big.Int)
	v := new(big.Int)
	c := new(big.Int)
	for counter := 0; counter < MaxCounter; counter++ {
		w.SetInt64(0)
		for k := 0; k <= n; k++ {
			d := sha1.Sum(seedPlus(seed, offset+k))
			v.SetBytes(d[:])
			if k == n {
				v.And(v, maskB)
			}
			v.Lsh(v, uint(QBits*k))
			w.Add(w, v)
		}
		x := new(big.Int).Add(w, lowBound)
		c.Mod(x, twoQ)
		p := x.Sub(x, c.Sub(c, one))
		if p.Cmp(lowBound) >= 0 {
			ok, err := Test(p, rounds, rng)
			if err != nil {
				return nil, counter, err
			}
			if ok {
				return p, counter, nil
			}
		}
		offset += n + 1
	}
	if err := Report(progress, fmt.Sprintf("%d values tried", MaxCounter)); err != nil {
		return nil, MaxCounter, err
	}
	return nil, MaxCounter, ErrExhausted
}

// GenerateDSAParams produces (p, q, seed, counter). It restarts with a new q
// whenever GenerateP exhausts its counter.
func GenerateDSAParams(bits, rounds int, rng io.Reader, progress ProgressFunc) (p, q *big.Int, seed []byte, counter int, err error) {
	for {
		q, seed, err = GenerateQ(rng, rounds)
		if err != nil {
			return nil, nil, nil, 0, err
		}
		p, counter, err = GenerateP(bits, q, seed, rounds, rng, progress)
		if err == nil {
			return p, q, seed, counter, nil
		}
		if !errors.Is(err, ErrExhausted) {
			return nil, nil, nil, 0, err
		}
	}
}

// seedPlus returns (seed + k) mod 2^160 as a 20-byte big-endian string.
func seedPlus(seed []byte, k int) []byte {
	s := new(big.Int).SetBytes(seed)
	s.Add(s, big.NewInt(int64(k)))
	s.Mod(s, seedMod)
	out := make([]byte, SeedLen)
	s.FillBytes(out)
	return out
}
