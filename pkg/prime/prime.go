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

// Package prime implements probabilistic primality testing and the prime
// searches used by key generation: random-start next-prime search and the
// seed-driven DSA construction of q and p.
//
// Every function that needs randomness takes it as an explicit io.Reader.
// Long searches report progress through a ProgressFunc; returning an error
// from the callback abandons the search and no partial result is returned.
package prime

import (
	"fmt"
	"io"
	"math/big"

	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
)

// DefaultRounds is the number of Miller-Rabin rounds used when a caller
// passes 0. Key generation uses at least this many.
const DefaultRounds = 40

var (
	// ErrCancelled is returned when a ProgressFunc asks to stop.
	ErrCancelled = pgperr.New(pgperr.KindCancelled, "prime: cancelled")

	// ErrBitSize is returned for a requested size the search cannot produce.
	ErrBitSize = pgperr.New(pgperr.KindDomain, "prime: invalid bit size")

	// ErrExhausted is returned when a bounded search runs out of candidates.
	ErrExhausted = pgperr.New(pgperr.KindCrypto, "prime: candidates exhausted")

	// ErrNoRandom is returned when the random source fails.
	ErrNoRandom = pgperr.New(pgperr.KindIO, "prime: random source failed")
)

// ProgressFunc receives stage names during long searches. Returning a
// non-nil error cancels the search.
type ProgressFunc func(stage string) error

// Report calls fn when it is set and converts a refusal into ErrCancelled.
func Report(fn ProgressFunc, stage string) error {
	if fn == nil {
		return nil
	}
	if err := fn(stage); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// smallPrimes are used for trial division before Miller-Rabin.
var smallPrimes = []uint64{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67,
	71, 73, 79, 83, 89, 97, 101, 103, 107, 109, 113, 127, 131, 137, 139, 149,
	151, 157, 163, 167, 173, 179, 181, 191, 193, 197, 199, 211, 223, 227, 229,
	233, 239, 241, 251,
}

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// IsPrime reports whether n is probably prime. A false result is definite
// unless the random source failed; Test reports that case separately.
func IsPrime(n *big.Int, rounds int, rng io.Reader) bool {
	ok, err := Test(n, rounds, rng)
	return err == nil && ok
}

// Test reports whether n is probably prime.
//
// n is first checked against the small primes up to 251 by trial division,
// then tested with rounds Miller-Rabin rounds. Witnesses are drawn from rng
// when it is non-nil; otherwise the first rounds small primes are used as
// fixed bases, which is adequate for tests but not for adversarial input.
// A failing rng returns ErrNoRandom.
func Test(n *big.Int, rounds int, rng io.Reader) (bool, error) {
	if n.Sign() <= 0 || n.Cmp(one) == 0 {
		return false, nil
	}
	if rounds <= 0 {
		rounds = DefaultRounds
	}

	m := new(big.Int)
	for _, p := range smallPrimes {
		bp := new(big.Int).SetUint64(p)
		if n.Cmp(bp) == 0 {
			return true, nil
		}
		if m.Mod(n, bp).Sign() == 0 {
			return false, nil
		}
	}

	nm1 := new(big.Int).Sub(n, one)
	d := new(big.Int).Set(nm1)
	s := 0
	for d.Bit(0) == 0 {
		d.Rsh(d, 1)
		s++
	}

	nm3 := new(big.Int).Sub(n, big.NewInt(3))
	for i := 0; i < rounds; i++ {
		var a *big.Int
		if rng != nil {
			r, err := randBelow(rng, nm3)
			if err != nil {
				return false, err
			}
			a = r.Add(r, two)
		} else {
			a = new(big.Int).SetUint64(smallPrimes[i%len(smallPrimes)])
		}
		if !millerRabinWitness(n, nm1, d, s, a) {
			return false, nil
		}
	}
	return true, nil
}

// millerRabinWitness returns false if a proves n composite.
func millerRabinWitness(n, nm1, d *big.Int, s int, a *big.Int) bool {
	x := new(big.Int).Exp(a, d, n)
	if x.Cmp(one) == 0 || x.Cmp(nm1) == 0 {
		return true
	}
	for r := 1; r < s; r++ {
		x.Mul(x, x).Mod(x, n)
		if x.Cmp(nm1) == 0 {
			return true
		}
		if x.Cmp(one) == 0 {
			return false
		}
	}
	return false
}

// NextPrime returns the smallest probable prime >= n. An even n is first
// incremented, then the candidate advances by 2 until Test holds. It stops
// with ErrNoRandom as soon as rng fails.
func NextPrime(n *big.Int, rounds int, rng io.Reader) (*big.Int, error) {
	if n.Cmp(two) <= 0 {
		return big.NewInt(2), nil
	}
	c := new(big.Int).Set(n)
	if c.Bit(0) == 0 {
		c.Add(c, one)
	}
	for {
		ok, err := Test(c, rounds, rng)
		if err != nil {
			return nil, err
		}
		if ok {
			return c, nil
		}
		c.Add(c, two)
	}
}

// Generate returns a probable prime of exactly bits bits. It draws bits of
// randomness, forces the top and bottom bits, and walks to the next prime,
// retrying when the walk overflows the requested size.
func Generate(bits, rounds int, rng io.Reader, progress ProgressFunc) (*big.Int, error) {
	if bits < 2 {
		return nil, ErrBitSize
	}
	tries := 0
	for {
		c, err := RandomBits(rng, bits)
		if err != nil {
			return nil, err
		}
		c.SetBit(c, bits-1, 1)
		c.SetBit(c, 0, 1)
		p, err := NextPrime(c, rounds, rng)
		if err != nil {
			return nil, err
		}
		if p.BitLen() == bits {
			return p, nil
		}
		tries++
		if err := Report(progress, fmt.Sprintf("%d values tried", tries)); err != nil {
			return nil, err
		}
	}
}

// RandomBits returns a non-negative integer of at most bits bits read from rng.
func RandomBits(rng io.Reader, bits int) (*big.Int, error) {
	if rng == nil {
		return nil, ErrNoRandom
	}
	buf := make([]byte, (bits+7)/8)
	if _, err := io.ReadFull(rng, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoRandom, err)
	}
	if extra := len(buf)*8 - bits; extra > 0 {
		buf[0] &= byte(0xFF >> extra)
	}
	return new(big.Int).SetBytes(buf), nil
}

// randBelow returns a uniform integer in [0, max) for max > 0 using
// rejection sampling on rng.
func randBelow(rng io.Reader, max *big.Int) (*big.Int, error) {
	if max.Sign() <= 0 {
		return new(big.Int), nil
	}
	bits := max.BitLen()
	for {
		r, err := RandomBits(rng, bits)
		if err != nil {
			return nil, err
		}
		if r.Cmp(max) < 0 {
			return r, nil
		}
	}
}

// RandomRange returns a uniform integer in [lo, hi) drawn from rng.
func RandomRange(rng io.Reader, lo, hi *big.Int) (*big.Int, error) {
	span := new(big.Int).Sub(hi, lo)
	if span.Sign() <= 0 {
		return nil, ErrBitSize
	}
	r, err := randBelow(rng, span)
	if err != nil {
		return nil, err
	}
	return r.Add(r, lo), nil
}
