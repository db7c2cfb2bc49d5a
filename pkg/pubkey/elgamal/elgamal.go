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

// Package elgamal implements ElGamal encryption and signatures over a
// prime field with explicit nonces.
package elgamal

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/bignum"
	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
	"github.com/jeremyhahn/go-pgpkit/pkg/prime"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
)

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
)

// PublicKey is an ElGamal public key.
type PublicKey struct {
	P, G, Y *big.Int
}

// Ciphertext is an (a, b) pair.
type Ciphertext struct {
	A, B *big.Int
}

// Signature is an (a, b) pair.
type Signature struct {
	A, B *big.Int
}

// Encrypt encrypts m, 0 <= m < p, with nonce k, 2 <= k < p-1:
// a = g^k mod p, b = m*y^k mod p.
func (pub *PublicKey) Encrypt(m, k *big.Int) (*Ciphertext, error) {
	if m.Sign() < 0 || m.Cmp(pub.P) >= 0 {
		return nil, pubkey.ErrBadDomain
	}
	pm1 := new(big.Int).Sub(pub.P, bigOne)
	if err := pubkey.CheckNonce(k, pm1); err != nil {
		return nil, err
	}
	a, err := bignum.PowModSecret(pub.G, k, pub.P)
	if err != nil {
		return nil, err
	}
	yk, err := bignum.PowModSecret(pub.Y, k, pub.P)
	if err != nil {
		return nil, err
	}
	b := yk.Mul(yk, m)
	b.Mod(b, pub.P)
	return &Ciphertext{A: a, B: b}, nil
}

// EncryptRandom encrypts m with a nonce drawn from rng.
func (pub *PublicKey) EncryptRandom(m *big.Int, rng io.Reader) (*Ciphertext, error) {
	k, err := prime.RandomRange(rng, bigTwo, new(big.Int).Sub(pub.P, bigOne))
	if err != nil {
		return nil, err
	}
	defer bignum.Zeroize(k)
	return pub.Encrypt(m, k)
}

// Verify reports whether sig is a signature of m: y^a * a^b = g^m mod p
// with 0 < a < p.
func (pub *PublicKey) Verify(m *big.Int, sig *Signature) bool {
	if m.Sign() < 0 || sig == nil || sig.A == nil || sig.B == nil {
		return false
	}
	if sig.A.Sign() <= 0 || sig.A.Cmp(pub.P) >= 0 || sig.B.Sign() < 0 {
		return false
	}
	v1 := new(big.Int).Exp(pub.Y, sig.A, pub.P)
	v2 := new(big.Int).Exp(sig.A, sig.B, pub.P)
	v1.Mul(v1, v2)
	v1.Mod(v1, pub.P)
	v3 := new(big.Int).Exp(pub.G, m, pub.P)
	return v1.Cmp(v3) == 0
}

// PrivateKey is an ElGamal private key with a lockable x.
type PrivateKey struct {
	PublicKey
	secret *pubkey.Secret
}

// NewPrivateKey assembles a private key.
func NewPrivateKey(p, g, y, x *big.Int) *PrivateKey {
	return &PrivateKey{PublicKey: PublicKey{P: p, G: g, Y: y}, secret: pubkey.NewSecret(x)}
}

// NewLockedPrivateKey wraps an enciphered x.
func NewLockedPrivateKey(pub PublicKey, sealed *pubkey.Sealed) *PrivateKey {
	return &PrivateKey{PublicKey: pub, secret: pubkey.NewLockedSecret(sealed, 1)}
}

// Generate draws a bits-bit prime p, a generator candidate g and a secret
// x, and computes y = g^x mod p. progress receives "p", "g" and "x,y".
func Generate(rng io.Reader, bits int, progress pubkey.ProgressFunc) (_ *PrivateKey, err error) {
	defer func(t time.Time) { metrics.Observe(metrics.OpKeyGen, "ElGamal", t, err) }(time.Now())

	if err := prime.Report(progress, "p"); err != nil {
		return nil, err
	}
	p, err := prime.Generate(bits, prime.DefaultRounds, rng, progress)
	if err != nil {
		return nil, err
	}
	pm1 := new(big.Int).Sub(p, bigOne)

	if err := prime.Report(progress, "g"); err != nil {
		return nil, err
	}
	g, err := prime.RandomRange(rng, bigTwo, pm1)
	if err != nil {
		return nil, err
	}

	if err := prime.Report(progress, "x,y"); err != nil {
		return nil, err
	}
	x, err := prime.RandomRange(rng, bigTwo, pm1)
	if err != nil {
		return nil, err
	}
	y, err := bignum.PowModSecret(g, x, p)
	if err != nil {
		return nil, err
	}
	return NewPrivateKey(p, g, y, x), nil
}

// Public returns the public half of k.
func (k *PrivateKey) Public() *PublicKey {
	pub := k.PublicKey
	return &pub
}

// Secret returns the lockable secret container.
func (k *PrivateKey) Secret() *pubkey.Secret { return k.secret }

// State returns the lock state.
func (k *PrivateKey) State() pubkey.State { return k.secret.State() }

// Lock enciphers x under passphrase.
func (k *PrivateKey) Lock(passphrase []byte, rng io.Reader) error {
	return k.secret.Lock(passphrase, rng)
}

// Unlock deciphers x.
func (k *PrivateKey) Unlock(passphrase []byte) error {
	return k.secret.Unlock(passphrase)
}

// Zeroize overwrites x.
func (k *PrivateKey) Zeroize() { k.secret.Zeroize() }

func (k *PrivateKey) x() (*big.Int, error) {
	vals, err := k.secret.Values()
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, pubkey.ErrNotPrivate
	}
	return vals[0], nil
}

// Validate checks 1 < g < p, 1 < x < p-1 and y = g^x mod p.
func (k *PrivateKey) Validate() error {
	x, err := k.x()
	if err != nil {
		return err
	}
	if !prime.IsPrime(k.P, 20, nil) {
		return fmt.Errorf("%w: p not prime", pubkey.ErrInvalidKey)
	}
	pm1 := new(big.Int).Sub(k.P, bigOne)
	if k.G.Cmp(bigOne) <= 0 || k.G.Cmp(k.P) >= 0 || x.Cmp(bigOne) <= 0 || x.Cmp(pm1) >= 0 {
		return fmt.Errorf("%w: g or x out of range", pubkey.ErrInvalidKey)
	}
	if new(big.Int).Exp(k.G, x, k.P).Cmp(k.Y) != 0 {
		return fmt.Errorf("%w: y != g^x", pubkey.ErrInvalidKey)
	}
	return nil
}

// Decrypt returns b * (a^x)^-1 mod p.
func (k *PrivateKey) Decrypt(c *Ciphertext) (*big.Int, error) {
	if c == nil || c.A == nil || c.B == nil ||
		c.A.Sign() <= 0 || c.A.Cmp(k.P) >= 0 || c.B.Sign() < 0 || c.B.Cmp(k.P) >= 0 {
		return nil, pubkey.ErrBadDomain
	}
	x, err := k.x()
	if err != nil {
		return nil, err
	}
	ax, err := bignum.PowModSecret(c.A, x, k.P)
	if err != nil {
		return nil, err
	}
	inv, err := bignum.ModInverse(ax, k.P)
	bignum.Zeroize(ax)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pubkey.ErrBadDomain, err)
	}
	m := inv.Mul(inv, c.B)
	return m.Mod(m, k.P), nil
}

// Sign signs m with nonce k, which must lie in [2, p-1) and be coprime to
// p-1: a = g^k mod p, b = (m - x*a) * k^-1 mod (p-1).
func (k *PrivateKey) Sign(m, nonce *big.Int) (*Signature, error) {
	if m.Sign() < 0 {
		return nil, pubkey.ErrBadDomain
	}
	pm1 := new(big.Int).Sub(k.P, bigOne)
	if err := pubkey.CheckNonce(nonce, pm1); err != nil {
		return nil, err
	}
	kinv, err := bignum.ModInverse(nonce, pm1)
	if err != nil {
		return nil, fmt.Errorf("%w: not coprime to p-1", pubkey.ErrBadNonce)
	}
	defer bignum.Zeroize(kinv)
	x, err := k.x()
	if err != nil {
		return nil, err
	}
	a, err := bignum.PowModSecret(k.G, nonce, k.P)
	if err != nil {
		return nil, err
	}
	t := new(big.Int).Mul(x, a)
	t.Sub(m, t)
	t.Mod(t, pm1)
	b := t.Mul(t, kinv)
	b.Mod(b, pm1)
	return &Signature{A: a, B: b}, nil
}

// SignRandom signs m with a fresh nonce coprime to p-1.
func (k *PrivateKey) SignRandom(m *big.Int, rng io.Reader) (*Signature, error) {
	pm1 := new(big.Int).Sub(k.P, bigOne)
	for {
		nonce, err := prime.RandomRange(rng, bigTwo, pm1)
		if err != nil {
			return nil, err
		}
		sig, err := k.Sign(m, nonce)
		bignum.Zeroize(nonce)
		if errors.Is(err, pubkey.ErrBadNonce) {
			continue
		}
		return sig, err
	}
}
