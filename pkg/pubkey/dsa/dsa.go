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

// Package dsa implements DSA over math/big with seed-derived parameters
// (160-bit q) and explicit signing nonces. The qnew package reuses its
// parameter and key types.
package dsa

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

// Params are the domain parameters. Seed and Counter are set when the
// parameters were generated here and allow p and q to be re-derived.
type Params struct {
	P, Q, G *big.Int
	Seed    []byte
	Counter int
}

// Validate checks that p and q are prime, q divides p-1, 1 < g < p and
// g^q = 1 mod p.
func (pr *Params) Validate() error {
	if pr.P == nil || pr.Q == nil || pr.G == nil {
		return pubkey.ErrInvalidKey
	}
	if !prime.IsPrime(pr.Q, 20, nil) || !prime.IsPrime(pr.P, 20, nil) {
		return fmt.Errorf("%w: p or q not prime", pubkey.ErrInvalidKey)
	}
	if new(big.Int).Mod(new(big.Int).Sub(pr.P, bigOne), pr.Q).Sign() != 0 {
		return fmt.Errorf("%w: q does not divide p-1", pubkey.ErrInvalidKey)
	}
	if pr.G.Cmp(bigOne) <= 0 || pr.G.Cmp(pr.P) >= 0 {
		return fmt.Errorf("%w: g out of range", pubkey.ErrInvalidKey)
	}
	if new(big.Int).Exp(pr.G, pr.Q, pr.P).Cmp(bigOne) != 0 {
		return fmt.Errorf("%w: g has wrong order", pubkey.ErrInvalidKey)
	}
	if pr.Seed != nil {
		if q, err := prime.QFromSeed(pr.Seed, 20, nil); err != nil || q.Cmp(pr.Q) != 0 {
			return fmt.Errorf("%w: q does not match seed", pubkey.ErrInvalidKey)
		}
	}
	return nil
}

// GenerateParams generates bits-bit p and 160-bit q from a random seed,
// then a generator g of the order-q subgroup. progress receives "p,q" and
// "h,g".
func GenerateParams(rng io.Reader, bits int, progress pubkey.ProgressFunc) (*Params, error) {
	if err := prime.Report(progress, "p,q"); err != nil {
		return nil, err
	}
	p, q, seed, counter, err := prime.GenerateDSAParams(bits, prime.DefaultRounds, rng, progress)
	if err != nil {
		return nil, err
	}
	if err := prime.Report(progress, "h,g"); err != nil {
		return nil, err
	}
	e := new(big.Int).Div(new(big.Int).Sub(p, bigOne), q)
	pm1 := new(big.Int).Sub(p, bigOne)
	for {
		h, err := prime.RandomRange(rng, bigTwo, pm1)
		if err != nil {
			return nil, err
		}
		g := new(big.Int).Exp(h, e, p)
		if g.Cmp(bigOne) > 0 {
			return &Params{P: p, Q: q, G: g, Seed: seed, Counter: counter}, nil
		}
	}
}

// PublicKey is a DSA public key.
type PublicKey struct {
	Params
	Y *big.Int
}

// KeyID returns the low 64 bits of y.
func (pub *PublicKey) KeyID() uint64 {
	return new(big.Int).And(pub.Y, new(big.Int).SetUint64(^uint64(0))).Uint64()
}

// Signature is an (r, s) pair.
type Signature struct {
	R, S *big.Int
}

// Verify reports whether sig is a valid signature of m. r and s must lie
// in (0, q).
func (pub *PublicKey) Verify(m *big.Int, sig *Signature) bool {
	if m.Sign() < 0 || sig == nil || sig.R == nil || sig.S == nil {
		return false
	}
	if sig.R.Sign() <= 0 || sig.R.Cmp(pub.Q) >= 0 || sig.S.Sign() <= 0 || sig.S.Cmp(pub.Q) >= 0 {
		return false
	}
	w, err := bignum.ModInverse(sig.S, pub.Q)
	if err != nil {
		return false
	}
	u1 := new(big.Int).Mul(m, w)
	u1.Mod(u1, pub.Q)
	u2 := new(big.Int).Mul(sig.R, w)
	u2.Mod(u2, pub.Q)
	v1 := new(big.Int).Exp(pub.G, u1, pub.P)
	v2 := new(big.Int).Exp(pub.Y, u2, pub.P)
	v := v1.Mul(v1, v2)
	v.Mod(v, pub.P)
	v.Mod(v, pub.Q)
	return v.Cmp(sig.R) == 0
}

// VerifyBytes is Verify on a big-endian message.
func (pub *PublicKey) VerifyBytes(m []byte, sig *Signature) bool {
	return pub.Verify(bignum.FromBytesBE(m), sig)
}

// PrivateKey is a DSA private key with a lockable x.
type PrivateKey struct {
	PublicKey
	secret *pubkey.Secret
}

// NewPrivateKey assembles a private key from its parts.
func NewPrivateKey(params Params, y, x *big.Int) *PrivateKey {
	return &PrivateKey{PublicKey: PublicKey{Params: params, Y: y}, secret: pubkey.NewSecret(x)}
}

// NewLockedPrivateKey wraps an enciphered x.
func NewLockedPrivateKey(pub PublicKey, sealed *pubkey.Sealed) *PrivateKey {
	return &PrivateKey{PublicKey: pub, secret: pubkey.NewLockedSecret(sealed, 1)}
}

// GenerateKey draws x in (0, q) and computes y = g^x mod p. progress
// receives "x,y".
func GenerateKey(rng io.Reader, params *Params, progress pubkey.ProgressFunc) (*PrivateKey, error) {
	if err := prime.Report(progress, "x,y"); err != nil {
		return nil, err
	}
	x, err := prime.RandomRange(rng, bigOne, params.Q)
	if err != nil {
		return nil, err
	}
	y, err := bignum.PowModSecret(params.G, x, params.P)
	if err != nil {
		return nil, err
	}
	return NewPrivateKey(*params, y, x), nil
}

// Generate produces fresh parameters and a key in one step.
func Generate(rng io.Reader, bits int, progress pubkey.ProgressFunc) (_ *PrivateKey, err error) {
	defer func(t time.Time) { metrics.Observe(metrics.OpKeyGen, "DSA", t, err) }(time.Now())
	params, err := GenerateParams(rng, bits, progress)
	if err != nil {
		return nil, err
	}
	return GenerateKey(rng, params, progress)
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

// X returns the secret exponent.
func (k *PrivateKey) X() (*big.Int, error) {
	vals, err := k.secret.Values()
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, pubkey.ErrNotPrivate
	}
	return vals[0], nil
}

// Validate checks the parameters, 0 < x < q and y = g^x mod p.
func (k *PrivateKey) Validate() error {
	if err := k.Params.Validate(); err != nil {
		return err
	}
	x, err := k.X()
	if err != nil {
		return err
	}
	if x.Sign() <= 0 || x.Cmp(k.Q) >= 0 {
		return fmt.Errorf("%w: x out of range", pubkey.ErrInvalidKey)
	}
	if new(big.Int).Exp(k.G, x, k.P).Cmp(k.Y) != 0 {
		return fmt.Errorf("%w: y != g^x", pubkey.ErrInvalidKey)
	}
	return nil
}

// Sign signs m with the nonce k, which must satisfy 2 <= k < q:
// r = (g^k mod p) mod q, s = k^-1 (m + x*r) mod q. A nonce that yields
// r = 0 or s = 0 is rejected with pubkey.ErrBadNonce.
func (k *PrivateKey) Sign(m, nonce *big.Int) (*Signature, error) {
	if m.Sign() < 0 {
		return nil, pubkey.ErrBadDomain
	}
	if err := pubkey.CheckNonce(nonce, k.Q); err != nil {
		return nil, err
	}
	x, err := k.X()
	if err != nil {
		return nil, err
	}
	r, err := bignum.PowModSecret(k.G, nonce, k.P)
	if err != nil {
		return nil, err
	}
	r.Mod(r, k.Q)
	kinv, err := bignum.ModInverse(nonce, k.Q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pubkey.ErrBadNonce, err)
	}
	defer bignum.Zeroize(kinv)
	s := new(big.Int).Mul(x, r)
	s.Add(s, m)
	s.Mul(s, kinv)
	s.Mod(s, k.Q)
	if r.Sign() == 0 || s.Sign() == 0 {
		return nil, pubkey.ErrBadNonce
	}
	return &Signature{R: r, S: s}, nil
}

// SignBytes is Sign on a big-endian message.
func (k *PrivateKey) SignBytes(m []byte, nonce *big.Int) (*Signature, error) {
	return k.Sign(bignum.FromBytesBE(m), nonce)
}

// SignRandom signs m with a fresh nonce drawn from rng.
func (k *PrivateKey) SignRandom(m *big.Int, rng io.Reader) (*Signature, error) {
	for {
		nonce, err := pubkey.RandomNonce(rng, k.Q)
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
