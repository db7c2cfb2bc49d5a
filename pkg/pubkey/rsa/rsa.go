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

// Package rsa implements textbook RSA over math/big with an optional CRT
// private path, multiplicative blinding, and the legacy PGP 2.x padding
// formats for session keys and message digests.
//
// Every operation has an integer entry point (Encrypt, Sign, ...) and a
// byte-string entry point (EncryptBytes, SignBytes, ...). Byte strings are
// big-endian integers.
package rsa

import (
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/bignum"
	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
	"github.com/jeremyhahn/go-pgpkit/pkg/prime"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
)

// DefaultExponent is the public exponent GenerateKey uses.
const DefaultExponent = 65537

// MinBits is the smallest modulus GenerateKey accepts.
const MinBits = 256

const maxGenerateAttempts = 64

var bigOne = big.NewInt(1)

// PublicKey is an RSA public key.
type PublicKey struct {
	N *big.Int
	E *big.Int
}

// KeyID returns the low 64 bits of the modulus.
func (pub *PublicKey) KeyID() uint64 {
	return new(big.Int).And(pub.N, maxUint64).Uint64()
}

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// Size returns the modulus length in bytes.
func (pub *PublicKey) Size() int {
	return bignum.ByteLen(pub.N)
}

// Bits returns the modulus length in bits.
func (pub *PublicKey) Bits() int {
	return pub.N.BitLen()
}

// Equal reports whether pub and other have the same modulus and exponent.
func (pub *PublicKey) Equal(other *PublicKey) bool {
	return other != nil && pub.N.Cmp(other.N) == 0 && pub.E.Cmp(other.E) == 0
}

func (pub *PublicKey) checkInput(m *big.Int) error {
	if m.Sign() < 0 || m.Cmp(pub.N) >= 0 {
		return pubkey.ErrBadDomain
	}
	return nil
}

// Encrypt returns m^e mod n for 0 <= m < n.
func (pub *PublicKey) Encrypt(m *big.Int) (*big.Int, error) {
	if err := pub.checkInput(m); err != nil {
		return nil, err
	}
	return bignum.PowMod(m, pub.E, pub.N)
}

// EncryptBytes is Encrypt on a big-endian byte string. The result is
// left-padded to the modulus length.
func (pub *PublicKey) EncryptBytes(m []byte) ([]byte, error) {
	c, err := pub.Encrypt(bignum.FromBytesBE(m))
	if err != nil {
		return nil, err
	}
	return bignum.ToBytesBE(c, pub.Size())
}

// Verify reports whether sig^e mod n equals m.
func (pub *PublicKey) Verify(m, sig *big.Int) bool {
	if pub.checkInput(m) != nil || pub.checkInput(sig) != nil {
		return false
	}
	got, err := bignum.PowMod(sig, pub.E, pub.N)
	if err != nil {
		return false
	}
	return constantTimeEqual(got, m, pub.Size())
}

// VerifyBytes is Verify on big-endian byte strings.
func (pub *PublicKey) VerifyBytes(m, sig []byte) bool {
	return pub.Verify(bignum.FromBytesBE(m), bignum.FromBytesBE(sig))
}

// Blind returns m * r^e mod n. r must be invertible mod n.
func (pub *PublicKey) Blind(m, r *big.Int) (*big.Int, error) {
	if err := pub.checkInput(m); err != nil {
		return nil, err
	}
	if bignum.GCD(r, pub.N).Cmp(bigOne) != 0 {
		return nil, pubkey.ErrBadDomain
	}
	re, err := bignum.PowMod(r, pub.E, pub.N)
	if err != nil {
		return nil, err
	}
	return re.Mod(re.Mul(re, m), pub.N), nil
}

// Unblind returns s * r^-1 mod n.
func (pub *PublicKey) Unblind(s, r *big.Int) (*big.Int, error) {
	inv, err := bignum.ModInverse(r, pub.N)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pubkey.ErrBadDomain, err)
	}
	return inv.Mod(inv.Mul(inv, s), pub.N), nil
}

// BlindingFactor draws r in [2, n) with gcd(r, n) = 1.
func (pub *PublicKey) BlindingFactor(rng io.Reader) (*big.Int, error) {
	for {
		r, err := prime.RandomRange(rng, big.NewInt(2), pub.N)
		if err != nil {
			return nil, err
		}
		if bignum.GCD(r, pub.N).Cmp(bigOne) == 0 {
			return r, nil
		}
	}
}

// PrivateKey is an RSA private key: an immutable public key plus lockable
// secret integers d, p, q and u = p^-1 mod q. A key built without p, q and
// u only supports the direct private path.
type PrivateKey struct {
	PublicKey
	secret *pubkey.Secret
}

// NewPrivateKey assembles a private key. p, q and u may all be nil.
func NewPrivateKey(n, e, d, p, q, u *big.Int) (*PrivateKey, error) {
	if n == nil || e == nil || d == nil {
		return nil, pubkey.ErrInvalidKey
	}
	k := &PrivateKey{PublicKey: PublicKey{N: n, E: e}}
	switch {
	case p == nil && q == nil && u == nil:
		k.secret = pubkey.NewSecret(d)
	case p != nil && q != nil && u != nil:
		k.secret = pubkey.NewSecret(d, p, q, u)
	default:
		return nil, fmt.Errorf("%w: p, q and u must be given together", pubkey.ErrInvalidKey)
	}
	return k, nil
}

// NewLockedPrivateKey wraps the enciphered d, p, q and u of a locked key.
func NewLockedPrivateKey(pub PublicKey, sealed *pubkey.Sealed) *PrivateKey {
	return &PrivateKey{PublicKey: pub, secret: pubkey.NewLockedSecret(sealed, 4)}
}

// Public returns the public half of k.
func (k *PrivateKey) Public() *PublicKey {
	return &PublicKey{N: k.N, E: k.E}
}

// Secret returns the lockable secret container.
func (k *PrivateKey) Secret() *pubkey.Secret { return k.secret }

// State returns the lock state.
func (k *PrivateKey) State() pubkey.State { return k.secret.State() }

// Lock enciphers the secret integers under passphrase.
func (k *PrivateKey) Lock(passphrase []byte, rng io.Reader) error {
	start := time.Now()
	err := k.secret.Lock(passphrase, rng)
	metrics.Observe(metrics.OpLock, "RSA", start, err)
	return err
}

// Unlock deciphers the secret integers. A wrong passphrase returns
// pubkey.ErrBadPassphrase.
func (k *PrivateKey) Unlock(passphrase []byte) error {
	start := time.Now()
	err := k.secret.Unlock(passphrase)
	metrics.Observe(metrics.OpUnlock, "RSA", start, err)
	return err
}

// Zeroize overwrites the plaintext secret integers.
func (k *PrivateKey) Zeroize() { k.secret.Zeroize() }

// LockedClone returns a LOCKED copy of k that shares no secret state with
// it. k must have been locked at least once.
func (k *PrivateKey) LockedClone() (*PrivateKey, error) {
	s, err := k.secret.LockedClone()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PublicKey: PublicKey{N: k.N, E: k.E}, secret: s}, nil
}

// Parts returns d, p, q and u; p, q and u are nil for a key without CRT
// parameters.
func (k *PrivateKey) Parts() (d, p, q, u *big.Int, err error) {
	vals, err := k.secret.Values()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(vals) == 0 {
		return nil, nil, nil, nil, pubkey.ErrNotPrivate
	}
	if len(vals) == 1 {
		return vals[0], nil, nil, nil, nil
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

// HasCRT reports whether p, q and u are available.
func (k *PrivateKey) HasCRT() bool {
	_, p, _, _, err := k.Parts()
	return err == nil && p != nil
}

// Decrypt returns c^d mod n, using the CRT path when p, q and u are
// available.
func (k *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	if k.HasCRT() {
		return k.DecryptCRT(c)
	}
	return k.DecryptDirect(c)
}

// DecryptDirect returns c^d mod n without CRT.
func (k *PrivateKey) DecryptDirect(c *big.Int) (*big.Int, error) {
	if err := k.checkInput(c); err != nil {
		return nil, err
	}
	d, _, _, _, err := k.Parts()
	if err != nil {
		return nil, err
	}
	return bignum.PowModSecret(c, d, k.N)
}

// DecryptCRT returns c^d mod n through the Chinese remainder theorem:
// m1 = c^(d mod p-1) mod p, m2 = c^(d mod q-1) mod q,
// h = u*(m2 - m1) mod q, m = m1 + h*p.
func (k *PrivateKey) DecryptCRT(c *big.Int) (*big.Int, error) {
	if err := k.checkInput(c); err != nil {
		return nil, err
	}
	d, p, q, u, err := k.Parts()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no CRT parameters", pubkey.ErrNotPrivate)
	}
	dp := new(big.Int).Mod(d, new(big.Int).Sub(p, bigOne))
	dq := new(big.Int).Mod(d, new(big.Int).Sub(q, bigOne))
	defer bignum.Zeroize(dp)
	defer bignum.Zeroize(dq)

	m1, err := bignum.PowModSecret(c, dp, p)
	if err != nil {
		return nil, err
	}
	m2, err := bignum.PowModSecret(c, dq, q)
	if err != nil {
		return nil, err
	}
	h := new(big.Int).Sub(m2, m1)
	h.Mul(h, u)
	h.Mod(h, q)
	h.Mul(h, p)
	h.Add(h, m1)
	bignum.Zeroize(m1)
	bignum.Zeroize(m2)
	return h, nil
}

// DecryptBytes is Decrypt on a big-endian byte string. The result is
// left-padded to the modulus length.
func (k *PrivateKey) DecryptBytes(c []byte) ([]byte, error) {
	m, err := k.Decrypt(bignum.FromBytesBE(c))
	if err != nil {
		return nil, err
	}
	return bignum.ToBytesBE(m, k.Size())
}

// Sign returns m^d mod n.
func (k *PrivateKey) Sign(m *big.Int) (*big.Int, error) {
	return k.Decrypt(m)
}

// SignBytes is Sign on a big-endian byte string.
func (k *PrivateKey) SignBytes(m []byte) ([]byte, error) {
	return k.DecryptBytes(m)
}

// SignBlinded signs m behind a fresh blinding factor drawn from rng. The
// result equals Sign(m).
func (k *PrivateKey) SignBlinded(m *big.Int, rng io.Reader) (*big.Int, error) {
	r, err := k.BlindingFactor(rng)
	if err != nil {
		return nil, err
	}
	defer bignum.Zeroize(r)
	blinded, err := k.Blind(m, r)
	if err != nil {
		return nil, err
	}
	s, err := k.Sign(blinded)
	if err != nil {
		return nil, err
	}
	return k.Unblind(s, r)
}

// Validate checks n = p*q, p < q, both prime, e*d = 1 mod (p-1)(q-1) and
// u*p = 1 mod q.
func (k *PrivateKey) Validate() error {
	d, p, q, u, err := k.Parts()
	if err != nil {
		return err
	}
	if k.E.Sign() <= 0 || k.N.Sign() <= 0 {
		return pubkey.ErrInvalidKey
	}
	if p == nil {
		// Without the factors only the exponent pair can be checked.
		m := big.NewInt(2)
		s, err := bignum.PowMod(m, d, k.N)
		if err != nil {
			return err
		}
		if !k.Verify(m, s) {
			return fmt.Errorf("%w: d does not invert e", pubkey.ErrInvalidKey)
		}
		return nil
	}
	if new(big.Int).Mul(p, q).Cmp(k.N) != 0 {
		return fmt.Errorf("%w: n != p*q", pubkey.ErrInvalidKey)
	}
	if p.Cmp(q) >= 0 {
		return fmt.Errorf("%w: p >= q", pubkey.ErrInvalidKey)
	}
	if !prime.IsPrime(p, 20, nil) || !prime.IsPrime(q, 20, nil) {
		return fmt.Errorf("%w: factor not prime", pubkey.ErrInvalidKey)
	}
	phi := new(big.Int).Mul(new(big.Int).Sub(p, bigOne), new(big.Int).Sub(q, bigOne))
	if new(big.Int).Mod(new(big.Int).Mul(k.E, d), phi).Cmp(bigOne) != 0 {
		return fmt.Errorf("%w: e*d != 1 mod phi", pubkey.ErrInvalidKey)
	}
	if new(big.Int).Mod(new(big.Int).Mul(u, p), q).Cmp(bigOne) != 0 {
		return fmt.Errorf("%w: u != p^-1 mod q", pubkey.ErrInvalidKey)
	}
	return nil
}

// GenerateKey generates a key with a modulus of exactly bits bits and
// e = 65537. progress receives "p,q", "u" and "d" as each part is computed.
func GenerateKey(rng io.Reader, bits int, progress pubkey.ProgressFunc) (*PrivateKey, error) {
	return GenerateKeyWithExponent(rng, bits, DefaultExponent, progress)
}

// GenerateKeyWithExponent is GenerateKey with an explicit odd public
// exponent e >= 3.
func GenerateKeyWithExponent(rng io.Reader, bits, e int, progress pubkey.ProgressFunc) (_ *PrivateKey, err error) {
	defer func(t time.Time) { metrics.Observe(metrics.OpKeyGen, "RSA", t, err) }(time.Now())

	if bits < MinBits {
		return nil, fmt.Errorf("%w: %d-bit modulus", pubkey.ErrBadDomain, bits)
	}
	if e < 3 || e%2 == 0 {
		return nil, fmt.Errorf("%w: public exponent %d", pubkey.ErrBadDomain, e)
	}
	E := big.NewInt(int64(e))
	half := bits / 2

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		if err := prime.Report(progress, "p,q"); err != nil {
			return nil, err
		}
		p, err := prime.Generate(bits-half, prime.DefaultRounds, rng, progress)
		if err != nil {
			return nil, err
		}
		q, err := prime.Generate(half, prime.DefaultRounds, rng, progress)
		if err != nil {
			return nil, err
		}
		switch p.Cmp(q) {
		case 0:
			continue
		case 1:
			p, q = q, p
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}
		phi := new(big.Int).Mul(new(big.Int).Sub(p, bigOne), new(big.Int).Sub(q, bigOne))
		if bignum.GCD(E, phi).Cmp(bigOne) != 0 {
			continue
		}

		if err := prime.Report(progress, "u"); err != nil {
			return nil, err
		}
		u, err := bignum.ModInverse(p, q)
		if err != nil {
			continue
		}
		if err := prime.Report(progress, "d"); err != nil {
			return nil, err
		}
		d, err := bignum.ModInverse(E, phi)
		bignum.Zeroize(phi)
		if err != nil {
			continue
		}
		return NewPrivateKey(n, E, d, p, q, u)
	}
	return nil, pubkey.ErrKeyGenFailure
}

// constantTimeEqual compares a and b as fixed-width byte strings.
func constantTimeEqual(a, b *big.Int, width int) bool {
	ab, err := bignum.ToBytesBE(a, width)
	if err != nil {
		return false
	}
	bb, err := bignum.ToBytesBE(b, width)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(ab, bb) == 1
}
