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

// Package qnew implements the qNEW signature variant over DSA parameters
// and keys:
//
//	r = (g^k mod p) mod q
//	s = (k - r*m*x) mod q
//
// verified by checking (g^s * y^(m*r) mod p) mod q == r. Messages are
// limited to 161 bits, the width of a SHA-1 digest plus one bit.
package qnew

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/jeremyhahn/go-pgpkit/pkg/bignum"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/dsa"
)

// MaxMessageBits bounds the message: 0 <= m < 2^161.
const MaxMessageBits = 161

var messageLimit = new(big.Int).Lsh(big.NewInt(1), MaxMessageBits)

type (
	// Params are DSA domain parameters.
	Params = dsa.Params
	// PublicKey is a DSA public key.
	PublicKey = dsa.PublicKey
	// PrivateKey is a DSA private key.
	PrivateKey = dsa.PrivateKey
	// Signature is an (r, s) pair.
	Signature = dsa.Signature
)

// Generate produces parameters and a key exactly as dsa.Generate does.
func Generate(rng io.Reader, bits int, progress pubkey.ProgressFunc) (*PrivateKey, error) {
	return dsa.Generate(rng, bits, progress)
}

func checkMessage(m *big.Int) error {
	if m.Sign() < 0 || m.Cmp(messageLimit) >= 0 {
		return fmt.Errorf("%w: message must be below 2^%d", pubkey.ErrBadDomain, MaxMessageBits)
	}
	return nil
}

// Sign signs m with nonce k, 2 <= k < q.
func Sign(key *PrivateKey, m, k *big.Int) (*Signature, error) {
	if err := checkMessage(m); err != nil {
		return nil, err
	}
	if err := pubkey.CheckNonce(k, key.Q); err != nil {
		return nil, err
	}
	x, err := key.X()
	if err != nil {
		return nil, err
	}
	r, err := bignum.PowModSecret(key.G, k, key.P)
	if err != nil {
		return nil, err
	}
	r.Mod(r, key.Q)
	if r.Sign() == 0 {
		return nil, pubkey.ErrBadNonce
	}
	t := new(big.Int).Mul(r, m)
	t.Mul(t, x)
	s := new(big.Int).Sub(k, t)
	s.Mod(s, key.Q)
	bignum.Zeroize(t)
	return &Signature{R: r, S: s}, nil
}

// SignRandom signs m with a fresh nonce drawn from rng.
func SignRandom(key *PrivateKey, m *big.Int, rng io.Reader) (*Signature, error) {
	for {
		k, err := pubkey.RandomNonce(rng, key.Q)
		if err != nil {
			return nil, err
		}
		sig, err := Sign(key, m, k)
		bignum.Zeroize(k)
		if errors.Is(err, pubkey.ErrBadNonce) {
			continue
		}
		return sig, err
	}
}

// Verify reports whether sig is a qNEW signature of m under pub. r must lie
// in (0, q) and s in [0, q).
func Verify(pub *PublicKey, m *big.Int, sig *Signature) bool {
	if checkMessage(m) != nil || sig == nil || sig.R == nil || sig.S == nil {
		return false
	}
	if sig.R.Sign() <= 0 || sig.R.Cmp(pub.Q) >= 0 || sig.S.Sign() < 0 || sig.S.Cmp(pub.Q) >= 0 {
		return false
	}
	v1 := new(big.Int).Exp(pub.G, sig.S, pub.P)
	e := new(big.Int).Mul(m, sig.R)
	v2 := new(big.Int).Exp(pub.Y, e, pub.P)
	v := v1.Mul(v1, v2)
	v.Mod(v, pub.P)
	v.Mod(v, pub.Q)
	return v.Cmp(sig.R) == 0
}
