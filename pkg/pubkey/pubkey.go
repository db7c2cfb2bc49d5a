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

// Package pubkey holds what the public-key algorithm packages share: the
// error taxonomy, OpenPGP algorithm numbers, nonce sampling, and Secret,
// the lockable container for a private key's secret integers.
//
// The algorithms themselves live in the rsa, dsa, elgamal and qnew
// subpackages. Randomness is always an explicit io.Reader argument; no
// function here or below reaches for a process-wide source.
package pubkey

import (
	"io"
	"math/big"

	"github.com/jeremyhahn/go-pgpkit/pkg/bignum"
	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
	"github.com/jeremyhahn/go-pgpkit/pkg/prime"
)

// Algorithm is an OpenPGP public-key algorithm number.
type Algorithm byte

const (
	AlgRSA        Algorithm = 1
	AlgRSAEncrypt Algorithm = 2
	AlgRSASign    Algorithm = 3
	AlgElGamal    Algorithm = 16
	AlgDSA        Algorithm = 17
)

// String returns the algorithm name.
func (a Algorithm) String() string {
	switch a {
	case AlgRSA, AlgRSAEncrypt, AlgRSASign:
		return "RSA"
	case AlgElGamal:
		return "ElGamal"
	case AlgDSA:
		return "DSA"
	default:
		return "unknown"
	}
}

var (
	// ErrBadDomain is returned for inputs outside an algorithm's range.
	ErrBadDomain = pgperr.New(pgperr.KindDomain, "pubkey: input out of range")

	// ErrBadNonce is returned for a signing nonce outside [2, q).
	ErrBadNonce = pgperr.New(pgperr.KindDomain, "pubkey: nonce out of range")

	// ErrNotPrivate is returned for a private operation on a public key.
	ErrNotPrivate = pgperr.New(pgperr.KindState, "pubkey: not a private key")

	// ErrLocked is returned for a private operation on a locked key, or
	// for locking a key that is already locked.
	ErrLocked = pgperr.New(pgperr.KindState, "pubkey: key is locked")

	// ErrNotLocked is returned when unlocking a key that is not locked.
	ErrNotLocked = pgperr.New(pgperr.KindState, "pubkey: key is not locked")

	// ErrPadding is returned when padding markers do not match.
	ErrPadding = pgperr.New(pgperr.KindCrypto, "pubkey: bad padding")

	// ErrBadSignature is returned when a signature does not verify.
	ErrBadSignature = pgperr.New(pgperr.KindCrypto, "pubkey: bad signature")

	// ErrBadPassphrase is returned when an unlocked key fails its checksum.
	ErrBadPassphrase = pgperr.New(pgperr.KindCrypto, "pubkey: bad passphrase")

	// ErrKeyGenFailure is returned when key generation gives up.
	ErrKeyGenFailure = pgperr.New(pgperr.KindCrypto, "pubkey: key generation failed")

	// ErrInvalidKey is returned by Validate for inconsistent key material.
	ErrInvalidKey = pgperr.New(pgperr.KindDomain, "pubkey: invalid key")
)

// ProgressFunc receives key generation stages. See prime.ProgressFunc.
type ProgressFunc = prime.ProgressFunc

// RandomNonce draws k uniformly from [2, q).
func RandomNonce(rng io.Reader, q *big.Int) (*big.Int, error) {
	return prime.RandomRange(rng, big.NewInt(2), q)
}

// CheckNonce returns ErrBadNonce unless 2 <= k < q.
func CheckNonce(k, q *big.Int) error {
	if !bignum.InRange(k, big.NewInt(2), q) {
		return ErrBadNonce
	}
	return nil
}
