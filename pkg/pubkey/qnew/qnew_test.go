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

package qnew

import (
	"crypto/rand"
	"crypto/sha1"
	"math/big"
	"testing"

	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/dsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *PrivateKey {
	t.Helper()
	hex := func(s string) *big.Int {
		v, ok := new(big.Int).SetString(s, 16)
		require.True(t, ok)
		return v
	}
	params := dsa.Params{
		P: hex("8df2a494492276aa3d25759bb06869cbeac0d83afb8d0cf7cbb8324f0d7882e5d0762fc5b7210eafc2e9adac32ab7aac49693dfbf83724c2ec0736ee31c80291"),
		Q: hex("c773218c737ec8ee993b4f2ded30f48edace915f"),
		G: hex("626d027839ea0a13413163a55b4cb500299d5522956cefcb3bff10f399ce2c2e71cb9de5fa24babf58e5b79521925c9cc42e9f6f464b088cc572af53e6d78802"),
	}
	return dsa.NewPrivateKey(params,
		hex("19131871d75b1612a819f29d78d1b0d7346f7aa77bb62a859bfd6c5675da9d212d3a36ef1672ef660b8c7c255cc0ec74858fba33f44c06699630a76b030ee333"),
		hex("2070b3223dba372fde1c0ffc7b2e3b498b260614"))
}

func TestSignVerify(t *testing.T) {
	k := testKey(t)
	digest := sha1.Sum([]byte("abc"))
	m := new(big.Int).SetBytes(digest[:])

	sig, err := Sign(k, m, big.NewInt(123456789))
	require.NoError(t, err)
	assert.True(t, Verify(k.Public(), m, sig))
	assert.False(t, Verify(k.Public(), new(big.Int).Add(m, big.NewInt(1)), sig))
	assert.False(t, Verify(k.Public(), m, &Signature{R: sig.S, S: sig.R}))

	sig2, err := SignRandom(k, m, rand.Reader)
	require.NoError(t, err)
	assert.True(t, Verify(k.Public(), m, sig2))

	// a DSA verifier does not accept qNEW signatures
	assert.False(t, k.Verify(m, sig))
}

func TestMessageDomain(t *testing.T) {
	k := testKey(t)
	limit := new(big.Int).Lsh(big.NewInt(1), MaxMessageBits)
	tests := []struct {
		name string
		m    *big.Int
		ok   bool
	}{
		{"zero", big.NewInt(0), true},
		{"largest", new(big.Int).Sub(limit, big.NewInt(1)), true},
		{"limit", limit, false},
		{"negative", big.NewInt(-1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := Sign(k, tt.m, big.NewInt(99))
			if !tt.ok {
				assert.ErrorIs(t, err, pubkey.ErrBadDomain)
				return
			}
			require.NoError(t, err)
			assert.True(t, Verify(k.Public(), tt.m, sig))
		})
	}
}

func TestNonceRange(t *testing.T) {
	k := testKey(t)
	_, err := Sign(k, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, pubkey.ErrBadNonce)
	_, err = Sign(k, big.NewInt(1), k.Q)
	assert.ErrorIs(t, err, pubkey.ErrBadNonce)
}

func TestGenerated(t *testing.T) {
	k, err := Generate(rand.Reader, 512, nil)
	require.NoError(t, err)
	m := big.NewInt(424242)
	sig, err := SignRandom(k, m, rand.Reader)
	require.NoError(t, err)
	assert.True(t, Verify(k.Public(), m, sig))
}

func TestLockedKeyCannotSign(t *testing.T) {
	k := testKey(t)
	require.NoError(t, k.Lock([]byte("pw"), rand.Reader))
	_, err := Sign(k, big.NewInt(1), big.NewInt(5))
	assert.ErrorIs(t, err, pubkey.ErrLocked)
}
