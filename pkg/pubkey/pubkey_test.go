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

package pubkey

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/jeremyhahn/go-pgpkit/pkg/randpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	assert.Equal(t, uint16(0), Checksum())
	assert.Equal(t, uint16(0), Checksum(big.NewInt(0)))
	assert.Equal(t, uint16(0x01+0x02), Checksum(big.NewInt(0x0102)))
	assert.Equal(t, uint16(0xff*2+0x7f), Checksum(big.NewInt(0xff), big.NewInt(0x7fff)))

	// wraps mod 65536
	big1 := new(big.Int).SetBytes(make257(0xff))
	assert.Equal(t, uint16((257*0xff)%65536), Checksum(big1))
}

func make257(b byte) []byte {
	out := make([]byte, 257)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "GENERATED", StateGenerated.String())
	assert.Equal(t, "LOCKED", StateLocked.String())
	assert.Equal(t, "UNLOCKED", StateUnlocked.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
	assert.Equal(t, "RSA", AlgRSA.String())
	assert.Equal(t, "DSA", AlgDSA.String())
}

func TestSecretLifecycle(t *testing.T) {
	values := []*big.Int{big.NewInt(0x1234567), big.NewInt(0), big.NewInt(0xabcdef0123)}
	want := make([]*big.Int, len(values))
	for i, v := range values {
		want[i] = new(big.Int).Set(v)
	}
	s := NewSecret(values...)
	assert.Equal(t, StateGenerated, s.State())
	assert.Equal(t, 3, s.Count())
	assert.Nil(t, s.Sealed())
	assert.ErrorIs(t, s.Unlock([]byte("pw")), ErrNotLocked)
	assert.ErrorIs(t, s.Relock(), ErrNotLocked)

	rng := randpool.NewDeterministic("secret")
	require.NoError(t, s.Lock([]byte("pw"), rng))
	assert.Equal(t, StateLocked, s.State())
	_, err := s.Values()
	assert.ErrorIs(t, err, ErrLocked)

	// plaintext is zeroized in place
	for _, v := range values {
		assert.Equal(t, 0, v.Sign())
	}

	sealed := s.Sealed()
	require.NotNil(t, sealed)
	// bit counts stay in the clear
	assert.Equal(t, []byte{0x00, 0x19}, sealed.Body[:2])

	require.NoError(t, s.Unlock([]byte("pw")))
	got, err := s.Values()
	require.NoError(t, err)
	for i := range want {
		assert.Equal(t, 0, want[i].Cmp(got[i]))
	}
}

func TestLockedClone(t *testing.T) {
	_, err := NewSecret(big.NewInt(7)).LockedClone()
	assert.ErrorIs(t, err, ErrNotLocked)

	s := NewSecret(big.NewInt(0x55aa55), big.NewInt(0x1234))
	require.NoError(t, s.Lock([]byte("pw"), rand.Reader))

	c, err := s.LockedClone()
	require.NoError(t, err)
	assert.Equal(t, StateLocked, c.State())
	assert.Equal(t, 2, c.Count())
	require.NoError(t, c.Unlock([]byte("pw")))
	assert.Equal(t, StateLocked, s.State())

	c.Sealed().Body[0] ^= 0xFF
	assert.NotEqual(t, c.Sealed().Body[0], s.Sealed().Body[0])

	other, err := s.LockedClone()
	require.NoError(t, err)
	assert.ErrorIs(t, other.Unlock([]byte("wrong")), ErrBadPassphrase)
}

func TestSealedRejectsTruncation(t *testing.T) {
	s := NewSecret(big.NewInt(0x123456789))
	require.NoError(t, s.Lock([]byte("pw"), rand.Reader))

	short := s.Sealed().Clone()
	short.Body = short.Body[:len(short.Body)-1]
	assert.Error(t, NewLockedSecret(short, 1).Unlock([]byte("pw")))

	long := s.Sealed().Clone()
	long.Body = append(long.Body, 0)
	assert.Error(t, NewLockedSecret(long, 1).Unlock([]byte("pw")))
}

func TestLockWithOtherCiphers(t *testing.T) {
	for _, name := range []string{provider.CAST5, provider.AES128, provider.TripleDES} {
		t.Run(name, func(t *testing.T) {
			mod, err := provider.LookupBlock(name)
			require.NoError(t, err)
			s := NewSecret(big.NewInt(987654321))
			err = s.LockWith(mod.ID, []byte("pw"), rand.Reader)
			if mod.KeySize > 16 {
				assert.ErrorIs(t, err, provider.ErrKeySize)
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.Sealed().IV, mod.BlockSize)
			require.NoError(t, s.Unlock([]byte("pw")))
			got, err := s.Values()
			require.NoError(t, err)
			assert.Equal(t, int64(987654321), got[0].Int64())
		})
	}

	s := NewSecret(big.NewInt(1))
	assert.ErrorIs(t, s.LockWith(99, []byte("pw"), rand.Reader), provider.ErrUnknownCipher)
}

func TestNonce(t *testing.T) {
	q := big.NewInt(1000)
	for i := 0; i < 50; i++ {
		k, err := RandomNonce(rand.Reader, q)
		require.NoError(t, err)
		assert.NoError(t, CheckNonce(k, q))
	}
	assert.ErrorIs(t, CheckNonce(big.NewInt(1), q), ErrBadNonce)
	assert.ErrorIs(t, CheckNonce(q, q), ErrBadNonce)
}
