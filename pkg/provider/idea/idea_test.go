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

package idea

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectors(t *testing.T) {
	tests := []struct {
		key, plain, cipher string
	}{
		{"00010002000300040005000600070008", "0000000100020003", "11fbed2b01986de5"},
		{"2bd6459f82c5b300952c49104881ff48", "ea024714ad5c4d84", "c8fb51d3516627a8"},
		{"000102030405060708090a0b0c0d0e0f", "0011223344556677", "f526ab9a62c0d258"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			key, _ := hex.DecodeString(tt.key)
			pt, _ := hex.DecodeString(tt.plain)
			want, _ := hex.DecodeString(tt.cipher)

			c, err := NewCipher(key)
			require.NoError(t, err)

			got := make([]byte, BlockSize)
			c.Encrypt(got, pt)
			assert.Equal(t, want, got)

			back := make([]byte, BlockSize)
			c.Decrypt(back, got)
			assert.Equal(t, pt, back)
		})
	}
}

func TestRoundTripRandom(t *testing.T) {
	key := make([]byte, KeySize)
	block := make([]byte, BlockSize)
	for i := 0; i < 64; i++ {
		_, _ = rand.Read(key)
		_, _ = rand.Read(block)
		c, err := NewCipher(key)
		require.NoError(t, err)
		out := make([]byte, BlockSize)
		c.Encrypt(out, block)
		c.Decrypt(out, out)
		assert.Equal(t, block, out)
	}
}

func TestKeySize(t *testing.T) {
	_, err := NewCipher(make([]byte, 8))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "8")
}

func TestMulInverse(t *testing.T) {
	for _, x := range []uint16{0, 1, 2, 3, 255, 0x8000, 0xFFFF} {
		assert.Equal(t, uint16(1), mul(x, mulInv(x)), "x=%d", x)
	}
}
