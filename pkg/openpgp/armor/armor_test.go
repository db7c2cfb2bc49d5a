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

package armor

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	out, err := Marshal(TypeMessage, nil, []byte("hello, world"))
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, "-----BEGIN PGP MESSAGE-----\n"))
	assert.Contains(t, s, "\naGVsbG8sIHdvcmxk\n")
	// CRC-24 of "hello, world" is 0x75fa29.
	assert.Contains(t, s, "\n=dfop\n")
	assert.Contains(t, s, "-----END PGP MESSAGE-----")
	assert.True(t, IsArmored(out))
}

func TestLineLength(t *testing.T) {
	out, err := Marshal(TypePublicKey, nil, bytes.Repeat([]byte{0xa5}, 200))
	require.NoError(t, err)
	for _, line := range strings.Split(string(out), "\n") {
		assert.LessOrEqual(t, len(line), 64, line)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		headers map[string]string
		data    []byte
	}{
		{"short", TypeSignature, nil, []byte{0x89, 0x00}},
		{"headers", TypePublicKey, map[string]string{"Comment": "pgpkit test"}, bytes.Repeat([]byte("key"), 100)},
		{"binary", TypeSecretKey, nil, func() []byte {
			b := make([]byte, 1000)
			for i := range b {
				b[i] = byte(i * 7)
			}
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Marshal(tt.typ, tt.headers, tt.data)
			require.NoError(t, err)

			// Leading text before the block is skipped.
			blk, err := Unmarshal(append([]byte("preamble\n\n"), out...))
			require.NoError(t, err)
			assert.Equal(t, tt.typ, blk.Type)
			assert.Equal(t, tt.data, blk.Body)
			for k, v := range tt.headers {
				assert.Equal(t, v, blk.Headers[k])
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Unmarshal([]byte("no armor here"))
	assert.ErrorIs(t, err, ErrNoArmor)
	assert.False(t, IsArmored([]byte("no armor here")))

	out, err := Marshal(TypeMessage, nil, []byte("hello, world"))
	require.NoError(t, err)
	bad := bytes.Replace(out, []byte("=dfop"), []byte("=AAAA"), 1)
	_, err = Unmarshal(bad)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestTypeFor(t *testing.T) {
	uid, err := packet.Marshal(&packet.UserID{ID: "alice"})
	require.NoError(t, err)
	trust, err := packet.Marshal(&packet.Trust{Flags: 1})
	require.NoError(t, err)
	lit, err := packet.Marshal(packet.NewLiteral([]byte("x"), time.Unix(0, 0)))
	require.NoError(t, err)

	assert.Equal(t, TypePublicKey, TypeFor([]byte{0x99, 0x00, 0x00}))
	assert.Equal(t, TypeSecretKey, TypeFor([]byte{0x95, 0x00, 0x00}))
	assert.Equal(t, TypeSignature, TypeFor([]byte{0x89, 0x00, 0x00}))
	assert.Equal(t, TypeMessage, TypeFor(lit))
	assert.Equal(t, TypeMessage, TypeFor(uid))
	assert.Equal(t, TypeMessage, TypeFor(trust))
	assert.Equal(t, TypeMessage, TypeFor(nil))
}
