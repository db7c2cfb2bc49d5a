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

package memory

import (
	"testing"

	"github.com/jeremyhahn/go-pgpkit/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value []byte
	}{
		{name: "keyring", key: storage.KeyringPath("pubring"), value: []byte{0x99, 0x00, 0x01}},
		{name: "empty value", key: "empty", value: []byte{}},
		{name: "nested", key: "pool/a/b.seed", value: []byte("seed")},
	}
	s := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.Put(tt.key, tt.value, nil))
			got, err := s.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
			ok, err := s.Exists(tt.key)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestCopiesValues(t *testing.T) {
	s := New()
	v := []byte("abc")
	require.NoError(t, s.Put("k", v, nil))
	v[0] = 'X'
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	got[1] = 'Y'
	again, _ := s.Get("k")
	assert.Equal(t, []byte("abc"), again)
}

func TestDeleteListClose(t *testing.T) {
	s := New()
	require.NoError(t, s.Put(storage.KeyringPath("secring"), []byte{1}, nil))
	require.NoError(t, s.Put(storage.KeyringPath("pubring"), []byte{2}, nil))
	require.NoError(t, s.Put(storage.PoolPath("randseed"), []byte{3}, nil))

	names, err := storage.ListKeyrings(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"pubring", "secring"}, names)

	pools, err := storage.ListPools(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"randseed"}, pools)

	require.NoError(t, s.Delete(storage.KeyringPath("secring")))
	assert.ErrorIs(t, s.Delete(storage.KeyringPath("secring")), storage.ErrNotFound)
	_, err = s.Get("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.Put("../escape", nil, nil), storage.ErrInvalidKey)

	require.NoError(t, s.Close())
	_, err = s.Get(storage.KeyringPath("pubring"))
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, err = s.List("")
	assert.ErrorIs(t, err, storage.ErrClosed)
	require.NoError(t, s.Close())
}

func TestMode(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Put("pool/randseed.seed", []byte{1}, nil))
	require.NoError(t, s.Put("keyrings/pubring.pgp", []byte{2}, &storage.Options{Permissions: 0644}))

	mode, err := s.Mode("pool/randseed.seed")
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultOptions().Permissions, mode)

	mode, err = s.Mode("keyrings/pubring.pgp")
	require.NoError(t, err)
	assert.EqualValues(t, 0644, mode)

	_, err = s.Mode("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Close())
	_, err = s.Mode("pool/randseed.seed")
	assert.ErrorIs(t, err, storage.ErrClosed)
}
