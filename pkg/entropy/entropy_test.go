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

package entropy

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenModes(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		available bool
		wantErr   error
	}{
		{name: "software", cfg: &Config{Mode: ModeSoftware}, available: true},
		{name: "none", cfg: &Config{Mode: ModeNone}, available: false},
		{name: "auto nil", cfg: nil, available: true},
		{name: "unknown", cfg: &Config{Mode: "lava-lamp"}, wantErr: ErrUnknownMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Open(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer src.Close()
			assert.Equal(t, tt.available, src.Available())
			assert.NotEmpty(t, src.Name())
		})
	}
}

func TestNoneSource(t *testing.T) {
	n, err := None().Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDeviceSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed := bytes.Repeat([]byte{0xAB, 0xCD}, 32)
	require.NoError(t, afero.WriteFile(fs, "/dev/random-test", seed, 0o644))

	src, err := Open(&Config{Mode: ModeDevice, Device: "/dev/random-test", Fs: fs})
	require.NoError(t, err)
	assert.Equal(t, "device:/dev/random-test", src.Name())

	buf := make([]byte, 16)
	n, err := src.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, seed[:16], buf)

	require.NoError(t, src.Close())
	assert.False(t, src.Available())
	_, err = src.Read(buf)
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, src.Close())
}

func TestDeviceMissing(t *testing.T) {
	_, err := Open(&Config{Mode: ModeDevice, Device: "/nope", Fs: afero.NewMemMapFs()})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAutoFallsBackToSoftware(t *testing.T) {
	src, err := Open(&Config{Mode: ModeAuto, Device: "/nope", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	if tpm2Available() {
		t.Skip("tpm2 build may pick a TPM")
	}
	assert.Equal(t, string(ModeSoftware), src.Name())
	buf := make([]byte, 32)
	_, err = src.Read(buf)
	require.NoError(t, err)
}
