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

package pgperr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSample = New(KindFormat, "sample: bad header")

func TestKindOf(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		want  Kind
		local bool
	}{
		{"sentinel", errSample, KindFormat, true},
		{"wrapped sentinel", fmt.Errorf("%w: tag 63", errSample), KindFormat, true},
		{"wrap", Wrap(KindIO, "store: read", io.ErrUnexpectedEOF), KindIO, false},
		{"crypto", New(KindCrypto, "rsa: padding"), KindCrypto, true},
		{"capability", New(KindCapability, "provider: unknown cipher"), KindCapability, true},
		{"state", New(KindState, "pubkey: locked"), KindState, false},
		{"foreign", io.EOF, KindUnknown, false},
		{"nil", nil, KindUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.Equal(t, tt.local, IsLocal(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "sample: bad header", errSample.Error())

	err := Wrap(KindIO, "store: read", io.ErrUnexpectedEOF)
	assert.Equal(t, "store: read: unexpected EOF", err.Error())
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, errSample))
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{
		KindUnknown:    "unknown",
		KindDomain:     "domain",
		KindFormat:     "format",
		KindCrypto:     "crypto",
		KindState:      "state",
		KindCapability: "capability",
		KindCancelled:  "cancelled",
		KindIO:         "io",
		Kind(99):       "unknown",
	} {
		assert.Equal(t, want, k.String())
	}
}
