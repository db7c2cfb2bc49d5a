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

package provider

import (
	"encoding"
	"hash"
)

// Hash is a running digest. Digest does not disturb the state, so a hash
// can be read and then extended.
type Hash struct {
	module HashModule
	h      hash.Hash

	// log keeps the input for hashes whose state cannot be marshaled, so
	// that Copy can replay it.
	log       []byte
	marshaled bool
}

func newHash(m HashModule, initial []byte) *Hash {
	h := m.New()
	_, marshaled := h.(encoding.BinaryMarshaler)
	out := &Hash{module: m, h: h, marshaled: marshaled}
	if len(initial) > 0 {
		out.Update(initial)
	}
	return out
}

// Module returns the module the hash was opened from.
func (h *Hash) Module() HashModule { return h.module }

// Size returns the digest size in bytes.
func (h *Hash) Size() int { return h.module.Size }

// Update appends b to the hashed input.
func (h *Hash) Update(b []byte) {
	h.h.Write(b)
	if !h.marshaled {
		h.log = append(h.log, b...)
	}
}

// Write implements io.Writer.
func (h *Hash) Write(b []byte) (int, error) {
	h.Update(b)
	return len(b), nil
}

// Digest returns the digest of everything written so far.
func (h *Hash) Digest() []byte {
	return h.h.Sum(nil)
}

// Copy returns an independent hash with the same state.
func (h *Hash) Copy() *Hash {
	c := &Hash{module: h.module, h: h.module.New(), marshaled: h.marshaled}
	if h.marshaled {
		state, err := h.h.(encoding.BinaryMarshaler).MarshalBinary()
		if err == nil {
			if um, ok := c.h.(encoding.BinaryUnmarshaler); ok && um.UnmarshalBinary(state) == nil {
				return c
			}
		}
		// unreachable for the built-in hashes
		panic("provider: hash state copy failed for " + h.module.Name)
	}
	c.log = append([]byte(nil), h.log...)
	c.h.Write(c.log)
	return c
}

// Sum returns the digest of data under the named hash.
func Sum(name string, data []byte) ([]byte, error) {
	h, err := NewHash(name, data)
	if err != nil {
		return nil, err
	}
	return h.Digest(), nil
}
