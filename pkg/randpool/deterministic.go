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

package randpool

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
)

type deterministic struct {
	seed    []byte
	counter uint64
	buf     []byte
}

// NewDeterministic returns a reproducible byte stream: SHA-256 of
// seed||counter for counter = 0, 1, 2, ... It is for tests and known-answer
// runs only; its output is fully determined by seed.
func NewDeterministic(seed string) io.Reader {
	return &deterministic{seed: []byte(seed)}
}

func (d *deterministic) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(d.buf) == 0 {
			var ctr [8]byte
			binary.BigEndian.PutUint64(ctr[:], d.counter)
			d.counter++
			h := sha256.New()
			h.Write(d.seed)
			h.Write(ctr[:])
			d.buf = h.Sum(nil)
		}
		c := copy(p[n:], d.buf)
		d.buf = d.buf[c:]
		n += c
	}
	return n, nil
}
