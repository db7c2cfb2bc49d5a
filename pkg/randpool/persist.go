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
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/jeremyhahn/go-pgpkit/pkg/storage"
)

const stateVersion = 1

// state is the persisted form of a pool.
type state struct {
	Version int    `cbor:"1,keyasint"`
	Size    int    `cbor:"2,keyasint"`
	Hash    string `cbor:"3,keyasint"`
	Pool    []byte `cbor:"4,keyasint"`
	AddPos  int    `cbor:"5,keyasint"`
	GetPos  int    `cbor:"6,keyasint"`
	Counter uint32 `cbor:"7,keyasint"`
	Entropy int    `cbor:"8,keyasint"`
}

// MarshalBinary encodes the pool state, cursors and counters included.
func (p *Pool) MarshalBinary() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cbor.Marshal(state{
		Version: stateVersion,
		Size:    p.size,
		Hash:    p.hash.Name,
		Pool:    p.pool,
		AddPos:  p.addPos,
		GetPos:  p.getPos,
		Counter: p.counter,
		Entropy: p.entropy,
	})
}

// UnmarshalBinary restores state written by MarshalBinary into p and stirs.
// The state must come from a pool of the same size and hash.
func (p *Pool) UnmarshalBinary(data []byte) error {
	var st state
	if err := cbor.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%w: %w", ErrStateVersion, err)
	}
	if st.Version != stateVersion {
		return fmt.Errorf("%w: %d", ErrStateVersion, st.Version)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if st.Size != p.size || len(st.Pool) != p.size {
		return fmt.Errorf("%w: stored %d, configured %d", ErrPoolSize, st.Size, p.size)
	}
	if st.Hash != p.hash.Name {
		return fmt.Errorf("%w: stored hash %s, configured %s", ErrStateVersion, st.Hash, p.hash.Name)
	}
	if st.AddPos < 0 || st.AddPos >= p.size || st.GetPos < 0 || st.GetPos >= p.size {
		return fmt.Errorf("%w: cursor out of range", ErrStateVersion)
	}
	copy(p.pool, st.Pool)
	zero(st.Pool)
	p.addPos = st.AddPos
	p.getPos = st.GetPos
	p.counter = st.Counter
	p.entropy = 0
	p.updateEntropy(st.Entropy)
	p.stir()
	return nil
}

// Save persists the pool under key.
func (p *Pool) Save(b storage.Backend, key string) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	defer zero(data)
	return b.Put(key, data, storage.DefaultOptions())
}

// Open loads the pool stored under key, or creates a fresh one when no
// state has been saved yet. A loaded pool is stirred and then seeded from
// opts.Source before use.
func Open(b storage.Backend, key string, opts *Options) (*Pool, error) {
	data, err := b.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return New(opts)
	}
	if err != nil {
		return nil, err
	}
	defer zero(data)

	p, err := newPool(opts)
	if err != nil {
		return nil, err
	}
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	p.seed(opts)
	return p, nil
}
