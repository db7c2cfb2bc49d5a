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

// Package provider is the uniform interface over symmetric ciphers, hashes
// and compression consumed by the rest of go-pgpkit.
//
// Block ciphers are registered as BlockModule values and opened in one of
// the chaining modes ECB, CBC, CFB or PGP-CFB:
//
//	c, err := provider.NewCipher("IDEA", key, provider.ModePGP, nil)
//	ct, err := c.Encrypt(prefix)
//	err = c.Sync()
//
// Stream ciphers (RC4, ChaCha20) and hashes (MD5, SHA1, RIPEMD160, the
// SHA-2 family, MD4, SHA3-256) are registered the same way. Algorithm IDs
// are the legacy OpenPGP numbers where one exists.
//
// A Registry is safe for concurrent use. The Cipher and Hash objects it
// returns carry chaining state and are not.
package provider

import (
	"crypto/cipher"
	"fmt"
	"hash"
	"sort"
	"sync"

	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
)

var (
	// ErrUnknownCipher is returned for an unregistered cipher name or ID.
	ErrUnknownCipher = pgperr.New(pgperr.KindCapability, "provider: unknown cipher")

	// ErrUnknownHash is returned for an unregistered hash name or ID.
	ErrUnknownHash = pgperr.New(pgperr.KindCapability, "provider: unknown hash")

	// ErrKeySize is returned when a key does not match the module's size.
	ErrKeySize = pgperr.New(pgperr.KindDomain, "provider: invalid key size")

	// ErrBlockSize is returned when ECB or CBC input is not whole blocks.
	ErrBlockSize = pgperr.New(pgperr.KindDomain, "provider: input is not a multiple of the block size")

	// ErrMode is returned for an unknown mode or an IV of the wrong size.
	ErrMode = pgperr.New(pgperr.KindDomain, "provider: invalid mode or IV")
)

// BlockModule describes a registered block cipher.
type BlockModule struct {
	Name      string
	ID        byte // legacy OpenPGP algorithm number, 0 if none
	KeySize   int  // 0 means variable, see MinKey and MaxKey
	MinKey    int
	MaxKey    int
	BlockSize int
	New       func(key []byte) (cipher.Block, error)
}

// Accelerated reports whether the module runs on hardware instructions.
func (m BlockModule) Accelerated() bool {
	switch m.Name {
	case AES128, AES192, AES256:
		return HasAESAcceleration()
	default:
		return false
	}
}

func (m BlockModule) checkKey(key []byte) error {
	if m.KeySize != 0 {
		if len(key) != m.KeySize {
			return fmt.Errorf("%w: %s wants %d bytes, got %d", ErrKeySize, m.Name, m.KeySize, len(key))
		}
		return nil
	}
	if len(key) < m.MinKey || len(key) > m.MaxKey {
		return fmt.Errorf("%w: %s wants %d..%d bytes, got %d", ErrKeySize, m.Name, m.MinKey, m.MaxKey, len(key))
	}
	return nil
}

// StreamModule describes a registered stream cipher. IVSize is the nonce
// length the factory expects, 0 for ciphers without one.
type StreamModule struct {
	Name    string
	KeySize int // 0 means variable, see MinKey and MaxKey
	MinKey  int
	MaxKey  int
	IVSize  int
	New     func(key, iv []byte) (cipher.Stream, error)
}

// HashModule describes a registered hash function.
type HashModule struct {
	Name string
	ID   byte // legacy OpenPGP algorithm number, 0 if none
	Size int
	New  func() hash.Hash
}

// Registry maps algorithm names and IDs to modules.
type Registry struct {
	mu      sync.RWMutex
	blocks  map[string]BlockModule
	streams map[string]StreamModule
	hashes  map[string]HashModule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		blocks:  make(map[string]BlockModule),
		streams: make(map[string]StreamModule),
		hashes:  make(map[string]HashModule),
	}
}

// RegisterBlock adds or replaces a block cipher module.
func (r *Registry) RegisterBlock(m BlockModule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[m.Name] = m
}

// RegisterStream adds or replaces a stream cipher module.
func (r *Registry) RegisterStream(m StreamModule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[m.Name] = m
}

// RegisterHash adds or replaces a hash module.
func (r *Registry) RegisterHash(m HashModule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes[m.Name] = m
}

// Block looks up a block cipher by name.
func (r *Registry) Block(name string) (BlockModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.blocks[name]
	if !ok {
		return BlockModule{}, fmt.Errorf("%w: %s", ErrUnknownCipher, name)
	}
	return m, nil
}

// BlockByID looks up a block cipher by its OpenPGP algorithm number.
func (r *Registry) BlockByID(id byte) (BlockModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id != 0 {
		for _, m := range r.blocks {
			if m.ID == id {
				return m, nil
			}
		}
	}
	return BlockModule{}, fmt.Errorf("%w: id %d", ErrUnknownCipher, id)
}

// Stream looks up a stream cipher by name.
func (r *Registry) Stream(name string) (StreamModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.streams[name]
	if !ok {
		return StreamModule{}, fmt.Errorf("%w: %s", ErrUnknownCipher, name)
	}
	return m, nil
}

// Hash looks up a hash by name.
func (r *Registry) Hash(name string) (HashModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.hashes[name]
	if !ok {
		return HashModule{}, fmt.Errorf("%w: %s", ErrUnknownHash, name)
	}
	return m, nil
}

// HashByID looks up a hash by its OpenPGP algorithm number.
func (r *Registry) HashByID(id byte) (HashModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id != 0 {
		for _, m := range r.hashes {
			if m.ID == id {
				return m, nil
			}
		}
	}
	return HashModule{}, fmt.Errorf("%w: id %d", ErrUnknownHash, id)
}

// Names returns the sorted names of all registered ciphers and hashes.
func (r *Registry) Names() (ciphers, hashes []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n := range r.blocks {
		ciphers = append(ciphers, n)
	}
	for n := range r.streams {
		ciphers = append(ciphers, n)
	}
	for n := range r.hashes {
		hashes = append(hashes, n)
	}
	sort.Strings(ciphers)
	sort.Strings(hashes)
	return ciphers, hashes
}

// NewCipher opens a block cipher from this registry.
func (r *Registry) NewCipher(name string, key []byte, mode Mode, iv []byte) (*BlockCipher, error) {
	m, err := r.Block(name)
	if err != nil {
		return nil, err
	}
	return newBlockCipher(m, key, mode, iv)
}

// NewStream opens a stream cipher from this registry.
func (r *Registry) NewStream(name string, key, iv []byte) (*StreamCipher, error) {
	m, err := r.Stream(name)
	if err != nil {
		return nil, err
	}
	return newStreamCipher(m, key, iv)
}

// NewHash returns a fresh hash from this registry, primed with initial.
func (r *Registry) NewHash(name string, initial []byte) (*Hash, error) {
	m, err := r.Hash(name)
	if err != nil {
		return nil, err
	}
	return newHash(m, initial), nil
}

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}()

// Default returns the process registry holding the built-in modules.
func Default() *Registry { return defaultRegistry }

// LookupBlock looks up a built-in or registered block cipher by name.
func LookupBlock(name string) (BlockModule, error) { return defaultRegistry.Block(name) }

// LookupBlockID looks up a block cipher by OpenPGP algorithm number.
func LookupBlockID(id byte) (BlockModule, error) { return defaultRegistry.BlockByID(id) }

// LookupHash looks up a hash by name.
func LookupHash(name string) (HashModule, error) { return defaultRegistry.Hash(name) }

// LookupHashID looks up a hash by OpenPGP algorithm number.
func LookupHashID(id byte) (HashModule, error) { return defaultRegistry.HashByID(id) }

// NewCipher opens a block cipher from the default registry.
func NewCipher(name string, key []byte, mode Mode, iv []byte) (*BlockCipher, error) {
	return defaultRegistry.NewCipher(name, key, mode, iv)
}

// NewStream opens a stream cipher from the default registry.
func NewStream(name string, key, iv []byte) (*StreamCipher, error) {
	return defaultRegistry.NewStream(name, key, iv)
}

// NewHash returns a hash from the default registry.
func NewHash(name string, initial []byte) (*Hash, error) {
	return defaultRegistry.NewHash(name, initial)
}
