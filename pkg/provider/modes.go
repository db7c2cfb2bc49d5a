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
	"crypto/cipher"
	"fmt"
)

// Mode selects how a block cipher chains blocks.
type Mode int

const (
	// ModeECB encrypts each block independently.
	ModeECB Mode = iota + 1

	// ModeCBC chains whole blocks through the previous ciphertext.
	ModeCBC

	// ModeCFB is full-block cipher feedback accepting any input length.
	ModeCFB

	// ModePGP is cipher feedback with the Sync operation of the legacy
	// OpenPGP format.
	ModePGP
)

func (m Mode) String() string {
	switch m {
	case ModeECB:
		return "ECB"
	case ModeCBC:
		return "CBC"
	case ModeCFB:
		return "CFB"
	case ModePGP:
		return "PGP"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "ECB", "ecb":
		return ModeECB, nil
	case "CBC", "cbc":
		return ModeCBC, nil
	case "CFB", "cfb":
		return ModeCFB, nil
	case "PGP", "pgp":
		return ModePGP, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrMode, s)
}

// Cipher is the stateful object returned by NewCipher and NewStream.
// Encrypt and Decrypt continue from the state the previous call left.
type Cipher interface {
	Encrypt(src []byte) ([]byte, error)
	Decrypt(src []byte) ([]byte, error)
	Sync() error
	BlockSize() int
}

// BlockCipher is a block cipher bound to a key, mode and chaining state.
type BlockCipher struct {
	module BlockModule
	block  cipher.Block
	mode   Mode
	bs     int

	// reg is the CBC chaining value or the CFB feedback register.
	reg []byte
	// prev holds the feedback register before the current segment began.
	prev []byte
	ks   []byte
	pos  int
}

func newBlockCipher(m BlockModule, key []byte, mode Mode, iv []byte) (*BlockCipher, error) {
	if err := m.checkKey(key); err != nil {
		return nil, err
	}
	b, err := m.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeySize, err)
	}
	bs := b.BlockSize()
	c := &BlockCipher{module: m, block: b, mode: mode, bs: bs}
	switch mode {
	case ModeECB:
	case ModeCBC, ModeCFB, ModePGP:
		if iv == nil {
			iv = make([]byte, bs)
		}
		if len(iv) != bs {
			return nil, fmt.Errorf("%w: IV of %d bytes for %d-byte block", ErrMode, len(iv), bs)
		}
		c.reg = append([]byte(nil), iv...)
		c.prev = make([]byte, bs)
		c.ks = make([]byte, bs)
		c.pos = bs
	default:
		return nil, fmt.Errorf("%w: %s", ErrMode, mode)
	}
	return c, nil
}

// Module returns the module the cipher was opened from.
func (c *BlockCipher) Module() BlockModule { return c.module }

// Mode returns the chaining mode.
func (c *BlockCipher) Mode() Mode { return c.mode }

// BlockSize returns the cipher block size in bytes.
func (c *BlockCipher) BlockSize() int { return c.bs }

// Encrypt enciphers src and advances the chaining state.
func (c *BlockCipher) Encrypt(src []byte) ([]byte, error) {
	dst := make([]byte, len(src))
	switch c.mode {
	case ModeECB:
		if len(src)%c.bs != 0 {
			return nil, ErrBlockSize
		}
		for i := 0; i < len(src); i += c.bs {
			c.block.Encrypt(dst[i:i+c.bs], src[i:i+c.bs])
		}
	case ModeCBC:
		if len(src)%c.bs != 0 {
			return nil, ErrBlockSize
		}
		for i := 0; i < len(src); i += c.bs {
			xorBytes(c.reg, c.reg, src[i:i+c.bs])
			c.block.Encrypt(c.reg, c.reg)
			copy(dst[i:], c.reg)
		}
	default:
		c.feedback(dst, src, true)
	}
	return dst, nil
}

// Decrypt deciphers src and advances the chaining state.
func (c *BlockCipher) Decrypt(src []byte) ([]byte, error) {
	dst := make([]byte, len(src))
	switch c.mode {
	case ModeECB:
		if len(src)%c.bs != 0 {
			return nil, ErrBlockSize
		}
		for i := 0; i < len(src); i += c.bs {
			c.block.Decrypt(dst[i:i+c.bs], src[i:i+c.bs])
		}
	case ModeCBC:
		if len(src)%c.bs != 0 {
			return nil, ErrBlockSize
		}
		tmp := make([]byte, c.bs)
		for i := 0; i < len(src); i += c.bs {
			c.block.Decrypt(tmp, src[i:i+c.bs])
			xorBytes(dst[i:i+c.bs], tmp, c.reg)
			copy(c.reg, src[i:i+c.bs])
		}
	default:
		c.feedback(dst, src, false)
	}
	return dst, nil
}

// feedback runs byte-granular cipher feedback. The register holds the
// last block of ciphertext; a fresh keystream block is produced whenever
// the previous one is used up.
func (c *BlockCipher) feedback(dst, src []byte, encrypt bool) {
	for i, b := range src {
		if c.pos == c.bs {
			copy(c.prev, c.reg)
			c.block.Encrypt(c.ks, c.reg)
			c.pos = 0
		}
		out := b ^ c.ks[c.pos]
		if encrypt {
			c.reg[c.pos] = out
		} else {
			c.reg[c.pos] = b
		}
		dst[i] = out
		c.pos++
	}
}

// Sync realigns PGP-CFB so that the next keystream block is the encryption
// of the last block-size bytes of ciphertext, discarding the unused part of
// the current keystream block. It fails for every other mode.
func (c *BlockCipher) Sync() error {
	if c.mode != ModePGP {
		return fmt.Errorf("%w: sync requires PGP mode, have %s", ErrMode, c.mode)
	}
	if c.pos == c.bs {
		return nil
	}
	reg := make([]byte, 0, c.bs)
	reg = append(reg, c.prev[c.pos:]...)
	reg = append(reg, c.reg[:c.pos]...)
	copy(c.reg, reg)
	c.pos = c.bs
	return nil
}

func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// StreamCipher wraps a cipher.Stream. Encrypt and Decrypt are the same
// keystream XOR; Sync is not supported.
type StreamCipher struct {
	module StreamModule
	stream cipher.Stream
}

func newStreamCipher(m StreamModule, key, iv []byte) (*StreamCipher, error) {
	if m.KeySize != 0 && len(key) != m.KeySize {
		return nil, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrKeySize, m.Name, m.KeySize, len(key))
	}
	if m.KeySize == 0 && (len(key) < m.MinKey || len(key) > m.MaxKey) {
		return nil, fmt.Errorf("%w: %s wants %d..%d bytes, got %d", ErrKeySize, m.Name, m.MinKey, m.MaxKey, len(key))
	}
	if len(iv) != m.IVSize {
		return nil, fmt.Errorf("%w: %s wants a %d-byte IV, got %d", ErrMode, m.Name, m.IVSize, len(iv))
	}
	s, err := m.New(key, iv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeySize, err)
	}
	return &StreamCipher{module: m, stream: s}, nil
}

// Module returns the module the cipher was opened from.
func (s *StreamCipher) Module() StreamModule { return s.module }

// BlockSize returns 1.
func (s *StreamCipher) BlockSize() int { return 1 }

// Encrypt XORs src with the keystream.
func (s *StreamCipher) Encrypt(src []byte) ([]byte, error) {
	dst := make([]byte, len(src))
	s.stream.XORKeyStream(dst, src)
	return dst, nil
}

// Decrypt XORs src with the keystream.
func (s *StreamCipher) Decrypt(src []byte) ([]byte, error) {
	return s.Encrypt(src)
}

// Sync always fails for stream ciphers.
func (s *StreamCipher) Sync() error {
	return fmt.Errorf("%w: sync on stream cipher %s", ErrMode, s.module.Name)
}

var (
	_ Cipher = (*BlockCipher)(nil)
	_ Cipher = (*StreamCipher)(nil)
)
