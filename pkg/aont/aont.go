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

// Package aont implements Rivest's All-Or-Nothing package transform. Digest
// turns a message into s+2 blocks under a random inner key; the key can only
// be recovered, and the message deciphered, when every block is present and
// intact.
//
// For a message padded with spaces to s blocks m_1..m_s of the cipher's
// block size, with K' random and K0 = 0x69 repeated:
//
//	m'_i   = m_i XOR E(K', i)               i = 1..s
//	m'_s+1 = padbytes XOR E(K', s+1)
//	h_i    = E(K0, m'_i XOR i)              i = 1..s+1
//	m'_s+2 = K' XOR h_1 XOR ... XOR h_s+1
//
// Integers are big-endian and right-aligned in their block.
package aont

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
)

// K0Digit fills the fixed hashing key.
const K0Digit = 0x69

// DefaultKeySize is used for ciphers with a variable key size.
const DefaultKeySize = 16

var (
	// ErrShortInput is returned by Undigest for fewer than two blocks.
	ErrShortInput = pgperr.New(pgperr.KindFormat, "aont: fewer than two blocks")

	// ErrBadPadding is returned when the recovered pad count is impossible,
	// which happens whenever a block was altered or dropped.
	ErrBadPadding = pgperr.New(pgperr.KindCrypto, "aont: bad padding")

	// ErrBlockLength is returned for blocks of the wrong width.
	ErrBlockLength = pgperr.New(pgperr.KindFormat, "aont: wrong block length")

	// ErrDirection is returned when a transform is used for both Digest
	// and Undigest.
	ErrDirection = pgperr.New(pgperr.KindState, "aont: transform already used in the other direction")
)

type direction int

const (
	dirNone direction = iota
	dirDigest
	dirUndigest
)

// Transform accumulates a message and digests it, or undigests a block
// list. An instance must not mix directions. It is not safe for concurrent
// use.
type Transform struct {
	module  provider.BlockModule
	mode    provider.Mode
	iv      []byte
	keySize int
	buf     []byte
	dir     direction
}

// New returns a transform over the named block cipher. The cipher objects
// it creates run in mode with iv; ECB needs no IV.
func New(cipherName string, mode provider.Mode, iv []byte) (*Transform, error) {
	mod, err := provider.LookupBlock(cipherName)
	if err != nil {
		return nil, err
	}
	ks := mod.KeySize
	if ks == 0 {
		ks = DefaultKeySize
		if mod.MaxKey > 0 && ks > mod.MaxKey {
			ks = mod.MaxKey
		}
	}
	t := &Transform{module: mod, mode: mode, iv: bytes.Clone(iv), keySize: ks}
	// fail early on a bad mode or IV
	if _, err := t.newCipher(make([]byte, ks)); err != nil {
		return nil, err
	}
	return t, nil
}

// BlockSize returns the size of every output block except the last.
func (t *Transform) BlockSize() int { return t.module.BlockSize }

// KeySize returns the inner key size.
func (t *Transform) KeySize() int { return t.keySize }

// FinalBlockSize returns the size of the key block, max(key size, block size).
func (t *Transform) FinalBlockSize() int {
	if t.keySize > t.module.BlockSize {
		return t.keySize
	}
	return t.module.BlockSize
}

// Reset discards accumulated input.
func (t *Transform) Reset() {
	zero(t.buf)
	t.buf = t.buf[:0]
}

// Update appends p to the message.
func (t *Transform) Update(p []byte) {
	t.buf = append(t.buf, p...)
}

// Write implements io.Writer over Update.
func (t *Transform) Write(p []byte) (int, error) {
	t.Update(p)
	return len(p), nil
}

func (t *Transform) claim(d direction) error {
	if t.dir != dirNone && t.dir != d {
		return ErrDirection
	}
	t.dir = d
	return nil
}

func (t *Transform) newCipher(key []byte) (*provider.BlockCipher, error) {
	return provider.Default().NewCipher(t.module.Name, key, t.mode, t.iv)
}

func (t *Transform) k0() []byte {
	return bytes.Repeat([]byte{K0Digit}, t.keySize)
}

// Digest transforms the accumulated message under a fresh inner key read
// from rng and returns s+2 blocks.
func (t *Transform) Digest(rng io.Reader) (_ [][]byte, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpAONTDigest, t.module.Name, start, err) }(time.Now())

	if err := t.claim(dirDigest); err != nil {
		return nil, err
	}
	bs := t.module.BlockSize
	key := make([]byte, t.keySize)
	if _, err := io.ReadFull(rng, key); err != nil {
		return nil, fmt.Errorf("aont: reading key: %w", err)
	}
	defer zero(key)

	mc, err := t.newCipher(key)
	if err != nil {
		return nil, err
	}
	hc, err := t.newCipher(t.k0())
	if err != nil {
		return nil, err
	}

	padbytes := (bs - len(t.buf)%bs) % bs
	text := make([]byte, len(t.buf)+padbytes)
	copy(text, t.buf)
	for i := len(t.buf); i < len(text); i++ {
		text[i] = ' '
	}
	defer zero(text)
	s := len(text) / bs

	blocks := make([][]byte, 0, s+2)
	hashes := make([]byte, bs)
	step := func(i int, m []byte) error {
		e, err := mc.Encrypt(counter(i, bs))
		if err != nil {
			return err
		}
		mt := xor(m, e)
		blocks = append(blocks, mt)
		h, err := hc.Encrypt(xor(mt, counter(i, bs)))
		if err != nil {
			return err
		}
		copy(hashes, xor(hashes, h))
		return nil
	}
	for i := 1; i <= s; i++ {
		if err := step(i, text[(i-1)*bs:i*bs]); err != nil {
			return nil, err
		}
	}
	if err := step(s+1, counter(padbytes, bs)); err != nil {
		return nil, err
	}

	w := t.FinalBlockSize()
	last := make([]byte, w)
	copy(last[w-t.keySize:], key)
	for i := 0; i < bs; i++ {
		last[w-bs+i] ^= hashes[i]
	}
	return append(blocks, last), nil
}

// Undigest recovers the message from the blocks Digest produced.
func (t *Transform) Undigest(blocks [][]byte) (_ []byte, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpAONTUndigest, t.module.Name, start, err) }(time.Now())

	if err := t.claim(dirUndigest); err != nil {
		return nil, err
	}
	if len(blocks) < 2 {
		return nil, ErrShortInput
	}
	bs := t.module.BlockSize
	w := t.FinalBlockSize()
	n := len(blocks) - 1
	for i := 0; i < n; i++ {
		if len(blocks[i]) != bs {
			return nil, fmt.Errorf("%w: block %d is %d bytes", ErrBlockLength, i+1, len(blocks[i]))
		}
	}
	if len(blocks[n]) != w {
		return nil, fmt.Errorf("%w: key block is %d bytes", ErrBlockLength, len(blocks[n]))
	}

	hc, err := t.newCipher(t.k0())
	if err != nil {
		return nil, err
	}
	last := bytes.Clone(blocks[n])
	defer zero(last)
	for i := 1; i <= n; i++ {
		h, err := hc.Encrypt(xor(blocks[i-1], counter(i, bs)))
		if err != nil {
			return nil, err
		}
		for j := 0; j < bs; j++ {
			last[w-bs+j] ^= h[j]
		}
	}
	for _, b := range last[:w-t.keySize] {
		if b != 0 {
			return nil, ErrBadPadding
		}
	}
	key := last[w-t.keySize:]

	mc, err := t.newCipher(key)
	if err != nil {
		return nil, err
	}
	text := make([]byte, 0, (n-1)*bs)
	var padBlock []byte
	for i := 1; i <= n; i++ {
		e, err := mc.Encrypt(counter(i, bs))
		if err != nil {
			return nil, err
		}
		m := xor(blocks[i-1], e)
		if i == n {
			padBlock = m
		} else {
			text = append(text, m...)
		}
	}
	pad := new(big.Int).SetBytes(padBlock)
	if !pad.IsInt64() || pad.Int64() >= int64(bs) || int(pad.Int64()) > len(text) {
		zero(text)
		return nil, ErrBadPadding
	}
	return text[:len(text)-int(pad.Int64())], nil
}

// Digest is a one-shot Transform.Digest.
func Digest(cipherName string, mode provider.Mode, iv, text []byte, rng io.Reader) ([][]byte, error) {
	t, err := New(cipherName, mode, iv)
	if err != nil {
		return nil, err
	}
	t.Update(text)
	return t.Digest(rng)
}

// Undigest is a one-shot Transform.Undigest.
func Undigest(cipherName string, mode provider.Mode, iv []byte, blocks [][]byte) ([]byte, error) {
	t, err := New(cipherName, mode, iv)
	if err != nil {
		return nil, err
	}
	return t.Undigest(blocks)
}

// counter encodes i big-endian in a block of size bs.
func counter(i, bs int) []byte {
	b := make([]byte, bs)
	binary.BigEndian.PutUint64(b[bs-8:], uint64(i))
	return b
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
