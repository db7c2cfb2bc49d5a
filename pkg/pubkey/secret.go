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

package pubkey

import (
	"bytes"
	"crypto/md5"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/jeremyhahn/go-pgpkit/pkg/bignum"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
)

// State is the lock state of a private key's secret integers.
type State int

const (
	// StateGenerated is a freshly generated or imported key that has never
	// been locked.
	StateGenerated State = iota

	// StateLocked is a key whose secret integers exist only enciphered.
	StateLocked

	// StateUnlocked is a previously locked key that has been unlocked.
	StateUnlocked
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateGenerated:
		return "GENERATED"
	case StateLocked:
		return "LOCKED"
	case StateUnlocked:
		return "UNLOCKED"
	default:
		return "UNKNOWN"
	}
}

// DefaultLockCipher is the OpenPGP cipher number used by Lock (IDEA).
const DefaultLockCipher byte = 1

// Sealed is the enciphered form of a secret: for each integer, its 2-byte
// bit count in the clear followed by the enciphered magnitude. The cipher
// runs in PGP-CFB from IV and is resynchronized after every integer.
// Checksum covers the plaintext magnitudes.
type Sealed struct {
	CipherID byte
	IV       []byte
	Body     []byte
	Checksum uint16
}

// Clone returns a deep copy of s.
func (s *Sealed) Clone() *Sealed {
	if s == nil {
		return nil
	}
	return &Sealed{
		CipherID: s.CipherID,
		IV:       bytes.Clone(s.IV),
		Body:     bytes.Clone(s.Body),
		Checksum: s.Checksum,
	}
}

// Secret is the lockable container for a private key's secret integers.
// It is not safe for concurrent use.
type Secret struct {
	state  State
	count  int
	values []*big.Int
	sealed *Sealed
}

// NewSecret wraps plaintext secret integers in the GENERATED state.
func NewSecret(values ...*big.Int) *Secret {
	return &Secret{state: StateGenerated, count: len(values), values: values}
}

// NewLockedSecret wraps count enciphered integers in the LOCKED state.
func NewLockedSecret(sealed *Sealed, count int) *Secret {
	return &Secret{state: StateLocked, count: count, sealed: sealed}
}

// State returns the lock state.
func (s *Secret) State() State { return s.state }

// Count returns the number of secret integers.
func (s *Secret) Count() int { return s.count }

// Values returns the plaintext secret integers, or ErrLocked.
func (s *Secret) Values() ([]*big.Int, error) {
	if s.state == StateLocked {
		return nil, ErrLocked
	}
	return s.values, nil
}

// Sealed returns the enciphered form, or nil if the secret has never been
// locked. It stays available after Unlock so a key can be written back in
// its locked form.
func (s *Secret) Sealed() *Sealed { return s.sealed }

// Lock enciphers the secret under passphrase with IDEA, zeroizes the
// plaintext, and moves to LOCKED.
func (s *Secret) Lock(passphrase []byte, rng io.Reader) error {
	return s.LockWith(DefaultLockCipher, passphrase, rng)
}

// LockWith is Lock with an explicit OpenPGP cipher number.
func (s *Secret) LockWith(cipherID byte, passphrase []byte, rng io.Reader) error {
	if s.state == StateLocked {
		return ErrLocked
	}
	mod, err := provider.LookupBlockID(cipherID)
	if err != nil {
		return err
	}
	iv := make([]byte, mod.BlockSize)
	if _, err := io.ReadFull(rng, iv); err != nil {
		return fmt.Errorf("pubkey: reading IV: %w", err)
	}
	c, err := passphraseCipher(mod, passphrase, iv)
	if err != nil {
		return err
	}

	var body []byte
	for _, v := range s.values {
		var hdr [2]byte
		binary.BigEndian.PutUint16(hdr[:], uint16(v.BitLen()))
		body = append(body, hdr[:]...)
		mag := v.Bytes()
		enc, err := c.Encrypt(mag)
		zero(mag)
		if err != nil {
			return err
		}
		body = append(body, enc...)
		if err := c.Sync(); err != nil {
			return err
		}
	}

	s.sealed = &Sealed{
		CipherID: cipherID,
		IV:       iv,
		Body:     body,
		Checksum: Checksum(s.values...),
	}
	s.zeroizeValues()
	s.state = StateLocked
	return nil
}

// Unlock deciphers the secret with passphrase and moves to UNLOCKED. A
// wrong passphrase fails the checksum and returns ErrBadPassphrase.
func (s *Secret) Unlock(passphrase []byte) error {
	if s.state != StateLocked {
		return ErrNotLocked
	}
	values, err := s.sealed.open(passphrase, s.count)
	if err != nil {
		return err
	}
	s.values = values
	s.state = StateUnlocked
	return nil
}

// Relock zeroizes the plaintext of an unlocked secret and returns it to
// LOCKED using the enciphered form it was unlocked from.
func (s *Secret) Relock() error {
	if s.state == StateLocked {
		return ErrLocked
	}
	if s.sealed == nil {
		return ErrNotLocked
	}
	s.zeroizeValues()
	s.state = StateLocked
	return nil
}

// LockedClone returns a LOCKED copy of s built from its enciphered form,
// so the copy can be unlocked without touching s.
func (s *Secret) LockedClone() (*Secret, error) {
	if s.sealed == nil {
		return nil, ErrNotLocked
	}
	return NewLockedSecret(s.sealed.Clone(), s.count), nil
}

// Zeroize overwrites the plaintext secret integers.
func (s *Secret) Zeroize() {
	s.zeroizeValues()
}

func (s *Secret) zeroizeValues() {
	for _, v := range s.values {
		bignum.Zeroize(v)
	}
	s.values = nil
}

func (sl *Sealed) open(passphrase []byte, count int) ([]*big.Int, error) {
	mod, err := provider.LookupBlockID(sl.CipherID)
	if err != nil {
		return nil, err
	}
	c, err := passphraseCipher(mod, passphrase, sl.IV)
	if err != nil {
		return nil, err
	}

	values := make([]*big.Int, 0, count)
	fail := func(err error) ([]*big.Int, error) {
		for _, v := range values {
			bignum.Zeroize(v)
		}
		return nil, err
	}

	rest := sl.Body
	var sum uint16
	canonical := true
	for i := 0; i < count; i++ {
		if len(rest) < 2 {
			return fail(bignum.ErrShortMPI)
		}
		bits := int(binary.BigEndian.Uint16(rest))
		n := (bits + 7) / 8
		if len(rest) < 2+n {
			return fail(bignum.ErrShortMPI)
		}
		mag, err := c.Decrypt(rest[2 : 2+n])
		if err != nil {
			return fail(err)
		}
		for _, b := range mag {
			sum += uint16(b)
		}
		v := new(big.Int).SetBytes(mag)
		zero(mag)
		if v.BitLen() != bits {
			canonical = false
		}
		values = append(values, v)
		rest = rest[2+n:]
		if err := c.Sync(); err != nil {
			return fail(err)
		}
	}
	if len(rest) != 0 {
		return fail(bignum.ErrNonCanonicalMPI)
	}

	var got, want [2]byte
	binary.BigEndian.PutUint16(got[:], sum)
	binary.BigEndian.PutUint16(want[:], sl.Checksum)
	if subtle.ConstantTimeCompare(got[:], want[:]) != 1 || !canonical {
		return fail(ErrBadPassphrase)
	}
	return values, nil
}

// passphraseCipher keys mod with MD5(passphrase) truncated to the key size.
func passphraseCipher(mod provider.BlockModule, passphrase, iv []byte) (*provider.BlockCipher, error) {
	digest := md5.Sum(passphrase)
	defer zero(digest[:])
	keyLen := mod.KeySize
	if keyLen == 0 {
		keyLen = len(digest)
	}
	if keyLen > len(digest) {
		return nil, fmt.Errorf("%w: %s needs a %d-byte key", provider.ErrKeySize, mod.Name, keyLen)
	}
	return provider.Default().NewCipher(mod.Name, digest[:keyLen], provider.ModePGP, iv)
}

// Checksum returns the sum of the big-endian magnitude bytes of values,
// mod 65536. MPI length prefixes are not included.
func Checksum(values ...*big.Int) uint16 {
	var sum uint16
	for _, v := range values {
		for _, b := range v.Bytes() {
			sum += uint16(b)
		}
	}
	return sum
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
