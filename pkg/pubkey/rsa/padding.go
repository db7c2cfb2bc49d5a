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

package rsa

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/jeremyhahn/go-pgpkit/pkg/bignum"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
)

// Version selects the PGP 2.x padding layout.
type Version int

const (
	// V2 is the PGP 2.0-2.2 layout with the payload near the front.
	V2 Version = 2
	// V3 is the PGP 2.3+ layout with the payload at the end.
	V3 Version = 3
)

// minPad is the least number of filler bytes any layout accepts.
const minPad = 8

// digestPrefixes are the DER DigestInfo headers that precede a digest in
// V3 signature padding.
var digestPrefixes = map[string][]byte{
	provider.MD5:       {0x30, 0x20, 0x30, 0x0c, 0x06, 0x08, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x02, 0x05, 0x05, 0x00, 0x04, 0x10},
	provider.SHA1:      {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	provider.RIPEMD160: {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x24, 0x03, 0x02, 0x01, 0x05, 0x00, 0x04, 0x14},
	provider.SHA256:    {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	provider.SHA384:    {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	provider.SHA512:    {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

// DigestPrefix returns the DigestInfo header for a hash name.
func DigestPrefix(hash string) ([]byte, error) {
	p, ok := digestPrefixes[hash]
	if !ok {
		return nil, fmt.Errorf("%w: no digest prefix for %s", provider.ErrUnknownHash, hash)
	}
	return p, nil
}

// KeyChecksum is the 16-bit byte sum appended to a session key.
func KeyChecksum(key []byte) uint16 {
	var sum uint16
	for _, b := range key {
		sum += uint16(b)
	}
	return sum
}

// PadSessionKey builds a k-byte encryption block around a session key.
//
//	V2: 00 01 || key || checksum || 00 || random || 02
//	V3: 00 02 || random || 00 || cipherID || key || checksum
//
// random is nonzero filler read from rng. V2 blocks carry no cipher
// number; the cipher is implied to be IDEA.
func PadSessionKey(v Version, cipherID byte, key []byte, k int, rng io.Reader) ([]byte, error) {
	var sum [2]byte
	binary.BigEndian.PutUint16(sum[:], KeyChecksum(key))
	out := make([]byte, 0, k)

	switch v {
	case V2:
		pad := k - len(key) - 6
		if pad < minPad {
			return nil, fmt.Errorf("%w: modulus too small for session key", pubkey.ErrBadDomain)
		}
		filler, err := nonzeroBytes(rng, pad)
		if err != nil {
			return nil, err
		}
		out = append(out, 0x00, 0x01)
		out = append(out, key...)
		out = append(out, sum[:]...)
		out = append(out, 0x00)
		out = append(out, filler...)
		out = append(out, 0x02)
	case V3:
		pad := k - len(key) - 6
		if pad < minPad {
			return nil, fmt.Errorf("%w: modulus too small for session key", pubkey.ErrBadDomain)
		}
		filler, err := nonzeroBytes(rng, pad)
		if err != nil {
			return nil, err
		}
		out = append(out, 0x00, 0x02)
		out = append(out, filler...)
		out = append(out, 0x00, cipherID)
		out = append(out, key...)
		out = append(out, sum[:]...)
	default:
		return nil, fmt.Errorf("%w: padding version %d", pubkey.ErrBadDomain, v)
	}
	return out, nil
}

// UnpadSessionKey reverses PadSessionKey. keyLen is required for V2 blocks,
// whose key length is not recoverable from the block; V3 ignores it.
func UnpadSessionKey(v Version, block []byte, keyLen int) (cipherID byte, key []byte, err error) {
	switch v {
	case V2:
		end := 2 + keyLen + 2
		if keyLen <= 0 || len(block) < end+2 || block[0] != 0x00 || block[1] != 0x01 ||
			block[end] != 0x00 || block[len(block)-1] != 0x02 {
			return 0, nil, pubkey.ErrPadding
		}
		key = bytes.Clone(block[2 : 2+keyLen])
		cipherID = pubkey.DefaultLockCipher
		if binary.BigEndian.Uint16(block[2+keyLen:end]) != KeyChecksum(key) {
			return 0, nil, pubkey.ErrPadding
		}
		return cipherID, key, nil
	case V3:
		if len(block) < 2 || block[0] != 0x00 || block[1] != 0x02 {
			return 0, nil, pubkey.ErrPadding
		}
		i := bytes.IndexByte(block[2:], 0x00)
		if i < 0 {
			return 0, nil, pubkey.ErrPadding
		}
		rest := block[2+i+1:]
		if len(rest) < 1+1+2 {
			return 0, nil, pubkey.ErrPadding
		}
		cipherID = rest[0]
		key = bytes.Clone(rest[1 : len(rest)-2])
		if binary.BigEndian.Uint16(rest[len(rest)-2:]) != KeyChecksum(key) {
			return 0, nil, pubkey.ErrPadding
		}
		return cipherID, key, nil
	}
	return 0, nil, fmt.Errorf("%w: padding version %d", pubkey.ErrBadDomain, v)
}

// PadDigest builds a k-byte signature block around a message digest.
//
//	V2: 00 01 || digest || 00 || FF... || 01
//	V3: 00 01 || FF... || 00 || DigestInfo(hash) || digest
func PadDigest(v Version, hash string, digest []byte, k int) ([]byte, error) {
	out := make([]byte, 0, k)
	switch v {
	case V2:
		pad := k - len(digest) - 4
		if pad < minPad {
			return nil, fmt.Errorf("%w: modulus too small for digest", pubkey.ErrBadDomain)
		}
		out = append(out, 0x00, 0x01)
		out = append(out, digest...)
		out = append(out, 0x00)
		out = append(out, bytes.Repeat([]byte{0xff}, pad)...)
		out = append(out, 0x01)
	case V3:
		prefix, err := DigestPrefix(hash)
		if err != nil {
			return nil, err
		}
		pad := k - len(prefix) - len(digest) - 3
		if pad < minPad {
			return nil, fmt.Errorf("%w: modulus too small for digest", pubkey.ErrBadDomain)
		}
		out = append(out, 0x00, 0x01)
		out = append(out, bytes.Repeat([]byte{0xff}, pad)...)
		out = append(out, 0x00)
		out = append(out, prefix...)
		out = append(out, digest...)
	default:
		return nil, fmt.Errorf("%w: padding version %d", pubkey.ErrBadDomain, v)
	}
	return out, nil
}

// UnpadDigest extracts the digest from a signature block. digestLen is the
// size of the expected digest.
func UnpadDigest(v Version, hash string, block []byte, digestLen int) ([]byte, error) {
	if len(block) < 2 || block[0] != 0x00 || block[1] != 0x01 {
		return nil, pubkey.ErrPadding
	}
	switch v {
	case V2:
		end := 2 + digestLen
		if len(block) < end+2+minPad || block[end] != 0x00 || block[len(block)-1] != 0x01 {
			return nil, pubkey.ErrPadding
		}
		for _, b := range block[end+1 : len(block)-1] {
			if b != 0xff {
				return nil, pubkey.ErrPadding
			}
		}
		return bytes.Clone(block[2:end]), nil
	case V3:
		prefix, err := DigestPrefix(hash)
		if err != nil {
			return nil, err
		}
		i := 2
		for i < len(block) && block[i] == 0xff {
			i++
		}
		if i-2 < minPad || i >= len(block) || block[i] != 0x00 {
			return nil, pubkey.ErrPadding
		}
		rest := block[i+1:]
		if len(rest) != len(prefix)+digestLen || !bytes.Equal(rest[:len(prefix)], prefix) {
			return nil, pubkey.ErrPadding
		}
		return bytes.Clone(rest[len(prefix):]), nil
	}
	return nil, fmt.Errorf("%w: padding version %d", pubkey.ErrBadDomain, v)
}

// EncryptSessionKey pads key and encrypts it under pub.
func (pub *PublicKey) EncryptSessionKey(v Version, cipherID byte, key []byte, rng io.Reader) (*big.Int, error) {
	block, err := PadSessionKey(v, cipherID, key, pub.Size(), rng)
	if err != nil {
		return nil, err
	}
	defer zero(block)
	return pub.Encrypt(bignum.FromBytesBE(block))
}

// DecryptSessionKey decrypts and unpads a session key.
func (k *PrivateKey) DecryptSessionKey(v Version, c *big.Int, keyLen int) (byte, []byte, error) {
	m, err := k.Decrypt(c)
	if err != nil {
		return 0, nil, err
	}
	defer bignum.Zeroize(m)
	block, err := bignum.ToBytesBE(m, k.Size())
	if err != nil {
		return 0, nil, pubkey.ErrPadding
	}
	defer zero(block)
	return UnpadSessionKey(v, block, keyLen)
}

// SignDigest pads digest and signs it. When rng is non-nil the private
// operation is blinded with a fresh factor.
func (k *PrivateKey) SignDigest(v Version, hash string, digest []byte, rng io.Reader) (*big.Int, error) {
	block, err := PadDigest(v, hash, digest, k.Size())
	if err != nil {
		return nil, err
	}
	m := bignum.FromBytesBE(block)
	if rng != nil {
		return k.SignBlinded(m, rng)
	}
	return k.Sign(m)
}

// VerifyDigest checks sig against digest. It returns pubkey.ErrPadding for
// a malformed block and pubkey.ErrBadSignature for a digest mismatch.
func (pub *PublicKey) VerifyDigest(v Version, hash string, digest []byte, sig *big.Int) error {
	got, err := pub.RecoverDigest(v, hash, len(digest), sig)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(got, digest) != 1 {
		return pubkey.ErrBadSignature
	}
	return nil
}

// RecoverDigest returns the digest carried by sig without comparing it.
// Signature checks use its first two bytes as a quick reject.
func (pub *PublicKey) RecoverDigest(v Version, hash string, digestLen int, sig *big.Int) ([]byte, error) {
	if pub.checkInput(sig) != nil {
		return nil, pubkey.ErrBadSignature
	}
	m, err := bignum.PowMod(sig, pub.E, pub.N)
	if err != nil {
		return nil, err
	}
	block, err := bignum.ToBytesBE(m, pub.Size())
	if err != nil {
		return nil, pubkey.ErrPadding
	}
	return UnpadDigest(v, hash, block, digestLen)
}

func nonzeroBytes(rng io.Reader, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(rng, out); err != nil {
		return nil, fmt.Errorf("rsa: reading padding: %w", err)
	}
	var one [1]byte
	for i := range out {
		for out[i] == 0 {
			if _, err := io.ReadFull(rng, one[:]); err != nil {
				return nil, fmt.Errorf("rsa: reading padding: %w", err)
			}
			out[i] = one[0]
		}
	}
	return out, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
