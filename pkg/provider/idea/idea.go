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

// Package idea implements the IDEA block cipher (64-bit block, 128-bit key)
// as a crypto/cipher.Block. IDEA is the symmetric cipher of the legacy PGP
// packet format.
package idea

import (
	"crypto/cipher"
	"encoding/binary"
	"strconv"
)

const (
	// BlockSize is the IDEA block size in bytes.
	BlockSize = 8

	// KeySize is the IDEA key size in bytes.
	KeySize = 16

	rounds  = 8
	keyLen  = 6*rounds + 4
	modulus = 0x10001
)

// KeySizeError is returned for keys that are not 16 bytes long.
type KeySizeError int

func (k KeySizeError) Error() string {
	return "idea: invalid key size " + strconv.Itoa(int(k))
}

type ideaCipher struct {
	ek [keyLen]uint16
	dk [keyLen]uint16
}

// NewCipher returns an IDEA cipher.Block for a 16-byte key.
func NewCipher(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, KeySizeError(len(key))
	}
	c := &ideaCipher{}
	expandKey(key, &c.ek)
	invertKey(&c.ek, &c.dk)
	return c, nil
}

func (c *ideaCipher) BlockSize() int { return BlockSize }

func (c *ideaCipher) Encrypt(dst, src []byte) { crypt(&c.ek, dst, src) }

func (c *ideaCipher) Decrypt(dst, src []byte) { crypt(&c.dk, dst, src) }

// expandKey takes 16-bit subkeys from the 128-bit key, rotating it left by
// 25 bits after every eight.
func expandKey(key []byte, z *[keyLen]uint16) {
	hi := binary.BigEndian.Uint64(key[0:8])
	lo := binary.BigEndian.Uint64(key[8:16])
	for i := 0; i < keyLen; {
		for j := 0; j < 8 && i < keyLen; j++ {
			if j < 4 {
				z[i] = uint16(hi >> (48 - 16*j))
			} else {
				z[i] = uint16(lo >> (48 - 16*(j-4)))
			}
			i++
		}
		hi, lo = hi<<25|lo>>39, lo<<25|hi>>39
	}
}

// invertKey derives the decryption schedule. The additive subkeys of the
// inner rounds are swapped to undo the x2/x3 exchange.
func invertKey(ek, dk *[keyLen]uint16) {
	for r := 0; r <= rounds; r++ {
		e := ek[6*(rounds-r):]
		d := dk[6*r:]
		d[0] = mulInv(e[0])
		if r == 0 || r == rounds {
			d[1] = -e[1]
			d[2] = -e[2]
		} else {
			d[1] = -e[2]
			d[2] = -e[1]
		}
		d[3] = mulInv(e[3])
		if r < rounds {
			m := ek[6*(rounds-1-r)+4:]
			d[4] = m[0]
			d[5] = m[1]
		}
	}
}

func crypt(z *[keyLen]uint16, dst, src []byte) {
	if len(src) < BlockSize || len(dst) < BlockSize {
		panic("idea: input not full block")
	}
	x1 := binary.BigEndian.Uint16(src[0:2])
	x2 := binary.BigEndian.Uint16(src[2:4])
	x3 := binary.BigEndian.Uint16(src[4:6])
	x4 := binary.BigEndian.Uint16(src[6:8])

	k := 0
	for r := 0; r < rounds; r++ {
		x1 = mul(x1, z[k])
		x2 += z[k+1]
		x3 += z[k+2]
		x4 = mul(x4, z[k+3])

		t2 := mul(x1^x3, z[k+4])
		t1 := mul(t2+(x2^x4), z[k+5])
		t2 += t1

		x1 ^= t1
		x4 ^= t2
		t2 ^= x2
		x2 = x3 ^ t1
		x3 = t2
		k += 6
	}

	binary.BigEndian.PutUint16(dst[0:2], mul(x1, z[k]))
	binary.BigEndian.PutUint16(dst[2:4], x3+z[k+1])
	binary.BigEndian.PutUint16(dst[4:6], x2+z[k+2])
	binary.BigEndian.PutUint16(dst[6:8], mul(x4, z[k+3]))
}

// mul multiplies modulo 2^16+1 with 0 standing for 2^16.
func mul(a, b uint16) uint16 {
	if a == 0 {
		return uint16(modulus - uint32(b))
	}
	if b == 0 {
		return uint16(modulus - uint32(a))
	}
	p := uint32(a) * uint32(b)
	lo := p & 0xFFFF
	hi := p >> 16
	if lo >= hi {
		return uint16(lo - hi)
	}
	return uint16(lo - hi + modulus)
}

// mulInv returns the inverse of x under mul. 0 and 1 are self-inverse.
func mulInv(x uint16) uint16 {
	if x <= 1 {
		return x
	}
	// x^(p-2) mod p
	result := uint64(1)
	base := uint64(x)
	for e := uint64(modulus - 2); e > 0; e >>= 1 {
		if e&1 == 1 {
			result = result * base % modulus
		}
		base = base * base % modulus
	}
	return uint16(result)
}
