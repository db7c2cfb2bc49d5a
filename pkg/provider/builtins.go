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
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"runtime"

	"github.com/jeremyhahn/go-pgpkit/pkg/provider/idea"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/md4"
	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"
	"golang.org/x/crypto/tea"
	"golang.org/x/crypto/twofish"
	"golang.org/x/crypto/xtea"
	"golang.org/x/sys/cpu"
)

// Block cipher names.
const (
	IDEA      = "IDEA"
	TripleDES = "3DES"
	CAST5     = "CAST5"
	Blowfish  = "Blowfish"
	AES128    = "AES128"
	AES192    = "AES192"
	AES256    = "AES256"
	Twofish   = "Twofish"
	DES       = "DES"
	XTEA      = "XTEA"
	TEA       = "TEA"
)

// Stream cipher names.
const (
	RC4      = "RC4"
	ChaCha20 = "ChaCha20"
)

// Hash names.
const (
	MD5       = "MD5"
	SHA1      = "SHA1"
	RIPEMD160 = "RIPEMD160"
	SHA256    = "SHA256"
	SHA384    = "SHA384"
	SHA512    = "SHA512"
	MD4       = "MD4"
	SHA3_256  = "SHA3-256"
)

// HasAESAcceleration reports whether the CPU has AES instructions.
func HasAESAcceleration() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	case "s390x":
		return cpu.S390X.HasAES
	default:
		return false
	}
}

func registerBuiltins(r *Registry) {
	r.RegisterBlock(BlockModule{Name: IDEA, ID: 1, KeySize: idea.KeySize, BlockSize: idea.BlockSize, New: idea.NewCipher})
	r.RegisterBlock(BlockModule{Name: TripleDES, ID: 2, KeySize: 24, BlockSize: des.BlockSize, New: des.NewTripleDESCipher})
	r.RegisterBlock(BlockModule{Name: CAST5, ID: 3, KeySize: cast5.KeySize, BlockSize: cast5.BlockSize, New: func(k []byte) (cipher.Block, error) {
		return cast5.NewCipher(k)
	}})
	r.RegisterBlock(BlockModule{Name: Blowfish, ID: 4, MinKey: 1, MaxKey: 56, BlockSize: blowfish.BlockSize, New: func(k []byte) (cipher.Block, error) {
		return blowfish.NewCipher(k)
	}})
	r.RegisterBlock(BlockModule{Name: AES128, ID: 7, KeySize: 16, BlockSize: aes.BlockSize, New: aes.NewCipher})
	r.RegisterBlock(BlockModule{Name: AES192, ID: 8, KeySize: 24, BlockSize: aes.BlockSize, New: aes.NewCipher})
	r.RegisterBlock(BlockModule{Name: AES256, ID: 9, KeySize: 32, BlockSize: aes.BlockSize, New: aes.NewCipher})
	r.RegisterBlock(BlockModule{Name: Twofish, ID: 10, KeySize: 32, BlockSize: twofish.BlockSize, New: func(k []byte) (cipher.Block, error) {
		return twofish.NewCipher(k)
	}})
	r.RegisterBlock(BlockModule{Name: DES, KeySize: 8, BlockSize: des.BlockSize, New: des.NewCipher})
	r.RegisterBlock(BlockModule{Name: XTEA, KeySize: 16, BlockSize: xtea.BlockSize, New: func(k []byte) (cipher.Block, error) {
		return xtea.NewCipher(k)
	}})
	r.RegisterBlock(BlockModule{Name: TEA, KeySize: tea.KeySize, BlockSize: tea.BlockSize, New: tea.NewCipher})

	r.RegisterStream(StreamModule{Name: RC4, MinKey: 1, MaxKey: 256, New: func(k, _ []byte) (cipher.Stream, error) {
		return rc4.NewCipher(k)
	}})
	r.RegisterStream(StreamModule{Name: ChaCha20, KeySize: chacha20.KeySize, IVSize: chacha20.NonceSize, New: func(k, iv []byte) (cipher.Stream, error) {
		return chacha20.NewUnauthenticatedCipher(k, iv)
	}})

	r.RegisterHash(HashModule{Name: MD5, ID: 1, Size: md5.Size, New: md5.New})
	r.RegisterHash(HashModule{Name: SHA1, ID: 2, Size: sha1.Size, New: sha1.New})
	r.RegisterHash(HashModule{Name: RIPEMD160, ID: 3, Size: ripemd160.Size, New: ripemd160.New})
	r.RegisterHash(HashModule{Name: SHA256, ID: 8, Size: sha256.Size, New: sha256.New})
	r.RegisterHash(HashModule{Name: SHA384, ID: 9, Size: sha512.Size384, New: sha512.New384})
	r.RegisterHash(HashModule{Name: SHA512, ID: 10, Size: sha512.Size, New: sha512.New})
	r.RegisterHash(HashModule{Name: MD4, Size: md4.Size, New: md4.New})
	r.RegisterHash(HashModule{Name: SHA3_256, Size: 32, New: func() hash.Hash { return sha3.New256() }})
}
