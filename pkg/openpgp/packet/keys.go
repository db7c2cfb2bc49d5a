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

package packet

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/bignum"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
)

// Packet versions of the legacy format.
const (
	Version2 byte = 2
	Version3 byte = 3
)

// PublicKey is a version 2 or 3 RSA public key packet:
//
//	version || created(u32) || validity(u16) || algorithm || MPI(n) || MPI(e)
type PublicKey struct {
	Version   byte
	Created   uint32
	Validity  uint16 // days, 0 for no expiry
	Algorithm pubkey.Algorithm
	Key       *rsa.PublicKey
}

// NewPublicKey returns a version 3 packet for key.
func NewPublicKey(key *rsa.PublicKey, created time.Time) *PublicKey {
	return &PublicKey{
		Version:   Version3,
		Created:   uint32(created.Unix()),
		Algorithm: pubkey.AlgRSA,
		Key:       key,
	}
}

func (pk *PublicKey) Type() Type { return TypePublicKey }

// KeyID returns the low 64 bits of the modulus.
func (pk *PublicKey) KeyID() uint64 { return pk.Key.KeyID() }

// ShortID returns the low 32 bits of the modulus.
func (pk *PublicKey) ShortID() uint32 { return uint32(pk.Key.KeyID()) }

// CreationTime returns Created as a time.
func (pk *PublicKey) CreationTime() time.Time { return time.Unix(int64(pk.Created), 0).UTC() }

// Body serializes the public key packet body.
func (pk *PublicKey) Body() ([]byte, error) {
	return pk.appendBody(nil)
}

func (pk *PublicKey) appendBody(b []byte) ([]byte, error) {
	if pk.Key == nil {
		return nil, fmt.Errorf("%w: public key packet without a key", ErrBadField)
	}
	if pk.Version != Version2 && pk.Version != Version3 {
		return nil, fmt.Errorf("%w: key version %d", ErrUnsupported, pk.Version)
	}
	b = append(b, pk.Version)
	b = binary.BigEndian.AppendUint32(b, pk.Created)
	b = binary.BigEndian.AppendUint16(b, pk.Validity)
	b = append(b, byte(pk.Algorithm))
	for _, v := range []*big.Int{pk.Key.N, pk.Key.E} {
		mpi, err := bignum.EncodeMPI(v)
		if err != nil {
			return nil, err
		}
		b = append(b, mpi...)
	}
	return b, nil
}

func parsePublicKey(body []byte) (*PublicKey, []byte, error) {
	if len(body) < 8 {
		return nil, nil, fmt.Errorf("%w: public key of %d bytes", ErrMalformed, len(body))
	}
	pk := &PublicKey{
		Version:   body[0],
		Created:   binary.BigEndian.Uint32(body[1:5]),
		Validity:  binary.BigEndian.Uint16(body[5:7]),
		Algorithm: pubkey.Algorithm(body[7]),
	}
	if pk.Version != Version2 && pk.Version != Version3 {
		return nil, nil, fmt.Errorf("%w: key version %d", ErrUnsupported, pk.Version)
	}
	switch pk.Algorithm {
	case pubkey.AlgRSA, pubkey.AlgRSAEncrypt, pubkey.AlgRSASign:
	default:
		return nil, nil, fmt.Errorf("%w: key algorithm %s", ErrUnsupported, pk.Algorithm)
	}
	n, rest, err := bignum.ParseMPI(body[8:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: modulus: %w", ErrMalformed, err)
	}
	e, rest, err := bignum.ParseMPI(rest)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: exponent: %w", ErrMalformed, err)
	}
	if n.Sign() == 0 || e.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: zero modulus or exponent", ErrMalformed)
	}
	pk.Key = &rsa.PublicKey{N: n, E: e}
	return pk, rest, nil
}

// SecretKey is a secret key packet: the public key fields followed by the
// protection cipher number and the secret integers d, p, q and u.
//
// With cipher 0 the integers are MPIs followed by their checksum. With a
// nonzero cipher the packet carries the IV, the enciphered integers and
// the checksum of the plaintext; see pubkey.Sealed.
type SecretKey struct {
	PublicKey
	Private *rsa.PrivateKey
}

// NewSecretKey returns a version 3 secret key packet for key.
func NewSecretKey(key *rsa.PrivateKey, created time.Time) *SecretKey {
	return &SecretKey{
		PublicKey: *NewPublicKey(key.Public(), created),
		Private:   key,
	}
}

func (sk *SecretKey) Type() Type { return TypeSecretKey }

// Public returns the public key packet of sk.
func (sk *SecretKey) Public() *PublicKey {
	pk := sk.PublicKey
	return &pk
}

// Body serializes the secret key packet body. A key that has ever been
// locked is written in its enciphered form, even while unlocked.
func (sk *SecretKey) Body() ([]byte, error) {
	if sk.Private == nil {
		return nil, fmt.Errorf("%w: secret key packet without a key", ErrBadField)
	}
	b, err := sk.appendBody(nil)
	if err != nil {
		return nil, err
	}

	if sealed := sk.Private.Secret().Sealed(); sealed != nil {
		b = append(b, sealed.CipherID)
		b = append(b, sealed.IV...)
		b = append(b, sealed.Body...)
		return binary.BigEndian.AppendUint16(b, sealed.Checksum), nil
	}

	d, p, q, u, err := sk.Private.Parts()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: secret key without p, q and u", ErrBadField)
	}
	b = append(b, 0)
	for _, v := range []*big.Int{d, p, q, u} {
		mpi, err := bignum.EncodeMPI(v)
		if err != nil {
			return nil, err
		}
		b = append(b, mpi...)
	}
	return binary.BigEndian.AppendUint16(b, pubkey.Checksum(d, p, q, u)), nil
}

func parseSecretKey(body []byte) (*SecretKey, error) {
	pk, rest, err := parsePublicKey(body)
	if err != nil {
		return nil, err
	}
	if len(rest) < 1 {
		return nil, fmt.Errorf("%w: secret key without cipher byte", ErrMalformed)
	}
	cipherID, rest := rest[0], rest[1:]

	if cipherID == 0 {
		var vals [4]*big.Int
		for i := range vals {
			if vals[i], rest, err = bignum.ParseMPI(rest); err != nil {
				return nil, fmt.Errorf("%w: secret integer %d: %w", ErrMalformed, i+1, err)
			}
		}
		if len(rest) != 2 {
			return nil, fmt.Errorf("%w: %d bytes after secret integers", ErrMalformed, len(rest))
		}
		if binary.BigEndian.Uint16(rest) != pubkey.Checksum(vals[:]...) {
			for _, v := range vals {
				bignum.Zeroize(v)
			}
			return nil, ErrBadChecksum
		}
		priv, err := rsa.NewPrivateKey(pk.Key.N, pk.Key.E, vals[0], vals[1], vals[2], vals[3])
		if err != nil {
			return nil, err
		}
		return &SecretKey{PublicKey: *pk, Private: priv}, nil
	}

	mod, err := provider.LookupBlockID(cipherID)
	if err != nil {
		return nil, fmt.Errorf("%w: secret key cipher %d", ErrUnsupported, cipherID)
	}
	bs := mod.BlockSize
	if len(rest) < bs+2 {
		return nil, fmt.Errorf("%w: enciphered secret key of %d bytes", ErrMalformed, len(rest))
	}
	sealed := &pubkey.Sealed{
		CipherID: cipherID,
		IV:       append([]byte(nil), rest[:bs]...),
		Body:     append([]byte(nil), rest[bs:len(rest)-2]...),
		Checksum: binary.BigEndian.Uint16(rest[len(rest)-2:]),
	}
	return &SecretKey{PublicKey: *pk, Private: rsa.NewLockedPrivateKey(*pk.Key, sealed)}, nil
}
