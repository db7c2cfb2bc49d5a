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
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
)

// Signature classes.
const (
	ClassBinary         byte = 0x00
	ClassText           byte = 0x01
	ClassCertGeneric    byte = 0x10
	ClassCertPersona    byte = 0x11
	ClassCertCasual     byte = 0x12
	ClassCertPositive   byte = 0x13
	ClassKeyCompromise  byte = 0x20
	ClassCertRevocation byte = 0x30
	ClassTimestamp      byte = 0x40
)

// IsCertification reports whether class binds a user ID to a key.
func IsCertification(class byte) bool {
	return class >= ClassCertGeneric && class <= ClassCertPositive
}

// hashedLength is the only hashed material length the legacy format uses:
// the class byte and the four timestamp bytes.
const hashedLength = 5

// Signature is a version 2 or 3 RSA signature packet:
//
//	version || 5 || class || created(u32) || signer(u64) || algorithm ||
//	hash || clue(2) || MPI(signature)
type Signature struct {
	Version   byte
	Class     byte
	Created   uint32
	KeyID     uint64
	Algorithm pubkey.Algorithm
	Hash      byte
	HashClue  [2]byte
	Value     *big.Int
}

func (s *Signature) Type() Type { return TypeSignature }

// CreationTime returns Created as a time.
func (s *Signature) CreationTime() time.Time { return time.Unix(int64(s.Created), 0).UTC() }

// HashedSuffix returns the bytes appended to the signed material: the
// class followed by the big-endian creation time.
func (s *Signature) HashedSuffix() []byte {
	return binary.BigEndian.AppendUint32([]byte{s.Class}, s.Created)
}

// Body serializes the signature packet body.
func (s *Signature) Body() ([]byte, error) {
	if s.Value == nil {
		return nil, fmt.Errorf("%w: signature without a value", ErrBadField)
	}
	if s.Version != Version2 && s.Version != Version3 {
		return nil, fmt.Errorf("%w: signature version %d", ErrUnsupported, s.Version)
	}
	b := []byte{s.Version, hashedLength, s.Class}
	b = binary.BigEndian.AppendUint32(b, s.Created)
	b = binary.BigEndian.AppendUint64(b, s.KeyID)
	b = append(b, byte(s.Algorithm), s.Hash, s.HashClue[0], s.HashClue[1])
	mpi, err := bignum.EncodeMPI(s.Value)
	if err != nil {
		return nil, err
	}
	return append(b, mpi...), nil
}

func parseSignature(body []byte) (*Signature, error) {
	const fixed = 19
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: signature of %d bytes", ErrMalformed, len(body))
	}
	s := &Signature{Version: body[0]}
	if s.Version != Version2 && s.Version != Version3 {
		return nil, fmt.Errorf("%w: signature version %d", ErrUnsupported, s.Version)
	}
	if body[1] != hashedLength {
		return nil, fmt.Errorf("%w: hashed length %d", ErrBadSignatureFormat, body[1])
	}
	if len(body) < fixed {
		return nil, fmt.Errorf("%w: signature of %d bytes", ErrMalformed, len(body))
	}
	s.Class = body[2]
	s.Created = binary.BigEndian.Uint32(body[3:7])
	s.KeyID = binary.BigEndian.Uint64(body[7:15])
	s.Algorithm = pubkey.Algorithm(body[15])
	s.Hash = body[16]
	copy(s.HashClue[:], body[17:19])
	switch s.Algorithm {
	case pubkey.AlgRSA, pubkey.AlgRSASign:
	default:
		return nil, fmt.Errorf("%w: signature algorithm %s", ErrUnsupported, s.Algorithm)
	}
	v, rest, err := bignum.ParseMPI(body[fixed:])
	if err != nil {
		return nil, fmt.Errorf("%w: signature value: %w", ErrMalformed, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after signature", ErrMalformed, len(rest))
	}
	s.Value = v
	return s, nil
}
