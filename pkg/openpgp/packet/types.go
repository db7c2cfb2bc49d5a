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
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/bignum"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
)

// PKEncrypted carries a session key encrypted to one recipient:
//
//	version || recipient(u64) || algorithm || MPI(encrypted block)
type PKEncrypted struct {
	Version   byte
	KeyID     uint64
	Algorithm pubkey.Algorithm
	Value     *big.Int
}

func (p *PKEncrypted) Type() Type { return TypePKEncrypted }

// Body serializes the packet body.
func (p *PKEncrypted) Body() ([]byte, error) {
	if p.Value == nil {
		return nil, fmt.Errorf("%w: encrypted session key without a value", ErrBadField)
	}
	b := binary.BigEndian.AppendUint64([]byte{p.Version}, p.KeyID)
	b = append(b, byte(p.Algorithm))
	mpi, err := bignum.EncodeMPI(p.Value)
	if err != nil {
		return nil, err
	}
	return append(b, mpi...), nil
}

func parsePKEncrypted(body []byte) (*PKEncrypted, error) {
	if len(body) < 10 {
		return nil, fmt.Errorf("%w: encrypted session key of %d bytes", ErrMalformed, len(body))
	}
	p := &PKEncrypted{
		Version:   body[0],
		KeyID:     binary.BigEndian.Uint64(body[1:9]),
		Algorithm: pubkey.Algorithm(body[9]),
	}
	if p.Version != Version2 && p.Version != Version3 {
		return nil, fmt.Errorf("%w: encrypted session key version %d", ErrUnsupported, p.Version)
	}
	switch p.Algorithm {
	case pubkey.AlgRSA, pubkey.AlgRSAEncrypt:
	default:
		return nil, fmt.Errorf("%w: session key algorithm %s", ErrUnsupported, p.Algorithm)
	}
	v, rest, err := bignum.ParseMPI(body[10:])
	if err != nil {
		return nil, fmt.Errorf("%w: encrypted session key: %w", ErrMalformed, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after session key", ErrMalformed, len(rest))
	}
	p.Value = v
	return p, nil
}

// Compressed holds a compressed packet stream. Data is the compressed
// payload exactly as it appears on the wire.
type Compressed struct {
	Algorithm byte
	Data      []byte
}

// NewCompressed compresses inner with algorithm, one of the provider
// compression numbers other than CompressionNone.
func NewCompressed(algorithm byte, inner []byte) (*Compressed, error) {
	if !provider.Known(algorithm) {
		return nil, fmt.Errorf("%w: compression algorithm %d", ErrUnsupported, algorithm)
	}
	data, err := provider.Compress(algorithm, inner)
	if err != nil {
		return nil, err
	}
	return &Compressed{Algorithm: algorithm, Data: data}, nil
}

func (c *Compressed) Type() Type { return TypeCompressed }

// Body serializes the packet body.
func (c *Compressed) Body() ([]byte, error) {
	return append([]byte{c.Algorithm}, c.Data...), nil
}

// Decompress returns the packet stream inside c.
func (c *Compressed) Decompress() ([]byte, error) {
	return provider.Decompress(c.Algorithm, c.Data)
}

func parseCompressed(body []byte) (*Compressed, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("%w: empty compressed packet", ErrMalformed)
	}
	if !provider.Known(body[0]) {
		return nil, fmt.Errorf("%w: compression algorithm %d", ErrUnsupported, body[0])
	}
	return &Compressed{Algorithm: body[0], Data: bytes.Clone(body[1:])}, nil
}

// SymEncrypted holds a packet stream enciphered under a session key in
// PGP-CFB mode, including its random prefix.
type SymEncrypted struct {
	Data []byte
}

func (s *SymEncrypted) Type() Type { return TypeSymEncrypted }

// Body returns Data.
func (s *SymEncrypted) Body() ([]byte, error) { return s.Data, nil }

// Literal data modes.
const (
	LiteralBinary byte = 'b'
	LiteralText   byte = 't'
)

// Literal wraps the plaintext of a message:
//
//	mode || len(name)(u8) || name || created(u32) || data
type Literal struct {
	Mode     byte
	Filename string
	Created  uint32
	Data     []byte
}

// NewLiteral returns a binary literal packet without a file name.
func NewLiteral(data []byte, created time.Time) *Literal {
	return &Literal{Mode: LiteralBinary, Created: uint32(created.Unix()), Data: data}
}

func (l *Literal) Type() Type { return TypeLiteral }

// ModTime returns Created as a time.
func (l *Literal) ModTime() time.Time { return time.Unix(int64(l.Created), 0).UTC() }

// Body serializes the packet body.
func (l *Literal) Body() ([]byte, error) {
	if len(l.Filename) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: file name of %d bytes", ErrBadField, len(l.Filename))
	}
	b := make([]byte, 0, 6+len(l.Filename)+len(l.Data))
	b = append(b, l.Mode, byte(len(l.Filename)))
	b = append(b, l.Filename...)
	b = binary.BigEndian.AppendUint32(b, l.Created)
	return append(b, l.Data...), nil
}

func parseLiteral(body []byte) (*Literal, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: literal of %d bytes", ErrMalformed, len(body))
	}
	n := int(body[1])
	if len(body) < 2+n+4 {
		return nil, fmt.Errorf("%w: literal of %d bytes", ErrMalformed, len(body))
	}
	return &Literal{
		Mode:     body[0],
		Filename: string(body[2 : 2+n]),
		Created:  binary.BigEndian.Uint32(body[2+n : 6+n]),
		Data:     bytes.Clone(body[6+n:]),
	}, nil
}

// Trust is the one-byte trust record a keyring attaches to a key or user ID.
type Trust struct {
	Flags byte
}

func (t *Trust) Type() Type { return TypeTrust }

// Body returns the flag byte.
func (t *Trust) Body() ([]byte, error) { return []byte{t.Flags}, nil }

func parseTrust(body []byte) (*Trust, error) {
	if len(body) != 1 {
		return nil, fmt.Errorf("%w: trust of %d bytes", ErrMalformed, len(body))
	}
	return &Trust{Flags: body[0]}, nil
}

// UserID names the holder of a key.
type UserID struct {
	ID string
}

func (u *UserID) Type() Type { return TypeUserID }

// Body returns the user ID bytes.
func (u *UserID) Body() ([]byte, error) { return []byte(u.ID), nil }

// Comment is free text ignored by readers.
type Comment struct {
	Text string
}

func (c *Comment) Type() Type { return TypeComment }

// Body returns the comment bytes.
func (c *Comment) Body() ([]byte, error) { return []byte(c.Text), nil }
