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
	"fmt"
	"io"

	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
)

// Packet is a typed packet.
type Packet interface {
	// Type returns the packet type written in the CTB.
	Type() Type

	// Body returns the serialized packet body without its header.
	Body() ([]byte, error)
}

// Parse decodes a raw packet into its typed form. Errors concern only this
// packet's body.
func Parse(raw *Raw) (Packet, error) {
	body := raw.Body
	switch raw.Header.Type {
	case TypePKEncrypted:
		return parsePKEncrypted(body)
	case TypeSignature:
		return parseSignature(body)
	case TypeSecretKey:
		return parseSecretKey(body)
	case TypePublicKey:
		pk, rest, err := parsePublicKey(body)
		if err != nil {
			return nil, err
		}
		if len(rest) != 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes after public key", ErrMalformed, len(rest))
		}
		return pk, nil
	case TypeCompressed:
		return parseCompressed(body)
	case TypeSymEncrypted:
		return &SymEncrypted{Data: bytes.Clone(body)}, nil
	case TypeLiteral:
		return parseLiteral(body)
	case TypeTrust:
		return parseTrust(body)
	case TypeUserID:
		return &UserID{ID: string(body)}, nil
	case TypeComment:
		return &Comment{Text: string(body)}, nil
	}
	return nil, fmt.Errorf("%w: packet %s", ErrUnsupported, raw.Header.Type)
}

// Read returns the next typed packet from pr.
func Read(pr *Reader) (Packet, error) {
	raw, err := pr.Next()
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// ParseAll splits b into packets and parses every one.
func ParseAll(b []byte) ([]Packet, error) {
	pr := NewBytesReader(b)
	var out []Packet
	for {
		p, err := Read(pr)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
}

// Append appends the framed packet p to b.
func Append(b []byte, p Packet) ([]byte, error) {
	body, err := p.Body()
	if err != nil {
		return nil, err
	}
	b, err = AppendHeader(b, p.Type(), len(body))
	if err != nil {
		return nil, err
	}
	metrics.RecordPacket(p.Type().String(), metrics.DirectionWrite)
	return append(b, body...), nil
}

// Marshal returns the framed packet p.
func Marshal(p Packet) ([]byte, error) {
	return Append(nil, p)
}

// Write writes the framed packet p to w.
func Write(w io.Writer, p Packet) error {
	b, err := Marshal(p)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// MarshalAll frames every packet in order.
func MarshalAll(ps ...Packet) ([]byte, error) {
	var (
		out []byte
		err error
	)
	for _, p := range ps {
		if out, err = Append(out, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}
