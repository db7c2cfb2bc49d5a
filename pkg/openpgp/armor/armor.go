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

// Package armor converts packet streams to and from the ASCII armor
// envelope: a BEGIN line, optional headers, base64 lines of 48 input
// bytes, a CRC-24 checksum line and an END line.
package armor

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	pgparmor "github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
)

// Block types.
const (
	TypeMessage   = "PGP MESSAGE"
	TypePublicKey = "PGP PUBLIC KEY BLOCK"
	TypeSecretKey = "PGP SECRET KEY BLOCK"
	TypeSignature = "PGP SIGNATURE"
)

var (
	// ErrNoArmor is returned when the input holds no armored block.
	ErrNoArmor = pgperr.New(pgperr.KindFormat, "armor: no armored block")

	// ErrCorrupt is returned for bad base64, a bad checksum or a missing
	// END line.
	ErrCorrupt = pgperr.New(pgperr.KindFormat, "armor: corrupt block")
)

// Block is a decoded armored block.
type Block struct {
	Type    string
	Headers map[string]string
	Body    []byte
}

// Encode writes data to w as an armored block of blockType.
func Encode(w io.Writer, blockType string, headers map[string]string, data []byte) error {
	aw, err := pgparmor.Encode(w, blockType, headers)
	if err != nil {
		return fmt.Errorf("armor: %w", err)
	}
	if _, err := aw.Write(data); err != nil {
		return fmt.Errorf("armor: %w", err)
	}
	return aw.Close()
}

// Marshal returns data as an armored block of blockType.
func Marshal(blockType string, headers map[string]string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, blockType, headers, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads the first armored block from r.
func Decode(r io.Reader) (*Block, error) {
	b, err := pgparmor.Decode(r)
	if errors.Is(err, io.EOF) {
		return nil, ErrNoArmor
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	body, err := io.ReadAll(io.LimitReader(b.Body, packet.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if len(body) > packet.MaxBodySize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrCorrupt, packet.MaxBodySize)
	}
	return &Block{Type: b.Type, Headers: b.Header, Body: body}, nil
}

// Unmarshal decodes the first armored block in b.
func Unmarshal(b []byte) (*Block, error) {
	return Decode(bytes.NewReader(b))
}

// TypeFor names the block type for a packet stream from its first packet.
func TypeFor(data []byte) string {
	h, err := packet.ReadHeader(bytes.NewReader(data))
	if err != nil {
		return TypeMessage
	}
	switch h.Type {
	case packet.TypePublicKey:
		return TypePublicKey
	case packet.TypeSecretKey:
		return TypeSecretKey
	case packet.TypeSignature:
		return TypeSignature
	}
	return TypeMessage
}

// IsArmored reports whether b starts, after leading white space, with an
// armor BEGIN line.
func IsArmored(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(b, " \t\r\n"), []byte("-----BEGIN "))
}
