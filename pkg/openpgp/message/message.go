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

// Package message composes and opens encrypted, signed and compressed
// messages in the legacy packet format.
//
// A message is built from the inside out:
//
//	Literal                     the plaintext
//	Signature || Literal        when a signer is given
//	Compressed(...)             when compression is enabled
//	SymEncrypted(...)           under a random session key
//	PKEncrypted... || SymEncrypted
//	                            one session key packet per recipient
//
// The enciphered layer uses PGP-CFB: a block of random bytes whose last two
// bytes are repeated, a resync, then the data. The repeated bytes let a
// reader reject a wrong session key before deciphering the rest.
package message

import (
	"fmt"
	"io"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/signature"
	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
)

const (
	// DefaultCipher enciphers the message body when Options.Cipher is
	// empty.
	DefaultCipher = provider.IDEA

	// maxDepth bounds the nesting of compressed and encrypted layers.
	maxDepth = 8
)

var (
	// ErrBadSessionKey is returned when the session key does not pass the
	// quick check of the enciphered prefix.
	ErrBadSessionKey = pgperr.New(pgperr.KindCrypto, "message: bad session key")

	// ErrNoRecipient is returned when no session key packet is addressed to
	// an available secret key.
	ErrNoRecipient = pgperr.New(pgperr.KindState, "message: no secret key for any recipient")

	// ErrNoPlaintext is returned for a message without literal data.
	ErrNoPlaintext = pgperr.New(pgperr.KindFormat, "message: no literal data")

	// ErrUnexpectedPacket is returned for a packet that cannot occur in a
	// message.
	ErrUnexpectedPacket = pgperr.New(pgperr.KindFormat, "message: unexpected packet")

	// ErrNoRandom is returned when an operation needs randomness and
	// Options.Rand is nil.
	ErrNoRandom = pgperr.New(pgperr.KindState, "message: no random source")
)

// Options controls message construction.
type Options struct {
	// Signer, when set, signs the plaintext.
	Signer *rsa.PrivateKey

	// Hash is the signature digest, signature.DefaultHash when empty.
	Hash string

	// Compression is a provider compression number; zero disables it.
	Compression byte

	// Cipher is the provider block cipher name, DefaultCipher when empty.
	Cipher string

	// Version selects the session key and signature padding, rsa.V3 when
	// zero. Version 2 session keys can only carry IDEA keys.
	Version rsa.Version

	// Filename is recorded in the literal packet.
	Filename string

	// Time stamps the literal packet and the signature, now when zero.
	Time time.Time

	// SessionKey fixes the session key instead of drawing one from Rand.
	SessionKey []byte

	// Rand supplies the session key, the cipher prefix, the padding
	// filler and signature blinding.
	Rand io.Reader
}

func (o *Options) resolve() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Cipher == "" {
		out.Cipher = DefaultCipher
	}
	if out.Version == 0 {
		out.Version = rsa.V3
	}
	if out.Time.IsZero() {
		out.Time = time.Now()
	}
	return out
}

// Encrypt builds a message carrying plaintext. With no recipients the
// result is the signed and compressed packet stream without encryption.
func Encrypt(plaintext []byte, recipients []*rsa.PublicKey, opts *Options) (_ []byte, err error) {
	o := opts.resolve()
	defer func(start time.Time) { metrics.Observe(metrics.OpEncrypt, o.Cipher, start, err) }(time.Now())

	lit := packet.NewLiteral(plaintext, o.Time)
	lit.Filename = o.Filename
	var inner []packet.Packet
	if o.Signer != nil {
		sig, err := signature.SignDocument(o.Signer, plaintext, &signature.Options{
			Version: o.Version,
			Hash:    o.Hash,
			Time:    o.Time,
			Rand:    o.Rand,
		})
		if err != nil {
			return nil, fmt.Errorf("message: signing: %w", err)
		}
		inner = append(inner, sig)
	}
	body, err := packet.MarshalAll(append(inner, lit)...)
	if err != nil {
		return nil, err
	}

	if o.Compression != provider.CompressionNone {
		c, err := packet.NewCompressed(o.Compression, body)
		if err != nil {
			return nil, err
		}
		if body, err = packet.Marshal(c); err != nil {
			return nil, err
		}
	}
	if len(recipients) == 0 {
		return body, nil
	}
	if o.Rand == nil {
		return nil, ErrNoRandom
	}
	return seal(body, recipients, &o)
}

// seal enciphers body under a session key and prepends one session key
// packet per recipient.
func seal(body []byte, recipients []*rsa.PublicKey, o *Options) ([]byte, error) {
	mod, err := provider.LookupBlock(o.Cipher)
	if err != nil {
		return nil, err
	}
	if mod.ID == 0 {
		return nil, fmt.Errorf("%w: %s has no packet algorithm number", provider.ErrUnknownCipher, mod.Name)
	}
	if o.Version == rsa.V2 && mod.ID != pubkey.DefaultLockCipher {
		return nil, fmt.Errorf("%w: version 2 session keys imply IDEA, not %s", packet.ErrUnsupported, mod.Name)
	}

	dek := o.SessionKey
	if dek == nil {
		size := mod.KeySize
		if size == 0 {
			size = min(16, mod.MaxKey)
		}
		dek = make([]byte, size)
		if _, err := io.ReadFull(o.Rand, dek); err != nil {
			return nil, fmt.Errorf("message: session key: %w", err)
		}
		defer clear(dek)
	}

	var out []byte
	for _, pub := range recipients {
		c, err := pub.EncryptSessionKey(o.Version, mod.ID, dek, o.Rand)
		if err != nil {
			return nil, fmt.Errorf("message: session key for %016X: %w", pub.KeyID(), err)
		}
		pke := &packet.PKEncrypted{
			Version:   byte(o.Version),
			KeyID:     pub.KeyID(),
			Algorithm: pubkey.AlgRSA,
			Value:     c,
		}
		if out, err = packet.Append(out, pke); err != nil {
			return nil, err
		}
	}

	data, err := encipher(mod, dek, body, o.Rand)
	if err != nil {
		return nil, err
	}
	return packet.Append(out, &packet.SymEncrypted{Data: data})
}

// encipher runs PGP-CFB over a random check prefix followed by body.
func encipher(mod provider.BlockModule, key, body []byte, rng io.Reader) ([]byte, error) {
	c, err := provider.NewCipher(mod.Name, key, provider.ModePGP, nil)
	if err != nil {
		return nil, err
	}
	bs := mod.BlockSize
	prefix := make([]byte, bs+2)
	if _, err := io.ReadFull(rng, prefix[:bs]); err != nil {
		return nil, fmt.Errorf("message: cipher prefix: %w", err)
	}
	copy(prefix[bs:], prefix[bs-2:bs])

	head, err := c.Encrypt(prefix)
	if err != nil {
		return nil, err
	}
	if err := c.Sync(); err != nil {
		return nil, err
	}
	tail, err := c.Encrypt(body)
	if err != nil {
		return nil, err
	}
	return append(head, tail...), nil
}
