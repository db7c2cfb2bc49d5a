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

package message

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/keyring"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/signature"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider/idea"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
)

// Keys resolves the keys a message refers to. *keyring.Keyring satisfies
// it.
type Keys interface {
	// PrivateKey returns the usable private key for a recipient.
	PrivateKey(id uint64, passphrase []byte) (*rsa.PrivateKey, error)

	// Lookup returns the entry holding a signer's public key.
	Lookup(id uint64) (*keyring.Entry, error)
}

// Result is an opened message.
type Result struct {
	Plaintext []byte
	Filename  string
	ModTime   time.Time

	// Recipient is the key ID that opened the session key, zero for a
	// message that was not encrypted.
	Recipient uint64

	// Signed is set when the message carried a signature. SignatureErr is
	// nil only when that signature verified; a signer missing from Keys
	// yields keyring.ErrKeyNotFound.
	Signed       bool
	SignerKeyID  uint64
	SignatureErr error
}

// Decrypt opens a message built by Encrypt, deciphering with the first
// recipient whose secret key keys holds and checking any signature against
// keys. A nil keys opens only unencrypted messages.
func Decrypt(msg []byte, keys Keys, passphrase []byte) (_ *Result, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpDecrypt, "", start, err) }(time.Now())

	o := &opener{keys: keys, passphrase: passphrase, res: &Result{}}
	if err := o.walk(msg, 0); err != nil {
		return nil, err
	}
	if o.lit == nil {
		return nil, ErrNoPlaintext
	}
	res := o.res
	res.Plaintext = o.lit.Data
	res.Filename = o.lit.Filename
	res.ModTime = o.lit.ModTime()
	if o.sig != nil {
		res.Signed = true
		res.SignerKeyID = o.sig.KeyID
		res.SignatureErr = o.verify(res.Plaintext)
	}
	return res, nil
}

type opener struct {
	keys       Keys
	passphrase []byte
	res        *Result
	sig        *packet.Signature
	lit        *packet.Literal
}

// walk reads one layer of packets, descending into compressed and
// enciphered layers.
func (o *opener) walk(layer []byte, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: layers nested deeper than %d", packet.ErrMalformed, maxDepth)
	}
	ps, err := packet.ParseAll(layer)
	if err != nil {
		return err
	}

	var sessions []*packet.PKEncrypted
	for _, p := range ps {
		switch p := p.(type) {
		case *packet.PKEncrypted:
			sessions = append(sessions, p)
		case *packet.SymEncrypted:
			inner, err := o.decipher(sessions, p.Data)
			if err != nil {
				return err
			}
			if err := o.walk(inner, depth+1); err != nil {
				return err
			}
		case *packet.Compressed:
			inner, err := p.Decompress()
			if err != nil {
				return err
			}
			if err := o.walk(inner, depth+1); err != nil {
				return err
			}
		case *packet.Signature:
			if o.sig == nil {
				o.sig = p
			}
		case *packet.Literal:
			if o.lit != nil {
				return fmt.Errorf("%w: second literal packet", ErrUnexpectedPacket)
			}
			o.lit = p
		case *packet.Comment:
		default:
			return fmt.Errorf("%w: %s", ErrUnexpectedPacket, p.Type())
		}
	}
	return nil
}

// decipher recovers the session key from the first usable session key
// packet and deciphers data with it.
func (o *opener) decipher(sessions []*packet.PKEncrypted, data []byte) ([]byte, error) {
	if o.keys == nil {
		return nil, ErrNoRecipient
	}
	var last error
	for _, s := range sessions {
		key, err := o.keys.PrivateKey(s.KeyID, o.passphrase)
		if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, keyring.ErrNoSecretKey) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// Version 2 blocks imply an IDEA key and do not record its length.
		v := rsa.V3
		if s.Version == packet.Version2 {
			v = rsa.V2
		}
		cipherID, dek, err := key.DecryptSessionKey(v, s.Value, idea.KeySize)
		if err != nil {
			last = fmt.Errorf("%w: %w", ErrBadSessionKey, err)
			continue
		}
		out, err := open(cipherID, dek, data)
		clear(dek)
		if err != nil {
			last = err
			continue
		}
		o.res.Recipient = s.KeyID
		return out, nil
	}
	if last != nil {
		return nil, last
	}
	return nil, ErrNoRecipient
}

// open deciphers a PGP-CFB layer and checks its prefix.
func open(cipherID byte, key, data []byte) ([]byte, error) {
	mod, err := provider.LookupBlockID(cipherID)
	if err != nil {
		return nil, err
	}
	c, err := provider.NewCipher(mod.Name, key, provider.ModePGP, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSessionKey, err)
	}
	bs := mod.BlockSize
	if len(data) < bs+2 {
		return nil, fmt.Errorf("%w: enciphered data of %d bytes", packet.ErrMalformed, len(data))
	}
	prefix, err := c.Decrypt(data[:bs+2])
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(prefix[bs-2:bs], prefix[bs:]) {
		return nil, ErrBadSessionKey
	}
	if err := c.Sync(); err != nil {
		return nil, err
	}
	return c.Decrypt(data[bs+2:])
}

func (o *opener) verify(plaintext []byte) error {
	if o.keys == nil {
		return fmt.Errorf("%w: %016X", keyring.ErrKeyNotFound, o.sig.KeyID)
	}
	signer, err := o.keys.Lookup(o.sig.KeyID)
	if err != nil {
		return err
	}
	return signature.VerifyDocument(signer.Public.Key, o.sig, plaintext)
}
