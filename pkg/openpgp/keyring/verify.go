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

package keyring

import (
	"fmt"

	"github.com/jeremyhahn/go-pgpkit/pkg/logging"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/signature"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
)

// Check is the outcome of checking one signature on a key.
type Check struct {
	// UserID is the certified user ID, empty for a key revocation.
	UserID    string
	Signature *Signature

	// Err is nil for a valid signature. It wraps ErrKeyNotFound when the
	// signer is not in the keyring.
	Err error
}

// Valid reports whether the signature verified.
func (c Check) Valid() bool { return c.Err == nil }

// Check verifies every signature on the key id, resolving each signer
// through the keyring.
func (kr *Keyring) Check(id uint64) ([]Check, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	e, err := kr.lookupLocked(id)
	if err != nil {
		return nil, err
	}

	var out []Check
	for _, s := range e.Revocations {
		out = append(out, Check{Signature: s, Err: signature.VerifyKeyRevocation(s.Packet, e.Public)})
	}
	for _, u := range e.UserIDs {
		for _, s := range u.Signatures {
			c := Check{UserID: u.ID, Signature: s}
			signer, err := kr.lookupLocked(s.SignerID())
			if err != nil {
				c.Err = err
			} else {
				c.Err = signature.VerifyCertification(signer.Public.Key, s.Packet, e.Public, u.ID)
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// Revoked reports whether the key id carries a valid key compromise
// certificate.
func (kr *Keyring) Revoked(id uint64) (bool, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	e, err := kr.lookupLocked(id)
	if err != nil {
		return false, err
	}
	for _, s := range e.Revocations {
		if signature.VerifyKeyRevocation(s.Packet, e.Public) == nil {
			return true, nil
		}
	}
	return false, nil
}

// VerifyDocument checks a document signature against the signer's key in
// the keyring.
func (kr *Keyring) VerifyDocument(sig *packet.Signature, doc []byte) error {
	signer, err := kr.Lookup(sig.KeyID)
	if err != nil {
		return err
	}
	return signature.VerifyDocument(signer.Public.Key, sig, doc)
}

// VerifyTimestamp checks a timestamp signature against the signer's key in
// the keyring.
func (kr *Keyring) VerifyTimestamp(sig, target *packet.Signature) error {
	signer, err := kr.Lookup(sig.KeyID)
	if err != nil {
		return err
	}
	return signature.VerifyTimestamp(signer.Public.Key, sig, target)
}

// subject returns the public key packet of id after checking that it
// carries userID.
func (kr *Keyring) subject(id uint64, userID string) (*packet.PublicKey, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	e, err := kr.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	if _, err := e.UserID(userID); err != nil {
		return nil, err
	}
	return e.Public, nil
}

// attach appends sig to userID of key id, or to the key's revocations when
// userID is empty.
func (kr *Keyring) attach(id uint64, userID string, sig *packet.Signature) error {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	e, err := kr.lookupLocked(id)
	if err != nil {
		return err
	}
	_, known := kr.byID[sig.KeyID]
	s := &Signature{Packet: sig, Unresolved: !known}
	if userID == "" {
		e.Revocations = append(e.Revocations, s)
		return nil
	}
	u, err := e.UserID(userID)
	if err != nil {
		return err
	}
	u.Signatures = append(u.Signatures, s)
	return nil
}

// Certify signs userID on key id with signer and attaches the
// certification.
func (kr *Keyring) Certify(signer *rsa.PrivateKey, id uint64, userID string, class byte, opts *signature.Options) (*packet.Signature, error) {
	subject, err := kr.subject(id, userID)
	if err != nil {
		return nil, err
	}
	sig, err := signature.Certify(signer, subject, userID, class, opts)
	if err != nil {
		return nil, err
	}
	if err := kr.attach(subject.KeyID(), userID, sig); err != nil {
		return nil, err
	}
	kr.logger.Info("certified user ID", "key", logging.KeyID(subject.KeyID()),
		"user_id", userID, "signer", logging.KeyID(signer.KeyID()))
	return sig, nil
}

// RevokeCertification attaches signer's revocation of its certification of
// userID on key id.
func (kr *Keyring) RevokeCertification(signer *rsa.PrivateKey, id uint64, userID string, opts *signature.Options) (*packet.Signature, error) {
	subject, err := kr.subject(id, userID)
	if err != nil {
		return nil, err
	}
	sig, err := signature.RevokeCertification(signer, subject, userID, opts)
	if err != nil {
		return nil, err
	}
	if err := kr.attach(subject.KeyID(), userID, sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// Revoke attaches a key compromise certificate for key to its entry.
func (kr *Keyring) Revoke(key *rsa.PrivateKey, opts *signature.Options) (*packet.Signature, error) {
	e, err := kr.Lookup(key.KeyID())
	if err != nil {
		return nil, err
	}
	sig, err := signature.RevokeKey(key, e.Public, opts)
	if err != nil {
		return nil, err
	}
	if err := kr.attach(e.KeyID(), "", sig); err != nil {
		return nil, err
	}
	kr.logger.Warn("revoked key", "key", logging.KeyID(e.KeyID()))
	return sig, nil
}

// Timestamp signs target with signer, whose key must be in the keyring so
// that the timestamp can later be checked with VerifyTimestamp.
func (kr *Keyring) Timestamp(signer *rsa.PrivateKey, target *packet.Signature, opts *signature.Options) (*packet.Signature, error) {
	if _, err := kr.Lookup(signer.KeyID()); err != nil {
		return nil, fmt.Errorf("timestamp signer: %w", err)
	}
	return signature.Timestamp(signer, target, opts)
}
