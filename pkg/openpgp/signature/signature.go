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

// Package signature creates and checks legacy OpenPGP signatures.
//
// A signature covers H(material || class || created), where the material
// depends on the class:
//
//	0x00, 0x01  the document
//	0x10..0x13  the signed key's public key packet with its 2-byte length
//	            header, then the user ID bytes
//	0x20        the key's public key packet (self-signed revocation)
//	0x30        as 0x10..0x13, revoking an earlier certification
//	0x40        the framed signature packet being timestamped
//
// The digest is padded and signed with RSA. Verification first compares
// the two-byte hash clue with the recomputed digest, then recovers the
// digest from the signature and compares it in constant time.
package signature

import (
	"crypto/subtle"
	"fmt"
	"io"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
)

// DefaultHash is the digest used when Options.Hash is empty.
const DefaultHash = provider.MD5

var (
	// ErrWrongClass is returned when a signature's class does not fit the
	// requested check.
	ErrWrongClass = pgperr.New(pgperr.KindDomain, "signature: wrong class")

	// ErrNotSelfSigned is returned for a key revocation not made by the
	// key it revokes.
	ErrNotSelfSigned = pgperr.New(pgperr.KindCrypto, "signature: not self-signed")
)

// Options controls signature creation. The zero value signs with MD5,
// version 3 padding, the current time and no blinding.
type Options struct {
	// Version selects the packet version and padding layout.
	Version rsa.Version

	// Hash is a provider hash name with an OpenPGP algorithm number.
	Hash string

	// Time is the signature creation time.
	Time time.Time

	// Rand, when set, blinds the private key operation.
	Rand io.Reader
}

func (o *Options) resolve() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Version == 0 {
		out.Version = rsa.V3
	}
	if out.Hash == "" {
		out.Hash = DefaultHash
	}
	if out.Time.IsZero() {
		out.Time = time.Now()
	}
	return out
}

// Sign signs material under class with key.
func Sign(key *rsa.PrivateKey, class byte, material []byte, opts *Options) (_ *packet.Signature, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpSign, "RSA", start, err) }(time.Now())
	return sign(key, class, material, opts)
}

func sign(key *rsa.PrivateKey, class byte, material []byte, opts *Options) (*packet.Signature, error) {
	o := opts.resolve()
	mod, err := provider.LookupHash(o.Hash)
	if err != nil {
		return nil, err
	}
	if mod.ID == 0 {
		return nil, fmt.Errorf("%w: %s has no packet algorithm number", provider.ErrUnknownHash, mod.Name)
	}
	sig := &packet.Signature{
		Version:   byte(o.Version),
		Class:     class,
		Created:   uint32(o.Time.Unix()),
		KeyID:     key.KeyID(),
		Algorithm: pubkey.AlgRSA,
		Hash:      mod.ID,
	}
	digest, err := digestFor(mod, sig, material)
	if err != nil {
		return nil, err
	}
	copy(sig.HashClue[:], digest)
	if sig.Value, err = key.SignDigest(o.Version, mod.Name, digest, o.Rand); err != nil {
		return nil, err
	}
	return sig, nil
}

// Verify checks sig over material with pub. It returns
// pubkey.ErrBadSignature for any mismatch.
func Verify(pub *rsa.PublicKey, sig *packet.Signature, material []byte) (err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpVerify, "RSA", start, err) }(time.Now())

	mod, err := provider.LookupHashID(sig.Hash)
	if err != nil {
		return err
	}
	digest, err := digestFor(mod, sig, material)
	if err != nil {
		return err
	}
	if digest[0] != sig.HashClue[0] || digest[1] != sig.HashClue[1] {
		return fmt.Errorf("%w: hash clue mismatch", pubkey.ErrBadSignature)
	}
	got, err := pub.RecoverDigest(paddingVersion(sig), mod.Name, len(digest), sig.Value)
	if err != nil {
		return fmt.Errorf("%w: %w", pubkey.ErrBadSignature, err)
	}
	if subtle.ConstantTimeCompare(got, digest) != 1 {
		return pubkey.ErrBadSignature
	}
	return nil
}

func paddingVersion(sig *packet.Signature) rsa.Version {
	if sig.Version == packet.Version2 {
		return rsa.V2
	}
	return rsa.V3
}

func digestFor(mod provider.HashModule, sig *packet.Signature, material []byte) ([]byte, error) {
	h, err := provider.NewHash(mod.Name, material)
	if err != nil {
		return nil, err
	}
	h.Update(sig.HashedSuffix())
	return h.Digest(), nil
}

// KeyMaterial returns the public key packet of pk framed with a 2-byte
// length header, as it is hashed by certifications and revocations.
func KeyMaterial(pk *packet.PublicKey) ([]byte, error) {
	return packet.Marshal(pk)
}

// CertificationMaterial returns the key material followed by the user ID.
func CertificationMaterial(pk *packet.PublicKey, userID string) ([]byte, error) {
	b, err := KeyMaterial(pk)
	if err != nil {
		return nil, err
	}
	return append(b, userID...), nil
}

// TimestampMaterial returns the framed signature packet that a timestamp
// signature covers.
func TimestampMaterial(target *packet.Signature) ([]byte, error) {
	return packet.Marshal(target)
}

// SignDocument makes a binary document signature.
func SignDocument(key *rsa.PrivateKey, doc []byte, opts *Options) (*packet.Signature, error) {
	return Sign(key, packet.ClassBinary, doc, opts)
}

// VerifyDocument checks a document signature.
func VerifyDocument(pub *rsa.PublicKey, sig *packet.Signature, doc []byte) error {
	if sig.Class != packet.ClassBinary && sig.Class != packet.ClassText {
		return fmt.Errorf("%w: 0x%02x is not a document signature", ErrWrongClass, sig.Class)
	}
	return Verify(pub, sig, doc)
}

// Certify binds userID to subject with a certification of the given class.
func Certify(signer *rsa.PrivateKey, subject *packet.PublicKey, userID string, class byte, opts *Options) (_ *packet.Signature, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpCertify, "RSA", start, err) }(time.Now())
	if !packet.IsCertification(class) {
		return nil, fmt.Errorf("%w: 0x%02x is not a certification", ErrWrongClass, class)
	}
	material, err := CertificationMaterial(subject, userID)
	if err != nil {
		return nil, err
	}
	return sign(signer, class, material, opts)
}

// VerifyCertification checks a certification or certification revocation
// of userID on subject.
func VerifyCertification(pub *rsa.PublicKey, sig *packet.Signature, subject *packet.PublicKey, userID string) error {
	if !packet.IsCertification(sig.Class) && sig.Class != packet.ClassCertRevocation {
		return fmt.Errorf("%w: 0x%02x does not cover a user ID", ErrWrongClass, sig.Class)
	}
	material, err := CertificationMaterial(subject, userID)
	if err != nil {
		return err
	}
	return Verify(pub, sig, material)
}

// RevokeKey makes a key compromise certificate. key must be the private
// half of subject.
func RevokeKey(key *rsa.PrivateKey, subject *packet.PublicKey, opts *Options) (_ *packet.Signature, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpRevoke, "RSA", start, err) }(time.Now())
	if !key.Public().Equal(subject.Key) {
		return nil, ErrNotSelfSigned
	}
	material, err := KeyMaterial(subject)
	if err != nil {
		return nil, err
	}
	return sign(key, packet.ClassKeyCompromise, material, opts)
}

// VerifyKeyRevocation checks a key compromise certificate on subject.
// Only the subject itself may revoke it.
func VerifyKeyRevocation(sig *packet.Signature, subject *packet.PublicKey) error {
	if sig.Class != packet.ClassKeyCompromise {
		return fmt.Errorf("%w: 0x%02x is not a key revocation", ErrWrongClass, sig.Class)
	}
	if sig.KeyID != subject.KeyID() {
		return ErrNotSelfSigned
	}
	material, err := KeyMaterial(subject)
	if err != nil {
		return err
	}
	return Verify(subject.Key, sig, material)
}

// RevokeCertification withdraws signer's earlier certification of userID
// on subject.
func RevokeCertification(signer *rsa.PrivateKey, subject *packet.PublicKey, userID string, opts *Options) (_ *packet.Signature, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpRevoke, "RSA", start, err) }(time.Now())
	material, err := CertificationMaterial(subject, userID)
	if err != nil {
		return nil, err
	}
	return sign(signer, packet.ClassCertRevocation, material, opts)
}

// Timestamp signs an existing signature packet.
func Timestamp(signer *rsa.PrivateKey, target *packet.Signature, opts *Options) (*packet.Signature, error) {
	material, err := TimestampMaterial(target)
	if err != nil {
		return nil, err
	}
	return Sign(signer, packet.ClassTimestamp, material, opts)
}

// VerifyTimestamp checks a timestamp signature over target.
func VerifyTimestamp(pub *rsa.PublicKey, sig, target *packet.Signature) error {
	if sig.Class != packet.ClassTimestamp {
		return fmt.Errorf("%w: 0x%02x is not a timestamp", ErrWrongClass, sig.Class)
	}
	material, err := TimestampMaterial(target)
	if err != nil {
		return err
	}
	return Verify(pub, sig, material)
}
