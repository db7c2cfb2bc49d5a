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

// Package keyring assembles legacy OpenPGP keyrings from packet streams and
// maintains the signatures on their user IDs.
//
// A keyring file is a concatenation of packets. Each key packet starts an
// entry; user ID packets attach to the current entry; trust packets attach
// to the current user ID, or to the key when no user ID has been seen yet;
// signature packets attach to the current user ID. A key compromise
// certificate directly after a key attaches to the key. Any other
// signature without a user ID is logged and dropped.
//
// Entries are indexed by their 64-bit key ID and by its low 32 bits.
// Signatures refer to their signer by key ID only and are resolved
// through the keyring each time they are checked; a signature whose
// signer is not present is kept and marked unresolved.
//
// Parsing stages every entry and links them only after the whole stream
// was accepted, so a failed import leaves the keyring unchanged.
package keyring

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/logging"
	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/signature"
	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
)

var (
	// ErrUnexpectedPacket is returned for a packet type that cannot occur
	// in a keyring, or a user ID or trust packet before any key.
	ErrUnexpectedPacket = pgperr.New(pgperr.KindFormat, "keyring: unexpected packet")

	// ErrKeyNotFound is returned when a key ID is not in the keyring.
	ErrKeyNotFound = pgperr.New(pgperr.KindDomain, "keyring: key not found")

	// ErrUserIDNotFound is returned when a key has no such user ID.
	ErrUserIDNotFound = pgperr.New(pgperr.KindDomain, "keyring: user ID not found")

	// ErrNoSecretKey is returned when a private operation needs a key the
	// keyring only holds in public form.
	ErrNoSecretKey = pgperr.New(pgperr.KindState, "keyring: no secret key")

	// ErrNotSelfSigned is returned for a key revocation not made by the key
	// it revokes.
	ErrNotSelfSigned = signature.ErrNotSelfSigned
)

// Signature is a signature held by a keyring.
type Signature struct {
	Packet *packet.Signature

	// Unresolved is set when the signer was not in the keyring the last
	// time signatures were resolved.
	Unresolved bool
}

// SignerID returns the key ID of the signer.
func (s *Signature) SignerID() uint64 { return s.Packet.KeyID }

// UserID is a user ID with its trust record and signatures.
type UserID struct {
	ID         string
	Trust      *packet.Trust
	Signatures []*Signature
}

// Entry is one key with its user IDs. Entries returned by a Keyring are
// owned by it and must not be modified.
type Entry struct {
	Public *packet.PublicKey

	// Secret is set for entries read from a secret keyring.
	Secret *packet.SecretKey

	Trust       *packet.Trust
	Revocations []*Signature
	UserIDs     []*UserID
}

// NewEntry returns an entry for a public key.
func NewEntry(pk *packet.PublicKey) *Entry {
	return &Entry{Public: pk}
}

// NewSecretEntry returns an entry for a secret key.
func NewSecretEntry(sk *packet.SecretKey) *Entry {
	return &Entry{Public: sk.Public(), Secret: sk}
}

// KeyID returns the entry's 64-bit key ID.
func (e *Entry) KeyID() uint64 { return e.Public.KeyID() }

// IsSecret reports whether the entry holds a secret key.
func (e *Entry) IsSecret() bool { return e.Secret != nil }

// PrimaryUserID returns the first user ID, or "".
func (e *Entry) PrimaryUserID() string {
	if len(e.UserIDs) == 0 {
		return ""
	}
	return e.UserIDs[0].ID
}

// AddUserID appends a user ID and returns it.
func (e *Entry) AddUserID(id string) *UserID {
	u := &UserID{ID: id}
	e.UserIDs = append(e.UserIDs, u)
	return u
}

// UserID returns the named user ID.
func (e *Entry) UserID(id string) (*UserID, error) {
	for _, u := range e.UserIDs {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %q on %s", ErrUserIDNotFound, id, logging.KeyID(e.KeyID()))
}

func (e *Entry) keyPacket() packet.Packet {
	if e.Secret != nil {
		return e.Secret
	}
	return e.Public
}

func (e *Entry) signatures() []*Signature {
	out := append([]*Signature(nil), e.Revocations...)
	for _, u := range e.UserIDs {
		out = append(out, u.Signatures...)
	}
	return out
}

// appendPackets frames the entry in keyring order.
func (e *Entry) appendPackets(b []byte) ([]byte, error) {
	ps := []packet.Packet{e.keyPacket()}
	if e.Trust != nil {
		ps = append(ps, e.Trust)
	}
	for _, s := range e.Revocations {
		ps = append(ps, s.Packet)
	}
	for _, u := range e.UserIDs {
		ps = append(ps, &packet.UserID{ID: u.ID})
		if u.Trust != nil {
			ps = append(ps, u.Trust)
		}
		for _, s := range u.Signatures {
			ps = append(ps, s.Packet)
		}
	}
	var err error
	for _, p := range ps {
		if b, err = packet.Append(b, p); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Keyring maps key IDs to entries. Mutations are atomic with respect to
// lookups.
type Keyring struct {
	mu      sync.RWMutex
	entries []*Entry
	byID    map[uint64]*Entry
	byShort map[uint32]*Entry
	logger  *logging.Logger
}

// New returns an empty keyring. A nil logger discards parser warnings.
func New(logger *logging.Logger) *Keyring {
	return &Keyring{
		byID:    make(map[uint64]*Entry),
		byShort: make(map[uint32]*Entry),
		logger:  logger,
	}
}

// Parse reads a keyring from r.
func Parse(r io.Reader, logger *logging.Logger) (*Keyring, error) {
	kr := New(logger)
	if _, err := kr.Import(r); err != nil {
		return nil, err
	}
	return kr, nil
}

// ParseBytes reads a keyring from b.
func ParseBytes(b []byte, logger *logging.Logger) (*Keyring, error) {
	return Parse(bytes.NewReader(b), logger)
}

// Import reads packets from r and adds the keys they describe, merging
// into entries already present. It returns the number of key packets read.
//
// A packet whose body cannot be parsed is logged and skipped together with
// everything up to the next key when it was a key. A framing error or an
// unexpected packet type aborts the import and leaves the keyring
// unchanged.
func (kr *Keyring) Import(r io.Reader) (n int, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpParseKeyring, "", start, err) }(time.Now())

	staged, err := kr.parse(packet.NewReader(r))
	if err != nil {
		return 0, err
	}

	kr.mu.Lock()
	for _, e := range staged {
		kr.link(e)
	}
	kr.resolveLocked()
	metrics.SetKeyringKeys(len(kr.entries))
	kr.mu.Unlock()
	return len(staged), nil
}

func (kr *Keyring) parse(pr *packet.Reader) ([]*Entry, error) {
	var (
		staged  []*Entry
		cur     *Entry
		curUID  *UserID
		skipKey bool
	)
	for {
		raw, err := pr.Next()
		if err == io.EOF {
			return staged, nil
		}
		if err != nil {
			return nil, fmt.Errorf("keyring: reading packet: %w", err)
		}

		p, err := packet.Parse(raw)
		if err != nil {
			if !pgperr.IsLocal(err) {
				return nil, err
			}
			kr.logger.Warn("skipping unreadable packet", "type", raw.Type().String(), "error", err.Error())
			if raw.Type() == packet.TypePublicKey || raw.Type() == packet.TypeSecretKey {
				cur, curUID, skipKey = nil, nil, true
			}
			continue
		}

		switch p := p.(type) {
		case *packet.PublicKey:
			cur, curUID, skipKey = NewEntry(p), nil, false
			staged = append(staged, cur)
		case *packet.SecretKey:
			cur, curUID, skipKey = NewSecretEntry(p), nil, false
			staged = append(staged, cur)
		case *packet.UserID, *packet.Trust, *packet.Signature:
			if cur == nil {
				if skipKey {
					kr.logger.Warn("skipping packet of unreadable key", "type", p.Type().String())
					continue
				}
				return nil, fmt.Errorf("%w: %s before any key", ErrUnexpectedPacket, p.Type())
			}
			switch p := p.(type) {
			case *packet.UserID:
				curUID = cur.AddUserID(p.ID)
			case *packet.Trust:
				kr.attachTrust(cur, curUID, p)
			case *packet.Signature:
				kr.attachSignature(cur, curUID, p)
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedPacket, p.Type())
		}
	}
}

func (kr *Keyring) attachTrust(cur *Entry, uid *UserID, t *packet.Trust) {
	if uid == nil {
		cur.Trust = t
		return
	}
	if uid.Trust != nil {
		kr.logger.Warn("duplicate trust on user ID", "key", logging.KeyID(cur.KeyID()), "user_id", uid.ID)
	}
	uid.Trust = t
}

func (kr *Keyring) attachSignature(cur *Entry, uid *UserID, sig *packet.Signature) {
	switch {
	case uid != nil:
		uid.Signatures = append(uid.Signatures, &Signature{Packet: sig})
	case sig.Class == packet.ClassKeyCompromise:
		cur.Revocations = append(cur.Revocations, &Signature{Packet: sig})
	default:
		kr.logger.Warn("dropping signature without user ID",
			"key", logging.KeyID(cur.KeyID()), "signer", logging.KeyID(sig.KeyID))
	}
}

// link adds e or merges it into the entry with the same key ID. The short
// ID index keeps the first key added under a 32-bit ID; a later key with
// the same short ID is reachable only by its full ID. The caller holds the
// write lock.
func (kr *Keyring) link(e *Entry) {
	id := e.KeyID()
	old, ok := kr.byID[id]
	if ok {
		merge(old, e)
		return
	}
	kr.entries = append(kr.entries, e)
	kr.byID[id] = e
	short := uint32(id)
	if prev, taken := kr.byShort[short]; taken {
		kr.logger.Warn("short key ID collision",
			"short_id", fmt.Sprintf("%08X", short),
			"kept", logging.KeyID(prev.KeyID()), "key", logging.KeyID(id))
		return
	}
	kr.byShort[short] = e
}

func merge(dst, src *Entry) {
	if dst.Secret == nil && src.Secret != nil {
		dst.Secret = src.Secret
	}
	if src.Trust != nil {
		dst.Trust = src.Trust
	}
	dst.Revocations = mergeSignatures(dst.Revocations, src.Revocations)
	for _, su := range src.UserIDs {
		du, err := dst.UserID(su.ID)
		if err != nil {
			dst.UserIDs = append(dst.UserIDs, su)
			continue
		}
		if su.Trust != nil {
			du.Trust = su.Trust
		}
		du.Signatures = mergeSignatures(du.Signatures, su.Signatures)
	}
}

func mergeSignatures(dst, src []*Signature) []*Signature {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		if b, err := packet.Marshal(s.Packet); err == nil {
			seen[string(b)] = true
		}
	}
	for _, s := range src {
		b, err := packet.Marshal(s.Packet)
		if err == nil && seen[string(b)] {
			continue
		}
		dst = append(dst, s)
	}
	return dst
}

// Add links a fully built entry into the keyring, merging it with an
// existing entry for the same key.
func (kr *Keyring) Add(e *Entry) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	kr.link(e)
	kr.resolveLocked()
	metrics.SetKeyringKeys(len(kr.entries))
}

// Resolve re-evaluates the Unresolved mark of every signature.
func (kr *Keyring) Resolve() {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	kr.resolveLocked()
}

func (kr *Keyring) resolveLocked() {
	for _, e := range kr.entries {
		for _, s := range e.signatures() {
			_, ok := kr.byID[s.SignerID()]
			s.Unresolved = !ok
		}
	}
}

// Unresolved returns the signatures whose signer is not in the keyring.
func (kr *Keyring) Unresolved() []*Signature {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	var out []*Signature
	for _, e := range kr.entries {
		for _, s := range e.signatures() {
			if s.Unresolved {
				out = append(out, s)
			}
		}
	}
	return out
}

// Lookup returns the entry for a 64-bit key ID, or for a 32-bit short ID
// when id fits in 32 bits and no full ID matches. When several keys share
// a short ID, the one added first is returned.
func (kr *Keyring) Lookup(id uint64) (*Entry, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	return kr.lookupLocked(id)
}

func (kr *Keyring) lookupLocked(id uint64) (*Entry, error) {
	if e, ok := kr.byID[id]; ok {
		return e, nil
	}
	if id <= math.MaxUint32 {
		if e, ok := kr.byShort[uint32(id)]; ok {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, logging.KeyID(id))
}

// FindByUserID returns the entries with a user ID containing s, ignoring
// case.
func (kr *Keyring) FindByUserID(s string) []*Entry {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	s = strings.ToLower(s)
	var out []*Entry
	for _, e := range kr.entries {
		for _, u := range e.UserIDs {
			if strings.Contains(strings.ToLower(u.ID), s) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Entries returns the entries in the order they were added.
func (kr *Keyring) Entries() []*Entry {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	return append([]*Entry(nil), kr.entries...)
}

// Len returns the number of keys.
func (kr *Keyring) Len() int {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	return len(kr.entries)
}

// KeyIDs returns the sorted 64-bit key IDs.
func (kr *Keyring) KeyIDs() []uint64 {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	ids := make([]uint64, 0, len(kr.entries))
	for _, e := range kr.entries {
		ids = append(ids, e.KeyID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Bytes serializes the keyring.
func (kr *Keyring) Bytes() ([]byte, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	var (
		out []byte
		err error
	)
	for _, e := range kr.entries {
		if out, err = e.appendPackets(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WriteTo writes the keyring as concatenated packets.
func (kr *Keyring) WriteTo(w io.Writer) (int64, error) {
	b, err := kr.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// Export writes one entry, in public form unless secret is set.
func (kr *Keyring) Export(w io.Writer, id uint64, secret bool) error {
	kr.mu.RLock()
	e, err := kr.lookupLocked(id)
	if err != nil {
		kr.mu.RUnlock()
		return err
	}
	out := *e
	if !secret {
		out.Secret = nil
	} else if out.Secret == nil {
		kr.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNoSecretKey, logging.KeyID(id))
	}
	b, err := out.appendPackets(nil)
	kr.mu.RUnlock()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// PrivateKey returns the private key of an entry. A locked key is
// unlocked as a copy; the stored entry stays LOCKED, so every call checks
// passphrase. The caller should Zeroize the returned copy when done.
func (kr *Keyring) PrivateKey(id uint64, passphrase []byte) (*rsa.PrivateKey, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	e, err := kr.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	if e.Secret == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSecretKey, logging.KeyID(e.KeyID()))
	}
	k := e.Secret.Private
	if k.State() != pubkey.StateLocked {
		return k, nil
	}
	unlocked, err := k.LockedClone()
	if err != nil {
		return nil, err
	}
	if err := unlocked.Unlock(passphrase); err != nil {
		return nil, err
	}
	return unlocked, nil
}
