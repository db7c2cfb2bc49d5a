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
	"bytes"
	"io/fs"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/logging"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/signature"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
	"github.com/jeremyhahn/go-pgpkit/pkg/randpool"
	"github.com/jeremyhahn/go-pgpkit/pkg/storage"
	"github.com/jeremyhahn/go-pgpkit/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeys = sync.OnceValues(func() ([2]*rsa.PrivateKey, error) {
	var keys [2]*rsa.PrivateKey
	for i, seed := range []string{"keyring-alice", "keyring-bob"} {
		k, err := rsa.GenerateKey(randpool.NewDeterministic(seed), 512, nil)
		if err != nil {
			return keys, err
		}
		keys[i] = k
	}
	return keys, nil
})

func keys(t *testing.T) (alice, bob *rsa.PrivateKey) {
	t.Helper()
	ks, err := testKeys()
	require.NoError(t, err)
	return ks[0], ks[1]
}

var when = time.Date(1994, 6, 1, 12, 0, 0, 0, time.UTC)

func opts() *signature.Options {
	return &signature.Options{Time: when}
}

// captureLogger returns a logger writing warnings into buf.
func captureLogger(buf *bytes.Buffer) *logging.Logger {
	return logging.New(logging.Options{Level: "debug", Output: buf})
}

// certified frames key, user ID, trust and a certification by signer.
func certified(t *testing.T, key, signer *rsa.PrivateKey, uid string) []byte {
	t.Helper()
	pk := packet.NewPublicKey(key.Public(), when)
	sig, err := signature.Certify(signer, pk, uid, packet.ClassCertPositive, opts())
	require.NoError(t, err)
	b, err := packet.MarshalAll(pk, &packet.UserID{ID: uid}, &packet.Trust{Flags: 0x07}, sig)
	require.NoError(t, err)
	return b
}

func TestParseAndReemitIsIdentical(t *testing.T) {
	alice, _ := keys(t)
	in := certified(t, alice, alice, "alice")

	kr, err := ParseBytes(in, nil)
	require.NoError(t, err)
	require.Equal(t, 1, kr.Len())

	e, err := kr.Lookup(alice.KeyID())
	require.NoError(t, err)
	assert.Equal(t, "alice", e.PrimaryUserID())
	require.Len(t, e.UserIDs, 1)
	require.NotNil(t, e.UserIDs[0].Trust)
	assert.Equal(t, byte(0x07), e.UserIDs[0].Trust.Flags)
	require.Len(t, e.UserIDs[0].Signatures, 1)
	assert.False(t, e.UserIDs[0].Signatures[0].Unresolved)

	out, err := kr.Bytes()
	require.NoError(t, err)
	assert.Equal(t, in, out)

	var buf bytes.Buffer
	n, err := kr.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(in)), n)
	assert.Equal(t, in, buf.Bytes())

	checks, err := kr.Check(alice.KeyID())
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, "alice", checks[0].UserID)
	assert.True(t, checks[0].Valid())
}

func TestDanglingSignatureIsDropped(t *testing.T) {
	alice, bob := keys(t)
	pk := packet.NewPublicKey(alice.Public(), when)
	sig, err := signature.Certify(bob, pk, "alice", packet.ClassCertGeneric, opts())
	require.NoError(t, err)
	b, err := packet.MarshalAll(pk, sig, &packet.UserID{ID: "alice"})
	require.NoError(t, err)

	var logs bytes.Buffer
	kr, err := ParseBytes(b, captureLogger(&logs))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "dropping signature without user ID")

	e, err := kr.Lookup(alice.KeyID())
	require.NoError(t, err)
	assert.Empty(t, e.Revocations)
	require.Len(t, e.UserIDs, 1)
	assert.Empty(t, e.UserIDs[0].Signatures)
}

func TestKeyCompromiseAttachesToKey(t *testing.T) {
	alice, _ := keys(t)
	pk := packet.NewPublicKey(alice.Public(), when)
	rev, err := signature.RevokeKey(alice, pk, opts())
	require.NoError(t, err)
	b, err := packet.MarshalAll(pk, rev, &packet.UserID{ID: "alice"})
	require.NoError(t, err)

	kr, err := ParseBytes(b, nil)
	require.NoError(t, err)
	e, err := kr.Lookup(alice.KeyID())
	require.NoError(t, err)
	require.Len(t, e.Revocations, 1)

	revoked, err := kr.Revoked(alice.KeyID())
	require.NoError(t, err)
	assert.True(t, revoked)

	out, err := kr.Bytes()
	require.NoError(t, err)
	assert.Equal(t, b, out)
}

func TestTrustRecords(t *testing.T) {
	alice, _ := keys(t)
	pk := packet.NewPublicKey(alice.Public(), when)

	t.Run("second key trust replaces the first", func(t *testing.T) {
		b, err := packet.MarshalAll(pk, &packet.Trust{Flags: 1}, &packet.Trust{Flags: 2})
		require.NoError(t, err)
		var logs bytes.Buffer
		kr, err := ParseBytes(b, captureLogger(&logs))
		require.NoError(t, err)
		e, err := kr.Lookup(alice.KeyID())
		require.NoError(t, err)
		assert.Equal(t, byte(2), e.Trust.Flags)
		assert.Empty(t, logs.String())
	})

	t.Run("second user ID trust warns", func(t *testing.T) {
		b, err := packet.MarshalAll(pk, &packet.UserID{ID: "alice"}, &packet.Trust{Flags: 1}, &packet.Trust{Flags: 3})
		require.NoError(t, err)
		var logs bytes.Buffer
		kr, err := ParseBytes(b, captureLogger(&logs))
		require.NoError(t, err)
		e, err := kr.Lookup(alice.KeyID())
		require.NoError(t, err)
		assert.Equal(t, byte(3), e.UserIDs[0].Trust.Flags)
		assert.Contains(t, logs.String(), "duplicate trust on user ID")
	})
}

func TestUnexpectedPacketLeavesKeyringUnchanged(t *testing.T) {
	alice, bob := keys(t)
	kr, err := ParseBytes(certified(t, alice, alice, "alice"), nil)
	require.NoError(t, err)
	before, err := kr.Bytes()
	require.NoError(t, err)

	bobPK := packet.NewPublicKey(bob.Public(), when)
	tests := []struct {
		name    string
		packets []packet.Packet
	}{
		{"literal after key", []packet.Packet{bobPK, packet.NewLiteral([]byte("x"), when)}},
		{"user ID before key", []packet.Packet{&packet.UserID{ID: "bob"}, bobPK}},
		{"trust before key", []packet.Packet{&packet.Trust{Flags: 1}, bobPK}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := packet.MarshalAll(tt.packets...)
			require.NoError(t, err)
			_, err = kr.Import(bytes.NewReader(b))
			assert.ErrorIs(t, err, ErrUnexpectedPacket)

			assert.Equal(t, 1, kr.Len())
			after, err := kr.Bytes()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestUnreadableKeyIsSkipped(t *testing.T) {
	alice, _ := keys(t)
	bad, err := packet.AppendHeader(nil, packet.TypePublicKey, 3)
	require.NoError(t, err)
	bad = append(bad, 3, 0, 0)
	bad, err = packet.Append(bad, &packet.UserID{ID: "ghost"})
	require.NoError(t, err)
	in := append(bad, certified(t, alice, alice, "alice")...)

	var logs bytes.Buffer
	kr, err := ParseBytes(in, captureLogger(&logs))
	require.NoError(t, err)
	assert.Equal(t, 1, kr.Len())
	assert.Empty(t, kr.FindByUserID("ghost"))
	assert.Contains(t, logs.String(), "skipping unreadable packet")
	assert.Contains(t, logs.String(), "skipping packet of unreadable key")
}

func TestTruncatedStreamIsFatal(t *testing.T) {
	alice, _ := keys(t)
	in := certified(t, alice, alice, "alice")
	in, err := packet.AppendHeader(in, packet.TypeUserID, 100)
	require.NoError(t, err)
	in = append(in, "bob"...)

	kr := New(nil)
	_, err = kr.Import(bytes.NewReader(in))
	assert.ErrorIs(t, err, packet.ErrTruncated)
	assert.Equal(t, 0, kr.Len())
}

func TestUnresolvedSignatureResolvesWhenSignerArrives(t *testing.T) {
	alice, bob := keys(t)
	kr, err := ParseBytes(certified(t, alice, bob, "alice"), nil)
	require.NoError(t, err)

	require.Len(t, kr.Unresolved(), 1)
	checks, err := kr.Check(alice.KeyID())
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.ErrorIs(t, checks[0].Err, ErrKeyNotFound)

	kr.Add(NewEntry(packet.NewPublicKey(bob.Public(), when)))
	assert.Empty(t, kr.Unresolved())
	checks, err = kr.Check(alice.KeyID())
	require.NoError(t, err)
	assert.True(t, checks[0].Valid())
}

func TestLookup(t *testing.T) {
	alice, bob := keys(t)
	kr, err := ParseBytes(append(certified(t, alice, alice, "Alice <alice@example.org>"),
		certified(t, bob, bob, "Bob <bob@example.org>")...), nil)
	require.NoError(t, err)

	e, err := kr.Lookup(alice.KeyID())
	require.NoError(t, err)
	assert.Equal(t, alice.KeyID(), e.KeyID())

	e, err = kr.Lookup(uint64(uint32(bob.KeyID())))
	require.NoError(t, err)
	assert.Equal(t, bob.KeyID(), e.KeyID())

	_, err = kr.Lookup(0)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	found := kr.FindByUserID("BOB@")
	require.Len(t, found, 1)
	assert.Equal(t, bob.KeyID(), found[0].KeyID())

	ids := kr.KeyIDs()
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])
}

func TestShortIDCollision(t *testing.T) {
	first, ok := new(big.Int).SetString("f00000000000000000000000112345679", 16)
	require.True(t, ok)
	second, ok := new(big.Int).SetString("f00000000000000000000000212345679", 16)
	require.True(t, ok)
	e := big.NewInt(17)

	var log bytes.Buffer
	kr := New(captureLogger(&log))
	kr.Add(NewEntry(packet.NewPublicKey(&rsa.PublicKey{N: first, E: e}, when)))
	kr.Add(NewEntry(packet.NewPublicKey(&rsa.PublicKey{N: second, E: e}, when)))
	require.Equal(t, 2, kr.Len())
	assert.Contains(t, log.String(), "short key ID collision")

	got, err := kr.Lookup(0x12345679)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0000000112345679), got.KeyID())

	got, err = kr.Lookup(0x0000000212345679)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0000000212345679), got.KeyID())
}

func TestImportMergesEntries(t *testing.T) {
	alice, bob := keys(t)
	kr, err := ParseBytes(certified(t, alice, alice, "alice"), nil)
	require.NoError(t, err)

	n, err := kr.Import(bytes.NewReader(certified(t, alice, alice, "alice")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = kr.Import(bytes.NewReader(certified(t, alice, bob, "alice")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 1, kr.Len())
	e, err := kr.Lookup(alice.KeyID())
	require.NoError(t, err)
	require.Len(t, e.UserIDs, 1)
	assert.Len(t, e.UserIDs[0].Signatures, 2)
	assert.Len(t, kr.Unresolved(), 1)
}

func TestCertifyAndRevoke(t *testing.T) {
	alice, bob := keys(t)
	kr, err := ParseBytes(append(certified(t, alice, alice, "alice"), certified(t, bob, bob, "bob")...), nil)
	require.NoError(t, err)

	_, err = kr.Certify(bob, alice.KeyID(), "mallory", packet.ClassCertGeneric, opts())
	assert.ErrorIs(t, err, ErrUserIDNotFound)

	sig, err := kr.Certify(bob, alice.KeyID(), "alice", packet.ClassCertCasual, opts())
	require.NoError(t, err)
	assert.Equal(t, bob.KeyID(), sig.KeyID)

	_, err = kr.RevokeCertification(bob, alice.KeyID(), "alice", opts())
	require.NoError(t, err)

	checks, err := kr.Check(alice.KeyID())
	require.NoError(t, err)
	require.Len(t, checks, 3)
	for _, c := range checks {
		assert.NoError(t, c.Err)
	}

	revoked, err := kr.Revoked(alice.KeyID())
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = kr.Revoke(alice, opts())
	require.NoError(t, err)
	revoked, err = kr.Revoked(alice.KeyID())
	require.NoError(t, err)
	assert.True(t, revoked)

	// The additions survive serialization.
	b, err := kr.Bytes()
	require.NoError(t, err)
	again, err := ParseBytes(b, nil)
	require.NoError(t, err)
	e, err := again.Lookup(alice.KeyID())
	require.NoError(t, err)
	assert.Len(t, e.Revocations, 1)
	assert.Len(t, e.UserIDs[0].Signatures, 3)
}

func TestDocumentAndTimestamp(t *testing.T) {
	alice, bob := keys(t)
	kr, err := ParseBytes(certified(t, alice, alice, "alice"), nil)
	require.NoError(t, err)

	doc := []byte("contract")
	sig, err := signature.SignDocument(alice, doc, opts())
	require.NoError(t, err)
	assert.NoError(t, kr.VerifyDocument(sig, doc))
	assert.ErrorIs(t, kr.VerifyDocument(sig, []byte("contracT")), pubkey.ErrBadSignature)

	_, err = kr.Timestamp(bob, sig, opts())
	assert.ErrorIs(t, err, ErrKeyNotFound)

	ts, err := kr.Timestamp(alice, sig, opts())
	require.NoError(t, err)
	assert.Equal(t, packet.ClassTimestamp, ts.Class)
	assert.NoError(t, kr.VerifyTimestamp(ts, sig))

	bobSig, err := signature.SignDocument(bob, doc, opts())
	require.NoError(t, err)
	assert.ErrorIs(t, kr.VerifyDocument(bobSig, doc), ErrKeyNotFound)
}

func TestSecretKeys(t *testing.T) {
	key, err := rsa.GenerateKey(randpool.NewDeterministic("keyring-secret"), 512, nil)
	require.NoError(t, err)
	passphrase := []byte("correct horse")
	require.NoError(t, key.Lock(passphrase, randpool.NewDeterministic("keyring-iv")))

	e := NewSecretEntry(packet.NewSecretKey(key, when))
	e.AddUserID("carol")
	src := New(nil)
	src.Add(e)
	b, err := src.Bytes()
	require.NoError(t, err)

	kr, err := ParseBytes(b, nil)
	require.NoError(t, err)
	got, err := kr.Lookup(key.KeyID())
	require.NoError(t, err)
	require.True(t, got.IsSecret())
	assert.Equal(t, pubkey.StateLocked, got.Secret.Private.State())

	_, err = kr.PrivateKey(key.KeyID(), []byte("wrong"))
	assert.ErrorIs(t, err, pubkey.ErrBadPassphrase)

	priv, err := kr.PrivateKey(key.KeyID(), passphrase)
	require.NoError(t, err)
	assert.Equal(t, pubkey.StateUnlocked, priv.State())
	assert.NoError(t, priv.Validate())
	assert.Equal(t, pubkey.StateLocked, got.Secret.Private.State())

	_, err = kr.PrivateKey(key.KeyID(), []byte("wrong"))
	assert.ErrorIs(t, err, pubkey.ErrBadPassphrase)
	priv.Zeroize()
	again, err := kr.PrivateKey(key.KeyID(), passphrase)
	require.NoError(t, err)
	assert.NoError(t, again.Validate())

	var pub bytes.Buffer
	require.NoError(t, kr.Export(&pub, key.KeyID(), false))
	exported, err := ParseBytes(pub.Bytes(), nil)
	require.NoError(t, err)
	pe, err := exported.Lookup(key.KeyID())
	require.NoError(t, err)
	assert.False(t, pe.IsSecret())
	assert.Equal(t, "carol", pe.PrimaryUserID())

	_, err = exported.PrivateKey(key.KeyID(), passphrase)
	assert.ErrorIs(t, err, ErrNoSecretKey)
	assert.ErrorIs(t, exported.Export(&pub, key.KeyID(), true), ErrNoSecretKey)
}

func TestSaveAndLoad(t *testing.T) {
	alice, _ := keys(t)
	b := memory.NewStorage()
	defer b.Close()

	empty, err := Load(b, "pubring", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	kr, err := ParseBytes(certified(t, alice, alice, "alice"), nil)
	require.NoError(t, err)
	require.NoError(t, Save(b, "pubring", kr))

	mode, err := b.Mode(storage.KeyringPath("pubring"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0644), mode)

	sec := New(nil)
	sec.Add(NewSecretEntry(packet.NewSecretKey(alice, when)))
	require.NoError(t, Save(b, "secring", sec))
	mode, err = b.Mode(storage.KeyringPath("secring"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0600), mode)

	loaded, err := Load(b, "pubring", nil)
	require.NoError(t, err)
	want, err := kr.Bytes()
	require.NoError(t, err)
	got, err := loaded.Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
