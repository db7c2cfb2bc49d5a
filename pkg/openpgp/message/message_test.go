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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/keyring"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
	"github.com/jeremyhahn/go-pgpkit/pkg/randpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeys = sync.OnceValues(func() ([2]*rsa.PrivateKey, error) {
	var keys [2]*rsa.PrivateKey
	for i, seed := range []string{"message-alice", "message-bob"} {
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

// secretRing returns a keyring holding the secret halves of ks.
func secretRing(ks ...*rsa.PrivateKey) *keyring.Keyring {
	kr := keyring.New(nil)
	for _, k := range ks {
		kr.Add(keyring.NewSecretEntry(packet.NewSecretKey(k, when)))
	}
	return kr
}

func TestAttackAtDawn(t *testing.T) {
	key, err := rsa.GenerateKey(randpool.NewDeterministic("message-s3"), 1024, nil)
	require.NoError(t, err)
	dek := bytes.Repeat([]byte{0x42}, 16)
	plaintext := []byte("Attack at dawn")

	msg, err := Encrypt(plaintext, []*rsa.PublicKey{key.Public()}, &Options{
		Cipher:     provider.IDEA,
		SessionKey: dek,
		Time:       when,
		Rand:       randpool.NewDeterministic("message-s3-rand"),
	})
	require.NoError(t, err)

	ps, err := packet.ParseAll(msg)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	pke, ok := ps[0].(*packet.PKEncrypted)
	require.True(t, ok)
	assert.Equal(t, key.KeyID(), pke.KeyID)
	assert.Equal(t, pubkey.AlgRSA, pke.Algorithm)
	cipherID, got, err := key.DecryptSessionKey(rsa.V3, pke.Value, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), cipherID)
	assert.Equal(t, dek, got)
	sym, ok := ps[1].(*packet.SymEncrypted)
	require.True(t, ok)
	assert.NotContains(t, string(sym.Data), string(plaintext))

	res, err := Decrypt(msg, secretRing(key), nil)
	require.NoError(t, err)
	assert.Equal(t, plaintext, res.Plaintext)
	assert.Equal(t, key.KeyID(), res.Recipient)
	assert.False(t, res.Signed)
	assert.True(t, when.Equal(res.ModTime))
}

func TestRoundTrip(t *testing.T) {
	alice, bob := keys(t)
	plaintext := bytes.Repeat([]byte("the quick brown fox "), 20)
	kr := secretRing(alice, bob)

	type variant struct {
		cipher      string
		compression byte
		version     rsa.Version
	}
	var variants []variant
	for _, c := range []string{provider.IDEA, provider.TripleDES, provider.CAST5, provider.Blowfish, provider.AES128, provider.AES256, provider.Twofish} {
		for _, z := range []byte{provider.CompressionNone, provider.CompressionZIP, provider.CompressionZLIB, provider.CompressionBZIP2} {
			variants = append(variants, variant{c, z, rsa.V3})
		}
	}
	variants = append(variants, variant{provider.IDEA, provider.CompressionNone, rsa.V2}, variant{provider.IDEA, provider.CompressionZIP, rsa.V2})

	for _, v := range variants {
		name := fmt.Sprintf("%s/z%d/v%d", v.cipher, v.compression, v.version)
		t.Run(name, func(t *testing.T) {
			msg, err := Encrypt(plaintext, []*rsa.PublicKey{alice.Public(), bob.Public()}, &Options{
				Signer:      alice,
				Cipher:      v.cipher,
				Compression: v.compression,
				Version:     v.version,
				Filename:    "fox.txt",
				Time:        when,
				Rand:        randpool.NewDeterministic(name),
			})
			require.NoError(t, err)

			res, err := Decrypt(msg, kr, nil)
			require.NoError(t, err)
			assert.Equal(t, plaintext, res.Plaintext)
			assert.Equal(t, "fox.txt", res.Filename)
			assert.Equal(t, alice.KeyID(), res.Recipient)
			assert.True(t, res.Signed)
			assert.Equal(t, alice.KeyID(), res.SignerKeyID)
			assert.NoError(t, res.SignatureErr)
		})
	}
}

func TestSecondRecipient(t *testing.T) {
	alice, bob := keys(t)
	msg, err := Encrypt([]byte("for bob"), []*rsa.PublicKey{alice.Public(), bob.Public()}, &Options{
		Time: when, Rand: randpool.NewDeterministic("second-recipient"),
	})
	require.NoError(t, err)

	res, err := Decrypt(msg, secretRing(bob), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("for bob"), res.Plaintext)
	assert.Equal(t, bob.KeyID(), res.Recipient)
}

func TestSignatureOutcomes(t *testing.T) {
	alice, bob := keys(t)
	msg, err := Encrypt([]byte("signed by bob"), []*rsa.PublicKey{alice.Public()}, &Options{
		Signer: bob, Time: when, Rand: randpool.NewDeterministic("signature-outcomes"),
	})
	require.NoError(t, err)

	res, err := Decrypt(msg, secretRing(alice), nil)
	require.NoError(t, err)
	assert.True(t, res.Signed)
	assert.Equal(t, bob.KeyID(), res.SignerKeyID)
	assert.ErrorIs(t, res.SignatureErr, keyring.ErrKeyNotFound)

	kr := secretRing(alice)
	kr.Add(keyring.NewEntry(packet.NewPublicKey(bob.Public(), when)))
	res, err = Decrypt(msg, kr, nil)
	require.NoError(t, err)
	assert.NoError(t, res.SignatureErr)
}

func TestUnencryptedMessage(t *testing.T) {
	alice, _ := keys(t)
	msg, err := Encrypt([]byte("in the clear"), nil, &Options{Signer: alice, Time: when})
	require.NoError(t, err)

	ps, err := packet.ParseAll(msg)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, packet.TypeSignature, ps[0].Type())
	assert.Equal(t, packet.TypeLiteral, ps[1].Type())

	kr := keyring.New(nil)
	kr.Add(keyring.NewEntry(packet.NewPublicKey(alice.Public(), when)))
	res, err := Decrypt(msg, kr, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("in the clear"), res.Plaintext)
	assert.Zero(t, res.Recipient)
	assert.NoError(t, res.SignatureErr)

	// The literal data is the last byte of the stream.
	tampered := bytes.Clone(msg)
	tampered[len(tampered)-1] ^= 0x01
	res, err = Decrypt(tampered, kr, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, res.SignatureErr, pubkey.ErrBadSignature)

	res, err = Decrypt(msg, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, res.SignatureErr, keyring.ErrKeyNotFound)
}

func TestBadSessionKey(t *testing.T) {
	alice, _ := keys(t)
	msg, err := Encrypt([]byte("quick check"), []*rsa.PublicKey{alice.Public()}, &Options{
		Time: when, Rand: randpool.NewDeterministic("quick-check"),
	})
	require.NoError(t, err)

	ps, err := packet.ParseAll(msg)
	require.NoError(t, err)
	sym := ps[1].(*packet.SymEncrypted)
	// Byte 8 is the first repeated check byte of the IDEA prefix.
	sym.Data[8] ^= 0x01
	tampered, err := packet.MarshalAll(ps...)
	require.NoError(t, err)

	_, err = Decrypt(tampered, secretRing(alice), nil)
	assert.ErrorIs(t, err, ErrBadSessionKey)
}

func TestLockedRecipientKey(t *testing.T) {
	key, err := rsa.GenerateKey(randpool.NewDeterministic("message-locked"), 512, nil)
	require.NoError(t, err)
	msg, err := Encrypt([]byte("locked"), []*rsa.PublicKey{key.Public()}, &Options{
		Time: when, Rand: randpool.NewDeterministic("message-locked-rand"),
	})
	require.NoError(t, err)

	passphrase := []byte("open sesame")
	require.NoError(t, key.Lock(passphrase, randpool.NewDeterministic("message-locked-iv")))
	src := secretRing(key)
	b, err := src.Bytes()
	require.NoError(t, err)

	kr, err := keyring.ParseBytes(b, nil)
	require.NoError(t, err)
	_, err = Decrypt(msg, kr, []byte("close sesame"))
	assert.ErrorIs(t, err, pubkey.ErrBadPassphrase)

	res, err := Decrypt(msg, kr, passphrase)
	require.NoError(t, err)
	assert.Equal(t, []byte("locked"), res.Plaintext)

	// The ring keeps the key locked, so a later wrong passphrase still fails.
	_, err = Decrypt(msg, kr, []byte("close sesame"))
	assert.ErrorIs(t, err, pubkey.ErrBadPassphrase)
	_, err = Decrypt(msg, kr, nil)
	assert.ErrorIs(t, err, pubkey.ErrBadPassphrase)
}

func TestErrors(t *testing.T) {
	alice, bob := keys(t)
	toBob, err := Encrypt([]byte("x"), []*rsa.PublicKey{bob.Public()}, &Options{
		Time: when, Rand: randpool.NewDeterministic("errors"),
	})
	require.NoError(t, err)
	comment, err := packet.Marshal(&packet.Comment{Text: "nothing here"})
	require.NoError(t, err)
	uid, err := packet.Marshal(&packet.UserID{ID: "alice"})
	require.NoError(t, err)

	publicOnly := keyring.New(nil)
	publicOnly.Add(keyring.NewEntry(packet.NewPublicKey(bob.Public(), when)))

	tests := []struct {
		name string
		msg  []byte
		keys Keys
		want error
	}{
		{"no recipient", toBob, secretRing(alice), ErrNoRecipient},
		{"public key only", toBob, publicOnly, ErrNoRecipient},
		{"no keys", toBob, nil, ErrNoRecipient},
		{"no literal", comment, nil, ErrNoPlaintext},
		{"user ID", uid, nil, ErrUnexpectedPacket},
		{"truncated", toBob[:len(toBob)-1], secretRing(bob), packet.ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.msg, tt.keys, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncryptErrors(t *testing.T) {
	alice, _ := keys(t)
	recipients := []*rsa.PublicKey{alice.Public()}

	_, err := Encrypt([]byte("x"), recipients, &Options{})
	assert.ErrorIs(t, err, ErrNoRandom)

	_, err = Encrypt([]byte("x"), recipients, &Options{Version: rsa.V2, Cipher: provider.CAST5, Rand: randpool.NewDeterministic("v2")})
	assert.ErrorIs(t, err, packet.ErrUnsupported)

	_, err = Encrypt([]byte("x"), recipients, &Options{Cipher: provider.DES, Rand: randpool.NewDeterministic("des")})
	assert.ErrorIs(t, err, provider.ErrUnknownCipher)

	_, err = Encrypt([]byte("x"), recipients, &Options{Cipher: "Lucifer", Rand: randpool.NewDeterministic("lucifer")})
	assert.ErrorIs(t, err, provider.ErrUnknownCipher)

	_, err = Encrypt([]byte("x"), recipients, &Options{SessionKey: []byte("short"), Rand: randpool.NewDeterministic("short")})
	assert.ErrorIs(t, err, provider.ErrKeySize)

	_, err = Encrypt([]byte("x"), nil, &Options{Compression: 9})
	assert.ErrorIs(t, err, packet.ErrUnsupported)
}
