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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/armor"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/keyring"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceID = "Alice <alice@example.com>"
	bobID   = "Bob <bob@example.com>"
)

// home is an isolated pgpkit home directory.
type home struct {
	t   *testing.T
	dir string
}

func newHome(t *testing.T) *home {
	return &home{t: t, dir: t.TempDir()}
}

func (h *home) path(name string) string { return filepath.Join(h.dir, name) }

func (h *home) write(name string, data []byte) string {
	h.t.Helper()
	p := h.path(name)
	require.NoError(h.t, os.WriteFile(p, data, 0600))
	return p
}

func (h *home) run(stdin string, args ...string) (stdout, stderr string, err error) {
	h.t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--home", filepath.Join(h.dir, "pgpkit")}, args...))
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (h *home) mustRun(args ...string) string {
	h.t.Helper()
	out, stderr, err := h.run("", args...)
	require.NoError(h.t, err, "stderr: %s", stderr)
	return out
}

func (h *home) keygen(userID string) {
	h.t.Helper()
	h.mustRun("keygen", "--bits", "512", "--user-id", userID, "--passphrase", "pw")
}

func TestVersion(t *testing.T) {
	out := newHome(t).mustRun("version")
	assert.Contains(t, out, "pgpkit version "+Version)

	out = newHome(t).mustRun("version", "-o", "json")
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
}

func TestKeygenAndList(t *testing.T) {
	h := newHome(t)
	h.keygen(aliceID)

	out := h.mustRun("list")
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "1 key(s)")
	assert.True(t, strings.HasPrefix(out, "pub   512/"))

	out = h.mustRun("list", "--secret")
	assert.Contains(t, out, "[locked]")

	out = h.mustRun("list", "-o", "json", "nobody")
	var res struct {
		Keys  []KeyInfo `json:"keys"`
		Count int       `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 0, res.Count)

	_, _, err := h.run("", "keygen", "--bits", "512")
	assert.Error(t, err)
}

func TestUnprotectedKey(t *testing.T) {
	h := newHome(t)
	_, stderr, err := h.run("", "keygen", "--bits", "512", "--user-id", aliceID)
	require.NoError(t, err)
	assert.Contains(t, stderr, "secret key stored without passphrase")

	out := h.mustRun("list", "--secret")
	assert.NotContains(t, out, "locked")

	doc := h.write("doc.txt", []byte("no passphrase needed"))
	sig := h.path("doc.sig")
	h.mustRun("sign", doc, "--out", sig)
	h.mustRun("verify", doc, sig)
}

func TestSignAndVerify(t *testing.T) {
	h := newHome(t)
	h.keygen(aliceID)
	doc := h.write("doc.txt", []byte("The quick brown fox"))
	sig := h.path("doc.asc")

	h.mustRun("sign", doc, "--armor", "--out", sig, "--passphrase", "pw")
	data, err := os.ReadFile(sig)
	require.NoError(t, err)
	assert.True(t, armor.IsArmored(data))
	assert.Contains(t, string(data), "BEGIN PGP SIGNATURE")

	out := h.mustRun("verify", doc, sig)
	assert.Contains(t, out, "Good signature from \""+aliceID+"\"")

	h.write("doc.txt", []byte("The quick brown cat"))
	out, _, err = h.run("", "verify", doc, sig)
	assert.ErrorIs(t, err, pubkey.ErrBadSignature)
	assert.Contains(t, out, "BAD signature")

	_, _, err = h.run("", "sign", doc, "--passphrase", "wrong")
	assert.ErrorIs(t, err, pubkey.ErrBadPassphrase)

	_, _, err = h.run("", "verify", doc, doc)
	assert.Error(t, err)
}

func TestEncryptAndDecrypt(t *testing.T) {
	h := newHome(t)
	h.keygen(aliceID)
	h.keygen(bobID)
	plain := []byte("Attack at dawn")
	in := h.write("plain.txt", plain)
	msg := h.path("plain.asc")

	for _, tc := range []struct {
		name string
		args []string
	}{
		{"defaults", nil},
		{"aes zlib", []string{"--cipher", "AES128", "--compression", "zlib"}},
		{"cast5 uncompressed", []string{"--cipher", "CAST5", "--compression", "none"}},
		{"twofish bzip2", []string{"--cipher", "Twofish", "--compression", "bzip2"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"encrypt", in, "-r", "bob", "--signer", "alice", "--armor", "--out", msg, "--passphrase", "pw"}, tc.args...)
			h.mustRun(args...)

			out, stderr, err := h.run("", "decrypt", msg, "--passphrase", "pw")
			require.NoError(t, err, stderr)
			assert.Equal(t, string(plain), out)
			assert.Contains(t, stderr, "Decrypted with key")
			assert.Contains(t, stderr, "Good signature from \""+aliceID+"\"")
		})
	}

	_, _, err := h.run("", "encrypt", in)
	assert.Error(t, err)
	_, _, err = h.run("", "encrypt", in, "-r", "carol")
	assert.ErrorIs(t, err, keyring.ErrKeyNotFound)
	_, _, err = h.run("", "encrypt", in, "-r", "example.com")
	assert.ErrorIs(t, err, ErrAmbiguousKey)
	_, _, err = h.run("", "encrypt", in, "-r", "bob", "--compression", "lzma")
	assert.Error(t, err)
}

func TestDecryptFromStdin(t *testing.T) {
	h := newHome(t)
	h.keygen(bobID)
	in := h.write("plain.txt", []byte("piped"))
	msg := h.mustRun("encrypt", in, "-r", "bob")

	out, stderr, err := h.run(msg, "decrypt", "-", "--passphrase", "pw")
	require.NoError(t, err, stderr)
	assert.Equal(t, "piped", out)
	assert.NotContains(t, stderr, "signature")

	_, _, err = h.run(msg, "decrypt", "-")
	assert.ErrorIs(t, err, pubkey.ErrLocked)
}

func TestExportAndImport(t *testing.T) {
	src := newHome(t)
	src.keygen(aliceID)
	pub := src.mustRun("export", "alice", "--armor")
	assert.Contains(t, pub, "BEGIN PGP PUBLIC KEY BLOCK")
	sec := src.mustRun("export", "alice", "--secret", "--armor")
	assert.Contains(t, sec, "BEGIN PGP SECRET KEY BLOCK")

	dst := newHome(t)
	out, _, err := dst.run(pub, "import")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 key(s), 0 secret")
	assert.Contains(t, dst.mustRun("list"), "alice@example.com")
	assert.Contains(t, dst.mustRun("list", "--secret"), "No keys found")

	out, _, err = dst.run(sec, "import", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 key(s), 1 secret")
	assert.Contains(t, dst.mustRun("list", "--secret"), "alice@example.com")

	_, _, err = src.run("", "export", "nobody")
	assert.ErrorIs(t, err, keyring.ErrKeyNotFound)
}

func TestCertifyAndRevoke(t *testing.T) {
	h := newHome(t)
	h.keygen(aliceID)
	h.keygen(bobID)

	h.mustRun("certify", "bob", bobID, "--by", "alice", "--class", "casual", "--passphrase", "pw")
	_, _, err := h.run("", "certify", "bob", bobID, "--by", "alice", "--class", "bogus", "--passphrase", "pw")
	assert.Error(t, err)
	_, _, err = h.run("", "certify", "bob", "Mallory", "--by", "alice", "--passphrase", "pw")
	assert.ErrorIs(t, err, keyring.ErrUserIDNotFound)

	h.mustRun("revoke", "bob", "--user-id", bobID, "--by", "alice", "--passphrase", "pw")
	assert.NotContains(t, h.mustRun("list", "bob"), "revoked")

	h.mustRun("revoke", "alice", "--passphrase", "pw")
	out := h.mustRun("list", "alice")
	assert.Contains(t, out, "[revoked]")

	in := h.write("plain.txt", []byte("x"))
	_, _, err = h.run("", "encrypt", in, "-r", "alice")
	assert.Error(t, err)

	// the public ring now carries two certifications on bob and one key
	// revocation on alice
	data, err := os.ReadFile(filepath.Join(h.dir, "pgpkit", "keyrings", "pubring.pgp"))
	require.NoError(t, err)
	packets, err := packet.ParseAll(data)
	require.NoError(t, err)
	classes := map[byte]int{}
	for _, p := range packets {
		if sig, ok := p.(*packet.Signature); ok {
			classes[sig.Class]++
		}
	}
	assert.Equal(t, 2, classes[packet.ClassCertGeneric])
	assert.Equal(t, 1, classes[packet.ClassCertCasual])
	assert.Equal(t, 1, classes[packet.ClassCertRevocation])
	assert.Equal(t, 1, classes[packet.ClassKeyCompromise])
}

func TestArmorAndDearmor(t *testing.T) {
	h := newHome(t)
	data := []byte{0xa3, 0x01, 0x02, 0x03, 0x04}
	in := h.write("data.bin", data)
	armored := h.path("data.asc")

	h.mustRun("armor", in, "--out", armored)
	text, err := os.ReadFile(armored)
	require.NoError(t, err)
	assert.Contains(t, string(text), "BEGIN PGP MESSAGE")

	out := h.mustRun("dearmor", armored)
	assert.Equal(t, data, []byte(out))

	_, _, err = h.run("not armored", "dearmor")
	assert.ErrorIs(t, err, armor.ErrNoArmor)
}

func TestAONT(t *testing.T) {
	h := newHome(t)
	text := []byte("all or nothing: lose one block and nothing is recoverable")
	in := h.write("text.bin", text)

	for _, tc := range []struct {
		name string
		args []string
	}{
		{"aes ecb", nil},
		{"idea cbc", []string{"--cipher", "IDEA", "--mode", "CBC", "--iv", "0001020304050607"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pkg := h.path(strings.ReplaceAll(tc.name, " ", "-") + ".aont")
			h.mustRun(append([]string{"aont", "digest", in, "--out", pkg}, tc.args...)...)
			out := h.mustRun(append([]string{"aont", "undigest", pkg}, tc.args...)...)
			assert.Equal(t, text, []byte(out))
		})
	}

	_, _, err := h.run("abc", "aont", "undigest")
	assert.ErrorIs(t, err, ErrBlockLayout)
	_, _, err = h.run("abc", "aont", "undigest", "--mode", "OFB")
	assert.Error(t, err)
}

func TestPoolStatus(t *testing.T) {
	h := newHome(t)
	out := h.mustRun("pool", "status", "-o", "json")
	var st PoolStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 384, st.Size)
	assert.Equal(t, "SHA1", st.Hash)
	assert.Equal(t, 384*8, st.Capacity)
	assert.NotEmpty(t, st.Source)

	_, err := os.Stat(filepath.Join(h.dir, "pgpkit", "pool", "randseed.seed"))
	assert.NoError(t, err)
}

func TestBadConfigFile(t *testing.T) {
	h := newHome(t)
	cfg := h.write("bad.yaml", []byte("defaults:\n  cipher: Lucifer\n"))
	_, _, err := h.run("", "--config", cfg, "list")
	assert.Error(t, err)
}

func TestSplitBlocks(t *testing.T) {
	blocks, err := splitBlocks(make([]byte, 8*3+16), 8, 16)
	require.NoError(t, err)
	require.Len(t, blocks, 4)
	assert.Len(t, blocks[3], 16)

	_, err = splitBlocks(make([]byte, 8*3+15), 8, 16)
	assert.ErrorIs(t, err, ErrBlockLayout)
	_, err = splitBlocks(make([]byte, 4), 8, 16)
	assert.ErrorIs(t, err, ErrBlockLayout)
}
