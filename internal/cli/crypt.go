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
	"fmt"
	"path/filepath"

	"github.com/jeremyhahn/go-pgpkit/internal/config"
	"github.com/jeremyhahn/go-pgpkit/pkg/logging"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/armor"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/keyring"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/message"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
	"github.com/spf13/cobra"
)

// rings resolves message keys from the public and secret keyrings,
// asking for a passphrase only when a locked recipient key is used.
type rings struct {
	s   *session
	pub *keyring.Keyring
	sec *keyring.Keyring
}

func (r *rings) PrivateKey(id uint64, _ []byte) (*rsa.PrivateKey, error) {
	e, err := r.sec.Lookup(id)
	if err != nil {
		return nil, err
	}
	return r.s.privateKey(r.sec, e)
}

func (r *rings) Lookup(id uint64) (*keyring.Entry, error) {
	if e, err := r.pub.Lookup(id); err == nil {
		return e, nil
	}
	return r.sec.Lookup(id)
}

func newEncryptCmd(flags *Config) *cobra.Command {
	var (
		recipients  []string
		signer      string
		sign        bool
		cipherName  string
		compression string
		armored     bool
		output      string
	)
	cmd := &cobra.Command{
		Use:   "encrypt <file>",
		Short: "Encrypt a file to one or more recipients",
		Long: `Encrypt a file ("-" reads stdin) to each --recipient. With --sign the
plaintext is signed first; the signed literal is compressed and then
enciphered under a fresh session key.`,
		Args: cobra.ExactArgs(1),
		RunE: run(flags, func(s *session, args []string) error {
			if len(recipients) == 0 {
				return message.ErrNoRecipient
			}
			plaintext, err := readInput(s.cmd, args[0])
			if err != nil {
				return err
			}
			if compression == "" {
				compression = s.cfg.Defaults.Compression
			}
			algo, err := config.ParseCompression(compression)
			if err != nil {
				return err
			}
			if cipherName == "" {
				cipherName = s.cfg.Defaults.Cipher
			}

			pub, err := s.publicRing()
			if err != nil {
				return err
			}
			var keys []*rsa.PublicKey
			for _, sel := range recipients {
				e, err := resolveKey(pub, sel)
				if err != nil {
					return err
				}
				if revoked, _ := pub.Revoked(e.KeyID()); revoked {
					return fmt.Errorf("recipient %s is revoked", describe(e))
				}
				printVerbose(s.cmd, flags, "encrypting to %s", describe(e))
				keys = append(keys, e.Public.Key)
			}

			rng, err := s.random()
			if err != nil {
				return err
			}
			opts := &message.Options{
				Hash:        s.cfg.Defaults.Hash,
				Compression: algo,
				Cipher:      cipherName,
				Version:     s.cfg.PaddingVersion(),
				Rand:        rng,
			}
			if args[0] != "-" {
				opts.Filename = filepath.Base(args[0])
			}
			if sign || signer != "" {
				sec, err := s.secretRing()
				if err != nil {
					return err
				}
				e, err := resolveKey(sec, signer)
				if err != nil {
					return err
				}
				if opts.Signer, err = s.privateKey(sec, e); err != nil {
					return err
				}
			}

			out, err := message.Encrypt(plaintext, keys, opts)
			if err != nil {
				return err
			}
			return writePackets(s.cmd, output, out, armored, armor.TypeMessage)
		}),
	}
	cmd.Flags().StringSliceVarP(&recipients, "recipient", "r", nil, "recipient key ID or user ID (repeatable)")
	cmd.Flags().BoolVarP(&sign, "sign", "s", false, "sign with the first secret key")
	cmd.Flags().StringVar(&signer, "signer", "", "sign with this secret key")
	cmd.Flags().StringVar(&cipherName, "cipher", "", "block cipher (default from config)")
	cmd.Flags().StringVar(&compression, "compression", "", "compression: none, zip, zlib, bzip2 (default from config)")
	cmd.Flags().BoolVarP(&armored, "armor", "a", false, "ASCII armor the output")
	cmd.Flags().StringVar(&output, "out", "", "output file (default stdout)")
	return cmd
}

func newDecryptCmd(flags *Config) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "decrypt <file>",
		Short: "Decrypt a message",
		Long: `Decrypt a binary or armored message ("-" reads stdin). The plaintext is
written to --out or stdout; recipient and signature status go to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: run(flags, func(s *session, args []string) error {
			msg, err := readPackets(s.cmd, args[0])
			if err != nil {
				return err
			}
			pub, err := s.publicRing()
			if err != nil {
				return err
			}
			sec, err := s.secretRing()
			if err != nil {
				return err
			}
			res, err := message.Decrypt(msg, &rings{s: s, pub: pub, sec: sec}, nil)
			if err != nil {
				return err
			}

			status := s.cmd.ErrOrStderr()
			if res.Recipient != 0 {
				fmt.Fprintf(status, "Decrypted with key %s\n", logging.KeyID(res.Recipient))
			}
			if res.Signed {
				var uid string
				if e, err := pub.Lookup(res.SignerKeyID); err == nil {
					uid = e.PrimaryUserID()
				}
				fmt.Fprintln(status, signatureStatus(res.SignerKeyID, uid, res.SignatureErr))
			}
			printVerbose(s.cmd, flags, "literal %q dated %s", res.Filename, res.ModTime)
			return writeOutput(s.cmd, output, res.Plaintext, 0600)
		}),
	}
	cmd.Flags().StringVar(&output, "out", "", "output file (default stdout)")
	return cmd
}
