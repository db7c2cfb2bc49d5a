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
	"fmt"
	"strings"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/logging"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/armor"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/keyring"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/signature"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
	"github.com/spf13/cobra"
)

// certClasses maps --class names to certification signature classes.
var certClasses = map[string]byte{
	"generic":  packet.ClassCertGeneric,
	"persona":  packet.ClassCertPersona,
	"casual":   packet.ClassCertCasual,
	"positive": packet.ClassCertPositive,
}

func (s *session) signOptions() (*signature.Options, error) {
	rng, err := s.random()
	if err != nil {
		return nil, err
	}
	return &signature.Options{
		Version: s.cfg.PaddingVersion(),
		Hash:    s.cfg.Defaults.Hash,
		Time:    time.Now(),
		Rand:    rng,
	}, nil
}

func newKeygenCmd(flags *Config) *cobra.Command {
	var (
		bits   int
		userID string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA key pair",
		Long: `Generate an RSA key pair, self-certify the user ID and add the key to
both keyrings. The secret key is protected with the passphrase; with no
passphrase available it is stored unprotected.`,
		Args: cobra.NoArgs,
		RunE: run(flags, func(s *session, _ []string) error {
			if userID == "" {
				return fmt.Errorf("--user-id is required")
			}
			if bits == 0 {
				bits = s.cfg.Defaults.KeyBits
			}
			pub, err := s.publicRing()
			if err != nil {
				return err
			}
			sec, err := s.secretRing()
			if err != nil {
				return err
			}
			pw, protect, err := s.passphrase("Passphrase for the new key: ", true)
			if err != nil {
				return err
			}
			opts, err := s.signOptions()
			if err != nil {
				return err
			}

			ctx := s.cmd.Context()
			printVerbose(s.cmd, flags, "generating %d-bit RSA key", bits)
			key, err := rsa.GenerateKey(opts.Rand, bits, func(string) error {
				if flags.Verbose {
					fmt.Fprint(s.cmd.ErrOrStderr(), ".")
				}
				return ctx.Err()
			})
			if flags.Verbose {
				fmt.Fprintln(s.cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}

			sk := packet.NewSecretKey(key, opts.Time)
			pk := sk.Public()
			cert, err := signature.Certify(key, pk, userID, packet.ClassCertGeneric, opts)
			if err != nil {
				return err
			}
			if protect {
				b := pw.Bytes()
				err := key.Lock(b, opts.Rand)
				clear(b)
				pw.Clear()
				if err != nil {
					return err
				}
			} else {
				s.log.Warn("secret key stored without passphrase", "key_id", logging.KeyID(key.KeyID()))
			}

			pubEntry := keyring.NewEntry(pk)
			pubEntry.AddUserID(userID).Signatures = []*keyring.Signature{{Packet: cert}}
			secEntry := keyring.NewSecretEntry(sk)
			secEntry.AddUserID(userID)
			pub.Add(pubEntry)
			sec.Add(secEntry)
			if err := s.saveSecret(sec); err != nil {
				return err
			}
			if err := s.savePublic(pub); err != nil {
				return err
			}
			s.log.Info("generated key", "key_id", logging.KeyID(key.KeyID()), "bits", bits)
			return s.printer.PrintSuccess(fmt.Sprintf("Generated %d-bit key %s for %q", bits, logging.KeyID(key.KeyID()), userID))
		}),
	}
	cmd.Flags().IntVar(&bits, "bits", 0, "modulus size in bits (default from config)")
	cmd.Flags().StringVarP(&userID, "user-id", "u", "", "user ID, e.g. \"Alice <alice@example.com>\"")
	return cmd
}

func newListCmd(flags *Config) *cobra.Command {
	var secret bool
	cmd := &cobra.Command{
		Use:   "list [filter]",
		Short: "List keys",
		Long:  `List the keys in the public keyring, or the secret keyring with --secret. A filter selects keys whose user ID contains it.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: run(flags, func(s *session, args []string) error {
			pub, err := s.publicRing()
			if err != nil {
				return err
			}
			kr := pub
			if secret {
				if kr, err = s.secretRing(); err != nil {
					return err
				}
			}
			entries := kr.Entries()
			if len(args) == 1 {
				entries = kr.FindByUserID(args[0])
			}
			var out []KeyInfo
			for _, e := range entries {
				info := KeyInfo{
					KeyID:   logging.KeyID(e.KeyID()),
					Bits:    e.Public.Key.Bits(),
					Created: e.Public.CreationTime(),
					Secret:  e.IsSecret(),
				}
				if e.IsSecret() {
					info.Locked = e.Secret.Private.State() == pubkey.StateLocked
				}
				for _, u := range e.UserIDs {
					info.UserIDs = append(info.UserIDs, u.ID)
				}
				if revoked, err := pub.Revoked(e.KeyID()); err == nil {
					info.Revoked = revoked
				}
				out = append(out, info)
			}
			return s.printer.PrintKeyList(out)
		}),
	}
	cmd.Flags().BoolVar(&secret, "secret", false, "list the secret keyring")
	return cmd
}

func newImportCmd(flags *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import keys from a keyring file",
		Long: `Import keys from a binary or armored keyring file ("-" or no file reads
stdin). Public parts are merged into the public keyring and secret keys
into the secret keyring.`,
		Args: cobra.MaximumNArgs(1),
		RunE: run(flags, func(s *session, args []string) error {
			data, err := readPackets(s.cmd, argOr(args, 0))
			if err != nil {
				return err
			}
			staged, err := keyring.ParseBytes(data, s.log)
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

			var pubBuf, secBuf bytes.Buffer
			secrets := 0
			for _, e := range staged.Entries() {
				if err := staged.Export(&pubBuf, e.KeyID(), false); err != nil {
					return err
				}
				if e.IsSecret() {
					if err := staged.Export(&secBuf, e.KeyID(), true); err != nil {
						return err
					}
					secrets++
				}
			}
			n, err := pub.Import(&pubBuf)
			if err != nil {
				return err
			}
			if err := s.savePublic(pub); err != nil {
				return err
			}
			if secrets > 0 {
				if _, err := sec.Import(&secBuf); err != nil {
					return err
				}
				if err := s.saveSecret(sec); err != nil {
					return err
				}
			}
			return s.printer.PrintSuccess(fmt.Sprintf("Imported %d key(s), %d secret", n, secrets))
		}),
	}
}

func newExportCmd(flags *Config) *cobra.Command {
	var (
		secret  bool
		armored bool
		output  string
	)
	cmd := &cobra.Command{
		Use:   "export <key>",
		Short: "Export a key",
		Long:  `Export a key by key ID or user ID, in public form unless --secret is given.`,
		Args:  cobra.ExactArgs(1),
		RunE: run(flags, func(s *session, args []string) error {
			kr, err := s.publicRing()
			blockType := armor.TypePublicKey
			if secret {
				kr, err = s.secretRing()
				blockType = armor.TypeSecretKey
			}
			if err != nil {
				return err
			}
			e, err := resolveKey(kr, args[0])
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := kr.Export(&buf, e.KeyID(), secret); err != nil {
				return err
			}
			return writePackets(s.cmd, output, buf.Bytes(), armored, blockType)
		}),
	}
	cmd.Flags().BoolVar(&secret, "secret", false, "export the secret key")
	cmd.Flags().BoolVarP(&armored, "armor", "a", false, "ASCII armor the output")
	cmd.Flags().StringVar(&output, "out", "", "output file (default stdout)")
	return cmd
}

func newCertifyCmd(flags *Config) *cobra.Command {
	var (
		by    string
		class string
	)
	cmd := &cobra.Command{
		Use:   "certify <key> <user-id>",
		Short: "Certify a user ID on a key",
		Args:  cobra.ExactArgs(2),
		RunE: run(flags, func(s *session, args []string) error {
			certClass, ok := certClasses[strings.ToLower(class)]
			if !ok {
				return fmt.Errorf("invalid certification class: %s (must be generic, persona, casual, or positive)", class)
			}
			pub, err := s.publicRing()
			if err != nil {
				return err
			}
			sec, err := s.secretRing()
			if err != nil {
				return err
			}
			target, err := resolveKey(pub, args[0])
			if err != nil {
				return err
			}
			signerEntry, err := resolveKey(sec, by)
			if err != nil {
				return err
			}
			signer, err := s.privateKey(sec, signerEntry)
			if err != nil {
				return err
			}
			opts, err := s.signOptions()
			if err != nil {
				return err
			}
			if _, err := pub.Certify(signer, target.KeyID(), args[1], certClass, opts); err != nil {
				return err
			}
			if err := s.savePublic(pub); err != nil {
				return err
			}
			return s.printer.PrintSuccess(fmt.Sprintf("Certified %q on %s by %s", args[1],
				logging.KeyID(target.KeyID()), logging.KeyID(signerEntry.KeyID())))
		}),
	}
	cmd.Flags().StringVar(&by, "by", "", "signing key (default first secret key)")
	cmd.Flags().StringVar(&class, "class", "generic", "certification class (generic, persona, casual, positive)")
	return cmd
}

func newRevokeCmd(flags *Config) *cobra.Command {
	var (
		userID string
		by     string
	)
	cmd := &cobra.Command{
		Use:   "revoke <key>",
		Short: "Revoke a key or a certification",
		Long: `Revoke a key with its own secret key. With --user-id, revoke the
certification of that user ID made by the --by key instead.`,
		Args: cobra.ExactArgs(1),
		RunE: run(flags, func(s *session, args []string) error {
			pub, err := s.publicRing()
			if err != nil {
				return err
			}
			sec, err := s.secretRing()
			if err != nil {
				return err
			}
			target, err := resolveKey(pub, args[0])
			if err != nil {
				return err
			}
			opts, err := s.signOptions()
			if err != nil {
				return err
			}

			var msg string
			if userID != "" {
				signerEntry, err := resolveKey(sec, by)
				if err != nil {
					return err
				}
				signer, err := s.privateKey(sec, signerEntry)
				if err != nil {
					return err
				}
				if _, err := pub.RevokeCertification(signer, target.KeyID(), userID, opts); err != nil {
					return err
				}
				msg = fmt.Sprintf("Revoked certification of %q on %s", userID, logging.KeyID(target.KeyID()))
			} else {
				own, err := sec.Lookup(target.KeyID())
				if err != nil {
					return err
				}
				key, err := s.privateKey(sec, own)
				if err != nil {
					return err
				}
				if _, err := pub.Revoke(key, opts); err != nil {
					return err
				}
				msg = fmt.Sprintf("Revoked key %s", logging.KeyID(target.KeyID()))
			}
			if err := s.savePublic(pub); err != nil {
				return err
			}
			return s.printer.PrintSuccess(msg)
		}),
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "revoke the certification of this user ID")
	cmd.Flags().StringVar(&by, "by", "", "key whose certification is revoked (default first secret key)")
	return cmd
}

func argOr(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
