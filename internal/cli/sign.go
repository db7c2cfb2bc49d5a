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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-pgpkit/pkg/logging"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/armor"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/packet"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/signature"
	"github.com/spf13/cobra"
)

// ErrNoSignature is returned when a signature file holds no signature
// packet.
var ErrNoSignature = errors.New("no signature packet found")

func newSignCmd(flags *Config) *cobra.Command {
	var (
		keySel  string
		hash    string
		armored bool
		output  string
	)
	cmd := &cobra.Command{
		Use:   "sign <file>",
		Short: "Make a detached signature",
		Long:  `Make a detached binary document signature over a file ("-" reads stdin).`,
		Args:  cobra.ExactArgs(1),
		RunE: run(flags, func(s *session, args []string) error {
			doc, err := readInput(s.cmd, args[0])
			if err != nil {
				return err
			}
			sec, err := s.secretRing()
			if err != nil {
				return err
			}
			e, err := resolveKey(sec, keySel)
			if err != nil {
				return err
			}
			key, err := s.privateKey(sec, e)
			if err != nil {
				return err
			}
			opts, err := s.signOptions()
			if err != nil {
				return err
			}
			if hash != "" {
				opts.Hash = hash
			}
			sig, err := signature.SignDocument(key, doc, opts)
			if err != nil {
				return err
			}
			out, err := packet.Marshal(sig)
			if err != nil {
				return err
			}
			printVerbose(s.cmd, flags, "signed with %s using %s", describe(e), opts.Hash)
			return writePackets(s.cmd, output, out, armored, armor.TypeSignature)
		}),
	}
	cmd.Flags().StringVarP(&keySel, "key", "k", "", "signing key (default first secret key)")
	cmd.Flags().StringVar(&hash, "hash", "", "digest algorithm (default from config)")
	cmd.Flags().BoolVarP(&armored, "armor", "a", false, "ASCII armor the output")
	cmd.Flags().StringVar(&output, "out", "", "output file (default stdout)")
	return cmd
}

func newVerifyCmd(flags *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file> <signature>",
		Short: "Check a detached signature",
		Args:  cobra.ExactArgs(2),
		RunE: run(flags, func(s *session, args []string) error {
			doc, err := readInput(s.cmd, args[0])
			if err != nil {
				return err
			}
			data, err := readPackets(s.cmd, args[1])
			if err != nil {
				return err
			}
			sig, err := firstSignature(data)
			if err != nil {
				return err
			}
			pub, err := s.publicRing()
			if err != nil {
				return err
			}

			st := SignatureStatus{
				KeyID:   logging.KeyID(sig.KeyID),
				Created: sig.CreationTime(),
			}
			if e, err := pub.Lookup(sig.KeyID); err == nil {
				st.UserID = e.PrimaryUserID()
			}
			verr := pub.VerifyDocument(sig, doc)
			st.Valid = verr == nil
			if verr != nil {
				st.Error = verr.Error()
			}
			if err := s.printer.PrintSignatureStatus(st); err != nil {
				return err
			}
			return verr
		}),
	}
}

func firstSignature(data []byte) (*packet.Signature, error) {
	packets, err := packet.ParseAll(data)
	if err != nil {
		return nil, err
	}
	for _, p := range packets {
		if sig, ok := p.(*packet.Signature); ok {
			return sig, nil
		}
	}
	return nil, ErrNoSignature
}

func signatureStatus(id uint64, uid string, err error) string {
	if err != nil {
		return fmt.Sprintf("BAD signature from key %s: %v", logging.KeyID(id), err)
	}
	if uid != "" {
		return fmt.Sprintf("Good signature from %q (key %s)", uid, logging.KeyID(id))
	}
	return fmt.Sprintf("Good signature from key %s", logging.KeyID(id))
}
