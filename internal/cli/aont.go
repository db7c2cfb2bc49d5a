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
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-pgpkit/pkg/aont"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/spf13/cobra"
)

// ErrBlockLayout is returned when undigest input is not a whole number of
// blocks followed by a key block.
var ErrBlockLayout = errors.New("input is not a valid transform block sequence")

type aontFlags struct {
	cipher string
	mode   string
	iv     string
	output string
}

func (f *aontFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.cipher, "cipher", provider.AES128, "block cipher")
	cmd.Flags().StringVar(&f.mode, "mode", "ECB", "block mode (ECB, CBC, CFB)")
	cmd.Flags().StringVar(&f.iv, "iv", "", "initialization vector in hex for chained modes")
	cmd.Flags().StringVar(&f.output, "out", "", "output file (default stdout)")
}

func (f *aontFlags) transform() (*aont.Transform, error) {
	mode, err := provider.ParseMode(f.mode)
	if err != nil {
		return nil, err
	}
	var iv []byte
	if f.iv != "" {
		if iv, err = hex.DecodeString(f.iv); err != nil {
			return nil, fmt.Errorf("invalid --iv: %w", err)
		}
	}
	return aont.New(f.cipher, mode, iv)
}

func newAONTCmd(flags *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aont",
		Short: "All-or-nothing package transform",
		Long: `Apply or invert Rivest's all-or-nothing package transform. The digest is
written as the concatenated output blocks; the last block carries the
masked inner key.`,
	}

	var df aontFlags
	digest := &cobra.Command{
		Use:   "digest [file]",
		Short: "Transform a file into an all-or-nothing package",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(flags, func(s *session, args []string) error {
			t, err := df.transform()
			if err != nil {
				return err
			}
			data, err := readInput(s.cmd, argOr(args, 0))
			if err != nil {
				return err
			}
			rng, err := s.random()
			if err != nil {
				return err
			}
			t.Update(data)
			blocks, err := t.Digest(rng)
			if err != nil {
				return err
			}
			return writeOutput(s.cmd, df.output, bytes.Join(blocks, nil), 0644)
		}),
	}
	df.register(digest)

	var uf aontFlags
	undigest := &cobra.Command{
		Use:   "undigest [file]",
		Short: "Recover the text of an all-or-nothing package",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := uf.transform()
			if err != nil {
				return err
			}
			data, err := readInput(cmd, argOr(args, 0))
			if err != nil {
				return err
			}
			blocks, err := splitBlocks(data, t.BlockSize(), t.FinalBlockSize())
			if err != nil {
				return err
			}
			text, err := t.Undigest(blocks)
			if err != nil {
				return err
			}
			return writeOutput(cmd, uf.output, text, 0600)
		},
	}
	uf.register(undigest)

	cmd.AddCommand(digest, undigest)
	return cmd
}

// splitBlocks cuts data into bs-sized blocks followed by one final block.
func splitBlocks(data []byte, bs, final int) ([][]byte, error) {
	n := len(data) - final
	if n < 0 || n%bs != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlockLayout, len(data))
	}
	var blocks [][]byte
	for i := 0; i < n; i += bs {
		blocks = append(blocks, data[i:i+bs])
	}
	return append(blocks, data[n:]), nil
}
