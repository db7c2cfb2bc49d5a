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
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/armor"
	"github.com/spf13/cobra"
)

func newArmorCmd(flags *Config) *cobra.Command {
	var (
		blockType string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "armor [file]",
		Short: "ASCII armor binary packets",
		Long: `ASCII armor a binary packet file ("-" or no file reads stdin). The block
type is taken from the first packet unless --type is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, argOr(args, 0))
			if err != nil {
				return err
			}
			if blockType == "" {
				blockType = armor.TypeFor(data)
			}
			return writePackets(cmd, output, data, true, blockType)
		},
	}
	cmd.Flags().StringVar(&blockType, "type", "", "armor block type, e.g. \"PGP MESSAGE\"")
	cmd.Flags().StringVar(&output, "out", "", "output file (default stdout)")
	return cmd
}

func newDearmorCmd(flags *Config) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "dearmor [file]",
		Short: "Decode an ASCII armored block",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, argOr(args, 0))
			if err != nil {
				return err
			}
			block, err := armor.Unmarshal(data)
			if err != nil {
				return err
			}
			printVerbose(cmd, flags, "armor type %q, %d bytes", block.Type, len(block.Body))
			return writeOutput(cmd, output, block.Body, 0644)
		},
	}
	cmd.Flags().StringVar(&output, "out", "", "output file (default stdout)")
	return cmd
}
