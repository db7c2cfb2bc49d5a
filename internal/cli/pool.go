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

	"github.com/spf13/cobra"
)

func newPoolCmd(flags *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect and feed the random pool",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the random pool state",
		Args:  cobra.NoArgs,
		RunE: run(flags, func(s *session, _ []string) error {
			p, err := s.random()
			if err != nil {
				return err
			}
			return s.printer.PrintPoolStatus(PoolStatus{
				Source:   s.src.Name(),
				Size:     p.Size(),
				Hash:     p.HashName(),
				Entropy:  p.Entropy(),
				Capacity: p.Capacity(),
			})
		}),
	}

	var bits int
	randomize := &cobra.Command{
		Use:   "randomize",
		Short: "Add keyboard timing entropy to the pool",
		Long: `Read keystrokes and add their timings to the random pool until it is
full, or until --bits more bits have been credited. The pool is saved
afterwards.`,
		Args: cobra.NoArgs,
		RunE: run(flags, func(s *session, _ []string) error {
			p, err := s.random()
			if err != nil {
				return err
			}
			in := s.cmd.InOrStdin()
			if fd, ok := terminalFD(in); ok {
				restore, err := makeRaw(fd)
				if err != nil {
					return err
				}
				defer restore()
			}
			prompt := s.cmd.ErrOrStderr()
			if bits > 0 {
				err = p.Gather(s.cmd.Context(), in, prompt, bits)
			} else {
				err = p.GatherKeyboard(s.cmd.Context(), in, prompt)
			}
			fmt.Fprintln(prompt)
			if err != nil {
				return err
			}
			return s.printer.PrintSuccess(fmt.Sprintf("Random pool holds %d/%d bits", p.Entropy(), p.Capacity()))
		}),
	}
	randomize.Flags().IntVar(&bits, "bits", 0, "bits to collect (default fill the pool)")

	cmd.AddCommand(status, randomize)
	return cmd
}
