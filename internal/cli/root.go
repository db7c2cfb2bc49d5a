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
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the pgpkit command tree. Each call returns an
// independent tree with its own flag state.
func NewRootCommand() *cobra.Command {
	flags := NewConfig()

	root := &cobra.Command{
		Use:   "pgpkit",
		Short: "pgpkit - PGP keyrings, messages and signatures",
		Long: `pgpkit manages PGP 2.x style RSA keyrings and processes OpenPGP
messages: encryption to one or more recipients, detached signatures,
key certification and revocation, ASCII armor and the all-or-nothing
transform.

Keyrings and the random seed live under the home directory
(default $HOME/.pgpkit, override with --home or PGPKIT_HOME).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigFile, "config", "",
		"config file (YAML)")
	root.PersistentFlags().StringVar(&flags.Home, "home", "",
		"directory holding keyrings and the random seed")
	root.PersistentFlags().StringVarP(&flags.OutputFormat, "output", "o", "text",
		"output format (text, json)")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false,
		"verbose output")
	root.PersistentFlags().StringVar(&flags.Passphrase, "passphrase", "",
		"passphrase for secret keys (default $PGPKIT_PASSPHRASE or prompt)")

	root.AddCommand(
		newVersionCmd(flags),
		newKeygenCmd(flags),
		newListCmd(flags),
		newImportCmd(flags),
		newExportCmd(flags),
		newCertifyCmd(flags),
		newRevokeCmd(flags),
		newSignCmd(flags),
		newVerifyCmd(flags),
		newEncryptCmd(flags),
		newDecryptCmd(flags),
		newArmorCmd(flags),
		newDearmorCmd(flags),
		newAONTCmd(flags),
		newPoolCmd(flags),
	)
	return root
}

// Execute runs the root command with os.Args.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command under ctx.
func ExecuteContext(ctx context.Context) error {
	root := NewRootCommand()
	err := root.ExecuteContext(ctx)
	if err != nil {
		format, _ := root.PersistentFlags().GetString("output")
		_ = NewPrinter(format, os.Stderr).PrintError(err) // best-effort
	}
	return err
}

// printVerbose prints a message to stderr if verbose mode is enabled
func printVerbose(cmd *cobra.Command, flags *Config, format string, args ...interface{}) {
	if flags.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "[VERBOSE] "+format+"\n", args...)
	}
}
