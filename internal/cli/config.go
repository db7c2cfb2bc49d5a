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
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-pgpkit/internal/config"
	"github.com/jeremyhahn/go-pgpkit/internal/password"
	"github.com/jeremyhahn/go-pgpkit/pkg/entropy"
	"github.com/jeremyhahn/go-pgpkit/pkg/logging"
	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/armor"
	"github.com/jeremyhahn/go-pgpkit/pkg/openpgp/keyring"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
	"github.com/jeremyhahn/go-pgpkit/pkg/randpool"
	"github.com/jeremyhahn/go-pgpkit/pkg/storage"
	"github.com/spf13/cobra"
)

// PassphraseEnv names the environment variable read when --passphrase is
// not given.
const PassphraseEnv = "PGPKIT_PASSPHRASE"

// ErrAmbiguousKey is returned when a user ID selector matches more than
// one key.
var ErrAmbiguousKey = errors.New("key selector matches more than one key")

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the YAML configuration file
	ConfigFile string

	// Home overrides the keyring directory
	Home string

	// OutputFormat controls output formatting (text, json)
	OutputFormat string

	// Verbose enables debug logging
	Verbose bool

	// Passphrase unlocks secret keys
	Passphrase string
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
	}
}

// session is the per-command state: settings, logger, storage and, on
// demand, the random pool.
type session struct {
	cmd     *cobra.Command
	flags   *Config
	cfg     *config.Config
	log     *logging.Logger
	store   storage.Backend
	printer *Printer

	src  entropy.Source
	pool *randpool.Pool
}

func openSession(cmd *cobra.Command, flags *Config) (*session, error) {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if flags.Home != "" {
		cfg.Keyring.Dir = flags.Home
	}
	if flags.Verbose {
		cfg.Logging.Level = "debug"
	}
	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	store, err := cfg.Storage()
	if err != nil {
		return nil, err
	}
	return &session{
		cmd:   cmd,
		flags: flags,
		cfg:   cfg,
		log: logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: logging.Format(strings.ToLower(cfg.Logging.Format)),
			Output: cmd.ErrOrStderr(),
		}),
		store:   store,
		printer: NewPrinter(flags.OutputFormat, cmd.OutOrStdout()),
	}, nil
}

// run wraps a command body with session setup and teardown.
func run(flags *Config, fn func(s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, flags)
		if err != nil {
			return err
		}
		err = fn(s, args)
		if cerr := s.close(); err == nil {
			err = cerr
		}
		return err
	}
}

// random returns the persistent random pool, opening it on first use.
func (s *session) random() (*randpool.Pool, error) {
	if s.pool != nil {
		return s.pool, nil
	}
	src, err := entropy.Open(s.cfg.Entropy())
	if err != nil {
		s.log.Warn("entropy source unavailable", "error", err.Error())
		src = entropy.None()
	}
	s.log.Debug("opened entropy source", "source", src.Name())
	pool, err := randpool.Open(s.store, storage.PoolPath(s.cfg.RandomPool.SeedKey), s.cfg.PoolOptions(src, s.log))
	if err != nil {
		src.Close()
		return nil, err
	}
	s.src, s.pool = src, pool
	return pool, nil
}

func (s *session) close() error {
	var err error
	if s.pool != nil {
		err = s.pool.Save(s.store, storage.PoolPath(s.cfg.RandomPool.SeedKey))
		s.pool.Zeroize()
	}
	if s.src != nil {
		s.src.Close()
	}
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *session) publicRing() (*keyring.Keyring, error) {
	return keyring.Load(s.store, s.cfg.Keyring.Public, s.log)
}

func (s *session) secretRing() (*keyring.Keyring, error) {
	return keyring.Load(s.store, s.cfg.Keyring.Secret, s.log)
}

func (s *session) savePublic(kr *keyring.Keyring) error {
	return keyring.Save(s.store, s.cfg.Keyring.Public, kr)
}

func (s *session) saveSecret(kr *keyring.Keyring) error {
	return keyring.Save(s.store, s.cfg.Keyring.Secret, kr)
}

// passphrase returns the --passphrase flag, then $PGPKIT_PASSPHRASE, then
// prompts on a terminal, twice when confirm is set. ok is false when none
// is available.
func (s *session) passphrase(prompt string, confirm bool) (pw *password.Passphrase, ok bool, err error) {
	if pw, ok := password.Lookup(s.flags.Passphrase, PassphraseEnv); ok {
		return pw, true, nil
	}
	fd, isTTY := terminalFD(s.cmd.InOrStdin())
	if !isTTY {
		return nil, false, nil
	}
	if pw, err = s.prompt(fd, prompt); err != nil {
		return nil, false, err
	}
	if confirm {
		again, err := s.prompt(fd, "Repeat passphrase: ")
		if err != nil {
			pw.Clear()
			return nil, false, err
		}
		if pw, err = password.Confirm(pw, again); err != nil {
			return nil, false, err
		}
	}
	return pw, true, nil
}

func (s *session) prompt(fd int, prompt string) (*password.Passphrase, error) {
	fmt.Fprint(s.cmd.ErrOrStderr(), prompt)
	b, err := readPassword(fd)
	fmt.Fprintln(s.cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	defer clear(b)
	return password.New(b)
}

// privateKey returns the usable private key of a secret ring entry,
// asking for the passphrase only when the key is locked.
func (s *session) privateKey(sec *keyring.Keyring, e *keyring.Entry) (*rsa.PrivateKey, error) {
	if !e.IsSecret() {
		return nil, fmt.Errorf("%w: %s", keyring.ErrNoSecretKey, logging.KeyID(e.KeyID()))
	}
	if e.Secret.Private.State() != pubkey.StateLocked {
		return sec.PrivateKey(e.KeyID(), nil)
	}
	pw, ok, err := s.passphrase(fmt.Sprintf("Passphrase for %s: ", describe(e)), false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: passphrase required for %s", pubkey.ErrLocked, logging.KeyID(e.KeyID()))
	}
	defer pw.Clear()
	b := pw.Bytes()
	defer clear(b)
	return sec.PrivateKey(e.KeyID(), b)
}

// resolveKey finds one entry by key ID (8 or 16 hex digits, optional 0x)
// or by a user ID substring. An empty selector picks the ring's only or
// first key.
func resolveKey(kr *keyring.Keyring, sel string) (*keyring.Entry, error) {
	if sel == "" {
		entries := kr.Entries()
		if len(entries) == 0 {
			return nil, keyring.ErrKeyNotFound
		}
		return entries[0], nil
	}
	hex := strings.TrimPrefix(strings.TrimPrefix(sel, "0x"), "0X")
	if len(hex) == 8 || len(hex) == 16 {
		if id, err := strconv.ParseUint(hex, 16, 64); err == nil {
			return kr.Lookup(id)
		}
	}
	found := kr.FindByUserID(sel)
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %q", keyring.ErrKeyNotFound, sel)
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("%w: %q", ErrAmbiguousKey, sel)
}

func describe(e *keyring.Entry) string {
	if uid := e.PrimaryUserID(); uid != "" {
		return fmt.Sprintf("%s %q", logging.KeyID(e.KeyID()), uid)
	}
	return logging.KeyID(e.KeyID())
}

// readInput reads a named file, or stdin for "-" or no name.
func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

// readPackets reads input and strips ASCII armor when present.
func readPackets(cmd *cobra.Command, name string) ([]byte, error) {
	data, err := readInput(cmd, name)
	if err != nil {
		return nil, err
	}
	if !armor.IsArmored(data) {
		return data, nil
	}
	block, err := armor.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return block.Body, nil
}

// writeOutput writes data to a named file, or stdout for "-" or no name.
func writeOutput(cmd *cobra.Command, name string, data []byte, perm os.FileMode) error {
	if name == "" || name == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(name, data, perm)
}

// writePackets writes packet data, armored as blockType when requested.
func writePackets(cmd *cobra.Command, name string, data []byte, armored bool, blockType string) error {
	if armored {
		out, err := armor.Marshal(blockType, nil, data)
		if err != nil {
			return err
		}
		data = out
	}
	return writeOutput(cmd, name, data, 0644)
}
