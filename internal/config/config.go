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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-pgpkit/pkg/entropy"
	"github.com/jeremyhahn/go-pgpkit/pkg/logging"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/jeremyhahn/go-pgpkit/pkg/pubkey/rsa"
	"github.com/jeremyhahn/go-pgpkit/pkg/randpool"
	"github.com/jeremyhahn/go-pgpkit/pkg/storage"
	"github.com/jeremyhahn/go-pgpkit/pkg/storage/file"
	"gopkg.in/yaml.v3"
)

// Config represents the complete pgpkit configuration
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Keyring    KeyringConfig    `yaml:"keyring"`
	RandomPool RandomPoolConfig `yaml:"random_pool"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// KeyringConfig locates the keyrings. Public and Secret are keyring names
// inside Dir.
type KeyringConfig struct {
	Dir    string `yaml:"dir"`
	Public string `yaml:"public"`
	Secret string `yaml:"secret"`
}

// RandomPoolConfig controls the persistent random pool and its seed source
type RandomPoolConfig struct {
	Size    int    `yaml:"size"`
	Hash    string `yaml:"hash"`
	SeedKey string `yaml:"seed_key"`
	Source  string `yaml:"source"` // auto, device, software, tpm2, pkcs11, none
	Device  string `yaml:"device"`

	TPM2   *TPM2Config   `yaml:"tpm2,omitempty"`
	PKCS11 *PKCS11Config `yaml:"pkcs11,omitempty"`
}

// TPM2Config selects the TPM used as an entropy source
type TPM2Config struct {
	Device        string `yaml:"device"`
	SimulatorHost string `yaml:"simulator_host"`
	SimulatorPort int    `yaml:"simulator_port"`
}

// PKCS11Config selects the token used as an entropy source
type PKCS11Config struct {
	Module string `yaml:"module"`
	Slot   uint   `yaml:"slot"`
	PIN    string `yaml:"pin"`
}

// DefaultsConfig holds the algorithm choices commands use when no flag
// overrides them
type DefaultsConfig struct {
	Cipher        string `yaml:"cipher"`
	Hash          string `yaml:"hash"`
	Compression   string `yaml:"compression"` // none, zip, zlib, bzip2
	PacketVersion int    `yaml:"packet_version"`
	KeyBits       int    `yaml:"key_bits"`
}

// MetricsConfig controls metric collection
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a valid configuration rooted at ~/.pgpkit
func Default() *Config {
	dir := ".pgpkit"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".pgpkit")
	}
	return &Config{
		Logging: LoggingConfig{Level: "warn", Format: "text"},
		Keyring: KeyringConfig{Dir: dir, Public: "pubring", Secret: "secring"},
		RandomPool: RandomPoolConfig{
			Size:    384,
			Hash:    randpool.DefaultHash,
			SeedKey: "randseed",
			Source:  string(entropy.ModeAuto),
			Device:  entropy.DefaultDevice,
		},
		Defaults: DefaultsConfig{
			Cipher:        provider.IDEA,
			Hash:          provider.MD5,
			Compression:   "zip",
			PacketVersion: 3,
			KeyBits:       1024,
		},
	}
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		// #nosec G304 - Config file path is provided by the user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envInt applies an integer override, keeping the current value when the
// variable does not parse.
func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.DefaultLogger().Warnf("invalid %s value %q, using %d: %v", name, v, *dst, err)
		return
	}
	*dst = n
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies PGPKIT_* environment variable overrides
func applyEnvOverrides(cfg *Config) {
	envString("PGPKIT_LOG_LEVEL", &cfg.Logging.Level)
	envString("PGPKIT_LOG_FORMAT", &cfg.Logging.Format)

	envString("PGPKIT_HOME", &cfg.Keyring.Dir)
	envString("PGPKIT_PUBRING", &cfg.Keyring.Public)
	envString("PGPKIT_SECRING", &cfg.Keyring.Secret)

	envInt("PGPKIT_POOL_SIZE", &cfg.RandomPool.Size)
	envString("PGPKIT_POOL_HASH", &cfg.RandomPool.Hash)
	envString("PGPKIT_ENTROPY_SOURCE", &cfg.RandomPool.Source)
	envString("PGPKIT_ENTROPY_DEVICE", &cfg.RandomPool.Device)
	if module := os.Getenv("PGPKIT_PKCS11_MODULE"); module != "" {
		if cfg.RandomPool.PKCS11 == nil {
			cfg.RandomPool.PKCS11 = &PKCS11Config{}
		}
		cfg.RandomPool.PKCS11.Module = module
	}
	if pin := os.Getenv("PGPKIT_PKCS11_PIN"); pin != "" && cfg.RandomPool.PKCS11 != nil {
		cfg.RandomPool.PKCS11.PIN = pin
	}
	if dev := os.Getenv("TPM_DEVICE_PATH"); dev != "" {
		if cfg.RandomPool.TPM2 == nil {
			cfg.RandomPool.TPM2 = &TPM2Config{}
		}
		cfg.RandomPool.TPM2.Device = dev
	}

	envString("PGPKIT_CIPHER", &cfg.Defaults.Cipher)
	envString("PGPKIT_HASH", &cfg.Defaults.Hash)
	envString("PGPKIT_COMPRESSION", &cfg.Defaults.Compression)
	envInt("PGPKIT_PACKET_VERSION", &cfg.Defaults.PacketVersion)
	envInt("PGPKIT_KEY_BITS", &cfg.Defaults.KeyBits)

	if v := os.Getenv("PGPKIT_METRICS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logging.DefaultLogger().Warnf("invalid PGPKIT_METRICS value %q, using %t: %v", v, cfg.Metrics.Enabled, err)
		} else {
			cfg.Metrics.Enabled = enabled
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "warning": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if f := strings.ToLower(c.Logging.Format); f != string(logging.FormatText) && f != string(logging.FormatJSON) {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Keyring.Dir == "" {
		return fmt.Errorf("keyring dir must be specified")
	}
	for _, name := range []string{c.Keyring.Public, c.Keyring.Secret} {
		if err := storage.ValidateKey(storage.KeyringPath(name)); err != nil || name == "" {
			return fmt.Errorf("invalid keyring name: %q", name)
		}
	}

	if c.RandomPool.Size < randpool.MinSize || c.RandomPool.Size > randpool.MaxSize {
		return fmt.Errorf("invalid random pool size: %d (must be %d-%d)", c.RandomPool.Size, randpool.MinSize, randpool.MaxSize)
	}
	if _, err := provider.LookupHash(c.RandomPool.Hash); err != nil {
		return fmt.Errorf("invalid random pool hash: %w", err)
	}
	if c.RandomPool.SeedKey == "" {
		return fmt.Errorf("random pool seed_key must be specified")
	}
	switch entropy.Mode(c.RandomPool.Source) {
	case entropy.ModeAuto, entropy.ModeDevice, entropy.ModeSoftware, entropy.ModeNone, entropy.ModeTPM2:
	case entropy.ModePKCS11:
		if c.RandomPool.PKCS11 == nil || c.RandomPool.PKCS11.Module == "" {
			return fmt.Errorf("PKCS11 module is required for the pkcs11 entropy source")
		}
	default:
		return fmt.Errorf("invalid entropy source: %s", c.RandomPool.Source)
	}

	cipher, err := provider.LookupBlock(c.Defaults.Cipher)
	if err != nil {
		return fmt.Errorf("invalid default cipher: %w", err)
	}
	if cipher.ID == 0 {
		return fmt.Errorf("invalid default cipher: %s has no packet algorithm number", cipher.Name)
	}
	hash, err := provider.LookupHash(c.Defaults.Hash)
	if err != nil {
		return fmt.Errorf("invalid default hash: %w", err)
	}
	if hash.ID == 0 {
		return fmt.Errorf("invalid default hash: %s has no packet algorithm number", hash.Name)
	}
	if _, err := ParseCompression(c.Defaults.Compression); err != nil {
		return err
	}
	if c.Defaults.PacketVersion != 2 && c.Defaults.PacketVersion != 3 {
		return fmt.Errorf("invalid packet version: %d (must be 2 or 3)", c.Defaults.PacketVersion)
	}
	if c.Defaults.PacketVersion == 2 && cipher.Name != provider.IDEA {
		return fmt.Errorf("packet version 2 requires the IDEA cipher, not %s", cipher.Name)
	}
	if c.Defaults.KeyBits < rsa.MinBits {
		return fmt.Errorf("invalid key bits: %d (must be at least %d)", c.Defaults.KeyBits, rsa.MinBits)
	}
	return nil
}

// ParseCompression maps a compression name to its packet algorithm number
func ParseCompression(name string) (byte, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return provider.CompressionNone, nil
	case "zip", "deflate":
		return provider.CompressionZIP, nil
	case "zlib":
		return provider.CompressionZLIB, nil
	case "bzip2":
		return provider.CompressionBZIP2, nil
	}
	return 0, fmt.Errorf("invalid compression: %s (must be none, zip, zlib, or bzip2)", name)
}

// PaddingVersion returns the configured packet and padding version
func (c *Config) PaddingVersion() rsa.Version {
	return rsa.Version(c.Defaults.PacketVersion)
}

// NewLogger builds the configured logger
func (c *Config) NewLogger() *logging.Logger {
	return logging.New(logging.Options{
		Level:  c.Logging.Level,
		Format: logging.Format(strings.ToLower(c.Logging.Format)),
	})
}

// Storage opens the file storage under the keyring directory
func (c *Config) Storage() (storage.Backend, error) {
	return file.New(c.Keyring.Dir)
}

// Entropy returns the seed source settings
func (c *Config) Entropy() *entropy.Config {
	out := &entropy.Config{
		Mode:   entropy.Mode(c.RandomPool.Source),
		Device: c.RandomPool.Device,
	}
	if t := c.RandomPool.TPM2; t != nil {
		out.TPM2 = &entropy.TPM2Config{Device: t.Device, SimulatorHost: t.SimulatorHost, SimulatorPort: t.SimulatorPort}
	}
	if p := c.RandomPool.PKCS11; p != nil {
		out.PKCS11 = &entropy.PKCS11Config{Module: p.Module, SlotID: p.Slot, PIN: p.PIN}
	}
	return out
}

// PoolOptions returns the random pool settings seeded from src
func (c *Config) PoolOptions(src entropy.Source, logger *logging.Logger) *randpool.Options {
	return &randpool.Options{
		Size:   c.RandomPool.Size,
		Hash:   c.RandomPool.Hash,
		Source: src,
		Logger: logger,
	}
}
