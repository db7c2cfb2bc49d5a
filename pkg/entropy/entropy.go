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

// Package entropy opens the operating-system entropy source that seeds a
// random pool.
//
// # Sources
//
//   - Device: reads a random device such as /dev/urandom
//   - Software: crypto/rand
//   - TPM2: TPM2_GetRandom (requires the tpm2 build tag)
//   - PKCS11: C_GenerateRandom on an HSM slot (requires the pkcs11 build tag)
//   - None: no source; pools start with zero entropy
//
// Auto mode picks PKCS#11, then TPM2, then the random device, then
// crypto/rand, using the first that opens.
//
// Every Source is an io.Reader and is safe for concurrent use.
package entropy

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
	"github.com/spf13/afero"
)

// Mode names an entropy source.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeDevice   Mode = "device"
	ModeSoftware Mode = "software"
	ModeTPM2     Mode = "tpm2"
	ModePKCS11   Mode = "pkcs11"
	ModeNone     Mode = "none"
)

// DefaultDevice is the random device read in device mode.
const DefaultDevice = "/dev/urandom"

var (
	// ErrUnavailable is returned by sources that cannot produce bytes.
	ErrUnavailable = pgperr.New(pgperr.KindIO, "entropy: source unavailable")

	// ErrUnknownMode is returned for a mode this build does not know.
	ErrUnknownMode = pgperr.New(pgperr.KindCapability, "entropy: unknown source mode")

	// ErrClosed is returned after Close.
	ErrClosed = pgperr.New(pgperr.KindIO, "entropy: source closed")
)

// Config selects and configures a source.
type Config struct {
	Mode Mode

	// Device is the random device path for ModeDevice and ModeAuto.
	Device string

	// Fs is the filesystem the device is opened on. Nil means the OS.
	Fs afero.Fs

	TPM2   *TPM2Config
	PKCS11 *PKCS11Config
}

// TPM2Config configures the TPM2 source.
type TPM2Config struct {
	// Device is the TPM character device, default /dev/tpmrm0.
	Device string

	// MaxRequestSize caps the bytes asked for per GetRandom, default 32.
	MaxRequestSize int

	// SimulatorHost and SimulatorPort select a TCP simulator instead of
	// the device when SimulatorPort is non-zero.
	SimulatorHost string
	SimulatorPort int
}

// PKCS11Config configures the PKCS#11 source.
type PKCS11Config struct {
	Module string
	SlotID uint
	PIN    string
}

// Source is an entropy source.
type Source interface {
	io.Reader

	// Name identifies the source for logs and status output.
	Name() string

	// Available reports whether Read can currently succeed.
	Available() bool

	Close() error
}

// Open returns the source cfg selects. A nil cfg means auto mode.
func Open(cfg *Config) (Source, error) {
	if cfg == nil {
		cfg = &Config{Mode: ModeAuto}
	}
	switch cfg.Mode {
	case ModeAuto, "":
		return openAuto(cfg), nil
	case ModeDevice:
		return openDevice(cfg)
	case ModeSoftware:
		return Software(), nil
	case ModeTPM2:
		return openTPM2(cfg.TPM2)
	case ModePKCS11:
		return openPKCS11(cfg.PKCS11)
	case ModeNone:
		return None(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMode, cfg.Mode)
}

func openAuto(cfg *Config) Source {
	if pkcs11Available() && cfg.PKCS11 != nil {
		if s, err := openPKCS11(cfg.PKCS11); err == nil {
			return s
		}
	}
	if tpm2Available() {
		if s, err := openTPM2(cfg.TPM2); err == nil {
			return s
		}
	}
	if s, err := openDevice(cfg); err == nil {
		return s
	}
	return Software()
}

type softwareSource struct{}

// Software returns the crypto/rand source.
func Software() Source { return softwareSource{} }

func (softwareSource) Read(p []byte) (int, error) { return rand.Read(p) }
func (softwareSource) Name() string               { return string(ModeSoftware) }
func (softwareSource) Available() bool            { return true }
func (softwareSource) Close() error               { return nil }

type noneSource struct{}

// None returns a source that never produces bytes.
func None() Source { return noneSource{} }

func (noneSource) Read([]byte) (int, error) { return 0, ErrUnavailable }
func (noneSource) Name() string             { return string(ModeNone) }
func (noneSource) Available() bool          { return false }
func (noneSource) Close() error             { return nil }

// deviceSource reads a random character device.
type deviceSource struct {
	path string
	mu   sync.Mutex
	f    afero.File
}

func openDevice(cfg *Config) (Source, error) {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	path := cfg.Device
	if path == "" {
		path = DefaultDevice
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}
	return &deviceSource{path: path, f: f}, nil
}

func (d *deviceSource) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return 0, ErrClosed
	}
	return io.ReadFull(d.f, p)
}

func (d *deviceSource) Name() string { return "device:" + d.path }

func (d *deviceSource) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f != nil
}

func (d *deviceSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}
