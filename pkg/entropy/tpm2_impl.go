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

//go:build tpm2

package entropy

import (
	"fmt"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/tcp"
	"github.com/google/go-tpm/tpmutil"
)

type tpm2Source struct {
	mu    sync.Mutex
	rwc   transport.TPMCloser
	name  string
	chunk int
}

func tpm2Available() bool { return true }

func openTPM2(cfg *TPM2Config) (Source, error) {
	if cfg == nil {
		cfg = &TPM2Config{}
	}
	chunk := cfg.MaxRequestSize
	if chunk <= 0 {
		chunk = 32
	}

	if cfg.SimulatorPort > 0 {
		host := cfg.SimulatorHost
		if host == "" {
			host = "localhost"
		}
		cmd := fmt.Sprintf("%s:%d", host, cfg.SimulatorPort)
		plat := fmt.Sprintf("%s:%d", host, cfg.SimulatorPort+1)
		rwc, err := tcp.Open(tcp.Config{CommandAddress: cmd, PlatformAddress: plat})
		if err != nil {
			return nil, fmt.Errorf("%w: tpm simulator %s: %w", ErrUnavailable, cmd, err)
		}
		return &tpm2Source{rwc: rwc, name: "tpm2:" + cmd, chunk: chunk}, nil
	}

	dev := cfg.Device
	if dev == "" {
		dev = "/dev/tpmrm0"
	}
	f, err := tpmutil.OpenTPM(dev)
	if err != nil {
		return nil, fmt.Errorf("%w: tpm device %s: %w", ErrUnavailable, dev, err)
	}
	return &tpm2Source{rwc: transport.FromReadWriteCloser(f), name: "tpm2:" + dev, chunk: chunk}, nil
}

func (t *tpm2Source) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rwc == nil {
		return 0, ErrClosed
	}
	n := 0
	for n < len(p) {
		want := len(p) - n
		if want > t.chunk {
			want = t.chunk
		}
		rsp, err := tpm2.GetRandom{BytesRequested: uint16(want)}.Execute(t.rwc)
		if err != nil {
			return n, fmt.Errorf("%w: GetRandom: %w", ErrUnavailable, err)
		}
		if len(rsp.RandomBytes.Buffer) == 0 {
			return n, ErrUnavailable
		}
		n += copy(p[n:], rsp.RandomBytes.Buffer)
	}
	return n, nil
}

func (t *tpm2Source) Name() string { return t.name }

func (t *tpm2Source) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rwc != nil
}

func (t *tpm2Source) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rwc == nil {
		return nil
	}
	err := t.rwc.Close()
	t.rwc = nil
	return err
}
