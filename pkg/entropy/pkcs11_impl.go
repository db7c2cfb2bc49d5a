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

//go:build pkcs11

package entropy

import (
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"
)

type pkcs11Source struct {
	mu      sync.Mutex
	ctx     *pkcs11.Ctx
	session pkcs11.SessionHandle
	login   bool
	module  string
}

func pkcs11Available() bool { return true }

func openPKCS11(cfg *PKCS11Config) (Source, error) {
	if cfg == nil || cfg.Module == "" {
		return nil, fmt.Errorf("%w: PKCS#11 module path is required", ErrUnavailable)
	}
	ctx := pkcs11.New(cfg.Module)
	if ctx == nil {
		return nil, fmt.Errorf("%w: cannot load %s", ErrUnavailable, cfg.Module)
	}
	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("%w: initialize: %w", ErrUnavailable, err)
	}
	if _, err := ctx.GetSlotList(true); err != nil {
		ctx.Finalize()
		ctx.Destroy()
		return nil, fmt.Errorf("%w: slot list: %w", ErrUnavailable, err)
	}
	session, err := ctx.OpenSession(cfg.SlotID, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		ctx.Finalize()
		ctx.Destroy()
		return nil, fmt.Errorf("%w: open session: %w", ErrUnavailable, err)
	}
	s := &pkcs11Source{ctx: ctx, session: session, module: cfg.Module}
	if cfg.PIN != "" {
		if err := ctx.Login(session, pkcs11.CKU_USER, cfg.PIN); err != nil {
			ctx.CloseSession(session)
			ctx.Finalize()
			ctx.Destroy()
			return nil, fmt.Errorf("%w: login: %w", ErrUnavailable, err)
		}
		s.login = true
	}
	return s, nil
}

func (s *pkcs11Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return 0, ErrClosed
	}
	out, err := s.ctx.GenerateRandom(s.session, len(p))
	if err != nil {
		return 0, fmt.Errorf("%w: GenerateRandom: %w", ErrUnavailable, err)
	}
	return copy(p, out), nil
}

func (s *pkcs11Source) Name() string { return "pkcs11:" + s.module }

func (s *pkcs11Source) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

func (s *pkcs11Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil
	}
	if s.login {
		_ = s.ctx.Logout(s.session)
	}
	_ = s.ctx.CloseSession(s.session)
	_ = s.ctx.Finalize()
	s.ctx.Destroy()
	s.ctx = nil
	return nil
}
