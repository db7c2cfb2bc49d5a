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

//go:build !linux

package cli

import (
	"errors"
	"io"
)

var errNoTerminal = errors.New("terminal input is not supported on this platform")

func terminalFD(io.Reader) (int, bool) { return 0, false }

func makeRaw(int) (func() error, error) { return nil, errNoTerminal }

func readPassword(int) ([]byte, error) { return nil, errNoTerminal }
