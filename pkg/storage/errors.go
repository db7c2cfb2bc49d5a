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

package storage

import "github.com/jeremyhahn/go-pgpkit/pkg/pgperr"

var (
	// ErrClosed is returned when a closed backend is used.
	ErrClosed = pgperr.New(pgperr.KindIO, "storage: closed")

	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = pgperr.New(pgperr.KindIO, "storage: not found")

	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = pgperr.New(pgperr.KindDomain, "storage: invalid key")
)
