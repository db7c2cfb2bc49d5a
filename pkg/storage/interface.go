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

// Package storage is the key-value layer keyrings and random pool seeds are
// persisted through. The memory and file subpackages implement Backend.
package storage

import (
	"io/fs"
)

// Backend is a flat key-value store. Keys are slash-separated relative
// paths. Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte, opts *Options) error

	// Delete removes key, or returns ErrNotFound.
	Delete(key string) error

	// List returns the sorted keys starting with prefix.
	List(prefix string) ([]string, error)

	Exists(key string) (bool, error)

	Close() error
}

// Options tunes a single Put.
type Options struct {
	// Permissions is the file mode for file-backed stores. Zero selects
	// the default for the key's prefix.
	Permissions fs.FileMode
}

// DefaultOptions returns owner-only permissions.
func DefaultOptions() *Options {
	return &Options{Permissions: 0600}
}
