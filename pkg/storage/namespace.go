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

import (
	"fmt"
	"path"
	"strings"
)

const (
	keyringPrefix = "keyrings/"
	keyringSuffix = ".pgp"
	poolPrefix    = "pool/"
	poolSuffix    = ".seed"
)

// KeyringPath returns the storage key of a named keyring:
// keyrings/{name}.pgp
func KeyringPath(name string) string {
	return keyringPrefix + name + keyringSuffix
}

// PoolPath returns the storage key of a named random pool seed:
// pool/{name}.seed
func PoolPath(name string) string {
	return poolPrefix + name + poolSuffix
}

// ListKeyrings returns the names of all stored keyrings.
func ListKeyrings(b Backend) ([]string, error) {
	return listNames(b, keyringPrefix, keyringSuffix)
}

// ListPools returns the names of all stored pool seeds.
func ListPools(b Backend) ([]string, error) {
	return listNames(b, poolPrefix, poolSuffix)
}

func listNames(b Backend, prefix, suffix string) ([]string, error) {
	keys, err := b.List(prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, suffix) {
			continue
		}
		if n := strings.TrimSuffix(strings.TrimPrefix(k, prefix), suffix); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// ValidateKey rejects keys that are empty, absolute, contain NUL or
// climb out of the store root.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: contains NUL", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: absolute path %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("%w: path traversal %q", ErrInvalidKey, key)
	}
	return nil
}
