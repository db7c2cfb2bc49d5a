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

package keyring

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-pgpkit/pkg/logging"
	"github.com/jeremyhahn/go-pgpkit/pkg/storage"
)

// Save writes kr to the backend under storage.KeyringPath(name). Keyrings
// holding secret keys are stored owner-only.
func Save(b storage.Backend, name string, kr *Keyring) error {
	data, err := kr.Bytes()
	if err != nil {
		return err
	}
	opts := &storage.Options{Permissions: 0644}
	for _, e := range kr.Entries() {
		if e.IsSecret() {
			opts = storage.DefaultOptions()
			break
		}
	}
	if err := b.Put(storage.KeyringPath(name), data, opts); err != nil {
		return fmt.Errorf("keyring: saving %s: %w", name, err)
	}
	return nil
}

// Load reads the keyring stored under storage.KeyringPath(name). A keyring
// that was never saved loads empty.
func Load(b storage.Backend, name string, logger *logging.Logger) (*Keyring, error) {
	data, err := b.Get(storage.KeyringPath(name))
	if errors.Is(err, storage.ErrNotFound) {
		return New(logger), nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring: loading %s: %w", name, err)
	}
	return ParseBytes(data, logger.With("keyring", name))
}
