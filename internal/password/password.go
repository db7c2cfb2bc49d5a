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

// Package password holds passphrases for secret keys in memory.
//
// A Passphrase keeps its own copy of the bytes and can be cleared when no
// longer needed. Lookup resolves a passphrase from a command-line value or
// an environment variable before falling back to a prompt.
package password

import (
	"crypto/subtle"
	"errors"
	"os"
)

var (
	// ErrEmptyPassword is returned when an empty passphrase is provided.
	ErrEmptyPassword = errors.New("passphrase cannot be empty")

	// ErrPasswordZeroed is returned when the passphrase has been cleared.
	ErrPasswordZeroed = errors.New("passphrase has been cleared")

	// ErrMismatch is returned when a confirmation does not match.
	ErrMismatch = errors.New("passphrases do not match")
)

// Passphrase stores a passphrase in memory as cleartext.
type Passphrase struct {
	b []byte
}

// New copies b into a new Passphrase. Returns an error if b is empty.
func New(b []byte) (*Passphrase, error) {
	if len(b) == 0 {
		return nil, ErrEmptyPassword
	}
	p := make([]byte, len(b))
	copy(p, b)
	return &Passphrase{b: p}, nil
}

// FromString returns a Passphrase holding s.
func FromString(s string) (*Passphrase, error) {
	return New([]byte(s))
}

// Lookup returns value when it is non-empty, else the contents of the
// environment variable env when it is set and non-empty. ok is false when
// neither supplies a passphrase.
func Lookup(value, env string) (p *Passphrase, ok bool) {
	if value == "" && env != "" {
		value = os.Getenv(env)
	}
	p, err := FromString(value)
	if err != nil {
		return nil, false
	}
	return p, true
}

// Bytes returns a copy of the passphrase, or nil after Clear.
func (p *Passphrase) Bytes() []byte {
	if p == nil || p.b == nil {
		return nil
	}
	out := make([]byte, len(p.b))
	copy(out, p.b)
	return out
}

// String returns the passphrase as a string.
func (p *Passphrase) String() (string, error) {
	if p == nil || p.b == nil {
		return "", ErrPasswordZeroed
	}
	return string(p.b), nil
}

// Clear zeroes the passphrase. Later calls to Bytes return nil.
func (p *Passphrase) Clear() {
	if p == nil || p.b == nil {
		return
	}
	clear(p.b)
	subtle.ConstantTimeCopy(1, p.b, make([]byte, len(p.b)))
	p.b = nil
}

// Equal compares two passphrases in constant time.
func Equal(a, b *Passphrase) (bool, error) {
	ab := a.Bytes()
	if ab == nil {
		return false, ErrPasswordZeroed
	}
	defer clear(ab)
	bb := b.Bytes()
	if bb == nil {
		return false, ErrPasswordZeroed
	}
	defer clear(bb)
	return subtle.ConstantTimeCompare(ab, bb) == 1, nil
}

// Confirm returns first when second matches it and clears second. On a
// mismatch both are cleared.
func Confirm(first, second *Passphrase) (*Passphrase, error) {
	defer second.Clear()
	eq, err := Equal(first, second)
	if err != nil {
		first.Clear()
		return nil, err
	}
	if !eq {
		first.Clear()
		return nil, ErrMismatch
	}
	return first, nil
}
