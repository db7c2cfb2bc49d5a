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

// Package pgperr provides kind-tagged errors shared by every go-pgpkit
// package. Packages declare their sentinel errors with New so that callers
// can match them with errors.Is and classify any wrapped error with KindOf.
//
// Error reasons are short, fixed strings. They must never carry key
// material, passphrases, session keys or pool contents.
package pgperr

import (
	"errors"
)

// Kind classifies an error by the recovery policy that applies to it.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors that were not created
	// by this package.
	KindUnknown Kind = iota

	// KindDomain marks inputs outside an algorithm's range.
	KindDomain

	// KindFormat marks wire-format violations.
	KindFormat

	// KindCrypto marks padding, checksum and signature mismatches.
	KindCrypto

	// KindState marks operations attempted on a key in the wrong state.
	KindState

	// KindCapability marks algorithm identifiers this build does not support.
	KindCapability

	// KindCancelled marks operations abandoned at the caller's request.
	KindCancelled

	// KindIO marks failures of the underlying reader, writer or store.
	KindIO
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDomain:
		return "domain"
	case KindFormat:
		return "format"
	case KindCrypto:
		return "crypto"
	case KindState:
		return "state"
	case KindCapability:
		return "capability"
	case KindCancelled:
		return "cancelled"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is a classified error with a short reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

// New returns a sentinel error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap returns a new error of the given kind that wraps err.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsLocal reports whether a parser may skip the packet that produced err
// and continue with the next one.
func IsLocal(err error) bool {
	switch KindOf(err) {
	case KindFormat, KindCrypto, KindCapability:
		return true
	default:
		return false
	}
}
