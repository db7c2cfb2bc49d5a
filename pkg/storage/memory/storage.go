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

// Package memory is a map-backed storage.Backend. Values are copied on the
// way in and out, and the permissions each Put asked for are recorded so
// callers can check what a file store would have applied.
package memory

import (
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-pgpkit/pkg/storage"
)

type record struct {
	value []byte
	perm  fs.FileMode
}

// Storage is an in-memory storage.Backend.
type Storage struct {
	mu     sync.RWMutex
	data   map[string]record
	closed bool
}

// New returns an empty store.
func New() storage.Backend {
	return NewStorage()
}

// NewStorage is New returning the concrete type, for callers that want
// Mode.
func NewStorage() *Storage {
	return &Storage{data: make(map[string]record)}
}

// Mode returns the permissions the last Put of key requested, with
// storage.DefaultOptions applied when it passed none.
func (s *Storage) Mode(key string) (fs.FileMode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, storage.ErrClosed
	}
	r, ok := s.data[key]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return r.perm, nil
}

func (s *Storage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	r, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), r.value...), nil
}

func (s *Storage) Put(key string, value []byte, opts *storage.Options) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	perm := storage.DefaultOptions().Permissions
	if opts != nil && opts.Permissions != 0 {
		perm = opts.Permissions
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.data[key] = record{value: append([]byte{}, value...), perm: perm}
	return nil
}

func (s *Storage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.data[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

func (s *Storage) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) Exists(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, storage.ErrClosed
	}
	_, ok := s.data[key]
	return ok, nil
}

// Close drops the contents. Later calls return storage.ErrClosed.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}
