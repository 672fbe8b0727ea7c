// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sshtrust.
//
// go-sshtrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package memory holds trust store entries in a map. It backs stores built
// from certificate texts already in memory, such as those handed over by an
// embedding host.
package memory

import (
	"bytes"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-sshtrust/pkg/storage"
)

// Storage is a storage.Backend over a map of entry name to record bytes.
// Records are copied on the way in and out.
type Storage struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// New returns an empty Storage.
func New() storage.Backend {
	return &Storage{entries: make(map[string][]byte)}
}

// Get returns a copy of the record stored under key.
func (s *Storage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entries == nil {
		return nil, storage.ErrClosed
	}
	record, ok := s.entries[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(record), nil
}

// Put stores a copy of value under key. Options only apply to files.
func (s *Storage) Put(key string, value []byte, _ *storage.Options) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		return storage.ErrClosed
	}
	s.entries[key] = bytes.Clone(value)
	return nil
}

func (s *Storage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		return storage.ErrClosed
	}
	if _, ok := s.entries[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

// List returns the entry names starting with prefix in lexicographic order.
func (s *Storage) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entries == nil {
		return nil, storage.ErrClosed
	}
	keys := slices.Sorted(maps.Keys(s.entries))
	return slices.DeleteFunc(keys, func(k string) bool {
		return !strings.HasPrefix(k, prefix)
	}), nil
}

func (s *Storage) Exists(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entries == nil {
		return false, storage.ErrClosed
	}
	_, ok := s.entries[key]
	return ok, nil
}

// Close drops every entry. Later calls return storage.ErrClosed; closing
// twice is allowed.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return nil
}
