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

// Package file provides a file-based implementation of the storage.Backend interface.
// It operates on an afero.Fs so the same code serves the OS filesystem and
// in-memory filesystems in tests, with RWMutex for thread-safe operations.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-sshtrust/pkg/storage"
	"github.com/spf13/afero"
)

const (
	// Default directory permissions (owner rwx, others rx)
	defaultDirPerms = 0755

	// Certificate records hold public material only
	defaultPerms = 0644
)

// FileStorage is a file-based implementation of storage.Backend.
// It stores each key as one file directly under the root and is thread-safe.
type FileStorage struct {
	mu      sync.RWMutex
	fs      afero.Fs
	rootDir string
}

// New creates a FileStorage rooted at rootDir on fsys.
// The root directory is created if it doesn't exist.
func New(fsys afero.Fs, rootDir string) (storage.Backend, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}

	if err := fsys.MkdirAll(rootDir, defaultDirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create root directory: %w", err)
	}

	return &FileStorage{fs: fsys, rootDir: rootDir}, nil
}

// Open creates a FileStorage over an existing directory. Unlike New it never
// creates the root; a missing root returns storage.ErrNotFound.
func Open(fsys afero.Fs, rootDir string) (storage.Backend, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}

	info, err := fsys.Stat(rootDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file storage: %q: %w", rootDir, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("file storage: failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file storage: %q is not a directory", rootDir)
	}

	return &FileStorage{fs: fsys, rootDir: rootDir}, nil
}

// NewOS creates a FileStorage on the operating system filesystem.
func NewOS(rootDir string) (storage.Backend, error) {
	return New(afero.NewOsFs(), rootDir)
}

// Get retrieves the value for the given key.
// Returns storage.ErrNotFound if the key does not exist.
func (f *FileStorage) Get(key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	filePath, err := f.keyToPath(key)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(f.fs, filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("file storage: failed to read key %q: %w", key, err)
	}

	return data, nil
}

// Put stores the value for the given key, overwriting any existing value.
func (f *FileStorage) Put(key string, value []byte, opts *storage.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	filePath, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if err := afero.WriteFile(f.fs, filePath, value, filePermissions(opts)); err != nil {
		return fmt.Errorf("file storage: failed to write key %q: %w", key, err)
	}

	return nil
}

// Delete removes the key and its value from storage.
// Returns storage.ErrNotFound if the key does not exist.
func (f *FileStorage) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	filePath, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if _, err := f.fs.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("file storage: failed to stat key %q: %w", key, err)
	}

	if err := f.fs.Remove(filePath); err != nil {
		return fmt.Errorf("file storage: failed to delete key %q: %w", key, err)
	}

	return nil
}

// List returns the regular files directly under the root whose names start
// with prefix, in lexicographic order. Subdirectories and their contents are
// not entries.
func (f *FileStorage) List(prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	infos, err := afero.ReadDir(f.fs, f.rootDir)
	if err != nil {
		return nil, fmt.Errorf("file storage: failed to list keys: %w", err)
	}

	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		if strings.HasPrefix(info.Name(), prefix) {
			keys = append(keys, info.Name())
		}
	}
	return keys, nil
}

// Exists checks if a key exists in storage.
func (f *FileStorage) Exists(key string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	filePath, err := f.keyToPath(key)
	if err != nil {
		return false, err
	}

	if _, err := f.fs.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("file storage: failed to check key %q: %w", key, err)
	}

	return true, nil
}

// Close is a no-op provided for interface compliance.
func (f *FileStorage) Close() error {
	return nil
}

// keyToPath maps a key to its file directly under the root
func (f *FileStorage) keyToPath(key string) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(f.rootDir, key), nil
}

func filePermissions(opts *storage.Options) fs.FileMode {
	if opts != nil && opts.Permissions != 0 {
		return opts.Permissions
	}
	return defaultPerms
}
