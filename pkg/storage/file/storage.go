// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authenticator.
//
// go-authenticator is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package file provides a file-based implementation of the storage.Backend
// interface. Every key becomes one file in a flat directory, the file name
// being the hex encoding of the key, so keys may contain any byte without
// ever influencing the resulting path.
package file

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-authenticator/pkg/storage"
)

const (
	// Directory permissions (owner rwx only)
	dirPerms = 0700

	// File permissions (owner rw only)
	filePerms = 0600
)

// Storage is a file-based implementation of storage.Backend.
// Thread-safe using a read-write mutex.
type Storage struct {
	mu      sync.RWMutex
	rootDir string
}

// New creates a Storage rooted at the specified directory.
// The root directory is created with 0700 permissions if it doesn't exist.
func New(rootDir string) (*Storage, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}

	if err := os.MkdirAll(rootDir, dirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create root directory: %w", err)
	}

	return &Storage{
		rootDir: rootDir,
	}, nil
}

// Get retrieves the value for the given key.
// Returns storage.ErrNotFound if the key does not exist.
func (s *Storage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("file storage: failed to read key %q: %w", key, err)
	}
	return data, nil
}

// Put stores the value for the given key, overwriting any existing value.
func (s *Storage) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, value, filePerms); err != nil {
		return fmt.Errorf("file storage: failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes the key and its value from storage.
// Returns storage.ErrNotFound if the key does not exist.
func (s *Storage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("file storage: failed to delete key %q: %w", key, err)
	}
	return nil
}

// List returns all keys with the given prefix in sorted order.
// If prefix is empty, all keys are returned.
func (s *Storage) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("file storage: failed to list keys: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		decoded, err := hex.DecodeString(entry.Name())
		if err != nil {
			// Not one of ours; ignore it.
			continue
		}
		key := string(decoded)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Close releases any resources held by the backend.
// For file storage, this is a no-op but provided for interface compliance.
func (s *Storage) Close() error {
	return nil
}

// keyPath converts a storage key to the path of its backing file. The
// hex encoding keeps every byte of the key out of path interpretation.
func (s *Storage) keyPath(key string) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidKey
	}
	return filepath.Join(s.rootDir, hex.EncodeToString([]byte(key))), nil
}
