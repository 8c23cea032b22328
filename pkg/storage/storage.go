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

// Package storage provides the persistent key-value store the
// authenticator keeps its state in, with in-memory and file-backed
// implementations behind a common interface.
package storage

import (
	"errors"
	"fmt"
	"sync"
)

// Backend defines the interface for storage backends.
// All implementations must be thread-safe.
type Backend interface {
	// Get retrieves the value for the given key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) ([]byte, error)

	// Put stores the value for the given key, overwriting any
	// existing value.
	Put(key string, value []byte) error

	// Delete removes the key and its value from storage.
	// Returns ErrNotFound if the key does not exist.
	Delete(key string) error

	// List returns all keys with the given prefix.
	// If prefix is empty, all keys are returned.
	List(prefix string) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}

var (
	takeMu sync.Mutex
	taken  = make(map[Backend]struct{})
)

// Take claims exclusive ownership of a backend for the lifetime of the
// process. Two components sharing one backend corrupt each other's state
// in ways no runtime recovery can repair, so a second claim on the same
// backend is treated as an integration bug and panics.
func Take(backend Backend) Backend {
	takeMu.Lock()
	defer takeMu.Unlock()
	if _, ok := taken[backend]; ok {
		panic("storage: already taken")
	}
	taken[backend] = struct{}{}
	return backend
}

// Wipe deletes every key in the backend. Keys that vanish between the
// listing and the delete are not an error.
func Wipe(backend Backend) error {
	keys, err := backend.List("")
	if err != nil {
		return fmt.Errorf("storage: wipe: %w", err)
	}
	for _, key := range keys {
		if err := backend.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("storage: wipe %q: %w", key, err)
		}
	}
	return nil
}
