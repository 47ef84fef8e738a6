// Package kv defines the key-value contract backing the site's cache layer.
//
// Every backend (in-process map, on-disk files, BadgerDB, bbolt, S3, signed
// client session) implements Store identically and is selected once at
// startup by pkg/config. Callers never branch on the backend type.
//
// Concurrency:
// Stores must be safe for concurrent Get/Set/Remove from multiple requests.
// No locking is layered on top of a backend; each one relies on its own
// guarantees (mutex, OS, MVCC, bbolt transactions, S3 consistency).
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Remove when the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is the uniform get/set/remove contract.
//
// Values are opaque byte slices. Implementations must copy values on both Set
// and Get so callers may reuse their buffers.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Returns ErrNotFound if the key was absent.
	Remove(ctx context.Context, key string) error

	// Close releases backend resources. Further calls return ErrClosed.
	Close() error
}

// GetOrDefault returns the value under key, or def when the key is absent.
//
// Any error other than ErrNotFound is returned together with def.
func GetOrDefault(ctx context.Context, s Store, key string, def []byte) ([]byte, error) {
	value, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return value, nil
}

// Has reports whether key is present.
func Has(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clone returns a copy of b. Empty input yields a non-nil empty slice.
func Clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
