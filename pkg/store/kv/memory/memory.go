package memory

import (
	"context"
	"sync"

	"github.com/marmos91/dittosite/pkg/store/kv"
)

// MemoryStore implements kv.Store using an in-process map.
//
// Characteristics:
//   - Fast: all operations are memory-speed
//   - Volatile: data is lost on restart
//   - Thread-safe: protected by RWMutex
//
// Values are copied on read and write to prevent data races with
// caller-owned buffers.
type MemoryStore struct {
	data   map[string][]byte
	closed bool
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}

	value, ok := s.data[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return kv.Clone(value), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}

	s.data[key] = kv.Clone(value)
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}

	if _, ok := s.data[key]; !ok {
		return kv.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Keys returns a snapshot of all stored keys in no particular order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.data = nil
	return nil
}
