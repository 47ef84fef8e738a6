package fs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/marmos91/dittosite/pkg/store/kv"
)

// FSStore implements kv.Store with one file per key under a root directory.
//
// Keys are path-escaped and prefixed with "k-", so cache keys containing '@'
// or ':' map to flat, portable names inside the root. Writes go to a temporary
// file and are renamed into place, so concurrent readers never observe a
// partial value.
//
// When Compress is enabled values are stored zstd-encoded. A store must be
// reopened with the same setting it was written with.
type FSStore struct {
	root     string
	compress bool
	closed   atomic.Bool

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// FSStoreConfig configures an FSStore.
type FSStoreConfig struct {
	// Path is the directory holding the entries. Created if missing.
	Path string `mapstructure:"path"`

	// Compress stores values zstd-compressed.
	Compress bool `mapstructure:"compress"`
}

// NewFSStore creates a filesystem-backed store rooted at config.Path.
func NewFSStore(ctx context.Context, config FSStoreConfig) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if config.Path == "" {
		return nil, fmt.Errorf("filesystem store: path is required")
	}

	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", config.Path, err)
	}

	s := &FSStore{
		root:     config.Path,
		compress: config.Compress,
	}

	if config.Compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder initialization failed: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			_ = enc.Close()
			return nil, fmt.Errorf("zstd decoder initialization failed: %w", err)
		}
		s.encoder = enc
		s.decoder = dec
	}

	return s, nil
}

// pathFor maps key to a file directly under root. The "k-" prefix keeps
// "", "." and ".." from naming root or its parent, and keeps keys apart
// from the ".tmp-*" files written by Set.
func (s *FSStore) pathFor(key string) string {
	return filepath.Join(s.root, "k-"+url.PathEscape(key))
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, kv.ErrClosed
	}

	data, err := os.ReadFile(s.pathFor(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %q: %w", key, err)
	}

	if !s.compress {
		return data, nil
	}

	value, err := s.decoder.DecodeAll(data, make([]byte, 0, len(data)))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress %q: %w", key, err)
	}
	return value, nil
}

func (s *FSStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return kv.ErrClosed
	}

	data := value
	if s.compress {
		data = s.encoder.EncodeAll(value, nil)
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write entry %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close entry %q: %w", key, err)
	}

	if err := os.Rename(tmpName, s.pathFor(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit entry %q: %w", key, err)
	}
	return nil
}

func (s *FSStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return kv.ErrClosed
	}

	err := os.Remove(s.pathFor(key))
	if errors.Is(err, os.ErrNotExist) {
		return kv.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to remove entry %q: %w", key, err)
	}
	return nil
}

func (s *FSStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.encoder != nil {
		_ = s.encoder.Close()
	}
	if s.decoder != nil {
		s.decoder.Close()
	}
	return nil
}
