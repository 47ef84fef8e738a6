package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittosite/pkg/store/kv"
)

// BadgerStore implements kv.Store on top of BadgerDB.
//
// BadgerDB's MVCC transactions provide the concurrency guarantees; no extra
// locking is layered on top. Entries persist across restarts.
type BadgerStore struct {
	db *badgerdb.DB
}

// BadgerStoreConfig configures a BadgerStore.
type BadgerStoreConfig struct {
	// DBPath is the directory where BadgerDB stores its files.
	DBPath string `mapstructure:"db_path"`

	// InMemory runs Badger without touching disk. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB and IndexCacheSizeMB tune Badger's caches.
	// Zero uses 64MB and 32MB respectively.
	BlockCacheSizeMB int64 `mapstructure:"block_cache_mb"`
	IndexCacheSizeMB int64 `mapstructure:"index_cache_mb"`
}

// NewBadgerStore opens (or creates) a BadgerDB-backed store.
func NewBadgerStore(ctx context.Context, config BadgerStoreConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badgerdb.Options
	if config.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, fmt.Errorf("badger store: db_path is required")
		}
		opts = badgerdb.DefaultOptions(config.DBPath)
	}

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}

	opts = opts.WithLoggingLevel(badgerdb.WARNING)
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	switch {
	case errors.Is(err, badgerdb.ErrKeyNotFound):
		return nil, kv.ErrNotFound
	case errors.Is(err, badgerdb.ErrDBClosed):
		return nil, kv.ErrClosed
	case err != nil:
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}

	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), kv.Clone(value))
	})
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return kv.ErrClosed
	}
	if err != nil {
		return fmt.Errorf("badger set %q: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})

	switch {
	case errors.Is(err, badgerdb.ErrKeyNotFound):
		return kv.ErrNotFound
	case errors.Is(err, badgerdb.ErrDBClosed):
		return kv.ErrClosed
	case err != nil:
		return fmt.Errorf("badger remove %q: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}
