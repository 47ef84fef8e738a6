package bbolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittosite/pkg/store/kv"
	bolt "go.etcd.io/bbolt"
)

// DefaultBucket is used when no bucket name is configured.
const DefaultBucket = "cache"

// BoltStore implements kv.Store in a single bbolt database file.
//
// All entries live in one bucket. bbolt serializes writers and gives readers
// consistent snapshots, which covers the concurrency contract.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

// BoltStoreConfig configures a BoltStore.
type BoltStoreConfig struct {
	// Path is the database file. Its parent directory must exist.
	Path string `mapstructure:"path"`

	// Bucket names the bucket holding entries. Default: "cache".
	Bucket string `mapstructure:"bucket"`

	// Timeout bounds how long Open waits for the file lock. Default: 1s.
	Timeout time.Duration `mapstructure:"timeout"`
}

// NewBoltStore opens the database file and creates the bucket if needed.
func NewBoltStore(ctx context.Context, config BoltStoreConfig) (*BoltStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if config.Path == "" {
		return nil, fmt.Errorf("bbolt store: path is required")
	}
	if config.Bucket == "" {
		config.Bucket = DefaultBucket
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Second
	}

	db, err := bolt.Open(config.Path, 0o600, &bolt.Options{Timeout: config.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database at %s: %w", config.Path, err)
	}

	bucket := []byte(config.Bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %q: %w", config.Bucket, err)
	}

	return &BoltStore{db: db, bucket: bucket}, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return kv.ErrNotFound
		}
		// v is only valid for the life of the transaction
		value = kv.Clone(v)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return value, nil
}

func (s *BoltStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), kv.Clone(value))
	})
	return translate(err)
}

func (s *BoltStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b.Get([]byte(key)) == nil {
			return kv.ErrNotFound
		}
		return b.Delete([]byte(key))
	})
	return translate(err)
}

func (s *BoltStore) Close() error {
	err := s.db.Close()
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return nil
	}
	return err
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kv.ErrNotFound):
		return kv.ErrNotFound
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return kv.ErrClosed
	default:
		return fmt.Errorf("bbolt: %w", err)
	}
}
