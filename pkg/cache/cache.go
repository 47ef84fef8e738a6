// Package cache wraps the remote resources the site serves in a kv.Store.
//
// Four resources are cached, each with its own freshness rule:
//
//   - file content: keyed by revision, never revalidated
//   - thumbnails: keyed by revision and size, never revalidated
//   - direct links: reused while more than MinLinkValidity remains
//   - directory listings: revalidated against the content hash on every hit
//
// A revision change yields a new key, which is the whole invalidation
// strategy for the first three. A Cache is built per request and holds no
// state of its own; concurrency safety comes from the backing store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittosite/internal/logger"
	"github.com/marmos91/dittosite/pkg/remote"
	"github.com/marmos91/dittosite/pkg/store/kv"
)

// MinLinkValidity is how long a cached direct link must remain valid to be
// reused.
const MinLinkValidity = time.Hour

// Metrics records cache lookups. A nil Metrics disables collection.
type Metrics interface {
	ObserveLookup(kind string, hit bool)
	ObserveStoreError(kind string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveLookup(string, bool) {}
func (noopMetrics) ObserveStoreError(string)   {}

// Cache serves remote resources through a kv.Store.
type Cache struct {
	store   kv.Store
	client  remote.Client
	account string

	now             func() time.Time
	metrics         Metrics
	minLinkValidity time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for link expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics installs a metrics sink. nil keeps the no-op sink.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithMinLinkValidity overrides MinLinkValidity.
func WithMinLinkValidity(d time.Duration) Option {
	return func(c *Cache) { c.minLinkValidity = d }
}

// New creates a cache for accountID's resources.
func New(store kv.Store, client remote.Client, accountID string, opts ...Option) *Cache {
	c := &Cache{
		store:           store,
		client:          client,
		account:         accountID,
		now:             time.Now,
		metrics:         noopMetrics{},
		minLinkValidity: MinLinkValidity,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Account returns the account id keys are derived from.
func (c *Cache) Account() string {
	return c.account
}

// lookup reads key. A missing key is a miss; any other backend failure is
// returned to the caller.
func (c *Cache) lookup(ctx context.Context, kind, key string) ([]byte, bool, error) {
	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return nil, false, nil
	case err != nil:
		c.metrics.ObserveStoreError(kind)
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return data, true, nil
}

// save writes key. Failures are logged and never fail the read.
func (c *Cache) save(ctx context.Context, kind, key string, value []byte) {
	if err := c.store.Set(ctx, key, value); err != nil {
		logger.Warn("cache set %s failed: %v", key, err)
		c.metrics.ObserveStoreError(kind)
	}
}

// FileContent returns the content of path at rev.
func (c *Cache) FileContent(ctx context.Context, path, rev string) ([]byte, error) {
	key := Key(KindContent, c.account, path, fileRev(rev))

	data, ok, err := c.lookup(ctx, KindContent, key)
	if err != nil {
		return nil, err
	}
	if ok {
		logger.Debug("cache hit %s", key)
		c.metrics.ObserveLookup(KindContent, true)
		return data, nil
	}
	c.metrics.ObserveLookup(KindContent, false)
	logger.Debug("cache miss %s", key)

	data, err = c.client.ReadFile(ctx, path, rev)
	if err != nil {
		return nil, fmt.Errorf("fetch content %s: %w", path, err)
	}

	c.save(ctx, KindContent, key, data)
	return data, nil
}

// DirectLink returns a temporary download link for path at rev.
//
// A cached link is reused only when it expires more than MinLinkValidity
// from now; otherwise a fresh link is fetched and overwrites the entry.
func (c *Cache) DirectLink(ctx context.Context, path, rev string) (*remote.Link, error) {
	key := Key(KindDirectLink, c.account, path, fileRev(rev))

	data, ok, err := c.lookup(ctx, KindDirectLink, key)
	if err != nil {
		return nil, err
	}
	if ok {
		link, err := decodeLink(data)
		switch {
		case err != nil:
			logger.Debug("cache entry %s undecodable: %v", key, err)
		case link.Expires.Sub(c.now()) > c.minLinkValidity:
			logger.Debug("cache hit %s", key)
			c.metrics.ObserveLookup(KindDirectLink, true)
			return link, nil
		default:
			logger.Debug("cache stale %s: expires %s", key, link.Expires)
		}
	}
	c.metrics.ObserveLookup(KindDirectLink, false)

	link, err := c.client.TemporaryLink(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch direct link %s: %w", path, err)
	}

	c.save(ctx, KindDirectLink, key, encodeLink(link))
	return link, nil
}

// Thumbnail returns a JPEG thumbnail of path at rev. Unknown sizes fall
// back to the default size.
func (c *Cache) Thumbnail(ctx context.Context, path, rev, size string) ([]byte, error) {
	size, _ = remote.ThumbnailSize(size)
	key := Key(ThumbnailKind(size), c.account, path, fileRev(rev))

	data, ok, err := c.lookup(ctx, KindThumbnail, key)
	if err != nil {
		return nil, err
	}
	if ok {
		logger.Debug("cache hit %s", key)
		c.metrics.ObserveLookup(KindThumbnail, true)
		return data, nil
	}
	c.metrics.ObserveLookup(KindThumbnail, false)

	data, err = c.client.Thumbnail(ctx, path, size)
	if err != nil {
		return nil, fmt.Errorf("fetch thumbnail %s: %w", path, err)
	}

	c.save(ctx, KindThumbnail, key, data)
	return data, nil
}

// DirMetadata returns the full listing of the directory described by md.
//
// A cached listing is revalidated with its content hash: not modified
// returns it unchanged, not found returns nil (and nothing is stored), any
// other success replaces it. Without a cached listing the directory is
// fetched unconditionally. A nil result with a nil error means the
// directory no longer exists.
func (c *Cache) DirMetadata(ctx context.Context, md *remote.Metadata) (*remote.Metadata, error) {
	key := Key(KindDirMetadata, c.account, md.Path, dirRev(md.Rev))

	var cached *remote.Metadata
	data, ok, err := c.lookup(ctx, KindDirMetadata, key)
	if err != nil {
		return nil, err
	}
	if ok {
		decoded, err := decodeMetadata(data)
		if err != nil {
			logger.Debug("cache entry %s undecodable: %v", key, err)
		} else {
			cached = decoded
		}
	}

	opts := remote.MetadataOptions{List: true}
	if cached != nil {
		opts.Hash = cached.Hash
	}

	result, err := c.client.Metadata(ctx, md.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", md.Path, err)
	}

	switch result.Status {
	case remote.StatusNotModified:
		if cached == nil {
			return nil, fmt.Errorf("fetch listing %s: unexpected not-modified without validation hash", md.Path)
		}
		logger.Debug("cache hit %s (validated)", key)
		c.metrics.ObserveLookup(KindDirMetadata, true)
		return cached, nil

	case remote.StatusNotFound:
		logger.Debug("listing %s vanished", md.Path)
		c.metrics.ObserveLookup(KindDirMetadata, false)
		return nil, nil
	}

	c.metrics.ObserveLookup(KindDirMetadata, false)
	fresh := result.Metadata

	data, err = encodeMetadata(fresh)
	if err != nil {
		logger.Warn("cache encode %s failed: %v", key, err)
		return fresh, nil
	}
	c.save(ctx, KindDirMetadata, key, data)
	return fresh, nil
}
