package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/dittosite/pkg/remote"
	"github.com/marmos91/dittosite/pkg/remote/memory"
	remotetesting "github.com/marmos91/dittosite/pkg/remote/testing"
	"github.com/marmos91/dittosite/pkg/store/kv"
	kvmemory "github.com/marmos91/dittosite/pkg/store/kv/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const account = "dbid:author"

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *kvmemory.MemoryStore
	remote *memory.Client
	client *remotetesting.CountingClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rc := memory.New(account, memory.WithClock(func() time.Time { return now }))
	return &fixture{
		store:  kvmemory.NewMemoryStore(),
		remote: rc,
		client: remotetesting.NewCountingClient(rc),
	}
}

func (f *fixture) cache(opts ...Option) *Cache {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return New(f.store, f.client, account, opts...)
}

func (f *fixture) write(t *testing.T, p, data string) *remote.Metadata {
	t.Helper()
	md, err := f.remote.WriteFile(context.Background(), p, []byte(data), remote.WriteOptions{Overwrite: true})
	require.NoError(t, err)
	return md
}

// ============================================================================
// Keys
// ============================================================================

func TestKey(t *testing.T) {
	a := Key(KindContent, account, "/docs/readme.md", "1")
	assert.Equal(t, a, Key(KindContent, account, "/docs/readme.md", "1"))
	assert.Equal(t, a, Key(KindContent, account, "/Docs/README.md", "1"))
	assert.NotEqual(t, a, Key(KindContent, account, "/docs/readme.md", "2"))
	assert.NotEqual(t, a, Key(KindDirectLink, account, "/docs/readme.md", "1"))
	assert.NotEqual(t, a, Key(KindContent, "dbid:other", "/docs/readme.md", "1"))

	assert.Equal(t, "content@"+account+"@"+PathHash("/docs/readme.md")+"@1", a)
	assert.Len(t, PathHash("/x"), 32)
	assert.Equal(t, "thumbnail-m", ThumbnailKind("m"))
}

// ============================================================================
// Content
// ============================================================================

func TestFileContent_HitSkipsRemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	md := f.write(t, "/docs/readme.md", "# Docs")

	first, err := f.cache().FileContent(ctx, md.Path, md.Rev)
	require.NoError(t, err)
	assert.Equal(t, "# Docs", string(first))
	assert.Equal(t, 1, f.client.Count(remotetesting.OpReadFile))

	// A new Cache value stands in for a new request.
	second, err := f.cache().FileContent(ctx, md.Path, md.Rev)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.client.Count(remotetesting.OpReadFile))

	_, err = f.store.Get(ctx, Key(KindContent, account, "/docs/readme.md", md.Rev))
	assert.NoError(t, err)
}

func TestFileContent_NewRevisionMisses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.cache()

	old := f.write(t, "/a.txt", "one")
	_, err := c.FileContent(ctx, old.Path, old.Rev)
	require.NoError(t, err)

	updated := f.write(t, "/a.txt", "two")
	data, err := c.FileContent(ctx, updated.Path, updated.Rev)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, 2, f.client.Count(remotetesting.OpReadFile))
}

func TestFileContent_RemoteErrorPropagates(t *testing.T) {
	f := newFixture(t)

	_, err := f.cache().FileContent(context.Background(), "/missing.txt", "1")
	assert.True(t, remote.IsNotFound(err))
	assert.Equal(t, 0, f.store.Len())
}

var errBackendDown = errors.New("backend down")

// failingStore fails every read and write.
type failingStore struct{ kv.Store }

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errBackendDown }
func (failingStore) Set(context.Context, string, []byte) error  { return errBackendDown }

// writeFailingStore reads normally and fails every write.
type writeFailingStore struct{ kv.Store }

func (writeFailingStore) Set(context.Context, string, []byte) error { return errBackendDown }

func TestStoreReadFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	md := f.write(t, "/a.txt", "content")
	c := New(failingStore{}, f.client, account)

	_, err := c.FileContent(ctx, md.Path, md.Rev)
	assert.ErrorIs(t, err, errBackendDown)

	_, err = c.DirectLink(ctx, md.Path, md.Rev)
	assert.ErrorIs(t, err, errBackendDown)

	_, err = c.Thumbnail(ctx, md.Path, md.Rev, "m")
	assert.ErrorIs(t, err, errBackendDown)

	_, err = c.DirMetadata(ctx, &remote.Metadata{Path: "/", IsDir: true})
	assert.ErrorIs(t, err, errBackendDown)

	assert.Zero(t, f.client.Count(remotetesting.OpReadFile), "no remote call after a failed read")
	assert.Zero(t, f.client.Count(remotetesting.OpTemporaryLink))
	assert.Zero(t, f.client.Count(remotetesting.OpThumbnail))
	assert.Zero(t, f.client.Count(remotetesting.OpMetadata))
}

func TestFileContent_StoreWriteFailureDoesNotFailRead(t *testing.T) {
	f := newFixture(t)
	md := f.write(t, "/a.txt", "content")

	c := New(writeFailingStore{Store: f.store}, f.client, account)
	data, err := c.FileContent(context.Background(), md.Path, md.Rev)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

// ============================================================================
// Direct links
// ============================================================================

func seedLink(t *testing.T, f *fixture, p, rev, url string, expires time.Time) {
	t.Helper()
	key := Key(KindDirectLink, account, p, rev)
	require.NoError(t, f.store.Set(context.Background(), key, encodeLink(&remote.Link{URL: url, Expires: expires})))
}

func TestDirectLink_ExpiringSoonIsRefreshed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	md := f.write(t, "/img/cat.jpg", "jpg")

	seedLink(t, f, md.Path, md.Rev, "https://old.example.com/cat.jpg", now.Add(30*time.Minute))

	link, err := f.cache().DirectLink(ctx, md.Path, md.Rev)
	require.NoError(t, err)
	assert.NotEqual(t, "https://old.example.com/cat.jpg", link.URL)
	assert.Equal(t, now.Add(memory.DefaultLinkTTL), link.Expires)
	assert.Equal(t, 1, f.client.Count(remotetesting.OpTemporaryLink))

	// The refreshed link overwrote the entry.
	data, err := f.store.Get(ctx, Key(KindDirectLink, account, md.Path, md.Rev))
	require.NoError(t, err)
	stored, err := decodeLink(data)
	require.NoError(t, err)
	assert.Equal(t, link.URL, stored.URL)
}

func TestDirectLink_LongLivedIsReused(t *testing.T) {
	f := newFixture(t)
	md := f.write(t, "/img/cat.jpg", "jpg")

	seedLink(t, f, md.Path, md.Rev, "https://cached.example.com/cat.jpg", now.Add(2*time.Hour))

	link, err := f.cache().DirectLink(context.Background(), md.Path, md.Rev)
	require.NoError(t, err)
	assert.Equal(t, "https://cached.example.com/cat.jpg", link.URL)
	assert.Equal(t, 0, f.client.Count(remotetesting.OpTemporaryLink))
}

func TestDirectLink_URLMayContainSeparator(t *testing.T) {
	link, err := decodeLink(encodeLink(&remote.Link{URL: "https://x/a?b=c|d", Expires: now}))
	require.NoError(t, err)
	assert.Equal(t, "https://x/a?b=c|d", link.URL)
	assert.True(t, link.Expires.Equal(now))
}

func TestDirectLink_UndecodableIsMiss(t *testing.T) {
	f := newFixture(t)
	md := f.write(t, "/img/cat.jpg", "jpg")
	require.NoError(t, f.store.Set(context.Background(), Key(KindDirectLink, account, md.Path, md.Rev), []byte("garbage")))

	_, err := f.cache().DirectLink(context.Background(), md.Path, md.Rev)
	require.NoError(t, err)
	assert.Equal(t, 1, f.client.Count(remotetesting.OpTemporaryLink))
}

// ============================================================================
// Thumbnails
// ============================================================================

func TestThumbnail_KeyedBySize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.Set(ctx, Key(ThumbnailKind("s"), account, "/img/cat.jpg", "3"), []byte("small")))
	require.NoError(t, f.store.Set(ctx, Key(ThumbnailKind("l"), account, "/img/cat.jpg", "3"), []byte("large")))

	c := f.cache()

	small, err := c.Thumbnail(ctx, "/img/cat.jpg", "3", "s")
	require.NoError(t, err)
	assert.Equal(t, "small", string(small))

	// Unknown sizes resolve to the default size.
	fallback, err := c.Thumbnail(ctx, "/img/cat.jpg", "3", "giant")
	require.NoError(t, err)
	assert.Equal(t, "large", string(fallback))

	assert.Equal(t, 0, f.client.Count(remotetesting.OpThumbnail))
}

// ============================================================================
// Directory listings
// ============================================================================

func TestDirMetadata_MissFetchesAndStores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, "/docs/readme.md", "r")

	listing, err := f.cache().DirMetadata(ctx, &remote.Metadata{Path: "/docs", IsDir: true, Rev: "5"})
	require.NoError(t, err)
	require.NotNil(t, listing)
	assert.Len(t, listing.Contents, 1)

	calls := f.client.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Opts.List)
	assert.Empty(t, calls[0].Opts.Hash)

	_, err = f.store.Get(ctx, Key(KindDirMetadata, account, "/docs", "5"))
	assert.NoError(t, err)
}

func TestDirMetadata_NotModifiedReturnsCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cached := &remote.Metadata{
		Path: "/docs", IsDir: true, Rev: "5", Hash: "H1",
		Contents: []remote.Metadata{{Path: "/docs/readme.md", Rev: "1"}},
	}
	data, err := encodeMetadata(cached)
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, Key(KindDirMetadata, account, "/docs", "5"), data))

	f.client.MetadataFunc = func(_ context.Context, _ string, opts remote.MetadataOptions) (*remote.MetadataResult, error) {
		assert.Equal(t, "H1", opts.Hash)
		return remote.NotModified(), nil
	}

	listing, err := f.cache().DirMetadata(ctx, &remote.Metadata{Path: "/docs", IsDir: true, Rev: "5"})
	require.NoError(t, err)
	assert.Equal(t, cached, listing)
}

func TestDirMetadata_NotFoundReturnsAbsence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	data, err := encodeMetadata(&remote.Metadata{Path: "/docs", IsDir: true, Hash: "H1"})
	require.NoError(t, err)
	key := Key(KindDirMetadata, account, "/docs", "root")
	require.NoError(t, f.store.Set(ctx, key, data))

	f.client.MetadataFunc = func(context.Context, string, remote.MetadataOptions) (*remote.MetadataResult, error) {
		return remote.NotFound(), nil
	}

	listing, err := f.cache().DirMetadata(ctx, &remote.Metadata{Path: "/docs", IsDir: true})
	require.NoError(t, err)
	assert.Nil(t, listing)

	// Nothing new was written forward.
	stored, err := f.store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, stored)
	assert.Equal(t, 1, f.store.Len())
}

func TestDirMetadata_NotFoundOnMissStoresNothing(t *testing.T) {
	f := newFixture(t)

	listing, err := f.cache().DirMetadata(context.Background(), &remote.Metadata{Path: "/gone", IsDir: true})
	require.NoError(t, err)
	assert.Nil(t, listing)
	assert.Equal(t, 0, f.store.Len())
}

func TestDirMetadata_ChangedReplacesCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, "/docs/readme.md", "r")

	c := f.cache()
	dir := &remote.Metadata{Path: "/docs", IsDir: true, Rev: "5"}

	first, err := c.DirMetadata(ctx, dir)
	require.NoError(t, err)
	require.Len(t, first.Contents, 1)

	f.write(t, "/docs/notes.txt", "n")

	second, err := c.DirMetadata(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, second.Contents, 2)
	assert.NotEqual(t, first.Hash, second.Hash)

	calls := f.client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, first.Hash, calls[1].Opts.Hash)

	data, err := f.store.Get(ctx, Key(KindDirMetadata, account, "/docs", "5"))
	require.NoError(t, err)
	stored, err := decodeMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, second, stored)

	// Unchanged since: validated hit.
	third, err := c.DirMetadata(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, second, third)
}

func TestDirMetadata_UndecodableIsMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, "/docs/readme.md", "r")
	require.NoError(t, f.store.Set(ctx, Key(KindDirMetadata, account, "/docs", "root"), []byte{0xff, 0x00}))

	listing, err := f.cache().DirMetadata(ctx, &remote.Metadata{Path: "/docs", IsDir: true})
	require.NoError(t, err)
	require.NotNil(t, listing)

	calls := f.client.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Opts.Hash)
}

// ============================================================================
// Metrics
// ============================================================================

type countingMetrics struct {
	hits, misses, storeErrors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{hits: map[string]int{}, misses: map[string]int{}, storeErrors: map[string]int{}}
}

func (m *countingMetrics) ObserveLookup(kind string, hit bool) {
	if hit {
		m.hits[kind]++
	} else {
		m.misses[kind]++
	}
}

func (m *countingMetrics) ObserveStoreError(kind string) { m.storeErrors[kind]++ }

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	md := f.write(t, "/a.txt", "a")
	m := newCountingMetrics()
	c := f.cache(WithMetrics(m))

	_, err := c.FileContent(ctx, md.Path, md.Rev)
	require.NoError(t, err)
	_, err = c.FileContent(ctx, md.Path, md.Rev)
	require.NoError(t, err)

	assert.Equal(t, 1, m.misses[KindContent])
	assert.Equal(t, 1, m.hits[KindContent])

	failing := New(failingStore{}, f.client, account, WithMetrics(m))
	_, err = failing.FileContent(ctx, md.Path, md.Rev)
	require.Error(t, err)
	assert.Equal(t, 1, m.storeErrors[KindContent])

	writeFailing := New(writeFailingStore{Store: kvmemory.NewMemoryStore()}, f.client, account, WithMetrics(m))
	_, err = writeFailing.FileContent(ctx, md.Path, md.Rev)
	require.NoError(t, err)
	assert.Equal(t, 2, m.storeErrors[KindContent])
}
