package vfs

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittosite/pkg/identity"
	"github.com/marmos91/dittosite/pkg/remote"
	remotetesting "github.com/marmos91/dittosite/pkg/remote/testing"
	"github.com/marmos91/dittosite/pkg/store/kv"
	kvmemory "github.com/marmos91/dittosite/pkg/store/kv/memory"
	"github.com/stretchr/testify/require"
)

const account = "dbid:author"

// scriptedRemote serves a fixed tree with exact revisions and hashes.
type scriptedRemote struct {
	mu      sync.Mutex
	entries map[string]*remote.Metadata
	data    map[string][]byte
	writes  map[string][]byte
}

func newScriptedRemote() *scriptedRemote {
	return &scriptedRemote{
		entries: map[string]*remote.Metadata{},
		data:    map[string][]byte{},
		writes:  map[string][]byte{},
	}
}

func (s *scriptedRemote) dir(p, rev, hash string) {
	s.entries[strings.ToLower(p)] = &remote.Metadata{Path: p, IsDir: true, Rev: rev, Hash: hash}
}

func (s *scriptedRemote) file(p, rev, content string) {
	s.entries[strings.ToLower(p)] = &remote.Metadata{
		Path:     p,
		Rev:      rev,
		Bytes:    int64(len(content)),
		Modified: remote.FormatTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	s.data[strings.ToLower(p)] = []byte(content)
}

func (s *scriptedRemote) AccountInfo(context.Context) (*remote.AccountInfo, error) {
	return &remote.AccountInfo{UID: account}, nil
}

func (s *scriptedRemote) Metadata(_ context.Context, p string, opts remote.MetadataOptions) (*remote.MetadataResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	md, ok := s.entries[strings.ToLower(p)]
	if !ok {
		return remote.NotFound(), nil
	}
	if md.IsDir && opts.Hash != "" && opts.Hash == md.Hash {
		return remote.NotModified(), nil
	}

	out := *md
	if md.IsDir && opts.List {
		prefix := strings.ToLower(strings.TrimSuffix(p, "/")) + "/"
		for k, child := range s.entries {
			rest := strings.TrimPrefix(k, prefix)
			if k == prefix || !strings.HasPrefix(k, prefix) || strings.Contains(rest, "/") {
				continue
			}
			out.Contents = append(out.Contents, *child)
		}
		sortByPath(out.Contents)
	}
	return remote.Found(&out), nil
}

func (s *scriptedRemote) ReadFile(_ context.Context, p, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[strings.ToLower(p)]
	if !ok {
		return nil, remote.NewError("read_file", p, http.StatusNotFound, nil)
	}
	return append([]byte(nil), data...), nil
}

func (s *scriptedRemote) WriteFile(_ context.Context, p string, data []byte, _ remote.WriteOptions) (*remote.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[p] = append([]byte(nil), data...)
	return &remote.Metadata{Path: p, Rev: "99", Bytes: int64(len(data))}, nil
}

func (s *scriptedRemote) DeleteFile(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, strings.ToLower(p))
	return nil
}

func (s *scriptedRemote) Thumbnail(_ context.Context, p, size string) ([]byte, error) {
	return []byte("jpeg:" + size), nil
}

func (s *scriptedRemote) TemporaryLink(_ context.Context, p string) (*remote.Link, error) {
	return &remote.Link{URL: "https://dl.example" + p, Expires: time.Now().Add(4 * time.Hour)}, nil
}

func sortByPath(mds []remote.Metadata) {
	for i := 1; i < len(mds); i++ {
		for j := i; j > 0 && mds[j].Path < mds[j-1].Path; j-- {
			mds[j], mds[j-1] = mds[j-1], mds[j]
		}
	}
}

// docsTree is the tree of the end-to-end scenario.
func docsTree() *scriptedRemote {
	s := newScriptedRemote()
	s.dir("/", "", "R0")
	s.dir("/docs", "5", "H1")
	s.file("/docs/readme.md", "1", "# Readme\n\nHello *docs*.")
	s.file("/docs/notes.txt", "1", "some notes")
	return s
}

type harness struct {
	store  kv.Store
	remote *scriptedRemote
	client *remotetesting.CountingClient
}

func newHarness(t *testing.T, s *scriptedRemote) *harness {
	t.Helper()
	store := kvmemory.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return &harness{store: store, remote: s, client: remotetesting.NewCountingClient(s)}
}

// resolver opens a new connection.
func (h *harness) resolver(renderer Renderer) *Resolver {
	return NewResolver(Config{
		Capability: identity.Static{
			AuthorAccount: &identity.Author{AccountID: account, Client: h.client},
		},
		Store:    h.store,
		Renderer: renderer,
	})
}

func mustResolve(t *testing.T, r *Resolver, p string) *File {
	t.Helper()
	f, err := r.Resolve(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, f, "expected %s to resolve", p)
	return f
}

func names(files []*File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name()
	}
	return out
}
