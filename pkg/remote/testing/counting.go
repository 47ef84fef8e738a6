// Package testing provides remote.Client test doubles.
package testing

import (
	"context"
	"sync"

	"github.com/marmos91/dittosite/pkg/remote"
)

// Op names used by CountingClient.
const (
	OpAccountInfo   = "account_info"
	OpMetadata      = "metadata"
	OpReadFile      = "read_file"
	OpWriteFile     = "write_file"
	OpDeleteFile    = "delete_file"
	OpThumbnail     = "thumbnail"
	OpTemporaryLink = "temporary_link"
)

// Call records one invocation.
type Call struct {
	Op   string
	Path string
	Opts remote.MetadataOptions
}

// CountingClient wraps a remote.Client and records every call, so tests can
// assert how many times the remote was contacted.
type CountingClient struct {
	Inner remote.Client

	mu    sync.Mutex
	calls []Call

	// Hooks, when set, replace the inner call for that operation.
	MetadataFunc      func(ctx context.Context, path string, opts remote.MetadataOptions) (*remote.MetadataResult, error)
	TemporaryLinkFunc func(ctx context.Context, path string) (*remote.Link, error)
}

// NewCountingClient wraps inner.
func NewCountingClient(inner remote.Client) *CountingClient {
	return &CountingClient{Inner: inner}
}

func (c *CountingClient) record(call Call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

// Calls returns a copy of the recorded calls.
func (c *CountingClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Count returns the number of calls to op.
func (c *CountingClient) Count(op string) int {
	return c.CountPath(op, "")
}

// CountPath returns the number of calls to op on path. An empty path
// matches every path.
func (c *CountingClient) CountPath(op, path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Op == op && (path == "" || call.Path == path) {
			n++
		}
	}
	return n
}

// Reset clears the recorded calls.
func (c *CountingClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

func (c *CountingClient) AccountInfo(ctx context.Context) (*remote.AccountInfo, error) {
	c.record(Call{Op: OpAccountInfo})
	return c.Inner.AccountInfo(ctx)
}

func (c *CountingClient) Metadata(ctx context.Context, path string, opts remote.MetadataOptions) (*remote.MetadataResult, error) {
	c.record(Call{Op: OpMetadata, Path: path, Opts: opts})
	if c.MetadataFunc != nil {
		return c.MetadataFunc(ctx, path, opts)
	}
	return c.Inner.Metadata(ctx, path, opts)
}

func (c *CountingClient) ReadFile(ctx context.Context, path, rev string) ([]byte, error) {
	c.record(Call{Op: OpReadFile, Path: path})
	return c.Inner.ReadFile(ctx, path, rev)
}

func (c *CountingClient) WriteFile(ctx context.Context, path string, data []byte, opts remote.WriteOptions) (*remote.Metadata, error) {
	c.record(Call{Op: OpWriteFile, Path: path})
	return c.Inner.WriteFile(ctx, path, data, opts)
}

func (c *CountingClient) DeleteFile(ctx context.Context, path string) error {
	c.record(Call{Op: OpDeleteFile, Path: path})
	return c.Inner.DeleteFile(ctx, path)
}

func (c *CountingClient) Thumbnail(ctx context.Context, path, size string) ([]byte, error) {
	c.record(Call{Op: OpThumbnail, Path: path})
	return c.Inner.Thumbnail(ctx, path, size)
}

func (c *CountingClient) TemporaryLink(ctx context.Context, path string) (*remote.Link, error) {
	c.record(Call{Op: OpTemporaryLink, Path: path})
	if c.TemporaryLinkFunc != nil {
		return c.TemporaryLinkFunc(ctx, path)
	}
	return c.Inner.TemporaryLink(ctx, path)
}
