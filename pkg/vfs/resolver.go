package vfs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/marmos91/dittosite/internal/logger"
	"github.com/marmos91/dittosite/pkg/cache"
	"github.com/marmos91/dittosite/pkg/identity"
	"github.com/marmos91/dittosite/pkg/remote"
	"github.com/marmos91/dittosite/pkg/store/kv"
)

// Config holds the request-scoped collaborators of a Resolver.
type Config struct {
	// Capability supplies the author connection and the viewer.
	Capability identity.Capability

	// Store backs the cache layer.
	Store kv.Store

	// Renderer wraps rendered pages. Optional.
	Renderer Renderer

	// CacheOptions are passed to cache.New.
	CacheOptions []cache.Option
}

// Resolver maps paths to nodes for one connection. Every resolution,
// including absence, is remembered for the resolver's lifetime.
//
// A Resolver is not safe for concurrent use.
type Resolver struct {
	capability identity.Capability
	renderer   Renderer
	cache      *cache.Cache

	// lower-cased path -> node; a nil node records absence
	resolved map[string]*File
}

// NewResolver creates a resolver for one request.
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{
		capability: cfg.Capability,
		renderer:   cfg.Renderer,
		resolved:   make(map[string]*File),
	}
	if r.capability == nil {
		r.capability = identity.Static{}
	}
	if author := r.capability.Author(); author != nil && cfg.Store != nil {
		r.cache = cache.New(cfg.Store, author.Client, author.AccountID, cfg.CacheOptions...)
	}
	return r
}

// Capability returns the capability the resolver acts with.
func (r *Resolver) Capability() identity.Capability {
	return r.capability
}

// Resolve returns the node at p, or nil when nothing lives there.
func (r *Resolver) Resolve(ctx context.Context, p string) (*File, error) {
	// ====== Step 1: Normalize ======
	p = remote.NormalizePath(p)
	key := strings.ToLower(p)

	// ====== Step 2: Per-connection cache ======
	if f, ok := r.resolved[key]; ok {
		return f, nil
	}

	// ====== Step 3: Author capability ======
	author, err := r.author(p)
	if err != nil {
		return nil, err
	}

	// ====== Step 4: Resolved parent shortcut ======
	if p != "/" {
		if parent := r.resolved[strings.ToLower(path.Dir(p))]; parent != nil && parent.IsDir() {
			name := path.Base(p)
			md, listed := parent.Child(name)
			if !listed {
				logger.Debug("resolve %s: not listed in resolved parent", p)
				r.resolved[key] = nil
				return nil, nil
			}
			if !md.IsDir {
				f, err := parent.GetFile(name)
				if err != nil {
					return nil, err
				}
				r.resolved[key] = f
				return f, nil
			}
		}
	}

	// ====== Step 5: Remote metadata ======
	result, err := author.Client.Metadata(ctx, p, remote.MetadataOptions{})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", p, err)
	}
	if result.Status == remote.StatusNotFound || result.Metadata == nil || result.Metadata.IsDeleted {
		r.resolved[key] = nil
		return nil, nil
	}
	md := result.Metadata

	// ====== Step 6: Full directory listing ======
	if md.IsDir {
		c, err := r.cacheFor(p)
		if err != nil {
			return nil, err
		}
		full, err := c.DirMetadata(ctx, md)
		if err != nil {
			return nil, &Error{Code: ErrIncompleteListing, Message: "failed to list directory", Path: p, Err: err}
		}
		if full == nil {
			r.resolved[key] = nil
			return nil, nil
		}
		md = full
	}

	// ====== Step 7: Build and record ======
	f, err := NewFile(md, r)
	if err != nil {
		return nil, err
	}
	r.resolved[key] = f
	return f, nil
}

// ResolveIn resolves name relative to dir. Absolute names ignore dir.
func (r *Resolver) ResolveIn(ctx context.Context, dir *File, name string) (*File, error) {
	if strings.HasPrefix(name, "/") || dir == nil {
		return r.Resolve(ctx, name)
	}
	base := dir.Path()
	if !dir.IsDir() {
		base = path.Dir(remote.NormalizePath(base))
	}
	return r.Resolve(ctx, path.Join(base, name))
}

// WriteFile stores data at p, overwriting, and returns the new metadata.
// Editable text is normalized before it leaves the process.
func (r *Resolver) WriteFile(ctx context.Context, p string, data []byte) (*remote.Metadata, error) {
	p = remote.NormalizePath(p)
	author, err := r.author(p)
	if err != nil {
		return nil, err
	}

	if IsEditableType(MimeTypeOf(p)) {
		data = []byte(remote.Normalize(string(data)))
	}

	md, err := author.Client.WriteFile(ctx, p, data, remote.WriteOptions{Overwrite: true})
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", p, err)
	}
	r.Forget(p)
	return md, nil
}

// DeleteFile removes p from the remote store.
func (r *Resolver) DeleteFile(ctx context.Context, p string) error {
	p = remote.NormalizePath(p)
	author, err := r.author(p)
	if err != nil {
		return err
	}
	if err := author.Client.DeleteFile(ctx, p); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	r.Forget(p)
	return nil
}

// Forget drops p and its parent from the connection cache so later
// resolutions observe a change made through this connection.
func (r *Resolver) Forget(p string) {
	if r == nil {
		return
	}
	p = remote.NormalizePath(p)
	delete(r.resolved, strings.ToLower(p))
	if p != "/" {
		delete(r.resolved, strings.ToLower(path.Dir(p)))
	}
}

func (r *Resolver) record(p string, f *File) {
	key := strings.ToLower(remote.NormalizePath(p))
	if _, ok := r.resolved[key]; !ok {
		r.resolved[key] = f
	}
}

func (r *Resolver) author(p string) (*identity.Author, error) {
	if r == nil || r.capability == nil {
		return nil, newError(ErrAuthorizationMissing, p, "no resolver")
	}
	author := r.capability.Author()
	if author == nil || author.Client == nil {
		return nil, newError(ErrAuthorizationMissing, p, "author is not connected")
	}
	return author, nil
}

func (r *Resolver) cacheFor(p string) (*cache.Cache, error) {
	if _, err := r.author(p); err != nil {
		return nil, err
	}
	if r.cache == nil {
		return nil, newError(ErrAuthorizationMissing, p, "no cache store configured")
	}
	return r.cache, nil
}
