// Package memory implements remote.Client as an in-process tree.
//
// It models the provider's semantics closely enough for development and
// tests: monotonically increasing revisions, per-file revision history,
// tombstones for deleted paths, directory content hashes that support 304
// validation, and temporary links with an expiry.
package memory

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittosite/pkg/remote"
)

// DefaultLinkTTL is the lifetime of temporary links.
const DefaultLinkTTL = 4 * time.Hour

type entry struct {
	path     string
	isDir    bool
	rev      string
	modified time.Time
	deleted  bool

	// files only
	data    []byte
	history map[string][]byte

	// directories only, lower-cased child names in insertion order
	children []string
}

// Client is an in-memory remote store bound to one account.
type Client struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextRev uint64

	account remote.AccountInfo
	linkTTL time.Duration
	linkURL string
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLinkTTL sets the lifetime of temporary links.
func WithLinkTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.linkTTL = ttl
		}
	}
}

// WithLinkBaseURL sets the URL temporary links are issued under.
func WithLinkBaseURL(base string) Option {
	return func(c *Client) { c.linkURL = strings.TrimSuffix(base, "/") }
}

// WithDisplayName sets the account display name.
func WithDisplayName(name string) Option {
	return func(c *Client) { c.account.DisplayName = name }
}

// New creates an empty tree owned by accountID.
func New(accountID string, opts ...Option) *Client {
	c := &Client{
		entries: make(map[string]*entry),
		account: remote.AccountInfo{UID: accountID, DisplayName: accountID},
		linkTTL: DefaultLinkTTL,
		linkURL: "memory://" + url.PathEscape(accountID),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.entries["/"] = &entry{path: "/", isDir: true, rev: c.bumpRev(), modified: c.now()}
	return c
}

func key(p string) string {
	return strings.ToLower(p)
}

func (c *Client) bumpRev() string {
	c.nextRev++
	return strconv.FormatUint(c.nextRev, 10)
}

// lookup returns the live entry for p, or nil.
func (c *Client) lookup(p string) *entry {
	e, ok := c.entries[key(p)]
	if !ok || e.deleted {
		return nil
	}
	return e
}

func (c *Client) AccountInfo(ctx context.Context) (*remote.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info := c.account
	return &info, nil
}

func (c *Client) Metadata(ctx context.Context, p string, opts remote.MetadataOptions) (*remote.MetadataResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = remote.NormalizePath(p)

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key(p)]
	if !ok || (e.deleted && !opts.IncludeDeleted) {
		return remote.NotFound(), nil
	}

	if opts.Rev != "" && !e.isDir && e.rev != opts.Rev {
		if _, ok := e.history[opts.Rev]; !ok {
			return remote.NotFound(), nil
		}
	}

	md := c.metadataOf(e)

	if e.isDir {
		children := c.childMetadata(e, opts.IncludeDeleted)
		md.Hash = remote.DirectoryHash(c.childMetadata(e, true))
		if opts.Hash != "" && opts.Hash == md.Hash {
			return remote.NotModified(), nil
		}
		if opts.List {
			limit := opts.FileLimit
			if limit <= 0 {
				limit = remote.DefaultFileLimit
			}
			if len(children) > limit {
				return nil, remote.NewError("metadata", p, http.StatusNotAcceptable,
					fmt.Errorf("listing has %d entries, limit is %d", len(children), limit))
			}
			md.Contents = children
		}
	}

	if opts.Rev != "" && !e.isDir {
		md.Rev = opts.Rev
		md.Bytes = int64(len(e.history[opts.Rev]))
	}

	return remote.Found(md), nil
}

func (c *Client) metadataOf(e *entry) *remote.Metadata {
	md := &remote.Metadata{
		Path:      e.path,
		IsDir:     e.isDir,
		Rev:       e.rev,
		Modified:  remote.FormatTime(e.modified),
		IsDeleted: e.deleted,
	}
	if !e.isDir {
		md.Bytes = int64(len(e.data))
		md.MimeType = mime.TypeByExtension(path.Ext(e.path))
	}
	return md
}

func (c *Client) childMetadata(dir *entry, includeDeleted bool) []remote.Metadata {
	children := make([]remote.Metadata, 0, len(dir.children))
	for _, name := range dir.children {
		childKey := key(path.Join(dir.path, name))
		child, ok := c.entries[childKey]
		if !ok || (child.deleted && !includeDeleted) {
			continue
		}
		children = append(children, *c.metadataOf(child))
	}
	return children
}

func (c *Client) ReadFile(ctx context.Context, p, rev string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = remote.NormalizePath(p)

	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.lookup(p)
	if e == nil {
		return nil, remote.NewError("read_file", p, http.StatusNotFound, nil)
	}
	if e.isDir {
		return nil, remote.NewError("read_file", p, http.StatusBadRequest, fmt.Errorf("path is a directory"))
	}

	data := e.data
	if rev != "" && rev != e.rev {
		old, ok := e.history[rev]
		if !ok {
			return nil, remote.NewError("read_file", p, http.StatusNotFound, fmt.Errorf("revision %s not found", rev))
		}
		data = old
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *Client) WriteFile(ctx context.Context, p string, data []byte, opts remote.WriteOptions) (*remote.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = remote.NormalizePath(p)
	if p == "/" {
		return nil, remote.NewError("write_file", p, http.StatusBadRequest, fmt.Errorf("cannot write the root"))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	parent, err := c.mkdirAll(path.Dir(p))
	if err != nil {
		return nil, remote.NewError("write_file", p, http.StatusConflict, err)
	}

	e := c.lookup(p)
	if e != nil {
		if e.isDir {
			return nil, remote.NewError("write_file", p, http.StatusConflict, fmt.Errorf("path is a directory"))
		}
		if !opts.Overwrite {
			return nil, remote.NewError("write_file", p, http.StatusConflict, fmt.Errorf("file exists"))
		}
		if opts.ParentRev != "" && opts.ParentRev != e.rev {
			return nil, remote.NewError("write_file", p, http.StatusConflict,
				fmt.Errorf("parent revision %s does not match %s", opts.ParentRev, e.rev))
		}
	} else {
		if prev, ok := c.entries[key(p)]; ok {
			// Resurrect a tombstone in place, keeping its history.
			e = prev
			e.deleted = false
			e.isDir = false
		} else {
			e = &entry{path: path.Join(parent.path, path.Base(p)), history: make(map[string][]byte)}
			c.entries[key(p)] = e
			parent.children = append(parent.children, key(path.Base(p)))
		}
		if e.history == nil {
			e.history = make(map[string][]byte)
		}
	}

	e.data = append([]byte(nil), data...)
	e.rev = c.bumpRev()
	e.history[e.rev] = e.data
	e.modified = c.now()
	c.touch(parent)

	return c.metadataOf(e), nil
}

// mkdirAll creates the directories of p that do not exist and returns the
// entry for p. Caller holds the write lock.
func (c *Client) mkdirAll(p string) (*entry, error) {
	if e := c.lookup(p); e != nil {
		if !e.isDir {
			return nil, fmt.Errorf("%s is a file", e.path)
		}
		return e, nil
	}

	parent, err := c.mkdirAll(path.Dir(p))
	if err != nil {
		return nil, err
	}

	e, ok := c.entries[key(p)]
	if ok {
		e.deleted = false
		e.isDir = true
		e.data = nil
	} else {
		e = &entry{path: path.Join(parent.path, path.Base(p)), isDir: true}
		c.entries[key(p)] = e
		parent.children = append(parent.children, key(path.Base(p)))
	}
	e.rev = c.bumpRev()
	e.modified = c.now()
	c.touch(parent)
	return e, nil
}

// touch records a listing change on dir. Directory revisions stay stable;
// the content hash tracks listing changes.
func (c *Client) touch(dir *entry) {
	dir.modified = c.now()
}

// Mkdir creates a directory and its missing parents.
func (c *Client) Mkdir(ctx context.Context, p string) (*remote.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = remote.NormalizePath(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.mkdirAll(p)
	if err != nil {
		return nil, remote.NewError("mkdir", p, http.StatusConflict, err)
	}
	return c.metadataOf(e), nil
}

func (c *Client) DeleteFile(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = remote.NormalizePath(p)
	if p == "/" {
		return remote.NewError("delete_file", p, http.StatusBadRequest, fmt.Errorf("cannot delete the root"))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(p)
	if e == nil {
		return remote.NewError("delete_file", p, http.StatusNotFound, nil)
	}

	c.tombstone(e)
	if parent := c.lookup(path.Dir(p)); parent != nil {
		c.touch(parent)
	}
	return nil
}

func (c *Client) tombstone(e *entry) {
	e.deleted = true
	e.modified = c.now()
	if !e.isDir {
		return
	}
	for _, name := range e.children {
		if child := c.lookup(path.Join(e.path, name)); child != nil {
			c.tombstone(child)
		}
	}
}

func (c *Client) Thumbnail(ctx context.Context, p, size string) ([]byte, error) {
	data, err := c.ReadFile(ctx, p, "")
	if err != nil {
		var rerr *remote.Error
		if errors.As(err, &rerr) {
			rerr.Op = "thumbnail"
		}
		return nil, err
	}

	thumb, err := remote.MakeThumbnail(data, size)
	if err != nil {
		return nil, remote.NewError("thumbnail", remote.NormalizePath(p), http.StatusUnsupportedMediaType, err)
	}
	return thumb, nil
}

func (c *Client) TemporaryLink(ctx context.Context, p string) (*remote.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = remote.NormalizePath(p)

	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.lookup(p)
	if e == nil {
		return nil, remote.NewError("temporary_link", p, http.StatusNotFound, nil)
	}
	if e.isDir {
		return nil, remote.NewError("temporary_link", p, http.StatusBadRequest, fmt.Errorf("path is a directory"))
	}

	expires := c.now().Add(c.linkTTL)
	link := fmt.Sprintf("%s%s?rev=%s&expires=%d", c.linkURL, (&url.URL{Path: e.path}).EscapedPath(), e.rev, expires.Unix())
	return &remote.Link{URL: link, Expires: expires}, nil
}
