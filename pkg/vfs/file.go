// Package vfs is the remote-backed virtual filesystem of the site.
//
// A File wraps the metadata of one remote path and exposes lazy, memoized
// accessors over it. Content, links and thumbnails go through the cache
// layer; directory listings come from the cache layer's validated listing.
// Files are reached through a Resolver, which lives for one request.
package vfs

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/marmos91/dittosite/pkg/remote"
)

// File is a node of the virtual filesystem.
//
// A File is not safe for concurrent use. It belongs to the request that
// resolved it.
type File struct {
	md       *remote.Metadata
	resolver *Resolver

	// Directories only: lower-cased name -> child metadata, and the
	// listing order of the keys.
	children     map[string]*remote.Metadata
	order        []string
	materialized map[string]*File

	dirInfo       *DirInfo
	dirInfoLoaded bool

	modified       time.Time
	modifiedLoaded bool

	mimeType   string
	mimeLoaded bool

	content       []byte
	contentLoaded bool

	rendered       []byte
	renderedLoaded bool

	link *remote.Link

	parent       *File
	parentLoaded bool
}

// NewFile builds a node from md. Deleted metadata is rejected. r may be nil
// for nodes that never touch the remote.
func NewFile(md *remote.Metadata, r *Resolver) (*File, error) {
	if md == nil {
		return nil, fmt.Errorf("vfs: nil metadata")
	}
	if md.IsDeleted {
		return nil, newError(ErrDeleted, md.Path, "cannot build a node from deleted metadata")
	}

	f := &File{md: md, resolver: r}
	if md.IsDir {
		f.children = make(map[string]*remote.Metadata, len(md.Contents))
		f.materialized = make(map[string]*File)
		for i := range md.Contents {
			child := &md.Contents[i]
			if child.IsDeleted {
				continue
			}
			key := strings.ToLower(child.Name())
			if _, seen := f.children[key]; !seen {
				f.order = append(f.order, key)
			}
			f.children[key] = child
		}
	}
	return f, nil
}

// Resolver returns the resolver the node was reached through, or nil.
func (f *File) Resolver() *Resolver {
	return f.resolver
}

// Metadata returns the metadata the node was built from.
func (f *File) Metadata() *remote.Metadata {
	return f.md
}

func (f *File) Path() string {
	return f.md.Path
}

func (f *File) IsDir() bool {
	return f.md.IsDir
}

// Rev returns the revision, "0" when the remote reported none.
func (f *File) Rev() string {
	if f.md.Rev == "" {
		return "0"
	}
	return f.md.Rev
}

func (f *File) Size() int64 {
	return f.md.Bytes
}

func (f *File) Name() string {
	return f.md.Name()
}

// Ext returns the lower-cased extension including the dot. Directories
// have none.
func (f *File) Ext() string {
	if f.md.IsDir {
		return ""
	}
	return strings.ToLower(path.Ext(f.Name()))
}

func (f *File) NameWithoutExt() string {
	name := f.Name()
	if f.md.IsDir {
		return name
	}
	return strings.TrimSuffix(name, path.Ext(name))
}

// Modified returns the last modification time, zero when unknown.
func (f *File) Modified() time.Time {
	if !f.modifiedLoaded {
		f.modified = f.md.ModifiedTime()
		f.modifiedLoaded = true
	}
	return f.modified
}

// MimeType is derived from the name, falling back to the provider's
// advisory type. Always "" for directories.
func (f *File) MimeType() string {
	if !f.mimeLoaded {
		if !f.md.IsDir {
			f.mimeType = MimeTypeOf(f.Name())
			if f.mimeType == "" && f.md.MimeType != "" {
				f.mimeType = strings.TrimSpace(strings.SplitN(f.md.MimeType, ";", 2)[0])
			}
		}
		f.mimeLoaded = true
	}
	return f.mimeType
}

func (f *File) IsEditable() bool {
	return !f.md.IsDir && IsEditableType(f.MimeType())
}

func (f *File) IsRenderable() bool {
	return !f.md.IsDir && IsRenderableType(f.MimeType())
}

func (f *File) IsImage() bool {
	return !f.md.IsDir && IsImageType(f.MimeType())
}

// DirInfo returns the directory's configuration from its dirinfo.json, or
// the defaults when there is none.
func (f *File) DirInfo(ctx context.Context) (*DirInfo, error) {
	if !f.md.IsDir {
		return nil, newError(ErrNotDirectory, f.md.Path, "dirinfo of a file")
	}
	if f.dirInfoLoaded {
		return f.dirInfo, nil
	}

	info := defaultDirInfo()
	child, err := f.GetFile(DirInfoFile)
	if err != nil && CodeOf(err) != ErrIsDirectory {
		return nil, err
	}
	if child != nil {
		data, err := child.Content(ctx)
		if err != nil {
			return nil, err
		}
		if info, err = ParseDirInfo(data); err != nil {
			return nil, fmt.Errorf("%s: %w", child.Path(), err)
		}
	}

	f.dirInfo = info
	f.dirInfoLoaded = true
	return info, nil
}

// DefaultFile returns the child served in place of the directory, or nil.
func (f *File) DefaultFile(ctx context.Context) (*File, error) {
	info, err := f.DirInfo(ctx)
	if err != nil {
		return nil, err
	}
	child, err := f.GetFile(info.DefaultFile)
	if CodeOf(err) == ErrIsDirectory {
		return nil, nil
	}
	return child, err
}

// Content returns the file's bytes at its revision.
func (f *File) Content(ctx context.Context) ([]byte, error) {
	if f.md.IsDir {
		return nil, newError(ErrIsDirectory, f.md.Path, "content of a directory")
	}
	if f.contentLoaded {
		return f.content, nil
	}

	c, err := f.resolver.cacheFor(f.md.Path)
	if err != nil {
		return nil, err
	}
	data, err := c.FileContent(ctx, f.md.Path, f.md.Rev)
	if err != nil {
		return nil, err
	}

	f.content = data
	f.contentLoaded = true
	return data, nil
}

// Text returns the content decoded as normalized text.
func (f *File) Text(ctx context.Context) (string, error) {
	data, err := f.Content(ctx)
	if err != nil {
		return "", err
	}
	return remote.ReadText(data), nil
}

// RenderedContent returns the page body for the file. Markdown is
// converted to HTML and wrapped by the renderer, HTML files are evaluated
// as templates, anything else renderable is returned as is.
func (f *File) RenderedContent(ctx context.Context) ([]byte, error) {
	if f.md.IsDir {
		return nil, newError(ErrIsDirectory, f.md.Path, "rendering a directory")
	}
	if !f.IsRenderable() {
		return nil, newError(ErrNotRenderable, f.md.Path, "file type is not renderable")
	}
	if f.renderedLoaded {
		return f.rendered, nil
	}

	data, err := f.Content(ctx)
	if err != nil {
		return nil, err
	}

	var renderer Renderer
	if f.resolver != nil {
		renderer = f.resolver.renderer
	}

	out := data
	switch {
	case f.MimeType() == MarkdownType:
		fragment, err := MarkdownToHTML(data)
		if err != nil {
			return nil, fmt.Errorf("render markdown %s: %w", f.md.Path, err)
		}
		out = fragment
		if renderer != nil {
			if out, err = renderer.RenderMarkdown(ctx, f, fragment); err != nil {
				return nil, err
			}
		}
	case f.Ext() == ".html" && renderer != nil:
		if out, err = renderer.RenderTemplate(ctx, f, data); err != nil {
			return nil, err
		}
	}

	f.rendered = out
	f.renderedLoaded = true
	return out, nil
}

// DirectLink returns a temporary download URL for the file.
func (f *File) DirectLink(ctx context.Context) (*remote.Link, error) {
	if f.md.IsDir {
		return nil, newError(ErrIsDirectory, f.md.Path, "direct link to a directory")
	}
	if f.link != nil {
		return f.link, nil
	}

	c, err := f.resolver.cacheFor(f.md.Path)
	if err != nil {
		return nil, err
	}
	link, err := c.DirectLink(ctx, f.md.Path, f.md.Rev)
	if err != nil {
		return nil, err
	}
	f.link = link
	return link, nil
}

// Thumbnail returns a JPEG preview of the image at the given size.
func (f *File) Thumbnail(ctx context.Context, size string) ([]byte, error) {
	if f.md.IsDir {
		return nil, newError(ErrIsDirectory, f.md.Path, "thumbnail of a directory")
	}
	c, err := f.resolver.cacheFor(f.md.Path)
	if err != nil {
		return nil, err
	}
	return c.Thumbnail(ctx, f.md.Path, f.md.Rev, size)
}

// Write replaces the file's content. The cache is bypassed: the new
// revision is a new cache key.
func (f *File) Write(ctx context.Context, data []byte) (*remote.Metadata, error) {
	if f.md.IsDir {
		return nil, newError(ErrIsDirectory, f.md.Path, "writing a directory")
	}
	return f.resolver.WriteFile(ctx, f.md.Path, data)
}

// Delete removes the file or directory from the remote store. The node
// must not be used afterwards.
func (f *File) Delete(ctx context.Context) error {
	return f.resolver.DeleteFile(ctx, f.md.Path)
}

// Parent returns the containing directory. The root has no parent.
func (f *File) Parent(ctx context.Context) (*File, error) {
	if f.parentLoaded {
		return f.parent, nil
	}

	p := remote.NormalizePath(f.md.Path)
	if p == "/" {
		f.parentLoaded = true
		return nil, nil
	}
	if f.resolver == nil {
		return nil, newError(ErrAuthorizationMissing, p, "node is not attached to a resolver")
	}

	parent, err := f.resolver.Resolve(ctx, path.Dir(p))
	if err != nil {
		return nil, err
	}
	f.parent = parent
	f.parentLoaded = true
	return parent, nil
}

// GetFile returns the direct file child called name, matched
// case-insensitively, or nil when there is none. Child directories are not
// built here; they are reached through the resolver.
func (f *File) GetFile(name string) (*File, error) {
	if !f.md.IsDir {
		return nil, newError(ErrNotDirectory, f.md.Path, "child lookup on a file")
	}

	key := strings.ToLower(name)
	if child, ok := f.materialized[key]; ok {
		return child, nil
	}

	md, ok := f.children[key]
	if !ok {
		return nil, nil
	}
	if md.IsDir {
		return nil, newError(ErrIsDirectory, md.Path, "child is a directory")
	}

	child, err := NewFile(md, f.resolver)
	if err != nil {
		return nil, err
	}
	f.materialized[key] = child
	if f.resolver != nil {
		f.resolver.record(md.Path, child)
	}
	return child, nil
}

// Child returns the listed metadata of a direct child, of any kind.
func (f *File) Child(name string) (*remote.Metadata, bool) {
	md, ok := f.children[strings.ToLower(name)]
	return md, ok
}

// Children returns the metadata of all live direct children in listing order.
func (f *File) Children() []*remote.Metadata {
	out := make([]*remote.Metadata, 0, len(f.order))
	for _, key := range f.order {
		out = append(out, f.children[key])
	}
	return out
}
