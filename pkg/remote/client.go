// Package remote defines the contract for the author's cloud file store.
//
// The remote store is the site's only source of truth. Every provider
// (pkg/remote/s3, pkg/remote/memory) implements Client; the cache layer and
// the virtual filesystem consume nothing else.
//
// Expected outcomes are values, not errors: Metadata reports 404 and 304 via
// MetadataResult.Status. Every other failure is a *Error carrying an HTTP-like
// status code.
package remote

import (
	"context"
	"time"
)

// Client is the typed wrapper over a remote storage provider.
type Client interface {
	// AccountInfo returns the identity of the account the client is bound to.
	AccountInfo(ctx context.Context) (*AccountInfo, error)

	// Metadata fetches the metadata of path.
	//
	// With opts.List set, directory results carry their immediate children.
	// With opts.Hash set to the directory's current content hash, the result
	// status is StatusNotModified and Metadata is nil. A missing path yields
	// StatusNotFound. Deleted paths are reported only with IncludeDeleted.
	Metadata(ctx context.Context, path string, opts MetadataOptions) (*MetadataResult, error)

	// ReadFile returns the content of path at rev. An empty rev reads the
	// latest revision.
	ReadFile(ctx context.Context, path, rev string) ([]byte, error)

	// WriteFile stores data at path and returns the new metadata.
	WriteFile(ctx context.Context, path string, data []byte, opts WriteOptions) (*Metadata, error)

	// DeleteFile removes path. Deleting a directory removes its subtree.
	DeleteFile(ctx context.Context, path string) error

	// Thumbnail returns a JPEG thumbnail of the image at path.
	// size is one of the ThumbnailSizes keys.
	Thumbnail(ctx context.Context, path, size string) ([]byte, error)

	// TemporaryLink returns a time-limited URL for unauthenticated download.
	TemporaryLink(ctx context.Context, path string) (*Link, error)
}

// AccountInfo describes the account a client acts for.
type AccountInfo struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// MetadataOptions mirrors the provider's metadata call parameters.
type MetadataOptions struct {
	// List requests the immediate children of a directory.
	List bool

	// FileLimit caps the number of children returned. Zero means the
	// provider default (DefaultFileLimit).
	FileLimit int

	// Hash is a previously seen directory content hash used for validation.
	Hash string

	// Rev selects a specific file revision.
	Rev string

	// IncludeDeleted returns tombstoned entries instead of StatusNotFound.
	IncludeDeleted bool
}

// DefaultFileLimit is the listing cap used when MetadataOptions.FileLimit is zero.
const DefaultFileLimit = 25000

// WriteOptions control WriteFile conflict handling.
type WriteOptions struct {
	// Overwrite replaces an existing file. Without it an existing file is a
	// 409 conflict.
	Overwrite bool

	// ParentRev, when set, requires the current revision to match.
	ParentRev string
}

// FetchStatus is the expected outcome of a Metadata call.
type FetchStatus int

const (
	// StatusOK means Metadata holds fresh metadata.
	StatusOK FetchStatus = iota

	// StatusNotModified (304) means the validation hash still matches.
	StatusNotModified

	// StatusNotFound (404) means the path does not exist.
	StatusNotFound
)

func (s FetchStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotModified:
		return "not_modified"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// MetadataResult is the outcome of a Metadata call.
type MetadataResult struct {
	Status FetchStatus

	// Metadata is set only when Status is StatusOK.
	Metadata *Metadata
}

// Found builds a StatusOK result.
func Found(md *Metadata) *MetadataResult {
	return &MetadataResult{Status: StatusOK, Metadata: md}
}

// NotModified builds a StatusNotModified result.
func NotModified() *MetadataResult {
	return &MetadataResult{Status: StatusNotModified}
}

// NotFound builds a StatusNotFound result.
func NotFound() *MetadataResult {
	return &MetadataResult{Status: StatusNotFound}
}

// Link is a temporary direct-download URL.
type Link struct {
	URL     string
	Expires time.Time
}
