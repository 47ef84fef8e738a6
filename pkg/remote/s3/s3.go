// Package s3 implements remote.Client on an S3 bucket.
//
// A bucket plus key prefix is the author's account. Files are objects;
// directories are key prefixes and have no object of their own. Revisions
// are object version ids on versioned buckets and ETags otherwise.
// Directory content hashes are computed from the listing, so 304 validation
// works without provider support.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittosite/pkg/remote"
)

// DefaultLinkTTL is the lifetime of presigned links.
const DefaultLinkTTL = 4 * time.Hour

// API is the subset of *s3.Client the provider uses.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner issues presigned GET requests. *s3.PresignClient satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config configures a Client.
type Config struct {
	Client    API
	Presigner Presigner

	Bucket    string
	KeyPrefix string

	// Versioned selects version ids as revisions. The bucket must have
	// versioning enabled.
	Versioned bool

	// AccountID identifies the account. Default: "s3:<bucket>/<prefix>".
	AccountID   string
	DisplayName string

	LinkTTL time.Duration
}

// Client is the S3-backed remote store.
type Client struct {
	api       API
	presigner Presigner
	bucket    string
	keyPrefix string
	versioned bool
	account   remote.AccountInfo
	linkTTL   time.Duration
	now       func() time.Time
}

// New creates a client over an existing bucket.
func New(cfg Config) (*Client, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 remote: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 remote: bucket is required")
	}

	prefix := strings.Trim(cfg.KeyPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	accountID := cfg.AccountID
	if accountID == "" {
		accountID = "s3:" + cfg.Bucket + "/" + prefix
	}
	displayName := cfg.DisplayName
	if displayName == "" {
		displayName = accountID
	}

	linkTTL := cfg.LinkTTL
	if linkTTL <= 0 {
		linkTTL = DefaultLinkTTL
	}

	return &Client{
		api:       cfg.Client,
		presigner: cfg.Presigner,
		bucket:    cfg.Bucket,
		keyPrefix: prefix,
		versioned: cfg.Versioned,
		account:   remote.AccountInfo{UID: accountID, DisplayName: displayName},
		linkTTL:   linkTTL,
		now:       time.Now,
	}, nil
}

// objectKey maps a normalized remote path to an object key. The root maps
// to the bare prefix.
func (c *Client) objectKey(p string) string {
	return c.keyPrefix + strings.TrimPrefix(p, "/")
}

// dirPrefix returns the listing prefix of directory p.
func (c *Client) dirPrefix(p string) string {
	if p == "/" {
		return c.keyPrefix
	}
	return c.objectKey(p) + "/"
}

// pathOf maps an object key back to a remote path.
func (c *Client) pathOf(key string) string {
	return "/" + strings.TrimSuffix(strings.TrimPrefix(key, c.keyPrefix), "/")
}

// storedPath returns the stored spelling of p. Object keys are case-sensitive
// while remote paths are not, so each segment is matched against its parent's
// listing with strings.EqualFold, an exact match winning over a folded one.
//
// found is false when some segment has no match; the returned path then
// carries the stored spelling of the matched ancestors followed by the
// remaining segments as given.
func (c *Client) storedPath(ctx context.Context, p string) (stored string, found bool, err error) {
	if p == "/" {
		return p, true, nil
	}

	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	cur := "/"
	for i, seg := range segments {
		name, ok, err := c.matchChild(ctx, cur, seg)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return path.Join(append([]string{cur}, segments[i:]...)...), false, nil
		}
		cur = path.Join(cur, name)
	}
	return cur, true, nil
}

// matchChild finds the immediate child of directory dir named name, ignoring
// case.
func (c *Client) matchChild(ctx context.Context, dir, name string) (string, bool, error) {
	prefix := c.dirPrefix(dir)
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	match := ""
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", false, remote.NewError("metadata", dir, statusOf(err), err)
		}

		candidates := make([]string, 0, len(page.CommonPrefixes)+len(page.Contents))
		for _, cp := range page.CommonPrefixes {
			candidates = append(candidates, aws.ToString(cp.Prefix))
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); key != prefix {
				candidates = append(candidates, key)
			}
		}

		for _, key := range candidates {
			child := path.Base(c.pathOf(key))
			if child == name {
				return child, true, nil
			}
			if match == "" && strings.EqualFold(child, name) {
				match = child
			}
		}
	}
	return match, match != "", nil
}

// respelled reports the stored spelling of p when it differs from p, for a
// retry after an exact-key miss.
func (c *Client) respelled(ctx context.Context, p string) (string, bool, error) {
	stored, found, err := c.storedPath(ctx, p)
	if err != nil || !found || stored == p {
		return "", false, err
	}
	return stored, true, nil
}

func (c *Client) AccountInfo(ctx context.Context) (*remote.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info := c.account
	return &info, nil
}

// revisionOf picks the revision identifier of an object.
func (c *Client) revisionOf(versionID, etag *string) string {
	if c.versioned && aws.ToString(versionID) != "" {
		return aws.ToString(versionID)
	}
	return strings.Trim(aws.ToString(etag), `"`)
}

func (c *Client) Metadata(ctx context.Context, p string, opts remote.MetadataOptions) (*remote.MetadataResult, error) {
	p = remote.NormalizePath(p)

	// ========================================================================
	// Step 1: Try the path as a file
	// ========================================================================

	if p != "/" {
		input := &s3.HeadObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.objectKey(p)),
		}
		if opts.Rev != "" {
			if c.versioned {
				input.VersionId = aws.String(opts.Rev)
			} else {
				input.IfMatch = aws.String(opts.Rev)
			}
		}

		head, err := c.api.HeadObject(ctx, input)
		if err == nil {
			return remote.Found(&remote.Metadata{
				Path:     p,
				Rev:      c.revisionOf(head.VersionId, head.ETag),
				Bytes:    aws.ToInt64(head.ContentLength),
				Modified: formatModified(head.LastModified),
				MimeType: aws.ToString(head.ContentType),
			}), nil
		}

		status := statusOf(err)
		if opts.Rev != "" && (status == http.StatusPreconditionFailed || status == http.StatusBadRequest) {
			return remote.NotFound(), nil
		}
		if status != http.StatusNotFound {
			return nil, remote.NewError("metadata", p, status, err)
		}
	}

	// ========================================================================
	// Step 2: Try the path as a directory prefix
	// ========================================================================

	children, err := c.list(ctx, p, opts.FileLimit)
	if err != nil {
		return nil, err
	}
	if children == nil && p != "/" {
		// ====================================================================
		// Step 3: Retry under the stored spelling
		// ====================================================================

		stored, ok, err := c.respelled(ctx, p)
		if err != nil {
			return nil, err
		}
		if ok {
			return c.Metadata(ctx, stored, opts)
		}
		return remote.NotFound(), nil
	}

	md := &remote.Metadata{
		Path:  p,
		IsDir: true,
		Hash:  remote.DirectoryHash(children),
	}
	if opts.Hash != "" && opts.Hash == md.Hash {
		return remote.NotModified(), nil
	}
	if opts.List {
		md.Contents = children
	}
	return remote.Found(md), nil
}

// list returns the immediate children of directory p, or nil when the
// prefix holds no objects.
func (c *Client) list(ctx context.Context, p string, limit int) ([]remote.Metadata, error) {
	if limit <= 0 {
		limit = remote.DefaultFileLimit
	}
	prefix := c.dirPrefix(p)

	var children []remote.Metadata
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, remote.NewError("metadata", p, statusOf(err), err)
		}

		for _, cp := range page.CommonPrefixes {
			children = append(children, remote.Metadata{
				Path:  c.pathOf(aws.ToString(cp.Prefix)),
				IsDir: true,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				// Directory marker object
				if children == nil {
					children = []remote.Metadata{}
				}
				continue
			}
			children = append(children, remote.Metadata{
				Path:     c.pathOf(key),
				Rev:      strings.Trim(aws.ToString(obj.ETag), `"`),
				Bytes:    aws.ToInt64(obj.Size),
				Modified: formatModified(obj.LastModified),
			})
		}

		if len(children) > limit {
			return nil, remote.NewError("metadata", p, http.StatusNotAcceptable,
				fmt.Errorf("listing exceeds %d entries", limit))
		}
	}

	if c.versioned {
		// Listings carry ETags only; resolve version ids so child revisions
		// match what HeadObject reports.
		for i := range children {
			if children[i].IsDir {
				continue
			}
			head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(c.bucket),
				Key:    aws.String(c.objectKey(children[i].Path)),
			})
			if err != nil {
				return nil, remote.NewError("metadata", children[i].Path, statusOf(err), err)
			}
			children[i].Rev = c.revisionOf(head.VersionId, head.ETag)
		}
	}

	return children, nil
}

func (c *Client) ReadFile(ctx context.Context, p, rev string) ([]byte, error) {
	p = remote.NormalizePath(p)

	data, err := c.readObject(ctx, p, rev)
	if !remote.IsNotFound(err) {
		return data, err
	}

	stored, ok, lookupErr := c.respelled(ctx, p)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if !ok {
		return nil, err
	}
	return c.readObject(ctx, stored, rev)
}

func (c *Client) readObject(ctx context.Context, p, rev string) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(p)),
	}
	if rev != "" {
		if c.versioned {
			input.VersionId = aws.String(rev)
		} else {
			input.IfMatch = aws.String(rev)
		}
	}

	out, err := c.api.GetObject(ctx, input)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusPreconditionFailed {
			// The object moved on from the requested revision.
			status = http.StatusNotFound
		}
		return nil, remote.NewError("read_file", p, status, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := readAll(out.Body, aws.ToInt64(out.ContentLength))
	if err != nil {
		return nil, remote.NewError("read_file", p, 0, err)
	}
	return data, nil
}

func (c *Client) WriteFile(ctx context.Context, p string, data []byte, opts remote.WriteOptions) (*remote.Metadata, error) {
	p = remote.NormalizePath(p)
	if p == "/" {
		return nil, remote.NewError("write_file", p, http.StatusBadRequest, fmt.Errorf("cannot write the root"))
	}

	// Reuse the stored spelling so a differently cased path updates the
	// existing object instead of creating a sibling.
	stored, _, err := c.storedPath(ctx, p)
	if err != nil {
		return nil, err
	}
	p = stored

	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(c.objectKey(p)),
		Body:          newBody(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType(p)),
	}

	switch {
	case !opts.Overwrite:
		input.IfNoneMatch = aws.String("*")
	case opts.ParentRev != "" && !c.versioned:
		input.IfMatch = aws.String(opts.ParentRev)
	case opts.ParentRev != "":
		head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.objectKey(p)),
		})
		if err != nil {
			return nil, remote.NewError("write_file", p, statusOf(err), err)
		}
		if aws.ToString(head.VersionId) != opts.ParentRev {
			return nil, remote.NewError("write_file", p, http.StatusConflict,
				fmt.Errorf("parent revision %s does not match %s", opts.ParentRev, aws.ToString(head.VersionId)))
		}
	}

	out, err := c.api.PutObject(ctx, input)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusPreconditionFailed {
			status = http.StatusConflict
		}
		return nil, remote.NewError("write_file", p, status, err)
	}

	return &remote.Metadata{
		Path:     p,
		Rev:      c.revisionOf(out.VersionId, out.ETag),
		Bytes:    int64(len(data)),
		Modified: remote.FormatTime(c.now()),
		MimeType: aws.ToString(input.ContentType),
	}, nil
}

func (c *Client) DeleteFile(ctx context.Context, p string) error {
	p = remote.NormalizePath(p)
	if p == "/" {
		return remote.NewError("delete_file", p, http.StatusBadRequest, fmt.Errorf("cannot delete the root"))
	}

	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(p)),
	})
	if err == nil {
		_, err = c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.objectKey(p)),
		})
		if err != nil {
			return remote.NewError("delete_file", p, statusOf(err), err)
		}
		return nil
	}
	if statusOf(err) != http.StatusNotFound {
		return remote.NewError("delete_file", p, statusOf(err), err)
	}

	err = c.deletePrefix(ctx, p)
	if !remote.IsNotFound(err) {
		return err
	}
	stored, ok, lookupErr := c.respelled(ctx, p)
	if lookupErr != nil {
		return lookupErr
	}
	if !ok {
		return err
	}
	return c.DeleteFile(ctx, stored)
}

// deletePrefix removes every object under directory p in batches of 1000.
func (c *Client) deletePrefix(ctx context.Context, p string) error {
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.dirPrefix(p)),
	})

	deleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return remote.NewError("delete_file", p, statusOf(err), err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return remote.NewError("delete_file", p, statusOf(err), err)
		}
		deleted += len(ids)
	}

	if deleted == 0 {
		return remote.NewError("delete_file", p, http.StatusNotFound, nil)
	}
	return nil
}

func (c *Client) Thumbnail(ctx context.Context, p, size string) ([]byte, error) {
	data, err := c.ReadFile(ctx, p, "")
	if err != nil {
		return nil, remote.NewError("thumbnail", remote.NormalizePath(p), remote.StatusOf(err), err)
	}

	thumb, err := remote.MakeThumbnail(data, size)
	if err != nil {
		return nil, remote.NewError("thumbnail", remote.NormalizePath(p), http.StatusUnsupportedMediaType, err)
	}
	return thumb, nil
}

func (c *Client) TemporaryLink(ctx context.Context, p string) (*remote.Link, error) {
	p = remote.NormalizePath(p)
	if c.presigner == nil {
		return nil, remote.NewError("temporary_link", p, http.StatusNotImplemented, fmt.Errorf("no presigner configured"))
	}

	if _, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(p)),
	}); err != nil {
		if statusOf(err) != http.StatusNotFound {
			return nil, remote.NewError("temporary_link", p, statusOf(err), err)
		}
		stored, ok, lookupErr := c.respelled(ctx, p)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if !ok {
			return nil, remote.NewError("temporary_link", p, http.StatusNotFound, err)
		}
		p = stored
	}

	expires := c.now().Add(c.linkTTL)
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(p)),
	}, s3.WithPresignExpires(c.linkTTL))
	if err != nil {
		return nil, remote.NewError("temporary_link", p, statusOf(err), err)
	}

	return &remote.Link{URL: req.URL, Expires: expires}, nil
}

// statusOf extracts the HTTP status of an AWS error. Errors without a
// response map to 502.
func statusOf(err error) int {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return http.StatusNotFound
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func formatModified(t *time.Time) string {
	if t == nil {
		return ""
	}
	return remote.FormatTime(*t)
}
