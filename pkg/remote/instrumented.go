package remote

import (
	"context"
	"time"

	"github.com/marmos91/dittosite/internal/logger"
)

// Metrics records remote call outcomes. A nil Metrics disables collection.
type Metrics interface {
	// ObserveCall records one call. outcome is "ok", "not_found",
	// "not_modified" or "error".
	ObserveCall(op, outcome string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCall(string, string, time.Duration) {}

// InstrumentedClient decorates a Client with path normalization, debug
// logging of every call and its arguments, and per-operation metrics.
type InstrumentedClient struct {
	inner   Client
	metrics Metrics
}

// NewInstrumentedClient wraps inner. metrics may be nil.
func NewInstrumentedClient(inner Client, metrics Metrics) *InstrumentedClient {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &InstrumentedClient{inner: inner, metrics: metrics}
}

// Unwrap returns the decorated client.
func (c *InstrumentedClient) Unwrap() Client {
	return c.inner
}

func (c *InstrumentedClient) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.Debug("remote %s failed after %s: %v", op, time.Since(start), err)
	}
	c.metrics.ObserveCall(op, outcome, time.Since(start))
}

func (c *InstrumentedClient) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	logger.Debug("remote account_info")
	start := time.Now()

	info, err := c.inner.AccountInfo(ctx)
	c.observe("account_info", start, err)
	return info, err
}

func (c *InstrumentedClient) Metadata(ctx context.Context, path string, opts MetadataOptions) (*MetadataResult, error) {
	path = NormalizePath(path)
	logger.Debug("remote metadata path=%s list=%t file_limit=%d hash=%q rev=%q include_deleted=%t",
		path, opts.List, opts.FileLimit, opts.Hash, opts.Rev, opts.IncludeDeleted)
	start := time.Now()

	result, err := c.inner.Metadata(ctx, path, opts)
	if err != nil {
		c.observe("metadata", start, err)
		return nil, err
	}

	c.metrics.ObserveCall("metadata", result.Status.String(), time.Since(start))
	return result, nil
}

func (c *InstrumentedClient) ReadFile(ctx context.Context, path, rev string) ([]byte, error) {
	path = NormalizePath(path)
	logger.Debug("remote read_file path=%s rev=%q", path, rev)
	start := time.Now()

	data, err := c.inner.ReadFile(ctx, path, rev)
	c.observe("read_file", start, err)
	return data, err
}

func (c *InstrumentedClient) WriteFile(ctx context.Context, path string, data []byte, opts WriteOptions) (*Metadata, error) {
	path = NormalizePath(path)
	logger.Debug("remote write_file path=%s bytes=%d overwrite=%t parent_rev=%q",
		path, len(data), opts.Overwrite, opts.ParentRev)
	start := time.Now()

	md, err := c.inner.WriteFile(ctx, path, data, opts)
	c.observe("write_file", start, err)
	return md, err
}

func (c *InstrumentedClient) DeleteFile(ctx context.Context, path string) error {
	path = NormalizePath(path)
	logger.Debug("remote delete_file path=%s", path)
	start := time.Now()

	err := c.inner.DeleteFile(ctx, path)
	c.observe("delete_file", start, err)
	return err
}

func (c *InstrumentedClient) Thumbnail(ctx context.Context, path, size string) ([]byte, error) {
	path = NormalizePath(path)
	logger.Debug("remote thumbnail path=%s size=%s", path, size)
	start := time.Now()

	data, err := c.inner.Thumbnail(ctx, path, size)
	c.observe("thumbnail", start, err)
	return data, err
}

func (c *InstrumentedClient) TemporaryLink(ctx context.Context, path string) (*Link, error) {
	path = NormalizePath(path)
	logger.Debug("remote temporary_link path=%s", path)
	start := time.Now()

	link, err := c.inner.TemporaryLink(ctx, path)
	c.observe("temporary_link", start, err)
	return link, err
}
