package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittosite/pkg/store/kv"
)

// API is the subset of the S3 client used by S3Store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store implements kv.Store on an S3 (or S3-compatible) bucket.
//
// This is the managed cache service backend: entries live as objects under
// KeyPrefix, and expiry can be delegated to a bucket lifecycle rule. S3's
// strong read-after-write consistency covers the concurrency contract.
type S3Store struct {
	client    API
	bucket    string
	keyPrefix string
	closed    atomic.Bool
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	Client    API
	Bucket    string
	KeyPrefix string
}

// NewS3Store creates a store on an existing bucket.
func NewS3Store(ctx context.Context, config S3StoreConfig) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.Client == nil {
		return nil, fmt.Errorf("s3 store: client is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket is required")
	}

	prefix := config.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3Store{
		client:    config.Client,
		bucket:    config.Bucket,
		keyPrefix: prefix,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	return s.keyPrefix + key
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, kv.ErrClosed
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %q: %w", key, err)
	}
	return data, nil
}

func (s *S3Store) Set(ctx context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return kv.ErrClosed
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(kv.Clone(value)),
		ContentLength: aws.Int64(int64(len(value))),
	})
	if err != nil {
		return fmt.Errorf("s3 put %q: %w", key, err)
	}
	return nil
}

// Remove deletes the object. S3 deletes are idempotent, so existence is
// checked first to honor the ErrNotFound contract.
func (s *S3Store) Remove(ctx context.Context, key string) error {
	if s.closed.Load() {
		return kv.ErrClosed
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return kv.ErrNotFound
		}
		return fmt.Errorf("s3 head %q: %w", key, err)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %q: %w", key, err)
	}
	return nil
}

func (s *S3Store) Close() error {
	s.closed.Store(true)
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}
