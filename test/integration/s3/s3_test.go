//go:build integration

package s3_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosite/pkg/cache"
	"github.com/marmos91/dittosite/pkg/remote"
	remotes3 "github.com/marmos91/dittosite/pkg/remote/s3"
	"github.com/marmos91/dittosite/pkg/store/kv"
	kvmemory "github.com/marmos91/dittosite/pkg/store/kv/memory"
	kvs3 "github.com/marmos91/dittosite/pkg/store/kv/s3"
	kvtesting "github.com/marmos91/dittosite/pkg/store/kv/testing"
)

// setupTestS3 creates an S3 client and test bucket for integration tests.
//
// It connects to Localstack (or another S3-compatible endpoint) and creates
// a bucket that is emptied and deleted when the test ends.
func setupTestS3(t *testing.T, bucketName string) *s3.Client {
	t.Helper()
	ctx := context.Background()

	// Get Localstack endpoint from environment or use default
	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			"test", // AccessKeyID
			"test", // SecretAccessKey
			"",     // SessionToken
		)),
	)
	require.NoError(t, err, "load AWS config")

	// Path-style URLs are required for Localstack
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err, "create test bucket")

	t.Cleanup(func() {
		// List and delete all objects first
		listResp, _ := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucketName),
		})
		if listResp != nil {
			for _, obj := range listResp.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucketName),
					Key:    obj.Key,
				})
			}
		}

		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucketName),
		})
	})

	return client
}

// TestS3Store_Integration runs the key-value conformance suite against a real
// S3-compatible service (Localstack).
//
// Prerequisites:
//   - Localstack running on localhost:4566
//   - Run with: go test -tags=integration ./test/integration/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3Store_Integration(t *testing.T) {
	ctx := context.Background()

	bucketName := "dittosite-kv-test"
	client := setupTestS3(t, bucketName)

	// Each test gets a fresh store instance with a unique key prefix
	testCounter := 0
	suite := &kvtesting.StoreTestSuite{
		NewStore: func(t *testing.T) kv.Store {
			testCounter++
			store, err := kvs3.NewS3Store(ctx, kvs3.S3StoreConfig{
				Client:    client,
				Bucket:    bucketName,
				KeyPrefix: fmt.Sprintf("test-%d", testCounter),
			})
			require.NoError(t, err)
			return store
		},
	}

	suite.Run(t)
}

// TestS3Remote_Integration exercises the S3 remote client end to end.
func TestS3Remote_Integration(t *testing.T) {
	ctx := context.Background()

	bucketName := "dittosite-remote-test"
	client := setupTestS3(t, bucketName)

	rc, err := remotes3.New(remotes3.Config{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucketName,
		KeyPrefix: "site",
	})
	require.NoError(t, err)

	// ========================================================================
	// Write, then read back
	// ========================================================================

	md, err := rc.WriteFile(ctx, "/blog/Post.md", []byte("# Hello"), remote.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/blog/Post.md", md.Path)
	assert.NotEmpty(t, md.Rev)

	data, err := rc.ReadFile(ctx, "/blog/Post.md", "")
	require.NoError(t, err)
	assert.Equal(t, "# Hello", string(data))

	// Without Overwrite an existing file is a conflict
	_, err = rc.WriteFile(ctx, "/blog/Post.md", []byte("again"), remote.WriteOptions{})
	require.Error(t, err)

	// ========================================================================
	// Directory listing and validation
	// ========================================================================

	res, err := rc.Metadata(ctx, "/blog", remote.MetadataOptions{List: true})
	require.NoError(t, err)
	require.Equal(t, remote.StatusOK, res.Status)
	require.True(t, res.Metadata.IsDir)
	require.Len(t, res.Metadata.Contents, 1)
	assert.Equal(t, "Post.md", res.Metadata.Contents[0].Name())

	again, err := rc.Metadata(ctx, "/blog", remote.MetadataOptions{List: true, Hash: res.Metadata.Hash})
	require.NoError(t, err)
	assert.Equal(t, remote.StatusNotModified, again.Status)

	// ========================================================================
	// Temporary link
	// ========================================================================

	link, err := rc.TemporaryLink(ctx, "/blog/Post.md")
	require.NoError(t, err)
	assert.Contains(t, link.URL, bucketName)
	assert.True(t, link.Expires.After(md.ModifiedTime()))

	// ========================================================================
	// Delete
	// ========================================================================

	require.NoError(t, rc.DeleteFile(ctx, "/blog/Post.md"))
	gone, err := rc.Metadata(ctx, "/blog/Post.md", remote.MetadataOptions{})
	require.NoError(t, err)
	assert.Equal(t, remote.StatusNotFound, gone.Status)

	_, err = rc.ReadFile(ctx, "/blog/Post.md", "")
	var remoteErr *remote.Error
	require.True(t, errors.As(err, &remoteErr))
}

// TestS3Remote_CacheLayer checks that the cache layer serves repeated reads
// from the key-value store rather than the bucket.
func TestS3Remote_CacheLayer(t *testing.T) {
	ctx := context.Background()

	bucketName := "dittosite-cache-test"
	client := setupTestS3(t, bucketName)

	rc, err := remotes3.New(remotes3.Config{Client: client, Bucket: bucketName})
	require.NoError(t, err)

	md, err := rc.WriteFile(ctx, "/index.html", []byte("<p>hi</p>"), remote.WriteOptions{})
	require.NoError(t, err)

	info, err := rc.AccountInfo(ctx)
	require.NoError(t, err)

	store := kvmemory.NewMemoryStore()
	defer func() { _ = store.Close() }()

	c := cache.New(store, rc, info.UID)

	first, err := c.FileContent(ctx, "/index.html", md.Rev)
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(first))
	assert.Equal(t, 1, store.Len())

	// Once cached, the object is no longer needed
	require.NoError(t, rc.DeleteFile(ctx, "/index.html"))

	second, err := c.FileContent(ctx, "/index.html", md.Rev)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
