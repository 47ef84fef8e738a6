package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittosite/internal/logger"
	"github.com/marmos91/dittosite/pkg/remote"
	remotememory "github.com/marmos91/dittosite/pkg/remote/memory"
	remotes3 "github.com/marmos91/dittosite/pkg/remote/s3"
	"github.com/marmos91/dittosite/pkg/store/kv"
	kvbadger "github.com/marmos91/dittosite/pkg/store/kv/badger"
	kvbbolt "github.com/marmos91/dittosite/pkg/store/kv/bbolt"
	kvfs "github.com/marmos91/dittosite/pkg/store/kv/fs"
	kvmemory "github.com/marmos91/dittosite/pkg/store/kv/memory"
	kvs3 "github.com/marmos91/dittosite/pkg/store/kv/s3"
)

// s3Options is the S3 connection section shared by the s3 cache backend and
// the s3 remote.
type s3Options struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// decodeOptions decodes a backend option map into out. Durations may be
// given as strings ("1s").
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// CreateCacheStore creates the key-value store backing the cache layer.
//
// Supported types:
//   - "memory": process-local map, lost on restart
//   - "filesystem": one file per key under a directory, optionally zstd-compressed
//   - "badger": BadgerDB database
//   - "bbolt": single-file bbolt database
//   - "s3": objects in an S3 bucket (managed cache service)
func CreateCacheStore(ctx context.Context, cfg *CacheConfig) (kv.Store, error) {
	switch cfg.Type {
	case "memory":
		return kvmemory.NewMemoryStore(), nil
	case "filesystem":
		return createFilesystemCacheStore(ctx, cfg.Filesystem)
	case "badger":
		return createBadgerCacheStore(ctx, cfg.Badger)
	case "bbolt":
		return createBoltCacheStore(ctx, cfg.Bbolt)
	case "s3":
		return createS3CacheStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown cache store type: %q (supported: memory, filesystem, badger, bbolt, s3)", cfg.Type)
	}
}

func createFilesystemCacheStore(ctx context.Context, options map[string]any) (kv.Store, error) {
	var storeCfg kvfs.FSStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem cache config: %w", err)
	}

	store, err := kvfs.NewFSStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem cache store: %w", err)
	}

	logger.Info("Filesystem cache store initialized: path=%s compress=%t", storeCfg.Path, storeCfg.Compress)
	return store, nil
}

func createBadgerCacheStore(ctx context.Context, options map[string]any) (kv.Store, error) {
	var storeCfg kvbadger.BadgerStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger cache config: %w", err)
	}

	store, err := kvbadger.NewBadgerStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Info("Badger cache store initialized: db_path=%s", storeCfg.DBPath)
	return store, nil
}

func createBoltCacheStore(ctx context.Context, options map[string]any) (kv.Store, error) {
	var storeCfg kvbbolt.BoltStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode bbolt cache config: %w", err)
	}

	store, err := kvbbolt.NewBoltStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	logger.Info("Bbolt cache store initialized: path=%s", storeCfg.Path)
	return store, nil
}

func createS3CacheStore(ctx context.Context, options map[string]any) (kv.Store, error) {
	var opts s3Options
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 cache config: %w", err)
	}

	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	store, err := kvs3.NewS3Store(ctx, kvs3.S3StoreConfig{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 cache store: %w", err)
	}

	logger.Info("S3 cache store initialized: bucket=%s, region=%s, prefix=%s",
		opts.Bucket, opts.Region, opts.KeyPrefix)
	return store, nil
}

// CreateRemote creates the client for the cloud file store holding the site.
//
// Supported types:
//   - "memory": in-process tree, optionally seeded from a local directory
//   - "s3": objects in an S3 bucket, direct links are presigned URLs
//
// The returned client is wrapped with call metrics; remoteMetrics may be nil.
func CreateRemote(ctx context.Context, cfg *RemoteConfig, remoteMetrics remote.Metrics) (remote.Client, error) {
	var client remote.Client
	var err error

	switch cfg.Type {
	case "memory":
		client, err = createMemoryRemote(ctx, cfg)
	case "s3":
		client, err = createS3Remote(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown remote type: %q (supported: memory, s3)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return remote.NewInstrumentedClient(client, remoteMetrics), nil
}

func createMemoryRemote(ctx context.Context, cfg *RemoteConfig) (remote.Client, error) {
	var opts struct {
		SeedPath    string `mapstructure:"seed_path"`
		LinkBaseURL string `mapstructure:"link_base_url"`
		DisplayName string `mapstructure:"display_name"`
	}
	if err := decodeOptions(cfg.Memory, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode memory remote config: %w", err)
	}

	memOpts := []remotememory.Option{remotememory.WithLinkTTL(cfg.LinkTTL)}
	if opts.LinkBaseURL != "" {
		memOpts = append(memOpts, remotememory.WithLinkBaseURL(opts.LinkBaseURL))
	}
	if opts.DisplayName != "" {
		memOpts = append(memOpts, remotememory.WithDisplayName(opts.DisplayName))
	}
	client := remotememory.New(cfg.AccountID, memOpts...)

	if opts.SeedPath != "" {
		if err := client.Seed(ctx, opts.SeedPath); err != nil {
			return nil, fmt.Errorf("failed to seed memory remote from %s: %w", opts.SeedPath, err)
		}
		logger.Info("Memory remote seeded from %s", opts.SeedPath)
	}

	logger.Info("Memory remote initialized: account=%s", cfg.AccountID)
	return client, nil
}

func createS3Remote(ctx context.Context, cfg *RemoteConfig) (remote.Client, error) {
	var opts s3Options
	var extra struct {
		Versioned   bool   `mapstructure:"versioned"`
		DisplayName string `mapstructure:"display_name"`
	}
	if err := decodeOptions(cfg.S3, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 remote config: %w", err)
	}
	if err := decodeOptions(cfg.S3, &extra); err != nil {
		return nil, fmt.Errorf("failed to decode S3 remote config: %w", err)
	}

	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	rc, err := remotes3.New(remotes3.Config{
		Client:      client,
		Presigner:   s3.NewPresignClient(client),
		Bucket:      opts.Bucket,
		KeyPrefix:   opts.KeyPrefix,
		Versioned:   extra.Versioned,
		AccountID:   cfg.AccountID,
		DisplayName: extra.DisplayName,
		LinkTTL:     cfg.LinkTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 remote: %w", err)
	}

	logger.Info("S3 remote initialized: bucket=%s, region=%s, prefix=%s, versioned=%t",
		opts.Bucket, opts.Region, opts.KeyPrefix, extra.Versioned)
	return rc, nil
}

// newS3Client builds an S3 API client from connection options.
func newS3Client(ctx context.Context, opts s3Options) (*s3.Client, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3: bucket is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("S3: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(opts.Region),
	}

	// Set credentials if provided, otherwise use default credential chain
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoint for MinIO, Localstack, etc.
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}
