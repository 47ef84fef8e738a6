package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittosite/pkg/registry"
	"github.com/marmos91/dittosite/pkg/remote"
)

// roundTrip checks that a store keeps what it is given.
func roundTrip(t *testing.T, cfg *CacheConfig) {
	t.Helper()
	ctx := context.Background()

	store, err := CreateCacheStore(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create %s cache store: %v", cfg.Type, err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Expected 'v', got %q", got)
	}
}

func TestCreateCacheStore_Memory(t *testing.T) {
	roundTrip(t, &CacheConfig{Type: "memory"})
}

func TestCreateCacheStore_Filesystem(t *testing.T) {
	roundTrip(t, &CacheConfig{
		Type: "filesystem",
		Filesystem: map[string]any{
			"path":     t.TempDir(),
			"compress": true,
		},
	})
}

func TestCreateCacheStore_FilesystemMissingPath(t *testing.T) {
	_, err := CreateCacheStore(context.Background(), &CacheConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{},
	})
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateCacheStore_Badger(t *testing.T) {
	roundTrip(t, &CacheConfig{
		Type:   "badger",
		Badger: map[string]any{"db_path": t.TempDir()},
	})
}

func TestCreateCacheStore_Bbolt(t *testing.T) {
	roundTrip(t, &CacheConfig{
		Type: "bbolt",
		Bbolt: map[string]any{
			"path":    filepath.Join(t.TempDir(), "cache.db"),
			"timeout": "2s",
		},
	})
}

func TestCreateCacheStore_S3RequiresRegion(t *testing.T) {
	_, err := CreateCacheStore(context.Background(), &CacheConfig{
		Type: "s3",
		S3:   map[string]any{"bucket": "cache"},
	})
	if err == nil {
		t.Fatal("Expected error for missing region")
	}
	if !strings.Contains(err.Error(), "region is required") {
		t.Errorf("Expected 'region is required' error, got: %v", err)
	}
}

func TestCreateCacheStore_S3(t *testing.T) {
	// Building the client does not contact the endpoint
	store, err := CreateCacheStore(context.Background(), &CacheConfig{
		Type: "s3",
		S3: map[string]any{
			"endpoint":          "http://localhost:4566",
			"region":            "us-east-1",
			"bucket":            "cache",
			"key_prefix":        "site",
			"access_key_id":     "test",
			"secret_access_key": "test",
		},
	})
	if err != nil {
		t.Fatalf("Failed to create S3 cache store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestCreateCacheStore_Unknown(t *testing.T) {
	_, err := CreateCacheStore(context.Background(), &CacheConfig{Type: "redis"})
	if err == nil {
		t.Fatal("Expected error for unknown cache type")
	}
}

func TestCreateRemote_MemorySeeded(t *testing.T) {
	ctx := context.Background()
	seed := t.TempDir()
	if err := os.MkdirAll(filepath.Join(seed, "blog"), 0o755); err != nil {
		t.Fatalf("Failed to create seed dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(seed, "blog", "post.md"), []byte("# Hi"), 0o644); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}

	cfg := GetDefaultConfig()
	cfg.Remote.Memory["seed_path"] = seed

	client, err := CreateRemote(ctx, &cfg.Remote, nil)
	if err != nil {
		t.Fatalf("Failed to create memory remote: %v", err)
	}

	if _, ok := client.(*remote.InstrumentedClient); !ok {
		t.Errorf("Expected an instrumented client, got %T", client)
	}

	data, err := client.ReadFile(ctx, "/blog/post.md", "")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "# Hi" {
		t.Errorf("Expected seeded content, got %q", data)
	}

	info, err := client.AccountInfo(ctx)
	if err != nil {
		t.Fatalf("AccountInfo failed: %v", err)
	}
	if info.UID != "author" {
		t.Errorf("Expected account 'author', got %q", info.UID)
	}
}

func TestCreateRemote_MemoryBadSeed(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Remote.Memory["seed_path"] = filepath.Join(t.TempDir(), "missing")

	if _, err := CreateRemote(context.Background(), &cfg.Remote, nil); err == nil {
		t.Fatal("Expected error for missing seed directory")
	}
}

func TestCreateRemote_S3(t *testing.T) {
	ctx := context.Background()
	cfg := &RemoteConfig{
		Type: "s3",
		S3: map[string]any{
			"endpoint":          "http://localhost:4566",
			"region":            "us-east-1",
			"bucket":            "site",
			"access_key_id":     "test",
			"secret_access_key": "test",
			"versioned":         true,
		},
		AccountID: "s3:site/",
	}

	client, err := CreateRemote(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create S3 remote: %v", err)
	}

	info, err := client.AccountInfo(ctx)
	if err != nil {
		t.Fatalf("AccountInfo failed: %v", err)
	}
	if info.UID != "s3:site/" {
		t.Errorf("Expected account 's3:site/', got %q", info.UID)
	}
}

func TestInitializeRegistry(t *testing.T) {
	ctx := context.Background()
	cfg := GetDefaultConfig()

	reg, err := InitializeRegistry(ctx, cfg)
	if err != nil {
		t.Fatalf("InitializeRegistry failed: %v", err)
	}
	defer func() { _ = reg.Close() }()

	if _, err := reg.GetStore(registry.StoreCache); err != nil {
		t.Errorf("Expected cache store registered: %v", err)
	}
	if reg.Remote() == nil {
		t.Error("Expected remote set")
	}
	if reg.Identity() == nil {
		t.Fatal("Expected identity manager set")
	}
	if reg.Identity().AuthorUID() != "author" {
		t.Errorf("Expected author 'author', got %q", reg.Identity().AuthorUID())
	}
}

func TestInitializeRegistry_BadCache(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.Type = "filesystem"
	cfg.Cache.Filesystem = map[string]any{}

	if _, err := InitializeRegistry(context.Background(), cfg); err == nil {
		t.Fatal("Expected error for invalid cache config")
	}
}

func TestInitializeRegistry_Nil(t *testing.T) {
	if _, err := InitializeRegistry(context.Background(), nil); err == nil {
		t.Fatal("Expected error for nil config")
	}
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()

	adapters := CreateAdapters(cfg, InitializeMetrics(cfg))
	if len(adapters) != 1 {
		t.Fatalf("Expected 1 adapter, got %d", len(adapters))
	}
	if adapters[0].Protocol() != "HTTP" {
		t.Errorf("Expected HTTP adapter, got %q", adapters[0].Protocol())
	}
	if adapters[0].Port() != 8080 {
		t.Errorf("Expected port 8080, got %d", adapters[0].Port())
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	m := InitializeMetrics(GetDefaultConfig())

	if m.Server != nil || m.WebMetrics != nil || m.CacheMetrics != nil {
		t.Errorf("Expected no metrics components when disabled, got %+v", m)
	}
}
