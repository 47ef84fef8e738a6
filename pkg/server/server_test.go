package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittosite/pkg/registry"
	"github.com/marmos91/dittosite/pkg/store/kv/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter blocks in Serve until its context is done or Stop is called.
type fakeAdapter struct {
	protocol string
	port     int
	failWith error

	mu       sync.Mutex
	reg      *registry.Registry
	stopped  chan struct{}
	stopOnce sync.Once
	order    *[]string
}

func newFakeAdapter(protocol string, port int, order *[]string) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stopped: make(chan struct{}), order: order}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.failWith != nil {
		return f.failWith
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopped:
		return nil
	}
}

func (f *fakeAdapter) SetRegistry(reg *registry.Registry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reg = reg
}

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.stopOnce.Do(func() {
		if f.order != nil {
			*f.order = append(*f.order, f.protocol)
		}
		close(f.stopped)
	})
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func TestNew_PanicsOnNilRegistry(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}

func TestAddAdapter(t *testing.T) {
	reg := registry.NewRegistry()
	s := New(reg)

	a := newFakeAdapter("HTTP", 8080, nil)
	require.NoError(t, s.AddAdapter(a))
	assert.Same(t, reg, a.reg, "registry injected")

	assert.Error(t, s.AddAdapter(newFakeAdapter("HTTP", 8081, nil)), "duplicate protocol")
	assert.Error(t, s.AddAdapter(newFakeAdapter("HTTPS", 8080, nil)), "duplicate port")
	assert.Len(t, s.Adapters(), 1)

	assert.Panics(t, func() { _ = s.AddAdapter(nil) })
}

func TestServe_NoAdapters(t *testing.T) {
	s := New(registry.NewRegistry())
	assert.Error(t, s.Serve(context.Background()))
}

func TestServe_ShutdownOnCancel(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterStore(registry.StoreCache, memory.NewMemoryStore()))

	var order []string
	s := New(reg)
	require.NoError(t, s.AddAdapter(newFakeAdapter("HTTP", 8080, &order)))
	require.NoError(t, s.AddAdapter(newFakeAdapter("HTTPS", 8443, &order)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	assert.Equal(t, []string{"HTTPS", "HTTP"}, order, "stopped in reverse order")

	// Stores are closed once the adapters are gone.
	store, err := reg.GetStore(registry.StoreCache)
	require.NoError(t, err)
	_, err = store.Get(context.Background(), "k")
	assert.Error(t, err)

	assert.ErrorIs(t, s.Serve(context.Background()), ErrAlreadyServed)
	assert.Error(t, s.AddAdapter(newFakeAdapter("OTHER", 1, nil)))
}

func TestServe_AdapterFailureStopsOthers(t *testing.T) {
	var order []string
	s := New(registry.NewRegistry())

	healthy := newFakeAdapter("HTTP", 8080, &order)
	broken := newFakeAdapter("HTTPS", 8443, nil)
	broken.failWith = errors.New("bind: address already in use")

	require.NoError(t, s.AddAdapter(healthy))
	require.NoError(t, s.AddAdapter(broken))

	err := s.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTPS adapter error")
	assert.Contains(t, err.Error(), "address already in use")
	assert.Contains(t, order, "HTTP")
}
