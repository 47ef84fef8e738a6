package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittosite/internal/logger"
	"github.com/marmos91/dittosite/pkg/adapter"
	"github.com/marmos91/dittosite/pkg/registry"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve already called")

// stopTimeout bounds the graceful shutdown of every adapter together.
const stopTimeout = 30 * time.Second

// DittoServer manages the lifecycle of the adapters serving the site.
//
// Architecture:
// Every adapter shares one registry holding the cache store, the author's
// remote client and the identity manager, so all front ends see the same
// site and the same cached state.
//
// Lifecycle:
//  1. Creation: New() with the registry
//  2. Registration: AddAdapter() for each front end
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation stops the adapters in reverse order,
//     then the registry's stores are closed
//
// Thread safety:
// DittoServer is safe for concurrent use. Serve() may only be called once.
//
// Example usage:
//
//	server := New(reg)
//	server.AddAdapter(web.New(webConfig, webMetrics))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := server.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type DittoServer struct {
	// registry is shared by all adapters
	registry *registry.Registry

	// adapters contains all registered adapters, in registration order
	adapters []adapter.Adapter

	// mu protects adapters and served
	mu sync.Mutex

	// served is set by the first Serve() call
	served bool
}

// New creates a DittoServer around reg.
//
// Panics if reg is nil (indicates programmer error).
func New(reg *registry.Registry) *DittoServer {
	if reg == nil {
		panic("registry cannot be nil")
	}

	return &DittoServer{
		registry: reg,
		adapters: make([]adapter.Adapter, 0, 2),
	}
}

// Registry returns the shared registry.
func (s *DittoServer) Registry() *registry.Registry {
	return s.registry
}

// AddAdapter registers an adapter and injects the shared registry into it.
//
// Returns an error if another adapter already serves the same protocol or
// port, or if Serve() has been called.
//
// Panics if a is nil (programmer error).
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetRegistry(s.registry)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// Shutdown behavior:
// When the context is cancelled or an adapter fails, every adapter receives
// Stop() in reverse registration order, Serve() waits for all of them to
// return and then closes the registry.
//
// Returns:
//   - context.Canceled (or the context's error) on signal-driven shutdown
//   - a wrapped adapter error if an adapter failed
//   - ErrAlreadyServed on a second call
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true

	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	err := s.serve(ctx, adapters)

	if closeErr := s.registry.Close(); closeErr != nil {
		logger.Error("Failed to close stores: %v", closeErr)
	}

	return err
}

func (s *DittoServer) serve(ctx context.Context, adapters []adapter.Adapter) error {
	logger.Info("Starting DittoSite with %d adapter(s)", len(adapters))

	// Buffered so failing adapters never block
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(ctx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
				if ctx.Err() == nil {
					errChan <- adapterError{protocol: protocol, err: errors.New("stopped unexpectedly")}
				}
			case errors.Is(err, context.Canceled) || ctx.Err() != nil:
				logger.Debug("%s adapter stopped gracefully", protocol)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("DittoSite stopped")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters signals every adapter to stop, in reverse registration
// order, sharing one timeout. Errors are logged and do not interrupt the
// remaining stops.
func (s *DittoServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
