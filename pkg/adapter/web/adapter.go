// Package web serves the site over HTTP.
//
// WebAdapter implements adapter.Adapter with a gin engine. Every request is
// one connection: the adapter decodes the client session, asks the identity
// manager for the request's capability, and builds a fresh vfs.Resolver and
// render.Renderer that live until the response is written.
//
// Routes:
//
//	GET  /<path>          view a page, directory, image or raw file
//	POST /<path>          write or create a file (author only)
//	GET  /!user/login     start a login
//	GET  /!user/login_cb  login callback from the identity provider
//	GET  /!user/logout    drop the viewer session
package web

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marmos91/dittosite/internal/logger"
	"github.com/marmos91/dittosite/internal/ratelimiter"
	"github.com/marmos91/dittosite/pkg/cache"
	"github.com/marmos91/dittosite/pkg/metrics"
	"github.com/marmos91/dittosite/pkg/registry"
	"github.com/marmos91/dittosite/pkg/store/kv/session"
)

// WebAdapter implements the adapter.Adapter interface for HTTP.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. http.Server.Shutdown stops accepting connections and waits for
//     in-flight requests (up to ShutdownTimeout or the Stop context)
//
// Thread safety:
// All methods are safe for concurrent use. Shutdown is guarded by sync.Once.
type WebAdapter struct {
	config Config

	// metrics is never nil; New installs a no-op collector
	metrics metrics.WebMetrics

	// cacheOptions are applied to every request's cache
	cacheOptions []cache.Option

	// registry is injected by DittoServer before Serve()
	registry *registry.Registry

	codec   *session.Codec
	limiter *ratelimiter.Keyed
	engine  *gin.Engine

	mu     sync.Mutex
	server *http.Server

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// Option configures a WebAdapter.
type Option func(*WebAdapter)

// WithCacheOptions sets options for the per-request cache (metrics, link
// validity).
func WithCacheOptions(opts ...cache.Option) Option {
	return func(a *WebAdapter) { a.cacheOptions = append(a.cacheOptions, opts...) }
}

// New creates a new WebAdapter.
//
// The adapter is created in a stopped state. DittoServer injects the
// registry with SetRegistry(), then calls Serve().
//
// Panics if config validation fails.
func New(config Config, webMetrics metrics.WebMetrics, opts ...Option) *WebAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid web config: %v", err))
	}

	secret := []byte(config.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("generate session secret: %v", err))
		}
		logger.Warn("No session secret configured: sessions will not survive a restart")
	}
	codec, err := session.NewCodec(secret, config.SessionTTL)
	if err != nil {
		panic(fmt.Sprintf("invalid session config: %v", err))
	}

	if webMetrics == nil {
		webMetrics = noopWebMetrics{}
	}

	a := &WebAdapter{
		config:   config,
		metrics:  webMetrics,
		codec:    codec,
		limiter:  ratelimiter.NewKeyed(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.engine = a.newEngine()

	if a.limiter.Enabled() {
		logger.Debug("HTTP rate limit: %d req/s per client (burst %d)",
			config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}
	return a
}

// noopWebMetrics is used when no collector is provided.
type noopWebMetrics struct{}

func (noopWebMetrics) RecordRequest(string, string, int, time.Duration) {}
func (noopWebMetrics) RecordRequestStart()                              {}
func (noopWebMetrics) RecordRequestEnd()                                {}
func (noopWebMetrics) RecordRateLimited()                               {}
func (noopWebMetrics) RecordLogin(string)                               {}

func (a *WebAdapter) newEngine() *gin.Engine {
	if !a.config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.Use(
		a.requestContext(),
		a.observe(),
		a.rateLimit(),
		gin.CustomRecovery(a.recover),
	)

	// One catch-all per method. /!user routes are dispatched inside, since
	// gin does not allow static routes next to a root catch-all.
	engine.GET("/*path", a.dispatch)
	engine.HEAD("/*path", a.dispatch)
	engine.POST("/*path", a.dispatch)
	return engine
}

// SetRegistry injects the shared registry.
//
// Thread safety:
// Called exactly once before Serve(), no synchronization needed.
func (a *WebAdapter) SetRegistry(reg *registry.Registry) {
	a.registry = reg
	logger.Debug("HTTP registry configured: stores=%v", reg.ListStores())
}

// Handler returns the HTTP handler serving the site.
func (a *WebAdapter) Handler() http.Handler {
	return a.engine
}

// Serve listens on the configured port and blocks until the context is
// cancelled, Stop() is called or the server fails.
//
// Returns:
//   - the context error if cancelled via context
//   - nil after Stop()
//   - error if the listener fails to start or the server fails
func (a *WebAdapter) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on port %d: %w", a.config.Port, err)
	}
	return a.serve(ctx, listener)
}

func (a *WebAdapter) serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:      a.engine,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
	}

	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	// Stop() may have run before the server existed.
	select {
	case <-a.shutdown:
		_ = listener.Close()
		return nil
	default:
	}

	logger.Info("HTTP server listening on %s", listener.Addr())
	logger.Debug("HTTP config: read_timeout=%v write_timeout=%v idle_timeout=%v debug=%t",
		a.config.ReadTimeout, a.config.WriteTimeout, a.config.IdleTimeout, a.config.Debug)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("HTTP shutdown signal received: %v", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		if err := a.Stop(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown: %v", err)
		}
		<-errChan
		return ctx.Err()

	case <-a.shutdown:
		<-errChan
		return nil

	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. In-flight requests get until ctx is
// done to complete.
//
// Thread safety:
// Safe to call multiple times and concurrently with Serve().
func (a *WebAdapter) Stop(ctx context.Context) error {
	var err error
	a.shutdownOnce.Do(func() {
		close(a.shutdown)

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv == nil {
			return
		}

		if err = srv.Shutdown(ctx); err != nil {
			logger.Warn("HTTP shutdown did not complete: %v", err)
			_ = srv.Close()
		} else {
			logger.Info("HTTP server stopped gracefully")
		}
	})
	return err
}

// Port returns the configured TCP port.
func (a *WebAdapter) Port() int {
	return a.config.Port
}

// Protocol returns "HTTP".
func (a *WebAdapter) Protocol() string {
	return "HTTP"
}
