// Package adapter defines the front ends DittoServer runs over the shared
// registry. The web adapter (pkg/adapter/web) is the site itself.
package adapter

import (
	"context"

	"github.com/marmos91/dittosite/pkg/registry"
)

// Adapter is a network front end with a managed lifecycle.
//
// DittoServer calls SetRegistry once, then Serve; Stop may arrive at any time
// from another goroutine, including before Serve has bound its listener.
type Adapter interface {
	// Serve listens and blocks. Cancelling ctx starts a graceful shutdown:
	// no new requests are accepted and in-flight ones get until the
	// adapter's shutdown timeout to finish.
	//
	// Returns nil or context.Canceled after a graceful stop. Any return
	// before ctx is done is treated as fatal by DittoServer.
	Serve(ctx context.Context) error

	// SetRegistry hands the adapter the cache store, the remote client and
	// the identity manager it serves requests from.
	SetRegistry(reg *registry.Registry)

	// Stop shuts the adapter down within ctx. Idempotent.
	Stop(ctx context.Context) error

	// Protocol names the adapter in logs and metrics, e.g. "HTTP".
	Protocol() string

	// Port is the configured TCP port.
	Port() int
}
