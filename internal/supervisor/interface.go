// Package supervisor is the facade the outer transport adapter talks to: it
// composes the registry, the controller binding, the lifecycle engine and
// the reaper into the five operations a request handler needs, plus the
// stats and shutdown concerns that sit above all four.
package supervisor

import (
	"context"

	"github.com/nexus-weaver/kernel/internal/workload"
)

// Handler is the request-handler interface consumed by the transport shim.
// Every method is safe for concurrent use across distinct and identical
// ids alike.
type Handler interface {
	// Health returns a version string identifying the running supervisor.
	Health(ctx context.Context) (string, error)

	// Start validates and launches a workload, returning its id.
	Start(ctx context.Context, spec workload.Spec) (workload.ID, error)

	// Stop requests termination of a workload. It is idempotent: stopping
	// an already-terminal or already-stopping workload succeeds without
	// re-signaling.
	Stop(ctx context.Context, id workload.ID) error

	// Get returns a point-in-time snapshot of a single workload's record.
	Get(ctx context.Context, id workload.ID) (workload.Snapshot, error)

	// List returns point-in-time snapshots of every known workload.
	List(ctx context.Context) ([]workload.Snapshot, error)
}
