// Package worker provides the worker instance abstraction and the registry
// that creates, tracks, and destroys instances within pool-size bounds.
package worker

import "context"

// Session is the unit of externally-facing capacity behind a worker
// instance. How a session actually performs its interaction (driving a
// remote endpoint, parsing a response stream) is the driver's concern;
// the pool only needs lifecycle and liveness.
//
// Implementations do not need to be safe for concurrent use: the owning
// Instance serializes all calls.
type Session interface {
	// Open establishes the session and returns its identifier.
	// A driver that cannot reach full capability but can still serve
	// reduced-capability traffic returns degraded=true with a nil error.
	Open(ctx context.Context) (sessionID string, degraded bool, err error)

	// Ping is a cheap liveness probe.
	Ping(ctx context.Context) error

	// Send dispatches work to the session.
	Send(ctx context.Context, content string, attachments []string) error

	// Renew replaces the session in place, returning the new identifier.
	// Used when the session expires by age or request count.
	Renew(ctx context.Context) (sessionID string, err error)

	// Close releases the session's resources. It must be idempotent.
	Close() error
}

// Factory creates a Session for a new instance. The instance ID is provided
// so drivers can tag their own diagnostics.
type Factory func(instanceID string) Session
