// Package storage defines the reservation store contract. The store has two
// access paths: Store carries the mutating protocol served over the HTTP API,
// and ReadStore is the low-latency read-only path the synchronous hooks use
// directly, because an RPC round trip is unacceptable inside a tool-call
// interception window.
package storage

import (
	"context"
	"time"

	"github.com/eaasxt/farmhand/internal/core"
)

// RegisterRequest creates (or revives) an agent identity within a project.
// The project row is created on first registration for its key. Name is
// optional; the store generates one when empty.
type RegisterRequest struct {
	ProjectKey string
	Name       string
	Program    string
	Model      string
}

// ReserveRequest claims a set of path patterns for one agent.
type ReserveRequest struct {
	ProjectKey string
	AgentName  string
	Patterns   []string
	Exclusive  bool
	Reason     string
	TTL        time.Duration
}

// Store is the mutating access path. Reserve performs conflict detection and
// insertion in a single transaction; an overlap with another agent's active
// claim surfaces as *core.ConflictError, never as a bare failure.
type Store interface {
	RegisterAgent(ctx context.Context, req RegisterRequest) (core.Agent, error)
	TouchAgent(ctx context.Context, projectKey, agentName string) (core.Agent, error)
	Reserve(ctx context.Context, req ReserveRequest) ([]core.Reservation, error)

	// ReleaseReservations releases the agent's active reservations. A nil or
	// empty patterns slice means all of them. Released and expired rows are
	// skipped and not counted.
	ReleaseReservations(ctx context.Context, projectKey, agentName string, patterns []string) (int, error)

	// RenewReservations extends expires to now+ttl on active rows only.
	RenewReservations(ctx context.Context, projectKey, agentName string, patterns []string, ttl time.Duration) (int, error)

	ActiveReservations(ctx context.Context, projectKey string) ([]core.Reservation, error)
	Close() error
}

// ReadStore is the hot path consulted by hooks. Implementations must never
// mutate reservation state.
type ReadStore interface {
	ActiveReservationsForPath(ctx context.Context, projectKey, path string) ([]core.Reservation, error)
	AgentActiveReservations(ctx context.Context, projectKey, agentName string) ([]core.Reservation, error)

	// StaleReservations returns active reservations whose holder's last
	// activity is older than now-threshold. Staleness is a property of the
	// holder, not of the reservation's own age.
	StaleReservations(ctx context.Context, projectKey string, threshold time.Duration) ([]core.Reservation, error)
}

// Reaper is the only party permitted to release another agent's reservations.
// Both methods are idempotent; ForceReleaseStale re-validates staleness
// atomically with the release so a concurrently renewed claim survives.
type Reaper interface {
	ForceReleaseStale(ctx context.Context, projectKey string, threshold time.Duration) ([]core.Reservation, error)
	ForceReleaseAgent(ctx context.Context, projectKey, agentName string) (int, error)
}
