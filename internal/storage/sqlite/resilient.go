package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/eaasxt/farmhand/internal/core"
	"github.com/eaasxt/farmhand/internal/storage"
)

// Compile-time interface checks.
var (
	_ storage.Store     = (*ResilientStore)(nil)
	_ storage.ReadStore = (*ResilientStore)(nil)
	_ storage.Reaper    = (*ResilientStore)(nil)
)

// ResilientStore wraps every method of *Store with CircuitBreaker +
// RetryOnDBLock for resilience against transient SQLite errors.
type ResilientStore struct {
	inner *Store
	cb    *CircuitBreaker
}

// NewResilient creates a ResilientStore with default circuit breaker
// settings (threshold=5, resetTimeout=30s).
func NewResilient(inner *Store) *ResilientStore {
	return &ResilientStore{inner: inner, cb: NewCircuitBreaker(5, 30*time.Second)}
}

// NewResilientWithBreaker creates a ResilientStore with a custom circuit breaker.
func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker) *ResilientStore {
	return &ResilientStore{inner: inner, cb: cb}
}

// CircuitBreakerState returns the breaker state as a string, for health output.
func (r *ResilientStore) CircuitBreakerState() string {
	return r.cb.State().String()
}

// execute runs fn with retry inside the breaker. Domain outcomes are
// results the store produced on purpose, not store failures, so the
// breaker counts them as successes; the caller still sees the error.
func (r *ResilientStore) execute(fn func() error) error {
	var opErr error
	cbErr := r.cb.Execute(func() error {
		opErr = RetryOnDBLock(fn)
		if isDomainOutcome(opErr) {
			return nil
		}
		return opErr
	})
	if opErr != nil {
		return opErr
	}
	return cbErr
}

// isDomainOutcome reports whether err is a deliberate store answer: a
// reservation conflict or a missing row. A run of conflicts must never
// open the breaker and blackout the store for everyone.
func isDomainOutcome(err error) bool {
	var conflict *core.ConflictError
	return errors.As(err, &conflict) || errors.Is(err, core.ErrNotFound)
}

func (r *ResilientStore) RegisterAgent(ctx context.Context, req storage.RegisterRequest) (core.Agent, error) {
	var result core.Agent
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.RegisterAgent(ctx, req)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) TouchAgent(ctx context.Context, projectKey, agentName string) (core.Agent, error) {
	var result core.Agent
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.TouchAgent(ctx, projectKey, agentName)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) Reserve(ctx context.Context, req storage.ReserveRequest) ([]core.Reservation, error) {
	var result []core.Reservation
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.Reserve(ctx, req)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ReleaseReservations(ctx context.Context, projectKey, agentName string, patterns []string) (int, error) {
	var result int
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.ReleaseReservations(ctx, projectKey, agentName, patterns)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) RenewReservations(ctx context.Context, projectKey, agentName string, patterns []string, ttl time.Duration) (int, error) {
	var result int
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.RenewReservations(ctx, projectKey, agentName, patterns, ttl)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ActiveReservations(ctx context.Context, projectKey string) ([]core.Reservation, error) {
	var result []core.Reservation
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.ActiveReservations(ctx, projectKey)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ActiveReservationsForPath(ctx context.Context, projectKey, path string) ([]core.Reservation, error) {
	var result []core.Reservation
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.ActiveReservationsForPath(ctx, projectKey, path)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) AgentActiveReservations(ctx context.Context, projectKey, agentName string) ([]core.Reservation, error) {
	var result []core.Reservation
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.AgentActiveReservations(ctx, projectKey, agentName)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) StaleReservations(ctx context.Context, projectKey string, threshold time.Duration) ([]core.Reservation, error) {
	var result []core.Reservation
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.StaleReservations(ctx, projectKey, threshold)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ForceReleaseStale(ctx context.Context, projectKey string, threshold time.Duration) ([]core.Reservation, error) {
	var result []core.Reservation
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.ForceReleaseStale(ctx, projectKey, threshold)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ForceReleaseAgent(ctx context.Context, projectKey, agentName string) (int, error) {
	var result int
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.ForceReleaseAgent(ctx, projectKey, agentName)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ProjectKeys(ctx context.Context) ([]string, error) {
	var result []string
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.ProjectKeys(ctx)
		return innerErr
	})
	return result, err
}

// Close delegates directly to the inner store without CB or retry.
func (r *ResilientStore) Close() error {
	return r.inner.Close()
}
