// Package httpapi serves the mutating reservation API. Hooks bypass this
// layer and read sqlite directly; everything that writes goes through here.
package httpapi

import (
	"context"
	"time"

	"github.com/eaasxt/farmhand/internal/core"
	"github.com/eaasxt/farmhand/internal/storage"
)

// APIStore is what the handlers need from the store: the mutating surface
// plus the per-agent and per-path reads used by list and check endpoints.
type APIStore interface {
	storage.Store
	AgentActiveReservations(ctx context.Context, projectKey, agentName string) ([]core.Reservation, error)
	ActiveReservationsForPath(ctx context.Context, projectKey, path string) ([]core.Reservation, error)
}

type Service struct {
	store      APIStore
	bus        Broadcaster
	defaultTTL time.Duration
}

type Broadcaster interface {
	Broadcast(project string, event any)
}

func NewService(store APIStore, defaultTTL time.Duration) *Service {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Service{store: store, defaultTTL: defaultTTL}
}

func (s *Service) WithBroadcaster(b Broadcaster) *Service {
	s.bus = b
	return s
}

func (s *Service) broadcast(project string, ev any) {
	if s.bus != nil {
		s.bus.Broadcast(project, ev)
	}
}
