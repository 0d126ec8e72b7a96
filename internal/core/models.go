package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a project, agent, or reservation does not exist.
var ErrNotFound = errors.New("not found")

// EventType identifies a reservation lifecycle event on the ws feed.
type EventType string

const (
	EventReservationCreated  EventType = "reservation.created"
	EventReservationReleased EventType = "reservation.released"
	EventReservationExpired  EventType = "reservation.expired"
	EventAgentRegistered     EventType = "agent.registered"
)

// Project is a coordinated workspace, identified by a human-readable key
// (typically the repo root path or name). Created on first registration.
type Project struct {
	ID        string
	HumanKey  string
	CreatedAt time.Time
}

// Agent is a registered process identity within a project. Name is unique per
// project. LastActiveAt advances on every tracked mutating action and drives
// staleness detection.
type Agent struct {
	ID           string
	ProjectID    string
	Name         string
	Program      string
	Model        string
	LastActiveAt time.Time
}

// Reservation is an advisory, TTL-bounded claim over a glob pattern of paths.
// Rows are an audit log: they are never deleted, only released or renewed.
type Reservation struct {
	ID          string
	ProjectID   string
	ProjectKey  string
	AgentID     string
	AgentName   string
	PathPattern string
	Exclusive   bool
	Reason      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ReleasedAt  *time.Time

	// TTL is input-only: used on Reserve/Renew, derived otherwise.
	TTL time.Duration
}

// Active reports whether the reservation still grants and blocks anything.
// Expired-but-unreleased rows are inert both ways.
func (r Reservation) Active(now time.Time) bool {
	return r.ReleasedAt == nil && now.Before(r.ExpiresAt)
}

// ConflictDetail names one holder whose active claim overlaps a requested
// pattern.
type ConflictDetail struct {
	ReservationID string    `json:"reservation_id"`
	AgentName     string    `json:"agent_name"`
	PathPattern   string    `json:"path_pattern"`
	Exclusive     bool      `json:"exclusive"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ConflictError is returned by Reserve when a requested pattern overlaps
// another agent's active claim and at least one side is exclusive. It is a
// structured result, not a store failure.
type ConflictError struct {
	Conflicts []ConflictDetail
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return "reservation conflict"
	}
	holders := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		holders = append(holders, fmt.Sprintf("%s (%s)", c.AgentName, c.PathPattern))
	}
	return "reservation conflict with " + strings.Join(holders, ", ")
}

// Event is a reservation lifecycle notification broadcast to ws subscribers.
type Event struct {
	Type        EventType `json:"type"`
	Project     string    `json:"project"`
	AgentName   string    `json:"agent_name,omitempty"`
	Reservation string    `json:"reservation_id,omitempty"`
	PathPattern string    `json:"path_pattern,omitempty"`
	At          time.Time `json:"at"`
}
