package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/eaasxt/farmhand/internal/core"
	"github.com/eaasxt/farmhand/internal/storage"
)

type reserveRequest struct {
	Project    string   `json:"project"`
	Agent      string   `json:"agent"`
	Patterns   []string `json:"patterns"`
	Exclusive  bool     `json:"exclusive"`
	Reason     string   `json:"reason"`
	TTLMinutes int      `json:"ttl_minutes"`
}

type releaseRequest struct {
	Project  string   `json:"project"`
	Agent    string   `json:"agent"`
	Patterns []string `json:"patterns"`
}

type renewRequest struct {
	Project    string   `json:"project"`
	Agent      string   `json:"agent"`
	Patterns   []string `json:"patterns"`
	TTLMinutes int      `json:"ttl_minutes"`
}

type apiReservation struct {
	ID          string  `json:"id"`
	Project     string  `json:"project"`
	Agent       string  `json:"agent"`
	PathPattern string  `json:"path_pattern"`
	Exclusive   bool    `json:"exclusive"`
	Reason      string  `json:"reason,omitempty"`
	CreatedAt   string  `json:"created_at"`
	ExpiresAt   string  `json:"expires_at"`
	ReleasedAt  *string `json:"released_at,omitempty"`
	IsActive    bool    `json:"is_active"`
}

type reservationsResponse struct {
	Reservations []apiReservation `json:"reservations"`
}

func toAPIReservation(r core.Reservation) apiReservation {
	api := apiReservation{
		ID:          r.ID,
		Project:     r.ProjectKey,
		Agent:       r.AgentName,
		PathPattern: r.PathPattern,
		Exclusive:   r.Exclusive,
		Reason:      r.Reason,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339Nano),
		ExpiresAt:   r.ExpiresAt.Format(time.RFC3339Nano),
		IsActive:    r.Active(time.Now().UTC()),
	}
	if r.ReleasedAt != nil {
		s := r.ReleasedAt.Format(time.RFC3339Nano)
		api.ReleasedAt = &s
	}
	return api
}

func (s *Service) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listReservations(w, r)
	case http.MethodPost:
		s.createReservations(w, r)
	case http.MethodDelete:
		s.releaseReservations(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) createReservations(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Agent == "" || len(req.Patterns) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	project, code := resolveProject(r, req.Project)
	if code != 0 {
		w.WriteHeader(code)
		return
	}

	ttl := s.defaultTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	reservations, err := s.store.Reserve(r.Context(), storage.ReserveRequest{
		ProjectKey: project,
		AgentName:  req.Agent,
		Patterns:   req.Patterns,
		Exclusive:  req.Exclusive,
		Reason:     req.Reason,
		TTL:        ttl,
	})
	if err != nil {
		var conflictErr *core.ConflictError
		switch {
		case errors.As(err, &conflictErr):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":     "reservation_conflict",
				"conflicts": conflictErr.Conflicts,
			})
		case errors.Is(err, core.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
		return
	}

	now := time.Now().UTC()
	api := make([]apiReservation, 0, len(reservations))
	for _, res := range reservations {
		api = append(api, toAPIReservation(res))
		s.broadcast(project, core.Event{
			Type:        core.EventReservationCreated,
			Project:     project,
			AgentName:   res.AgentName,
			Reservation: res.ID,
			PathPattern: res.PathPattern,
			At:          now,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(reservationsResponse{Reservations: api})
}

func (s *Service) listReservations(w http.ResponseWriter, r *http.Request) {
	project, code := resolveProject(r, r.URL.Query().Get("project"))
	if code != 0 {
		w.WriteHeader(code)
		return
	}
	agent := r.URL.Query().Get("agent")

	var (
		reservations []core.Reservation
		err          error
	)
	if agent != "" {
		reservations, err = s.store.AgentActiveReservations(r.Context(), project, agent)
	} else {
		reservations, err = s.store.ActiveReservations(r.Context(), project)
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	api := make([]apiReservation, 0, len(reservations))
	for _, res := range reservations {
		api = append(api, toAPIReservation(res))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reservationsResponse{Reservations: api})
}

func (s *Service) releaseReservations(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Agent == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	project, code := resolveProject(r, req.Project)
	if code != 0 {
		w.WriteHeader(code)
		return
	}

	count, err := s.store.ReleaseReservations(r.Context(), project, req.Agent, req.Patterns)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if count > 0 {
		s.broadcast(project, core.Event{
			Type:      core.EventReservationReleased,
			Project:   project,
			AgentName: req.Agent,
			At:        time.Now().UTC(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"released": count})
}

func (s *Service) handleRenewReservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Agent == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	project, code := resolveProject(r, req.Project)
	if code != 0 {
		w.WriteHeader(code)
		return
	}

	ttl := s.defaultTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	count, err := s.store.RenewReservations(r.Context(), project, req.Agent, req.Patterns, ttl)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"renewed": count})
}

// handleCheckPath is the conflict probe: which active reservations cover
// the given concrete path.
func (s *Service) handleCheckPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	project, code := resolveProject(r, r.URL.Query().Get("project"))
	if code != 0 {
		w.WriteHeader(code)
		return
	}

	reservations, err := s.store.ActiveReservationsForPath(r.Context(), project, path)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	api := make([]apiReservation, 0, len(reservations))
	for _, res := range reservations {
		api = append(api, toAPIReservation(res))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reservationsResponse{Reservations: api})
}
