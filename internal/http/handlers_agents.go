package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/eaasxt/farmhand/internal/auth"
	"github.com/eaasxt/farmhand/internal/core"
	"github.com/eaasxt/farmhand/internal/storage"
)

type registerAgentRequest struct {
	Project string `json:"project"`
	Name    string `json:"name"`
	Program string `json:"program"`
	Model   string `json:"model"`
}

type apiAgent struct {
	ID         string `json:"id"`
	Project    string `json:"project"`
	Name       string `json:"name"`
	Program    string `json:"program,omitempty"`
	Model      string `json:"model,omitempty"`
	LastActive string `json:"last_active"`
}

func toAPIAgent(project string, a core.Agent) apiAgent {
	return apiAgent{
		ID:         a.ID,
		Project:    project,
		Name:       a.Name,
		Program:    a.Program,
		Model:      a.Model,
		LastActive: a.LastActiveAt.Format(time.RFC3339Nano),
	}
}

// resolveProject applies auth scoping: API-key callers may only touch the
// project their key grants; localhost callers say which project they mean.
func resolveProject(r *http.Request, requested string) (string, int) {
	info, _ := auth.FromContext(r.Context())
	project := strings.TrimSpace(requested)
	if project == "" {
		project = info.Project
	}
	if project == "" {
		return "", http.StatusBadRequest
	}
	if info.Mode == auth.ModeAPIKey && project != info.Project {
		return "", http.StatusForbidden
	}
	return project, 0
}

func (s *Service) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	project, code := resolveProject(r, req.Project)
	if code != 0 {
		w.WriteHeader(code)
		return
	}

	agent, err := s.store.RegisterAgent(r.Context(), storage.RegisterRequest{
		ProjectKey: project,
		Name:       strings.TrimSpace(req.Name),
		Program:    req.Program,
		Model:      req.Model,
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.broadcast(project, core.Event{
		Type:      core.EventAgentRegistered,
		Project:   project,
		AgentName: agent.Name,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toAPIAgent(project, agent))
}

// handleAgentRenew serves POST /api/agents/{name}/renew, the liveness
// heartbeat that keeps an agent's reservations off the reaper's list.
func (s *Service) handleAgentRenew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	if !strings.HasSuffix(path, "/renew") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name := strings.Trim(strings.TrimSuffix(path, "/renew"), "/")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	project, code := resolveProject(r, r.URL.Query().Get("project"))
	if code != 0 {
		w.WriteHeader(code)
		return
	}

	agent, err := s.store.TouchAgent(r.Context(), project, name)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toAPIAgent(project, agent))
}
