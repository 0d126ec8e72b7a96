package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eaasxt/farmhand/internal/core"
	"github.com/eaasxt/farmhand/internal/names"
	"github.com/eaasxt/farmhand/internal/storage"
)

// RegisterAgent creates the project on first sight of its key, then creates
// or revives the agent row. Re-registering an existing name is not an error;
// it refreshes program, model, and activity.
func (s *Store) RegisterAgent(ctx context.Context, req storage.RegisterRequest) (core.Agent, error) {
	if req.ProjectKey == "" {
		return core.Agent{}, fmt.Errorf("project key required")
	}
	if req.Name != "" && !names.Valid(req.Name) {
		return core.Agent{}, fmt.Errorf("invalid agent name %q", req.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Agent{}, fmt.Errorf("begin register: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	projectID, err := ensureProject(ctx, tx, req.ProjectKey, now)
	if err != nil {
		return core.Agent{}, err
	}

	name := req.Name
	if name == "" {
		taken, err := projectAgentNames(ctx, tx, projectID)
		if err != nil {
			return core.Agent{}, err
		}
		name = names.PickAvoiding(taken)
	}

	agent := core.Agent{
		ProjectID:    projectID,
		Name:         name,
		Program:      req.Program,
		Model:        req.Model,
		LastActiveAt: now,
	}

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM agents WHERE project_id = ? AND name = ?`,
		projectID, name,
	).Scan(&existingID)
	switch {
	case err == nil:
		agent.ID = existingID
		_, err = tx.ExecContext(ctx,
			`UPDATE agents SET program = ?, model = ?, last_active_ts = ? WHERE id = ?`,
			agent.Program, agent.Model, fmtTime(now), existingID,
		)
		if err != nil {
			return core.Agent{}, fmt.Errorf("revive agent: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		agent.ID = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO agents (id, project_id, name, program, model, last_active_ts)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			agent.ID, projectID, name, agent.Program, agent.Model, fmtTime(now),
		)
		if err != nil {
			return core.Agent{}, fmt.Errorf("insert agent: %w", err)
		}
	default:
		return core.Agent{}, fmt.Errorf("lookup agent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Agent{}, fmt.Errorf("commit register: %w", err)
	}
	return agent, nil
}

// TouchAgent advances the agent's activity timestamp. Every tracked mutating
// action routes through this, which is what keeps the holder out of the
// reaper's staleness window.
func (s *Store) TouchAgent(ctx context.Context, projectKey, agentName string) (core.Agent, error) {
	agent, err := s.agentByName(ctx, projectKey, agentName)
	if err != nil {
		return core.Agent{}, err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE agents SET last_active_ts = ? WHERE id = ?`,
		fmtTime(now), agent.ID,
	)
	if err != nil {
		return core.Agent{}, fmt.Errorf("touch agent: %w", err)
	}
	agent.LastActiveAt = now
	return agent, nil
}

func ensureProject(ctx context.Context, tx *sql.Tx, humanKey string, now time.Time) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM projects WHERE human_key = ?`, humanKey).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup project: %w", err)
	}
	id = uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (id, human_key, created_at) VALUES (?, ?, ?)`,
		id, humanKey, fmtTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert project: %w", err)
	}
	return id, nil
}

func projectAgentNames(ctx context.Context, tx *sql.Tx, projectID string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM agents WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list agent names: %w", err)
	}
	defer rows.Close()

	taken := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan agent name: %w", err)
		}
		taken[name] = true
	}
	return taken, rows.Err()
}

func (s *Store) agentByName(ctx context.Context, projectKey, agentName string) (core.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT a.id, a.project_id, a.name, a.program, a.model, a.last_active_ts
		 FROM agents a JOIN projects p ON p.id = a.project_id
		 WHERE p.human_key = ? AND a.name = ?`,
		projectKey, agentName,
	)
	var a core.Agent
	var lastActive string
	err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Agent{}, fmt.Errorf("agent %q in project %q: %w", agentName, projectKey, core.ErrNotFound)
	}
	if err != nil {
		return core.Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	a.LastActiveAt, _ = time.Parse(time.RFC3339Nano, lastActive)
	return a, nil
}

// ProjectKeys lists every project the store knows about. The sweeper
// iterates this to reap stale reservations per project.
func (s *Store) ProjectKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT human_key FROM projects ORDER BY human_key`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan project key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
