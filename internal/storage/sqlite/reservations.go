package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eaasxt/farmhand/internal/core"
	"github.com/eaasxt/farmhand/internal/glob"
	"github.com/eaasxt/farmhand/internal/storage"
)

const minTTL = time.Second

// Reserve claims req.Patterns for req.AgentName. The conflict check and the
// inserts share one transaction, so sqlite's single-writer lock makes the
// check-and-insert atomic across processes. Overlap with another agent's
// active claim returns *core.ConflictError when either side is exclusive;
// two shared claims may overlap.
func (s *Store) Reserve(ctx context.Context, req storage.ReserveRequest) ([]core.Reservation, error) {
	if len(req.Patterns) == 0 {
		return nil, fmt.Errorf("at least one pattern required")
	}
	for _, p := range req.Patterns {
		if err := glob.Validate(p); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
	}
	ttl := req.TTL
	if ttl < minTTL {
		ttl = minTTL
	}

	agent, err := s.agentByName(ctx, req.ProjectKey, req.AgentName)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	held, err := activeInProject(ctx, tx, agent.ProjectID, now)
	if err != nil {
		return nil, err
	}

	var conflicts []core.ConflictDetail
	for _, p := range req.Patterns {
		for _, r := range held {
			if r.AgentID == agent.ID {
				continue
			}
			if !req.Exclusive && !r.Exclusive {
				continue
			}
			overlap, err := glob.Overlap(p, r.PathPattern)
			if err != nil {
				return nil, fmt.Errorf("overlap %q vs %q: %w", p, r.PathPattern, err)
			}
			if overlap {
				conflicts = append(conflicts, core.ConflictDetail{
					ReservationID: r.ID,
					AgentName:     r.AgentName,
					PathPattern:   r.PathPattern,
					Exclusive:     r.Exclusive,
					ExpiresAt:     r.ExpiresAt,
				})
			}
		}
	}
	if len(conflicts) > 0 {
		return nil, &core.ConflictError{Conflicts: conflicts}
	}

	expires := now.Add(ttl)
	out := make([]core.Reservation, 0, len(req.Patterns))
	for _, p := range req.Patterns {
		res := core.Reservation{
			ID:          uuid.NewString(),
			ProjectID:   agent.ProjectID,
			ProjectKey:  req.ProjectKey,
			AgentID:     agent.ID,
			AgentName:   agent.Name,
			PathPattern: p,
			Exclusive:   req.Exclusive,
			Reason:      req.Reason,
			CreatedAt:   now,
			ExpiresAt:   expires,
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO file_reservations
			 (id, project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			res.ID, res.ProjectID, res.AgentID, res.PathPattern, boolToInt(res.Exclusive),
			res.Reason, fmtTime(now), fmtTime(expires),
		)
		if err != nil {
			return nil, fmt.Errorf("insert reservation: %w", err)
		}
		out = append(out, res)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE agents SET last_active_ts = ? WHERE id = ?`,
		fmtTime(now), agent.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("touch agent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return out, nil
}

// ReleaseReservations sets released_ts on the agent's active rows. With no
// patterns, everything the agent holds is released. Rows already released or
// expired are untouched, so re-releasing reports zero.
func (s *Store) ReleaseReservations(ctx context.Context, projectKey, agentName string, patterns []string) (int, error) {
	agent, err := s.agentByName(ctx, projectKey, agentName)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	nowStr := fmtTime(now)

	query := `UPDATE file_reservations SET released_ts = ?
	          WHERE agent_id = ? AND released_ts IS NULL AND expires_ts > ?`
	args := []any{nowStr, agent.ID, nowStr}
	if len(patterns) > 0 {
		query += ` AND path_pattern IN (` + placeholders(len(patterns)) + `)`
		for _, p := range patterns {
			args = append(args, p)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("release reservations: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release count: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE agents SET last_active_ts = ? WHERE id = ?`, nowStr, agent.ID)
	if err != nil {
		return 0, fmt.Errorf("touch agent: %w", err)
	}
	return int(count), nil
}

// RenewReservations extends expires_ts to now+ttl on the agent's active rows.
// Released or expired rows never come back.
func (s *Store) RenewReservations(ctx context.Context, projectKey, agentName string, patterns []string, ttl time.Duration) (int, error) {
	agent, err := s.agentByName(ctx, projectKey, agentName)
	if err != nil {
		return 0, err
	}
	if ttl < minTTL {
		ttl = minTTL
	}

	now := time.Now().UTC()
	nowStr := fmtTime(now)

	query := `UPDATE file_reservations SET expires_ts = ?
	          WHERE agent_id = ? AND released_ts IS NULL AND expires_ts > ?`
	args := []any{fmtTime(now.Add(ttl)), agent.ID, nowStr}
	if len(patterns) > 0 {
		query += ` AND path_pattern IN (` + placeholders(len(patterns)) + `)`
		for _, p := range patterns {
			args = append(args, p)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("renew reservations: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("renew count: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE agents SET last_active_ts = ? WHERE id = ?`, nowStr, agent.ID)
	if err != nil {
		return 0, fmt.Errorf("touch agent: %w", err)
	}
	return int(count), nil
}

// ActiveReservations lists every active reservation in the project.
func (s *Store) ActiveReservations(ctx context.Context, projectKey string) ([]core.Reservation, error) {
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx,
		reservationSelect+`
		 WHERE p.human_key = ? AND r.released_ts IS NULL AND r.expires_ts > ?
		 ORDER BY r.created_ts ASC`,
		projectKey, fmtTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("active reservations: %w", err)
	}
	return scanReservations(rows)
}

// ActiveReservationsForPath is the hook hot path: active reservations whose
// pattern matches the concrete path. Pattern matching happens in-process;
// the query only narrows to active rows.
func (s *Store) ActiveReservationsForPath(ctx context.Context, projectKey, path string) ([]core.Reservation, error) {
	all, err := s.ActiveReservations(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	var out []core.Reservation
	for _, r := range all {
		match, err := glob.Match(r.PathPattern, path)
		if err != nil {
			// A pattern the store accepted should always parse; skip rather
			// than fail the whole decision.
			continue
		}
		if match {
			out = append(out, r)
		}
	}
	return out, nil
}

// AgentActiveReservations lists the agent's own active claims.
func (s *Store) AgentActiveReservations(ctx context.Context, projectKey, agentName string) ([]core.Reservation, error) {
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx,
		reservationSelect+`
		 WHERE p.human_key = ? AND a.name = ? AND r.released_ts IS NULL AND r.expires_ts > ?
		 ORDER BY r.created_ts ASC`,
		projectKey, agentName, fmtTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("agent reservations: %w", err)
	}
	return scanReservations(rows)
}

// StaleReservations returns active reservations whose holder has been
// inactive longer than threshold. The holder's last_active_ts drives this,
// not the reservation's age: a long-lived claim from a busy agent is fine.
func (s *Store) StaleReservations(ctx context.Context, projectKey string, threshold time.Duration) ([]core.Reservation, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-threshold)
	rows, err := s.db.QueryContext(ctx,
		reservationSelect+`
		 WHERE p.human_key = ? AND r.released_ts IS NULL AND r.expires_ts > ?
		   AND a.last_active_ts < ?
		 ORDER BY r.created_ts ASC`,
		projectKey, fmtTime(now), fmtTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("stale reservations: %w", err)
	}
	return scanReservations(rows)
}

// ForceReleaseStale releases stale reservations. Each release re-checks the
// row's activity and its holder's staleness inside the UPDATE's WHERE clause,
// so a claim renewed (or a holder revived) between listing and releasing is
// left alone. Calling it twice is harmless.
func (s *Store) ForceReleaseStale(ctx context.Context, projectKey string, threshold time.Duration) ([]core.Reservation, error) {
	candidates, err := s.StaleReservations(ctx, projectKey, threshold)
	if err != nil {
		return nil, err
	}

	var released []core.Reservation
	for _, r := range candidates {
		now := time.Now().UTC()
		nowStr := fmtTime(now)
		cutoff := fmtTime(now.Add(-threshold))
		res, err := s.db.ExecContext(ctx,
			`UPDATE file_reservations SET released_ts = ?
			 WHERE id = ? AND released_ts IS NULL AND expires_ts > ?
			   AND agent_id IN (SELECT id FROM agents WHERE last_active_ts < ?)`,
			nowStr, r.ID, nowStr, cutoff,
		)
		if err != nil {
			return released, fmt.Errorf("force release %s: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return released, fmt.Errorf("force release count: %w", err)
		}
		if n > 0 {
			t := now
			r.ReleasedAt = &t
			released = append(released, r)
		}
	}
	return released, nil
}

// ForceReleaseAgent releases everything one agent holds, regardless of
// staleness. Operator-scoped cleanup for a known-dead process.
func (s *Store) ForceReleaseAgent(ctx context.Context, projectKey, agentName string) (int, error) {
	agent, err := s.agentByName(ctx, projectKey, agentName)
	if err != nil {
		return 0, err
	}
	nowStr := fmtTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx,
		`UPDATE file_reservations SET released_ts = ?
		 WHERE agent_id = ? AND released_ts IS NULL AND expires_ts > ?`,
		nowStr, agent.ID, nowStr,
	)
	if err != nil {
		return 0, fmt.Errorf("force release agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("force release count: %w", err)
	}
	return int(n), nil
}

const reservationSelect = `
	SELECT r.id, r.project_id, p.human_key, r.agent_id, a.name, r.path_pattern,
	       r.exclusive, r.reason, r.created_ts, r.expires_ts, r.released_ts
	 FROM file_reservations r
	 JOIN agents a ON a.id = r.agent_id
	 JOIN projects p ON p.id = r.project_id`

func activeInProject(ctx context.Context, tx *sql.Tx, projectID string, now time.Time) ([]core.Reservation, error) {
	rows, err := tx.QueryContext(ctx,
		reservationSelect+`
		 WHERE r.project_id = ? AND r.released_ts IS NULL AND r.expires_ts > ?`,
		projectID, fmtTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("active in project: %w", err)
	}
	return scanReservations(rows)
}

func scanReservations(rows *sql.Rows) ([]core.Reservation, error) {
	defer rows.Close()
	var out []core.Reservation
	for rows.Next() {
		var (
			r          core.Reservation
			exclusive  int
			createdTS  string
			expiresTS  string
			releasedTS sql.NullString
		)
		err := rows.Scan(&r.ID, &r.ProjectID, &r.ProjectKey, &r.AgentID, &r.AgentName,
			&r.PathPattern, &exclusive, &r.Reason, &createdTS, &expiresTS, &releasedTS)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.Exclusive = exclusive != 0
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdTS)
		r.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresTS)
		if releasedTS.Valid {
			t, err := time.Parse(time.RFC3339Nano, releasedTS.String)
			if err == nil {
				r.ReleasedAt = &t
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
