package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eaasxt/farmhand/internal/glob"
)

// exemptDirs are path segments whose contents are never guarded. Tooling
// churn in these trees is not the kind of edit reservations coordinate.
var exemptDirs = []string{
	".git", ".claude", "node_modules", "__pycache__",
	"target", "dist", "build", ".cache",
}

// decideFile runs the reservation check for one file-mutating tool call.
// Empty return means allow.
func (h *Handler) decideFile(ctx context.Context, in Input) string {
	path := in.ToolInput.FilePath
	if path == "" {
		return ""
	}
	if h.exempt(path) {
		return ""
	}

	project := h.projectKey(in)

	id, err := h.Resolver.Resolve(project)
	if err != nil {
		// No identity at all. Same remedial path as an unregistered agent.
		return registerGuidance
	}

	st, err := h.Cache.Load(id.CacheKey)
	if err != nil {
		h.Log.Warn("state cache unreadable, allowing", "error", err)
		return ""
	}
	if !st.Registered {
		return registerGuidance
	}

	agentName := id.AgentName
	if agentName == "" {
		agentName = st.AgentName
	}

	rel := h.relativize(path, in.CWD)

	// Hot path: the agent's own cached patterns decide without touching
	// the store at all.
	for _, pattern := range st.Reservations {
		if ok, err := glob.Match(pattern, rel); err == nil && ok {
			return ""
		}
	}

	store, err := h.OpenStore()
	if err != nil {
		h.Log.Warn("store unavailable, allowing", "error", err)
		return ""
	}
	defer store.Close()

	holders, err := store.ActiveReservationsForPath(ctx, project, rel)
	if err != nil {
		h.Log.Warn("reservation lookup failed, allowing", "error", err)
		return ""
	}

	now := time.Now().UTC()
	blocking := ""
	for _, r := range holders {
		if !r.Active(now) {
			continue
		}
		if r.AgentName == agentName {
			return ""
		}
		if r.Exclusive && blocking == "" {
			blocking = fmt.Sprintf(
				"%s is reserved by %s (pattern %s, expires %s). Wait for the reservation to lapse or coordinate with the holder.",
				rel, r.AgentName, r.PathPattern, r.ExpiresAt.Format(time.RFC3339))
		}
	}
	if blocking != "" {
		return blocking
	}

	return fmt.Sprintf(
		"%s is not covered by one of your reservations. Reserve it first: farmhand reserve '%s'.",
		rel, rel)
}

// exempt reports whether path needs no reservation: farmhand's own data,
// temp space, or tool-generated trees.
func (h *Handler) exempt(path string) bool {
	clean := filepath.Clean(path)

	if h.Config.DataDir != "" && strings.HasPrefix(clean, filepath.Clean(h.Config.DataDir)+string(filepath.Separator)) {
		return true
	}
	for _, tmp := range []string{h.Config.ScratchDir, os.TempDir()} {
		if tmp == "" {
			continue
		}
		tmp = filepath.Clean(tmp)
		if clean == tmp || strings.HasPrefix(clean, tmp+string(filepath.Separator)) {
			return true
		}
	}

	for _, seg := range strings.Split(clean, string(filepath.Separator)) {
		for _, ex := range exemptDirs {
			if seg == ex {
				return true
			}
		}
	}
	return false
}

// relativize maps an absolute tool path into the project-relative form
// reservations use. Paths outside cwd, or already relative, pass through.
func (h *Handler) relativize(path, cwd string) string {
	if cwd == "" || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

const registerGuidance = "You are not registered with the reservation coordinator. " +
	"Run 'farmhand register' (or set FARMHAND_AGENT and register) before editing files, " +
	"then reserve the paths you intend to change."
