package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// SessionStart resets the invoking identity's cache (a fresh session always
// re-registers) and surfaces stale reservations as advisory context. Like
// PreToolUse it swallows every failure; a session must start regardless.
func (h *Handler) SessionStart(ctx context.Context, stdin io.Reader, stdout io.Writer) {
	in, err := readInput(stdin)
	if err != nil {
		h.Log.Warn("unreadable hook input", "error", err)
		in = Input{}
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	project := h.projectKey(in)

	if id, err := h.Resolver.Resolve(project); err == nil {
		if err := h.Cache.Reset(id.CacheKey); err != nil {
			h.Log.Warn("cache reset failed", "error", err)
		}
	}

	warning := h.staleWarning(ctx, project)
	if warning == "" {
		return
	}
	out := Output{HookSpecificOutput: &HookSpecific{
		HookEventName:     "SessionStart",
		AdditionalContext: warning,
	}}
	if err := json.NewEncoder(stdout).Encode(out); err != nil {
		h.Log.Warn("write session output", "error", err)
	}
}

func (h *Handler) staleWarning(ctx context.Context, project string) string {
	store, err := h.OpenStore()
	if err != nil {
		h.Log.Warn("store unavailable", "error", err)
		return ""
	}
	defer store.Close()

	stale, err := store.StaleReservations(ctx, project, h.Config.StaleAfter)
	if err != nil {
		h.Log.Warn("stale lookup failed", "error", err)
		return ""
	}
	if len(stale) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d reservation(s) are held by agents inactive for over %s:\n", len(stale), h.Config.StaleAfter)
	for _, r := range stale {
		fmt.Fprintf(&b, "  %s held by %s (expires %s)\n", r.PathPattern, r.AgentName, r.ExpiresAt.Format(time.RFC3339))
	}
	b.WriteString("Run 'farmhand reaper release' to free them if the holders are gone.")
	return b.String()
}
