// Package hooks implements the PreToolUse and SessionStart handlers wired
// into the agent runtime. Handlers read one JSON payload from stdin, may
// write one JSON decision to stdout, and always exit zero: a broken hook
// must degrade to "allow", never block the tool call it was guarding.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/eaasxt/farmhand/internal/config"
	"github.com/eaasxt/farmhand/internal/core"
	"github.com/eaasxt/farmhand/internal/guard"
	"github.com/eaasxt/farmhand/internal/identity"
	"github.com/eaasxt/farmhand/internal/state"
	"github.com/eaasxt/farmhand/internal/storage/sqlite"
)

// maxStdinBytes caps stdin reads. Hook payloads are small JSON objects;
// 1 MB is generous headroom that prevents unbounded allocation.
const maxStdinBytes = 1 << 20

// storeTimeout bounds every store access from a hook. A wedged database
// must not stall the tool call.
const storeTimeout = 2 * time.Second

// Input is the JSON the agent runtime sends on stdin.
type Input struct {
	ToolName  string    `json:"tool_name"`
	ToolInput ToolInput `json:"tool_input"`
	CWD       string    `json:"cwd"`
	SessionID string    `json:"session_id"`
}

// ToolInput carries the fields the interceptor cares about: file_path for
// file tools, command for Bash.
type ToolInput struct {
	FilePath string `json:"file_path"`
	Command  string `json:"command"`
}

// Decision is the deny payload written to stdout. Allow is expressed by
// writing nothing.
type Decision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// Output is the SessionStart response shape.
type Output struct {
	HookSpecificOutput *HookSpecific `json:"hookSpecificOutput,omitempty"`
}

type HookSpecific struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// ReadStore is the slice of the reservation store the hooks query.
// *sqlite.Store satisfies it.
type ReadStore interface {
	ActiveReservationsForPath(ctx context.Context, projectKey, path string) ([]core.Reservation, error)
	AgentActiveReservations(ctx context.Context, projectKey, agentName string) ([]core.Reservation, error)
	StaleReservations(ctx context.Context, projectKey string, threshold time.Duration) ([]core.Reservation, error)
	Close() error
}

// Handler holds the resolved dependencies shared by all hook entry points.
type Handler struct {
	Config   config.Config
	Resolver identity.Resolver
	Cache    *state.Cache
	Policy   *guard.Policy
	Log      *slog.Logger

	// OpenStore opens the read-only store path. Defaults to the direct
	// sqlite read path; tests swap it out.
	OpenStore func() (ReadStore, error)
}

// New builds a Handler from configuration with the default sqlite read path.
func New(cfg config.Config, resolver identity.Resolver, log *slog.Logger) *Handler {
	return &Handler{
		Config:   cfg,
		Resolver: resolver,
		Cache:    state.NewCache(cfg.DataDir),
		Policy:   guard.DefaultPolicy(cfg.ScratchDir),
		Log:      log,
		OpenStore: func() (ReadStore, error) {
			return sqlite.OpenRead(cfg.DBPath)
		},
	}
}

// PreToolUse dispatches one tool invocation. It never returns an error:
// whatever goes wrong internally, silence on stdout means allow.
func (h *Handler) PreToolUse(ctx context.Context, stdin io.Reader, stdout io.Writer) {
	in, err := readInput(stdin)
	if err != nil {
		h.Log.Warn("unreadable hook input, allowing", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	switch in.ToolName {
	case "TodoWrite":
		h.deny(stdout, todoGuidance)
	case "Bash":
		if v := h.Policy.Check(in.ToolInput.Command); !v.Allowed {
			h.deny(stdout, fmt.Sprintf("%s. Instead: %s.", v.Reason, v.Alternative))
		}
	case "Write", "Edit", "MultiEdit", "NotebookEdit":
		if d := h.decideFile(ctx, in); d != "" {
			h.deny(stdout, d)
		}
	}
}

func readInput(r io.Reader) (Input, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxStdinBytes))
	if err != nil {
		return Input{}, fmt.Errorf("read stdin: %w", err)
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, fmt.Errorf("parse stdin: %w", err)
	}
	return in, nil
}

func (h *Handler) deny(w io.Writer, reason string) {
	enc := json.NewEncoder(w)
	if err := enc.Encode(Decision{Decision: "deny", Reason: reason}); err != nil {
		h.Log.Warn("write decision", "error", err)
	}
}

// projectKey scopes the decision: explicit configuration wins, then the
// tool call's working directory.
func (h *Handler) projectKey(in Input) string {
	if h.Config.Project != "" {
		return h.Config.Project
	}
	if in.CWD != "" {
		return in.CWD
	}
	return h.Config.ProjectKey()
}
