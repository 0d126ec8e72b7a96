package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/eaasxt/farmhand/internal/config"
	"github.com/eaasxt/farmhand/internal/core"
	"github.com/eaasxt/farmhand/internal/guard"
	"github.com/eaasxt/farmhand/internal/identity"
	"github.com/eaasxt/farmhand/internal/state"
)

type fakeStore struct {
	reservations []core.Reservation
	stale        []core.Reservation
	err          error
}

func (f *fakeStore) ActiveReservationsForPath(_ context.Context, _, path string) ([]core.Reservation, error) {
	return f.reservations, f.err
}

func (f *fakeStore) AgentActiveReservations(context.Context, string, string) ([]core.Reservation, error) {
	return nil, f.err
}

func (f *fakeStore) StaleReservations(context.Context, string, time.Duration) ([]core.Reservation, error) {
	return f.stale, f.err
}

func (f *fakeStore) Close() error { return nil }

func newTestHandler(t *testing.T, store *fakeStore) *Handler {
	t.Helper()
	cfg := config.Default()
	cfg.Project = "proj-a"
	cfg.DataDir = t.TempDir()
	cfg.ScratchDir = "/tmp/farmhand-scratch"
	return &Handler{
		Config:    cfg,
		Resolver:  identity.NamedIdentity{Name: "swift-heron"},
		Cache:     state.NewCache(cfg.DataDir),
		Policy:    guard.DefaultPolicy(cfg.ScratchDir),
		Log:       slog.New(slog.DiscardHandler),
		OpenStore: func() (ReadStore, error) { return store, nil },
	}
}

func registerInCache(t *testing.T, h *Handler, patterns ...string) {
	t.Helper()
	id, err := h.Resolver.Resolve("proj-a")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	err = h.Cache.Save(id.CacheKey, state.LocalAgentState{
		Registered:   true,
		AgentName:    "swift-heron",
		Reservations: patterns,
	})
	if err != nil {
		t.Fatalf("save cache: %v", err)
	}
}

func runPreToolUse(h *Handler, payload string) string {
	var out bytes.Buffer
	h.PreToolUse(context.Background(), strings.NewReader(payload), &out)
	return out.String()
}

func decisionOf(t *testing.T, raw string) Decision {
	t.Helper()
	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("parse decision %q: %v", raw, err)
	}
	return d
}

func filePayload(path string) string {
	return `{"tool_name":"Edit","tool_input":{"file_path":"` + path + `"},"cwd":"/home/dev/proj","session_id":"s1"}`
}

func TestMalformedStdinAllows(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})
	if out := runPreToolUse(h, "{this is not json"); out != "" {
		t.Fatalf("malformed input must allow silently, got %q", out)
	}
}

func TestUnknownToolAllows(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})
	if out := runPreToolUse(h, `{"tool_name":"Read","tool_input":{"file_path":"src/a.go"}}`); out != "" {
		t.Fatalf("non-mutating tools must pass, got %q", out)
	}
}

func TestTodoWriteAlwaysDenied(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})
	out := runPreToolUse(h, `{"tool_name":"TodoWrite","tool_input":{}}`)
	d := decisionOf(t, out)
	if d.Decision != "deny" {
		t.Fatalf("expected deny, got %+v", d)
	}
	if !strings.Contains(d.Reason, "issue") {
		t.Fatalf("expected tracker guidance, got %q", d.Reason)
	}
}

func TestBashClassifier(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	if out := runPreToolUse(h, `{"tool_name":"Bash","tool_input":{"command":"git checkout -b feature/x"}}`); out != "" {
		t.Fatalf("branch creation must pass, got %q", out)
	}

	out := runPreToolUse(h, `{"tool_name":"Bash","tool_input":{"command":"git reset --hard"}}`)
	d := decisionOf(t, out)
	if d.Decision != "deny" {
		t.Fatalf("expected deny for git reset --hard, got %+v", d)
	}
	if !strings.Contains(d.Reason, "Instead") {
		t.Fatalf("denial should carry the alternative, got %q", d.Reason)
	}
}

func TestFileGuardUnregisteredDenied(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})
	out := runPreToolUse(h, filePayload("/home/dev/proj/src/a.go"))
	d := decisionOf(t, out)
	if d.Decision != "deny" || !strings.Contains(d.Reason, "register") {
		t.Fatalf("expected registration instructions, got %+v", d)
	}
}

func TestFileGuardMissingIdentityDenied(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})
	h.Resolver = identity.NamedIdentity{}
	t.Setenv(identity.EnvAgent, "")
	out := runPreToolUse(h, filePayload("/home/dev/proj/src/a.go"))
	d := decisionOf(t, out)
	if d.Decision != "deny" || !strings.Contains(d.Reason, "register") {
		t.Fatalf("unresolvable identity must deny with instructions, got %+v", d)
	}
}

func TestFileGuardOwnCachedReservationAllows(t *testing.T) {
	h := newTestHandler(t, &fakeStore{err: errors.New("store must not be touched")})
	registerInCache(t, h, "src/**")
	if out := runPreToolUse(h, filePayload("/home/dev/proj/src/a.go")); out != "" {
		t.Fatalf("cached pattern must allow without store access, got %q", out)
	}
}

func TestFileGuardOwnStoreReservationAllows(t *testing.T) {
	store := &fakeStore{reservations: []core.Reservation{{
		AgentName:   "swift-heron",
		PathPattern: "src/**",
		Exclusive:   true,
		ExpiresAt:   time.Now().Add(time.Hour),
	}}}
	h := newTestHandler(t, store)
	registerInCache(t, h) // registered, empty pattern cache
	if out := runPreToolUse(h, filePayload("/home/dev/proj/src/a.go")); out != "" {
		t.Fatalf("own store reservation must allow, got %q", out)
	}
}

func TestFileGuardExclusiveHolderDenies(t *testing.T) {
	store := &fakeStore{reservations: []core.Reservation{{
		AgentName:   "calm-otter",
		PathPattern: "src/**",
		Exclusive:   true,
		ExpiresAt:   time.Now().Add(time.Hour),
	}}}
	h := newTestHandler(t, store)
	registerInCache(t, h)
	out := runPreToolUse(h, filePayload("/home/dev/proj/src/a.go"))
	d := decisionOf(t, out)
	if d.Decision != "deny" || !strings.Contains(d.Reason, "calm-otter") {
		t.Fatalf("expected deny naming the holder, got %+v", d)
	}
}

func TestFileGuardSharedHolderStillRequiresReservation(t *testing.T) {
	store := &fakeStore{reservations: []core.Reservation{{
		AgentName:   "calm-otter",
		PathPattern: "src/**",
		Exclusive:   false,
		ExpiresAt:   time.Now().Add(time.Hour),
	}}}
	h := newTestHandler(t, store)
	registerInCache(t, h)
	out := runPreToolUse(h, filePayload("/home/dev/proj/src/a.go"))
	d := decisionOf(t, out)
	if d.Decision != "deny" || !strings.Contains(d.Reason, "farmhand reserve") {
		t.Fatalf("expected reserve-first guidance, got %+v", d)
	}
}

func TestFileGuardExpiredReservationInert(t *testing.T) {
	store := &fakeStore{reservations: []core.Reservation{{
		AgentName:   "calm-otter",
		PathPattern: "src/**",
		Exclusive:   true,
		ExpiresAt:   time.Now().Add(-time.Minute),
	}}}
	h := newTestHandler(t, store)
	registerInCache(t, h)
	out := runPreToolUse(h, filePayload("/home/dev/proj/src/a.go"))
	d := decisionOf(t, out)
	// The expired claim neither blocks nor grants; the caller still has
	// to reserve.
	if d.Decision != "deny" || strings.Contains(d.Reason, "calm-otter") {
		t.Fatalf("expired holder must not be named, got %+v", d)
	}
}

func TestFileGuardStoreFailureAllows(t *testing.T) {
	h := newTestHandler(t, &fakeStore{err: errors.New("disk on fire")})
	registerInCache(t, h)
	if out := runPreToolUse(h, filePayload("/home/dev/proj/src/a.go")); out != "" {
		t.Fatalf("store failure must fail open, got %q", out)
	}
}

func TestFileGuardExemptPaths(t *testing.T) {
	h := newTestHandler(t, &fakeStore{err: errors.New("store must not be touched")})
	for _, path := range []string{
		"/home/dev/proj/.git/HEAD",
		"/home/dev/proj/node_modules/pkg/index.js",
		"/home/dev/proj/dist/bundle.js",
		"/tmp/farmhand-scratch/notes.txt",
	} {
		if out := runPreToolUse(h, filePayload(path)); out != "" {
			t.Errorf("expected %s exempt, got %q", path, out)
		}
	}
}

func TestSessionStartResetsOwnCacheOnly(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})
	registerInCache(t, h)
	other := "proj-a--calm-otter"
	if err := h.Cache.Save(other, state.LocalAgentState{Registered: true}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var out bytes.Buffer
	h.SessionStart(context.Background(), strings.NewReader(`{"session_id":"s2","cwd":"/home/dev/proj"}`), &out)

	id, _ := h.Resolver.Resolve("proj-a")
	own, _ := h.Cache.Load(id.CacheKey)
	if own.Registered {
		t.Fatal("own cache must be reset on session start")
	}
	otherSt, _ := h.Cache.Load(other)
	if !otherSt.Registered {
		t.Fatal("other identities' caches must survive")
	}
}

func TestSessionStartStaleWarning(t *testing.T) {
	store := &fakeStore{stale: []core.Reservation{{
		AgentName:   "calm-otter",
		PathPattern: "src/**",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}}
	h := newTestHandler(t, store)

	var out bytes.Buffer
	h.SessionStart(context.Background(), strings.NewReader(`{}`), &out)

	var resp Output
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if resp.HookSpecificOutput == nil || !strings.Contains(resp.HookSpecificOutput.AdditionalContext, "calm-otter") {
		t.Fatalf("expected stale warning naming the holder, got %+v", resp)
	}
}

func TestSessionStartStoreFailureSilent(t *testing.T) {
	h := newTestHandler(t, &fakeStore{err: errors.New("down")})
	var out bytes.Buffer
	h.SessionStart(context.Background(), strings.NewReader(`{}`), &out)
	if out.Len() != 0 {
		t.Fatalf("store failure must produce no output, got %q", out.String())
	}
}
