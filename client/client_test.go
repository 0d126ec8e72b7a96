package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eaasxt/farmhand/internal/auth"
	httpapi "github.com/eaasxt/farmhand/internal/http"
	"github.com/eaasxt/farmhand/internal/storage/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := sqlite.NewInMemory()
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	svc := httpapi.NewService(st, time.Hour)
	router := httpapi.NewRouter(svc, nil, auth.Middleware(nil))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestRegisterReserveReleaseRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, WithProject("proj-a"))
	ctx := context.Background()

	agent, err := c.Register(ctx, "", "tester", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if agent.Name == "" {
		t.Fatal("expected server-generated name")
	}

	res, err := c.Reserve(ctx, agent.Name, []string{"src/**"}, true, "refactor", 30*time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(res) != 1 || res[0].PathPattern != "src/**" {
		t.Fatalf("unexpected reservations: %+v", res)
	}

	list, err := c.List(ctx, agent.Name)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 listed, got %d", len(list))
	}

	hits, err := c.Check(ctx, "src/main.go")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(hits) != 1 || hits[0].Agent != agent.Name {
		t.Fatalf("unexpected check result: %+v", hits)
	}

	n, err := c.Release(ctx, agent.Name, nil)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 released, got %d", n)
	}
}

func TestReserveConflictDecoded(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := New(srv.URL, WithProject("proj-a"))

	a, err := c.Register(ctx, "agent-a", "tester", "")
	if err != nil {
		t.Fatalf("register a: %v", err)
	}
	b, err := c.Register(ctx, "agent-b", "tester", "")
	if err != nil {
		t.Fatalf("register b: %v", err)
	}

	if _, err := c.Reserve(ctx, a.Name, []string{"src/**"}, true, "", time.Hour); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	_, err = c.Reserve(ctx, b.Name, []string{"src/util.go"}, true, "", time.Hour)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.Conflicts) != 1 || conflict.Conflicts[0].AgentName != "agent-a" {
		t.Fatalf("unexpected conflict detail: %+v", conflict.Conflicts)
	}
}

func TestRenewExtendsExpiry(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := New(srv.URL, WithProject("proj-a"))

	a, err := c.Register(ctx, "agent-a", "tester", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	res, err := c.Reserve(ctx, a.Name, []string{"src/**"}, false, "", 10*time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	n, err := c.Renew(ctx, a.Name, nil, 2*time.Hour)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 renewed, got %d", n)
	}

	list, err := c.List(ctx, a.Name)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	before, err := time.Parse(time.RFC3339Nano, res[0].ExpiresAt)
	if err != nil {
		t.Fatalf("parse original expiry: %v", err)
	}
	after, err := time.Parse(time.RFC3339Nano, list[0].ExpiresAt)
	if err != nil {
		t.Fatalf("parse renewed expiry: %v", err)
	}
	if !after.After(before) {
		t.Fatalf("expiry not extended: %s vs %s", after, before)
	}
}

func TestHeartbeatUnknownAgent(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, WithProject("proj-a"))
	if err := c.Heartbeat(context.Background(), "nobody"); err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestSubMinuteTTLRoundsUp(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, WithProject("proj-a"))
	ctx := context.Background()

	agent, err := c.Register(ctx, "short-lived", "tester", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// 30s must become one minute on the wire, not fall through to the
	// server's one-hour default.
	res, err := c.Reserve(ctx, agent.Name, []string{"src/**"}, true, "", 30*time.Second)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	expires, err := time.Parse(time.RFC3339Nano, res[0].ExpiresAt)
	if err != nil {
		t.Fatalf("parse expiry: %v", err)
	}
	if remaining := time.Until(expires); remaining > 2*time.Minute {
		t.Fatalf("sub-minute ttl produced %v of lifetime", remaining)
	}
}

func TestTTLMinutes(t *testing.T) {
	cases := []struct {
		ttl  time.Duration
		want int
	}{
		{0, 0},
		{-time.Minute, 0},
		{time.Second, 1},
		{time.Minute, 1},
		{61 * time.Second, 2},
		{90 * time.Minute, 90},
	}
	for _, tc := range cases {
		if got := ttlMinutes(tc.ttl); got != tc.want {
			t.Errorf("ttlMinutes(%v) = %d, want %d", tc.ttl, got, tc.want)
		}
	}
}
