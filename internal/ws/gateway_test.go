package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/eaasxt/farmhand/internal/auth"
	"github.com/eaasxt/farmhand/internal/core"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestSubscribeReceivesProjectEvents(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(auth.Middleware(nil)(hub.Handler()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/projects/proj-a"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Subscription registration races the Accept return; poll briefly.
	deadline := time.Now().Add(time.Second)
	for len(hub.snapshot("proj-a")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast("proj-a", core.Event{
		Type:        core.EventReservationCreated,
		Project:     "proj-a",
		AgentName:   "swift-heron",
		PathPattern: "src/**",
	})

	var got core.Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != core.EventReservationCreated || got.AgentName != "swift-heron" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestBroadcastScopedToProject(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(auth.Middleware(nil)(hub.Handler()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/projects/proj-b"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(time.Second)
	for len(hub.snapshot("proj-b")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast("proj-a", core.Event{Type: core.EventReservationCreated, Project: "proj-a"})
	hub.Broadcast("proj-b", core.Event{Type: core.EventReservationReleased, Project: "proj-b"})

	var got core.Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != core.EventReservationReleased {
		t.Fatalf("proj-b subscriber must only see proj-b events, got %+v", got)
	}
}

func TestMissingProjectRejected(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(auth.Middleware(nil)(hub.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/projects/")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPIKeyProjectMismatchForbidden(t *testing.T) {
	hub := NewHub()
	ring := auth.NewKeyring(false, map[string]string{"secret-a": "proj-a"})
	router := auth.Middleware(ring)(hub.Handler())

	req := httptest.NewRequest(http.MethodGet, "/ws/projects/proj-b", nil)
	req.RemoteAddr = "203.0.113.10:9999"
	req.Header.Set("Authorization", "Bearer secret-a")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for project mismatch, got %d", rr.Code)
	}
}
