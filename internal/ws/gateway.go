// Package ws pushes reservation lifecycle events to subscribed clients.
// Subscriptions are per project: everyone watching a project sees every
// reserve, release, and expiry in it.
package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/eaasxt/farmhand/internal/auth"
)

const writeTimeout = 5 * time.Second

type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*websocket.Conn]struct{})}
}

// Handler upgrades GET /ws/projects/{project}. API-key callers may only
// subscribe to the project their key grants.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/projects/"), "/")
		if project == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		info, _ := auth.FromContext(r.Context())
		if info.Mode == auth.ModeAPIKey && project != info.Project {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		h.add(project, conn)
		defer h.remove(project, conn)

		// Drain the connection; subscribers only listen.
		ctx := r.Context()
		for {
			var v any
			if err := wsjson.Read(ctx, conn, &v); err != nil {
				return
			}
		}
	}
}

// Broadcast sends event to every subscriber of project. A connection that
// fails its write is closed and dropped.
func (h *Hub) Broadcast(project string, event any) {
	for _, conn := range h.snapshot(project) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, conn, event)
		cancel()
		if err != nil {
			go func(c *websocket.Conn) {
				c.Close(websocket.StatusGoingAway, "write error")
				h.remove(project, c)
			}(conn)
		}
	}
}

func (h *Hub) snapshot(project string) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.conns[project]
	out := make([]*websocket.Conn, 0, len(conns))
	for conn := range conns {
		out = append(out, conn)
	}
	return out
}

func (h *Hub) add(project string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[project]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		h.conns[project] = set
	}
	set[conn] = struct{}{}
}

func (h *Hub) remove(project string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[project]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, project)
	}
}
