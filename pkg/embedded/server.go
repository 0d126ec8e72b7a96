// Package embedded runs a coordinator in-process, for hosts that want
// reservations without managing a separate farmhand daemon.
package embedded

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eaasxt/farmhand/internal/auth"
	httpapi "github.com/eaasxt/farmhand/internal/http"
	"github.com/eaasxt/farmhand/internal/storage/sqlite"
	"github.com/eaasxt/farmhand/internal/ws"
)

// Config configures the embedded coordinator. Zero values get defaults
// suitable for a local single-host setup.
type Config struct {
	// DBPath locates the SQLite database. Defaults to ~/.farmhand/farmhand.db.
	DBPath string

	// Addr is the listen address. Defaults to 127.0.0.1:0, which picks a
	// free port; read it back from URL after Start.
	Addr string

	// DefaultTTL bounds reservations created without an explicit lifetime.
	// Defaults to one hour.
	DefaultTTL time.Duration

	// Keyring enables bearer auth when set. Nil keeps the localhost-only
	// default, which is what embedding hosts usually want.
	Keyring *auth.Keyring

	// SweepInterval and StaleAfter enable the background reaper when both
	// are positive.
	SweepInterval time.Duration
	StaleAfter    time.Duration
}

// Server is an in-process coordinator. It owns its store and hub; Stop
// releases both.
type Server struct {
	store   *sqlite.ResilientStore
	hub     *ws.Hub
	http    *http.Server
	sweeper *sqlite.Sweeper

	mu sync.Mutex
	ln net.Listener
}

func New(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".farmhand", "farmhand.db")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	inner, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store := sqlite.NewResilient(inner)

	hub := ws.NewHub()
	svc := httpapi.NewService(store, cfg.DefaultTTL).WithBroadcaster(hub)
	router := httpapi.NewRouter(svc, hub.Handler(), auth.Middleware(cfg.Keyring))

	srv := &Server{
		store: store,
		hub:   hub,
		http:  &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second},
	}
	if cfg.SweepInterval > 0 && cfg.StaleAfter > 0 {
		srv.sweeper = sqlite.NewSweeper(store, hub, cfg.SweepInterval, cfg.StaleAfter)
	}
	return srv, nil
}

// Start binds the listener and serves in the background. The listen
// address is final once Start returns, so URL is safe to call.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	s.ln = ln
	if s.sweeper != nil {
		s.sweeper.Start(context.Background())
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "farmhand embedded server: %v\n", err)
		}
	}()
	return nil
}

// Stop shuts the server down and closes the store.
func (s *Server) Stop() error {
	s.mu.Lock()
	started := s.ln != nil
	s.mu.Unlock()
	if !started {
		return s.store.Close()
	}
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// URL returns the base URL. Only valid after Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}

// Store exposes the underlying store for hosts that want direct reads.
func (s *Server) Store() *sqlite.ResilientStore {
	return s.store
}
