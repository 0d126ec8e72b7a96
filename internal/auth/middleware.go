package auth

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// Mode says how a request was admitted.
type Mode string

const (
	ModeLocalhost Mode = "localhost"
	ModeAPIKey    Mode = "api_key"
)

// Info is the authenticated caller, stashed in the request context.
// Project is set only for API-key callers; localhost callers name their
// project per request.
type Info struct {
	Mode      Mode
	Project   string
	Localhost bool
}

type contextKey struct{}

func FromContext(ctx context.Context) (Info, bool) {
	v, ok := ctx.Value(contextKey{}).(Info)
	return v, ok
}

// Middleware admits localhost requests (when the ring allows) or requests
// bearing a known key, and rejects everything else with 401.
func Middleware(ring *Keyring) func(http.Handler) http.Handler {
	if ring == nil {
		ring = defaultKeyring()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var info Info
			switch {
			case ring.AllowLocalhostWithoutAuth && isLocalRequest(r):
				info = Info{Mode: ModeLocalhost, Localhost: true}
			default:
				project, ok := ring.ProjectForKey(bearerToken(r))
				if !ok {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
					return
				}
				info = Info{Mode: ModeAPIKey, Project: project}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, info)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// isLocalRequest checks the proxy-reported client first, then the socket
// peer. "localhost" literals count alongside loopback IPs.
func isLocalRequest(r *http.Request) bool {
	if ip := firstForwarded(r.Header.Get("X-Forwarded-For")); ip != "" {
		if parsed := net.ParseIP(ip); parsed != nil {
			return parsed.IsLoopback()
		}
		return strings.EqualFold(ip, "localhost")
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	host = strings.TrimSpace(host)
	// Unix socket peers have no host:port address.
	if host == "" || host == "@" {
		return true
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	parsed := net.ParseIP(host)
	return parsed != nil && parsed.IsLoopback()
}

func firstForwarded(v string) string {
	if v == "" {
		return ""
	}
	parts := strings.Split(v, ",")
	return strings.TrimSpace(parts[0])
}
