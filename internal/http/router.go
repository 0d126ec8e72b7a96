package httpapi

import "net/http"

// NewRouter wires the API surface. mw (auth) wraps every endpoint,
// including the websocket upgrade.
func NewRouter(svc *Service, wsHandler http.Handler, mw func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.Handler {
		handler := http.Handler(h)
		if mw != nil {
			handler = mw(handler)
		}
		return handler
	}

	mux.Handle("/api/agents", wrap(svc.handleAgents))
	mux.Handle("/api/agents/", wrap(svc.handleAgentRenew))
	mux.Handle("/api/reservations", wrap(svc.handleReservations))
	mux.Handle("/api/reservations/renew", wrap(svc.handleRenewReservations))
	mux.Handle("/api/reservations/check", wrap(svc.handleCheckPath))

	if wsHandler != nil {
		if mw != nil {
			mux.Handle("/ws/projects/", mw(wsHandler))
		} else {
			mux.Handle("/ws/projects/", wsHandler)
		}
	}

	return mux
}
