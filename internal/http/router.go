package httpapi

import (
	"net/http"

	"github.com/rs/cors"
)

// NewRouter wires the API routes, optional auth middleware and the CORS
// layer. wsHandler, when non-nil, serves the state event stream.
func NewRouter(svc *Service, wsHandler http.Handler, mw func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.Handler {
		handler := http.Handler(h)
		if mw != nil {
			handler = mw(handler)
		}
		return handler
	}

	mux.Handle("/api/state", wrap(svc.handleState))
	mux.Handle("/api/reset", wrap(svc.handleReset))
	mux.Handle("/api/settings", wrap(svc.handleSettings))
	mux.Handle("/api/users", wrap(svc.handleUsers))
	mux.Handle("/api/users/", wrap(svc.handleUserByID))
	mux.HandleFunc("/health", handleHealth)

	if wsHandler != nil {
		if mw != nil {
			mux.Handle("/ws/state", mw(wsHandler))
		} else {
			mux.Handle("/ws/state", wsHandler)
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", "If-Match", "Authorization"},
		ExposedHeaders: []string{"ETag"},
	})
	return c.Handler(mux)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
