package httpapi

import (
	"net/http"
	"time"
)

type resetResponse struct {
	Reset   bool   `json:"reset"`
	Message string `json:"message"`
}

// handleReset is the external trigger for the daily reset. It may be hit
// arbitrarily often (overlapping cron fires, manual pokes); the store
// performs the reset at most once per configured boundary.
func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	performed, err := s.store.ResetIfDue(r.Context(), time.Now().UTC())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if performed {
		s.broadcast(map[string]any{"type": "state.reset"})
		writeJSON(w, http.StatusOK, resetResponse{Reset: true, Message: "Reset done"})
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Reset: false, Message: "No reset"})
}
