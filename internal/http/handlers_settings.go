package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/mistakeknot/chargeq/internal/core"
)

func (s *Service) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.readSettings(w, r)
	case http.MethodPut:
		s.updateSettings(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) readSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.Settings(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Service) updateSettings(w http.ResponseWriter, r *http.Request) {
	var cfg core.Settings
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.store.UpdateSettings(r.Context(), cfg); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
