package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mistakeknot/chargeq/internal/core"
)

type createUserRequest struct {
	Name string          `json:"name"`
	Pref core.Preference `json:"pref"`
}

func (s *Service) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listUsers(w, r)
	case http.MethodPost:
		s.createUser(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if users == nil {
		users = []core.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Service) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	user, err := s.store.CreateUser(r.Context(), req.Name, req.Pref)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Service) handleUserByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	// Removing a user may have vacated queue slots or spots.
	s.broadcast(map[string]any{"type": "user.deleted", "id": id})
	w.WriteHeader(http.StatusNoContent)
}
