package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mistakeknot/chargeq/internal/core"
	"github.com/mistakeknot/chargeq/internal/storage"
)

type Service struct {
	store storage.Store
	bus   Broadcaster
}

type Broadcaster interface {
	Broadcast(event any)
}

func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

func (s *Service) WithBroadcaster(b Broadcaster) *Service {
	s.bus = b
	return s
}

func (s *Service) broadcast(event any) {
	if s.bus != nil {
		s.bus.Broadcast(event)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError translates a store error to its HTTP status. Version
// conflicts get 412 so conditional-write clients can distinguish "re-read
// and retry" from hard failures.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrVersionConflict):
		writeError(w, http.StatusPreconditionFailed, "version conflict")
	case errors.Is(err, core.ErrNameTaken):
		writeError(w, http.StatusConflict, "user exists")
	case errors.Is(err, core.ErrConstraint):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case core.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server error")
	}
}
