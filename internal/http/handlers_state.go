package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mistakeknot/chargeq/internal/core"
)

type stateResponse struct {
	Queue     []core.QueueEntry `json:"queue"`
	Spots     []core.Spot       `json:"spots"`
	LastReset any               `json:"lastReset"`
}

func stateBody(snap core.Snapshot) stateResponse {
	body := stateResponse{
		Queue: snap.Queue,
		Spots: snap.Spots,
	}
	if body.Queue == nil {
		body.Queue = []core.QueueEntry{}
	}
	if body.Spots == nil {
		body.Spots = []core.Spot{}
	}
	if snap.LastReset != nil {
		body.LastReset = snap.LastReset
	}
	return body
}

func (s *Service) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.readState(w, r)
	case http.MethodPut:
		s.replaceState(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) readState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.ReadState(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("ETag", strconv.FormatInt(snap.Version, 10))
	writeJSON(w, http.StatusOK, stateBody(snap))
}

func (s *Service) replaceState(w http.ResponseWriter, r *http.Request) {
	var change core.StateChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	for _, e := range change.Queue {
		if e.UserID == "" {
			writeError(w, http.StatusBadRequest, "queue entry missing user_id")
			return
		}
	}

	expect, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid If-Match")
		return
	}

	snap, err := s.store.ReplaceState(r.Context(), change, expect)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.broadcast(map[string]any{"type": "state.replaced", "version": snap.Version})
	w.Header().Set("ETag", strconv.FormatInt(snap.Version, 10))
	writeJSON(w, http.StatusOK, stateBody(snap))
}

// parseIfMatch returns the precondition version carried by an If-Match
// header, nil when the header is absent. "*" matches any version, which
// under compare-and-swap semantics means no precondition.
func parseIfMatch(header string) (*int64, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return nil, nil
	}
	header = strings.Trim(header, `"`)
	v, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
