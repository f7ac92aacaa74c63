package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/fwojciec/medic"
	medicjson "github.com/fwojciec/medic/json"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	status := medic.SessionStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.writeError(w, r, fmt.Errorf("unknown status %q: %w", status, medic.ErrValidation))
		return
	}
	sessions, err := s.store.ListSessions(r.Context(), patientID, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := medicjson.MarshalSessions(patientID, sessions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBody(w, http.StatusOK, "application/json", data)
}

// handleHistory returns up to limit turns, most recent first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, fmt.Errorf("invalid limit %q: %w", v, medic.ErrValidation))
			return
		}
		limit = n
	}
	turns, err := s.store.History(r.Context(), sessionID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := medicjson.MarshalHistory(sessionID, turns)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBody(w, http.StatusOK, "application/json", data)
}

// handleSetStatus moves a session to status and returns the updated
// session.
func (s *Server) handleSetStatus(status medic.SessionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		if err := s.store.UpdateSessionStatus(r.Context(), id, status); err != nil {
			s.writeError(w, r, err)
			return
		}
		sess, err := s.store.FindSession(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		data, err := medicjson.MarshalSession(*sess)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeBody(w, http.StatusOK, "application/json", data)
	}
}
