package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleRegisterPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.push.Register(r.Context(), currentUser(r), req.Token, req.Platform); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDeletePushToken(w http.ResponseWriter, r *http.Request) {
	if err := s.push.Unregister(r.Context(), currentUser(r), chi.URLParam(r, "token")); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}
