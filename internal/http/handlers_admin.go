package http

import (
	"net/http"

	"expensync/internal/core"
)

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]userJSON, 0, len(users))
	for _, u := range users {
		out = append(out, toUserJSON(u))
	}
	NewResponse().JSON(map[string]any{"users": out}).Write(w)
}

func (s *Server) handleAdminSetRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req roleRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.SetRole(r.Context(), currentUser(r), id, core.Role(req.Role))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(toUserJSON(u)).Write(w)
}

func (s *Server) handleAdminSetDisabled(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req disabledRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.SetDisabled(r.Context(), currentUser(r), id, *req.Disabled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(toUserJSON(u)).Write(w)
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.users.DeleteUser(r.Context(), currentUser(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.dashboard.Overview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(dashboardJSON{
		Users:         d.Users,
		AdminUsers:    d.AdminUsers,
		DisabledUsers: d.DisabledUsers,
		PushTokens:    d.PushTokens,
		Expenses:      toSummaryJSON(d.Expenses),
	}).Write(w)
}

func (s *Server) handleAdminBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.push.Broadcast(r.Context(), currentUser(r), req.Title, req.Body); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusAccepted).JSON(map[string]string{"status": "queued"}).Write(w)
}
