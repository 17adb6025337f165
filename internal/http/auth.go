package http

import (
	"errors"
	"net/http"
	"strings"

	"expensync/internal/auth"
	"expensync/internal/core"
	applog "expensync/internal/log"
)

// authenticate requires a valid bearer token from an enabled account.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="expensync"`)
			ErrorResponse(http.StatusUnauthorized, "missing bearer token").Write(w)
			return
		}

		claims, err := s.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="expensync", error="invalid_token"`)
			ErrorResponse(http.StatusUnauthorized, "invalid or expired token").Write(w)
			return
		}

		// Role and disabled flag are read from storage so that admin changes
		// take effect before the token expires.
		u, err := s.users.Get(r.Context(), claims.UserID)
		if errors.Is(err, core.ErrNotFound) {
			ErrorResponse(http.StatusUnauthorized, "account no longer exists").Write(w)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		if u.Disabled {
			ErrorResponse(http.StatusForbidden, "account disabled").Write(w)
			return
		}
		claims.Role = string(u.Role)

		ctx := auth.WithClaims(r.Context(), claims)
		ctx = applog.IntoContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, u.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok || !claims.IsAdmin() {
			ErrorResponse(http.StatusForbidden, "admin role required").Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// currentUser returns the authenticated user id. Routes using it sit behind
// authenticate.
func currentUser(r *http.Request) int64 {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return 0
	}
	return claims.UserID
}
