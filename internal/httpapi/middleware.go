package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/auroradata-ai/geofence-psi/internal/apierr"
)

type contextKey string

const currentUserKey contextKey = "current_user"

// authed wraps a handler with bearer-token validation. The resolved
// subject becomes the request's current user (§4.6): any handler whose
// body names a different user_id must reject the request as forbidden.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeError(w, r, &apierr.AuthError{Reason: "missing bearer token"})
			return
		}

		subject, err := s.Tokens.Validate(token)
		if err != nil {
			s.writeError(w, r, &apierr.AuthError{Reason: "invalid or expired token"})
			return
		}

		user, err := s.Users.Get(subject)
		if err != nil || user.Disabled {
			s.writeError(w, r, &apierr.AuthError{Reason: "invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), currentUserKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

func currentUser(r *http.Request) string {
	u, _ := r.Context().Value(currentUserKey).(string)
	return u
}
