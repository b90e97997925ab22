package middleware

import (
	"net/http"
	"strings"

	"appforge/platform/internal/security"
)

const bearerPrefix = "bearer "

// Identity returns middleware that validates the Bearer (access) token from the
// Authorization header and sets user_id and email in the request context.
// Identity is optional for every collector route: a missing or invalid token
// leaves the request anonymous rather than rejecting it, so frontend error
// reports from expired sessions are still accepted.
func Identity(verifier *security.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}
			userID, email, err := verifier.ValidateAccess(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, email)))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
