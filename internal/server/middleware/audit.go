package middleware

import (
	"net/http"

	"appforge/platform/internal/audit"
)

// Audit returns middleware that records an audit log entry for authenticated
// mutating requests (anything other than GET, HEAD, OPTIONS). skipPaths is
// the set of paths to not audit; routes that write their own richer audit
// entry (the error report endpoint) belong there. Recording is async and
// best-effort.
func Audit(recorder audit.Recorder, skipPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if recorder == nil || skipPaths[r.URL.Path] {
				return
			}
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return
			}
			userID, ok := GetUserID(r.Context())
			if !ok || userID == "" {
				return
			}
			recorder.RecordAsync(r.Context(), userID, "http_request", map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			}, audit.RequestInfo{
				IP:        ClientIP(r),
				UserAgent: r.UserAgent(),
				Path:      r.URL.Path,
				Method:    r.Method,
			})
		})
	}
}
