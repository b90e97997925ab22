package middleware

import (
	"context"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"appforge/platform/internal/report/domain"
	reportrepo "appforge/platform/internal/report/repository"
)

// storeTimeout bounds the async app error write spawned from a recovered panic.
const storeTimeout = 5 * time.Second

// Recover returns middleware that converts a handler panic into a 500 response.
// The panic is logged and stored as an app error; the store is async and
// best-effort so a dead database cannot turn one failure into two.
// repo may be nil, in which case panics are only logged. env is recorded on
// the stored error.
func Recover(repo reportrepo.Repository, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				stack := string(debug.Stack())
				log.Printf("server: panic serving %s %s: %v", r.Method, r.URL.Path, rec)

				if repo != nil {
					userID, _ := GetUserID(r.Context())
					entry := &domain.AppError{
						ID:            uuid.New().String(),
						Level:         domain.LevelError,
						Message:       panicMessage(rec),
						Stack:         stack,
						UserID:        userID,
						RequestPath:   r.URL.Path,
						RequestMethod: r.Method,
						Environment:   env,
						Extra:         map[string]any{"client_ip": ClientIP(r)},
						CreatedAt:     time.Now().UTC(),
					}
					go func() {
						storeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
						defer cancel()
						if err := repo.Create(storeCtx, entry); err != nil {
							log.Printf("server: failed to store panic report: %v", err)
						}
					}()
				}

				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"detail": "Internal server error",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func panicMessage(rec any) string {
	if err, ok := rec.(error); ok {
		return err.Error()
	}
	if s, ok := rec.(string); ok {
		return s
	}
	return "panic"
}
