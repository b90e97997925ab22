// Package handler serves the service-level health probes: liveness,
// readiness, and the root status page.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// readyTimeout bounds the database ping during a readiness check.
const readyTimeout = 2 * time.Second

// Pinger is the database dependency for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves the health endpoints.
type Handler struct {
	db      Pinger
	service string
	env     string
}

// New returns a health handler. db may be nil, in which case readiness skips
// the database ping.
func New(db Pinger, service, env string) *Handler {
	return &Handler{db: db, service: service, env: env}
}

// Register mounts the health routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/", h.Root).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
	r.HandleFunc("/live", h.Live).Methods(http.MethodGet)
}

// Root identifies the service.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     h.service,
		"environment": h.env,
		"status":      "ok",
	})
}

// Health reports overall health without touching dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   h.service,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready reports readiness. With a database configured, readiness requires a
// successful ping; a failed ping yields 503 so load balancers stop routing here.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not ready",
				"detail": "database unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// Live reports liveness: the process is up and serving.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "alive"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
