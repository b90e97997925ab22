// Package handler exposes the monitoring HTTP endpoints: frontend error
// intake and the monitoring health probe.
package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"appforge/platform/internal/audit"
	"appforge/platform/internal/report/domain"
	reportrepo "appforge/platform/internal/report/repository"
	"appforge/platform/internal/server/middleware"
	"appforge/platform/internal/telemetry"
	telemetrydomain "appforge/platform/internal/telemetry/domain"
)

// maxPayloadBytes caps the request body for /monitoring/log-error.
const maxPayloadBytes = 64 << 10

// loggedStackLimit is how much of a stack trace goes into the local log line.
// The full stack is still stored.
const loggedStackLimit = 1000

// frontendErrorPayload is the JSON body accepted by LogError. Field names
// match what the frontend reporter sends.
type frontendErrorPayload struct {
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
	URL       string `json:"url,omitempty"`
	Component string `json:"component,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Source    string `json:"source,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Handler serves the monitoring routes.
type Handler struct {
	repo     reportrepo.Repository
	recorder audit.Recorder
	emitter  telemetry.EventEmitter
	env      string
	verbose  bool
}

// New returns a monitoring handler. recorder and emitter may be nil; both are
// best-effort sinks. env is the deployment environment stored with each
// report; verbose enables full payload logging outside production.
func New(repo reportrepo.Repository, recorder audit.Recorder, emitter telemetry.EventEmitter, env string, verbose bool) *Handler {
	return &Handler{repo: repo, recorder: recorder, emitter: emitter, env: env, verbose: verbose}
}

// Register mounts the monitoring routes on r, typically a subrouter under
// the /monitoring prefix.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/log-error", h.LogError).Methods(http.MethodPost)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

// LogError receives a frontend error report, stores it, and records audit and
// telemetry entries. It returns 200 even when storage fails so the frontend
// never retries; only a malformed payload yields 4xx.
func (h *Handler) LogError(w http.ResponseWriter, r *http.Request) {
	var payload frontendErrorPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err := dec.Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid JSON body"})
		return
	}
	if payload.Message == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "message must not be empty"})
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	ip := middleware.ClientIP(r)

	stack := payload.Stack
	loggedStack := stack
	if len(loggedStack) > loggedStackLimit {
		loggedStack = loggedStack[:loggedStackLimit]
	}
	if h.verbose {
		log.Printf("monitoring: frontend error message=%q url=%q component=%q source=%q user_id=%q ip=%s stack=%q",
			payload.Message, payload.URL, payload.Component, payload.Source, userID, ip, loggedStack)
	} else {
		log.Printf("monitoring: frontend error message=%q user_id=%q ip=%s", payload.Message, userID, ip)
	}

	requestPath := payload.URL
	if requestPath == "" {
		requestPath = r.URL.Path
	}
	entry := &domain.AppError{
		ID:            uuid.New().String(),
		Level:         domain.LevelFrontendError,
		Message:       payload.Message,
		Stack:         stack,
		UserID:        userID,
		RequestPath:   requestPath,
		RequestMethod: "CLIENT_SIDE",
		Environment:   h.env,
		Extra: map[string]any{
			"component":  payload.Component,
			"user_agent": payload.UserAgent,
			"source":     payload.Source,
			"ip":         ip,
			"timestamp":  payload.Timestamp,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.Create(r.Context(), entry); err != nil {
		log.Printf("monitoring: failed to store frontend error: %v", err)
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(r.Context(), userID, "frontend_error_logged", map[string]any{
			"message":      truncate(payload.Message, 200),
			"url":          payload.URL,
			"component":    payload.Component,
			"user_agent":   payload.UserAgent,
			"ip":           ip,
			"stack_length": len(stack),
		}, audit.RequestInfo{
			IP:        ip,
			UserAgent: r.UserAgent(),
			Path:      r.URL.Path,
			Method:    r.Method,
		})
	}

	event := telemetrydomain.NewEvent(userID, "frontend_error", "monitoring_handler", map[string]any{
		"message":   truncate(payload.Message, 200),
		"url":       payload.URL,
		"component": payload.Component,
	})
	telemetry.EmitAsync(h.emitter, r.Context(), event)

	writeJSON(w, http.StatusOK, map[string]any{"status": "logged"})
}

// Health reports the monitoring router itself is up. It does not touch the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "monitoring-router",
	})
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
