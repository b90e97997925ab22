// Package server assembles the collector's HTTP surface: routes, middleware
// chain, and CORS policy.
package server

import (
	"net/http"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"appforge/platform/internal/audit"
	"appforge/platform/internal/config"
	healthhandler "appforge/platform/internal/health/handler"
	reporthandler "appforge/platform/internal/report/handler"
	reportrepo "appforge/platform/internal/report/repository"
	"appforge/platform/internal/security"
	"appforge/platform/internal/server/middleware"
	"appforge/platform/internal/telemetry"
)

// serviceName identifies this process on the root and health endpoints.
const serviceName = "appforge-collector"

// healthPaths are exempt from rate limiting, telemetry, and auditing.
var healthPaths = map[string]bool{
	"/":                  true,
	"/health":            true,
	"/ready":             true,
	"/live":              true,
	"/monitoring/health": true,
}

// Deps holds the service dependencies wired into the router.
type Deps struct {
	// DB backs the readiness probe. If nil, readiness skips the database ping.
	DB healthhandler.Pinger
	// ReportRepo stores frontend error reports and recovered panics. Required.
	ReportRepo reportrepo.Repository
	// AuditRecorder records audit entries. If nil, nothing is audited.
	AuditRecorder audit.Recorder
	// Emitter receives request and frontend error telemetry. If nil, no events are emitted.
	Emitter telemetry.EventEmitter
	// Verifier validates Bearer tokens for optional identity. If nil, all requests are anonymous.
	Verifier *security.Verifier
}

// New builds the collector handler: recovery, security headers, identity,
// global rate limit, telemetry and audit middleware around the route tree,
// with a stricter per-key limit on error intake, wrapped in the CORS policy.
func New(cfg *config.Config, deps Deps) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.Recover(deps.ReportRepo, cfg.Env))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Identity(deps.Verifier))

	globalLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, deps.AuditRecorder, cfg.AuditAllRateLimit, healthPaths)
	r.Use(globalLimiter.Middleware)

	r.Use(middleware.Telemetry(deps.Emitter, healthPaths))

	// The error intake endpoint writes its own richer audit entry.
	auditSkip := map[string]bool{"/monitoring/log-error": true}
	for p := range healthPaths {
		auditSkip[p] = true
	}
	r.Use(middleware.Audit(deps.AuditRecorder, auditSkip))

	healthhandler.New(deps.DB, serviceName, cfg.Env).Register(r)

	monitoring := r.PathPrefix("/monitoring").Subrouter()
	errLimiter := middleware.NewRateLimiter(cfg.ErrorReportPerMinute, deps.AuditRecorder, cfg.AuditAllRateLimit, healthPaths)
	monitoring.Use(errLimiter.Middleware)
	reporthandler.New(deps.ReportRepo, deps.AuditRecorder, deps.Emitter, cfg.Env, cfg.Verbose()).Register(monitoring)

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(cfg.CORSOriginsList()),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		gorillahandlers.AllowCredentials(),
	)
	return cors(r)
}
