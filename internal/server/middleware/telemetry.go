package middleware

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"appforge/platform/internal/telemetry"
	"appforge/platform/internal/telemetry/domain"
)

// httpRequestMetadata is the JSON shape stored in Event.Metadata for http_request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// statusRecorder captures the response status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

// Telemetry returns middleware that emits an http_request telemetry event and
// records OTel request metrics after each request. Best-effort: emit failures
// are logged by EmitAsync and never fail the request. If emitter is nil, only
// metrics are recorded. skipPaths is the set of paths to not instrument
// (e.g. health probes).
func Telemetry(emitter telemetry.EventEmitter, skipPaths map[string]bool) func(http.Handler) http.Handler {
	meter := otel.Meter("appforge.collector")
	requests, _ := meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total HTTP requests served"))
	errors, _ := meter.Int64Counter("http_request_errors_total",
		metric.WithDescription("Total HTTP requests that returned a 5xx status"))
	duration, _ := meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(sr, r)
			if sr.status == 0 {
				sr.status = http.StatusOK
			}
			elapsed := time.Since(start)

			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", r.URL.Path),
				attribute.Int("status_code", sr.status),
			)
			requests.Add(r.Context(), 1, attrs)
			duration.Record(r.Context(), elapsed.Seconds(), attrs)
			if sr.status >= 500 {
				errors.Add(r.Context(), 1, attrs)
			}

			userID, _ := GetUserID(r.Context())
			event := domain.NewEvent(userID, "http_request", "http_middleware", httpRequestMetadata{
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: sr.status,
				DurationMs: elapsed.Milliseconds(),
				ClientIP:   ClientIP(r),
			})
			telemetry.EmitAsync(emitter, r.Context(), event)
		})
	}
}
