// Package errorreport captures uncaught failures in AppForge client processes
// and best-effort delivers them to the platform's error collector. It never
// retries, never blocks the failing code path, and never suppresses the
// runtime's default failure handling.
package errorreport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// deliveryTimeout bounds one fire-and-forget delivery attempt.
const deliveryTimeout = 5 * time.Second

// defaultUserAgent identifies this reporter on delivered payloads.
const defaultUserAgent = "appforge-errorreport/1.0 (go)"

// Kind classifies where a failure was observed.
type Kind string

const (
	// KindUncaughtError is a panic reaching a CapturePanic boundary, the
	// analogue of an uncaught synchronous error.
	KindUncaughtError Kind = "uncaught_error"
	// KindUnhandledFailure is an error or panic escaping a task started with
	// Go, the analogue of an unhandled rejection.
	KindUnhandledFailure Kind = "unhandled_rejection"
)

// Event is one observed failure, handed to installed hooks before the
// reporter's own delivery.
type Event struct {
	Kind  Kind
	Value any    // the panic value or returned error
	Stack string // captured at the observation point; may be empty
}

// Hook observes failure events. Hooks run in installation order; a hook that
// panics is contained and the chain continues.
type Hook func(Event)

// Config configures a Reporter.
type Config struct {
	// Endpoint is the collector intake URL, e.g.
	// "https://api.appforge.dev/monitoring/log-error". Required.
	Endpoint string
	// AppURL is reported as the url field. Defaults to the process hostname.
	AppURL string
	// UserAgent is reported as the userAgent field. Defaults to defaultUserAgent.
	UserAgent string
	// HTTPClient overrides the delivery transport. If nil, a client with a
	// cookie jar is used so the collector can associate reports with an
	// authenticated session.
	HTTPClient *http.Client
}

// Reporter delivers failure reports and runs the installed hook chain.
type Reporter struct {
	endpoint  string
	appURL    string
	userAgent string
	client    *http.Client

	mu    sync.Mutex
	hooks map[Kind][]Hook
}

// New returns a Reporter for cfg.
func New(cfg Config) (*Reporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("errorreport: Endpoint is required")
	}
	appURL := cfg.AppURL
	if appURL == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		appURL = host
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("errorreport: cookie jar: %w", err)
		}
		client = &http.Client{Jar: jar, Timeout: deliveryTimeout}
	}
	return &Reporter{
		endpoint:  cfg.Endpoint,
		appURL:    appURL,
		userAgent: userAgent,
		client:    client,
		hooks:     make(map[Kind][]Hook),
	}, nil
}

// Install appends h to the hook chain for kind. Previously installed hooks
// are preserved and still run, in order, before the reporter's own delivery.
func (r *Reporter) Install(kind Kind, h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[kind] = append(r.hooks[kind], h)
}

// dispatch runs the hook chain for ev, then delivers the report. It never
// panics: hook panics are contained so failure handling cannot cascade.
func (r *Reporter) dispatch(ev Event) {
	r.mu.Lock()
	chain := make([]Hook, len(r.hooks[ev.Kind]))
	copy(chain, r.hooks[ev.Kind])
	r.mu.Unlock()

	for _, h := range chain {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("errorreport: hook panicked: %v", rec)
				}
			}()
			h(ev)
		}()
	}

	r.deliver(message(ev.Value), ev.Stack, string(ev.Kind), nil)
}

// CapturePanic observes a panic crossing a deferred call boundary, dispatches
// an uncaught_error event, and re-panics so the runtime's default handling
// (crash, or an outer recover) still occurs:
//
//	defer reporter.CapturePanic()
func (r *Reporter) CapturePanic() {
	rec := recover()
	if rec == nil {
		return
	}
	r.dispatch(Event{
		Kind:  KindUncaughtError,
		Value: rec,
		Stack: string(debug.Stack()),
	})
	panic(rec)
}

// Go runs fn in a new goroutine. An error returned by fn is dispatched as an
// unhandled_rejection event and otherwise dropped; a panic in fn is
// dispatched and then re-raised so the process still crashes by default.
func (r *Reporter) Go(fn func() error) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.dispatch(Event{
					Kind:  KindUnhandledFailure,
					Value: rec,
					Stack: string(debug.Stack()),
				})
				panic(rec)
			}
		}()
		if err := fn(); err != nil {
			r.dispatch(Event{Kind: KindUnhandledFailure, Value: err})
		}
	}()
}

// Report builds a report for value and attempts one fire-and-forget delivery.
// A plain string value yields a report without a stack; an error value gets
// the stack of the Report call site. extra keys are merged into the payload
// and may override the built-in fields. Report never blocks on the delivery
// and never returns an error: a failed delivery is logged and discarded.
func (r *Reporter) Report(value any, extra map[string]any) {
	var stack string
	if _, ok := value.(error); ok {
		stack = string(debug.Stack())
	}
	r.deliver(message(value), stack, "manual", extra)
}

// deliver spawns the detached delivery task. The payload is built before the
// goroutine starts so the report is immutable from creation.
func (r *Reporter) deliver(msg, stack, source string, extra map[string]any) {
	payload := map[string]any{
		"message":   msg,
		"url":       r.appURL,
		"userAgent": r.userAgent,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    source,
	}
	if stack != "" {
		payload["stack"] = stack
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("errorreport: marshal report: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(raw))
		if err != nil {
			log.Printf("errorreport: build request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			log.Printf("errorreport: delivery failed: %v", err)
			return
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
		if resp.StatusCode >= 400 {
			log.Printf("errorreport: collector returned %d", resp.StatusCode)
		}
	}()
}

func message(value any) string {
	switch v := value.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
