// Package apiclient is the HTTP client used by AppForge frontends and tools
// to call the platform API. It attaches credentials on every request,
// enforces a per-request timeout, classifies failures, and runs a single-fire
// session-expiry recovery action when the backend answers 401.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout applies to requests that set no timeout of their own.
const DefaultTimeout = 15 * time.Second

// Config establishes client-wide defaults. Build one Client per backend at
// startup and share it; per-request state lives on Request.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.appforge.dev". Required.
	BaseURL string
	// Timeout is the default per-request deadline. Zero means DefaultTimeout.
	Timeout time.Duration
	// DefaultHeaders are set on every request before per-request headers.
	DefaultHeaders http.Header
	// OnSessionInvalid is invoked at most once per request context when the
	// backend answers 401: sign the session out and send the user to the
	// sign-in entry point. Must be safe to run redundantly, since concurrent
	// requests each get their own invocation. A returned error is logged and
	// swallowed; it never replaces the 401 returned to the caller.
	OnSessionInvalid func(ctx context.Context) error
	// Verbose logs every request and every error response. Enable outside
	// production.
	Verbose bool
	// HTTPClient overrides the underlying transport. If nil, a client with a
	// cookie jar is used so cookie-based auth survives across calls.
	HTTPClient *http.Client
}

// Request is the per-call context passed to Send. The retry guard lives here,
// not on the Client, so concurrent unrelated requests cannot suppress each
// other's session recovery.
type Request struct {
	Method string
	Path   string
	Header http.Header
	// Body is marshaled as JSON when non-nil.
	Body any
	// Timeout overrides the client default for this request. Zero keeps the default.
	Timeout time.Duration

	mu         sync.Mutex
	retryGuard bool
}

// NewRequest returns a Request for method and path with an optional JSON body.
func NewRequest(method, path string, body any) *Request {
	return &Request{Method: method, Path: path, Body: body}
}

// guardSessionRecovery reports whether this context should run the recovery
// action, flipping the guard on first use. The guard never resets.
func (r *Request) guardSessionRecovery() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retryGuard {
		return false
	}
	r.retryGuard = true
	return true
}

// Client issues requests against one backend.
type Client struct {
	base             *url.URL
	http             *http.Client
	timeout          time.Duration
	defaultHeaders   http.Header
	onSessionInvalid func(ctx context.Context) error
	verbose          bool
}

// New returns a Client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("apiclient: BaseURL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: invalid BaseURL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("apiclient: cookie jar: %w", err)
		}
		hc = &http.Client{Jar: jar}
	}
	return &Client{
		base:             base,
		http:             hc,
		timeout:          timeout,
		defaultHeaders:   cfg.DefaultHeaders,
		onSessionInvalid: cfg.OnSessionInvalid,
		verbose:          cfg.Verbose,
	}, nil
}

// Send issues req and returns the response on any 2xx status. All failures
// come back as a *RequestError: KindTransport for network-level errors,
// KindTimeout for deadline expiry, KindStatus for non-2xx responses (the
// response is returned alongside the error so callers can read the body).
//
// On a 401 with the request's retry guard unset, Send flips the guard and
// invokes the session-invalidation callback before returning; the 401 error
// is returned to the caller either way.
func (c *Client) Send(ctx context.Context, req *Request) (*http.Response, error) {
	target := c.base.JoinPath(req.Path).String()

	var bodyReader io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &RequestError{Kind: KindTransport, Method: req.Method, URL: target, Err: err}
		}
		bodyReader = bytes.NewReader(raw)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, target, bodyReader)
	if err != nil {
		return nil, &RequestError{Kind: KindTransport, Method: req.Method, URL: target, Err: err}
	}
	for k, vs := range c.defaultHeaders {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if c.verbose {
		log.Printf("apiclient: -> %s %s", req.Method, target)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		kind := KindTransport
		if isTimeoutErr(err) || reqCtx.Err() == context.DeadlineExceeded {
			kind = KindTimeout
		}
		reqErr := &RequestError{Kind: kind, Method: req.Method, URL: target, Err: err}
		if c.verbose {
			log.Printf("apiclient: <- %s %s: %s error: %v", req.Method, target, kind, err)
		}
		return nil, reqErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if c.verbose {
			log.Printf("apiclient: <- %s %s: %d", req.Method, target, resp.StatusCode)
		}
		return resp, nil
	}

	reqErr := &RequestError{Kind: KindStatus, Status: resp.StatusCode, Method: req.Method, URL: target}
	if c.verbose {
		log.Printf("apiclient: <- %s %s: %d", req.Method, target, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.recoverSession(ctx, req, target)
	}
	return resp, reqErr
}

// recoverSession runs the session-invalidation callback at most once per
// request context. Callback failures are logged and swallowed so they never
// mask the 401 being returned.
func (c *Client) recoverSession(ctx context.Context, req *Request, target string) {
	if !req.guardSessionRecovery() {
		if c.verbose {
			log.Printf("apiclient: %s %s: 401 with recovery already attempted", req.Method, target)
		}
		return
	}
	if c.onSessionInvalid == nil {
		return
	}
	if err := c.onSessionInvalid(ctx); err != nil {
		log.Printf("apiclient: session invalidation failed: %v", err)
	}
}

// JSON sends req and decodes a 2xx response body into out (skipped when out
// is nil). The response body is always closed.
func (c *Client) JSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.Send(ctx, req)
	if resp != nil {
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
	}
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Kind: KindTransport, Method: req.Method, URL: c.base.JoinPath(req.Path).String(), Err: err}
	}
	return nil
}

// Get issues a GET for path and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.JSON(ctx, NewRequest(http.MethodGet, path, nil), out)
}

// Post issues a POST for path with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.JSON(ctx, NewRequest(http.MethodPost, path, body), out)
}

// Delete issues a DELETE for path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.JSON(ctx, NewRequest(http.MethodDelete, path, nil), nil)
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// url.Error wraps the context error message on client timeout.
	return strings.Contains(err.Error(), "context deadline exceeded")
}
