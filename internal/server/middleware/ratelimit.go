package middleware

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"appforge/platform/internal/audit"
)

// maxLimiterKeys bounds the per-key limiter map; stale entries are pruned once it is exceeded.
const maxLimiterKeys = 4096

// staleLimiterAge is how long a key can go unused before it is eligible for pruning.
const staleLimiterAge = 3 * time.Minute

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-minute request limit keyed by authenticated user
// id, falling back to client IP for anonymous requests. Exceeding the limit
// yields 429 with a Retry-After header; violations are audited, sampled at
// one in ten unless auditAll is set.
type RateLimiter struct {
	perMinute int
	recorder  audit.Recorder
	auditAll  bool
	skipPaths map[string]bool

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

// NewRateLimiter returns a RateLimiter allowing perMinute requests per key;
// zero or negative disables limiting. recorder may be nil to disable rate
// limit auditing; skipPaths is the set of paths exempt from limiting
// (e.g. health probes).
func NewRateLimiter(perMinute int, recorder audit.Recorder, auditAll bool, skipPaths map[string]bool) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		recorder:  recorder,
		auditAll:  auditAll,
		skipPaths: skipPaths,
		entries:   make(map[string]*limiterEntry),
	}
}

// Middleware returns the handler-wrapping form of the limiter for use with mux.Use.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.perMinute <= 0 || rl.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		key := rateKey(r)
		delay, ok := rl.reserve(key)
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		retryAfter := int(math.Ceil(delay.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		rl.auditViolation(r, key, retryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"detail":              "Rate limit exceeded. Please try again later.",
			"retry_after_seconds": retryAfter,
		})
	})
}

// reserve consumes one token for key. When the limit is exhausted it returns
// the wait until the next token and false.
func (rl *RateLimiter) reserve(key string) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[key]
	if !ok {
		if len(rl.entries) >= maxLimiterKeys {
			rl.prune()
		}
		e = &limiterEntry{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.perMinute)}
		rl.entries[key] = e
	}
	e.lastSeen = time.Now()

	res := e.lim.Reserve()
	if !res.OK() {
		return time.Minute, false
	}
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return d, false
	}
	return 0, true
}

// prune removes stale entries. Caller must hold mu.
func (rl *RateLimiter) prune() {
	cutoff := time.Now().Add(-staleLimiterAge)
	for k, e := range rl.entries {
		if e.lastSeen.Before(cutoff) {
			delete(rl.entries, k)
		}
	}
}

func (rl *RateLimiter) auditViolation(r *http.Request, key string, retryAfter int) {
	if rl.recorder == nil {
		return
	}
	if !rl.auditAll && !sampled(key) {
		return
	}
	userID, _ := GetUserID(r.Context())
	rl.recorder.RecordAsync(r.Context(), userID, "rate_limit_exceeded", map[string]any{
		"key":                 key,
		"limit_per_minute":    rl.perMinute,
		"retry_after_seconds": retryAfter,
	}, audit.RequestInfo{
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
		Path:      r.URL.Path,
		Method:    r.Method,
	})
}

// sampled reports whether key falls in the one-in-ten audit sample.
func sampled(key string) bool {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()%10 == 0
}

// rateKey returns the limiter key for the request: the authenticated user id
// when present, otherwise the client IP.
func rateKey(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok && userID != "" {
		return "user:" + userID
	}
	return "ip:" + ClientIP(r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
