package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
)

// Limiter counts requests per key in fixed windows. It reports whether the
// request fits and, when it does not, how long until the window reopens.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

// FailureMode decides what happens when the Limiter backend errors. The auth
// scope runs FailClosed so a Redis outage cannot open the OTP and password
// endpoints to guessing. The general api scope runs FailOpen.
type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// RateLimiter throttles one route scope ("auth" or "api") per client IP.
// Keys are "<scope>:<ip>", so the scopes never share a budget.
type RateLimiter struct {
	limiter Limiter
	limit   int
	window  time.Duration
	mode    FailureMode
	scope   string
	dict    *i18n.Dictionary
}

// NewRateLimiter keeps counts in process memory. It is the fallback when
// Redis is not configured and always fails closed.
func NewRateLimiter(limit int, window time.Duration, scope string, dict *i18n.Dictionary) *RateLimiter {
	return NewDistributedRateLimiter(NewInMemoryLimiter(), limit, window, FailClosed, scope, dict)
}

func NewDistributedRateLimiter(limiter Limiter, limit int, window time.Duration, mode FailureMode, scope string, dict *i18n.Dictionary) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{limiter: limiter, limit: limit, window: window, mode: mode, scope: scope, dict: dict}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))

			allowed, retryAfter, err := rl.limiter.Allow(ctx, rl.scope+":"+clientIPKey(r), rl.limit, rl.window)
			switch {
			case err != nil && rl.mode == FailOpen:
				slog.WarnContext(ctx, "rate limit backend error, letting request through",
					"scope", rl.scope, "error", err)
				rl.record(ctx, "allow_backend_error")
				next.ServeHTTP(w, r)
			case err != nil:
				rl.record(ctx, "deny_backend_error")
				rl.reject(w, r, rl.window, "backend_error")
			case !allowed:
				rl.record(ctx, "deny")
				rl.reject(w, r, retryAfter, "window")
			default:
				rl.record(ctx, "allow")
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (rl *RateLimiter) record(ctx context.Context, decision string) {
	observability.RecordRateLimitDecision(ctx, rl.scope, decision, string(rl.mode), "ip")
}

// reject answers 429 with a localized RATE_LIMITED envelope.
func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, retryAfter time.Duration, reason string) {
	observability.RecordRateLimitRetryAfter(r.Context(), rl.scope, reason, retryAfter)
	w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
	w.Header().Set("X-RateLimit-Remaining", "0")
	writeLocalizedError(w, r, rl.dict, http.StatusTooManyRequests, "RATE_LIMITED", "rate_limited", nil)
}

type windowCounter struct {
	hits    int
	opensAt time.Time
}

// inMemoryLimiter is a single-process Limiter. Idle keys are dropped on a
// sweep that runs at most once per window.
type inMemoryLimiter struct {
	mu        sync.Mutex
	counters  map[string]*windowCounter
	nextSweep time.Time
	now       func() time.Time
}

func NewInMemoryLimiter() Limiter {
	return &inMemoryLimiter{counters: make(map[string]*windowCounter), now: time.Now}
}

func (l *inMemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if !now.Before(l.nextSweep) {
		for k, c := range l.counters {
			if now.Sub(c.opensAt) > 2*window {
				delete(l.counters, k)
			}
		}
		l.nextSweep = now.Add(window)
	}

	c, ok := l.counters[key]
	if !ok || now.Sub(c.opensAt) >= window {
		l.counters[key] = &windowCounter{hits: 1, opensAt: now}
		return true, 0, nil
	}
	if c.hits < limit {
		c.hits++
		return true, 0, nil
	}
	return false, max(window-now.Sub(c.opensAt), 0), nil
}

// clientIPKey reads RemoteAddr after chi's RealIP has rewritten it.
func clientIPKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// ClientIP is the address the attempt guard pairs with the email.
func ClientIP(r *http.Request) string { return clientIPKey(r) }

// retryAfterHeader renders whole seconds, never less than one.
func retryAfterHeader(d time.Duration) string {
	return strconv.Itoa(max(int(d.Round(time.Second)/time.Second), 1))
}
