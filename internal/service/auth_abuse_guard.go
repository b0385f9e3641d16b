package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/observability"
)

// AttemptScope separates failure counters for different secrets.
type AttemptScope string

const (
	AttemptScopeLogin     AttemptScope = "login"
	AttemptScopeOTPVerify AttemptScope = "otp_verify"
)

// AttemptKey identifies who is failing. Email and client IP are tracked as
// independent dimensions and the longer cooldown wins.
type AttemptKey struct {
	Scope AttemptScope
	Email string
	IP    string
}

func (k AttemptKey) dimensions() [2]string {
	return [2]string{
		string(k.Scope) + ":id:" + normalizeAttemptValue(k.Email, "anonymous"),
		string(k.Scope) + ":ip:" + normalizeAttemptValue(k.IP, "unknown"),
	}
}

type AttemptPolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

// Delay returns the cooldown that follows the failCount-th consecutive failure.
func (p AttemptPolicy) Delay(failCount int) time.Duration {
	if failCount <= p.FreeAttempts {
		return 0
	}
	power := math.Pow(p.Multiplier, float64(failCount-p.FreeAttempts-1))
	delay := time.Duration(float64(p.BaseDelay) * power)
	if delay > p.MaxDelay || delay < 0 {
		return p.MaxDelay
	}
	return delay
}

func (p AttemptPolicy) normalized() AttemptPolicy {
	if p.FreeAttempts < 0 {
		p.FreeAttempts = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = 5 * time.Minute
	}
	if p.ResetWindow <= 0 {
		p.ResetWindow = 30 * time.Minute
	}
	return p
}

type AttemptGuard interface {
	Cooldown(ctx context.Context, key AttemptKey) (time.Duration, error)
	RegisterFailure(ctx context.Context, key AttemptKey) (time.Duration, error)
	Reset(ctx context.Context, key AttemptKey) error
}

// Gate returns a *CooldownError while key is cooling down. Guard outages
// fail open.
func Gate(ctx context.Context, guard AttemptGuard, key AttemptKey) error {
	if guard == nil {
		return nil
	}
	retry, err := guard.Cooldown(ctx, key)
	if err != nil {
		observability.RecordRateLimitDecision(ctx, string(key.Scope), "guard_error", "abuse_guard", "email_ip")
		return nil
	}
	if retry > 0 {
		observability.RecordRateLimitDecision(ctx, string(key.Scope), "blocked", "abuse_guard", "email_ip")
		observability.RecordRateLimitRetryAfter(ctx, string(key.Scope), "cooldown", retry)
		return &CooldownError{RetryAfter: retry}
	}
	return nil
}

// RegisterFailure counts a failed attempt. The failing call keeps its own
// error; the cooldown applies to the next one.
func RegisterFailure(ctx context.Context, guard AttemptGuard, key AttemptKey) {
	if guard == nil {
		return
	}
	if retry, err := guard.RegisterFailure(ctx, key); err == nil && retry > 0 {
		observability.RecordRateLimitDecision(ctx, string(key.Scope), "cooldown_started", "abuse_guard", "email_ip")
	}
}

type NoopAttemptGuard struct{}

func (NoopAttemptGuard) Cooldown(context.Context, AttemptKey) (time.Duration, error) { return 0, nil }

func (NoopAttemptGuard) RegisterFailure(context.Context, AttemptKey) (time.Duration, error) {
	return 0, nil
}

func (NoopAttemptGuard) Reset(context.Context, AttemptKey) error { return nil }

type attemptEntry struct {
	failCount     int
	lastFailureAt time.Time
	cooldownUntil time.Time
}

type InMemoryAttemptGuard struct {
	mu     sync.Mutex
	policy AttemptPolicy
	data   map[string]attemptEntry
	now    func() time.Time
}

func NewInMemoryAttemptGuard(policy AttemptPolicy) *InMemoryAttemptGuard {
	return &InMemoryAttemptGuard{
		policy: policy.normalized(),
		data:   make(map[string]attemptEntry),
		now:    time.Now,
	}
}

func (g *InMemoryAttemptGuard) Cooldown(_ context.Context, key AttemptKey) (time.Duration, error) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	var longest time.Duration
	for _, dim := range key.dimensions() {
		longest = max(longest, g.activeLocked(now, dim))
	}
	return longest, nil
}

func (g *InMemoryAttemptGuard) RegisterFailure(_ context.Context, key AttemptKey) (time.Duration, error) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	var longest time.Duration
	for _, dim := range key.dimensions() {
		entry := g.data[dim]
		if entry.lastFailureAt.IsZero() || now.Sub(entry.lastFailureAt) > g.policy.ResetWindow {
			entry.failCount = 0
		}
		entry.failCount++
		entry.lastFailureAt = now
		delay := g.policy.Delay(entry.failCount)
		entry.cooldownUntil = now.Add(delay)
		g.data[dim] = entry
		longest = max(longest, delay)
	}
	return longest, nil
}

// Reset clears only the email dimension; a successful attempt says nothing
// about other accounts tried from the same address.
func (g *InMemoryAttemptGuard) Reset(_ context.Context, key AttemptKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.data, key.dimensions()[0])
	return nil
}

func (g *InMemoryAttemptGuard) activeLocked(now time.Time, dim string) time.Duration {
	entry, ok := g.data[dim]
	if !ok {
		return 0
	}
	if now.Sub(entry.lastFailureAt) > g.policy.ResetWindow {
		delete(g.data, dim)
		return 0
	}
	if !now.Before(entry.cooldownUntil) {
		return 0
	}
	return entry.cooldownUntil.Sub(now)
}

func normalizeAttemptValue(v, fallback string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return fallback
	}
	return v
}
