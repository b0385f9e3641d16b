package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/security"
)

var ErrPurgeLockHeld = errors.New("purge lock held by another instance")

// PurgeLock keeps sweeps from overlapping across instances. release must be
// called once the sweep ends.
type PurgeLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, err error)
}

type RedisPurgeLock struct {
	client redis.UniversalClient
	key    string
}

func NewRedisPurgeLock(client redis.UniversalClient, prefix string) *RedisPurgeLock {
	if prefix == "" {
		prefix = "oas"
	}
	return &RedisPurgeLock{client: client, key: prefix + ":lock:account_purge"}
}

func (l *RedisPurgeLock) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	owner, err := security.NewOpaqueToken("", 16)
	if err != nil {
		return nil, err
	}
	ok, err := l.client.SetNX(ctx, l.key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire purge lock: %w", err)
	}
	if !ok {
		return nil, ErrPurgeLockHeld
	}
	return func(ctx context.Context) error {
		// Only the owner may release; a lock that expired and was taken over
		// by another instance is left alone.
		return redisCompareAndDeleteScript.Run(ctx, l.client, []string{l.key}, owner).Err()
	}, nil
}

type LocalPurgeLock struct {
	mu   sync.Mutex
	held bool
}

func (l *LocalPurgeLock) Acquire(context.Context, time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, ErrPurgeLockHeld
	}
	l.held = true
	return func(context.Context) error {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
		return nil
	}, nil
}

type PurgeScheduler struct {
	lifecycle *AccountLifecycleService
	tokens    *TokenService
	lock      PurgeLock
	spec      string
	timeout   time.Duration
	logger    *slog.Logger

	cron *cron.Cron
}

func NewPurgeScheduler(lifecycle *AccountLifecycleService, tokens *TokenService, lock PurgeLock, spec string, timeout time.Duration, logger *slog.Logger) *PurgeScheduler {
	if lock == nil {
		lock = &LocalPurgeLock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeScheduler{lifecycle: lifecycle, tokens: tokens, lock: lock, spec: spec, timeout: timeout, logger: logger}
}

// RunOnce performs a single locked sweep. trigger labels the metrics.
func (s *PurgeScheduler) RunOnce(ctx context.Context, trigger string) (PurgeReport, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	release, err := s.lock.Acquire(ctx, s.timeout+time.Minute)
	if err != nil {
		return PurgeReport{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "release purge lock", "error", err)
		}
	}()

	report, err := s.lifecycle.PurgeExpired(ctx)
	observability.RecordAccountPurgeDeleted(ctx, trigger, report.Purged)
	if err != nil {
		return report, err
	}
	if s.tokens != nil {
		if n, err := s.tokens.PruneExpired(ctx); err != nil {
			s.logger.WarnContext(ctx, "prune expired tokens", "error", err)
		} else if n > 0 {
			s.logger.InfoContext(ctx, "pruned expired tokens", "count", n)
		}
	}
	return report, nil
}

func (s *PurgeScheduler) Start() error {
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger}),
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))
	if _, err := c.AddFunc(s.spec, s.runScheduled); err != nil {
		return fmt.Errorf("schedule purge %q: %w", s.spec, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("account purge scheduled", "cron", s.spec)
	return nil
}

func (s *PurgeScheduler) runScheduled() {
	ctx := context.Background()
	if _, err := s.RunOnce(ctx, "cron"); err != nil {
		if errors.Is(err, ErrPurgeLockHeld) {
			s.logger.InfoContext(ctx, "account purge skipped, lock held elsewhere")
			return
		}
		s.logger.ErrorContext(ctx, "account purge failed", "error", err)
	}
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *PurgeScheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
