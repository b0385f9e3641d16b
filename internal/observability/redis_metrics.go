package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var redisInstrumentationOnce sync.Once

// Key families written by this service, in the order they appear after the
// namespace: "<namespace>:<family>:...".
var redisKeyFamilies = map[string]struct{}{
	"otp":      {},
	"rl":       {},
	"attempts": {},
	"purge":    {},
	"health":   {},
}

// InstrumentRedisClient installs the command hook once per process.
func InstrumentRedisClient(client redis.UniversalClient, logger *slog.Logger) {
	if client == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	redisInstrumentationOnce.Do(func() {
		hook, err := newRedisMetricsHook(client)
		if err != nil {
			logger.Warn("redis instrumentation disabled", "error", err)
			return
		}
		client.AddHook(hook)
		logger.Info("redis instrumentation enabled")
	})
}

type redisMetricsHook struct {
	commands metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	otpReads metric.Int64Counter
}

func newRedisMetricsHook(client redis.UniversalClient) (*redisMetricsHook, error) {
	meter := otel.Meter(meterName)
	h := &redisMetricsHook{}
	var err error
	if h.commands, err = meter.Int64Counter("redis.command.total",
		metric.WithDescription("Redis commands by key family and status")); err != nil {
		return nil, fmt.Errorf("redis.command.total: %w", err)
	}
	if h.failures, err = meter.Int64Counter("redis.command.errors",
		metric.WithDescription("Redis command failures by error class")); err != nil {
		return nil, fmt.Errorf("redis.command.errors: %w", err)
	}
	if h.latency, err = meter.Float64Histogram("redis.command.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Redis command latency")); err != nil {
		return nil, fmt.Errorf("redis.command.duration: %w", err)
	}
	if h.otpReads, err = meter.Int64Counter("redis.otp.reads",
		metric.WithDescription("OTP code lookups split by found or missing")); err != nil {
		return nil, fmt.Errorf("redis.otp.reads: %w", err)
	}

	saturation, err := meter.Float64ObservableGauge("redis.pool.saturation",
		metric.WithUnit("1"),
		metric.WithDescription("Share of pool connections in use"))
	if err != nil {
		return nil, fmt.Errorf("redis.pool.saturation: %w", err)
	}
	if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := client.PoolStats()
		if stats == nil || stats.TotalConns == 0 {
			return nil
		}
		used := float64(stats.TotalConns-stats.IdleConns) / float64(stats.TotalConns)
		o.ObserveFloat64(saturation, min(max(used, 0), 1))
		return nil
	}, saturation); err != nil {
		return nil, fmt.Errorf("register pool callback: %w", err)
	}
	return h, nil
}

func (h *redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(ctx, cmd, err, time.Since(start))
		return err
	}
}

func (h *redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		elapsed := time.Since(start)
		for _, cmd := range cmds {
			// Latency is per pipeline, so each command carries its share.
			h.observe(ctx, cmd, cmd.Err(), elapsed/time.Duration(len(cmds)))
		}
		return err
	}
}

func (h *redisMetricsHook) observe(ctx context.Context, cmd redis.Cmder, err error, elapsed time.Duration) {
	command := strings.ToLower(cmd.Name())
	family := redisKeyFamily(cmd)
	status := redisCommandStatus(err)
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("family", family),
		attribute.String("status", status),
	)
	h.commands.Add(ctx, 1, attrs)
	h.latency.Record(ctx, elapsed.Seconds(), attrs)
	if status == "error" {
		h.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("family", family),
			attribute.String("error_type", classifyRedisError(err)),
		))
	}
	if family == "otp" && command == "get" {
		outcome := "found"
		if status == "miss" {
			outcome = "missing"
		} else if status == "error" {
			outcome = "error"
		}
		h.otpReads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// redisKeyFamily maps the first key of a command to one of the service's key
// families. Scripts carry their first key after the sha and key count.
func redisKeyFamily(cmd redis.Cmder) string {
	args := cmd.Args()
	idx := 1
	switch strings.ToLower(cmd.Name()) {
	case "eval", "evalsha", "eval_ro", "evalsha_ro":
		idx = 3
	}
	if len(args) <= idx {
		return "none"
	}
	key, ok := args[idx].(string)
	if !ok {
		return "other"
	}
	for _, part := range strings.SplitN(key, ":", 3) {
		if _, known := redisKeyFamilies[part]; known {
			return part
		}
	}
	return "other"
}

func redisCommandStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, redis.Nil):
		return "miss"
	default:
		return "error"
	}
}

func classifyRedisError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "refused"):
		return "connection"
	case strings.HasPrefix(msg, "noscript"):
		return "noscript"
	default:
		return "other"
	}
}
