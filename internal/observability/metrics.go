package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

const meterName = "otp-account-service"

type AppMetrics struct {
	authReqDuration              metric.Float64Histogram
	authLoginCounter             metric.Int64Counter
	authLogoutCounter            metric.Int64Counter
	accessTokenValidationCounter metric.Int64Counter
	otpEventCounter              metric.Int64Counter
	accountLifecycleCounter      metric.Int64Counter
	accountPurgeDeleted          metric.Float64Histogram
	socialReqDuration            metric.Float64Histogram
	socialErrorCounter           metric.Int64Counter
	notifierDeliveryCounter      metric.Int64Counter
	rateLimitDecisionCounter     metric.Int64Counter
	rateLimitRetryAfter          metric.Float64Histogram
	preconditionCounter          metric.Int64Counter
	healthCheckResultCounter     metric.Int64Counter
	healthCheckDuration          metric.Float64Histogram
	databaseStartupCounter       metric.Int64Counter
	databaseStartupDuration      metric.Float64Histogram
	repositoryOpsCounter         metric.Int64Counter
	toolCommandRuns              metric.Int64Counter
	toolCommandDuration          metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "auth.request.duration"},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
				},
			},
		)),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	m := &AppMetrics{}
	var err error
	counter := func(dst *metric.Int64Counter, name string) {
		if err != nil {
			return
		}
		*dst, err = meter.Int64Counter(name)
	}
	hist := func(dst *metric.Float64Histogram, name, unit, desc string) {
		if err != nil {
			return
		}
		opts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
		if unit != "" {
			opts = append(opts, metric.WithUnit(unit))
		}
		*dst, err = meter.Float64Histogram(name, opts...)
	}

	hist(&m.authReqDuration, "auth.request.duration", "s", "Duration of auth endpoint requests in seconds")
	counter(&m.authLoginCounter, "auth.login.attempts")
	counter(&m.authLogoutCounter, "auth.logout.attempts")
	counter(&m.accessTokenValidationCounter, "auth.access_token.validation.events")
	counter(&m.otpEventCounter, "auth.otp.events")
	counter(&m.accountLifecycleCounter, "account.lifecycle.events")
	hist(&m.accountPurgeDeleted, "account.purge.deleted", "", "Accounts permanently removed per purge run")
	hist(&m.socialReqDuration, "social.provider.request.duration", "s", "Duration of social provider identity lookups in seconds")
	counter(&m.socialErrorCounter, "social.provider.errors")
	counter(&m.notifierDeliveryCounter, "notifier.delivery.events")
	counter(&m.rateLimitDecisionCounter, "http.rate_limit.decisions")
	hist(&m.rateLimitRetryAfter, "http.rate_limit.retry_after", "s", "Retry-after duration in seconds for throttled requests")
	counter(&m.preconditionCounter, "http.precondition.events")
	counter(&m.healthCheckResultCounter, "health.check.results")
	hist(&m.healthCheckDuration, "health.check.duration", "s", "Duration of health dependency checks in seconds")
	counter(&m.databaseStartupCounter, "database.startup.events")
	hist(&m.databaseStartupDuration, "database.startup.duration", "s", "Duration of database startup phases in seconds")
	counter(&m.repositoryOpsCounter, "repository.operations")
	counter(&m.toolCommandRuns, "tool.command.runs")
	hist(&m.toolCommandDuration, "tool.command.duration", "s", "Duration of operator tool commands in seconds")
	if err != nil {
		return nil, err
	}
	return m, nil
}

func loadedMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.authReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

func RecordAuthLogin(ctx context.Context, provider, status string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

func RecordAuthLogout(ctx context.Context, scope, status string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.authLogoutCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("status", status),
	))
}

func RecordAccessTokenValidation(ctx context.Context, outcome string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.accessTokenValidationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordOTPEvent counts send/verify outcomes per OTP purpose.
func RecordOTPEvent(ctx context.Context, otpType, action, outcome string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.otpEventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", otpType),
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordAccountLifecycleEvent(ctx context.Context, action, outcome string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.accountLifecycleCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordAccountPurgeDeleted(ctx context.Context, trigger string, count int) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.accountPurgeDeleted.Record(ctx, float64(count), metric.WithAttributes(attribute.String("trigger", trigger)))
}

func RecordSocialProviderRequestDuration(ctx context.Context, provider, status string, duration time.Duration) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.socialReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

func RecordSocialProviderError(ctx context.Context, provider, reason string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.socialErrorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("reason", reason),
	))
}

func RecordNotifierDelivery(ctx context.Context, driver, outcome string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.notifierDeliveryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("driver", driver),
		attribute.String("outcome", outcome),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode, keyType string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.rateLimitDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
		attribute.String("key_type", keyType),
	))
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, retryAfter time.Duration) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.rateLimitRetryAfter.Record(ctx, retryAfter.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("reason", reason),
	))
}

func RecordPreconditionEvent(ctx context.Context, check, outcome string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.preconditionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.healthCheckResultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("check", check)))
}

func RecordDatabaseStartupEvent(ctx context.Context, phase, outcome string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.databaseStartupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	))
}

func RecordDatabaseStartupDuration(ctx context.Context, phase string, duration time.Duration) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.databaseStartupDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("phase", phase)))
}

func RecordRepositoryOperation(ctx context.Context, repo, operation, outcome string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.repositoryOpsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repo),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordToolCommandRun(ctx context.Context, tool, command, outcome string) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.toolCommandRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}

func RecordToolCommandDuration(ctx context.Context, tool, command, outcome string, duration time.Duration) {
	m := loadedMetrics()
	if m == nil {
		return
	}
	m.toolCommandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}
