package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`

	RedisEnabled   bool   `env:"REDIS_ENABLED" envDefault:"true"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"oas"`

	OTPTTL               time.Duration `env:"OTP_TTL" envDefault:"5m"`
	ForgotPasswordOTPTTL time.Duration `env:"FORGOT_PASSWORD_OTP_TTL" envDefault:"10m"`
	OTPDigits            int           `env:"OTP_DIGITS" envDefault:"4"`

	TokenPepper    string        `env:"TOKEN_PEPPER"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"720h"`
	SocialTokenTTL time.Duration `env:"SOCIAL_TOKEN_TTL" envDefault:"2400h"`

	AccountDeletionGraceDays int           `env:"ACCOUNT_DELETION_GRACE_DAYS" envDefault:"7"`
	PurgeEnabled             bool          `env:"PURGE_ENABLED" envDefault:"true"`
	PurgeCron                string        `env:"PURGE_CRON" envDefault:"0 0 * * *"`
	PurgeBatchSize           int           `env:"PURGE_BATCH_SIZE" envDefault:"500"`
	PurgeRunTimeout          time.Duration `env:"PURGE_RUN_TIMEOUT" envDefault:"10m"`
	ResetRevokesSessions     bool          `env:"RESET_REVOKES_SESSIONS" envDefault:"false"`

	AuthAbuseProtectionEnabled bool          `env:"AUTH_ABUSE_PROTECTION_ENABLED" envDefault:"true"`
	AuthAbuseFreeAttempts      int           `env:"AUTH_ABUSE_FREE_ATTEMPTS" envDefault:"5"`
	AuthAbuseBaseDelay         time.Duration `env:"AUTH_ABUSE_BASE_DELAY" envDefault:"2s"`
	AuthAbuseMultiplier        float64       `env:"AUTH_ABUSE_MULTIPLIER" envDefault:"2"`
	AuthAbuseMaxDelay          time.Duration `env:"AUTH_ABUSE_MAX_DELAY" envDefault:"5m"`
	AuthAbuseResetWindow       time.Duration `env:"AUTH_ABUSE_RESET_WINDOW" envDefault:"30m"`

	SocialProviders       []string      `env:"SOCIAL_PROVIDERS" envSeparator:"," envDefault:"google,apple,facebook,linkedin"`
	SocialProviderTimeout time.Duration `env:"SOCIAL_PROVIDER_TIMEOUT" envDefault:"5s"`
	GoogleUserInfoURL     string        `env:"GOOGLE_USERINFO_URL" envDefault:"https://www.googleapis.com/oauth2/v3/userinfo"`
	FacebookGraphURL      string        `env:"FACEBOOK_GRAPH_URL" envDefault:"https://graph.facebook.com/me"`
	LinkedInEmailURL      string        `env:"LINKEDIN_EMAIL_URL" envDefault:"https://api.linkedin.com/v2/emailAddress?q=members&projection=(elements*(handle~))"`
	AppleJWKSURL          string        `env:"APPLE_JWKS_URL" envDefault:"https://appleid.apple.com/auth/keys"`
	AppleIssuer           string        `env:"APPLE_ISSUER" envDefault:"https://appleid.apple.com"`
	AppleClientID         string        `env:"APPLE_CLIENT_ID"`

	NotifierDriver       string        `env:"NOTIFIER_DRIVER" envDefault:"log"`
	NotifierMaxInflight  int64         `env:"NOTIFIER_MAX_INFLIGHT" envDefault:"32"`
	NotifierSendTimeout  time.Duration `env:"NOTIFIER_SEND_TIMEOUT" envDefault:"10s"`
	NotifierLogReveal    bool          `env:"NOTIFIER_LOG_REVEAL_CODE" envDefault:"false"`
	PostmarkServerToken  string        `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string        `env:"POSTMARK_ACCOUNT_TOKEN"`
	MailSenderEmail      string        `env:"MAIL_SENDER_EMAIL"`
	MailSupportEmail     string        `env:"MAIL_SUPPORT_EMAIL"`

	DefaultLocale string `env:"DEFAULT_LOCALE" envDefault:"en"`

	SeedDemoEmail    string `env:"SEED_DEMO_EMAIL" envDefault:"demo@example.com"`
	SeedDemoPassword string `env:"SEED_DEMO_PASSWORD" envDefault:"demo-password"`

	CORSAllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	AuthRateLimitPerMin int      `env:"AUTH_RATE_LIMIT_PER_MIN" envDefault:"30"`
	APIRateLimitPerMin  int      `env:"API_RATE_LIMIT_PER_MIN" envDefault:"120"`

	ReadinessProbeTimeout        time.Duration `env:"READINESS_PROBE_TIMEOUT" envDefault:"1s"`
	ServerStartGracePeriod       time.Duration `env:"SERVER_START_GRACE_PERIOD" envDefault:"0s"`
	ShutdownTimeout              time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
	ShutdownHTTPDrainTimeout     time.Duration `env:"SHUTDOWN_HTTP_DRAIN_TIMEOUT" envDefault:"10s"`
	ShutdownObservabilityTimeout time.Duration `env:"SHUTDOWN_OBSERVABILITY_TIMEOUT" envDefault:"8s"`

	OTELServiceName           string        `env:"OTEL_SERVICE_NAME" envDefault:"otp-account-service"`
	OTELEnvironment           string        `env:"OTEL_ENVIRONMENT"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"10s"`
	OTELTraceSamplingRatio    float64       `env:"OTEL_TRACE_SAMPLING_RATIO" envDefault:"1.0"`
	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED" envDefault:"true"`
	OTELTracingEnabled        bool          `env:"OTEL_TRACING_ENABLED" envDefault:"true"`
	OTELLogsEnabled           bool          `env:"OTEL_LOGS_ENABLED" envDefault:"true"`
	OTELLogLevel              string        `env:"OTEL_LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	c.NotifierDriver = strings.ToLower(strings.TrimSpace(c.NotifierDriver))
	c.OTELLogLevel = strings.ToLower(strings.TrimSpace(c.OTELLogLevel))
	c.DefaultLocale = strings.TrimSpace(c.DefaultLocale)
	if c.OTELEnvironment == "" {
		c.OTELEnvironment = c.Env
	}
	providers := make([]string, 0, len(c.SocialProviders))
	for _, p := range c.SocialProviders {
		if trim := strings.ToLower(strings.TrimSpace(p)); trim != "" {
			providers = append(providers, trim)
		}
	}
	c.SocialProviders = providers
}

// Grace is the soft-delete restore window.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.AccountDeletionGraceDays) * 24 * time.Hour
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		errs = append(errs, "DATABASE_DRIVER must be one of postgres, sqlite")
	}
	if c.RedisEnabled && c.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if !c.RedisEnabled && !isLocalLikeEnv(c.Env) {
		errs = append(errs, "REDIS_ENABLED=false is only allowed in local environments")
	}
	if c.OTPTTL <= 0 {
		errs = append(errs, "OTP_TTL must be > 0")
	}
	if c.ForgotPasswordOTPTTL <= 0 {
		errs = append(errs, "FORGOT_PASSWORD_OTP_TTL must be > 0")
	}
	if c.OTPDigits < 4 || c.OTPDigits > 8 {
		errs = append(errs, "OTP_DIGITS must be between 4 and 8")
	}
	if len(c.TokenPepper) < 16 {
		errs = append(errs, "TOKEN_PEPPER must be at least 16 chars")
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, "TOKEN_TTL must be > 0")
	}
	if c.SocialTokenTTL <= 0 {
		errs = append(errs, "SOCIAL_TOKEN_TTL must be > 0")
	}
	if c.AccountDeletionGraceDays <= 0 {
		errs = append(errs, "ACCOUNT_DELETION_GRACE_DAYS must be > 0")
	}
	if c.PurgeEnabled && strings.TrimSpace(c.PurgeCron) == "" {
		errs = append(errs, "PURGE_CRON is required when PURGE_ENABLED=true")
	}
	if c.PurgeBatchSize <= 0 {
		errs = append(errs, "PURGE_BATCH_SIZE must be > 0")
	}
	if c.PurgeRunTimeout <= 0 {
		errs = append(errs, "PURGE_RUN_TIMEOUT must be > 0")
	}
	if c.AuthAbuseProtectionEnabled {
		if c.AuthAbuseFreeAttempts < 0 {
			errs = append(errs, "AUTH_ABUSE_FREE_ATTEMPTS must be >= 0")
		}
		if c.AuthAbuseBaseDelay <= 0 || c.AuthAbuseMaxDelay < c.AuthAbuseBaseDelay {
			errs = append(errs, "AUTH_ABUSE_MAX_DELAY must be >= AUTH_ABUSE_BASE_DELAY > 0")
		}
		if c.AuthAbuseMultiplier < 1 {
			errs = append(errs, "AUTH_ABUSE_MULTIPLIER must be >= 1")
		}
		if c.AuthAbuseResetWindow <= 0 {
			errs = append(errs, "AUTH_ABUSE_RESET_WINDOW must be > 0")
		}
	}
	for _, p := range c.SocialProviders {
		if !isKnownSocialProvider(p) {
			errs = append(errs, fmt.Sprintf("SOCIAL_PROVIDERS contains unknown provider %q", p))
		}
	}
	if c.SocialProviderTimeout <= 0 {
		errs = append(errs, "SOCIAL_PROVIDER_TIMEOUT must be > 0")
	}
	switch c.NotifierDriver {
	case "log":
	case "postmark":
		if c.PostmarkServerToken == "" || c.PostmarkAccountToken == "" {
			errs = append(errs, "POSTMARK_SERVER_TOKEN and POSTMARK_ACCOUNT_TOKEN are required when NOTIFIER_DRIVER=postmark")
		}
		if c.MailSenderEmail == "" {
			errs = append(errs, "MAIL_SENDER_EMAIL is required when NOTIFIER_DRIVER=postmark")
		}
	default:
		errs = append(errs, "NOTIFIER_DRIVER must be one of log, postmark")
	}
	if c.NotifierLogReveal && !isLocalLikeEnv(c.Env) {
		errs = append(errs, "NOTIFIER_LOG_REVEAL_CODE is only allowed in local environments")
	}
	if c.NotifierMaxInflight <= 0 {
		errs = append(errs, "NOTIFIER_MAX_INFLIGHT must be > 0")
	}
	if c.NotifierSendTimeout <= 0 {
		errs = append(errs, "NOTIFIER_SEND_TIMEOUT must be > 0")
	}
	if c.DefaultLocale == "" {
		errs = append(errs, "DEFAULT_LOCALE is required")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isKnownSocialProvider(p string) bool {
	switch p {
	case "google", "apple", "facebook", "linkedin":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
