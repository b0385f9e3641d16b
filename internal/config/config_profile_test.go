package config

import (
	"strings"
	"testing"
	"time"
)

func validConfigForTest() *Config {
	return &Config{
		Env:                        "development",
		DatabaseDriver:             "postgres",
		DatabaseURL:                "postgres://x",
		RedisEnabled:               true,
		RedisAddr:                  "localhost:6379",
		OTPTTL:                     5 * time.Minute,
		ForgotPasswordOTPTTL:       10 * time.Minute,
		OTPDigits:                  4,
		TokenPepper:                "pepper-1234567890",
		TokenTTL:                   720 * time.Hour,
		SocialTokenTTL:             2400 * time.Hour,
		AccountDeletionGraceDays:   7,
		PurgeEnabled:               true,
		PurgeCron:                  "0 0 * * *",
		PurgeBatchSize:             500,
		PurgeRunTimeout:            10 * time.Minute,
		AuthAbuseProtectionEnabled: true,
		AuthAbuseFreeAttempts:      5,
		AuthAbuseBaseDelay:         2 * time.Second,
		AuthAbuseMultiplier:        2,
		AuthAbuseMaxDelay:          5 * time.Minute,
		AuthAbuseResetWindow:       30 * time.Minute,
		SocialProviders:            []string{"google", "apple"},
		SocialProviderTimeout:      5 * time.Second,
		NotifierDriver:             "log",
		NotifierMaxInflight:        8,
		NotifierSendTimeout:        10 * time.Second,
		DefaultLocale:              "en",
		AuthRateLimitPerMin:        30,
		APIRateLimitPerMin:         120,
		OTELTraceSamplingRatio:     1.0,
		OTELMetricsExportInterval:  10 * time.Second,
		OTELLogLevel:               "info",
	}
}

func TestValidateDevelopmentProfileAllowsRelaxedSettings(t *testing.T) {
	cfg := validConfigForTest()
	cfg.RedisEnabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected relaxed dev validation to pass: %v", err)
	}
}

func TestValidateProdProfileStrictRules(t *testing.T) {
	cfg := validConfigForTest()
	cfg.Env = "production"
	cfg.RedisEnabled = false
	cfg.TokenPepper = "short"
	cfg.NotifierLogReveal = true

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected strict prod validation errors")
	}
	for _, want := range []string{"REDIS_ENABLED=false", "TOKEN_PEPPER", "NOTIFIER_LOG_REVEAL_CODE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidateRejectsBadOTPAndProviderSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"otp digits too small", func(c *Config) { c.OTPDigits = 3 }, "OTP_DIGITS"},
		{"otp digits too large", func(c *Config) { c.OTPDigits = 9 }, "OTP_DIGITS"},
		{"zero otp ttl", func(c *Config) { c.OTPTTL = 0 }, "OTP_TTL"},
		{"unknown provider", func(c *Config) { c.SocialProviders = []string{"myspace"} }, "unknown provider"},
		{"zero grace", func(c *Config) { c.AccountDeletionGraceDays = 0 }, "ACCOUNT_DELETION_GRACE_DAYS"},
		{"bad database driver", func(c *Config) { c.DatabaseDriver = "mysql" }, "DATABASE_DRIVER"},
		{"postmark without tokens", func(c *Config) { c.NotifierDriver = "postmark" }, "POSTMARK_SERVER_TOKEN"},
		{"empty purge cron", func(c *Config) { c.PurgeCron = " " }, "PURGE_CRON"},
		{"abuse multiplier below one", func(c *Config) { c.AuthAbuseMultiplier = 0.5 }, "AUTH_ABUSE_MULTIPLIER"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfigForTest()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadAppliesDefaultsFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/app")
	t.Setenv("TOKEN_PEPPER", "pepper-1234567890")
	t.Setenv("SOCIAL_PROVIDERS", " Google, apple ,")
	t.Setenv("NOTIFIER_DRIVER", "LOG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OTPTTL != 5*time.Minute || cfg.ForgotPasswordOTPTTL != 10*time.Minute {
		t.Fatalf("unexpected otp ttls: %v %v", cfg.OTPTTL, cfg.ForgotPasswordOTPTTL)
	}
	if cfg.TokenTTL != 30*24*time.Hour || cfg.SocialTokenTTL != 100*24*time.Hour {
		t.Fatalf("unexpected token ttls: %v %v", cfg.TokenTTL, cfg.SocialTokenTTL)
	}
	if cfg.Grace() != 7*24*time.Hour {
		t.Fatalf("unexpected grace: %v", cfg.Grace())
	}
	if len(cfg.SocialProviders) != 2 || cfg.SocialProviders[0] != "google" {
		t.Fatalf("unexpected providers: %v", cfg.SocialProviders)
	}
	if cfg.NotifierDriver != "log" {
		t.Fatalf("expected normalized notifier driver, got %q", cfg.NotifierDriver)
	}
	if cfg.OTELEnvironment != "development" {
		t.Fatalf("expected otel environment to follow APP_ENV, got %q", cfg.OTELEnvironment)
	}
}
