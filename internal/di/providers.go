package di

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/otp-account-service/internal/app"
	"github.com/sandeepkv93/otp-account-service/internal/config"
	"github.com/sandeepkv93/otp-account-service/internal/database"
	"github.com/sandeepkv93/otp-account-service/internal/health"
	"github.com/sandeepkv93/otp-account-service/internal/http/handler"
	"github.com/sandeepkv93/otp-account-service/internal/http/middleware"
	"github.com/sandeepkv93/otp-account-service/internal/http/router"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/repository"
	"github.com/sandeepkv93/otp-account-service/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
	provideDictionary,
)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewMessagingTokenRepository,
	repository.NewAccessTokenRepository,
)

var ServiceSet = wire.NewSet(
	provideCodeStore,
	provideOTPNotifier,
	wire.Bind(new(service.OTPNotifier), new(*service.AsyncOTPNotifier)),
	provideOTPService,
	provideTokenService,
	provideAccountLifecycleService,
	provideSocialProviderRegistry,
	provideAuthAbuseGuard,
	provideAuthSettings,
	service.NewAuthService,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	wire.Bind(new(middleware.UserLookup), new(*service.AuthService)),
	providePurgeScheduler,
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	handler.NewUserHandler,
	provideAPIRateLimiter,
	provideAuthRateLimiter,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	logger := observability.InitLogger(cfg, runtime.LoggerProvider)
	slog.SetDefault(logger)
	return logger
}

func provideRuntimeDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideDictionary(cfg *config.Config) (*i18n.Dictionary, error) {
	return i18n.Load(cfg.DefaultLocale)
}

// composeRedisPrefix namespaces every redis key family under the service prefix.
func composeRedisPrefix(namespace, prefix string) string {
	namespace = strings.TrimSpace(namespace)
	prefix = strings.TrimSpace(prefix)
	if namespace == "" {
		namespace = "oas"
	}
	if prefix == "" {
		return namespace
	}
	return namespace + ":" + prefix
}

func provideCodeStore(cfg *config.Config, redisClient redis.UniversalClient) service.CodeStore {
	if redisClient == nil {
		return service.NewInMemoryCodeStore()
	}
	return service.NewRedisCodeStore(redisClient, composeRedisPrefix(cfg.RedisKeyPrefix, "otp"))
}

func provideOTPNotifier(cfg *config.Config, dict *i18n.Dictionary, logger *slog.Logger) (*service.AsyncOTPNotifier, error) {
	var next service.OTPNotifier
	switch cfg.NotifierDriver {
	case "postmark":
		pm, err := service.NewPostmarkOTPNotifier(service.PostmarkConfig{
			ServerToken:  cfg.PostmarkServerToken,
			AccountToken: cfg.PostmarkAccountToken,
			SenderEmail:  cfg.MailSenderEmail,
			SupportEmail: cfg.MailSupportEmail,
		}, dict)
		if err != nil {
			return nil, err
		}
		next = pm
	default:
		next = service.NewLogOTPNotifier(logger, cfg.NotifierLogReveal)
	}
	return service.NewAsyncOTPNotifier(next, cfg.NotifierMaxInflight, cfg.NotifierSendTimeout, logger), nil
}

func provideOTPService(cfg *config.Config, store service.CodeStore, notifier service.OTPNotifier, logger *slog.Logger) *service.OTPService {
	return service.NewOTPService(store, notifier, cfg.OTPDigits, cfg.OTPTTL, logger)
}

func provideTokenService(cfg *config.Config, repo repository.AccessTokenRepository, logger *slog.Logger) *service.TokenService {
	return service.NewTokenService(repo, cfg.TokenPepper, logger)
}

func provideAccountLifecycleService(cfg *config.Config, users repository.UserRepository, logger *slog.Logger) *service.AccountLifecycleService {
	return service.NewAccountLifecycleService(users, cfg.Grace(), cfg.PurgeBatchSize, logger)
}

func provideSocialProviderRegistry(cfg *config.Config) (*service.SocialProviderRegistry, error) {
	return service.BuildSocialProviderRegistry(cfg.SocialProviders, service.SocialProviderConfig{
		Timeout:        cfg.SocialProviderTimeout,
		GoogleUserInfo: cfg.GoogleUserInfoURL,
		FacebookGraph:  cfg.FacebookGraphURL,
		LinkedInEmail:  cfg.LinkedInEmailURL,
		AppleJWKS:      cfg.AppleJWKSURL,
		AppleIssuer:    cfg.AppleIssuer,
		AppleClientID:  cfg.AppleClientID,
	})
}

func provideAuthAbuseGuard(cfg *config.Config, redisClient redis.UniversalClient) service.AttemptGuard {
	if !cfg.AuthAbuseProtectionEnabled {
		return service.NoopAttemptGuard{}
	}
	policy := service.AttemptPolicy{
		FreeAttempts: cfg.AuthAbuseFreeAttempts,
		BaseDelay:    cfg.AuthAbuseBaseDelay,
		Multiplier:   cfg.AuthAbuseMultiplier,
		MaxDelay:     cfg.AuthAbuseMaxDelay,
		ResetWindow:  cfg.AuthAbuseResetWindow,
	}
	if redisClient != nil {
		return service.NewRedisAttemptGuard(redisClient, composeRedisPrefix(cfg.RedisKeyPrefix, "attempts"), policy)
	}
	return service.NewInMemoryAttemptGuard(policy)
}

func provideAuthSettings(cfg *config.Config) service.AuthSettings {
	return service.AuthSettings{
		TokenTTL:             cfg.TokenTTL,
		SocialTokenTTL:       cfg.SocialTokenTTL,
		OTPTTL:               cfg.OTPTTL,
		ForgotPasswordOTPTTL: cfg.ForgotPasswordOTPTTL,
		ResetRevokesSessions: cfg.ResetRevokesSessions,
	}
}

// providePurgeScheduler returns nil when PURGE_ENABLED=false.
func providePurgeScheduler(
	cfg *config.Config,
	lifecycle *service.AccountLifecycleService,
	tokens *service.TokenService,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
) *service.PurgeScheduler {
	if !cfg.PurgeEnabled {
		return nil
	}
	var lock service.PurgeLock
	if redisClient != nil {
		lock = service.NewRedisPurgeLock(redisClient, composeRedisPrefix(cfg.RedisKeyPrefix, "purge"))
	}
	return service.NewPurgeScheduler(lifecycle, tokens, lock, cfg.PurgeCron, cfg.PurgeRunTimeout, logger)
}

func provideAuthHandler(authSvc service.AuthServiceInterface, dict *i18n.Dictionary, otp *service.OTPService) *handler.AuthHandler {
	return handler.NewAuthHandler(authSvc, dict, otp.Digits())
}

func provideAPIRateLimiter(cfg *config.Config, redisClient redis.UniversalClient, dict *i18n.Dictionary) router.APIRateLimiterFunc {
	if redisClient != nil {
		redisLimiter := middleware.NewRedisFixedWindowLimiter(redisClient, composeRedisPrefix(cfg.RedisKeyPrefix, "rl"))
		return middleware.NewDistributedRateLimiter(
			redisLimiter,
			cfg.APIRateLimitPerMin,
			time.Minute,
			middleware.FailOpen,
			"api",
			dict,
		).Middleware()
	}
	return middleware.NewRateLimiter(cfg.APIRateLimitPerMin, time.Minute, "api", dict).Middleware()
}

func provideAuthRateLimiter(cfg *config.Config, redisClient redis.UniversalClient, dict *i18n.Dictionary) router.AuthRateLimiterFunc {
	if redisClient != nil {
		redisLimiter := middleware.NewRedisFixedWindowLimiter(redisClient, composeRedisPrefix(cfg.RedisKeyPrefix, "rl"))
		return middleware.NewDistributedRateLimiter(
			redisLimiter,
			cfg.AuthRateLimitPerMin,
			time.Minute,
			middleware.FailClosed,
			"auth",
			dict,
		).Middleware()
	}
	return middleware.NewRateLimiter(cfg.AuthRateLimitPerMin, time.Minute, "auth", dict).Middleware()
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	users middleware.UserLookup,
	tokens *service.TokenService,
	dict *i18n.Dictionary,
	apiRateLimiter router.APIRateLimiterFunc,
	authRateLimiter router.AuthRateLimiterFunc,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:      authHandler,
		UserHandler:      userHandler,
		Users:            users,
		Tokens:           tokens,
		RestoringTokens:  tokens.AllowingSoftDeleted(),
		Dictionary:       dict,
		CORSOrigins:      cfg.CORSAllowedOrigins,
		AuthRateLimitRPM: cfg.AuthRateLimitPerMin,
		APIRateLimitRPM:  cfg.APIRateLimitPerMin,
		APIRateLimiter:   apiRateLimiter,
		AuthRateLimiter:  authRateLimiter,
		Readiness:        readiness,
		EnableOTelHTTP:   cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, cfg.ServerStartGracePeriod,
		health.NewDBChecker(db),
		health.NewRedisChecker(redisClient, composeRedisPrefix(cfg.RedisKeyPrefix, "health")),
	)
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
	purge *service.PurgeScheduler,
	notifier *service.AsyncOTPNotifier,
) *app.App {
	var scheduler app.Scheduler
	if purge != nil {
		scheduler = purge
	}
	var drainer app.Drainer
	if notifier != nil {
		drainer = notifier
	}
	return app.New(cfg, logger, server, runtime, db, redisClient, readiness, scheduler, drainer)
}
