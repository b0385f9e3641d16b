package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/otp-account-service/internal/health"
	"github.com/sandeepkv93/otp-account-service/internal/http/handler"
	"github.com/sandeepkv93/otp-account-service/internal/http/middleware"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/service"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	UserHandler      *handler.UserHandler
	Users            middleware.UserLookup
	Tokens           service.TokenAuthenticator
	RestoringTokens  service.TokenAuthenticator
	Dictionary       *i18n.Dictionary
	CORSOrigins      []string
	AuthRateLimitRPM int
	APIRateLimitRPM  int
	APIRateLimiter   APIRateLimiterFunc
	AuthRateLimiter  AuthRateLimiterFunc
	Readiness        *health.ProbeRunner
	EnableOTelHTTP   bool
}

type APIRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.DetectLanguage(dep.Dictionary))
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1<<20, dep.Dictionary))

	r.Get("/health/live", health.LiveHandler)
	r.Get("/health/ready", dep.Readiness.ReadyHandler)

	apiLimiter := dep.APIRateLimiter
	if apiLimiter == nil {
		apiLimiter = middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api", dep.Dictionary).Middleware()
	}
	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth", dep.Dictionary).Middleware()
	}
	userMustNotExist := middleware.CheckUserDoesNotExist(dep.Users, dep.Dictionary)
	userMustExist := middleware.CheckUserExists(dep.Users, dep.Dictionary)
	bearer := middleware.BearerAuth(dep.Tokens, dep.Dictionary)
	// Token login must see soft-deleted owners to run the restore check.
	restoring := dep.RestoringTokens
	if restoring == nil {
		restoring = dep.Tokens
	}
	restoringBearer := middleware.BearerAuth(restoring, dep.Dictionary)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiLimiter)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(authLimiter)
				r.With(userMustNotExist).Post("/register", dep.AuthHandler.Register)
				r.With(userMustExist).Post("/login", dep.AuthHandler.Login)
				r.Post("/login-other-source", dep.AuthHandler.LoginOtherSource)
				r.With(userMustExist).Post("/otp/request", dep.AuthHandler.RequestOTP)
				r.With(userMustExist).Post("/otp/verify", dep.AuthHandler.VerifyOTP)
				r.With(userMustExist).Post("/password/forgot", dep.AuthHandler.ForgotPassword)
				r.With(userMustExist).Post("/password/reset", dep.AuthHandler.ResetPassword)
			})
			r.With(restoringBearer).Post("/token-login", dep.AuthHandler.TokenLogin)
			r.With(bearer).Post("/logout", dep.AuthHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(bearer)
			r.Get("/me", dep.UserHandler.Me)
			r.Delete("/me", dep.UserHandler.DeleteAccount)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
