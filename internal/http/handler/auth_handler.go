package handler

import (
	"net/http"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/http/middleware"
	"github.com/sandeepkv93/otp-account-service/internal/http/response"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/service"
)

type AuthHandler struct {
	authSvc service.AuthServiceInterface
	dict    *i18n.Dictionary
	rules   validationRules
}

func NewAuthHandler(authSvc service.AuthServiceInterface, dict *i18n.Dictionary, otpDigits int) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, dict: dict, rules: newValidationRules(otpDigits)}
}

func (h *AuthHandler) message(r *http.Request, key string, args map[string]any) string {
	return h.dict.Message(i18n.LanguageFromContext(r.Context()), key, args)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register", status, time.Since(start))
	}()

	var req registerRequest
	if !decodeAndValidate(w, r, h.dict, h.rules, &req) {
		status = "invalid"
		return
	}
	res, err := h.authSvc.Register(r.Context(), service.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		MessagingToken: req.MessagingToken,
	})
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.register.failed", "reason", errorReason(err))
		writeServiceError(w, r, h.dict, err)
		return
	}
	observability.Audit(r, "auth.register.success", "user_id", res.User.ID)
	response.Message(w, r, http.StatusCreated, h.message(r, "account_created", nil), newAuthView(res))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var req loginRequest
	if !decodeAndValidate(w, r, h.dict, h.rules, &req) {
		status = "invalid"
		return
	}
	res, err := h.authSvc.Login(r.Context(), service.LoginInput{
		Email:          req.Email,
		Password:       req.Password,
		MessagingToken: req.MessagingToken,
		ClientIP:       middleware.ClientIP(r),
	})
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.login.failed", "provider", string(domain.RegisterSourceStandard), "reason", errorReason(err))
		writeServiceError(w, r, h.dict, err)
		return
	}
	observability.Audit(r, "auth.login.success", "user_id", res.User.ID, "provider", string(domain.RegisterSourceStandard))
	response.Message(w, r, http.StatusOK, h.message(r, "login_success", nil), newAuthView(res))
}

func (h *AuthHandler) LoginOtherSource(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login_other_source", status, time.Since(start))
	}()

	var req socialLoginRequest
	if !decodeAndValidate(w, r, h.dict, h.rules, &req) {
		status = "invalid"
		return
	}
	res, err := h.authSvc.SocialLogin(r.Context(), service.SocialLoginInput{
		Source:         req.source,
		AccessToken:    req.AccessToken,
		MessagingToken: req.MessagingToken,
	})
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.login.failed", "provider", string(req.source), "reason", errorReason(err))
		writeServiceError(w, r, h.dict, err)
		return
	}
	observability.Audit(r, "auth.login.success", "user_id", res.User.ID, "provider", string(req.source))
	response.Message(w, r, http.StatusOK, h.message(r, "social_login_success", nil), newAuthView(res))
}

// TokenLogin refreshes the session view for a client that already holds a
// valid bearer token.
func (h *AuthHandler) TokenLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "token_login", status, time.Since(start))
	}()

	token, ok := middleware.AccessTokenFromContext(r.Context())
	if !ok {
		status = "failure"
		writeServiceError(w, r, h.dict, service.ErrUnauthenticated)
		return
	}
	var req tokenLoginRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, h.dict, h.rules, &req) {
		status = "invalid"
		return
	}
	res, err := h.authSvc.TokenLogin(r.Context(), token.UserID, service.TokenLoginInput{MessagingToken: req.MessagingToken})
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.token_login.failed", "user_id", token.UserID, "reason", errorReason(err))
		writeServiceError(w, r, h.dict, err)
		return
	}
	observability.Audit(r, "auth.token_login.success", "user_id", token.UserID)
	response.Message(w, r, http.StatusOK, h.message(r, "token_login_success", nil), newAuthView(res))
}

func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "otp_request", status, time.Since(start))
	}()

	var req requestOTPRequest
	if !decodeAndValidate(w, r, h.dict, h.rules, &req) {
		status = "invalid"
		return
	}
	ticket, err := h.authSvc.RequestOTP(r.Context(), req.Email, req.otpType)
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.otp.request.failed", "type", string(req.otpType), "reason", errorReason(err))
		writeServiceError(w, r, h.dict, err)
		return
	}
	observability.Audit(r, "auth.otp.request.success", "type", string(req.otpType))
	response.Message(w, r, http.StatusOK, h.message(r, "otp_sent", nil), newOTPTicketView(ticket))
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "otp_verify", status, time.Since(start))
	}()

	var req verifyOTPRequest
	if !decodeAndValidate(w, r, h.dict, h.rules, &req) {
		status = "invalid"
		return
	}
	res, err := h.authSvc.VerifyOTP(r.Context(), service.VerifyOTPInput{
		Email:    req.Email,
		Code:     req.VerificationCode,
		Type:     req.otpType,
		ClientIP: middleware.ClientIP(r),
	})
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.otp.verify.failed", "type", string(req.otpType), "reason", errorReason(err))
		writeServiceError(w, r, h.dict, err)
		return
	}
	observability.Audit(r, "auth.otp.verify.success", "type", string(req.otpType))
	var data any
	if res != nil && res.User != nil {
		data = newAuthView(res)
	}
	response.Message(w, r, http.StatusOK, h.message(r, "otp_verified", nil), data)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "password_forgot", status, time.Since(start))
	}()

	var req emailRequest
	if !decodeAndValidate(w, r, h.dict, h.rules, &req) {
		status = "invalid"
		return
	}
	ticket, err := h.authSvc.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.password.forgot.failed", "reason", errorReason(err))
		writeServiceError(w, r, h.dict, err)
		return
	}
	observability.Audit(r, "auth.password.forgot.success")
	response.Message(w, r, http.StatusOK, h.message(r, "password_reset_otp_sent", nil), newOTPTicketView(ticket))
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "password_reset", status, time.Since(start))
	}()

	var req resetPasswordRequest
	if !decodeAndValidate(w, r, h.dict, h.rules, &req) {
		status = "invalid"
		return
	}
	err := h.authSvc.ResetPassword(r.Context(), service.ResetPasswordInput{
		Email:       req.Email,
		Code:        req.VerificationCode,
		NewPassword: req.NewPassword,
		ClientIP:    middleware.ClientIP(r),
	})
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.password.reset.failed", "reason", errorReason(err))
		writeServiceError(w, r, h.dict, err)
		return
	}
	observability.Audit(r, "auth.password.reset.success")
	response.Message(w, r, http.StatusOK, h.message(r, "password_reset_success", nil), nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "logout", status, time.Since(start))
	}()

	raw, ok := middleware.RawTokenFromContext(r.Context())
	if !ok {
		status = "failure"
		observability.Audit(r, "auth.logout.failed", "reason", "missing_auth_context")
		writeServiceError(w, r, h.dict, service.ErrUnauthenticated)
		return
	}
	if err := h.authSvc.Logout(r.Context(), raw); err != nil {
		status = "failure"
		observability.Audit(r, "auth.logout.failed", "reason", errorReason(err))
		writeServiceError(w, r, h.dict, err)
		return
	}
	token, _ := middleware.AccessTokenFromContext(r.Context())
	observability.Audit(r, "auth.logout.success", "user_id", token.UserID)
	response.Message(w, r, http.StatusOK, h.message(r, "logout_success", nil), nil)
}
