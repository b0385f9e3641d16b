package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"golang.org/x/text/language"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/http/middleware"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/service"
	servicegomock "github.com/sandeepkv93/otp-account-service/internal/service/gomock"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func testDictionary(t *testing.T) *i18n.Dictionary {
	t.Helper()
	dict, err := i18n.Load("en")
	if err != nil {
		t.Fatalf("load dictionary: %v", err)
	}
	return dict
}

func newAuthHandlerForTest(t *testing.T) (*AuthHandler, *servicegomock.MockAuthServiceInterface) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := servicegomock.NewMockAuthServiceInterface(ctrl)
	return NewAuthHandler(svc, testDictionary(t), 4), svc
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:5555"
	return req
}

func withLanguage(req *http.Request, tag language.Tag) *http.Request {
	return req.WithContext(i18n.WithLanguage(req.Context(), tag))
}

func withToken(req *http.Request, userID, raw string) *http.Request {
	tok := &domain.AccessToken{ID: "tok-1", UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}
	return req.WithContext(middleware.WithAccessToken(req.Context(), tok, raw))
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v body=%s", err, rr.Body.String())
	}
	return env
}

func sampleUser() *domain.User {
	return &domain.User{ID: "u-1", Email: "ana@example.com", PasswordHash: "$argon2id$secret", FirstName: "Ana", Verified: true, RegisterSource: domain.RegisterSourceStandard}
}

func TestRegisterValidationMatrix(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"empty body", ``, "body"},
		{"not json", `nope`, "body"},
		{"missing email", `{"password":"secret1"}`, "email"},
		{"bad email", `{"email":"not-an-email","password":"secret1"}`, "email"},
		{"display name email", `{"email":"Ana <ana@example.com>","password":"secret1"}`, "email"},
		{"short password", `{"email":"ana@example.com","password":"12345"}`, "password"},
		{"whitespace password", `{"email":"ana@example.com","password":"     1   "}`, "password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newAuthHandlerForTest(t)
			rr := httptest.NewRecorder()
			h.Register(rr, jsonRequest(http.MethodPost, "/api/v1/auth/register", tc.body))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			env := decodeEnvelope(t, rr)
			if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
				t.Fatalf("unexpected envelope %+v", env)
			}
			if _, ok := env.Error.Details[tc.wantField]; !ok {
				t.Fatalf("expected %q in details, got %v", tc.wantField, env.Error.Details)
			}
		})
	}
}

func TestRegisterReturnsCreatedWithOTPTicketAndNoSecrets(t *testing.T) {
	h, svc := newAuthHandlerForTest(t)
	user := sampleUser()
	user.Verified = false
	svc.EXPECT().Register(gomock.Any(), service.RegisterInput{
		Email:          "ana@example.com",
		Password:       "secret1",
		FirstName:      "Ana",
		MessagingToken: "fcm-1",
	}).Return(&service.AuthResult{
		User: user,
		OTP:  &service.OTPTicket{Email: user.Email, TTL: 5 * time.Minute, ExpiresAt: time.Now().Add(5 * time.Minute), Type: domain.OTPTypeAccountCreation},
	}, nil)

	rr := httptest.NewRecorder()
	body := `{"email":" ana@example.com ","password":"secret1","firstName":" Ana ","messagingToken":"fcm-1"}`
	h.Register(rr, jsonRequest(http.MethodPost, "/api/v1/auth/register", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	if !env.Success || env.Message != testDictionary(t).Message(language.English, "account_created", nil) {
		t.Fatalf("unexpected envelope %+v", env)
	}
	var data struct {
		User  map[string]any `json:"user"`
		Token any            `json:"token"`
		OTP   map[string]any `json:"otp"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Token != nil {
		t.Fatalf("register must not return a token: %v", data.Token)
	}
	if data.OTP["otpExpiry"] != float64(300) || data.OTP["type"] != "accountCreation" {
		t.Fatalf("unexpected otp ticket %v", data.OTP)
	}
	if strings.Contains(rr.Body.String(), "argon2id") || strings.Contains(rr.Body.String(), "password") {
		t.Fatalf("response leaked credential material: %s", rr.Body.String())
	}
	if data.User["firstName"] != "Ana" || data.User["verified"] != false {
		t.Fatalf("unexpected user view %v", data.User)
	}
}

func TestLoginErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown user", service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"bad password", service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"purged", service.ErrPermanentlyDeleted, http.StatusUnauthorized, "PERMANENTLY_DELETED"},
		{"not verified", &service.NotVerifiedError{Email: "ana@example.com", OTPTTL: 5 * time.Minute, Type: domain.OTPTypeAccountCreation}, http.StatusForbidden, "NOT_VERIFIED"},
		{"cooldown", &service.CooldownError{RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS"},
		{"store failure", errors.New("db down"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, svc := newAuthHandlerForTest(t)
			svc.EXPECT().Login(gomock.Any(), service.LoginInput{Email: "ana@example.com", Password: "pw", ClientIP: "203.0.113.9"}).Return(nil, tc.err)

			rr := httptest.NewRecorder()
			h.Login(rr, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":"ana@example.com","password":"pw"}`))
			if rr.Code != tc.wantStatus {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.wantStatus, rr.Body.String())
			}
			env := decodeEnvelope(t, rr)
			if env.Error == nil || env.Error.Code != tc.wantCode {
				t.Fatalf("unexpected envelope %s", rr.Body.String())
			}
			if strings.Contains(rr.Body.String(), "db down") {
				t.Fatal("internal error details must not reach the client")
			}
			if tc.wantCode == "TOO_MANY_ATTEMPTS" && rr.Header().Get("Retry-After") != "2" {
				t.Fatalf("expected Retry-After=2, got %q", rr.Header().Get("Retry-After"))
			}
			if tc.wantCode == "NOT_VERIFIED" && env.Error.Details["otpExpiry"] != float64(300) {
				t.Fatalf("expected otp expiry in details, got %v", env.Error.Details)
			}
		})
	}
}

func TestLoginSuccessLocalized(t *testing.T) {
	h, svc := newAuthHandlerForTest(t)
	dict := testDictionary(t)
	svc.EXPECT().Login(gomock.Any(), gomock.Any()).Return(&service.AuthResult{
		User:  sampleUser(),
		Token: &service.IssuedToken{Type: "bearer", Token: "oat_abc", ExpiresAt: time.Now().Add(time.Hour)},
	}, nil)

	rr := httptest.NewRecorder()
	req := withLanguage(jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":"ana@example.com","password":"pw"}`), language.Spanish)
	h.Login(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	if env.Message != dict.Message(language.Spanish, "login_success", nil) {
		t.Fatalf("expected spanish message, got %q", env.Message)
	}
	if !strings.Contains(string(env.Data), `"token":"oat_abc"`) {
		t.Fatalf("expected token in data: %s", env.Data)
	}
}

func TestLoginOtherSourceValidatesSourceAndAcceptsLegacyTokenField(t *testing.T) {
	h, svc := newAuthHandlerForTest(t)

	rr := httptest.NewRecorder()
	h.LoginOtherSource(rr, jsonRequest(http.MethodPost, "/", `{"accessToken":"x","source":"standard"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("standard source must be rejected, got %d", rr.Code)
	}

	svc.EXPECT().SocialLogin(gomock.Any(), service.SocialLoginInput{Source: domain.RegisterSourceApple, AccessToken: "id-token"}).
		Return(nil, service.ErrUpstreamUnavailable)
	rr = httptest.NewRecorder()
	h.LoginOtherSource(rr, jsonRequest(http.MethodPost, "/", `{"access_token":"id-token","source":"Apple"}`))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for upstream failure, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestVerifyOTPValidatesCodeLength(t *testing.T) {
	h, svc := newAuthHandlerForTest(t)
	for _, code := range []string{"123", "12345", "12a4", ""} {
		rr := httptest.NewRecorder()
		h.VerifyOTP(rr, jsonRequest(http.MethodPost, "/", `{"email":"ana@example.com","verificationCode":"`+code+`","type":"accountCreation"}`))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("code %q: expected 400, got %d", code, rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	h.VerifyOTP(rr, jsonRequest(http.MethodPost, "/", `{"email":"ana@example.com","verificationCode":"1234","type":"signup"}`))
	if env := decodeEnvelope(t, rr); env.Error == nil || env.Error.Details["type"] == nil {
		t.Fatalf("expected type validation error, got %s", rr.Body.String())
	}

	svc.EXPECT().VerifyOTP(gomock.Any(), service.VerifyOTPInput{Email: "ana@example.com", Code: "1234", Type: domain.OTPTypeForgotPassword, ClientIP: "203.0.113.9"}).
		Return(&service.AuthResult{}, nil)
	rr = httptest.NewRecorder()
	h.VerifyOTP(rr, jsonRequest(http.MethodPost, "/", `{"email":"ana@example.com","verificationCode":"1234","type":"forgotPassword"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); len(env.Data) != 0 {
		t.Fatalf("forgot-password verify must not return data, got %s", env.Data)
	}
}

func TestVerifyOTPErrorCodes(t *testing.T) {
	for err, code := range map[error]string{
		service.ErrOTPMismatch:       "OTP_MISMATCH",
		service.ErrOTPNotFound:       "OTP_EXPIRED",
		service.ErrOTPAlreadyPending: "OTP_ALREADY_PENDING",
	} {
		h, svc := newAuthHandlerForTest(t)
		svc.EXPECT().VerifyOTP(gomock.Any(), gomock.Any()).Return(nil, err)
		rr := httptest.NewRecorder()
		h.VerifyOTP(rr, jsonRequest(http.MethodPost, "/", `{"email":"ana@example.com","verificationCode":"1234","type":"accountCreation"}`))
		env := decodeEnvelope(t, rr)
		if rr.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != code {
			t.Fatalf("%v: status=%d body=%s", err, rr.Code, rr.Body.String())
		}
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	h, svc := newAuthHandlerForTest(t)
	svc.EXPECT().ForgotPassword(gomock.Any(), "ana@example.com").
		Return(&service.OTPTicket{Email: "ana@example.com", TTL: 10 * time.Minute, Type: domain.OTPTypeForgotPassword}, nil)
	rr := httptest.NewRecorder()
	h.ForgotPassword(rr, jsonRequest(http.MethodPost, "/", `{"email":"ana@example.com"}`))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"otpExpiry":600`) {
		t.Fatalf("unexpected forgot response %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ResetPassword(rr, jsonRequest(http.MethodPost, "/", `{"email":"ana@example.com","verificationCode":"1234","newPassword":"123"}`))
	if env := decodeEnvelope(t, rr); rr.Code != http.StatusBadRequest || env.Error.Details["newPassword"] == nil {
		t.Fatalf("expected newPassword validation error, got %s", rr.Body.String())
	}

	svc.EXPECT().ResetPassword(gomock.Any(), service.ResetPasswordInput{Email: "ana@example.com", Code: "1234", NewPassword: "new-secret", ClientIP: "203.0.113.9"}).Return(nil)
	rr = httptest.NewRecorder()
	h.ResetPassword(rr, jsonRequest(http.MethodPost, "/", `{"email":"ana@example.com","verificationCode":"1234","newPassword":"new-secret"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRequestOTP(t *testing.T) {
	h, svc := newAuthHandlerForTest(t)
	svc.EXPECT().RequestOTP(gomock.Any(), "ana@example.com", domain.OTPTypeAccountCreation).Return(nil, service.ErrOTPAlreadyPending)
	rr := httptest.NewRecorder()
	h.RequestOTP(rr, jsonRequest(http.MethodPost, "/", `{"email":"ana@example.com","type":"accountCreation"}`))
	if env := decodeEnvelope(t, rr); rr.Code != http.StatusBadRequest || env.Error.Code != "OTP_ALREADY_PENDING" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestTokenLoginAndLogoutUseAuthenticatedToken(t *testing.T) {
	h, svc := newAuthHandlerForTest(t)

	rr := httptest.NewRecorder()
	h.TokenLogin(rr, jsonRequest(http.MethodPost, "/", `{}`))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token context, got %d", rr.Code)
	}

	svc.EXPECT().TokenLogin(gomock.Any(), "u-1", service.TokenLoginInput{MessagingToken: "fcm-2"}).
		Return(&service.AuthResult{User: sampleUser()}, nil)
	rr = httptest.NewRecorder()
	h.TokenLogin(rr, withToken(jsonRequest(http.MethodPost, "/", `{"messagingToken":"fcm-2"}`), "u-1", "oat_raw"))
	if rr.Code != http.StatusOK {
		t.Fatalf("token login status=%d body=%s", rr.Code, rr.Body.String())
	}

	svc.EXPECT().TokenLogin(gomock.Any(), "u-1", service.TokenLoginInput{}).Return(&service.AuthResult{User: sampleUser()}, nil)
	rr = httptest.NewRecorder()
	req := withToken(httptest.NewRequest(http.MethodPost, "/", nil), "u-1", "oat_raw")
	h.TokenLogin(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("token login without body status=%d body=%s", rr.Code, rr.Body.String())
	}

	svc.EXPECT().Logout(gomock.Any(), "oat_raw").Return(nil)
	rr = httptest.NewRecorder()
	h.Logout(rr, withToken(httptest.NewRequest(http.MethodPost, "/", nil), "u-1", "oat_raw"))
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status=%d body=%s", rr.Code, rr.Body.String())
	}
}
