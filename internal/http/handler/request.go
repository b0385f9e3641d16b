package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/http/response"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
)

const minPasswordLength = 6

// validationRules carries the configurable parts of request validation.
type validationRules struct {
	code *regexp.Regexp
}

func newValidationRules(otpDigits int) validationRules {
	if otpDigits <= 0 {
		otpDigits = 4
	}
	return validationRules{code: regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, otpDigits))}
}

type fieldErrors map[string]string

func (fe fieldErrors) add(field, message string) {
	if _, exists := fe[field]; !exists {
		fe[field] = message
	}
}

type validatedRequest interface {
	validate(rules validationRules, fe fieldErrors)
}

// decodeAndValidate decodes the JSON body into dst and runs its checks. It
// writes the 400 response itself and reports whether the handler may go on.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dict *i18n.Dictionary, rules validationRules, dst validatedRequest) bool {
	fe := fieldErrors{}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			fe.add("body", "too large")
		case errors.Is(err, io.EOF):
			fe.add("body", "is required")
		default:
			fe.add("body", "must be a JSON object")
		}
	} else {
		dst.validate(rules, fe)
	}
	if len(fe) == 0 {
		return true
	}
	msg := dict.Message(i18n.LanguageFromContext(r.Context()), "validation_failed", nil)
	response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", msg, map[string]string(fe))
	return false
}

func checkEmail(fe fieldErrors, field string, v *string) {
	*v = strings.TrimSpace(*v)
	if *v == "" {
		fe.add(field, "is required")
		return
	}
	addr, err := mail.ParseAddress(*v)
	if err != nil || addr.Address != *v {
		fe.add(field, "must be a valid email address")
	}
}

func checkPassword(fe fieldErrors, field string, v *string) {
	*v = strings.TrimSpace(*v)
	if len(*v) < minPasswordLength {
		fe.add(field, fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
}

func checkCode(fe fieldErrors, rules validationRules, field string, v *string) {
	*v = strings.TrimSpace(*v)
	if !rules.code.MatchString(*v) {
		fe.add(field, "must match "+rules.code.String())
	}
}

func checkOTPType(fe fieldErrors, field, v string) domain.OTPType {
	t, err := domain.ParseOTPType(v)
	if err != nil {
		fe.add(field, fmt.Sprintf("must be %q or %q", domain.OTPTypeAccountCreation, domain.OTPTypeForgotPassword))
	}
	return t
}

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	MessagingToken string `json:"messagingToken"`
}

func (req *registerRequest) validate(_ validationRules, fe fieldErrors) {
	checkEmail(fe, "email", &req.Email)
	checkPassword(fe, "password", &req.Password)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
}

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	MessagingToken string `json:"messagingToken"`
}

func (req *loginRequest) validate(_ validationRules, fe fieldErrors) {
	checkEmail(fe, "email", &req.Email)
	if strings.TrimSpace(req.Password) == "" {
		fe.add("password", "is required")
	}
}

type socialLoginRequest struct {
	AccessToken       string `json:"accessToken"`
	LegacyAccessToken string `json:"access_token"`
	Source            string `json:"source"`
	MessagingToken    string `json:"messagingToken"`

	source domain.RegisterSource
}

func (req *socialLoginRequest) validate(_ validationRules, fe fieldErrors) {
	if req.AccessToken == "" {
		req.AccessToken = req.LegacyAccessToken
	}
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	if req.AccessToken == "" {
		fe.add("accessToken", "is required")
	}
	source, err := domain.ParseRegisterSource(req.Source)
	if err != nil || !source.IsSocial() {
		fe.add("source", "must be one of google, apple, facebook, linkedin")
		return
	}
	req.source = source
}

type tokenLoginRequest struct {
	MessagingToken string `json:"messagingToken"`
}

func (req *tokenLoginRequest) validate(validationRules, fieldErrors) {
	req.MessagingToken = strings.TrimSpace(req.MessagingToken)
}

type requestOTPRequest struct {
	Email string `json:"email"`
	Type  string `json:"type"`

	otpType domain.OTPType
}

func (req *requestOTPRequest) validate(_ validationRules, fe fieldErrors) {
	checkEmail(fe, "email", &req.Email)
	req.otpType = checkOTPType(fe, "type", req.Type)
}

type verifyOTPRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
	Type             string `json:"type"`

	otpType domain.OTPType
}

func (req *verifyOTPRequest) validate(rules validationRules, fe fieldErrors) {
	checkEmail(fe, "email", &req.Email)
	checkCode(fe, rules, "verificationCode", &req.VerificationCode)
	req.otpType = checkOTPType(fe, "type", req.Type)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (req *emailRequest) validate(_ validationRules, fe fieldErrors) {
	checkEmail(fe, "email", &req.Email)
}

type resetPasswordRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
	NewPassword      string `json:"newPassword"`
}

func (req *resetPasswordRequest) validate(rules validationRules, fe fieldErrors) {
	checkEmail(fe, "email", &req.Email)
	checkCode(fe, rules, "verificationCode", &req.VerificationCode)
	checkPassword(fe, "newPassword", &req.NewPassword)
}
