package domain

import (
	"fmt"
	"strings"
)

type RegisterSource string

const (
	RegisterSourceStandard RegisterSource = "standard"
	RegisterSourceGoogle   RegisterSource = "google"
	RegisterSourceApple    RegisterSource = "apple"
	RegisterSourceFacebook RegisterSource = "facebook"
	RegisterSourceLinkedIn RegisterSource = "linkedin"
)

var registerSources = []RegisterSource{
	RegisterSourceStandard,
	RegisterSourceGoogle,
	RegisterSourceApple,
	RegisterSourceFacebook,
	RegisterSourceLinkedIn,
}

func ParseRegisterSource(v string) (RegisterSource, error) {
	normalized := RegisterSource(strings.ToLower(strings.TrimSpace(v)))
	for _, s := range registerSources {
		if s == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown register source %q", v)
}

// IsSocial reports whether accounts from this source authenticate through a provider.
func (s RegisterSource) IsSocial() bool {
	switch s {
	case RegisterSourceGoogle, RegisterSourceApple, RegisterSourceFacebook, RegisterSourceLinkedIn:
		return true
	default:
		return false
	}
}

type OTPType string

const (
	OTPTypeAccountCreation OTPType = "accountCreation"
	OTPTypeForgotPassword  OTPType = "forgotPassword"
)

func ParseOTPType(v string) (OTPType, error) {
	switch OTPType(strings.TrimSpace(v)) {
	case OTPTypeAccountCreation:
		return OTPTypeAccountCreation, nil
	case OTPTypeForgotPassword:
		return OTPTypeForgotPassword, nil
	default:
		return "", fmt.Errorf("unknown otp type %q", v)
	}
}
