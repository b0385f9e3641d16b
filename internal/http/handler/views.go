package handler

import (
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/service"
)

// userView is the public projection of a user. It never carries the
// password hash.
type userView struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Verified       bool      `json:"verified"`
	RegisterSource string    `json:"registerSource"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func newUserView(u *domain.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Verified:       u.Verified,
		RegisterSource: string(u.RegisterSource),
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// otpTicketView tells a client a code is on its way. OTPExpiry is the TTL in
// seconds.
type otpTicketView struct {
	Email     string    `json:"email"`
	OTPExpiry int64     `json:"otpExpiry"`
	ExpiresAt time.Time `json:"expiresAt"`
	Type      string    `json:"type"`
}

func newOTPTicketView(t *service.OTPTicket) *otpTicketView {
	if t == nil {
		return nil
	}
	return &otpTicketView{
		Email:     t.Email,
		OTPExpiry: int64(t.TTL.Seconds()),
		ExpiresAt: t.ExpiresAt,
		Type:      string(t.Type),
	}
}

type authView struct {
	User  *userView            `json:"user"`
	Token *service.IssuedToken `json:"token,omitempty"`
	OTP   *otpTicketView       `json:"otp,omitempty"`
}

func newAuthView(res *service.AuthResult) authView {
	if res == nil {
		return authView{}
	}
	return authView{User: newUserView(res.User), Token: res.Token, OTP: newOTPTicketView(res.OTP)}
}
