package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlaceholderPasswordHash marks accounts created through a social provider.
// It is not a valid argon2id encoding, so password login can never match it.
const PlaceholderPasswordHash = "**"

type User struct {
	ID             string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email          string           `gorm:"uniqueIndex;size:254;not null" json:"email"`
	PasswordHash   string           `gorm:"size:1024;not null" json:"-"`
	FirstName      string           `gorm:"size:255" json:"first_name"`
	LastName       string           `gorm:"size:255" json:"last_name"`
	Verified       bool             `gorm:"not null;default:false" json:"verified"`
	RegisterSource RegisterSource   `gorm:"size:32;not null;default:standard" json:"register_source"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	DeletedAt      gorm.DeletedAt   `gorm:"index" json:"-"`
	Tokens         []MessagingToken `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.RegisterSource == "" {
		u.RegisterSource = RegisterSourceStandard
	}
	return nil
}

func (u *User) BeforeSave(*gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// State reports the lifecycle state encoded by DeletedAt.
func (u *User) State() AccountState {
	if u.DeletedAt.Valid {
		return SoftDeletedState(u.DeletedAt.Time)
	}
	return ActiveState()
}

// NormalizeEmail returns the identity key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
