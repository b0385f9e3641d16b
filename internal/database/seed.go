package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/security"

	"gorm.io/gorm"
)

type SeedReport struct {
	CreatedUsers int  `json:"created_users"`
	Noop         bool `json:"noop"`
}

// SeedUser describes one account ensured by Seed.
type SeedUser struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func Seed(db *gorm.DB, users []SeedUser) (*SeedReport, error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(context.Background(), "seed", time.Since(start))
	}()

	report := &SeedReport{}
	for _, su := range users {
		email := domain.NormalizeEmail(su.Email)
		if email == "" {
			continue
		}
		var existing domain.User
		err := db.Unscoped().Where("email = ?", email).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordDatabaseStartupEvent(context.Background(), "seed", "error")
			return nil, err
		}
		hash, err := security.HashPassword(su.Password)
		if err != nil {
			observability.RecordDatabaseStartupEvent(context.Background(), "seed", "error")
			return nil, fmt.Errorf("hash seed password: %w", err)
		}
		u := &domain.User{
			Email:          email,
			PasswordHash:   hash,
			FirstName:      su.FirstName,
			LastName:       su.LastName,
			Verified:       true,
			RegisterSource: domain.RegisterSourceStandard,
		}
		if err := db.Create(u).Error; err != nil {
			observability.RecordDatabaseStartupEvent(context.Background(), "seed", "error")
			return nil, err
		}
		report.CreatedUsers++
	}

	report.Noop = report.CreatedUsers == 0
	observability.RecordDatabaseStartupEvent(context.Background(), "seed", "success")
	return report, nil
}

func VerifyEmail(db *gorm.DB, email string) error {
	normalized := domain.NormalizeEmail(email)
	if normalized == "" {
		return fmt.Errorf("email is required")
	}
	tx := db.Model(&domain.User{}).Where("email = ?", normalized).Update("verified", true)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
