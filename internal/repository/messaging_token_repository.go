package repository

import (
	"context"
	"strings"

	"github.com/sandeepkv93/otp-account-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:generate mockgen -source=messaging_token_repository.go -destination=gomock/messaging_token_repository_mock.go -package=repogomock

type MessagingTokenRepository interface {
	Attach(ctx context.Context, userID, token string) error
	ListByUserID(ctx context.Context, userID string) ([]domain.MessagingToken, error)
}

type GormMessagingTokenRepository struct{ db *gorm.DB }

func NewMessagingTokenRepository(db *gorm.DB) MessagingTokenRepository {
	return &GormMessagingTokenRepository{db: db}
}

// Attach records a device token for the user. An existing token is re-pointed
// to userID; attaching the same pair twice is a no-op.
func (r *GormMessagingTokenRepository) Attach(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	row := &domain.MessagingToken{UserID: userID, Token: token}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "updated_at"}),
	}).Create(row).Error
	err = translate(err, ErrUserNotFound)
	recordOperation(ctx, "messaging_token", "attach", err)
	return err
}

func (r *GormMessagingTokenRepository) ListByUserID(ctx context.Context, userID string) ([]domain.MessagingToken, error) {
	var tokens []domain.MessagingToken
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc").Find(&tokens).Error
	recordOperation(ctx, "messaging_token", "list_by_user_id", err)
	return tokens, err
}
