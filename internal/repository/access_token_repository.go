package repository

import (
	"context"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/domain"

	"gorm.io/gorm"
)

//go:generate mockgen -source=access_token_repository.go -destination=gomock/access_token_repository_mock.go -package=repogomock

type AccessTokenRepository interface {
	Create(ctx context.Context, token *domain.AccessToken) error
	FindValidByHash(ctx context.Context, hash string, now time.Time, includeTrashedOwner bool) (*domain.AccessToken, error)
	Touch(ctx context.Context, id string, at time.Time) error
	DeleteByHash(ctx context.Context, hash string) error
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormAccessTokenRepository struct{ db *gorm.DB }

func NewAccessTokenRepository(db *gorm.DB) AccessTokenRepository {
	return &GormAccessTokenRepository{db: db}
}

func (r *GormAccessTokenRepository) Create(ctx context.Context, token *domain.AccessToken) error {
	err := translate(r.db.WithContext(ctx).Create(token).Error, ErrAccessTokenNotFound)
	recordOperation(ctx, "access_token", "create", err)
	return err
}

// FindValidByHash ignores expired tokens. Tokens whose owner is soft-deleted
// are ignored too unless includeTrashedOwner is set.
func (r *GormAccessTokenRepository) FindValidByHash(ctx context.Context, hash string, now time.Time, includeTrashedOwner bool) (*domain.AccessToken, error) {
	join := "JOIN users ON users.id = access_tokens.user_id AND users.deleted_at IS NULL"
	if includeTrashedOwner {
		join = "JOIN users ON users.id = access_tokens.user_id"
	}
	var t domain.AccessToken
	err := r.db.WithContext(ctx).
		Joins(join).
		Where("access_tokens.token_hash = ? AND access_tokens.expires_at > ?", hash, now).
		First(&t).Error
	err = translate(err, ErrAccessTokenNotFound)
	recordOperation(ctx, "access_token", "find_valid_by_hash", err)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormAccessTokenRepository) Touch(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.AccessToken{}).Where("id = ?", id).Update("last_used_at", at).Error
	recordOperation(ctx, "access_token", "touch", err)
	return err
}

func (r *GormAccessTokenRepository) DeleteByHash(ctx context.Context, hash string) error {
	res := r.db.WithContext(ctx).Where("token_hash = ?", hash).Delete(&domain.AccessToken{})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrAccessTokenNotFound
	}
	recordOperation(ctx, "access_token", "delete_by_hash", err)
	return err
}

func (r *GormAccessTokenRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.AccessToken{})
	recordOperation(ctx, "access_token", "delete_by_user_id", res.Error)
	return res.RowsAffected, res.Error
}

func (r *GormAccessTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.AccessToken{})
	recordOperation(ctx, "access_token", "delete_expired", res.Error)
	return res.RowsAffected, res.Error
}
