package repository

import (
	"context"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/domain"

	"gorm.io/gorm"
)

//go:generate mockgen -source=user_repository.go -destination=gomock/user_repository_mock.go -package=repogomock

type UserRepository interface {
	FindByEmail(ctx context.Context, email string, includeTrashed bool) (*domain.User, error)
	FindByID(ctx context.Context, id string, includeTrashed bool) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	SoftDelete(ctx context.Context, id string) error
	RestoreIfWithin(ctx context.Context, id string, cutoff time.Time) (bool, error)
	ListPurgeCandidates(ctx context.Context, cutoff time.Time, exclude []string, limit int) ([]domain.User, error)
	PurgeIfExpired(ctx context.Context, id string, cutoff time.Time) (bool, error)
	MarkVerified(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string, includeTrashed bool) (*domain.User, error) {
	q := r.db.WithContext(ctx)
	if includeTrashed {
		q = q.Unscoped()
	}
	var u domain.User
	err := translate(q.Where("email = ?", domain.NormalizeEmail(email)).First(&u).Error, ErrUserNotFound)
	recordOperation(ctx, "user", "find_by_email", err)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id string, includeTrashed bool) (*domain.User, error) {
	q := r.db.WithContext(ctx)
	if includeTrashed {
		q = q.Unscoped()
	}
	var u domain.User
	err := translate(q.Where("id = ?", id).First(&u).Error, ErrUserNotFound)
	recordOperation(ctx, "user", "find_by_id", err)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := translate(r.db.WithContext(ctx).Create(user).Error, ErrUserNotFound)
	recordOperation(ctx, "user", "create", err)
	return err
}

func (r *GormUserRepository) SoftDelete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.User{})
	err := translate(res.Error, ErrUserNotFound)
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	recordOperation(ctx, "user", "soft_delete", err)
	return err
}

// RestoreIfWithin clears deleted_at only while the deletion is newer than cutoff.
func (r *GormUserRepository) RestoreIfWithin(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Unscoped().Model(&domain.User{}).
		Where("id = ? AND deleted_at IS NOT NULL AND deleted_at > ?", id, cutoff).
		Update("deleted_at", nil)
	err := translate(res.Error, ErrUserNotFound)
	recordOperation(ctx, "user", "restore_if_within", err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected == 1, nil
}

// ListPurgeCandidates returns the oldest expired rows, leaving out the ids in
// exclude so a sweep can page past rows it already gave up on.
func (r *GormUserRepository) ListPurgeCandidates(ctx context.Context, cutoff time.Time, exclude []string, limit int) ([]domain.User, error) {
	q := r.db.WithContext(ctx).Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var users []domain.User
	err := q.Order("deleted_at asc").Order("id asc").
		Limit(limit).
		Find(&users).Error
	recordOperation(ctx, "user", "list_purge_candidates", err)
	return users, err
}

// PurgeIfExpired permanently removes the user and its tokens when the row is
// still soft-deleted at or before cutoff. A concurrent restore makes it a no-op.
func (r *GormUserRepository) PurgeIfExpired(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	purged := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Unscoped().
			Where("id = ? AND deleted_at IS NOT NULL AND deleted_at <= ?", id, cutoff).
			Delete(&domain.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		purged = true
		if err := tx.Where("user_id = ?", id).Delete(&domain.MessagingToken{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", id).Delete(&domain.AccessToken{}).Error
	})
	recordOperation(ctx, "user", "purge_if_expired", err)
	if err != nil {
		return false, err
	}
	return purged, nil
}

func (r *GormUserRepository) MarkVerified(ctx context.Context, id string) error {
	return r.updateColumn(ctx, "mark_verified", id, "verified", true)
}

func (r *GormUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateColumn(ctx, "update_password", id, "password_hash", passwordHash)
}

func (r *GormUserRepository) updateColumn(ctx context.Context, op, id, column string, value any) error {
	res := r.db.WithContext(ctx).Unscoped().Model(&domain.User{}).Where("id = ?", id).Update(column, value)
	err := translate(res.Error, ErrUserNotFound)
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	recordOperation(ctx, "user", op, err)
	return err
}
