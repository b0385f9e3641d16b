package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/otp-account-service/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAccessTokenNotFound = errors.New("access token not found")
	ErrDuplicate           = errors.New("duplicate record")
)

// translate maps gorm errors to repository sentinels. notFound is returned for missing rows.
func translate(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func recordOperation(ctx context.Context, repo, op string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrAccessTokenNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrDuplicate):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	observability.RecordRepositoryOperation(ctx, repo, op, outcome)
}
