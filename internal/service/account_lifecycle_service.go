package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
	"github.com/sandeepkv93/otp-account-service/internal/repository"
)

type PurgeReport struct {
	Cutoff     time.Time `json:"cutoff"`
	Candidates int       `json:"candidates"`
	Purged     int       `json:"purged"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

// AccountLifecycleService owns the Active -> SoftDeleted -> (restored | purged)
// transitions.
type AccountLifecycleService struct {
	users     repository.UserRepository
	grace     time.Duration
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

func NewAccountLifecycleService(users repository.UserRepository, grace time.Duration, batchSize int, logger *slog.Logger) *AccountLifecycleService {
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountLifecycleService{users: users, grace: grace, batchSize: batchSize, now: time.Now, logger: logger}
}

// GraceDays is the restore window in whole days.
func (s *AccountLifecycleService) GraceDays() int { return int(s.grace / (24 * time.Hour)) }

func (s *AccountLifecycleService) Delete(ctx context.Context, user *domain.User) error {
	if err := s.users.SoftDelete(ctx, user.ID); err != nil {
		observability.RecordAccountLifecycleEvent(ctx, "delete", "error")
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("soft delete: %w", err)
	}
	observability.RecordAccountLifecycleEvent(ctx, "delete", "success")
	return nil
}

// RestoreIfNotExpired reports whether user may log in. A soft-deleted account
// inside the grace window is restored as a side effect.
func (s *AccountLifecycleService) RestoreIfNotExpired(ctx context.Context, user *domain.User) (bool, error) {
	state := user.State()
	switch state.Kind {
	case domain.AccountActive:
		return true, nil
	case domain.AccountSoftDeleted:
		now := s.now()
		if !state.WithinGrace(now, s.grace) {
			observability.RecordAccountLifecycleEvent(ctx, "restore", "expired")
			return false, nil
		}
		restored, err := s.users.RestoreIfWithin(ctx, user.ID, now.Add(-s.grace))
		if err != nil {
			observability.RecordAccountLifecycleEvent(ctx, "restore", "error")
			return false, fmt.Errorf("restore: %w", err)
		}
		if !restored {
			observability.RecordAccountLifecycleEvent(ctx, "restore", "expired")
			return false, nil
		}
		user.DeletedAt.Valid = false
		user.DeletedAt.Time = time.Time{}
		observability.RecordAccountLifecycleEvent(ctx, "restore", "success")
		return true, nil
	default:
		return false, fmt.Errorf("unknown account state %s", state.Kind)
	}
}

// PlanPurge lists up to one batch of accounts a sweep would remove now.
func (s *AccountLifecycleService) PlanPurge(ctx context.Context) (time.Time, []domain.User, error) {
	cutoff := s.now().Add(-s.grace)
	users, err := s.users.ListPurgeCandidates(ctx, cutoff, nil, s.batchSize)
	if err != nil {
		return cutoff, nil, fmt.Errorf("list purge candidates: %w", err)
	}
	return cutoff, users, nil
}

// PurgeExpired hard-deletes accounts whose grace window has elapsed. Each row
// is re-checked at delete time, so concurrent restores win. Per-row failures
// are logged and the sweep moves on.
func (s *AccountLifecycleService) PurgeExpired(ctx context.Context) (report PurgeReport, err error) {
	ctx, end := observability.StartSpan(ctx, "account.purge", attribute.Int("purge.batch_size", s.batchSize))
	defer func() { end(err) }()
	return s.purgeExpired(ctx)
}

func (s *AccountLifecycleService) purgeExpired(ctx context.Context) (PurgeReport, error) {
	cutoff := s.now().Add(-s.grace)
	report := PurgeReport{Cutoff: cutoff}
	// Failed and skipped rows can still match the candidate query, so later
	// pages leave them out and the sweep always moves forward.
	var exclude []string

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := s.users.ListPurgeCandidates(ctx, cutoff, exclude, s.batchSize)
		if err != nil {
			observability.RecordAccountLifecycleEvent(ctx, "purge", "error")
			return report, fmt.Errorf("list purge candidates: %w", err)
		}
		for _, u := range batch {
			report.Candidates++
			purged, err := s.users.PurgeIfExpired(ctx, u.ID, cutoff)
			switch {
			case err != nil:
				report.Failed++
				exclude = append(exclude, u.ID)
				s.logger.ErrorContext(ctx, "purge account failed", "user_id", u.ID, "error", err)
			case purged:
				report.Purged++
			default:
				report.Skipped++
				exclude = append(exclude, u.ID)
			}
		}
		if len(batch) < s.batchSize {
			break
		}
	}

	outcome := "success"
	if report.Failed > 0 {
		outcome = "partial"
	}
	observability.RecordAccountLifecycleEvent(ctx, "purge", outcome)
	s.logger.InfoContext(ctx, "account purge finished",
		"cutoff", cutoff,
		"candidates", report.Candidates,
		"purged", report.Purged,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}
