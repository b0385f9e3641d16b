package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
)

func TestUserRepositoryEmailIsCaseInsensitive(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := &domain.User{Email: "A@B.com", PasswordHash: "hash"}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == "" || u.Email != "a@b.com" {
		t.Fatalf("expected generated id and normalized email, got %+v", u)
	}

	found, err := repo.FindByEmail(ctx, "a@B.COM", false)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if found.ID != u.ID {
		t.Fatalf("id mismatch: got %s want %s", found.ID, u.ID)
	}

	if err := repo.Create(ctx, &domain.User{Email: "a@b.com", PasswordHash: "x"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := repo.FindByEmail(ctx, "missing@b.com", true); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepositorySoftDeleteVisibility(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	u := createUserForTest(t, db, "gone@example.com")

	if err := repo.SoftDelete(ctx, u.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := repo.FindByEmail(ctx, u.Email, false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected trashed user hidden, got %v", err)
	}
	if _, err := repo.FindByID(ctx, u.ID, false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected trashed user hidden by id, got %v", err)
	}
	if byID, err := repo.FindByID(ctx, u.ID, true); err != nil || !byID.DeletedAt.Valid {
		t.Fatalf("expected trashed user by id when included, got %+v err=%v", byID, err)
	}
	trashed, err := repo.FindByEmail(ctx, u.Email, true)
	if err != nil {
		t.Fatalf("find trashed: %v", err)
	}
	if trashed.State().Kind != domain.AccountSoftDeleted {
		t.Fatalf("expected soft-deleted state, got %v", trashed.State().Kind)
	}
	if err := repo.SoftDelete(ctx, u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected second soft delete to report not found, got %v", err)
	}
}

func TestUserRepositoryRestoreIfWithin(t *testing.T) {
	now := time.Now().UTC()
	grace := 7 * 24 * time.Hour
	cutoff := now.Add(-grace)

	cases := []struct {
		name        string
		deletedAgo  time.Duration
		wantRestore bool
	}{
		{"six days ago restores", 6 * 24 * time.Hour, true},
		{"eight days ago stays trashed", 8 * 24 * time.Hour, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := newRepositoryDBForTest(t)
			repo := NewUserRepository(db)
			ctx := context.Background()
			u := createUserForTest(t, db, "restore@example.com")
			softDeleteAt(t, db, u.ID, now.Add(-tc.deletedAgo))

			restored, err := repo.RestoreIfWithin(ctx, u.ID, cutoff)
			if err != nil {
				t.Fatalf("restore: %v", err)
			}
			if restored != tc.wantRestore {
				t.Fatalf("restored=%v want %v", restored, tc.wantRestore)
			}
			reloaded, err := repo.FindByEmail(ctx, u.Email, true)
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			wantKind := domain.AccountSoftDeleted
			if tc.wantRestore {
				wantKind = domain.AccountActive
			}
			if reloaded.State().Kind != wantKind {
				t.Fatalf("state=%v want %v", reloaded.State().Kind, wantKind)
			}
		})
	}

	t.Run("active user is not touched", func(t *testing.T) {
		db := newRepositoryDBForTest(t)
		repo := NewUserRepository(db)
		u := createUserForTest(t, db, "active@example.com")
		restored, err := repo.RestoreIfWithin(context.Background(), u.ID, cutoff)
		if err != nil {
			t.Fatalf("restore: %v", err)
		}
		if restored {
			t.Fatal("expected no rows affected for active user")
		}
	})
}

func TestUserRepositoryPurgeIfExpired(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewUserRepository(db)
	tokens := NewMessagingTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	cutoff := now.Add(-7 * 24 * time.Hour)

	expired := createUserForTest(t, db, "expired@example.com")
	recent := createUserForTest(t, db, "recent@example.com")
	active := createUserForTest(t, db, "active@example.com")
	softDeleteAt(t, db, expired.ID, now.Add(-10*24*time.Hour))
	softDeleteAt(t, db, recent.ID, now.Add(-2*24*time.Hour))
	if err := tokens.Attach(ctx, expired.ID, "device-1"); err != nil {
		t.Fatalf("attach token: %v", err)
	}

	candidates, err := repo.ListPurgeCandidates(ctx, cutoff, nil, 10)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != expired.ID {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}

	for _, id := range []string{recent.ID, active.ID} {
		purged, err := repo.PurgeIfExpired(ctx, id, cutoff)
		if err != nil {
			t.Fatalf("purge %s: %v", id, err)
		}
		if purged {
			t.Fatalf("expected %s to survive purge", id)
		}
	}

	purged, err := repo.PurgeIfExpired(ctx, expired.ID, cutoff)
	if err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if !purged {
		t.Fatal("expected expired user to be purged")
	}
	if _, err := repo.FindByEmail(ctx, expired.Email, true); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected purged user gone, got %v", err)
	}
	left, err := tokens.ListByUserID(ctx, expired.ID)
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected messaging tokens removed with user, got %d", len(left))
	}

	again, err := repo.PurgeIfExpired(ctx, expired.ID, cutoff)
	if err != nil || again {
		t.Fatalf("expected idempotent purge, got purged=%v err=%v", again, err)
	}
}

func TestUserRepositoryPurgeSkipsUserRestoredAfterSelection(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	cutoff := now.Add(-7 * 24 * time.Hour)

	u := createUserForTest(t, db, "comeback@example.com")
	softDeleteAt(t, db, u.ID, now.Add(-9*24*time.Hour))

	candidates, err := repo.ListPurgeCandidates(ctx, cutoff, nil, 10)
	if err != nil || len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %d err=%v", len(candidates), err)
	}

	if err := db.Unscoped().Model(&domain.User{}).Where("id = ?", u.ID).Update("deleted_at", nil).Error; err != nil {
		t.Fatalf("restore between selection and purge: %v", err)
	}

	purged, err := repo.PurgeIfExpired(ctx, candidates[0].ID, cutoff)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged {
		t.Fatal("restored user must not be purged")
	}
	if _, err := repo.FindByID(ctx, u.ID, false); err != nil {
		t.Fatalf("expected restored user to remain: %v", err)
	}
}

func TestUserRepositoryColumnUpdates(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	u := createUserForTest(t, db, "cols@example.com")

	if err := repo.MarkVerified(ctx, u.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if err := repo.UpdatePassword(ctx, u.ID, "new-hash"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	reloaded, err := repo.FindByID(ctx, u.ID, false)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Verified || reloaded.PasswordHash != "new-hash" {
		t.Fatalf("unexpected user after updates: %+v", reloaded)
	}
	if err := repo.MarkVerified(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepositoryListPurgeCandidatesExcludesIDs(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	cutoff := now.Add(-7 * 24 * time.Hour)

	first := createUserForTest(t, db, "first@example.com")
	second := createUserForTest(t, db, "second@example.com")
	third := createUserForTest(t, db, "third@example.com")
	softDeleteAt(t, db, first.ID, now.Add(-12*24*time.Hour))
	softDeleteAt(t, db, second.ID, now.Add(-11*24*time.Hour))
	softDeleteAt(t, db, third.ID, now.Add(-10*24*time.Hour))

	page, err := repo.ListPurgeCandidates(ctx, cutoff, nil, 2)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(page) != 2 || page[0].ID != first.ID || page[1].ID != second.ID {
		t.Fatalf("expected oldest two first, got %+v", page)
	}

	page, err = repo.ListPurgeCandidates(ctx, cutoff, []string{first.ID, second.ID}, 2)
	if err != nil {
		t.Fatalf("list candidates with exclusions: %v", err)
	}
	if len(page) != 1 || page[0].ID != third.ID {
		t.Fatalf("expected only the non-excluded row, got %+v", page)
	}
}
