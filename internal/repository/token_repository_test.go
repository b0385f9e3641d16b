package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
)

func TestAccessTokenRepositoryLifecycle(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewAccessTokenRepository(db)
	users := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	u := createUserForTest(t, db, "tok@example.com")

	live := &domain.AccessToken{UserID: u.ID, TokenHash: "live-hash", Name: "login", ExpiresAt: now.Add(time.Hour)}
	expired := &domain.AccessToken{UserID: u.ID, TokenHash: "old-hash", Name: "login", ExpiresAt: now.Add(-time.Hour)}
	for _, tok := range []*domain.AccessToken{live, expired} {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("create token: %v", err)
		}
	}

	found, err := repo.FindValidByHash(ctx, "live-hash", now, false)
	if err != nil {
		t.Fatalf("find live token: %v", err)
	}
	if found.ID != live.ID || found.UserID != u.ID {
		t.Fatalf("unexpected token: %+v", found)
	}
	if _, err := repo.FindValidByHash(ctx, "old-hash", now, false); !errors.Is(err, ErrAccessTokenNotFound) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}

	if err := repo.Touch(ctx, live.ID, now); err != nil {
		t.Fatalf("touch: %v", err)
	}

	if err := users.SoftDelete(ctx, u.ID); err != nil {
		t.Fatalf("soft delete owner: %v", err)
	}
	if _, err := repo.FindValidByHash(ctx, "live-hash", now, false); !errors.Is(err, ErrAccessTokenNotFound) {
		t.Fatalf("expected token of trashed owner rejected, got %v", err)
	}
	if trashed, err := repo.FindValidByHash(ctx, "live-hash", now, true); err != nil || trashed.ID != live.ID {
		t.Fatalf("expected token of trashed owner when included, got %+v err=%v", trashed, err)
	}
	if _, err := repo.FindValidByHash(ctx, "old-hash", now, true); !errors.Is(err, ErrAccessTokenNotFound) {
		t.Fatalf("expected expired token rejected even with trashed owners, got %v", err)
	}

	deleted, err := repo.DeleteExpired(ctx, now)
	if err != nil || deleted != 1 {
		t.Fatalf("delete expired: n=%d err=%v", deleted, err)
	}
	if err := repo.DeleteByHash(ctx, "live-hash"); err != nil {
		t.Fatalf("delete by hash: %v", err)
	}
	if err := repo.DeleteByHash(ctx, "live-hash"); !errors.Is(err, ErrAccessTokenNotFound) {
		t.Fatalf("expected second delete to miss, got %v", err)
	}
}

func TestAccessTokenRepositoryDeleteByUserID(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewAccessTokenRepository(db)
	ctx := context.Background()
	u := createUserForTest(t, db, "many@example.com")
	other := createUserForTest(t, db, "other@example.com")
	exp := time.Now().UTC().Add(time.Hour)

	for i, hash := range []string{"h1", "h2", "h3"} {
		owner := u.ID
		if i == 2 {
			owner = other.ID
		}
		if err := repo.Create(ctx, &domain.AccessToken{UserID: owner, TokenHash: hash, ExpiresAt: exp}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	n, err := repo.DeleteByUserID(ctx, u.ID)
	if err != nil || n != 2 {
		t.Fatalf("delete by user: n=%d err=%v", n, err)
	}
	if _, err := repo.FindValidByHash(ctx, "h3", time.Now().UTC(), false); err != nil {
		t.Fatalf("other user's token must survive: %v", err)
	}
}

func TestMessagingTokenAttachIsIdempotentAndRepoints(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewMessagingTokenRepository(db)
	ctx := context.Background()
	first := createUserForTest(t, db, "first@example.com")
	second := createUserForTest(t, db, "second@example.com")

	for i := 0; i < 2; i++ {
		if err := repo.Attach(ctx, first.ID, "device-token"); err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
	}
	if err := repo.Attach(ctx, first.ID, "  "); err != nil {
		t.Fatalf("blank token should be ignored: %v", err)
	}
	tokens, err := repo.ListByUserID(ctx, first.ID)
	if err != nil || len(tokens) != 1 {
		t.Fatalf("expected one token, got %d err=%v", len(tokens), err)
	}

	if err := repo.Attach(ctx, second.ID, "device-token"); err != nil {
		t.Fatalf("repoint: %v", err)
	}
	moved, err := repo.ListByUserID(ctx, second.ID)
	if err != nil || len(moved) != 1 {
		t.Fatalf("expected token on second user, got %d err=%v", len(moved), err)
	}
	remaining, _ := repo.ListByUserID(ctx, first.ID)
	if len(remaining) != 0 {
		t.Fatalf("expected token moved off first user, got %d", len(remaining))
	}
}
