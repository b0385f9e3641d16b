package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/repository"
	repogomock "github.com/sandeepkv93/otp-account-service/internal/repository/gomock"
	"github.com/sandeepkv93/otp-account-service/internal/security"
)

type tNop struct{}

func (tNop) Errorf(string, ...any) {}
func (tNop) Fatalf(string, ...any) {}
func (tNop) Helper()               {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type userRepoState struct {
	mu   sync.Mutex
	byID map[string]domain.User
	now  func() time.Time
	// purgeErr makes PurgeIfExpired fail for the listed ids.
	purgeErr map[string]error
}

func newUserRepoState(now func() time.Time) *userRepoState {
	return &userRepoState{byID: map[string]domain.User{}, now: now}
}

func (s *userRepoState) FindByEmail(_ context.Context, email string, includeTrashed bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = domain.NormalizeEmail(email)
	for _, u := range s.byID {
		if u.Email == email && (includeTrashed || !u.DeletedAt.Valid) {
			cp := u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *userRepoState) FindByID(_ context.Context, id string, includeTrashed bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok || (u.DeletedAt.Valid && !includeTrashed) {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (s *userRepoState) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = domain.NormalizeEmail(user.Email)
	for _, u := range s.byID {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.RegisterSource == "" {
		user.RegisterSource = domain.RegisterSourceStandard
	}
	user.CreatedAt = s.now()
	user.UpdatedAt = user.CreatedAt
	s.byID[user.ID] = *user
	return nil
}

func (s *userRepoState) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok || u.DeletedAt.Valid {
		return repository.ErrUserNotFound
	}
	u.DeletedAt = gorm.DeletedAt{Time: s.now(), Valid: true}
	s.byID[id] = u
	return nil
}

func (s *userRepoState) softDeleteAt(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID[id]
	u.DeletedAt = gorm.DeletedAt{Time: at, Valid: true}
	s.byID[id] = u
}

func (s *userRepoState) RestoreIfWithin(_ context.Context, id string, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok || !u.DeletedAt.Valid || !u.DeletedAt.Time.After(cutoff) {
		return false, nil
	}
	u.DeletedAt = gorm.DeletedAt{}
	s.byID[id] = u
	return true, nil
}

func (s *userRepoState) ListPurgeCandidates(_ context.Context, cutoff time.Time, exclude []string, limit int) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []domain.User
	for _, u := range s.byID {
		if u.DeletedAt.Valid && !u.DeletedAt.Time.After(cutoff) && !skip[u.ID] {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeletedAt.Time.Equal(out[j].DeletedAt.Time) {
			return out[i].ID < out[j].ID
		}
		return out[i].DeletedAt.Time.Before(out[j].DeletedAt.Time)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *userRepoState) PurgeIfExpired(_ context.Context, id string, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.purgeErr[id]; err != nil {
		return false, err
	}
	u, ok := s.byID[id]
	if !ok || !u.DeletedAt.Valid || u.DeletedAt.Time.After(cutoff) {
		return false, nil
	}
	delete(s.byID, id)
	return true, nil
}

func (s *userRepoState) MarkVerified(_ context.Context, id string) error {
	return s.mutate(id, func(u *domain.User) { u.Verified = true })
}

func (s *userRepoState) UpdatePassword(_ context.Context, id, hash string) error {
	return s.mutate(id, func(u *domain.User) { u.PasswordHash = hash })
}

func (s *userRepoState) mutate(id string, fn func(*domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(&u)
	s.byID[id] = u
	return nil
}

func (s *userRepoState) get(id string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	return u, ok
}

type accessTokenRepoState struct {
	mu     sync.Mutex
	byHash map[string]domain.AccessToken
	users  *userRepoState
}

func newAccessTokenRepoState(users *userRepoState) *accessTokenRepoState {
	return &accessTokenRepoState{byHash: map[string]domain.AccessToken{}, users: users}
}

func (s *accessTokenRepoState) Create(_ context.Context, token *domain.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	s.byHash[token.TokenHash] = *token
	return nil
}

func (s *accessTokenRepoState) FindValidByHash(_ context.Context, hash string, now time.Time, includeTrashedOwner bool) (*domain.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[hash]
	if !ok || !t.ExpiresAt.After(now) {
		return nil, repository.ErrAccessTokenNotFound
	}
	if s.users != nil {
		if u, ok := s.users.get(t.UserID); !ok || (u.DeletedAt.Valid && !includeTrashedOwner) {
			return nil, repository.ErrAccessTokenNotFound
		}
	}
	return &t, nil
}

func (s *accessTokenRepoState) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, t := range s.byHash {
		if t.ID == id {
			t.LastUsedAt = &at
			s.byHash[h] = t
		}
	}
	return nil
}

func (s *accessTokenRepoState) DeleteByHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[hash]; !ok {
		return repository.ErrAccessTokenNotFound
	}
	delete(s.byHash, hash)
	return nil
}

func (s *accessTokenRepoState) DeleteByUserID(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, t := range s.byHash {
		if t.UserID == userID {
			delete(s.byHash, h)
			n++
		}
	}
	return n, nil
}

func (s *accessTokenRepoState) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, t := range s.byHash {
		if !t.ExpiresAt.After(now) {
			delete(s.byHash, h)
			n++
		}
	}
	return n, nil
}

func (s *accessTokenRepoState) countForUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.byHash {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

type messagingRepoState struct {
	mu      sync.Mutex
	byToken map[string]string
}

func (s *messagingRepoState) Attach(_ context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[token] = userID
	return nil
}

func (s *messagingRepoState) ListByUserID(_ context.Context, userID string) ([]domain.MessagingToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MessagingToken
	for tok, uid := range s.byToken {
		if uid == userID {
			out = append(out, domain.MessagingToken{UserID: uid, Token: tok})
		}
	}
	return out, nil
}

type captureNotifier struct {
	mu         sync.Mutex
	deliveries []OTPDelivery
	err        error
}

func (n *captureNotifier) SendOTP(_ context.Context, d OTPDelivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.deliveries = append(n.deliveries, d)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deliveries)
}

func (n *captureNotifier) lastCode(t *testing.T, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.deliveries) - 1; i >= 0; i-- {
		if n.deliveries[i].Email == email {
			return n.deliveries[i].Code
		}
	}
	t.Fatalf("no otp delivered to %s", email)
	return ""
}

type authServiceFixture struct {
	auth      *AuthService
	otp       *OTPService
	tokens    *TokenService
	lifecycle *AccountLifecycleService
	users     *userRepoState
	tokenRepo *accessTokenRepoState
	messaging *messagingRepoState
	notifier  *captureNotifier
	store     *InMemoryCodeStore
	guard     *InMemoryAttemptGuard
	clock     *fakeClock
	provider  *MockSocialProvider
	settings  AuthSettings
}

const testPepper = "pepper-for-tests-0123456789"

func defaultAuthSettings() AuthSettings {
	return AuthSettings{
		TokenTTL:             720 * time.Hour,
		SocialTokenTTL:       2400 * time.Hour,
		OTPTTL:               5 * time.Minute,
		ForgotPasswordOTPTTL: 10 * time.Minute,
	}
}

func newAuthServiceFixture(mutators ...func(*AuthSettings)) *authServiceFixture {
	settings := defaultAuthSettings()
	for _, m := range mutators {
		m(&settings)
	}
	clock := newFakeClock()

	users := newUserRepoState(clock.Now)
	tokenRepo := newAccessTokenRepoState(users)
	messaging := &messagingRepoState{byToken: map[string]string{}}
	notifier := &captureNotifier{}

	ctrl := gomock.NewController(tNop{})
	userRepoMock := repogomock.NewMockUserRepository(ctrl)
	userRepoMock.EXPECT().FindByEmail(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.FindByEmail)
	userRepoMock.EXPECT().FindByID(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.FindByID)
	userRepoMock.EXPECT().Create(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.Create)
	userRepoMock.EXPECT().SoftDelete(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.SoftDelete)
	userRepoMock.EXPECT().RestoreIfWithin(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.RestoreIfWithin)
	userRepoMock.EXPECT().ListPurgeCandidates(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.ListPurgeCandidates)
	userRepoMock.EXPECT().PurgeIfExpired(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.PurgeIfExpired)
	userRepoMock.EXPECT().MarkVerified(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.MarkVerified)
	userRepoMock.EXPECT().UpdatePassword(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(users.UpdatePassword)

	tokenRepoMock := repogomock.NewMockAccessTokenRepository(ctrl)
	tokenRepoMock.EXPECT().Create(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(tokenRepo.Create)
	tokenRepoMock.EXPECT().FindValidByHash(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(tokenRepo.FindValidByHash)
	tokenRepoMock.EXPECT().Touch(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(tokenRepo.Touch)
	tokenRepoMock.EXPECT().DeleteByHash(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(tokenRepo.DeleteByHash)
	tokenRepoMock.EXPECT().DeleteByUserID(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(tokenRepo.DeleteByUserID)
	tokenRepoMock.EXPECT().DeleteExpired(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(tokenRepo.DeleteExpired)

	messagingMock := repogomock.NewMockMessagingTokenRepository(ctrl)
	messagingMock.EXPECT().Attach(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(messaging.Attach)
	messagingMock.EXPECT().ListByUserID(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(messaging.ListByUserID)

	notifierMock := NewMockOTPNotifier(ctrl)
	notifierMock.EXPECT().SendOTP(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(notifier.SendOTP)

	provider := NewMockSocialProvider(ctrl)
	provider.EXPECT().Source().AnyTimes().Return(domain.RegisterSourceGoogle)

	store := NewInMemoryCodeStore()
	store.now = clock.Now
	otpSvc := NewOTPService(store, notifierMock, 4, settings.OTPTTL, discardLogger())
	otpSvc.now = clock.Now
	tokenSvc := NewTokenService(tokenRepoMock, testPepper, discardLogger())
	tokenSvc.now = clock.Now
	lifecycle := NewAccountLifecycleService(userRepoMock, 7*24*time.Hour, 100, discardLogger())
	lifecycle.now = clock.Now
	guard := NewInMemoryAttemptGuard(AttemptPolicy{FreeAttempts: 3, BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute, ResetWindow: 10 * time.Minute})
	guard.now = clock.Now

	auth := NewAuthService(userRepoMock, messagingMock, otpSvc, tokenSvc, lifecycle, NewSocialProviderRegistry(provider), guard, settings, discardLogger())

	return &authServiceFixture{
		auth:      auth,
		otp:       otpSvc,
		tokens:    tokenSvc,
		lifecycle: lifecycle,
		users:     users,
		tokenRepo: tokenRepo,
		messaging: messaging,
		notifier:  notifier,
		store:     store,
		guard:     guard,
		clock:     clock,
		provider:  provider,
		settings:  settings,
	}
}

// seedUser stores a user directly, bypassing the service.
func (fx *authServiceFixture) seedUser(t *testing.T, email, password string, verified bool) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{Email: email, PasswordHash: hash, Verified: verified, FirstName: "Test", LastName: "User"}
	if err := fx.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

var errBoom = errors.New("boom")

func gomockAny() gomock.Matcher { return gomock.Any() }
