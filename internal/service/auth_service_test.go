package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"profile-api/internal/domain"
	"profile-api/internal/repository"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
	profiles     map[string]domain.Profile
	createErr    error
	setAvatarErr error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
		profiles:     make(map[string]domain.Profile),
	}
}

func (m *mockUserRepo) CreateWithProfile(_ context.Context, user domain.User, profile domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.usersByEmail[user.Email]; ok {
		return repository.ErrDuplicate
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	m.profiles[user.ID] = profile
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByEmail[email]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.usersByEmail[email]
	return ok, nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) UpdateAccount(_ context.Context, id string, update domain.AccountUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}
	m.usersByID[id] = user

	profile := m.profiles[id]
	if update.Phone != nil {
		profile.Phone = *update.Phone
	}
	if update.Description != nil {
		profile.Description = *update.Description
	}
	if update.Latitude != nil {
		profile.Latitude = update.Latitude
	}
	if update.Longitude != nil {
		profile.Longitude = update.Longitude
	}
	if update.Commercial != nil {
		profile.Commercial = *update.Commercial
	}
	m.profiles[id] = profile
	return nil
}

func (m *mockUserRepo) SetAvatar(_ context.Context, id string, avatar *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setAvatarErr != nil {
		return m.setAvatarErr
	}
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Avatar = ""
	if avatar != nil {
		user.Avatar = *avatar
	}
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) GetProfile(_ context.Context, userID string) (domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[userID]
	if !ok {
		return domain.UserProfile{}, pgx.ErrNoRows
	}
	profile := m.profiles[userID]
	return domain.UserProfile{
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Email:       user.Email,
		Avatar:      user.Avatar,
		Phone:       profile.Phone,
		Description: profile.Description,
		Latitude:    profile.Latitude,
		Longitude:   profile.Longitude,
		Commercial:  profile.Commercial,
	}, nil
}

func (m *mockUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.usersByID)
}

type mockEmailSender struct {
	confirmLinks []string
	resetLinks   []string
	err          error
}

func (m *mockEmailSender) SendRegistrationConfirmation(_ context.Context, _ string, link string, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.confirmLinks = append(m.confirmLinks, link)
	return nil
}

func (m *mockEmailSender) SendPasswordReset(_ context.Context, _ string, link string, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.resetLinks = append(m.resetLinks, link)
	return nil
}

type authFixture struct {
	svc     *AuthService
	repo    *mockUserRepo
	tokens  *TokenService
	pending PendingRegistrationStore
	sender  *mockEmailSender
}

func newAuthFixture() authFixture {
	repo := newMockUserRepo()
	tokens := NewTokenService("test-secret", NewMemoryTokenStore())
	pending := NewMemoryPendingStore()
	sender := &mockEmailSender{}
	svc := NewAuthService(
		zap.NewNop(),
		repo,
		tokens,
		pending,
		sender,
		NewMailRateLimiter(10*time.Minute, 3),
		nil,
		AuthConfig{
			ConfirmURL: "http://localhost:8080/register/confirm",
			ResetURL:   "http://localhost:3000/reset",
			BcryptCost: bcrypt.MinCost,
		},
	)
	return authFixture{svc: svc, repo: repo, tokens: tokens, pending: pending, sender: sender}
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	tkey := u.Query().Get("tkey")
	if tkey == "" {
		t.Fatalf("link without tkey: %s", link)
	}
	return tkey
}

func registerConfirmed(t *testing.T, f authFixture, emailAddr, password string) domain.User {
	t.Helper()
	ctx := context.Background()
	issued, err := f.svc.Register(ctx, RegisterInput{Email: emailAddr, Password: password, FirstName: "Ana", LastName: "Diaz"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := f.svc.ConfirmRegistration(ctx, issued.Token)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return user
}

func TestRegister_NoRowsUntilConfirmed(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	issued, err := f.svc.Register(ctx, RegisterInput{
		Email:     "  Ana@Example.com ",
		Password:  "secret1",
		FirstName: "Ana",
		LastName:  "Diaz",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if f.repo.count() != 0 {
		t.Fatalf("expected no user rows before confirmation, got %d", f.repo.count())
	}
	if len(f.sender.confirmLinks) != 1 {
		t.Fatalf("expected one confirmation email, got %d", len(f.sender.confirmLinks))
	}
	link := f.sender.confirmLinks[0]
	if !strings.HasPrefix(link, "http://localhost:8080/register/confirm?") {
		t.Fatalf("unexpected confirmation link: %s", link)
	}
	if tokenFromLink(t, link) != issued.Token {
		t.Fatalf("link token differs from issued token")
	}

	user, err := f.svc.ConfirmRegistration(ctx, issued.Token)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if user.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if f.repo.count() != 1 {
		t.Fatalf("expected one user after confirmation, got %d", f.repo.count())
	}
	if _, ok := f.repo.profiles[user.ID]; !ok {
		t.Fatalf("expected profile created with user")
	}
	if user.PasswordHash == "secret1" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")) != nil {
		t.Fatalf("expected bcrypt hash of password")
	}
}

func TestConfirmRegistration_SingleUse(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	issued, err := f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "secret1", FirstName: "Ana", LastName: "Diaz"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.svc.ConfirmRegistration(ctx, issued.Token); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := f.svc.ConfirmRegistration(ctx, issued.Token); !errors.Is(err, ErrUserExists) && !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected second confirm to fail, got %v", err)
	}
	if f.repo.count() != 1 {
		t.Fatalf("expected exactly one user, got %d", f.repo.count())
	}
}

func TestConfirmRegistration_ExpiredToken(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.tokens.now = func() time.Time { return time.Now().UTC().Add(-ConfirmationTTL - time.Minute) }
	issued, err := f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "secret1", FirstName: "Ana", LastName: "Diaz"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	f.tokens.now = func() time.Time { return time.Now().UTC() }

	if _, err := f.svc.ConfirmRegistration(ctx, issued.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if f.repo.count() != 0 {
		t.Fatalf("expected no rows for expired confirmation")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture()
	registerConfirmed(t, f, "dup@example.com", "secret1")

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "DUP@example.com", Password: "x"})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists even with invalid password, got %v", err)
	}
}

func TestConfirmRegistration_RaceOnSameEmail(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	first, err := f.svc.Register(ctx, RegisterInput{Email: "race@example.com", Password: "secret1", FirstName: "Ana", LastName: "Diaz"})
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	second, err := f.svc.Register(ctx, RegisterInput{Email: "race@example.com", Password: "secret2", FirstName: "Ana", LastName: "Diaz"})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if _, err := f.svc.ConfirmRegistration(ctx, first.Token); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := f.svc.ConfirmRegistration(ctx, second.Token); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegister_InvalidPassword(t *testing.T) {
	f := newAuthFixture()
	for _, pw := range []string{"abcd", "abcdefghi"} {
		if _, err := f.svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: pw}); !errors.Is(err, ErrInvalidPassword) {
			t.Fatalf("password %q: expected ErrInvalidPassword, got %v", pw, err)
		}
	}
}

func TestRegister_BlankNames(t *testing.T) {
	f := newAuthFixture()
	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "secret1", FirstName: "  ", LastName: "Diaz"})
	var blank *BlankFieldError
	if !errors.As(err, &blank) || blank.Field != "firstName" {
		t.Fatalf("expected blank firstName error, got %v", err)
	}
	if len(f.sender.confirmLinks) != 0 {
		t.Fatalf("no confirmation mail expected")
	}
}

func TestRegister_MailFailureDiscardsPending(t *testing.T) {
	f := newAuthFixture()
	f.sender.err = errors.New("smtp down")
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "secret1", FirstName: "Ana", LastName: "Diaz"})
	if !errors.Is(err, ErrEmailSendFailure) {
		t.Fatalf("expected ErrEmailSendFailure, got %v", err)
	}
	mem := f.pending.(*memoryPendingStore)
	if len(mem.items) != 0 {
		t.Fatalf("expected pending registration discarded, got %d", len(mem.items))
	}
}

func TestRegister_MailRateLimited(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "secret1", FirstName: "Ana", LastName: "Diaz"}); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if _, err := f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "secret1", FirstName: "Ana", LastName: "Diaz"}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestLogin_IdenticalErrors(t *testing.T) {
	f := newAuthFixture()
	registerConfirmed(t, f, "a@example.com", "secret1")
	ctx := context.Background()

	_, _, wrongPw := f.svc.Login(ctx, "a@example.com", "wrong1")
	_, _, unknown := f.svc.Login(ctx, "nobody@example.com", "secret1")
	if !errors.Is(wrongPw, ErrInvalidCredentials) || !errors.Is(unknown, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", wrongPw, unknown)
	}
	if wrongPw.Error() != unknown.Error() {
		t.Fatalf("expected identical messages, got %q and %q", wrongPw.Error(), unknown.Error())
	}
}

func TestLoginLogout_RevokesSession(t *testing.T) {
	f := newAuthFixture()
	registerConfirmed(t, f, "a@example.com", "secret1")
	ctx := context.Background()

	user, session, err := f.svc.Login(ctx, "A@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Email != "a@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if _, err := f.tokens.Verify(ctx, session.Token, domain.PurposeSession); err != nil {
		t.Fatalf("session should verify: %v", err)
	}

	if err := f.svc.Logout(ctx, session.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.tokens.Verify(ctx, session.Token, domain.PurposeSession); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected revoked session, got %v", err)
	}
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := newAuthFixture()
	if err := f.svc.ForgotPassword(context.Background(), "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if len(f.sender.resetLinks) != 0 {
		t.Fatalf("expected no reset email")
	}
}

func TestForgotPassword_MailFailureRevokesToken(t *testing.T) {
	f := newAuthFixture()
	registerConfirmed(t, f, "a@example.com", "secret1")
	f.sender.err = errors.New("smtp down")

	if err := f.svc.ForgotPassword(context.Background(), "a@example.com"); !errors.Is(err, ErrEmailSendFailure) {
		t.Fatalf("expected ErrEmailSendFailure, got %v", err)
	}
}

func TestChangePassword_ResetTokenSingleUse(t *testing.T) {
	f := newAuthFixture()
	registerConfirmed(t, f, "a@example.com", "secret1")
	ctx := context.Background()

	if err := f.svc.ForgotPassword(ctx, "a@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	if len(f.sender.resetLinks) != 1 {
		t.Fatalf("expected one reset email, got %d", len(f.sender.resetLinks))
	}
	raw := tokenFromLink(t, f.sender.resetLinks[0])

	claims, err := f.tokens.Verify(ctx, raw, domain.PurposeResetPassword)
	if err != nil {
		t.Fatalf("verify reset token: %v", err)
	}
	if err := f.svc.ChangePassword(ctx, claims, raw, "newpw1"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := f.tokens.Verify(ctx, raw, domain.PurposeResetPassword); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected consumed reset token, got %v", err)
	}

	if _, _, err := f.svc.Login(ctx, "a@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should fail, got %v", err)
	}
	if _, _, err := f.svc.Login(ctx, "a@example.com", "newpw1"); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
}

func TestChangePassword_WithSessionKeepsSession(t *testing.T) {
	f := newAuthFixture()
	registerConfirmed(t, f, "a@example.com", "secret1")
	ctx := context.Background()

	_, session, err := f.svc.Login(ctx, "a@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := f.tokens.Verify(ctx, session.Token, domain.PurposeSession)
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if err := f.svc.ChangePassword(ctx, claims, session.Token, "abc"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, claims, session.Token, "newpw1"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := f.tokens.Verify(ctx, session.Token, domain.PurposeSession); err != nil {
		t.Fatalf("session should stay valid: %v", err)
	}
}
