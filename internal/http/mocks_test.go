package http

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"profile-api/internal/domain"
	"profile-api/internal/repository"
	"profile-api/internal/service"
	"profile-api/internal/storage"
	"profile-api/internal/validation"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
	profiles     map[string]domain.Profile
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
	p := m.profiles[userID]
	return domain.UserProfile{
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Email:       user.Email,
		Avatar:      user.Avatar,
		Phone:       p.Phone,
		Description: p.Description,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		Commercial:  p.Commercial,
	}, nil
}

type mockPostRepo struct {
	mu    sync.Mutex
	posts map[string]domain.Post
}

func newMockPostRepo() *mockPostRepo {
	return &mockPostRepo{posts: make(map[string]domain.Post)}
}

func (m *mockPostRepo) Create(_ context.Context, post domain.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[post.ID] = post
	return nil
}

func (m *mockPostRepo) GetByID(_ context.Context, id string) (domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return domain.Post{}, pgx.ErrNoRows
	}
	images := make([]domain.PostImage, len(post.Images))
	copy(images, post.Images)
	post.Images = images
	return post, nil
}

func (m *mockPostRepo) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok || post.UserID != userID {
		return pgx.ErrNoRows
	}
	delete(m.posts, id)
	return nil
}

type mockEmailSender struct {
	mu           sync.Mutex
	confirmLinks []string
	resetLinks   []string
	err          error
}

func (m *mockEmailSender) SendRegistrationConfirmation(_ context.Context, _ string, link string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.confirmLinks = append(m.confirmLinks, link)
	return nil
}

func (m *mockEmailSender) SendPasswordReset(_ context.Context, _ string, link string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.resetLinks = append(m.resetLinks, link)
	return nil
}

func (m *mockEmailSender) lastConfirmToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.confirmLinks) == 0 {
		t.Fatalf("no confirmation email sent")
	}
	return tkeyFromLink(t, m.confirmLinks[len(m.confirmLinks)-1])
}

func (m *mockEmailSender) lastResetToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resetLinks) == 0 {
		t.Fatalf("no reset email sent")
	}
	return tkeyFromLink(t, m.resetLinks[len(m.resetLinks)-1])
}

func tkeyFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("tkey")
}

type testApp struct {
	router *gin.Engine
	users  *mockUserRepo
	posts  *mockPostRepo
	sender *mockEmailSender
	tokens *service.TokenService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := newMockUserRepo()
	posts := newMockPostRepo()
	sender := &mockEmailSender{}
	tokens := service.NewTokenService("test-secret", service.NewMemoryTokenStore())

	disk, err := storage.NewDiskStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	images := storage.NewImageUploader(disk, 1<<20)
	validate := validation.New()
	logger := zap.NewNop()

	authSvc := service.NewAuthService(logger, users, tokens, service.NewMemoryPendingStore(), sender,
		service.NewMailRateLimiter(10*time.Minute, 3), nil, service.AuthConfig{
			ConfirmURL: "http://localhost:8080/register/confirm",
			ResetURL:   "http://localhost:3000/reset",
			BcryptCost: bcrypt.MinCost,
		})

	router := NewRouter(logger, RouterDeps{
		Auth:   NewAuthHandler(logger, authSvc, validate),
		Users:  NewUserHandler(logger, service.NewProfileService(logger, users, images, nil), validate),
		Posts:  NewPostHandler(logger, service.NewPostService(logger, posts, images, nil), validate),
		Tokens: tokens,
	})
	return &testApp{router: router, users: users, posts: posts, sender: sender, tokens: tokens}
}

func performRequest(r http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func performMultipart(t *testing.T, r http.Handler, path, token string, fields map[string]string, fileField string, files [][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for i, data := range files {
		part, err := w.CreateFormFile(fileField, "img"+string(rune('a'+i))+".png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

// signUp registra y confirma un usuario y devuelve un token de sesion.
func (a *testApp) signUp(t *testing.T, email, password string) string {
	t.Helper()
	rec := performRequest(a.router, http.MethodPost, "/register", map[string]string{
		"email":     email,
		"password":  password,
		"firstName": "Ana",
		"lastName":  "Diaz",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	tkey := a.sender.lastConfirmToken(t)
	rec = performRequest(a.router, http.MethodGet, "/register/confirm?tkey="+url.QueryEscape(tkey), nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("confirm: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = performRequest(a.router, http.MethodPost, "/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token")
	}
	return token
}

func (m *mockUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.usersByID)
}
