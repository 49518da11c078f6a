package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"profile-api/internal/domain"
	"profile-api/internal/email"
	"profile-api/internal/repository"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("login or password incorrect")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrEmailSendFailure   = errors.New("email send failed")
	ErrRateLimited        = errors.New("rate limited")
)

// ConfirmationTTL es la vida del token de confirmacion de registro.
const ConfirmationTTL = 10 * time.Minute

// AuthMetrics recibe eventos del flujo de autenticacion.
type AuthMetrics interface {
	RecordAuthEvent(event string)
}

// Eventos reportados a AuthMetrics.
const (
	EventRegisterRequested = "register_requested"
	EventRegisterConfirmed = "register_confirmed"
	EventLoginSuccess      = "login_success"
	EventLoginFailure      = "login_failure"
	EventLogout            = "logout"
	EventResetRequested    = "reset_requested"
	EventPasswordChanged   = "password_changed"
	EventMailFailure       = "mail_failure"
)

type nopAuthMetrics struct{}

func (nopAuthMetrics) RecordAuthEvent(string) {}

// AuthConfig agrupa TTLs y links usados en los correos.
type AuthConfig struct {
	ConfirmURL string
	ResetURL   string
	SessionTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
}

// AuthService coordina registro, login, logout y cambio de contrasena.
type AuthService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	tokens      *TokenService
	pending     PendingRegistrationStore
	emailSender email.Sender
	mailLimiter MailRateLimiter
	metrics     AuthMetrics
	cfg         AuthConfig

	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	tokens *TokenService,
	pending PendingRegistrationStore,
	emailSender email.Sender,
	mailLimiter MailRateLimiter,
	metrics AuthMetrics,
	cfg AuthConfig,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pending == nil {
		pending = NewMemoryPendingStore()
	}
	if mailLimiter == nil {
		mailLimiter = NewMailRateLimiter(10*time.Minute, 3)
	}
	if metrics == nil {
		metrics = nopAuthMetrics{}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 30 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		logger:      logger,
		users:       users,
		tokens:      tokens,
		pending:     pending,
		emailSender: emailSender,
		mailLimiter: mailLimiter,
		metrics:     metrics,
		cfg:         cfg,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// CheckEmailAvailable devuelve ErrUserExists si ya hay un usuario con ese email.
func (s *AuthService) CheckEmailAvailable(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return nil
	}
	exists, err := s.users.ExistsByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if exists {
		return ErrUserExists
	}
	return nil
}

// Register valida unicidad, emite el token de confirmacion y envia el correo.
// No escribe nada en la base hasta ConfirmRegistration.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (domain.IssuedToken, error) {
	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" {
		return domain.IssuedToken{}, ErrInvalidEmail
	}
	if err := s.CheckEmailAvailable(ctx, emailAddr); err != nil {
		return domain.IssuedToken{}, err
	}
	if !domain.ValidPassword(input.Password) {
		return domain.IssuedToken{}, ErrInvalidPassword
	}
	firstName := strings.TrimSpace(input.FirstName)
	if firstName == "" {
		return domain.IssuedToken{}, &BlankFieldError{Field: "firstName"}
	}
	lastName := strings.TrimSpace(input.LastName)
	if lastName == "" {
		return domain.IssuedToken{}, &BlankFieldError{Field: "lastName"}
	}
	if !s.mailLimiter.Allow(ctx, emailAddr) {
		return domain.IssuedToken{}, ErrRateLimited
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.BcryptCost)
	if err != nil {
		return domain.IssuedToken{}, err
	}

	pending := domain.PendingRegistration{
		UserID:       uuid.NewString(),
		Email:        emailAddr,
		PasswordHash: string(hash),
		FirstName:    firstName,
		LastName:     lastName,
	}
	issued, err := s.tokens.Issue(ctx, pending.UserID, domain.PurposeConfirmRegistration, ConfirmationTTL)
	if err != nil {
		return domain.IssuedToken{}, err
	}
	if err := s.pending.Save(ctx, issued.JTI, pending, ConfirmationTTL); err != nil {
		return domain.IssuedToken{}, err
	}

	link := withTokenParam(s.cfg.ConfirmURL, issued.Token)
	if err := s.sendMail(func(sender email.Sender) error {
		return sender.SendRegistrationConfirmation(ctx, emailAddr, link, issued.ExpiresAt)
	}); err != nil {
		if delErr := s.pending.Delete(ctx, issued.JTI); delErr != nil {
			s.logger.Warn("discard pending registration failed", zap.Error(delErr))
		}
		s.logger.Warn("send registration confirmation failed", zap.Error(err), zap.String("email", emailAddr))
		return domain.IssuedToken{}, ErrEmailSendFailure
	}

	s.metrics.RecordAuthEvent(EventRegisterRequested)
	return issued, nil
}

// ConfirmRegistration canjea el token y crea User+Profile de forma atomica.
func (s *AuthService) ConfirmRegistration(ctx context.Context, token string) (domain.User, error) {
	claims, err := s.tokens.Verify(ctx, token, domain.PurposeConfirmRegistration)
	if err != nil {
		return domain.User{}, err
	}

	pending, err := s.pending.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrPendingNotFound) {
			return domain.User{}, ErrTokenNotFound
		}
		return domain.User{}, err
	}
	if pending.UserID != claims.UserID {
		return domain.User{}, ErrTokenNotFound
	}

	if err := s.CheckEmailAvailable(ctx, pending.Email); err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           pending.UserID,
		Email:        pending.Email,
		FirstName:    pending.FirstName,
		LastName:     pending.LastName,
		PasswordHash: pending.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := domain.Profile{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.CreateWithProfile(ctx, user, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, err
	}

	if err := s.pending.Delete(ctx, claims.ID); err != nil {
		s.logger.Warn("delete pending registration failed", zap.Error(err), zap.String("user_id", user.ID))
	}
	s.metrics.RecordAuthEvent(EventRegisterConfirmed)
	return user, nil
}

// Login compara la contrasena en tiempo constante y emite un token de sesion.
// Email inexistente y contrasena incorrecta devuelven el mismo error.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (domain.User, domain.IssuedToken, error) {
	emailAddr = normalizeEmail(emailAddr)
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.IssuedToken{}, err
		}
		s.compareDummy(password)
		s.metrics.RecordAuthEvent(EventLoginFailure)
		return domain.User{}, domain.IssuedToken{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.metrics.RecordAuthEvent(EventLoginFailure)
		return domain.User{}, domain.IssuedToken{}, ErrInvalidCredentials
	}

	issued, err := s.tokens.Issue(ctx, user.ID, domain.PurposeSession, s.cfg.SessionTTL)
	if err != nil {
		return domain.User{}, domain.IssuedToken{}, err
	}
	s.metrics.RecordAuthEvent(EventLoginSuccess)
	return user, issued, nil
}

// Logout revoca el token de sesion.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.tokens.Revoke(ctx, token); err != nil {
		return err
	}
	s.metrics.RecordAuthEvent(EventLogout)
	return nil
}

// ForgotPassword emite un token de reset y lo envia por correo.
// A diferencia de Login, un email desconocido se informa explicitamente.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrInvalidEmail
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if !s.mailLimiter.Allow(ctx, emailAddr) {
		return ErrRateLimited
	}

	issued, err := s.tokens.Issue(ctx, user.ID, domain.PurposeResetPassword, s.cfg.ResetTTL)
	if err != nil {
		return err
	}
	link := withTokenParam(s.cfg.ResetURL, issued.Token)
	if err := s.sendMail(func(sender email.Sender) error {
		return sender.SendPasswordReset(ctx, user.Email, link, issued.ExpiresAt)
	}); err != nil {
		if revErr := s.tokens.Revoke(ctx, issued.Token); revErr != nil {
			s.logger.Warn("revoke unsent reset token failed", zap.Error(revErr))
		}
		s.logger.Warn("send password reset failed", zap.Error(err), zap.String("email", emailAddr))
		return ErrEmailSendFailure
	}

	s.metrics.RecordAuthEvent(EventResetRequested)
	return nil
}

// ChangePassword actualiza el hash del usuario autenticado por claims.
// Un token de reset se consume al usarse.
func (s *AuthService) ChangePassword(ctx context.Context, claims Claims, rawToken, newPassword string) error {
	if !domain.ValidPassword(newPassword) {
		return ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, claims.UserID, string(hash)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if claims.Purpose == domain.PurposeResetPassword {
		if err := s.tokens.Revoke(ctx, rawToken); err != nil {
			s.logger.Warn("revoke reset token failed", zap.Error(err), zap.String("user_id", claims.UserID))
		}
	}
	s.metrics.RecordAuthEvent(EventPasswordChanged)
	return nil
}

func (s *AuthService) sendMail(send func(email.Sender) error) error {
	if s.emailSender == nil {
		s.metrics.RecordAuthEvent(EventMailFailure)
		return errors.New("email sender not configured")
	}
	if err := send(s.emailSender); err != nil {
		s.metrics.RecordAuthEvent(EventMailFailure)
		return err
	}
	return nil
}

// compareDummy iguala el costo de un login con email inexistente.
func (s *AuthService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()[:8]), s.cfg.BcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

func withTokenParam(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?tkey=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("tkey", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
