package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"profile-api/internal/domain"
	"profile-api/internal/repository"
	"profile-api/internal/storage"
)

var ErrAvatarNotFound = errors.New("avatar not found")

type ProfileService struct {
	logger    *zap.Logger
	users     repository.UserRepository
	images    ImageUploader
	sanitizer TextSanitizer
}

func NewProfileService(logger *zap.Logger, users repository.UserRepository, images ImageUploader, sanitizer TextSanitizer) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sanitizer == nil {
		sanitizer = NewTextSanitizer()
	}
	return &ProfileService{
		logger:    logger,
		users:     users,
		images:    images,
		sanitizer: sanitizer,
	}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, ErrUserNotFound
		}
		return domain.UserProfile{}, err
	}
	profile.Avatar = s.images.URL(profile.Avatar)
	return profile, nil
}

// Update aplica un update parcial; los campos nil no se tocan.
func (s *ProfileService) Update(ctx context.Context, userID string, update domain.AccountUpdate) (domain.UserProfile, error) {
	update.FirstName = trimPtr(update.FirstName)
	if update.FirstName != nil && *update.FirstName == "" {
		return domain.UserProfile{}, &BlankFieldError{Field: "firstName"}
	}
	update.LastName = trimPtr(update.LastName)
	if update.LastName != nil && *update.LastName == "" {
		return domain.UserProfile{}, &BlankFieldError{Field: "lastName"}
	}
	update.Phone = trimPtr(update.Phone)
	if update.Description != nil {
		clean := s.sanitizer.Sanitize(*update.Description)
		update.Description = &clean
	}

	if update.TouchesUser() || update.TouchesProfile() {
		if err := s.users.UpdateAccount(ctx, userID, update); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.UserProfile{}, ErrUserNotFound
			}
			return domain.UserProfile{}, err
		}
	}
	return s.Get(ctx, userID)
}

// SetAvatar guarda la nueva imagen y reemplaza la anterior.
func (s *ProfileService) SetAvatar(ctx context.Context, userID string, upload storage.Upload) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}

	stored, err := s.images.Save(ctx, "avatars/"+userID, upload)
	if err != nil {
		return "", err
	}
	if err := s.users.SetAvatar(ctx, userID, &stored.Key); err != nil {
		if delErr := s.images.Delete(ctx, stored.Key); delErr != nil {
			s.logger.Warn("delete orphan avatar failed", zap.Error(delErr), zap.String("key", stored.Key))
		}
		return "", err
	}
	if user.Avatar != "" {
		if err := s.images.Delete(ctx, user.Avatar); err != nil {
			s.logger.Warn("delete previous avatar failed", zap.Error(err), zap.String("key", user.Avatar))
		}
	}
	return s.images.URL(stored.Key), nil
}

func (s *ProfileService) DeleteAvatar(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if user.Avatar == "" {
		return ErrAvatarNotFound
	}
	if err := s.users.SetAvatar(ctx, userID, nil); err != nil {
		return err
	}
	if err := s.images.Delete(ctx, user.Avatar); err != nil {
		s.logger.Warn("delete avatar object failed", zap.Error(err), zap.String("key", user.Avatar))
	}
	return nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
