package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"profile-api/internal/domain"
	"profile-api/internal/repository"
	"profile-api/internal/storage"
)

var (
	ErrPostNotFound  = errors.New("post not found")
	ErrNoImages      = errors.New("no images uploaded")
	ErrTooManyImages = errors.New("too many images")
)

// ImageUploader es el contrato de storage.ImageUploader que usan los servicios.
type ImageUploader interface {
	Save(ctx context.Context, prefix string, upload storage.Upload) (storage.StoredImage, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

type PostService struct {
	logger    *zap.Logger
	posts     repository.PostRepository
	images    ImageUploader
	sanitizer TextSanitizer
}

func NewPostService(logger *zap.Logger, posts repository.PostRepository, images ImageUploader, sanitizer TextSanitizer) *PostService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sanitizer == nil {
		sanitizer = NewTextSanitizer()
	}
	return &PostService{
		logger:    logger,
		posts:     posts,
		images:    images,
		sanitizer: sanitizer,
	}
}

type CreatePostInput struct {
	Title       string
	Description string
}

// Create sube las imagenes y persiste el post. Si falla la base, borra lo subido.
func (s *PostService) Create(ctx context.Context, userID string, input CreatePostInput, uploads []storage.Upload) (domain.Post, error) {
	if len(uploads) == 0 {
		return domain.Post{}, ErrNoImages
	}
	if len(uploads) > domain.MaxPostImages {
		return domain.Post{}, ErrTooManyImages
	}

	title := s.sanitizer.Sanitize(input.Title)
	if title == "" {
		return domain.Post{}, &BlankFieldError{Field: "title"}
	}

	post := domain.Post{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: s.sanitizer.Sanitize(input.Description),
		CreatedAt:   time.Now().UTC(),
	}

	for i, upload := range uploads {
		stored, err := s.images.Save(ctx, "posts", upload)
		if err != nil {
			s.discard(post.Images)
			return domain.Post{}, err
		}
		post.Images = append(post.Images, domain.PostImage{
			ID:          uuid.NewString(),
			PostID:      post.ID,
			StorageKey:  stored.Key,
			ContentType: stored.ContentType,
			Position:    i,
		})
	}

	if err := s.posts.Create(ctx, post); err != nil {
		s.discard(post.Images)
		return domain.Post{}, err
	}
	return s.withURLs(post), nil
}

func (s *PostService) Get(ctx context.Context, postID string) (domain.Post, error) {
	if _, err := uuid.Parse(postID); err != nil {
		return domain.Post{}, ErrPostNotFound
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Post{}, ErrPostNotFound
		}
		return domain.Post{}, err
	}
	return s.withURLs(post), nil
}

// Delete borra un post propio. Un post ajeno se reporta como inexistente.
func (s *PostService) Delete(ctx context.Context, userID, postID string) error {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != userID {
		return ErrPostNotFound
	}
	if err := s.posts.Delete(ctx, postID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPostNotFound
		}
		return err
	}
	s.discard(post.Images)
	return nil
}

func (s *PostService) withURLs(post domain.Post) domain.Post {
	for i := range post.Images {
		post.Images[i].URL = s.images.URL(post.Images[i].StorageKey)
	}
	return post
}

func (s *PostService) discard(images []domain.PostImage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, img := range images {
		if err := s.images.Delete(ctx, img.StorageKey); err != nil {
			s.logger.Warn("delete stored image failed", zap.Error(err), zap.String("key", img.StorageKey))
		}
	}
}
