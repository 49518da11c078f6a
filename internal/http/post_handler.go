package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"profile-api/internal/domain"
	"profile-api/internal/service"
	"profile-api/internal/validation"
)

const galleryField = "gallery"

type PostHandler struct {
	logger   *zap.Logger
	posts    *service.PostService
	validate *validation.Validator
}

func NewPostHandler(logger *zap.Logger, posts *service.PostService, validate *validation.Validator) *PostHandler {
	if validate == nil {
		validate = validation.New()
	}
	return &PostHandler{
		logger:   logger,
		posts:    posts,
		validate: validate,
	}
}

type createPostRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=120"`
	Description string `json:"description" validate:"max=2000"`
}

// Create maneja POST /post/create (multipart, campo gallery con hasta 10 imagenes).
func (h *PostHandler) Create(c *gin.Context) {
	claims, _ := GetAuthClaims(c)

	form, err := c.MultipartForm()
	if err != nil || len(form.File[galleryField]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "no files uploaded"})
		return
	}
	files := form.File[galleryField]
	if len(files) > domain.MaxPostImages {
		c.JSON(http.StatusBadRequest, gin.H{"message": "too many files"})
		return
	}

	req := createPostRequest{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
	}
	if errs := h.validate.Struct(req, "body"); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	uploads, closeAll, err := openUploads(files)
	if err != nil {
		h.logger.Warn("open uploaded files failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "could not read uploaded files"})
		return
	}
	defer closeAll()

	post, err := h.posts.Create(c.Request.Context(), claims.UserID, service.CreatePostInput{
		Title:       req.Title,
		Description: req.Description,
	}, uploads)
	if err != nil {
		if respondBlankField(c, err) {
			return
		}
		switch {
		case errors.Is(err, service.ErrNoImages):
			c.JSON(http.StatusBadRequest, gin.H{"message": "no files uploaded"})
		case errors.Is(err, service.ErrTooManyImages):
			c.JSON(http.StatusBadRequest, gin.H{"message": "too many files"})
		case isUploadError(err):
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		default:
			h.logger.Error("create post failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not create post"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "post created", "post": post})
}

// Delete maneja DELETE /post/:postId.
func (h *PostHandler) Delete(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	if err := h.posts.Delete(c.Request.Context(), claims.UserID, c.Param("postId")); err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "post not found"})
			return
		}
		h.logger.Error("delete post failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not delete post"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "post deleted"})
}

// Info maneja GET /post/info/:postId.
func (h *PostHandler) Info(c *gin.Context) {
	post, err := h.posts.Get(c.Request.Context(), c.Param("postId"))
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "post not found"})
			return
		}
		h.logger.Error("get post failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not get post"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "post loaded", "post": post})
}
