package http

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"profile-api/internal/domain"
	"profile-api/internal/service"
	"profile-api/internal/validation"
)

const avatarField = "avatar"

// UserHandler mantiene dependencias para endpoints de perfil y avatar.
type UserHandler struct {
	logger   *zap.Logger
	profiles *service.ProfileService
	validate *validation.Validator
}

func NewUserHandler(logger *zap.Logger, profiles *service.ProfileService, validate *validation.Validator) *UserHandler {
	if validate == nil {
		validate = validation.New()
	}
	return &UserHandler{
		logger:   logger,
		profiles: profiles,
		validate: validate,
	}
}

type updateUserRequest struct {
	FirstName   *string  `json:"firstName" validate:"omitempty,min=1,max=64"`
	LastName    *string  `json:"lastName" validate:"omitempty,min=1,max=64"`
	Phone       *string  `json:"phone" validate:"omitempty,phone"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Commercial  *bool    `json:"commercial"`
}

// Update maneja POST /user/update.
func (h *UserHandler) Update(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update user request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}
	if errs := h.validate.Struct(req, "body"); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	profile, err := h.profiles.Update(c.Request.Context(), claims.UserID, domain.AccountUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Commercial:  req.Commercial,
	})
	if err != nil {
		if respondBlankField(c, err) {
			return
		}
		h.respondUserError(c, "update user failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "data updated", "profile": profile})
}

// SetAvatar maneja POST /user/avatar (multipart, campo avatar).
func (h *UserHandler) SetAvatar(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	fh, err := c.FormFile(avatarField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "file is empty"})
		return
	}
	uploads, closeAll, err := openUploads([]*multipart.FileHeader{fh})
	if err != nil {
		h.logger.Warn("open avatar failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "could not read uploaded file"})
		return
	}
	defer closeAll()

	url, err := h.profiles.SetAvatar(c.Request.Context(), claims.UserID, uploads[0])
	if err != nil {
		if isUploadError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		h.respondUserError(c, "set avatar failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file saved", "avatar": url})
}

// DeleteAvatar maneja DELETE /user/avatar.
func (h *UserHandler) DeleteAvatar(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	if err := h.profiles.DeleteAvatar(c.Request.Context(), claims.UserID); err != nil {
		if errors.Is(err, service.ErrAvatarNotFound) {
			c.JSON(http.StatusConflict, gin.H{"message": "file does not exist"})
			return
		}
		h.respondUserError(c, "delete avatar failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file deleted"})
}

// Profile maneja GET /user/profile.
func (h *UserHandler) Profile(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	profile, err := h.profiles.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondUserError(c, "get profile failed", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Un usuario borrado con token vigente se trata como token invalido.
func (h *UserHandler) respondUserError(c *gin.Context, msg string, err error) {
	if errors.Is(err, service.ErrUserNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"message": "something went wrong"})
}
