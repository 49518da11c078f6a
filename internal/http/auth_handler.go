package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"profile-api/internal/service"
	"profile-api/internal/validation"
)

// AuthHandler expone registro, login, logout y recuperacion de contrasena.
type AuthHandler struct {
	logger   *zap.Logger
	auth     *service.AuthService
	validate *validation.Validator
}

func NewAuthHandler(logger *zap.Logger, auth *service.AuthService, validate *validation.Validator) *AuthHandler {
	if validate == nil {
		validate = validation.New()
	}
	return &AuthHandler{
		logger:   logger,
		auth:     auth,
		validate: validate,
	}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,password"`
	FirstName string `json:"firstName" validate:"required,min=1,max=64"`
	LastName  string `json:"lastName" validate:"required,min=1,max=64"`
}

// registerEmail se usa cuando el body completo no decodifica, para poder
// reportar el email duplicado igual.
type registerEmail struct {
	Email string `json:"email"`
}

type confirmRequest struct {
	TKey string `form:"tkey" json:"tkey" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type changePasswordRequest struct {
	Password string `json:"password" validate:"required,password"`
}

// Register maneja POST /register. El email duplicado se reporta antes que
// cualquier error de validacion.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindBodyWithJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		var only registerEmail
		if c.ShouldBindBodyWithJSON(&only) == nil && only.Email != "" {
			if !h.emailAvailable(c, only.Email) {
				return
			}
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}

	if !h.emailAvailable(c, req.Email) {
		return
	}
	if errs := h.validate.Struct(req, "body"); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	_, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if respondBlankField(c, err) {
			return
		}
		switch {
		case errors.Is(err, service.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{"message": "user already exists"})
		case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"message": "too many requests"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusTeapot, gin.H{"message": "email send failed"})
		default:
			h.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not register"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "confirmation email sent"})
}

// emailAvailable responde 409 o 500 y devuelve false cuando el registro no
// puede seguir.
func (h *AuthHandler) emailAvailable(c *gin.Context, email string) bool {
	err := h.auth.CheckEmailAvailable(c.Request.Context(), email)
	if err == nil {
		return true
	}
	if errors.Is(err, service.ErrUserExists) {
		c.JSON(http.StatusConflict, gin.H{"message": "user already exists"})
		return false
	}
	h.logger.Error("check email failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"message": "could not register"})
	return false
}

// Confirm maneja GET /register/confirm?tkey=.
func (h *AuthHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}
	if errs := h.validate.Struct(req, "query"); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	user, err := h.auth.ConfirmRegistration(c.Request.Context(), req.TKey)
	if err != nil {
		switch {
		case isTokenError(err):
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		case errors.Is(err, service.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{"message": "user already exists"})
		default:
			h.logger.Error("confirm registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not confirm registration"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login maneja POST /login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}
	if errs := h.validate.Struct(req, "body"); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	user, session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": service.ErrInvalidCredentials.Error()})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not login"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "token": session.Token, "expiresAt": session.ExpiresAt})
}

// Logout maneja GET /logout; requiere AuthMiddleware de sesion.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), GetAuthToken(c)); err != nil {
		if isTokenError(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}
		h.logger.Error("logout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not logout"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// ForgotPassword maneja POST /forgotpassword.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid forgot password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}
	if errs := h.validate.Struct(req, "body"); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"message": "user with this email not found"})
		case errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"message": "too many requests"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusTeapot, gin.H{"message": "email send failed"})
		default:
			h.logger.Error("forgot password failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not send reset email"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reset email sent"})
}

// ChangePassword maneja POST /changepassword con token de sesion o de reset.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid change password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}
	if errs := h.validate.Struct(req, "body"); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), claims, GetAuthToken(c), req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		default:
			h.logger.Error("change password failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not change password"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "password changed"})
}
