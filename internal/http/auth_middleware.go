package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"profile-api/internal/domain"
	"profile-api/internal/service"
)

const (
	authClaimsKey = "auth_claims"
	authTokenKey  = "auth_token"
)

// AuthMiddleware exige un Bearer token valido para alguno de los propositos indicados
// (session si no se indica ninguno) y guarda claims y token en el contexto.
// Sin token responde 403; token invalido, expirado o revocado responde 401.
func AuthMiddleware(tokens *service.TokenService, purposes ...domain.TokenPurpose) gin.HandlerFunc {
	if len(purposes) == 0 {
		purposes = []domain.TokenPurpose{domain.PurposeSession}
	}
	return func(c *gin.Context) {
		if tokens == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "token service not configured"})
			return
		}

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "token required"})
			return
		}

		claims, err := tokens.VerifyAny(c.Request.Context(), token, purposes...)
		if err != nil {
			if isTokenError(err) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "could not verify token"})
			return
		}

		c.Set(authClaimsKey, claims)
		c.Set(authTokenKey, token)
		c.Next()
	}
}

// GetAuthClaims obtiene claims del token desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}

// GetAuthToken devuelve el token crudo validado por AuthMiddleware.
func GetAuthToken(c *gin.Context) string {
	return c.GetString(authTokenKey)
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("bearer "):])
}

func isTokenError(err error) bool {
	return errors.Is(err, service.ErrTokenInvalidSignature) ||
		errors.Is(err, service.ErrTokenExpired) ||
		errors.Is(err, service.ErrTokenPurposeMismatch) ||
		errors.Is(err, service.ErrTokenNotFound)
}
