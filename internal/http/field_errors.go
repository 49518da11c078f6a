package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"profile-api/internal/service"
	"profile-api/internal/validation"
)

// respondBlankField escribe el 400 con el mismo formato que los errores de
// validacion cuando el servicio rechaza un campo vacio.
func respondBlankField(c *gin.Context, err error) bool {
	var blank *service.BlankFieldError
	if !errors.As(err, &blank) {
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"errors": []validation.FieldError{{
		Type:     "field",
		Value:    "",
		Msg:      blank.Error(),
		Path:     blank.Field,
		Location: "body",
	}}})
	return true
}
