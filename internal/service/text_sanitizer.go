package service

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer limpia texto libre ingresado por usuarios.
type TextSanitizer interface {
	Sanitize(raw string) string
}

type strictSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer elimina todo HTML; el texto queda escapado para mostrarse tal cual.
func NewTextSanitizer() TextSanitizer {
	return &strictSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *strictSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// BlankFieldError indica un campo obligatorio que queda vacio una vez
// recortado o sanitizado.
type BlankFieldError struct {
	Field string
}

func (e *BlankFieldError) Error() string {
	return e.Field + " is required"
}
