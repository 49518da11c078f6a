// Package validation valida los bodies de request y arma errores por campo.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"profile-api/internal/domain"
)

// FieldError replica el formato {type, value, msg, path, location} que consume el frontend.
type FieldError struct {
	Type     string `json:"type"`
	Value    any    `json:"value"`
	Msg      string `json:"msg"`
	Path     string `json:"path"`
	Location string `json:"location"`
}

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return domain.ValidPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return validPhone(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct valida obj y devuelve la lista de errores por campo; nil si es valido.
// location indica de donde vino el dato ("body", "query").
func (val *Validator) Struct(obj any, location string) []FieldError {
	err := val.v.Struct(obj)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Type: "field", Msg: err.Error(), Location: location}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Type:     "field",
			Value:    fieldValue(fe),
			Msg:      message(fe),
			Path:     fe.Field(),
			Location: location,
		})
	}
	return out
}

func fieldValue(fe validator.FieldError) any {
	if fe.Field() == "password" {
		return ""
	}
	v := reflect.ValueOf(fe.Value())
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		return v.Elem().Interface()
	}
	return fe.Value()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "email address is not valid"
	case "password":
		return fmt.Sprintf("password must be between %d and %d characters", domain.PasswordMinLen, domain.PasswordMaxLen)
	case "phone":
		return "phone must contain up to 15 digits and an optional leading +"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// validPhone cuenta el + dentro de los 15 caracteres de profiles.phone.
func validPhone(s string) bool {
	if len(s) > 15 {
		return false
	}
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
