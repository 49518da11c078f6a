package domain

import "time"

// TokenPurpose identifica el unico uso valido de un token firmado.
type TokenPurpose string

const (
	PurposeConfirmRegistration TokenPurpose = "confirm-registration"
	PurposeSession             TokenPurpose = "session"
	PurposeResetPassword       TokenPurpose = "reset-password"
)

// Tracked indica si el token debe figurar en el store de tokens activos
// para ser aceptado. Los de confirmacion se controlan via el registro pendiente.
func (p TokenPurpose) Tracked() bool {
	return p == PurposeSession || p == PurposeResetPassword
}

type IssuedToken struct {
	Token     string       `json:"token"`
	JTI       string       `json:"-"`
	Purpose   TokenPurpose `json:"-"`
	ExpiresAt time.Time    `json:"expiresAt"`
}
