package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PendingRegistration guarda los datos de un registro aun no confirmado.
// Vive solo en el store de pendientes; nunca se escribe en la base.
type PendingRegistration struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

const (
	PasswordMinLen = 5
	PasswordMaxLen = 8
)

// ValidPassword aplica la regla de longitud de contrasena (en caracteres).
func ValidPassword(p string) bool {
	n := len([]rune(p))
	return n >= PasswordMinLen && n <= PasswordMaxLen
}
