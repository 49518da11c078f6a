package domain

import "time"

// Profile es la relacion uno a uno con User.
type Profile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Phone       string    `json:"phone"`
	Description string    `json:"description"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Commercial  bool      `json:"commercial"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserProfile es la vista combinada devuelta por GET /user/profile.
type UserProfile struct {
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Email       string   `json:"email"`
	Avatar      string   `json:"avatar"`
	Phone       string   `json:"phone"`
	Description string   `json:"description"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Commercial  bool     `json:"commercial"`
}

// AccountUpdate describe un update parcial; nil significa "sin cambios".
type AccountUpdate struct {
	FirstName   *string
	LastName    *string
	Phone       *string
	Description *string
	Latitude    *float64
	Longitude   *float64
	Commercial  *bool
}

func (u AccountUpdate) TouchesUser() bool {
	return u.FirstName != nil || u.LastName != nil
}

func (u AccountUpdate) TouchesProfile() bool {
	return u.Phone != nil || u.Description != nil || u.Latitude != nil || u.Longitude != nil || u.Commercial != nil
}
