package domain

import "time"

const MaxPostImages = 10

type Post struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Images      []PostImage `json:"images"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type PostImage struct {
	ID          string `json:"id"`
	PostID      string `json:"-"`
	StorageKey  string `json:"-"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Position    int    `json:"position"`
}
