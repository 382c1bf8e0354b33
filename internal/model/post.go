package model

import "time"

// Post is a single text item retrieved from the post store.
type Post struct {
	UserID    string
	Content   string
	CreatedAt time.Time
}
