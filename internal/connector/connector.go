package connector

import (
	"context"
)

// PostSource retrieves the text of a user's posts, oldest first.
type PostSource interface {
	// FetchPosts returns the content of every post by userID. A user with no
	// posts yields an empty slice and no error.
	FetchPosts(ctx context.Context, userID string) ([]string, error)
}

// Config holds provider-specific connection settings.
type Config struct {
	Provider string
	APIKey   string
	Endpoint string
	Extra    map[string]string
}
