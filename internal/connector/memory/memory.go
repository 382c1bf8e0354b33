// Package memory provides a PostSource backed by an in-process map,
// optionally seeded from a JSON file of {"user_id": ["post", ...]}.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/connector"
)

func init() {
	connector.Register("memory", func(cfg connector.Config) (connector.PostSource, error) {
		if path := cfg.Extra["path"]; path != "" {
			return Load(path)
		}
		return New(nil), nil
	})
}

// Source is a concurrency-safe in-memory post store.
type Source struct {
	mu    sync.RWMutex
	posts map[string][]string
}

// New creates a Source holding a copy of posts.
func New(posts map[string][]string) *Source {
	s := &Source{posts: make(map[string][]string, len(posts))}
	for user, p := range posts {
		s.posts[user] = append([]string(nil), p...)
	}
	return s
}

// Load reads a JSON fixture file.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memory connector: %w", err)
	}
	var posts map[string][]string
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("memory connector: decode %s: %w", path, err)
	}
	return New(posts), nil
}

// Add appends posts for a user.
func (s *Source) Add(userID string, posts ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[userID] = append(s.posts[userID], posts...)
}

// FetchPosts implements connector.PostSource.
func (s *Source) FetchPosts(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(make([]string, 0, len(s.posts[userID])), s.posts[userID]...), nil
}
