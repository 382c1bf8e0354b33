package supabase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/crimson-sun/persona/internal/connector"
	"github.com/crimson-sun/persona/internal/connector/httpclient"
	"github.com/crimson-sun/persona/internal/model"
)

const (
	defaultTable         = "posts"
	defaultUserColumn    = "user_id"
	defaultContentColumn = "content"
	defaultOrderColumn   = "created_at"
	defaultPageSize      = 1000
)

func init() {
	connector.Register("supabase", func(cfg connector.Config) (connector.PostSource, error) {
		return New(cfg)
	})
}

// Source reads posts from a Supabase project's PostgREST endpoint.
type Source struct {
	client        *httpclient.Client
	table         string
	userColumn    string
	contentColumn string
	orderColumn   string
	pageSize      int
}

// New builds a Source. cfg.Endpoint is the project URL and cfg.APIKey the
// service or anon key. Extra keys: table, user_column, content_column,
// order_column, page_size.
func New(cfg connector.Config) (*Source, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("supabase connector: missing project URL")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase connector: missing API key")
	}

	s := &Source{
		table:         orDefault(cfg.Extra["table"], defaultTable),
		userColumn:    orDefault(cfg.Extra["user_column"], defaultUserColumn),
		contentColumn: orDefault(cfg.Extra["content_column"], defaultContentColumn),
		orderColumn:   orDefault(cfg.Extra["order_column"], defaultOrderColumn),
		pageSize:      defaultPageSize,
	}
	for _, name := range []string{s.table, s.userColumn, s.contentColumn, s.orderColumn} {
		if !validIdentifier(name) {
			return nil, fmt.Errorf("supabase connector: invalid identifier %q", name)
		}
	}
	if raw := cfg.Extra["page_size"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("supabase connector: invalid page_size %q", raw)
		}
		s.pageSize = n
	}

	opts := []httpclient.Option{httpclient.WithHeader("apikey", cfg.APIKey)}
	if raw := cfg.Extra["timeout"]; raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			opts = append(opts, httpclient.WithTimeout(d))
		}
	}
	s.client = httpclient.New(cfg.Endpoint, cfg.APIKey, opts...)
	return s, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// validIdentifier accepts plain Postgres identifiers only, since they are
// interpolated into the request path and query.
func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// FetchPosts implements connector.PostSource.
func (s *Source) FetchPosts(ctx context.Context, userID string) ([]string, error) {
	posts, err := s.Posts(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Content)
	}
	return out, nil
}

// Posts returns the user's posts, oldest first, paging through the table.
// Rows whose content is missing or not a string are skipped.
func (s *Source) Posts(ctx context.Context, userID string) ([]model.Post, error) {
	path := "/rest/v1/" + s.table
	selectCols := s.contentColumn + "," + s.orderColumn

	posts := make([]model.Post, 0)
	for offset := 0; ; offset += s.pageSize {
		q := url.Values{}
		q.Set("select", selectCols)
		q.Set(s.userColumn, "eq."+userID)
		q.Set("order", s.orderColumn+".asc")
		q.Set("limit", strconv.Itoa(s.pageSize))
		q.Set("offset", strconv.Itoa(offset))

		var rows []map[string]any
		if err := s.client.GetJSON(ctx, path, q, &rows); err != nil {
			return nil, fmt.Errorf("supabase connector: %w", err)
		}
		for _, row := range rows {
			p, ok := s.toPost(row, userID)
			if !ok {
				slog.Debug("skipping post row without text content", "component", "supabase", "user_id", userID)
				continue
			}
			posts = append(posts, p)
		}
		if len(rows) < s.pageSize {
			break
		}
	}
	return posts, nil
}

func (s *Source) toPost(row map[string]any, userID string) (model.Post, bool) {
	content, ok := row[s.contentColumn].(string)
	if !ok {
		return model.Post{}, false
	}
	p := model.Post{UserID: userID, Content: content}
	if raw, ok := row[s.orderColumn].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			p.CreatedAt = ts
		}
	}
	return p, true
}
