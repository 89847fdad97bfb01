package memory

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a backend from the scheme of databaseURL. An empty URL
// selects the in-memory store.
func NewStore(ctx context.Context, databaseURL, mongoDatabase string) (Store, error) {
	u := strings.TrimSpace(databaseURL)
	lower := strings.ToLower(u)
	switch {
	case u == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return NewPostgresStore(ctx, u)
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		return NewMongoStore(ctx, u, mongoDatabase)
	case strings.HasPrefix(lower, "sqlite://"):
		return NewSQLiteStore(u[len("sqlite://"):])
	case strings.HasPrefix(lower, "file:"), u == ":memory:":
		return NewSQLiteStore(u)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme in %q", redactURL(u))
	}
}

func redactURL(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		return u[:i+3] + "..."
	}
	return "..."
}
