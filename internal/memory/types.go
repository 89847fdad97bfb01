// Package memory persists the chat log and scraped news.
package memory

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTurn is returned when a turn lacks its user or message.
var ErrInvalidTurn = errors.New("chat turn requires user id and message")

// ChatTurn is one stored exchange. Turns are append-only.
type ChatTurn struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Message     string    `json:"message"`
	Response    string    `json:"response"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewsItem is one scraped headline. Items are unique by (Title, Link).
type NewsItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	// Rank is the position within the scrape that produced the item and
	// orders items sharing a CreatedAt.
	Rank      int       `json:"rank"`
	CreatedAt time.Time `json:"created_at"`
}

// NewsKey derives the storage key of a headline from its title and link.
func NewsKey(title, link string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(title) + "|" + strings.TrimSpace(link)))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// ChatStore appends chat turns and reads them back by user, most recent first.
type ChatStore interface {
	Append(ctx context.Context, turn ChatTurn) error
	ListRecent(ctx context.Context, userID string, limit int) ([]ChatTurn, error)
}

// NewsStore keeps deduplicated headlines.
type NewsStore interface {
	// AppendNews stores items not seen before and returns those it stored.
	AppendNews(ctx context.Context, items []NewsItem) ([]NewsItem, error)
	// LatestNews returns up to limit items, newest scrape first.
	LatestNews(ctx context.Context, limit int) ([]NewsItem, error)
}

// Store is a backend serving both collections.
type Store interface {
	ChatStore
	NewsStore
	Ping(ctx context.Context) error
	Kind() string
	Close() error
}

func prepareTurn(turn ChatTurn) (ChatTurn, error) {
	if strings.TrimSpace(turn.UserID) == "" || strings.TrimSpace(turn.Message) == "" {
		return ChatTurn{}, ErrInvalidTurn
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	turn.CreatedAt = turn.CreatedAt.UTC()
	return turn, nil
}

func prepareNews(items []NewsItem) []NewsItem {
	now := time.Now().UTC()
	out := make([]NewsItem, 0, len(items))
	for _, it := range items {
		it.Title = strings.TrimSpace(it.Title)
		it.Link = strings.TrimSpace(it.Link)
		if it.Title == "" || it.Link == "" {
			continue
		}
		it.ID = NewsKey(it.Title, it.Link)
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		it.CreatedAt = it.CreatedAt.UTC()
		if !it.PublishedAt.IsZero() {
			it.PublishedAt = it.PublishedAt.UTC()
		}
		out = append(out, it)
	}
	return out
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
