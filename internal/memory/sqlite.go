package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/ent0n29/pitwall/migrations"
)

// Fixed width so that created_at sorts lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists turns and news in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at dsn and runs pending migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, turn ChatTurn) error {
	turn, err := prepareTurn(turn)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_turns (id, user_id, message, response, pii_redacted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.UserID, turn.Message, turn.Response, boolToInt(turn.PIIRedacted),
		turn.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert chat turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRecent(ctx context.Context, userID string, limit int) ([]ChatTurn, error) {
	limit = clampLimit(limit, 10)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, message, response, pii_redacted, created_at
		 FROM chat_turns WHERE user_id = ?
		 ORDER BY created_at DESC, seq DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ChatTurn
	for rows.Next() {
		var (
			t        ChatTurn
			redacted int
			created  string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Message, &t.Response, &redacted, &created); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		t.PIIRedacted = redacted != 0
		if t.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat turns: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AppendNews(ctx context.Context, items []NewsItem) ([]NewsItem, error) {
	prepared := prepareNews(items)
	if len(prepared) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin news tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var added []NewsItem
	for _, it := range prepared {
		var published *string
		if !it.PublishedAt.IsZero() {
			v := it.PublishedAt.Format(timeLayout)
			published = &v
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO news_items (id, title, link, summary, source, published_at, rank, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.Title, it.Link, it.Summary, it.Source, published, it.Rank,
			it.CreatedAt.Format(timeLayout),
		)
		if err != nil {
			return nil, fmt.Errorf("insert news item: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if n > 0 {
			added = append(added, it)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit news tx: %w", err)
	}
	return added, nil
}

func (s *SQLiteStore) LatestNews(ctx context.Context, limit int) ([]NewsItem, error) {
	limit = clampLimit(limit, 10)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, link, summary, source, published_at, rank, created_at
		 FROM news_items ORDER BY created_at DESC, rank ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []NewsItem
	for rows.Next() {
		var (
			it        NewsItem
			published sql.NullString
			created   string
		)
		if err := rows.Scan(&it.ID, &it.Title, &it.Link, &it.Summary, &it.Source, &published, &it.Rank, &created); err != nil {
			return nil, fmt.Errorf("scan news item: %w", err)
		}
		if published.Valid {
			it.PublishedAt, _ = time.Parse(timeLayout, published.String)
		}
		if it.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate news: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Kind() string { return "sqlite" }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
