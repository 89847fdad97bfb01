package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists turns and news in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_turns (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			message TEXT NOT NULL,
			response TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_user_created ON chat_turns (user_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS news_items (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			link TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ,
			rank INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (title, link)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_news_items_created ON news_items (created_at DESC, rank);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, turn ChatTurn) error {
	turn, err := prepareTurn(turn)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_turns (id, user_id, message, response, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID,
		turn.UserID,
		turn.Message,
		turn.Response,
		turn.PIIRedacted,
		turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, userID string, limit int) ([]ChatTurn, error) {
	limit = clampLimit(limit, 10)

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, message, response, pii_redacted, created_at
		 FROM chat_turns WHERE user_id=$1 ORDER BY created_at DESC, seq DESC LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	items := make([]ChatTurn, 0, limit)
	for rows.Next() {
		var t ChatTurn
		if err := rows.Scan(&t.ID, &t.UserID, &t.Message, &t.Response, &t.PIIRedacted, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AppendNews(ctx context.Context, items []NewsItem) ([]NewsItem, error) {
	prepared := prepareNews(items)
	if len(prepared) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, it := range prepared {
		var published *time.Time
		if !it.PublishedAt.IsZero() {
			p := it.PublishedAt
			published = &p
		}
		batch.Queue(
			`INSERT INTO news_items (id, title, link, summary, source, published_at, rank, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT DO NOTHING`,
			it.ID, it.Title, it.Link, it.Summary, it.Source, published, it.Rank, it.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var added []NewsItem
	for _, it := range prepared {
		tag, err := results.Exec()
		if err != nil {
			return added, fmt.Errorf("insert news item: %w", err)
		}
		if tag.RowsAffected() > 0 {
			added = append(added, it)
		}
	}
	return added, nil
}

func (s *PostgresStore) LatestNews(ctx context.Context, limit int) ([]NewsItem, error) {
	limit = clampLimit(limit, 10)

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, link, summary, source, published_at, rank, created_at
		 FROM news_items ORDER BY created_at DESC, rank ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	defer rows.Close()

	items := make([]NewsItem, 0, limit)
	for rows.Next() {
		var (
			it        NewsItem
			published *time.Time
		)
		if err := rows.Scan(&it.ID, &it.Title, &it.Link, &it.Summary, &it.Source, &published, &it.Rank, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan news row: %w", err)
		}
		if published != nil {
			it.PublishedAt = published.UTC()
		}
		it.CreatedAt = it.CreatedAt.UTC()
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate news rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Kind() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
