package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nao1215/webspider/internal/model"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS pages (
	url TEXT PRIMARY KEY,
	host TEXT NOT NULL,
	status_code INTEGER,
	content_type TEXT,
	content_size INTEGER,
	depth INTEGER,
	source TEXT,
	parent TEXT,
	title TEXT,
	description TEXT,
	language TEXT,
	canonical TEXT,
	content_hash TEXT,
	headers JSONB,
	content_json JSONB,
	crawled_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_host ON pages(host);
`

const pgUpsertPage = `
INSERT INTO pages (url, host, status_code, content_type, content_size, depth, source, parent,
	title, description, language, canonical, content_hash, headers, content_json, crawled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, '')::jsonb, $16)
ON CONFLICT (url) DO UPDATE SET
	host = EXCLUDED.host,
	status_code = EXCLUDED.status_code,
	content_type = EXCLUDED.content_type,
	content_size = EXCLUDED.content_size,
	depth = EXCLUDED.depth,
	source = EXCLUDED.source,
	parent = EXCLUDED.parent,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	language = EXCLUDED.language,
	canonical = EXCLUDED.canonical,
	content_hash = EXCLUDED.content_hash,
	headers = EXCLUDED.headers,
	content_json = EXCLUDED.content_json,
	crawled_at = EXCLUDED.crawled_at
`

// PGStore writes pages to PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to dsn and creates the pages table if needed.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PGStore{pool: pool}, nil
}

// Ping checks the connection.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Store implements the crawler's Sink with an upsert by URL.
func (s *PGStore) Store(ctx context.Context, page *model.PageRecord) error {
	if page == nil || page.URL == "" {
		return ErrInvalidPage
	}
	row, err := newPageRow(page)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, pgUpsertPage,
		row.url,
		row.host,
		row.statusCode,
		row.contentType,
		row.contentSize,
		row.depth,
		row.source,
		row.parent,
		row.title,
		row.description,
		row.language,
		row.canonical,
		row.hash,
		row.headers,
		row.contentJSON,
		row.crawledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store page: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}
