package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionRecord is one crawl session. Summary is the JSON encoding of the
// session summary and Snapshot the encoded frontier snapshot.
type SessionRecord struct {
	ID             string
	State          string
	PagesProcessed int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Summary        []byte
	Snapshot       []byte
}

// SessionMetadata describes a session without loading its blobs.
type SessionMetadata struct {
	ID             string
	State          string
	PagesProcessed int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	HasSnapshot    bool
}

// SaveSession inserts or updates a session. Empty State and nil Summary or
// Snapshot keep the stored values, so the summary and the resumable
// snapshot can be written independently.
func (cdb *CrawlDB) SaveSession(ctx context.Context, rec *SessionRecord) error {
	if rec == nil || rec.ID == "" {
		return ErrInvalidSession
	}

	now := time.Now()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	query := `
	INSERT INTO sessions (session_id, state, pages_processed, created_at, updated_at, summary_json, snapshot_blob)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		state = COALESCE(NULLIF(excluded.state, ''), sessions.state),
		pages_processed = MAX(excluded.pages_processed, sessions.pages_processed),
		updated_at = excluded.updated_at,
		summary_json = COALESCE(excluded.summary_json, sessions.summary_json),
		snapshot_blob = COALESCE(excluded.snapshot_blob, sessions.snapshot_blob)
	`

	_, err := cdb.db.ExecContext(ctx, query,
		rec.ID,
		rec.State,
		rec.PagesProcessed,
		formatTimestamp(created),
		formatTimestamp(updated),
		nullableText(rec.Summary),
		nullableBlob(rec.Snapshot),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession retrieves a session by ID. It returns nil, nil when the
// session is unknown.
func (cdb *CrawlDB) LoadSession(ctx context.Context, id string) (*SessionRecord, error) {
	query := `
	SELECT session_id, state, pages_processed, created_at, updated_at, summary_json, snapshot_blob
	FROM sessions
	WHERE session_id = ?
	`
	return cdb.scanSession(cdb.db.QueryRowContext(ctx, query, id))
}

// LatestSession retrieves the most recently updated session that has a
// snapshot. It returns nil, nil when there is none.
func (cdb *CrawlDB) LatestSession(ctx context.Context) (*SessionRecord, error) {
	query := `
	SELECT session_id, state, pages_processed, created_at, updated_at, summary_json, snapshot_blob
	FROM sessions
	WHERE snapshot_blob IS NOT NULL
	ORDER BY updated_at DESC, rowid DESC
	LIMIT 1
	`
	return cdb.scanSession(cdb.db.QueryRowContext(ctx, query))
}

func (cdb *CrawlDB) scanSession(row *sql.Row) (*SessionRecord, error) {
	var (
		rec      SessionRecord
		created  string
		updated  string
		summary  sql.NullString
		snapshot []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.State,
		&rec.PagesProcessed,
		&created,
		&updated,
		&summary,
		&snapshot,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rec.CreatedAt = parseTimestamp(created)
	rec.UpdatedAt = parseTimestamp(updated)
	if summary.Valid {
		rec.Summary = []byte(summary.String)
	}
	rec.Snapshot = snapshot
	return &rec, nil
}

// ListSessions returns the metadata of every session, most recent first.
func (cdb *CrawlDB) ListSessions(ctx context.Context) ([]SessionMetadata, error) {
	query := `
	SELECT session_id, state, pages_processed, created_at, updated_at, snapshot_blob IS NOT NULL
	FROM sessions
	ORDER BY updated_at DESC, rowid DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var results []SessionMetadata
	for rows.Next() {
		var (
			meta    SessionMetadata
			created string
			updated string
		)
		if err := rows.Scan(&meta.ID, &meta.State, &meta.PagesProcessed, &created, &updated, &meta.HasSnapshot); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		meta.CreatedAt = parseTimestamp(created)
		meta.UpdatedAt = parseTimestamp(updated)
		results = append(results, meta)
	}

	return results, rows.Err()
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func nullableBlob(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
