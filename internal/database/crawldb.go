package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/webspider/internal/model"
)

// FileName is the name of the database file inside the data directory.
const FileName = "webspider.db"

// CrawlDB provides SQLite-based storage for pages and sessions.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
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
		headers TEXT,
		content_json TEXT,
		crawled_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_pages_host ON pages(host);
	CREATE INDEX IF NOT EXISTS idx_pages_crawled_at ON pages(crawled_at);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		state TEXT NOT NULL DEFAULT '',
		pages_processed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		summary_json TEXT,
		snapshot_blob BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// pageRow is the flattened form of a PageRecord shared by the SQLite and
// PostgreSQL stores.
type pageRow struct {
	url         string
	host        string
	statusCode  int
	contentType string
	contentSize int
	depth       int
	source      string
	parent      string
	title       string
	description string
	language    string
	canonical   string
	hash        string
	headers     string
	contentJSON string
	crawledAt   time.Time
}

func newPageRow(page *model.PageRecord) (pageRow, error) {
	headersJSON, err := json.Marshal(page.Headers)
	if err != nil {
		return pageRow{}, fmt.Errorf("failed to serialize headers: %w", err)
	}

	row := pageRow{
		url:         page.URL,
		host:        page.Host,
		statusCode:  page.StatusCode,
		contentType: page.ContentType,
		contentSize: page.ContentSize,
		depth:       page.Depth,
		source:      page.Source,
		parent:      page.Parent,
		hash:        page.Hash,
		headers:     string(headersJSON),
		crawledAt:   page.CrawledAt.UTC(),
	}
	if row.crawledAt.IsZero() {
		row.crawledAt = time.Now().UTC()
	}
	if page.Content != nil {
		contentJSON, err := json.Marshal(page.Content)
		if err != nil {
			return pageRow{}, fmt.Errorf("failed to serialize content: %w", err)
		}
		row.contentJSON = string(contentJSON)
		row.title = page.Content.Title
		row.description = page.Content.Description
		row.language = page.Content.Language
		row.canonical = page.Content.Canonical
	}
	return row, nil
}

// StorePage inserts or updates the row of page.URL.
func (cdb *CrawlDB) StorePage(ctx context.Context, page *model.PageRecord) error {
	if page == nil || page.URL == "" {
		return ErrInvalidPage
	}
	row, err := newPageRow(page)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO pages (url, host, status_code, content_type, content_size, depth, source, parent,
		title, description, language, canonical, content_hash, headers, content_json, crawled_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		host = excluded.host,
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		content_size = excluded.content_size,
		depth = excluded.depth,
		source = excluded.source,
		parent = excluded.parent,
		title = excluded.title,
		description = excluded.description,
		language = excluded.language,
		canonical = excluded.canonical,
		content_hash = excluded.content_hash,
		headers = excluded.headers,
		content_json = excluded.content_json,
		crawled_at = excluded.crawled_at
	`

	_, err = cdb.db.ExecContext(ctx, query,
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
		formatTimestamp(row.crawledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store page: %w", err)
	}
	return nil
}

// Store implements the crawler's Sink.
func (cdb *CrawlDB) Store(ctx context.Context, page *model.PageRecord) error {
	return cdb.StorePage(ctx, page)
}

// GetPage retrieves the page stored under url. It returns nil, nil when the
// page is unknown.
func (cdb *CrawlDB) GetPage(ctx context.Context, url string) (*model.PageRecord, error) {
	query := `
	SELECT url, host, status_code, content_type, content_size, depth, source, parent,
		content_hash, headers, content_json, crawled_at
	FROM pages
	WHERE url = ?
	`

	var (
		page        model.PageRecord
		headersJSON sql.NullString
		contentJSON sql.NullString
		crawledAt   string
	)
	err := cdb.db.QueryRowContext(ctx, query, url).Scan(
		&page.URL,
		&page.Host,
		&page.StatusCode,
		&page.ContentType,
		&page.ContentSize,
		&page.Depth,
		&page.Source,
		&page.Parent,
		&page.Hash,
		&headersJSON,
		&contentJSON,
		&crawledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	page.CrawledAt = parseTimestamp(crawledAt)

	if headersJSON.Valid && headersJSON.String != "" {
		if err := json.Unmarshal([]byte(headersJSON.String), &page.Headers); err != nil {
			return nil, fmt.Errorf("failed to parse headers: %w", err)
		}
	}
	if contentJSON.Valid && contentJSON.String != "" {
		var content model.Content
		if err := json.Unmarshal([]byte(contentJSON.String), &content); err != nil {
			return nil, fmt.Errorf("failed to parse content: %w", err)
		}
		page.Content = &content
	}

	return &page, nil
}

// CountPages returns the number of stored pages of host, or of all hosts
// when host is empty.
func (cdb *CrawlDB) CountPages(ctx context.Context, host string) (int, error) {
	query := "SELECT COUNT(*) FROM pages"
	var args []any
	if host != "" {
		query += " WHERE host = ?"
		args = append(args, host)
	}

	var count int
	if err := cdb.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}

// timestampLayout is fixed-width so that stored timestamps sort as text.
const timestampLayout = "2006-01-02 15:04:05.000000000"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, it returns the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
