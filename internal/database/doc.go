// Package database persists crawled pages and crawl sessions.
//
// CrawlDB is the default store, a single SQLite file (modernc.org/sqlite,
// CGO-free) under the XDG data directory. It holds two tables:
//   - pages: one row per normalized URL, upserted on every recrawl
//   - sessions: one row per crawl session with its summary and the frontier
//     snapshot needed to resume it
//
// PGStore is an optional PostgreSQL sink (jackc/pgx) that receives the same
// page rows. It is enabled with --postgres-dsn and does not store sessions.
//
// Both stores implement the crawler's Sink interface through Store.
package database
