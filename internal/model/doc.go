// Package model defines the data structures shared by the crawl engine.
//
// This package contains the following main types:
//   - PageRecord: A fetched page with its crawl metadata, handed to sinks
//   - Content: The structured data extracted from an HTML page
//   - RobotsDirectives: Page-level indexing directives from X-Robots-Tag and
//     <meta name="robots">
//
// Models live in their own package so that fetcher, extract, crawler and the
// storage layers can share them without import cycles. All types serialize
// to JSON for reports and database storage.
package model
