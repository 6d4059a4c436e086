package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and File.Validate() so that
// callers can use errors.Is() for programmatic error handling.
var (
	// ErrNoSeeds is returned when neither seed URLs nor --resume are given.
	ErrNoSeeds = errors.New("no seeds specified: provide at least one URL or use --resume")

	// ErrInvalidTimeout is returned when the session timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxPages is returned when the page budget is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidMaxDepth is returned when the depth limit is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidConcurrency is returned when the global or per-host
	// concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidRetries is returned when the retry count is not positive or
	// the retry delay is negative.
	ErrInvalidRetries = errors.New("invalid retry settings: max retries must be positive and retry delay non-negative")

	// ErrInvalidRate is returned when the requests-per-second ceiling is negative.
	ErrInvalidRate = errors.New("invalid requests per second: must be non-negative")

	// ErrInvalidStateStore is returned for an unknown --state-store value.
	ErrInvalidStateStore = errors.New("invalid state store: must be file, redis or sqlite")

	// ErrConflictingProxies is returned when both --socks5 and --tor are set.
	ErrConflictingProxies = errors.New("conflicting proxies: --socks5 and --tor cannot be used together")

	// ErrSQLiteDisabled is returned when the sqlite state store is selected
	// together with --no-db.
	ErrSQLiteDisabled = errors.New("sqlite state store requires the database: remove --no-db")

	// ErrInvalidDuration is returned when a duration in the config file
	// cannot be parsed.
	ErrInvalidDuration = errors.New("invalid duration")
)
