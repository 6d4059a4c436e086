package config

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/webspider/internal/crawler"
	"github.com/nao1215/webspider/internal/fetcher"
	"github.com/nao1215/webspider/internal/frontier"
	"github.com/nao1215/webspider/internal/politeness"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "webspider"

	// DefaultMaxPages is the page budget of a session.
	DefaultMaxPages = crawler.DefaultMaxPages

	// DefaultMaxDepth is the hop limit from a seed.
	DefaultMaxDepth = crawler.DefaultMaxDepth

	// DefaultTimeout bounds a whole session.
	DefaultTimeout = crawler.DefaultTimeout

	// DefaultConcurrency is the number of requests in flight across all hosts.
	DefaultConcurrency = politeness.DefaultMaxGlobal

	// DefaultPerHost is the number of requests in flight to one host.
	DefaultPerHost = politeness.DefaultMaxPerHost

	// DefaultCrawlDelay is the starting delay between requests to one host.
	DefaultCrawlDelay = politeness.DefaultCrawlDelay

	// DefaultUserAgent identifies webspider in HTTP requests.
	DefaultUserAgent = fetcher.DefaultUserAgent

	// DefaultMaxRetries is the number of attempts a URL gets in the frontier.
	DefaultMaxRetries = frontier.DefaultMaxRetries

	// DefaultRetryDelay is the first frontier retry delay.
	DefaultRetryDelay = frontier.DefaultRetryDelay

	// DefaultMaxBodySize limits the response body size to read.
	DefaultMaxBodySize = fetcher.DefaultMaxBodySize

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultRedisAddr is the Redis address of the redis state store.
	DefaultRedisAddr = "127.0.0.1:6379"
)

// State store backends accepted by --state-store.
const (
	StateStoreFile   = "file"
	StateStoreRedis  = "redis"
	StateStoreSQLite = "sqlite"
)

// Config holds all options of a crawl run. It is populated from CLI flags
// and an optional config file and passed through the application rather
// than kept in global state.
type Config struct {
	// Seeds are the URLs the crawl starts from.
	Seeds []string

	// MaxPages is the number of successfully processed pages after which
	// the session ends.
	MaxPages int

	// MaxDepth stops link discovery on pages this many hops from a seed.
	MaxDepth int

	// Timeout bounds the whole session.
	Timeout time.Duration

	// Concurrency is the number of requests in flight across all hosts.
	Concurrency int

	// PerHost is the number of requests in flight to one host.
	PerHost int

	// CrawlDelay is the starting delay between requests to one host.
	// robots.txt Crawl-delay and per-site settings can only raise it.
	CrawlDelay time.Duration

	// UserAgent is sent with every request and matched against robots.txt.
	UserAgent string

	// SameHost disables links to hosts other than the page's own.
	SameHost bool

	// NoRobots disables robots.txt checks.
	NoRobots bool

	// NoSitemaps disables sitemap discovery.
	NoSitemaps bool

	// MaxRetries is the number of attempts a URL gets before it is dropped.
	MaxRetries int

	// RetryDelay is the first frontier retry delay. It doubles per failure.
	RetryDelay time.Duration

	// MaxBodySize is the response body ceiling in bytes.
	MaxBodySize int64

	// RequestsPerSecond is a process-wide request ceiling. Zero disables it.
	RequestsPerSecond float64

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches the log output to JSON.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .webspider is searched in the current and home directory.
	ConfigFilePath string

	// SiteConfigs holds the loaded configuration file, if any.
	SiteConfigs *File

	// JSONReport enables JSON report output.
	JSONReport bool

	// MarkdownReport enables Markdown report output.
	MarkdownReport bool

	// ReportFile is the output file path for the report. Stdout when empty.
	ReportFile string

	// Resume is the session to continue: an ID or "latest".
	Resume string

	// StateStore selects where resumable state is kept: file, redis or sqlite.
	StateStore string

	// RedisAddr is the address of the redis state store.
	RedisAddr string

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory.
	DBDir string

	// NoDB disables the SQLite page and session store.
	NoDB bool

	// PostgresDSN enables the PostgreSQL page sink.
	PostgresDSN string

	// SOCKS5Address routes all requests through a SOCKS5 proxy ("host:port").
	SOCKS5Address string

	// UseTor starts an embedded Tor daemon and routes through it.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to start and bootstrap.
	TorStartupTimeout time.Duration

	// ListenAddr starts the status server when set.
	ListenAddr string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxPages:          DefaultMaxPages,
		MaxDepth:          DefaultMaxDepth,
		Timeout:           DefaultTimeout,
		Concurrency:       DefaultConcurrency,
		PerHost:           DefaultPerHost,
		CrawlDelay:        DefaultCrawlDelay,
		UserAgent:         DefaultUserAgent,
		MaxRetries:        DefaultMaxRetries,
		RetryDelay:        DefaultRetryDelay,
		MaxBodySize:       DefaultMaxBodySize,
		StateStore:        StateStoreFile,
		RedisAddr:         DefaultRedisAddr,
		DBDir:             XDGDataDir(),
		TorStartupTimeout: DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for webspider.
// On Linux: ~/.local/share/webspider
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for webspider.
// On Linux: ~/.config/webspider
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for webspider.
// On Linux: ~/.cache/webspider
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// StateDir is the directory of the file state store, inside DBDir.
func (c *Config) StateDir() string {
	dir := c.DBDir
	if dir == "" {
		dir = XDGDataDir()
	}
	return filepath.Join(dir, "sessions")
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 && c.Resume == "" {
		return ErrNoSeeds
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.Concurrency <= 0 || c.PerHost <= 0 {
		return ErrInvalidConcurrency
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.MaxRetries <= 0 || c.RetryDelay < 0 {
		return ErrInvalidRetries
	}
	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}
	if !slices.Contains([]string{StateStoreFile, StateStoreRedis, StateStoreSQLite}, c.StateStore) {
		return ErrInvalidStateStore
	}
	if c.StateStore == StateStoreSQLite && c.NoDB {
		return ErrSQLiteDisabled
	}
	if c.SOCKS5Address != "" && c.UseTor {
		return ErrConflictingProxies
	}
	return nil
}

// EngineConfig translates the options into the crawl engine settings.
func (c *Config) EngineConfig() crawler.Config {
	cfg := crawler.DefaultConfig()
	cfg.MaxPages = c.MaxPages
	cfg.MaxDepth = c.MaxDepth
	cfg.Timeout = c.Timeout
	cfg.FollowExternalLinks = !c.SameHost
	if len(c.Seeds) > 0 {
		cfg.Scheme = SchemeFor(c.Seeds)
	}
	cfg.RespectRobots = !c.NoRobots
	cfg.ProcessSitemaps = !c.NoSitemaps

	cfg.Politeness.DefaultDelay = c.CrawlDelay
	cfg.Politeness.MaxGlobal = c.Concurrency
	cfg.Politeness.MaxPerHost = c.PerHost

	cfg.Fetch.UserAgent = c.UserAgent
	cfg.Fetch.RequestsPerSecond = c.RequestsPerSecond
	if c.MaxBodySize > 0 {
		cfg.Fetch.MaxBodySize = c.MaxBodySize
	}

	cfg.Frontier.MaxRetries = c.MaxRetries
	if c.RetryDelay > 0 {
		cfg.Frontier.RetryDelay = c.RetryDelay
	}
	return cfg
}

// SchemeFor returns the scheme used for robots.txt and sitemap lookups:
// "http" when every URL is plain HTTP, "https" otherwise.
func SchemeFor(urls []string) string {
	if len(urls) == 0 {
		return "https"
	}
	for _, u := range urls {
		if !strings.HasPrefix(strings.ToLower(u), "http://") {
			return "https"
		}
	}
	return "http"
}
