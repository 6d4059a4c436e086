package fetcher

import "time"

const (
	// DefaultUserAgent identifies the crawler.
	DefaultUserAgent = "WebSpider/1.0 (+https://github.com/nao1215/webspider)"
	// DefaultTimeout bounds one attempt, redirects included.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the redirect limit.
	DefaultMaxRedirects = 5
	// DefaultMaxAttempts is the number of attempts per fetch.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the first backoff delay. It doubles per attempt.
	DefaultBaseDelay = 2000 * time.Millisecond
	// DefaultMaxBodySize is the body size ceiling.
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// DefaultAllowedContentTypes is the HTML/XHTML/XML family.
var DefaultAllowedContentTypes = []string{
	"text/html",
	"application/xhtml+xml",
	"text/xml",
	"application/xml",
}

// Config controls request headers, retries and content gating.
type Config struct {
	UserAgent           string
	Timeout             time.Duration
	MaxRedirects        int
	MaxAttempts         int
	BaseDelay           time.Duration
	MaxBodySize         int64
	AllowedContentTypes []string

	// RequestsPerSecond is a process-wide request ceiling. Zero disables it.
	RequestsPerSecond float64
}

// DefaultConfig returns the default fetch settings.
func DefaultConfig() Config {
	return Config{
		UserAgent:           DefaultUserAgent,
		Timeout:             DefaultTimeout,
		MaxRedirects:        DefaultMaxRedirects,
		MaxAttempts:         DefaultMaxAttempts,
		BaseDelay:           DefaultBaseDelay,
		MaxBodySize:         DefaultMaxBodySize,
		AllowedContentTypes: DefaultAllowedContentTypes,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = d.MaxRedirects
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = d.MaxBodySize
	}
	if len(c.AllowedContentTypes) == 0 {
		c.AllowedContentTypes = d.AllowedContentTypes
	}
	return c
}
