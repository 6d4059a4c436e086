package crawler

import (
	"time"

	"github.com/nao1215/webspider/internal/fetcher"
	"github.com/nao1215/webspider/internal/frontier"
	"github.com/nao1215/webspider/internal/politeness"
)

const (
	// DefaultMaxPages is the page budget of a session.
	DefaultMaxPages = 100
	// DefaultMaxDepth is the maximum hop count from a seed.
	DefaultMaxDepth = 3
	// DefaultTimeout bounds a session.
	DefaultTimeout = 5 * time.Minute
	// DefaultShutdownTimeout is how long in-flight requests may finish after
	// the session ends.
	DefaultShutdownTimeout = 30 * time.Second
	// DefaultPollInterval is the longest the dispatcher sleeps when nothing
	// is eligible.
	DefaultPollInterval = time.Second

	// optimizeEvery is the processed-page interval between frontier sweeps.
	optimizeEvery = 50
)

// Config holds the session limits and the settings of every component the
// engine builds.
type Config struct {
	// MaxPages is the number of successfully processed pages after which
	// the session ends.
	MaxPages int

	// MaxDepth stops link discovery on pages this many hops from a seed.
	MaxDepth int

	// Timeout bounds the whole session.
	Timeout time.Duration

	// FollowExternalLinks allows discovered links to other hosts.
	FollowExternalLinks bool

	// ShutdownTimeout is the drain window for in-flight requests.
	ShutdownTimeout time.Duration

	// PollInterval is the idle wait of the dispatcher.
	PollInterval time.Duration

	// RespectRobots enables robots.txt checks.
	RespectRobots bool

	// ProcessSitemaps enables sitemap discovery, once per host.
	ProcessSitemaps bool

	// Scheme is used for robots.txt and sitemap locations.
	Scheme string

	// Politeness configures per-host delays and concurrency.
	Politeness politeness.Config

	// Fetch configures requests, retries and content gating.
	Fetch fetcher.Config

	// Frontier configures retry backoff and entry expiry.
	Frontier frontier.Config
}

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		MaxPages:            DefaultMaxPages,
		MaxDepth:            DefaultMaxDepth,
		Timeout:             DefaultTimeout,
		FollowExternalLinks: true,
		ShutdownTimeout:     DefaultShutdownTimeout,
		PollInterval:        DefaultPollInterval,
		RespectRobots:       true,
		ProcessSitemaps:     true,
		Scheme:              "https",
		Politeness:          politeness.DefaultConfig(),
		Fetch:               fetchConfig(),
		Frontier:            frontier.DefaultConfig(),
	}
}

// fetchConfig is the fetcher default with a single attempt per dispatch.
// Retries go back through the frontier so they are paced like any other
// request and hold no worker while they wait.
func fetchConfig() fetcher.Config {
	c := fetcher.DefaultConfig()
	c.MaxAttempts = 1
	return c
}

// withDefaults fills unset limits. MaxDepth may be zero.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.MaxDepth < 0 {
		c.MaxDepth = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Scheme == "" {
		c.Scheme = d.Scheme
	}
	return c
}
