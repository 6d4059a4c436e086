package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout is the maximum time spent fetching one robots.txt.
	DefaultTimeout = 10 * time.Second

	// maxBodySize caps how much of a robots.txt file is read.
	maxBodySize = 512 * 1024
)

// DefaultSelfTokens are the agent tokens that identify this crawler when they
// appear inside a User-agent line.
var DefaultSelfTokens = []string{"webspider", "spider"}

// HostUpdater receives the rules of a host once they are known.
// The politeness tracker implements it to raise the crawl delay and record
// the host's sitemaps.
type HostUpdater interface {
	ApplyRobots(host string, rules *Rules)
}

// Recorder receives compliance statistics.
type Recorder interface {
	// RecordRobotsCheck is called for every robots.txt fetch attempt.
	RecordRobotsCheck(host string)
	// RecordRobotsBlock is called when a URL is refused by the rules.
	RecordRobotsBlock(host string)
}

// Checker fetches, caches and evaluates robots.txt rules per host.
type Checker struct {
	client     *http.Client
	userAgent  string
	selfTokens []string
	timeout    time.Duration
	scheme     string
	hosts      HostUpdater
	recorder   Recorder
	logger     *slog.Logger

	mu    sync.RWMutex
	cache map[string]*Rules
	group singleflight.Group
}

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient sets the client used to fetch robots.txt.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithUserAgent sets the User-Agent sent with robots.txt requests and used to
// select the applicable blocks.
func WithUserAgent(ua string) Option {
	return func(c *Checker) {
		c.userAgent = ua
	}
}

// WithSelfTokens replaces the self-identification tokens.
func WithSelfTokens(tokens []string) Option {
	return func(c *Checker) {
		c.selfTokens = tokens
	}
}

// WithTimeout sets the robots.txt fetch timeout. Values above DefaultTimeout
// are clamped.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 && d <= DefaultTimeout {
			c.timeout = d
		}
	}
}

// WithScheme sets the scheme used to reach robots.txt (default "https").
func WithScheme(scheme string) Option {
	return func(c *Checker) {
		c.scheme = scheme
	}
}

// WithHostUpdater registers the component notified of newly fetched rules.
func WithHostUpdater(h HostUpdater) Option {
	return func(c *Checker) {
		c.hosts = h
	}
}

// WithRecorder registers the statistics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Checker) {
		c.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// NewChecker creates a Checker with the given options.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		client:     &http.Client{},
		userAgent:  "webspider",
		selfTokens: DefaultSelfTokens,
		timeout:    DefaultTimeout,
		scheme:     "https",
		logger:     slog.Default(),
		cache:      make(map[string]*Rules),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsAllowed reports whether rawURL may be fetched. Unparsable URLs are
// refused without being recorded as a block.
func (c *Checker) IsAllowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)

	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	if c.GetRules(ctx, host).IsAllowed(path) {
		return true
	}

	c.logger.Debug("blocked by robots.txt", "url", rawURL)
	if c.recorder != nil {
		c.recorder.RecordRobotsBlock(host)
	}
	return false
}

// GetRules returns the cached rules for host, fetching them on first use.
// It never returns nil.
func (c *Checker) GetRules(ctx context.Context, host string) *Rules {
	host = strings.ToLower(host)
	if rules, ok := c.cached(host); ok {
		return rules
	}

	v, _, _ := c.group.Do(host, func() (any, error) { //nolint:errcheck // fetch never fails the caller
		if rules, ok := c.cached(host); ok {
			return rules, nil
		}

		rules, err := c.fetch(ctx, host)
		if err != nil {
			if ctx.Err() != nil {
				// Canceled before an answer arrived; retry on the next call.
				return AllowAll(), nil
			}
			c.logger.Debug("robots.txt unavailable, allowing all", "host", host, "error", err)
			rules = AllowAll()
		}

		c.mu.Lock()
		c.cache[host] = rules
		c.mu.Unlock()

		if c.hosts != nil {
			c.hosts.ApplyRobots(host, rules)
		}
		return rules, nil
	})

	rules, ok := v.(*Rules)
	if !ok || rules == nil {
		return AllowAll()
	}
	return rules
}

// Forget drops the cached rules of host.
func (c *Checker) Forget(host string) {
	c.mu.Lock()
	delete(c.cache, strings.ToLower(host))
	c.mu.Unlock()
}

// Len returns the number of hosts with cached rules.
func (c *Checker) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *Checker) cached(host string) (*Rules, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rules, ok := c.cache[host]
	return rules, ok
}

// fetch downloads and parses robots.txt for host.
func (c *Checker) fetch(ctx context.Context, host string) (*Rules, error) {
	if c.recorder != nil {
		c.recorder.RecordRobotsCheck(host)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	robotsURL := c.scheme + "://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/plain,*/*;q=0.5")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", robotsURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read %s: %w", robotsURL, err)
	}

	rules := Parse(string(body), c.userAgent, c.selfTokens)
	c.logger.Debug("robots.txt loaded",
		"host", host,
		"disallow", len(rules.Disallow),
		"allow", len(rules.Allow),
		"crawl_delay", rules.CrawlDelay,
		"sitemaps", len(rules.Sitemaps),
	)
	return rules, nil
}
