package sitemap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/webspider/internal/urlnorm"
)

const (
	// DefaultTimeout bounds one sitemap download.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxSize is the protocol's uncompressed size limit.
	DefaultMaxSize = 50 * 1024 * 1024

	// DefaultMaxSitemapsPerHost bounds how many sitemaps one host may lead
	// the processor through, nested indexes included.
	DefaultMaxSitemapsPerHost = 100
)

// HostSitemaps is the per-host sitemap list. The politeness tracker holds it.
type HostSitemaps interface {
	Sitemaps(host string) []string
	AddSitemaps(host string, urls []string)
}

// Candidate is a page found in a sitemap, ready for the frontier.
type Candidate struct {
	URL      string
	Priority int
	Metadata map[string]string
}

// Processor downloads sitemaps, caches their entries by URL and walks the
// sitemaps recorded for a host.
type Processor struct {
	client     *http.Client
	userAgent  string
	timeout    time.Duration
	maxSize    int64
	maxPerHost int
	scheme     string
	hosts      HostSitemaps
	now        func() time.Time
	logger     *slog.Logger

	mu        sync.Mutex
	cache     map[string][]Entry
	processed map[string]struct{}
	group     singleflight.Group
}

// Option configures a Processor.
type Option func(*Processor)

// WithHTTPClient sets the client used to download sitemaps.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Processor) {
		p.client = client
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(p *Processor) {
		p.userAgent = ua
	}
}

// WithTimeout sets the per-sitemap download timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMaxSize caps the uncompressed size of one sitemap.
func WithMaxSize(n int64) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxSize = n
		}
	}
}

// WithScheme sets the scheme used to resolve relative sitemap locations.
func WithScheme(scheme string) Option {
	return func(p *Processor) {
		p.scheme = scheme
	}
}

// WithHostSitemaps sets the per-host sitemap list walked by ProcessHost.
func WithHostSitemaps(h HostSitemaps) Option {
	return func(p *Processor) {
		p.hosts = h
	}
}

// WithClock replaces time.Now for priority calculation.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a Processor.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		client:     &http.Client{},
		userAgent:  "webspider",
		timeout:    DefaultTimeout,
		maxSize:    DefaultMaxSize,
		maxPerHost: DefaultMaxSitemapsPerHost,
		scheme:     "https",
		now:        time.Now,
		logger:     slog.Default(),
		cache:      make(map[string][]Entry),
		processed:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchSitemap returns the entries of the sitemap at sitemapURL. Successful
// results are cached. On failure the error is logged and returned with no
// entries; callers may ignore it.
func (p *Processor) FetchSitemap(ctx context.Context, sitemapURL string) ([]Entry, error) {
	p.mu.Lock()
	cached, ok := p.cache[sitemapURL]
	p.mu.Unlock()
	if ok {
		return cached, nil
	}

	v, err, _ := p.group.Do(sitemapURL, func() (any, error) {
		entries, err := p.download(ctx, sitemapURL)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache[sitemapURL] = entries
		p.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		p.logger.Warn("failed to fetch sitemap", "url", sitemapURL, "error", err)
		return nil, err
	}

	entries, _ := v.([]Entry) //nolint:errcheck // only []Entry is returned
	p.logger.Debug("sitemap loaded", "url", sitemapURL, "entries", len(entries))
	return entries, nil
}

func (p *Processor) download(ctx context.Context, sitemapURL string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return ParseLimit(resp.Body, p.maxSize)
}

// ProcessHost walks every not yet processed sitemap recorded for host and
// returns the page candidates found. Index entries are added to the host's
// sitemap list and walked in the same call.
func (p *Processor) ProcessHost(ctx context.Context, host string) []Candidate {
	if p.hosts == nil {
		return nil
	}

	base := p.scheme + "://" + host + "/"
	queue := append([]string(nil), p.hosts.Sitemaps(host)...)
	var candidates []Candidate
	walked := 0

	for len(queue) > 0 && walked < p.maxPerHost {
		if ctx.Err() != nil {
			break
		}
		raw := queue[0]
		queue = queue[1:]

		sitemapURL, ok := urlnorm.Normalize(raw, base)
		if !ok || !p.markProcessed(sitemapURL) {
			continue
		}
		walked++

		entries, err := p.FetchSitemap(ctx, sitemapURL)
		if err != nil {
			continue
		}

		var nested []string
		now := p.now()
		for _, e := range entries {
			switch e.Type {
			case TypeIndex:
				nested = append(nested, e.URL)
			case TypePage:
				candidates = append(candidates, Candidate{
					URL:      e.URL,
					Priority: CalculatePriority(e, now),
					Metadata: entryMetadata(e, sitemapURL),
				})
			}
		}
		if len(nested) > 0 {
			p.hosts.AddSitemaps(host, nested)
			queue = append(queue, nested...)
		}
	}

	if len(candidates) > 0 {
		p.logger.Info("sitemap candidates found", "host", host, "count", len(candidates))
	}
	return candidates
}

// markProcessed records sitemapURL and reports whether it was new.
func (p *Processor) markProcessed(sitemapURL string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, seen := p.processed[sitemapURL]; seen {
		return false
	}
	p.processed[sitemapURL] = struct{}{}
	return true
}

func entryMetadata(e Entry, sitemapURL string) map[string]string {
	md := map[string]string{"sitemap": sitemapURL}
	if !e.LastMod.IsZero() {
		md["lastmod"] = e.LastMod.Format(time.RFC3339)
	}
	if e.ChangeFreq != "" {
		md["changefreq"] = strings.ToLower(e.ChangeFreq)
	}
	return md
}
