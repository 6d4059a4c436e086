package politeness

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nao1215/webspider/internal/robots"
)

// HostState is a point-in-time copy of one host's politeness state.
type HostState struct {
	Host           string        `json:"host"`
	CrawlDelay     time.Duration `json:"crawl_delay"`
	LastRequest    time.Time     `json:"last_request,omitzero"`
	ActiveRequests int           `json:"active_requests"`
	RequestCount   int           `json:"request_count"`
	SuccessCount   int           `json:"success_count"`
	ErrorCount     int           `json:"error_count"`
	BlockedCount   int           `json:"blocked_count"`
	RobotsChecked  bool          `json:"robots_checked"`
	Robots         *robots.Rules `json:"robots,omitempty"`
	Sitemaps       []string      `json:"sitemaps,omitempty"`
}

type hostState struct {
	crawlDelay    time.Duration
	floor         time.Duration
	lastRequest   time.Time
	lastFetch     time.Time
	lastActivity  time.Time
	active        int
	requests      int
	successes     int
	errors        int
	blocked       int
	robotsChecked bool
	robots        *robots.Rules
	sitemaps      []string
}

// Tracker holds the politeness state of every known host.
// All methods are safe for concurrent use.
type Tracker struct {
	cfg       Config
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	onEvict   func(host string)
	hostDelay func(host string) time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	hosts  map[string]*hostState
	active int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithSleep replaces the wait used by AwaitTurn.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Tracker) {
		t.sleep = sleep
	}
}

// WithEvictHook registers a function called for each host removed by Cleanup.
func WithEvictHook(fn func(host string)) Option {
	return func(t *Tracker) {
		t.onEvict = fn
	}
}

// WithHostDelay sets a per-host minimum delay, consulted whenever a host is
// first tracked. A result at or below the default delay is ignored.
func WithHostDelay(fn func(host string) time.Duration) Option {
	return func(t *Tracker) {
		t.hostDelay = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a Tracker. Zero or out-of-range fields of cfg take
// their defaults, except DefaultDelay where zero disables the delay.
func NewTracker(cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		sleep:  sleepContext,
		logger: slog.Default(),
		hosts:  make(map[string]*hostState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// host returns the state of name, creating it if needed. t.mu must be held.
func (t *Tracker) host(name string) *hostState {
	h, ok := t.hosts[name]
	if !ok {
		delay := t.cfg.DefaultDelay
		if t.hostDelay != nil {
			delay = max(delay, t.hostDelay(name))
		}
		h = &hostState{
			crawlDelay:   delay,
			floor:        delay,
			lastActivity: t.now(),
		}
		t.hosts[name] = h
	}
	return h
}

// CanDispatch reports whether a request to host may start now.
func (t *Tracker) CanDispatch(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active >= t.cfg.MaxGlobal {
		return false
	}
	h, ok := t.hosts[host]
	if !ok {
		return true
	}
	if h.active >= t.cfg.MaxPerHost {
		return false
	}
	return h.lastRequest.IsZero() || t.now().Sub(h.lastRequest) >= h.crawlDelay
}

// RecordDispatchStart marks a request to host as in flight.
func (t *Tracker) RecordDispatchStart(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.host(host)
	now := t.now()
	h.active++
	h.lastRequest = now
	h.lastActivity = now
	t.active++
}

// AwaitTurn blocks until a request to host may start, then claims the
// host's turn. Turns are spaced by at least the host's crawl delay as it is
// when the wait ends, so a Crawl-delay learned from robots.txt while a
// worker was already dispatched still applies. Every HTTP attempt, retries
// included, takes a turn.
func (t *Tracker) AwaitTurn(ctx context.Context, host string) error {
	for {
		t.mu.Lock()
		h := t.host(host)
		now := t.now()
		wait := time.Duration(0)
		if !h.lastFetch.IsZero() {
			wait = h.lastFetch.Add(h.crawlDelay).Sub(now)
		}
		if wait <= 0 {
			h.lastFetch = now
			h.lastRequest = now
			h.lastActivity = now
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()

		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// RecordDispatchEnd marks a request to host as finished.
func (t *Tracker) RecordDispatchEnd(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.host(host)
	if h.active > 0 {
		h.active--
		if t.active > 0 {
			t.active--
		}
	}
	h.requests++
	h.lastActivity = t.now()
}

// RecordSuccess counts a successful fetch for host.
func (t *Tracker) RecordSuccess(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host(host).successes++
}

// RecordFailure counts a failed fetch for host.
func (t *Tracker) RecordFailure(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host(host).errors++
}

// RecordBlock counts a URL of host refused by robots.txt.
func (t *Tracker) RecordBlock(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host(host).blocked++
}

// AdjustDelay adapts the crawl delay of host to a response.
// A 429 or 5xx multiplies the delay by IncreaseFactor up to MaxDelay. A 200
// answered within FastResponse multiplies it by DecreaseFactor down to the
// host's floor, which is the default delay or the robots.txt Crawl-delay
// when that is larger.
func (t *Tracker) AdjustDelay(host string, status int, responseTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.host(host)
	old := h.crawlDelay
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		ceiling := max(t.cfg.MaxDelay, h.floor)
		h.crawlDelay = min(scale(h.crawlDelay, t.cfg.IncreaseFactor), ceiling)
		if h.crawlDelay < h.floor {
			h.crawlDelay = h.floor
		}
	case status == http.StatusOK && responseTime < t.cfg.FastResponse:
		h.crawlDelay = max(scale(h.crawlDelay, t.cfg.DecreaseFactor), h.floor)
	}

	if h.crawlDelay != old {
		t.logger.Debug("crawl delay adjusted",
			"host", host,
			"status", status,
			"from", old,
			"to", h.crawlDelay,
		)
	}
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(math.Round(float64(d) * factor))
}

// ApplyRobots records the robots.txt rules of host. The crawl delay is raised
// to the Crawl-delay directive if that is larger, and the host's sitemaps are
// replaced by those of the rules.
func (t *Tracker) ApplyRobots(host string, rules *robots.Rules) {
	if rules == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.host(host)
	h.robots = rules
	h.robotsChecked = true

	if rules.CrawlDelay > 0 {
		robotsDelay := time.Duration(rules.CrawlDelay * float64(time.Second))
		h.floor = max(h.floor, robotsDelay)
		h.crawlDelay = max(h.crawlDelay, robotsDelay)
	}
	if len(rules.Sitemaps) > 0 {
		h.sitemaps = slices.Clone(rules.Sitemaps)
	}
}

// Sitemaps returns the sitemap URLs known for host.
func (t *Tracker) Sitemaps(host string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.hosts[host]
	if !ok {
		return nil
	}
	return slices.Clone(h.sitemaps)
}

// AddSitemaps appends sitemap URLs to host, skipping known ones.
func (t *Tracker) AddSitemaps(host string, urls []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.host(host)
	for _, u := range urls {
		if !slices.Contains(h.sitemaps, u) {
			h.sitemaps = append(h.sitemaps, u)
		}
	}
}

// CrawlDelay returns the current delay of host, or the starting delay for
// an unknown host.
func (t *Tracker) CrawlDelay(host string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.hosts[host]; ok {
		return h.crawlDelay
	}
	if t.hostDelay != nil {
		return max(t.cfg.DefaultDelay, t.hostDelay(host))
	}
	return t.cfg.DefaultDelay
}

// ActiveRequests returns the number of requests in flight across all hosts.
func (t *Tracker) ActiveRequests() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Len returns the number of tracked hosts.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hosts)
}

// Cleanup evicts hosts idle for longer than IdleTTL with no active requests
// and returns how many were removed.
func (t *Tracker) Cleanup(now time.Time) int {
	t.mu.Lock()
	var evicted []string
	for name, h := range t.hosts {
		if h.active == 0 && now.Sub(h.lastActivity) > t.cfg.IdleTTL {
			delete(t.hosts, name)
			evicted = append(evicted, name)
		}
	}
	t.mu.Unlock()

	if t.onEvict != nil {
		for _, name := range evicted {
			t.onEvict(name)
		}
	}
	if len(evicted) > 0 {
		t.logger.Debug("evicted idle hosts", "count", len(evicted))
	}
	return len(evicted)
}

// Run sweeps idle hosts every CleanupInterval until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Cleanup(t.now())
		}
	}
}

// Snapshot returns a copy of every host's state ordered by host name.
func (t *Tracker) Snapshot() []HostState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]HostState, 0, len(t.hosts))
	for name, h := range t.hosts {
		out = append(out, HostState{
			Host:           name,
			CrawlDelay:     h.crawlDelay,
			LastRequest:    h.lastRequest,
			ActiveRequests: h.active,
			RequestCount:   h.requests,
			SuccessCount:   h.successes,
			ErrorCount:     h.errors,
			BlockedCount:   h.blocked,
			RobotsChecked:  h.robotsChecked,
			Robots:         h.robots,
			Sitemaps:       slices.Clone(h.sitemaps),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
