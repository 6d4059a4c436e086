package frontier

import (
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nao1215/webspider/internal/urlnorm"
)

const (
	// DefaultMaxRetries is the number of failures after which an entry is
	// dropped.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the backoff before the first retry.
	DefaultRetryDelay = 2000 * time.Millisecond
	// DefaultMaxRetryDelay caps the retry backoff.
	DefaultMaxRetryDelay = 30 * time.Second
	// DefaultMaxAge is the age after which Optimize drops queued entries.
	DefaultMaxAge = 24 * time.Hour
)

// Gate decides whether a host may receive a request now.
type Gate interface {
	CanDispatch(host string) bool
}

type openGate struct{}

func (openGate) CanDispatch(string) bool { return true }

// Config holds the frontier limits.
type Config struct {
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	MaxAge        time.Duration
}

// DefaultConfig returns the default frontier settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
		MaxAge:        DefaultMaxAge,
	}
}

type pendingRetry struct {
	entry *Entry
	timer *time.Timer
}

// Frontier is the priority-ordered set of URLs waiting to be crawled.
// All methods are safe for concurrent use.
type Frontier struct {
	cfg    Config
	gate   Gate
	now    func() time.Time
	onDrop func(e Entry, err error)
	logger *slog.Logger

	mu       sync.Mutex
	queue    []*Entry
	hosts    map[string][]*Entry
	reserved map[string]struct{}
	pending  map[string]*pendingRetry
	crawled  map[string]struct{}
	dropped  map[string]struct{}
	closed   bool
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithConfig replaces the default limits. Non-positive fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(f *Frontier) {
		if cfg.MaxRetries > 0 {
			f.cfg.MaxRetries = cfg.MaxRetries
		}
		if cfg.RetryDelay > 0 {
			f.cfg.RetryDelay = cfg.RetryDelay
		}
		if cfg.MaxRetryDelay > 0 {
			f.cfg.MaxRetryDelay = cfg.MaxRetryDelay
		}
		if cfg.MaxAge > 0 {
			f.cfg.MaxAge = cfg.MaxAge
		}
	}
}

// WithGate sets the dispatch gate consulted by Next.
func WithGate(g Gate) Option {
	return func(f *Frontier) {
		f.gate = g
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Frontier) {
		f.now = now
	}
}

// WithDropHook registers a function called when an entry exhausts its
// retries.
func WithDropHook(fn func(e Entry, err error)) Option {
	return func(f *Frontier) {
		f.onDrop = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Frontier) {
		f.logger = logger
	}
}

// New creates an empty Frontier.
func New(opts ...Option) *Frontier {
	f := &Frontier{
		cfg:      DefaultConfig(),
		gate:     openGate{},
		now:      time.Now,
		logger:   slog.Default(),
		hosts:    make(map[string][]*Entry),
		reserved: make(map[string]struct{}),
		dropped:  make(map[string]struct{}),
		pending:  make(map[string]*pendingRetry),
		crawled:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Add normalizes and inserts candidates, skipping invalid URLs and URLs that
// are already crawled, queued or waiting for a retry. It returns the number
// of entries added.
func (f *Frontier) Add(candidates []Candidate, opts AddOptions) int {
	source := opts.Source
	if source == "" {
		source = SourceDiscovery
	}
	defaultPriority := opts.Priority
	if defaultPriority <= 0 {
		defaultPriority = DefaultPriority
		if source == SourceSeed {
			defaultPriority = SeedPriority
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	added := 0
	for _, c := range candidates {
		u, ok := urlnorm.Normalize(c.URL, opts.Base)
		if !ok {
			continue
		}
		if _, done := f.crawled[u]; done {
			continue
		}
		if _, taken := f.reserved[u]; taken {
			continue
		}

		priority := c.Priority
		if priority <= 0 {
			priority = defaultPriority
		}
		e := &Entry{
			URL:      u,
			Host:     urlnorm.Host(u),
			Priority: clampPriority(priority),
			Depth:    c.Depth,
			Source:   source,
			AddedAt:  now,
			Parent:   c.Parent,
			Metadata: maps.Clone(c.Metadata),
		}
		f.insert(e)
		added++
	}

	if added > 0 {
		f.sort()
		f.logger.Debug("frontier updated", "added", added, "queued", len(f.queue), "hosts", len(f.hosts))
	}
	return added
}

// insert adds e to both queues and reserves its URL. f.mu must be held.
func (f *Frontier) insert(e *Entry) {
	f.queue = append(f.queue, e)
	f.hosts[e.Host] = append(f.hosts[e.Host], e)
	f.reserved[e.URL] = struct{}{}
}

// sort orders the global queue by descending priority, keeping insertion
// order among equal priorities. f.mu must be held.
func (f *Frontier) sort() {
	sort.SliceStable(f.queue, func(i, j int) bool {
		return f.queue[i].Priority > f.queue[j].Priority
	})
}

// Next removes and returns the highest priority entry whose host passes the
// gate, or nil when no entry is eligible.
func (f *Frontier) Next() *Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Ask the gate once per host per call.
	verdict := make(map[string]bool)
	for i, e := range f.queue {
		ok, seen := verdict[e.Host]
		if !seen {
			ok = f.gate.CanDispatch(e.Host)
			verdict[e.Host] = ok
		}
		if !ok {
			continue
		}

		f.queue = slices.Delete(f.queue, i, i+1)
		f.removeFromHost(e)
		return e
	}
	return nil
}

// removeFromHost deletes e from its host queue. f.mu must be held.
func (f *Frontier) removeFromHost(e *Entry) {
	q := f.hosts[e.Host]
	if i := slices.Index(q, e); i >= 0 {
		f.hosts[e.Host] = slices.Delete(q, i, i+1)
	}
}

// Requeue records a failed attempt of e. Below MaxRetries failures the entry
// loses one priority point and returns to the queue after
// min(RetryDelay*2^(failures-1), MaxRetryDelay); the function then returns
// true. Otherwise the entry is dropped and false is returned.
func (f *Frontier) Requeue(e *Entry, cause error) bool {
	return f.RequeueAfter(e, cause, 0)
}

// RequeueAfter is Requeue with a lower bound on the retry delay, such as a
// server's Retry-After.
func (f *Frontier) RequeueAfter(e *Entry, cause error, minDelay time.Duration) bool {
	f.mu.Lock()

	now := f.now()
	e.RetryCount++
	e.LastAttempt = &now

	if e.RetryCount >= f.cfg.MaxRetries || f.closed {
		delete(f.reserved, e.URL)
		f.mu.Unlock()

		f.logger.Warn("dropping URL after failed attempts",
			"url", e.URL,
			"attempts", e.RetryCount,
			"error", cause,
		)
		if f.onDrop != nil {
			f.onDrop(e.clone(), cause)
		}
		return false
	}

	e.Priority = max(e.Priority-1, MinPriority)
	delay := max(f.RetryDelay(e.RetryCount), minDelay)
	f.reserved[e.URL] = struct{}{}
	p := &pendingRetry{entry: e}
	p.timer = time.AfterFunc(delay, func() { f.reinsert(e.URL) })
	f.pending[e.URL] = p
	f.mu.Unlock()

	f.logger.Debug("requeued URL",
		"url", e.URL,
		"attempt", e.RetryCount,
		"delay", delay,
		"error", cause,
	)
	return true
}

// RetryDelay is the wait before the retry that follows the given number of
// failures.
func (f *Frontier) RetryDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := f.cfg.RetryDelay
	for i := 1; i < failures && d < f.cfg.MaxRetryDelay; i++ {
		d *= 2
	}
	return min(d, f.cfg.MaxRetryDelay)
}

func (f *Frontier) reinsert(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.pending[url]
	if !ok || f.closed {
		return
	}
	delete(f.pending, url)
	f.queue = append(f.queue, p.entry)
	f.hosts[p.entry.Host] = append(f.hosts[p.entry.Host], p.entry)
	f.sort()
}

// MarkCrawled records url as crawled and releases its reservation.
func (f *Frontier) MarkCrawled(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.crawled[url] = struct{}{}
	delete(f.reserved, url)
}

// MarkDropped records url as settled without being crawled, such as a URL
// blocked by robots.txt or answered with a terminal status. It stays
// reserved and is kept in snapshots so a resumed crawl does not queue it
// again.
func (f *Frontier) MarkDropped(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dropped[url] = struct{}{}
	f.reserved[url] = struct{}{}
}

// Return puts an entry handed out by Next back into the queue unchanged.
// It is used when an attempt was abandoned rather than failed.
func (f *Frontier) Return(e *Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reserved[e.URL] = struct{}{}
	f.queue = append(f.queue, e)
	f.hosts[e.Host] = append(f.hosts[e.Host], e)
	f.sort()
}

// IsCrawled reports whether url was crawled. url must be normalized.
func (f *Frontier) IsCrawled(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.crawled[url]
	return ok
}

// Optimize drops queued entries older than MaxAge and removes empty host
// queues. It returns the number of entries dropped.
func (f *Frontier) Optimize() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	dropped := 0
	kept := f.queue[:0]
	for _, e := range f.queue {
		if now.Sub(e.AddedAt) < f.cfg.MaxAge {
			kept = append(kept, e)
			continue
		}
		f.removeFromHost(e)
		delete(f.reserved, e.URL)
		dropped++
	}
	clear(f.queue[len(kept):])
	f.queue = kept

	for host, q := range f.hosts {
		if len(q) == 0 {
			delete(f.hosts, host)
		}
	}

	f.logger.Debug("frontier optimized", "dropped", dropped, "queued", len(f.queue))
	return dropped
}

// Len returns the number of entries ready in the queue.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// PendingRetries returns the number of entries waiting on a retry timer.
func (f *Frontier) PendingRetries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Close stops all retry timers. Entries waiting on them stay reserved and
// are still included in snapshots.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for _, p := range f.pending {
		p.timer.Stop()
	}
}

func clampPriority(p int) int {
	return max(MinPriority, min(MaxPriority, p))
}
