package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/webspider/internal/extract"
	"github.com/nao1215/webspider/internal/fetcher"
	"github.com/nao1215/webspider/internal/frontier"
	"github.com/nao1215/webspider/internal/model"
	"github.com/nao1215/webspider/internal/politeness"
	"github.com/nao1215/webspider/internal/robots"
	"github.com/nao1215/webspider/internal/sitemap"
	"github.com/nao1215/webspider/internal/stats"
	"github.com/nao1215/webspider/internal/urlnorm"
)

// Engine runs one crawl session. Create it with New; it can run once.
type Engine struct {
	cfg       Config
	sessionID string

	// Construction inputs.
	transport http.RoundTripper
	headers   fetcher.HeaderProvider
	observer  stats.Observer

	fetcher   *fetcher.Fetcher
	robots    *robots.Checker
	sitemaps  *sitemap.Processor
	tracker   *politeness.Tracker
	frontier  *frontier.Frontier
	stats     *stats.Stats
	extractor *extract.Extractor

	sink    Sink
	scorer  Scorer
	rules   SiteRules
	logger  *slog.Logger
	idleLog rate.Sometimes
	wake    chan struct{}

	mu           sync.Mutex
	state        State
	startedAt    time.Time
	processed    int
	errors       int
	robotsBlocks int
	inFlight     int
	dropped      int
	draining     bool
	sitemapHosts map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets where pages are stored. The default discards them.
func WithSink(s Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithScorer sets the link scorer. The default is neutral.
func WithScorer(s Scorer) Option {
	return func(e *Engine) {
		e.scorer = s
	}
}

// WithSiteRules sets per-host depth limits and path patterns.
func WithSiteRules(r SiteRules) Option {
	return func(e *Engine) {
		e.rules = r
	}
}

// WithTransport sets the round tripper used for every request, for example
// a SOCKS5 transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(e *Engine) {
		e.transport = rt
	}
}

// WithHeaderProvider injects per-host cookies and headers into requests.
func WithHeaderProvider(h fetcher.HeaderProvider) Option {
	return func(e *Engine) {
		e.headers = h
	}
}

// WithObserver mirrors statistics into an observer such as a metrics
// registry.
func WithObserver(o stats.Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithSessionID sets the session id. A random UUID is used otherwise.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		e.sessionID = id
	}
}

// WithLogger sets the logger for the engine and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New builds an engine and wires its components.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:          cfg.withDefaults(),
		sink:         DiscardSink{},
		scorer:       NeutralScorer{},
		logger:       slog.Default(),
		idleLog:      rate.Sometimes{Interval: 10 * time.Second},
		wake:         make(chan struct{}, 1),
		state:        StateIdle,
		sitemapHosts: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sessionID == "" {
		e.sessionID = uuid.NewString()
	}
	e.logger = e.logger.With("session", e.sessionID)

	var statOpts []stats.Option
	if e.observer != nil {
		statOpts = append(statOpts, stats.WithObserver(e.observer))
	}
	e.stats = stats.New(statOpts...)

	trackerOpts := []politeness.Option{
		politeness.WithLogger(e.logger),
		politeness.WithEvictHook(func(host string) {
			e.robots.Forget(host)
			e.stats.Forget(host)
		}),
	}
	if e.rules != nil {
		trackerOpts = append(trackerOpts, politeness.WithHostDelay(func(host string) time.Duration {
			return e.policy(host).CrawlDelay
		}))
	}
	e.tracker = politeness.NewTracker(e.cfg.Politeness, trackerOpts...)

	client := fetcher.NewHTTPClient(e.cfg.Fetch, e.transport, e.headers)
	e.fetcher = fetcher.New(e.cfg.Fetch,
		fetcher.WithHTTPClient(client),
		fetcher.WithRecorder(e.stats),
		fetcher.WithLogger(e.logger),
		fetcher.WithPacer(e.tracker),
	)

	ua := e.fetcher.Config().UserAgent
	e.robots = robots.NewChecker(
		robots.WithHTTPClient(client),
		robots.WithUserAgent(ua),
		robots.WithScheme(e.cfg.Scheme),
		robots.WithHostUpdater(e.tracker),
		robots.WithRecorder(e.stats),
		robots.WithLogger(e.logger),
	)
	e.sitemaps = sitemap.NewProcessor(
		sitemap.WithHTTPClient(client),
		sitemap.WithUserAgent(ua),
		sitemap.WithScheme(e.cfg.Scheme),
		sitemap.WithHostSitemaps(e.tracker),
		sitemap.WithLogger(e.logger),
	)
	e.frontier = frontier.New(
		frontier.WithConfig(e.cfg.Frontier),
		frontier.WithGate(e.tracker),
		frontier.WithDropHook(func(entry frontier.Entry, _ error) {
			e.stats.RecordRetryDropped(entry.Host)
		}),
		frontier.WithLogger(e.logger),
	)
	e.extractor = extract.New(extract.WithLogger(e.logger))

	return e
}

// SessionID returns the session id.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Frontier returns the frontier of the session.
func (e *Engine) Frontier() *frontier.Frontier {
	return e.frontier
}

// Tracker returns the politeness tracker of the session.
func (e *Engine) Tracker() *politeness.Tracker {
	return e.tracker
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run crawls from seeds until the session ends and returns its summary.
// Per-URL failures never surface as errors; only misuse does.
func (e *Engine) Run(ctx context.Context, seeds []string) (*Summary, error) {
	candidates := make([]frontier.Candidate, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := urlnorm.Normalize(s, ""); ok {
			candidates = append(candidates, frontier.Candidate{URL: s, Priority: frontier.SeedPriority})
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoSeeds
	}
	if err := e.begin(); err != nil {
		return nil, err
	}

	e.frontier.Add(candidates, frontier.AddOptions{Source: frontier.SourceSeed})
	return e.loop(ctx), nil
}

// Resume restores a frontier snapshot, including its statistics, and
// continues the crawl.
func (e *Engine) Resume(ctx context.Context, snap *frontier.Snapshot) (*Summary, error) {
	if snap == nil {
		return nil, ErrNilSnapshot
	}
	if err := e.begin(); err != nil {
		return nil, err
	}
	if err := e.frontier.Restore(snap); err != nil {
		e.setState(StateStopped)
		return nil, err
	}
	e.stats.Restore(snap.Stats)

	return e.loop(ctx), nil
}

func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return ErrNotIdle
	}
	e.state = StateRunning
	e.startedAt = time.Now()
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

// loop dispatches until a terminal reason, drains and summarizes.
func (e *Engine) loop(ctx context.Context) *Summary {
	e.logger.Info("crawl started",
		"queued", e.frontier.Len(),
		"max_pages", e.cfg.MaxPages,
		"max_depth", e.cfg.MaxDepth,
		"timeout", e.cfg.Timeout,
	)

	// Workers outlive the caller's context for the drain window.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	go e.tracker.Run(workCtx)

	g, gctx := errgroup.WithContext(workCtx)
	g.SetLimit(e.tracker.Config().MaxGlobal)

	deadline := time.NewTimer(e.cfg.Timeout)
	defer deadline.Stop()

	reason := e.dispatch(ctx, deadline.C, g, gctx)
	e.setState(reason)
	e.logger.Info("crawl ending", "reason", reason, "in_flight", e.inFlightCount())

	dropped := e.drain(g, cancelWork)
	e.frontier.Close()
	e.setState(StateStopped)

	summary := e.summarize(reason, dropped)
	if dropped > 0 {
		e.logger.Warn("stopped with in-flight requests dropped", "in_flight_dropped", dropped)
	}
	e.logger.Info("crawl finished",
		"reason", reason,
		"pages", summary.PagesProcessed,
		"errors", summary.Errors,
		"robots_blocks", summary.RobotsBlocks,
		"duration", summary.Duration,
	)
	return summary
}

// dispatch hands eligible entries to workers until the session ends and
// returns the reason.
func (e *Engine) dispatch(ctx context.Context, deadline <-chan time.Time, g *errgroup.Group, workCtx context.Context) State {
	lastSweep := 0
	for {
		select {
		case <-ctx.Done():
			return StateDraining
		case <-deadline:
			return StateTimedOut
		default:
		}

		processed, inFlight := e.counts()
		if sweep := processed / optimizeEvery; sweep > lastSweep {
			lastSweep = sweep
			e.frontier.Optimize()
		}
		e.stats.UpdateQueue(e.frontier.Len(), e.tracker.ActiveRequests(), e.tracker.Len())

		if processed >= e.cfg.MaxPages {
			return StateExhausted
		}
		if processed+inFlight < e.cfg.MaxPages {
			if entry := e.frontier.Next(); entry != nil {
				e.start(workCtx, g, entry)
				continue
			}
			if inFlight == 0 && e.frontier.Len() == 0 && e.frontier.PendingRetries() == 0 {
				return StateExhausted
			}
		}

		e.idleLog.Do(func() {
			e.logger.Debug("waiting for eligible URLs",
				"queued", e.frontier.Len(),
				"pending_retries", e.frontier.PendingRetries(),
				"in_flight", inFlight,
			)
		})

		wait := time.NewTimer(e.cfg.PollInterval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return StateDraining
		case <-deadline:
			wait.Stop()
			return StateTimedOut
		case <-e.wake:
		case <-wait.C:
		}
		wait.Stop()
	}
}

// start reserves the host slot and runs entry on the worker pool.
func (e *Engine) start(ctx context.Context, g *errgroup.Group, entry *frontier.Entry) {
	e.tracker.RecordDispatchStart(entry.Host)
	e.mu.Lock()
	e.inFlight++
	e.mu.Unlock()

	g.Go(func() error {
		defer e.finish()
		e.process(ctx, entry)
		return nil
	})
}

func (e *Engine) finish() {
	e.mu.Lock()
	e.inFlight--
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// drain waits for in-flight work up to the shutdown window, then cancels
// it. It returns the number of requests that were canceled.
func (e *Engine) drain(g *errgroup.Group, cancel context.CancelFunc) int {
	done := make(chan struct{})
	go func() {
		_ = g.Wait() //nolint:errcheck // workers never return errors
		close(done)
	}()

	timer := time.NewTimer(e.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return 0
	case <-timer.C:
	}

	e.mu.Lock()
	e.draining = true
	inFlight := e.inFlight
	e.mu.Unlock()

	e.logger.Warn("shutdown window elapsed, canceling in-flight requests",
		"in_flight", inFlight,
		"shutdown_timeout", e.cfg.ShutdownTimeout,
	)
	cancel()
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// process handles one entry from robots check to discovery.
func (e *Engine) process(ctx context.Context, entry *frontier.Entry) {
	host := entry.Host

	if e.cfg.RespectRobots && !e.robots.IsAllowed(ctx, entry.URL) {
		e.tracker.RecordDispatchEnd(host)
		e.tracker.RecordBlock(host)
		e.frontier.MarkDropped(entry.URL)
		e.mu.Lock()
		e.robotsBlocks++
		e.mu.Unlock()
		e.logger.Info("respectfully blocked by robots.txt", "url", entry.URL)
		return
	}

	res := e.fetcher.Fetch(ctx, entry.URL)
	e.tracker.RecordDispatchEnd(host)

	if res.Success {
		e.tracker.RecordSuccess(host)
		e.frontier.MarkCrawled(entry.URL)
		e.handlePage(ctx, entry, res)
		e.mu.Lock()
		e.processed++
		e.mu.Unlock()
		return
	}

	if ctx.Err() != nil && e.isDraining() {
		// Abandoned by the drain; keep it for the snapshot.
		e.frontier.Return(entry)
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.errors++
	e.mu.Unlock()

	if errors.Is(res.Err, fetcher.ErrContentRejected) {
		e.frontier.MarkDropped(entry.URL)
		e.logger.Debug("content rejected", "url", entry.URL, "content_type", res.ContentType)
		return
	}

	e.tracker.RecordFailure(host)

	if fetcher.IsTerminal(res.Err) {
		e.frontier.MarkDropped(entry.URL)
		e.logger.Info("dropping URL after terminal failure", "url", entry.URL, "status", res.Status, "error", res.Err)
		return
	}
	e.frontier.RequeueAfter(entry, res.Err, res.RetryAfter)
}

// handlePage extracts, stores and discovers links from a fetched page.
func (e *Engine) handlePage(ctx context.Context, entry *frontier.Entry, res *fetcher.Result) {
	base := res.FinalURL
	if base == "" {
		base = entry.URL
	}

	content := e.extractor.Extract(res.Body, base, res.ContentType)
	content.URL = entry.URL
	content.HTTPStatus = res.Status

	if res.Directives.NoIndex {
		e.logger.Debug("not storing noindex page", "url", entry.URL)
	} else {
		page := &model.PageRecord{
			URL:          entry.URL,
			Host:         entry.Host,
			StatusCode:   res.Status,
			Headers:      res.Headers,
			ContentType:  res.ContentType,
			ContentSize:  len(res.Body),
			Depth:        entry.Depth,
			Source:       string(entry.Source),
			Parent:       entry.Parent,
			ResponseTime: res.ResponseTime,
			Attempts:     res.Attempts,
			CrawledAt:    content.CrawledAt,
			Directives:   res.Directives,
			Content:      content,
		}
		page.ComputeHash(res.Body)

		if err := e.sink.Store(ctx, page); err != nil {
			e.logger.Warn("failed to store page", "url", entry.URL, "error", err)
		} else {
			e.stats.RecordPageStored(entry.Host)
		}
	}

	if res.Directives.NoFollow {
		e.logger.Debug("not following links of nofollow page", "url", entry.URL)
	} else {
		e.discover(ctx, entry, res, base)
	}

	e.processSitemaps(ctx, entry)
}

// discover queues the in-scope links of a page.
func (e *Engine) discover(ctx context.Context, entry *frontier.Entry, res *fetcher.Result, base string) {
	if entry.Depth >= e.maxDepth(entry.Host) {
		return
	}

	links := e.extractor.Links(res.Body, base, res.ContentType)
	candidates := make([]frontier.Candidate, 0, len(links))
	for _, link := range links {
		if !e.inScope(link, entry.Host) || e.frontier.IsCrawled(link) {
			continue
		}
		candidates = append(candidates, frontier.Candidate{
			URL:      link,
			Priority: discoveredPriority(ctx, link, entry, e.scorer),
			Depth:    entry.Depth + 1,
			Parent:   entry.URL,
		})
	}

	if n := e.frontier.Add(candidates, frontier.AddOptions{Source: frontier.SourceDiscovery}); n > 0 {
		e.logger.Debug("discovered URLs", "url", entry.URL, "count", n)
	}
}

// processSitemaps walks the sitemaps of entry's host the first time a page
// of that host succeeds.
func (e *Engine) processSitemaps(ctx context.Context, entry *frontier.Entry) {
	if !e.cfg.ProcessSitemaps || !e.claimSitemapHost(entry.Host) {
		return
	}

	// Sitemap locations come from robots.txt, even when it is not enforced.
	e.robots.GetRules(ctx, entry.Host)

	found := e.sitemaps.ProcessHost(ctx, entry.Host)
	candidates := make([]frontier.Candidate, 0, len(found))
	for _, c := range found {
		if !e.inScope(c.URL, entry.Host) {
			continue
		}
		candidates = append(candidates, frontier.Candidate{
			URL:      c.URL,
			Priority: c.Priority,
			Depth:    entry.Depth + 1,
			Metadata: c.Metadata,
		})
	}
	if n := e.frontier.Add(candidates, frontier.AddOptions{Source: frontier.SourceSitemap}); n > 0 {
		e.logger.Info("queued sitemap URLs", "host", entry.Host, "count", n)
	}
}

func (e *Engine) claimSitemapHost(host string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, done := e.sitemapHosts[host]; done {
		return false
	}
	e.sitemapHosts[host] = struct{}{}
	return true
}

// inScope applies the external-link switch and the site patterns.
func (e *Engine) inScope(link, fromHost string) bool {
	host := urlnorm.Host(link)
	if host == "" {
		return false
	}
	if !e.cfg.FollowExternalLinks && host != fromHost {
		return false
	}
	policy := e.policy(host)
	return shouldCrawl(link, policy.IgnorePatterns, policy.FollowPatterns)
}

func (e *Engine) policy(host string) SitePolicy {
	if e.rules == nil {
		return SitePolicy{}
	}
	return e.rules.SitePolicy(host)
}

func (e *Engine) maxDepth(host string) int {
	if p := e.policy(host); p.MaxDepth > 0 {
		return p.MaxDepth
	}
	return e.cfg.MaxDepth
}

func (e *Engine) counts() (processed, inFlight int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processed, e.inFlight
}

func (e *Engine) inFlightCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

func (e *Engine) isDraining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draining
}
