package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nao1215/webspider/internal/config"
	"github.com/nao1215/webspider/internal/crawler"
	"github.com/nao1215/webspider/internal/database"
	"github.com/nao1215/webspider/internal/frontier"
	"github.com/nao1215/webspider/internal/metrics"
	"github.com/nao1215/webspider/internal/report"
	"github.com/nao1215/webspider/internal/server"
	"github.com/nao1215/webspider/internal/sessionstate"
	"github.com/nao1215/webspider/internal/tor"
)

// resources holds everything a crawl session opens around the engine.
type resources struct {
	db        *database.CrawlDB
	pg        *database.PGStore
	state     sessionstate.Store
	transport http.RoundTripper
	closers   []func()
}

// Close releases the resources in reverse order of opening.
func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// sink returns the page sink, or nil when pages are not stored.
func (r *resources) sink() crawler.Sink {
	var stores database.MultiStore
	if r.db != nil {
		stores = append(stores, r.db)
	}
	if r.pg != nil {
		stores = append(stores, r.pg)
	}
	if len(stores) == 0 {
		return nil
	}
	return stores
}

// openResources opens the databases, the state store and the transport
// selected by cfg. On error everything opened so far is closed.
func openResources(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *resources, err error) {
	r := &resources{}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	if !cfg.NoDB {
		r.db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		r.closers = append(r.closers, func() {
			if err := r.db.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		})
		logger.Debug("database opened", "path", r.db.Path())
	}

	if cfg.PostgresDSN != "" {
		r.pg, err = database.NewPGStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, r.pg.Close)
		logger.Info("postgres sink enabled", "dsn", cfg.PostgresDSN)
	}

	if r.state, err = openStateStore(ctx, cfg, r); err != nil {
		return nil, err
	}

	if r.transport, err = openTransport(ctx, cfg, r, logger); err != nil {
		return nil, err
	}
	return r, nil
}

func openStateStore(ctx context.Context, cfg *config.Config, r *resources) (sessionstate.Store, error) {
	switch cfg.StateStore {
	case config.StateStoreRedis:
		opts, err := redisOptions(cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		client := goredis.NewClient(opts)
		r.closers = append(r.closers, func() { _ = client.Close() }) //nolint:errcheck // best effort
		store := sessionstate.NewRedisStore(client)
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
		}
		return store, nil
	case config.StateStoreSQLite:
		if r.db == nil {
			return nil, config.ErrSQLiteDisabled
		}
		return sessionstate.NewDBStore(r.db), nil
	default:
		return sessionstate.NewFileStore(cfg.StateDir())
	}
}

// redisOptions accepts "host:port" or a redis:// URL.
func redisOptions(addr string) (*goredis.Options, error) {
	if strings.Contains(addr, "://") {
		opts, err := goredis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		return opts, nil
	}
	return &goredis.Options{Addr: addr}, nil
}

// openTransport returns the SOCKS5 transport selected by cfg, or nil for
// direct connections.
func openTransport(ctx context.Context, cfg *config.Config, r *resources, logger *slog.Logger) (http.RoundTripper, error) {
	var client *tor.Client
	switch {
	case cfg.SOCKS5Address != "":
		var err error
		client, err = tor.NewClient(cfg.SOCKS5Address)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 client: %w", err)
		}
	case cfg.UseTor:
		embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
		logger.Info("starting embedded Tor daemon, this may take a few minutes")
		if err := embedded.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		r.closers = append(r.closers, func() {
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		})
		logger.Info("embedded Tor daemon started", "socksAddr", embedded.SocksAddr())

		var err error
		if client, err = embedded.NewClient(); err != nil {
			return nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
	default:
		return nil, nil //nolint:nilnil // direct connections
	}

	if err := client.CheckConnection(ctx).Error(); err != nil {
		return nil, fmt.Errorf("proxy check failed for %s: %w", client.ProxyAddress(), err)
	}
	logger.Info("proxy connection verified", "address", client.ProxyAddress())
	return client.Transport(), nil
}

// resumeTarget returns the session id to crawl under and, when resuming,
// the saved frontier.
func resumeTarget(ctx context.Context, cfg *config.Config, store sessionstate.Store, logger *slog.Logger) (string, *frontier.Snapshot, error) {
	if cfg.Resume == "" {
		return sessionstate.NewID(), nil, nil
	}

	id, blob, err := sessionstate.Resolve(ctx, store, cfg.Resume)
	if err != nil {
		if errors.Is(err, sessionstate.ErrNotFound) {
			return "", nil, fmt.Errorf("no saved state for session %q in the %s store: %w", cfg.Resume, cfg.StateStore, err)
		}
		return "", nil, err
	}
	snap, err := frontier.Decode(blob)
	if err != nil {
		return "", nil, err
	}
	if len(cfg.Seeds) > 0 {
		logger.Warn("seed URLs are ignored when resuming", "seeds", len(cfg.Seeds))
	}
	logger.Info("resuming session", "session", id, "queued", len(snap.Queue), "crawled", len(snap.Crawled))
	return id, snap, nil
}

func queuedURLs(snap *frontier.Snapshot) []string {
	urls := make([]string, 0, len(snap.Queue))
	for _, e := range snap.Queue {
		urls = append(urls, e.URL)
	}
	return urls
}

// runCrawl runs one crawl session end to end: it opens the stores, runs or
// resumes the engine, saves the session and writes the report to out.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*crawler.Summary, error) {
	res, err := openResources(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	id, snap, err := resumeTarget(ctx, cfg, res.state, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	opts := []crawler.Option{
		crawler.WithSessionID(id),
		crawler.WithObserver(m),
		crawler.WithLogger(logger),
		crawler.WithSiteRules(cfg.SiteConfigs),
		crawler.WithHeaderProvider(cfg.SiteConfigs),
	}
	if res.transport != nil {
		opts = append(opts, crawler.WithTransport(res.transport))
	}
	if sink := res.sink(); sink != nil {
		opts = append(opts, crawler.WithSink(sink))
	}
	ec := cfg.EngineConfig()
	if snap != nil {
		ec.Scheme = config.SchemeFor(queuedURLs(snap))
	}
	engine := crawler.New(ec, opts...)

	if res.db != nil {
		rec := &database.SessionRecord{ID: id, State: string(crawler.StateRunning)}
		if err := res.db.SaveSession(ctx, rec); err != nil {
			logger.Warn("failed to record session start", "error", err)
		}
	}

	stopServer := startStatusServer(cfg, engine, m, logger)
	defer stopServer()

	logger.Info("crawl started",
		"session", id,
		"seeds", len(cfg.Seeds),
		"maxPages", cfg.MaxPages,
		"maxDepth", cfg.MaxDepth,
	)

	var summary *crawler.Summary
	if snap != nil {
		summary, err = engine.Resume(ctx, snap)
	} else {
		summary, err = engine.Run(ctx, cfg.Seeds)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("crawl finished",
		"state", summary.State,
		"pages", summary.PagesProcessed,
		"errors", summary.Errors,
		"duration", summary.Duration,
	)

	// A canceled session is still saved so that it can be resumed.
	saveErr := saveSession(context.WithoutCancel(ctx), res, summary)
	if saveErr == nil && summary.Frontier != nil && len(summary.Frontier.Queue) > 0 {
		logger.Info("session saved, continue with --resume", "session", summary.SessionID, "queued", len(summary.Frontier.Queue))
	}
	reportErr := outputReport(cfg, summary, out)
	return summary, errors.Join(saveErr, reportErr)
}

// startStatusServer serves /healthz, /status and /metrics when --listen is
// set. The returned function stops the server and waits for it.
func startStatusServer(cfg *config.Config, engine *crawler.Engine, m *metrics.Metrics, logger *slog.Logger) func() {
	if cfg.ListenAddr == "" {
		return func() {}
	}

	srv := server.New(cfg.ListenAddr, engine,
		server.WithMetrics(m.Handler()),
		server.WithLogger(logger),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.ListenAndServe(ctx); err != nil {
			logger.Error("status server failed", "addr", cfg.ListenAddr, "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// saveSession stores the frontier snapshot in the state store and the
// summary in the sessions table.
func saveSession(ctx context.Context, res *resources, summary *crawler.Summary) error {
	var errs []error

	if summary.Frontier != nil {
		blob, err := frontier.Encode(summary.Frontier)
		if err != nil {
			return err
		}
		if err := res.state.Save(ctx, summary.SessionID, blob); err != nil {
			errs = append(errs, fmt.Errorf("failed to save session state: %w", err))
		}
	}

	if res.db != nil {
		// The snapshot lives in the state store; keep the summary small.
		s := *summary
		s.Frontier = nil
		data, err := json.Marshal(&s)
		if err != nil {
			return errors.Join(append(errs, fmt.Errorf("failed to encode summary: %w", err))...)
		}
		rec := &database.SessionRecord{
			ID:             summary.SessionID,
			State:          string(summary.State),
			PagesProcessed: summary.PagesProcessed,
			Summary:        data,
		}
		if err := res.db.SaveSession(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// outputReport writes the session report in the requested format to the
// report file, or to out.
func outputReport(cfg *config.Config, summary *crawler.Summary, out io.Writer) error {
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(out,
			report.WithPrettyPrint(),
			report.WithJSONVersion(getVersion()),
		)
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(out)
	default:
		writer = report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
	_, err := writer.Write(summary)
	return err
}
