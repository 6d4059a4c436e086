package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/nao1215/webspider/internal/config"
	"github.com/nao1215/webspider/internal/crawler"
	"github.com/nao1215/webspider/internal/database"
	"github.com/nao1215/webspider/internal/report"
	"github.com/nao1215/webspider/internal/sessionstate"
)

// testSite serves a small site with a robots.txt and records request
// paths and the X-Crawl-Token header.
type testSite struct {
	*httptest.Server

	mu     sync.Mutex
	hits   map[string]int
	tokens map[string]string
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()

	pages := map[string]string{
		"/":          `<html><body><a href="/a">a</a> <a href="/b">b</a> <a href="/private/x">x</a></body></html>`,
		"/a":         `<html><body><a href="/c">c</a></body></html>`,
		"/b":         `<html><body>b</body></html>`,
		"/c":         `<html><body>c</body></html>`,
		"/private/x": `<html><body>secret</body></html>`,
	}

	s := &testSite{
		hits:   make(map[string]int),
		tokens: make(map[string]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.tokens[r.URL.Path] = r.Header.Get("X-Crawl-Token")
		s.mu.Unlock()

		if r.URL.Path == "/robots.txt" {
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *testSite) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *testSite) token(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[path]
}

func (s *testSite) host(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(s.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	return u.Host
}

// testCrawlConfig returns a config crawling seed with no delays and all
// state kept under a temporary directory.
func testCrawlConfig(t *testing.T, seed string) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Seeds = []string{seed}
	cfg.DBDir = t.TempDir()
	cfg.CrawlDelay = 0
	cfg.NoSitemaps = true
	cfg.Timeout = 30 * time.Second
	cfg.RetryDelay = time.Millisecond
	cfg.JSONReport = true
	cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeDocument(t *testing.T, data []byte) report.Document {
	t.Helper()
	var doc report.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("failed to decode report: %v\n%s", err, data)
	}
	return doc
}

// TestNewCrawlCmd tests the crawl command creation.
func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	if !strings.HasPrefix(cmd.Use, "crawl") {
		t.Errorf("expected use to start with 'crawl', got %q", cmd.Use)
	}

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "max-pages", shorthand: "p", defValue: fmt.Sprint(config.DefaultMaxPages)},
		{name: "max-depth", shorthand: "d", defValue: fmt.Sprint(config.DefaultMaxDepth)},
		{name: "timeout", shorthand: "t", defValue: config.DefaultTimeout.String()},
		{name: "concurrency", shorthand: "n", defValue: fmt.Sprint(config.DefaultConcurrency)},
		{name: "per-host", defValue: fmt.Sprint(config.DefaultPerHost)},
		{name: "crawl-delay", defValue: config.DefaultCrawlDelay.String()},
		{name: "user-agent", shorthand: "u", defValue: config.DefaultUserAgent},
		{name: "no-robots", defValue: "false"},
		{name: "no-sitemaps", defValue: "false"},
		{name: "config", shorthand: "c"},
		{name: "json", shorthand: "j", defValue: "false"},
		{name: "markdown", shorthand: "m", defValue: "false"},
		{name: "output", shorthand: "o"},
		{name: "resume", shorthand: "r"},
		{name: "state-store", defValue: config.StateStoreFile},
		{name: "redis-addr", defValue: config.DefaultRedisAddr},
		{name: "postgres-dsn"},
		{name: "socks5"},
		{name: "tor", defValue: "false"},
		{name: "listen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if tt.defValue != "" && flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

// TestBuildConfig tests flag parsing and the config file precedence.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("flags without config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"--max-pages", "7", "--same-host", "--rps", "2.5", "--no-db"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, []string{"https://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxPages != 7 {
			t.Errorf("expected max pages 7, got %d", cfg.MaxPages)
		}
		if !cfg.SameHost || !cfg.NoDB {
			t.Error("expected same-host and no-db to be set")
		}
		if cfg.RequestsPerSecond != 2.5 {
			t.Errorf("expected rps 2.5, got %v", cfg.RequestsPerSecond)
		}
		if len(cfg.Seeds) != 1 || cfg.Seeds[0] != "https://example.com/" {
			t.Errorf("expected seeds to be the args, got %v", cfg.Seeds)
		}
		if cfg.SiteConfigs == nil {
			t.Error("expected site configs to be set")
		}
	})

	t.Run("flags win over config file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "webspider.yaml")
		content := `crawl:
  maxPages: 50
  timeout: 90s
  userAgent: file-agent/1.0
sites:
  example.com:
    headers:
      X-Crawl-Token: abc
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"--config", path, "--max-pages", "5"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, []string{"https://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxPages != 5 {
			t.Errorf("expected flag max pages 5, got %d", cfg.MaxPages)
		}
		if cfg.Timeout != 90*time.Second {
			t.Errorf("expected file timeout 90s, got %v", cfg.Timeout)
		}
		if cfg.UserAgent != "file-agent/1.0" {
			t.Errorf("expected file user agent, got %q", cfg.UserAgent)
		}
		site := cfg.SiteConfigs.GetSiteConfig("example.com")
		if site.Headers["X-Crawl-Token"] != "abc" {
			t.Errorf("expected site header from file, got %v", site.Headers)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		if err := cmd.ParseFlags([]string{"--config", missing}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		if _, err := buildConfig(cmd, nil); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("invalid duration in config file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "webspider.yaml")
		if err := os.WriteFile(path, []byte("crawl:\n  timeout: soon\n"), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"--config", path}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		if _, err := buildConfig(cmd, nil); err == nil {
			t.Error("expected error for invalid duration")
		}
	})
}

// TestRunCrawl tests a full session against a local site.
func TestRunCrawl(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	cfg := testCrawlConfig(t, site.URL+"/")
	cfg.SiteConfigs.Sites[site.host(t)] = config.SiteConfig{
		Headers: map[string]string{"X-Crawl-Token": "abc"},
	}

	var out bytes.Buffer
	summary, err := runCrawl(t.Context(), cfg, discardLogger(), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.State != crawler.StateExhausted {
		t.Errorf("expected state %q, got %q", crawler.StateExhausted, summary.State)
	}
	if summary.PagesProcessed != 4 {
		t.Errorf("expected 4 pages, got %d", summary.PagesProcessed)
	}
	if summary.RobotsBlocks != 1 {
		t.Errorf("expected 1 robots block, got %d", summary.RobotsBlocks)
	}
	if n := site.count("/private/x"); n != 0 {
		t.Errorf("expected disallowed page not to be fetched, got %d requests", n)
	}
	if n := site.count("/robots.txt"); n != 1 {
		t.Errorf("expected robots.txt to be fetched once, got %d", n)
	}
	if got := site.token("/a"); got != "abc" {
		t.Errorf("expected site header on requests, got %q", got)
	}

	doc := decodeDocument(t, out.Bytes())
	if doc.SessionID != summary.SessionID {
		t.Errorf("expected report session %q, got %q", summary.SessionID, doc.SessionID)
	}
	if doc.PagesProcessed != 4 {
		t.Errorf("expected 4 pages in report, got %d", doc.PagesProcessed)
	}

	db, err := database.Open(cfg.DBDir, database.Options{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	count, err := db.CountPages(t.Context(), "")
	if err != nil {
		t.Fatalf("failed to count pages: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 stored pages, got %d", count)
	}

	rec, err := db.LoadSession(t.Context(), summary.SessionID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if rec.State != string(crawler.StateExhausted) {
		t.Errorf("expected recorded state %q, got %q", crawler.StateExhausted, rec.State)
	}
	if rec.PagesProcessed != 4 {
		t.Errorf("expected 4 recorded pages, got %d", rec.PagesProcessed)
	}

	store, err := sessionstate.NewFileStore(cfg.StateDir())
	if err != nil {
		t.Fatalf("failed to open state store: %v", err)
	}
	if _, err := store.Load(t.Context(), summary.SessionID); err != nil {
		t.Errorf("expected saved frontier, got %v", err)
	}
}

// TestRunCrawl_Resume tests that a session stopped by its page budget
// continues from the saved frontier.
func TestRunCrawl_Resume(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	cfg := testCrawlConfig(t, site.URL+"/")
	cfg.MaxPages = 1

	first, err := runCrawl(t.Context(), cfg, discardLogger(), io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.PagesProcessed != 1 {
		t.Fatalf("expected 1 page in the first session, got %d", first.PagesProcessed)
	}
	if first.Frontier == nil || len(first.Frontier.Queue) == 0 {
		t.Fatal("expected queued URLs after the first session")
	}

	cfg.MaxPages = 100
	cfg.Resume = sessionstate.Latest
	cfg.Seeds = nil
	second, err := runCrawl(t.Context(), cfg, discardLogger(), io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("expected resumed session %q, got %q", first.SessionID, second.SessionID)
	}
	if second.PagesProcessed != 3 {
		t.Errorf("expected 3 pages in the resumed session, got %d", second.PagesProcessed)
	}
	if n := site.count("/"); n != 1 {
		t.Errorf("expected seed to be fetched once, got %d", n)
	}
	if n := site.count("/private/x"); n != 0 {
		t.Errorf("expected disallowed page not to be fetched, got %d", n)
	}
}

// TestRunCrawl_ResumeUnknown tests resuming a session that was never saved.
func TestRunCrawl_ResumeUnknown(t *testing.T) {
	t.Parallel()

	cfg := testCrawlConfig(t, "http://127.0.0.1/")
	cfg.Resume = "does-not-exist"

	_, err := runCrawl(t.Context(), cfg, discardLogger(), io.Discard)
	if !errors.Is(err, sessionstate.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestRunCrawl_Canceled tests that a canceled session is still saved.
func TestRunCrawl_Canceled(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	cfg := testCrawlConfig(t, site.URL+"/")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	summary, err := runCrawl(ctx, cfg, discardLogger(), io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.State != crawler.StateDraining {
		t.Errorf("expected state %q, got %q", crawler.StateDraining, summary.State)
	}

	store, err := sessionstate.NewFileStore(cfg.StateDir())
	if err != nil {
		t.Fatalf("failed to open state store: %v", err)
	}
	if _, err := store.Load(t.Context(), summary.SessionID); err != nil {
		t.Errorf("expected canceled session to be saved, got %v", err)
	}
}

// TestRunCrawl_StateStores tests the redis and sqlite state stores.
func TestRunCrawl_StateStores(t *testing.T) {
	t.Parallel()

	t.Run("redis", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		site := newTestSite(t)
		cfg := testCrawlConfig(t, site.URL+"/")
		cfg.StateStore = config.StateStoreRedis
		cfg.RedisAddr = mr.Addr()
		cfg.NoDB = true

		summary, err := runCrawl(t.Context(), cfg, discardLogger(), io.Discard)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		found := false
		for _, key := range mr.Keys() {
			if strings.Contains(key, summary.SessionID) {
				found = true
			}
		}
		if !found {
			t.Errorf("expected a redis key for session %q, got %v", summary.SessionID, mr.Keys())
		}
	})

	t.Run("redis unreachable", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := testCrawlConfig(t, "http://127.0.0.1/")
		cfg.StateStore = config.StateStoreRedis
		cfg.RedisAddr = addr
		cfg.NoDB = true

		if _, err := runCrawl(t.Context(), cfg, discardLogger(), io.Discard); err == nil {
			t.Error("expected error for unreachable redis")
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		cfg := testCrawlConfig(t, site.URL+"/")
		cfg.StateStore = config.StateStoreSQLite

		summary, err := runCrawl(t.Context(), cfg, discardLogger(), io.Discard)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		db, err := database.Open(cfg.DBDir, database.Options{})
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		rec, err := db.LoadSession(t.Context(), summary.SessionID)
		if err != nil {
			t.Fatalf("failed to load session: %v", err)
		}
		if len(rec.Snapshot) == 0 {
			t.Error("expected the frontier snapshot in the sessions table")
		}
	})

	t.Run("sqlite without database", func(t *testing.T) {
		t.Parallel()

		cfg := testCrawlConfig(t, "http://127.0.0.1/")
		cfg.StateStore = config.StateStoreSQLite
		cfg.NoDB = true

		_, err := runCrawl(t.Context(), cfg, discardLogger(), io.Discard)
		if !errors.Is(err, config.ErrSQLiteDisabled) {
			t.Errorf("expected ErrSQLiteDisabled, got %v", err)
		}
	})
}

// TestRedisOptions tests the redis address forms.
func TestRedisOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		addr     string
		wantAddr string
		wantDB   int
		wantErr  bool
	}{
		{name: "host and port", addr: "localhost:6379", wantAddr: "localhost:6379"},
		{name: "url", addr: "redis://cache.internal:6380/2", wantAddr: "cache.internal:6380", wantDB: 2},
		{name: "bad url", addr: "redis://cache.internal:6380/notadb", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts, err := redisOptions(tt.addr)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if opts.Addr != tt.wantAddr {
				t.Errorf("expected addr %q, got %q", tt.wantAddr, opts.Addr)
			}
			if opts.DB != tt.wantDB {
				t.Errorf("expected db %d, got %d", tt.wantDB, opts.DB)
			}
		})
	}
}

// TestOutputReport tests the report formats and the output file.
func TestOutputReport(t *testing.T) {
	t.Parallel()

	summary := &crawler.Summary{
		SessionID:      "0123456789abcdef0123456789abcdef",
		State:          crawler.StateExhausted,
		StartedAt:      time.Now(),
		Duration:       3 * time.Second,
		PagesProcessed: 12,
	}

	t.Run("json to file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.JSONReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "session.json")

		if err := outputReport(cfg, summary, io.Discard); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		doc := decodeDocument(t, data)
		if doc.PagesProcessed != 12 {
			t.Errorf("expected 12 pages, got %d", doc.PagesProcessed)
		}
		if doc.Version == "" {
			t.Error("expected version in JSON report")
		}
	})

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.MarkdownReport = true
		var buf bytes.Buffer
		if err := outputReport(cfg, summary, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "`"+summary.SessionID+"`") {
			t.Errorf("expected session id in markdown report, got %q", buf.String())
		}
	})

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		var buf bytes.Buffer
		if err := outputReport(cfg, summary, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), summary.SessionID) {
			t.Errorf("expected session id in text report, got %q", buf.String())
		}
	})
}
