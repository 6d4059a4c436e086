package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/webspider/internal/config"
	seclog "github.com/nao1215/webspider/internal/log"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl websites starting from seed URLs",
		Long: `Crawl fetches the seed URLs and follows the links it finds, breadth
first by priority, until the page budget is spent, the frontier is empty or
the timeout expires.

The crawler honors robots.txt and its Crawl-delay, keeps at most --per-host
requests open per host and slows down for hosts that answer 429 or 5xx.
Sitemaps listed in robots.txt feed the frontier as well.

Pages are stored in a SQLite database in the XDG data directory. When the
session ends, its frontier is saved so that --resume can continue it.

Examples:
  # Crawl a site, staying on its host
  webspider crawl --same-host https://example.com/

  # Bigger budget, gentler pacing
  webspider crawl --max-pages 1000 --crawl-delay 3s https://example.com/

  # Continue the most recent session
  webspider crawl --resume latest

  # Expose /status and /metrics while crawling
  webspider crawl --listen 127.0.0.1:9090 https://example.com/

  # Crawl through Tor, with a Markdown report
  webspider crawl --tor --markdown -o report.md https://example.com/

Configuration file (.webspider) example:
  crawl:
    maxPages: 500
    crawlDelay: 2s
  sites:
    docs.example.com:
      cookie: "session=abc123"
      maxDepth: 5
      followPatterns:
        - "/docs/*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl limits
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Stop after this many successfully processed pages")
	cmd.Flags().IntP("max-depth", "d", config.DefaultMaxDepth,
		"Do not follow links from pages this many hops from a seed")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Maximum duration of the crawl session")
	cmd.Flags().Bool("same-host", false,
		"Only follow links to the host of the page they appear on")

	// Politeness
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Maximum number of requests in flight")
	cmd.Flags().Int("per-host", config.DefaultPerHost,
		"Maximum number of requests in flight per host")
	cmd.Flags().Duration("crawl-delay", config.DefaultCrawlDelay,
		"Minimum delay between requests to the same host")
	cmd.Flags().Float64("rps", 0,
		"Global request rate limit in requests per second (0 disables)")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"User-Agent header and robots.txt token")
	cmd.Flags().Bool("no-robots", false,
		"Ignore robots.txt (not recommended)")
	cmd.Flags().Bool("no-sitemaps", false,
		"Do not discover URLs from sitemaps")

	// Fetching
	cmd.Flags().Int("max-retries", config.DefaultMaxRetries,
		"Attempts per URL before it is dropped")
	cmd.Flags().Duration("retry-delay", config.DefaultRetryDelay,
		"Backoff before the first retry of a failed URL")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .webspider in current or home directory)")

	// Reports
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// Sessions and storage
	cmd.Flags().StringP("resume", "r", "",
		`Resume a saved session by id, or "latest"`)
	cmd.Flags().String("state-store", config.StateStoreFile,
		"Where session state is saved: file, redis or sqlite")
	cmd.Flags().String("redis-addr", config.DefaultRedisAddr,
		"Redis address (host:port or redis:// URL) for --state-store redis")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the SQLite database and session files")
	cmd.Flags().Bool("no-db", false,
		"Do not store pages in SQLite")
	cmd.Flags().String("postgres-dsn", "",
		"Also store pages in PostgreSQL")

	// Network
	cmd.Flags().String("socks5", "",
		"Route requests through a SOCKS5 proxy (host:port)")
	cmd.Flags().Bool("tor", false,
		"Route requests through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Observability
	cmd.Flags().String("listen", "",
		"Serve /healthz, /status and /metrics on this address")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// The first signal starts the drain; in-flight requests get the
	// shutdown window to finish.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, draining...")
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err = runCrawl(ctx, cfg, logger, cmd.OutOrStdout())
	return err
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from the command flags and the config file.
// Flags set on the command line win over the file's crawl settings.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	intFlags := map[string]*int{
		"max-pages":   &cfg.MaxPages,
		"max-depth":   &cfg.MaxDepth,
		"concurrency": &cfg.Concurrency,
		"per-host":    &cfg.PerHost,
		"max-retries": &cfg.MaxRetries,
	}
	for name, dst := range intFlags {
		if *dst, err = flags.GetInt(name); err != nil {
			return nil, err
		}
	}

	durationFlags := map[string]*time.Duration{
		"timeout":     &cfg.Timeout,
		"crawl-delay": &cfg.CrawlDelay,
		"retry-delay": &cfg.RetryDelay,
		"tor-timeout": &cfg.TorStartupTimeout,
	}
	for name, dst := range durationFlags {
		if *dst, err = flags.GetDuration(name); err != nil {
			return nil, err
		}
	}

	boolFlags := map[string]*bool{
		"same-host":   &cfg.SameHost,
		"no-robots":   &cfg.NoRobots,
		"no-sitemaps": &cfg.NoSitemaps,
		"json":        &cfg.JSONReport,
		"markdown":    &cfg.MarkdownReport,
		"no-db":       &cfg.NoDB,
		"tor":         &cfg.UseTor,
		"log-json":    &cfg.LogJSON,
	}
	for name, dst := range boolFlags {
		if *dst, err = flags.GetBool(name); err != nil {
			return nil, err
		}
	}

	stringFlags := map[string]*string{
		"user-agent":   &cfg.UserAgent,
		"config":       &cfg.ConfigFilePath,
		"output":       &cfg.ReportFile,
		"resume":       &cfg.Resume,
		"state-store":  &cfg.StateStore,
		"redis-addr":   &cfg.RedisAddr,
		"db-dir":       &cfg.DBDir,
		"postgres-dsn": &cfg.PostgresDSN,
		"socks5":       &cfg.SOCKS5Address,
		"listen":       &cfg.ListenAddr,
	}
	for name, dst := range stringFlags {
		if *dst, err = flags.GetString(name); err != nil {
			return nil, err
		}
	}

	if cfg.RequestsPerSecond, err = flags.GetFloat64("rps"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	// An explicit --config must exist; otherwise a missing file means
	// built-in defaults.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := cfg.SiteConfigs.Crawl.Apply(cfg, flags.Changed); err != nil {
			return nil, fmt.Errorf("invalid crawl settings in %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	cfg.Seeds = args
	return cfg, nil
}

// setupLogger creates the secret-masking logger selected by cfg.
func setupLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return seclog.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return seclog.NewSecureLogger(w, cfg.Verbose)
}
