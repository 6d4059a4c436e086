package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for webspider.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webspider",
		Short: "Polite, resumable web crawler",
		Long: `webspider crawls websites politely. It honors robots.txt and
Crawl-delay, slows down for hosts that answer 429 or 5xx, discovers URLs
from sitemaps and stops on a page budget or a timeout.

Crawled pages are stored in a local SQLite database and, optionally,
PostgreSQL. Every session saves its frontier so that it can be resumed.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewSessionsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
