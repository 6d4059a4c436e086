package crawler

import (
	"context"
	"time"

	"github.com/nao1215/webspider/internal/model"
)

// Sink persists crawled pages. Store must upsert by URL.
type Sink interface {
	Store(ctx context.Context, page *model.PageRecord) error
}

// DiscardSink drops every page.
type DiscardSink struct{}

// Store implements Sink.
func (DiscardSink) Store(context.Context, *model.PageRecord) error { return nil }

// Scorer rates a discovered link in the context of the page it was found on.
// Scores are in [0, 1]; 0.5 is neutral.
type Scorer interface {
	Score(ctx context.Context, link, parent string) float64
}

// NeutralScorer gives every link 0.5.
type NeutralScorer struct{}

// Score implements Scorer.
func (NeutralScorer) Score(context.Context, string, string) float64 { return 0.5 }

// SitePolicy narrows the crawl for one host.
type SitePolicy struct {
	// MaxDepth overrides the session depth limit when positive.
	MaxDepth int

	// CrawlDelay raises the starting delay between requests to the host.
	CrawlDelay time.Duration

	// IgnorePatterns are path globs that are never crawled.
	IgnorePatterns []string

	// FollowPatterns, when set, are the only path globs crawled.
	FollowPatterns []string
}

// SiteRules looks up the policy of a host.
type SiteRules interface {
	SitePolicy(host string) SitePolicy
}
