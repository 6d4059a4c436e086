package frontier

import (
	"maps"
	"time"
)

// Source tells how a URL entered the frontier.
type Source string

const (
	// SourceSeed marks URLs supplied by the session driver.
	SourceSeed Source = "seed"
	// SourceDiscovery marks links found on crawled pages.
	SourceDiscovery Source = "discovery"
	// SourceSitemap marks URLs listed in a sitemap.
	SourceSitemap Source = "sitemap"
	// SourceManual marks URLs added by hand during a session.
	SourceManual Source = "manual"
)

const (
	// DefaultPriority is used when neither the candidate nor the options
	// carry a priority.
	DefaultPriority = 5
	// SeedPriority is the default priority of seeds.
	SeedPriority = 10
	// MinPriority is the lowest priority an entry can have.
	MinPriority = 1
	// MaxPriority is the highest priority an entry can have.
	MaxPriority = 10
)

// Entry is one URL waiting for a crawl attempt.
type Entry struct {
	URL         string            `json:"url"`
	Host        string            `json:"hostname"`
	Priority    int               `json:"priority"`
	Depth       int               `json:"depth"`
	Source      Source            `json:"source"`
	RetryCount  int               `json:"retry_count"`
	LastAttempt *time.Time        `json:"last_attempt,omitempty"`
	AddedAt     time.Time         `json:"added_at"`
	Parent      string            `json:"parent,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (e *Entry) clone() Entry {
	c := *e
	c.Metadata = maps.Clone(e.Metadata)
	if e.LastAttempt != nil {
		t := *e.LastAttempt
		c.LastAttempt = &t
	}
	return c
}

// Candidate is a URL offered to Add.
type Candidate struct {
	// URL may be relative when Base is set in AddOptions.
	URL string
	// Priority overrides AddOptions.Priority when positive.
	Priority int
	// Depth is the hop count from a seed.
	Depth int
	// Parent is the page the URL was found on.
	Parent string
	// Metadata is copied onto the entry.
	Metadata map[string]string
}

// AddOptions apply to every candidate of one Add call.
type AddOptions struct {
	// Source is recorded on every entry. Defaults to SourceDiscovery.
	Source Source
	// Priority is used for candidates without their own. Defaults to
	// SeedPriority for seeds and DefaultPriority otherwise.
	Priority int
	// Base resolves relative candidate URLs.
	Base string
}
