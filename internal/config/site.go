package config

import (
	"fmt"
	"maps"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/webspider/internal/crawler"
)

// SiteConfig holds site-specific configuration for a single host.
type SiteConfig struct {
	// Cookie is an HTTP cookie to use when crawling this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MaxDepth overrides the session depth limit for this site when positive.
	MaxDepth int `yaml:"maxDepth,omitempty"`

	// CrawlDelay is a minimum delay between requests to this site,
	// written as a Go duration ("2s", "500ms").
	CrawlDelay string `yaml:"crawlDelay,omitempty"`

	// IgnorePatterns are URL patterns to skip during crawling.
	// Patterns are matched against the URL path using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL patterns to follow during crawling.
	// If specified, only URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// Delay returns the parsed CrawlDelay, zero when unset or invalid.
func (sc SiteConfig) Delay() time.Duration {
	d, err := parseDuration(sc.CrawlDelay)
	if err != nil {
		return 0
	}
	return d
}

// File represents the structure of the .webspider configuration file.
type File struct {
	// Crawl overrides the engine defaults. CLI flags take precedence.
	Crawl CrawlSettings `yaml:"crawl,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Sites maps hosts ("example.com" or "example.com:8080") to their
	// site-specific configurations.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`
}

// GetSiteConfig returns the configuration for host merged over the
// defaults. A host with a port falls back to the entry without the port.
// The result never shares maps or slices with the file.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}

	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)
	result.IgnorePatterns = slices.Clone(cf.Defaults.IgnorePatterns)
	result.FollowPatterns = slices.Clone(cf.Defaults.FollowPatterns)

	siteConfig, ok := cf.lookup(host)
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.MaxDepth != 0 {
		result.MaxDepth = siteConfig.MaxDepth
	}
	if siteConfig.CrawlDelay != "" {
		result.CrawlDelay = siteConfig.CrawlDelay
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = slices.Clone(siteConfig.IgnorePatterns)
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = slices.Clone(siteConfig.FollowPatterns)
	}
	return result
}

func (cf *File) lookup(host string) (SiteConfig, bool) {
	host = strings.ToLower(host)
	if sc, ok := cf.Sites[host]; ok {
		return sc, true
	}
	if name, _, err := net.SplitHostPort(host); err == nil {
		sc, ok := cf.Sites[name]
		return sc, ok
	}
	return SiteConfig{}, false
}

// SiteHeaders returns the cookie and extra headers of host. It implements
// the fetcher's HeaderProvider.
func (cf *File) SiteHeaders(host string) (string, map[string]string) {
	sc := cf.GetSiteConfig(host)
	return sc.Cookie, sc.Headers
}

// SitePolicy returns the crawl policy of host. It implements the crawler's
// SiteRules.
func (cf *File) SitePolicy(host string) crawler.SitePolicy {
	sc := cf.GetSiteConfig(host)
	return crawler.SitePolicy{
		MaxDepth:       sc.MaxDepth,
		CrawlDelay:     sc.Delay(),
		IgnorePatterns: sc.IgnorePatterns,
		FollowPatterns: sc.FollowPatterns,
	}
}

// Validate checks the durations of the file.
func (cf *File) Validate() error {
	if cf == nil {
		return nil
	}
	if err := cf.Crawl.validate(); err != nil {
		return err
	}
	if _, err := parseDuration(cf.Defaults.CrawlDelay); err != nil {
		return fmt.Errorf("defaults.crawlDelay: %w", err)
	}
	for host, sc := range cf.Sites {
		if _, err := parseDuration(sc.CrawlDelay); err != nil {
			return fmt.Errorf("sites.%s.crawlDelay: %w", host, err)
		}
	}
	return nil
}

// parseDuration parses a Go duration. The empty string is zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrInvalidDuration, s)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w %q: must be non-negative", ErrInvalidDuration, s)
	}
	return d, nil
}
