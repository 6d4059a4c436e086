// Package config provides the configuration of a webspider run.
//
// Config is the flat set of options filled from CLI flags. File is the
// optional YAML file (.webspider) with crawl defaults and per-site settings
// such as cookies, extra headers, depth limits, crawl delays and URL
// patterns. File implements the crawler's SiteRules and the fetcher's
// HeaderProvider, so the per-site settings reach the engine directly.
package config
