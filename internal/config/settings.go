package config

import "fmt"

// CrawlSettings are engine defaults read from the config file. Zero values
// and nil pointers leave the built-in defaults in place. Durations are Go
// duration strings.
type CrawlSettings struct {
	MaxPages          int     `yaml:"maxPages,omitempty"`
	MaxDepth          *int    `yaml:"maxDepth,omitempty"`
	Timeout           string  `yaml:"timeout,omitempty"`
	Concurrency       int     `yaml:"concurrency,omitempty"`
	PerHost           int     `yaml:"perHost,omitempty"`
	CrawlDelay        string  `yaml:"crawlDelay,omitempty"`
	UserAgent         string  `yaml:"userAgent,omitempty"`
	SameHost          *bool   `yaml:"sameHost,omitempty"`
	RespectRobots     *bool   `yaml:"respectRobots,omitempty"`
	ProcessSitemaps   *bool   `yaml:"processSitemaps,omitempty"`
	MaxRetries        int     `yaml:"maxRetries,omitempty"`
	RetryDelay        string  `yaml:"retryDelay,omitempty"`
	MaxBodySize       int64   `yaml:"maxBodySize,omitempty"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
}

func (s CrawlSettings) validate() error {
	for name, v := range map[string]string{
		"crawl.timeout":    s.Timeout,
		"crawl.crawlDelay": s.CrawlDelay,
		"crawl.retryDelay": s.RetryDelay,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Apply copies the settings into c. isSet reports whether the option of
// the given flag name was set explicitly; those options are left alone so
// that flags win over the file. A nil isSet applies everything.
func (s CrawlSettings) Apply(c *Config, isSet func(flag string) bool) error {
	if err := s.validate(); err != nil {
		return err
	}
	if isSet == nil {
		isSet = func(string) bool { return false }
	}

	if s.MaxPages > 0 && !isSet("max-pages") {
		c.MaxPages = s.MaxPages
	}
	if s.MaxDepth != nil && !isSet("max-depth") {
		c.MaxDepth = *s.MaxDepth
	}
	if s.Timeout != "" && !isSet("timeout") {
		c.Timeout, _ = parseDuration(s.Timeout) //nolint:errcheck // validated above
	}
	if s.Concurrency > 0 && !isSet("concurrency") {
		c.Concurrency = s.Concurrency
	}
	if s.PerHost > 0 && !isSet("per-host") {
		c.PerHost = s.PerHost
	}
	if s.CrawlDelay != "" && !isSet("crawl-delay") {
		c.CrawlDelay, _ = parseDuration(s.CrawlDelay) //nolint:errcheck // validated above
	}
	if s.UserAgent != "" && !isSet("user-agent") {
		c.UserAgent = s.UserAgent
	}
	if s.SameHost != nil && !isSet("same-host") {
		c.SameHost = *s.SameHost
	}
	if s.RespectRobots != nil && !isSet("no-robots") {
		c.NoRobots = !*s.RespectRobots
	}
	if s.ProcessSitemaps != nil && !isSet("no-sitemaps") {
		c.NoSitemaps = !*s.ProcessSitemaps
	}
	if s.MaxRetries > 0 && !isSet("max-retries") {
		c.MaxRetries = s.MaxRetries
	}
	if s.RetryDelay != "" && !isSet("retry-delay") {
		c.RetryDelay, _ = parseDuration(s.RetryDelay) //nolint:errcheck // validated above
	}
	if s.MaxBodySize > 0 && !isSet("max-body-size") {
		c.MaxBodySize = s.MaxBodySize
	}
	if s.RequestsPerSecond > 0 && !isSet("rps") {
		c.RequestsPerSecond = s.RequestsPerSecond
	}
	return nil
}
