package robots

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Rules is the parsed robots.txt for one host, restricted to the blocks that
// apply to the crawler.
type Rules struct {
	// Disallow holds path patterns the crawler must not fetch.
	Disallow []string `json:"disallow,omitempty"`

	// Allow holds path patterns that can override a shorter Disallow match.
	Allow []string `json:"allow,omitempty"`

	// CrawlDelay is the largest Crawl-delay (in seconds) found in the
	// applicable blocks. Zero when unspecified.
	CrawlDelay float64 `json:"crawl_delay,omitempty"`

	// Sitemaps lists every Sitemap directive in the file, regardless of the
	// block it appeared in.
	Sitemaps []string `json:"sitemaps,omitempty"`

	// Reachable is false when the rules were synthesized because robots.txt
	// could not be fetched.
	Reachable bool `json:"reachable"`
}

// AllowAll returns rules that permit every path. They are cached for hosts
// whose robots.txt could not be retrieved.
func AllowAll() *Rules {
	return &Rules{}
}

// Parse reads robots.txt content and keeps the directives of the blocks that
// apply to userAgent. A block applies when its agent token is "*", when
// userAgent contains the token, or when the token contains one of selfTokens.
// All comparisons are case-insensitive.
func Parse(content, userAgent string, selfTokens []string) *Rules {
	rules := &Rules{Reachable: true}
	ua := strings.ToLower(userAgent)

	applicable := false
	inAgentGroup := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxBodySize)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		directive, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		directive = strings.ToLower(strings.TrimSpace(directive))
		value = strings.TrimSpace(value)
		if value == "" {
			// An empty directive still ends a run of User-agent lines.
			if directive != "user-agent" {
				inAgentGroup = false
			}
			continue
		}

		switch directive {
		case "user-agent":
			// Consecutive User-agent lines share one group of rules.
			match := agentApplies(strings.ToLower(value), ua, selfTokens)
			if inAgentGroup {
				applicable = applicable || match
			} else {
				applicable = match
			}
			inAgentGroup = true
			continue
		case "sitemap":
			rules.Sitemaps = append(rules.Sitemaps, value)
		case "disallow":
			if applicable {
				rules.Disallow = append(rules.Disallow, value)
			}
		case "allow":
			if applicable {
				rules.Allow = append(rules.Allow, value)
			}
		case "crawl-delay":
			if applicable {
				if d, err := strconv.ParseFloat(value, 64); err == nil && d > 0 && d > rules.CrawlDelay {
					rules.CrawlDelay = d
				}
			}
		}
		inAgentGroup = false
	}

	return rules
}

// agentApplies reports whether a User-agent token selects this crawler.
func agentApplies(token, userAgent string, selfTokens []string) bool {
	if token == "*" {
		return true
	}
	if strings.Contains(userAgent, token) {
		return true
	}
	for _, self := range selfTokens {
		if self != "" && strings.Contains(token, strings.ToLower(self)) {
			return true
		}
	}
	return false
}

// IsAllowed reports whether path (URL path plus "?query") may be fetched.
// The longest matching Disallow pattern blocks the path unless a matching
// Allow pattern is strictly longer.
func (r *Rules) IsAllowed(path string) bool {
	if r == nil {
		return true
	}
	if path == "" {
		path = "/"
	}

	longest := -1
	for _, pattern := range r.Disallow {
		if len(pattern) > longest && matchPattern(path, pattern) {
			longest = len(pattern)
		}
	}
	if longest < 0 {
		return true
	}

	for _, pattern := range r.Allow {
		if len(pattern) > longest && matchPattern(path, pattern) {
			return true
		}
	}
	return false
}

// wildcardCache holds compiled expressions for patterns with an inner "*".
var wildcardCache sync.Map // map[string]*regexp.Regexp

// matchPattern applies a single robots pattern to path.
func matchPattern(path, pattern string) bool {
	if pattern == "/" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	}
	if strings.Contains(pattern, "*") {
		return wildcardRegexp(pattern).MatchString(path)
	}
	return strings.HasPrefix(path, pattern)
}

// wildcardRegexp compiles pattern into an anchored expression where each "*"
// matches any run of characters.
func wildcardRegexp(pattern string) *regexp.Regexp {
	if cached, ok := wildcardCache.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp) //nolint:errcheck // only *regexp.Regexp is stored
		return re
	}
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*")
	re := regexp.MustCompile(expr)
	wildcardCache.Store(pattern, re)
	return re
}
