package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

// repeatedSlashes matches runs of two or more path separators.
var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// Normalize resolves rawURL against baseURL and returns its canonical form.
// The boolean is false when the reference cannot be crawled: fragment-only
// references, non-HTTP(S) schemes, missing hosts and unparsable input.
// An empty baseURL requires rawURL to be absolute.
func Normalize(rawURL, baseURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || strings.HasPrefix(rawURL, "#") {
		return "", false
	}

	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	u := ref
	if baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return "", false
		}
		u = base.ResolveReference(ref)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}

	out := url.URL{
		Scheme: scheme,
		User:   u.User,
		Host:   strings.ToLower(u.Host),
		Path:   normalizePath(u.Path),
	}
	out.RawQuery = sortQuery(u.RawQuery)

	return out.String(), true
}

// normalizePath collapses repeated separators and strips a single trailing
// slash from non-root paths. An empty path becomes "/".
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	p = repeatedSlashes.ReplaceAllString(p, "/")
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

// sortQuery orders parameters by key. Values sharing a key keep their
// original relative order.
func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	// ParseQuery keeps every well-formed pair even when it reports an error
	// for a malformed one.
	values, _ := url.ParseQuery(rawQuery) //nolint:errcheck // partial result is intended
	return values.Encode()
}

// Host returns the lowercased host of rawURL, including its port if any.
// This is the key used for per-host politeness and robots state.
// It returns an empty string when rawURL cannot be parsed.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// Hostname returns the lowercased host of rawURL without its port.
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// SameHost reports whether both URLs point at the same host, ignoring case.
func SameHost(a, b string) bool {
	ha := Host(a)
	return ha != "" && ha == Host(b)
}
