package model

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// PageRecord is a successfully fetched page together with its crawl metadata.
// It is what the crawler hands to a persistence sink.
type PageRecord struct {
	// URL is the normalized URL of the page.
	URL string `json:"url"`

	// Host is the host (with port, if any) the page was fetched from.
	Host string `json:"host"`

	// StatusCode is the final HTTP status code.
	StatusCode int `json:"status_code"`

	// Headers contains the response headers in canonical form.
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the raw Content-Type header value.
	ContentType string `json:"content_type"`

	// ContentSize is the number of body bytes received.
	ContentSize int `json:"content_size"`

	// Depth is the hop count from the nearest seed.
	Depth int `json:"depth"`

	// Source tells how the URL entered the frontier (seed, discovery, ...).
	Source string `json:"source,omitempty"`

	// Parent is the URL of the page the link was discovered on.
	Parent string `json:"parent,omitempty"`

	// Hash is the hex SHA3-256 of the body. Used for change detection.
	Hash string `json:"hash"`

	// ResponseTime is the duration of the successful attempt.
	ResponseTime time.Duration `json:"response_time"`

	// Attempts is the number of fetch attempts the page needed.
	Attempts int `json:"attempts"`

	// CrawledAt is when the page was fetched.
	CrawledAt time.Time `json:"crawled_at"`

	// Directives holds the page's indexing directives.
	Directives RobotsDirectives `json:"directives,omitzero"`

	// Content is the extracted structured data.
	Content *Content `json:"content,omitempty"`
}

// ComputeHash sets Hash to the SHA3-256 of body. An empty body clears it.
func (p *PageRecord) ComputeHash(body []byte) {
	if len(body) == 0 {
		p.Hash = ""
		return
	}
	sum := sha3.Sum256(body)
	p.Hash = hex.EncodeToString(sum[:])
}

// GetHeader returns the first value of the named header, or "".
func (p *PageRecord) GetHeader(name string) string {
	if values, ok := p.Headers[name]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// IsHTML reports whether the content type is HTML or XHTML.
func (p *PageRecord) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}
