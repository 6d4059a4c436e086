package sitemap

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// EntryType distinguishes page entries from nested sitemap references.
type EntryType string

const (
	// TypePage is a <url> entry that names a crawlable page.
	TypePage EntryType = "page"
	// TypeIndex is a <sitemap> entry that names another sitemap.
	TypeIndex EntryType = "index"
)

// DefaultPriority is used when an entry has no usable <priority>.
const DefaultPriority = 0.5

// Entry is one <loc> found in a sitemap.
type Entry struct {
	Type       EntryType `json:"type"`
	URL        string    `json:"url"`
	LastMod    time.Time `json:"lastmod,omitzero"`
	Priority   float64   `json:"priority,omitempty"`
	ChangeFreq string    `json:"changefreq,omitempty"`
}

// changeFreqMultiplier scales the declared priority by how often a page is
// said to change.
var changeFreqMultiplier = map[string]float64{
	"always":  2.0,
	"hourly":  1.8,
	"daily":   1.5,
	"weekly":  1.2,
	"monthly": 1.0,
	"yearly":  0.8,
	"never":   0.5,
}

// CalculatePriority maps a page entry onto the frontier's 1..10 scale.
func CalculatePriority(e Entry, now time.Time) int {
	p := e.Priority
	if p == 0 {
		p = DefaultPriority
	}
	if m, ok := changeFreqMultiplier[strings.ToLower(e.ChangeFreq)]; ok {
		p *= m
	}
	if !e.LastMod.IsZero() {
		age := now.Sub(e.LastMod)
		switch {
		case age < 7*24*time.Hour:
			p *= 1.5
		case age < 30*24*time.Hour:
			p *= 1.2
		}
	}
	return max(1, min(10, int(math.Round(p*10))))
}

type document struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
	URLs []struct {
		Loc        string `xml:"loc"`
		LastMod    string `xml:"lastmod"`
		Priority   string `xml:"priority"`
		ChangeFreq string `xml:"changefreq"`
	} `xml:"url"`
}

// Parse decodes a sitemap or sitemap index of at most DefaultMaxSize bytes.
// Gzip payloads are detected by their magic bytes. Entries without a <loc>
// are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	return ParseLimit(r, DefaultMaxSize)
}

// ParseLimit is Parse with a custom size limit. The limit applies to the
// document after decompression; a larger sitemap fails with ErrTooLarge.
func ParseLimit(r io.Reader, maxSize int64) ([]Entry, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip sitemap: %w", err)
		}
		defer gz.Close()
		return decode(newSizeCap(gz, maxSize))
	}
	return decode(newSizeCap(br, maxSize))
}

// sizeCap fails reads once more than max bytes came from the source.
type sizeCap struct {
	r    io.Reader
	read int64
	max  int64
}

func newSizeCap(r io.Reader, maxSize int64) *sizeCap {
	return &sizeCap{r: io.LimitReader(r, maxSize+1), max: maxSize}
}

func (c *sizeCap) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.read > c.max {
		return 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.max)
	}
	return n, err
}

func decode(r io.Reader) ([]Entry, error) {
	var doc document
	dec := xml.NewDecoder(r)
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Sitemaps)+len(doc.URLs))
	for _, s := range doc.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			entries = append(entries, Entry{Type: TypeIndex, URL: loc})
		}
	}
	for _, u := range doc.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		e := Entry{
			Type:       TypePage,
			URL:        loc,
			Priority:   DefaultPriority,
			ChangeFreq: strings.ToLower(strings.TrimSpace(u.ChangeFreq)),
			LastMod:    parseLastMod(u.LastMod),
		}
		if p, err := strconv.ParseFloat(strings.TrimSpace(u.Priority), 64); err == nil && p > 0 {
			e.Priority = p
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// lastModLayouts are the W3C datetime forms used by sitemaps.
var lastModLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

func parseLastMod(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range lastModLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
