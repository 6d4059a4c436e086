package model

import "time"

// Content is the structured data extracted from one HTML page.
// Every field has a documented fallback so a partial document still yields
// a usable result.
type Content struct {
	URL          string            `json:"url"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Keywords     []string          `json:"keywords,omitempty"`
	Author       string            `json:"author,omitempty"`
	PublishDate  *time.Time        `json:"publish_date,omitempty"`
	ModifiedDate *time.Time        `json:"modified_date,omitempty"`
	Language     string            `json:"language"`
	Charset      string            `json:"charset"`
	Canonical    string            `json:"canonical"`
	OpenGraph    map[string]string `json:"open_graph,omitempty"`
	TwitterCard  map[string]string `json:"twitter_card,omitempty"`

	StructuredData []StructuredData `json:"structured_data,omitempty"`
	Headings       []Heading        `json:"headings,omitempty"`
	Paragraphs     []string         `json:"paragraphs,omitempty"`
	Links          []Link           `json:"links,omitempty"`
	Images         []Image          `json:"images,omitempty"`

	ContentType string    `json:"content_type"`
	ContentSize int       `json:"content_size"`
	HTTPStatus  int       `json:"http_status"`
	CrawledAt   time.Time `json:"crawled_at"`
}

// StructuredData is one machine-readable block embedded in the page.
type StructuredData struct {
	// Type is the encoding, currently always "json-ld".
	Type string `json:"type"`

	// Data is the decoded JSON value.
	Data any `json:"data"`
}

// Heading is an <h1>..<h6> element.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id,omitempty"`
}

// Link is an outbound <a href> resolved to an absolute URL.
type Link struct {
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
	Rel   string `json:"rel,omitempty"`
}

// Image is an <img> resolved to an absolute URL.
type Image struct {
	URL    string `json:"url"`
	Alt    string `json:"alt,omitempty"`
	Title  string `json:"title,omitempty"`
	Width  string `json:"width,omitempty"`
	Height string `json:"height,omitempty"`
}
