package extract

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/language"

	"github.com/nao1215/webspider/internal/model"
	"github.com/nao1215/webspider/internal/urlnorm"
)

// Limits applied to extracted fields.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 500
	MaxFallbackLength    = 300
	MinParagraphLength   = 20
	MaxParagraphs        = 20
	MaxLinks             = 100
	MaxImages            = 50

	// DefaultTitle is used when no title source is present.
	DefaultTitle = "Untitled"
	// DefaultLanguage is used when the page declares no language.
	DefaultLanguage = "en"
	// DefaultCharset is used when neither headers nor markup declare one.
	DefaultCharset = "utf-8"
)

// dateLayouts are tried in order when parsing date metadata.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"January 2, 2006",
	"2 January 2006",
}

// Extractor parses HTML documents. It is stateless apart from its options
// and safe for concurrent use.
type Extractor struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock replaces time.Now for the crawledAt field.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses body as the HTML page at pageURL. contentType is the
// Content-Type response header and selects the source encoding.
// HTTPStatus is left for the caller to fill in.
func (e *Extractor) Extract(body []byte, pageURL, contentType string) *model.Content {
	content := &model.Content{
		URL:         pageURL,
		Title:       DefaultTitle,
		Language:    DefaultLanguage,
		Charset:     DefaultCharset,
		Canonical:   pageURL,
		ContentType: contentType,
		ContentSize: len(body),
		CrawledAt:   e.now(),
	}
	if content.ContentType == "" {
		content.ContentType = "text/html"
	}

	doc, err := e.parse(body, contentType)
	if err != nil {
		e.logger.Debug("failed to parse page", "url", pageURL, "error", err)
		content.Charset = headerCharset(contentType, DefaultCharset)
		return content
	}

	base := baseURL(doc, pageURL)

	content.Title = extractTitle(doc)
	content.Description = extractDescription(doc)
	content.Keywords = extractKeywords(doc)
	content.Author = extractAuthor(doc)
	content.PublishDate = extractPublishDate(doc)
	content.ModifiedDate = extractModifiedDate(doc)
	content.Language = extractLanguage(doc)
	content.Charset = extractCharset(doc, contentType)
	content.Canonical = extractCanonical(doc, base, pageURL)
	content.OpenGraph = prefixedMeta(doc, "property", "og:")
	content.TwitterCard = prefixedMeta(doc, "name", "twitter:")
	content.StructuredData = extractStructuredData(doc)
	content.Headings = extractHeadings(doc)
	content.Paragraphs = extractParagraphs(doc)
	content.Links = extractLinks(doc, base)
	content.Images = extractImages(doc, base)

	return content
}

// Links returns the crawlable links of the page at pageURL as normalized
// absolute URLs, de-duplicated, in document order.
func (e *Extractor) Links(body []byte, pageURL, contentType string) []string {
	doc, err := e.parse(body, contentType)
	if err != nil {
		e.logger.Debug("failed to parse page for links", "url", pageURL, "error", err)
		return nil
	}

	base := baseURL(doc, pageURL)
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if skipHref(href) {
			return
		}
		u, ok := urlnorm.Normalize(href, base)
		if !ok {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		links = append(links, u)
	})
	return links
}

// parse decodes body to UTF-8 and builds the document.
func (e *Extractor) parse(body []byte, contentType string) (*goquery.Document, error) {
	var r io.Reader = bytes.NewReader(body)
	if decoded, err := charset.NewReader(r, contentType); err == nil {
		r = decoded
	} else {
		r = bytes.NewReader(body)
	}
	return goquery.NewDocumentFromReader(r)
}

// baseURL honors a <base href> element. The result is resolved but not
// normalized, so a trailing slash on the base keeps its meaning.
func baseURL(doc *goquery.Document, pageURL string) string {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return pageURL
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return pageURL
	}
	return page.ResolveReference(ref).String()
}

func extractTitle(doc *goquery.Document) string {
	sources := []struct {
		selector string
		attr     string
	}{
		{"title", ""},
		{`meta[property="og:title"]`, "content"},
		{`meta[name="twitter:title"]`, "content"},
		{"h1", ""},
	}
	for _, src := range sources {
		s := doc.Find(src.selector).First()
		if s.Length() == 0 {
			continue
		}
		title := s.Text()
		if src.attr != "" {
			title = s.AttrOr(src.attr, "")
		}
		if title = collapseSpace(title); title != "" {
			return truncate(title, MaxTitleLength)
		}
	}
	return DefaultTitle
}

func extractDescription(doc *goquery.Document) string {
	if d := metaContent(doc,
		`meta[name="description"]`,
		`meta[property="og:description"]`,
		`meta[name="twitter:description"]`,
	); d != "" {
		return truncate(d, MaxDescriptionLength)
	}

	p := collapseSpace(doc.Find("p").First().Text())
	if utf8.RuneCountInString(p) > MaxFallbackLength {
		return truncate(p, MaxFallbackLength) + "..."
	}
	return p
}

func extractKeywords(doc *goquery.Document) []string {
	raw := metaContent(doc, `meta[name="keywords"]`)
	if raw == "" {
		return nil
	}
	var keywords []string
	for k := range strings.SplitSeq(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

func extractAuthor(doc *goquery.Document) string {
	if a := metaContent(doc,
		`meta[name="author"]`,
		`meta[property="article:author"]`,
		`meta[name="twitter:creator"]`,
	); a != "" {
		return a
	}
	s := doc.Find(`[rel="author"]`).First()
	if a := strings.TrimSpace(s.AttrOr("content", "")); a != "" {
		return a
	}
	return collapseSpace(s.Text())
}

func extractPublishDate(doc *goquery.Document) *time.Time {
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[name="publish-date"]`,
	} {
		if t := parseDate(doc.Find(sel).First().AttrOr("content", "")); t != nil {
			return t
		}
	}
	return parseDate(doc.Find("time[datetime]").First().AttrOr("datetime", ""))
}

func extractModifiedDate(doc *goquery.Document) *time.Time {
	for _, sel := range []string{
		`meta[property="article:modified_time"]`,
		`meta[name="last-modified"]`,
		`meta[http-equiv="last-modified"]`,
	} {
		if t := parseDate(doc.Find(sel).First().AttrOr("content", "")); t != nil {
			return t
		}
	}
	return nil
}

// parseDate returns nil when value matches none of the known layouts.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func extractLanguage(doc *goquery.Document) string {
	lang := strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))
	if lang == "" {
		lang = metaContent(doc, `meta[http-equiv="content-language"]`)
	}
	if lang == "" {
		return DefaultLanguage
	}
	// content-language may list several tags; the first one wins.
	lang, _, _ = strings.Cut(lang, ",")
	if tag, err := language.Parse(strings.TrimSpace(lang)); err == nil {
		return tag.String()
	}
	return lang
}

func extractCharset(doc *goquery.Document, contentType string) string {
	if cs := headerCharset(contentType, ""); cs != "" {
		return cs
	}
	if cs := strings.TrimSpace(doc.Find("meta[charset]").First().AttrOr("charset", "")); cs != "" {
		return strings.ToLower(cs)
	}
	httpEquiv := metaContent(doc, `meta[http-equiv="content-type"]`, `meta[http-equiv="Content-Type"]`)
	return headerCharset(httpEquiv, DefaultCharset)
}

// headerCharset returns the lowercased charset parameter of a Content-Type
// value, or fallback.
func headerCharset(contentType, fallback string) string {
	if contentType == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fallback
	}
	if cs := strings.TrimSpace(params["charset"]); cs != "" {
		return strings.ToLower(cs)
	}
	return fallback
}

func extractCanonical(doc *goquery.Document, base, pageURL string) string {
	href := strings.TrimSpace(doc.Find(`link[rel="canonical"]`).First().AttrOr("href", ""))
	if href == "" {
		return pageURL
	}
	if u, ok := urlnorm.Normalize(href, base); ok {
		return u
	}
	return href
}

// prefixedMeta collects meta tags whose attr starts with prefix, keyed by
// the remainder of the name.
func prefixedMeta(doc *goquery.Document, attr, prefix string) map[string]string {
	out := make(map[string]string)
	doc.Find("meta[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
		name := strings.ToLower(s.AttrOr(attr, ""))
		key, ok := strings.CutPrefix(name, prefix)
		if !ok || key == "" {
			return
		}
		if value := strings.TrimSpace(s.AttrOr("content", "")); value != "" {
			out[key] = value
		}
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func extractStructuredData(doc *goquery.Document) []model.StructuredData {
	var blocks []model.StructuredData
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return
		}
		blocks = append(blocks, model.StructuredData{Type: "json-ld", Data: data})
	})
	return blocks
}

func extractHeadings(doc *goquery.Document) []model.Heading {
	var headings []model.Heading
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		level, err := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(s), "h"))
		if err != nil {
			return
		}
		headings = append(headings, model.Heading{
			Level: level,
			Text:  text,
			ID:    s.AttrOr("id", ""),
		})
	})
	return headings
}

func extractParagraphs(doc *goquery.Document) []string {
	var paragraphs []string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapseSpace(s.Text())
		if utf8.RuneCountInString(text) > MinParagraphLength {
			paragraphs = append(paragraphs, text)
		}
		return len(paragraphs) < MaxParagraphs
	})
	return paragraphs
}

func extractLinks(doc *goquery.Document, base string) []model.Link {
	var links []model.Link
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if skipHref(href) {
			return true
		}
		u, ok := urlnorm.Normalize(href, base)
		if !ok {
			return true
		}
		links = append(links, model.Link{
			URL:   u,
			Text:  collapseSpace(s.Text()),
			Title: s.AttrOr("title", ""),
			Rel:   s.AttrOr("rel", ""),
		})
		return len(links) < MaxLinks
	})
	return links
}

func extractImages(doc *goquery.Document, base string) []model.Image {
	var images []model.Image
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		u, ok := urlnorm.Normalize(src, base)
		if !ok {
			return true
		}
		images = append(images, model.Image{
			URL:    u,
			Alt:    s.AttrOr("alt", ""),
			Title:  s.AttrOr("title", ""),
			Width:  s.AttrOr("width", ""),
			Height: s.AttrOr("height", ""),
		})
		return len(images) < MaxImages
	})
	return images
}

// metaContent returns the first non-empty content attribute among selectors.
func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

// skipHref reports references that never lead to a crawlable page.
func skipHref(href string) bool {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	return href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:")
}

// collapseSpace trims s and folds internal whitespace runs to one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
