package model

import "strings"

// RobotsDirectives are the page-level directives a site can attach through
// the X-Robots-Tag header or <meta name="robots">.
type RobotsDirectives struct {
	NoIndex      bool `json:"noindex,omitempty"`
	NoFollow     bool `json:"nofollow,omitempty"`
	NoArchive    bool `json:"noarchive,omitempty"`
	NoSnippet    bool `json:"nosnippet,omitempty"`
	NoTranslate  bool `json:"notranslate,omitempty"`
	NoImageIndex bool `json:"noimageindex,omitempty"`
}

// ParseDirectives reads a comma separated directive list such as
// "noindex, nofollow". Unknown tokens are ignored. "none" implies noindex
// and nofollow. A "botname:" prefix, as allowed in X-Robots-Tag, is dropped.
func ParseDirectives(value string) RobotsDirectives {
	var d RobotsDirectives
	d.Merge(value)
	return d
}

// Merge adds the directives listed in value to d.
func (d *RobotsDirectives) Merge(value string) {
	for _, token := range strings.Split(value, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if _, rest, found := strings.Cut(token, ":"); found {
			token = strings.TrimSpace(rest)
		}
		switch token {
		case "noindex":
			d.NoIndex = true
		case "nofollow":
			d.NoFollow = true
		case "noarchive":
			d.NoArchive = true
		case "nosnippet":
			d.NoSnippet = true
		case "notranslate":
			d.NoTranslate = true
		case "noimageindex":
			d.NoImageIndex = true
		case "none":
			d.NoIndex = true
			d.NoFollow = true
		}
	}
}

// List returns the set directives in a stable order.
func (d RobotsDirectives) List() []string {
	var out []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{d.NoIndex, "noindex"},
		{d.NoFollow, "nofollow"},
		{d.NoArchive, "noarchive"},
		{d.NoSnippet, "nosnippet"},
		{d.NoTranslate, "notranslate"},
		{d.NoImageIndex, "noimageindex"},
	} {
		if f.set {
			out = append(out, f.name)
		}
	}
	return out
}
