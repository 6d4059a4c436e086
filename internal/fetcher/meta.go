package fetcher

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// metaRobots returns the comma-joined content of every
// <meta name="robots"> in the document head. Scanning stops at <body>.
func metaRobots(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	var found []string

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(found, ",")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch atom.Lookup(name) {
			case atom.Body:
				return strings.Join(found, ",")
			case atom.Meta:
				if !hasAttr {
					continue
				}
				var metaName, content string
				for {
					key, val, more := z.TagAttr()
					switch string(key) {
					case "name":
						metaName = strings.ToLower(strings.TrimSpace(string(val)))
					case "content":
						content = string(val)
					}
					if !more {
						break
					}
				}
				if metaName == "robots" && content != "" {
					found = append(found, content)
				}
			}
		}
	}
}
