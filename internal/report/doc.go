// Package report renders the summary of a finished crawl session.
//
// This package contains writers for different output formats:
//   - SimpleWriter: human-readable text output for terminal display
//   - JSONWriter: structured JSON output for tool integration
//   - MarkdownWriter: Markdown with tables, alerts and a Mermaid chart
//
// All writers render a Document, which is derived from crawler.Summary and
// adds the computed rates and the busiest hosts. Writers implement the
// Writer interface, so they can be composed with MultiWriter.
package report
