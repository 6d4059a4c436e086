// Package main provides the entry point for the webspider CLI.
//
// webspider is a polite web crawler. It honors robots.txt, adapts its
// per-host request rate to how servers respond, and can resume an
// interrupted session from its saved frontier.
//
// Usage:
//
//	webspider crawl https://example.com/
//	webspider crawl --resume latest
//
// See --help for all available options.
package main

func main() {
	Execute()
}
