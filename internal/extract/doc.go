// Package extract turns fetched HTML into structured page content.
//
// Every field is filled through a fallback chain (for example the title comes
// from <title>, then og:title, then twitter:title, then the first <h1>), so
// malformed or sparse documents still produce a best-effort result.
// Extraction never fails: the worst case is a Content with only defaults.
package extract
