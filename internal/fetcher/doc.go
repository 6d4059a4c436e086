// Package fetcher issues the crawler's HTTP requests.
//
// A fetch retries transient failures (transport errors, 429 and 5xx) with
// exponential backoff, honoring Retry-After on 429. Other 4xx responses are
// terminal. Before the body of a 200 response is read, its Content-Type and
// Content-Length are checked against the configured allow-list and size
// ceiling so that binary or oversized payloads are never buffered.
//
// The body is decoded from gzip, deflate or brotli and scanned for
// <meta name="robots"> directives, which are merged with X-Robots-Tag.
package fetcher
