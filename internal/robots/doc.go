// Package robots implements robots.txt compliance for the crawler.
//
// Rules are fetched once per host from https://{host}/robots.txt, parsed for
// the blocks that apply to the crawler's User-Agent and cached. Concurrent
// first references to the same host share a single fetch.
//
// # Matching
//
// The path checked is the URL path plus its query string. A pattern of "/"
// matches everything, a trailing "*" is a prefix match, a "*" anywhere else
// expands to ".*" in a regular expression anchored at the start, and any
// other pattern is a literal prefix. A path is blocked when a disallow
// pattern matches, unless an allow pattern that also matches is strictly
// longer than the longest matching disallow pattern.
//
// # Failure handling
//
// An unreachable robots.txt (network error or non-200 status) is treated as
// "allow everything". The attempt is still counted.
package robots
