// Package urlnorm canonicalizes URLs so that equivalent spellings of the same
// resource compare equal.
//
// The normalizer is a pure function. It resolves relative references, rejects
// anything that is not http(s), lowercases the host, cleans up the path,
// sorts query parameters and drops the fragment. It holds no state and is safe
// for concurrent use.
//
// # Usage
//
//	canonical, ok := urlnorm.Normalize("../about/?b=2&a=1#top", "https://Example.com/docs/intro")
//	// canonical == "https://example.com/about?a=1&b=2"
package urlnorm
