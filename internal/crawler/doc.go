// Package crawler drives a polite crawl session.
//
// # Architecture
//
// The Engine owns one session. A single dispatcher goroutine takes the
// highest priority eligible URL from the frontier, reserves a politeness slot
// for its host and hands it to a bounded worker pool. Workers check
// robots.txt, fetch, extract, store and feed discovered links back into the
// frontier:
//
//	frontier -> politeness -> robots -> fetcher -> extract -> sink
//	    ^                                              |
//	    +------------------ discovered links ---------+
//
// # Lifecycle
//
// An Engine moves through Idle, Running, one terminal reason (Draining when
// the caller cancels, TimedOut when the session timeout elapses, Exhausted
// when the page budget is spent or nothing is left to crawl) and finally
// Stopped. Leaving Running starts a graceful drain: in-flight requests get
// the shutdown window to finish and are canceled afterwards. Canceled entries
// go back to the frontier so the final snapshot can resume them.
//
// # Collaborators
//
//   - Sink receives every indexable page (DiscardSink drops them)
//   - Scorer nudges the priority of discovered links (NeutralScorer is a no-op)
//   - SiteRules supplies per-host depth limits and follow/ignore patterns
//
// # Usage
//
//	engine := crawler.New(crawler.DefaultConfig(), crawler.WithSink(db))
//	summary, err := engine.Run(ctx, []string{"https://example.com/"})
package crawler
