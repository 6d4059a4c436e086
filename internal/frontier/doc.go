// Package frontier holds the URLs waiting to be crawled.
//
// Entries are kept in a global queue ordered by descending priority and in
// per-host queues. Next hands out the highest priority entry whose host the
// politeness gate currently accepts. Failed entries are re-inserted after an
// exponential backoff on their own timer, so a waiting retry holds no
// concurrency slot. A URL stays reserved from the moment it is added until it
// is crawled or finally dropped, which makes re-adding it a no-op.
//
// The whole frontier, including the crawled set and crawl statistics, can be
// captured in a versioned Snapshot and restored later.
package frontier
