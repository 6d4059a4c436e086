// Package politeness tracks per-host crawl state and decides when a host may
// receive another request.
//
// Each host carries an effective crawl delay that starts at a default, is
// raised by robots.txt Crawl-delay, grows on 429 and 5xx responses and
// shrinks on fast 200 responses. Dispatch is allowed only while the host and
// the whole process are below their concurrency ceilings and the delay since
// the last request to the host has elapsed.
//
// Host state is created on first reference and evicted after an idle period
// with no active requests.
package politeness
