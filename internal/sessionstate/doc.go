// Package sessionstate persists the resumable state of crawl sessions.
//
// A session's state is the encoded frontier snapshot produced when the
// crawl engine stops. It is stored under the session ID and the most
// recently saved session is remembered so that "--resume latest" works.
//
// Three backends are provided:
//   - FileStore: one file per session in the XDG data directory
//   - RedisStore: keys in Redis with an optional TTL
//   - DBStore: the sessions table of the SQLite crawl database
package sessionstate
