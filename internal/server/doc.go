// Package server exposes a running crawl session over HTTP.
//
// The router serves three endpoints:
//
//	GET /healthz   liveness check
//	GET /metrics   Prometheus exposition of the session registry
//	GET /status    JSON snapshot of the crawl engine
//
// The server is optional and only started when the CLI is given --listen.
package server
