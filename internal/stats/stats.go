package stats

import (
	"maps"
	"math"
	"net/http"
	"sync"
	"time"
)

// Observer receives every counter update as it happens.
type Observer interface {
	ObserveAttempt(host string, status int, responseTime time.Duration)
	ObserveRobotsCheck(host string)
	ObserveRobotsBlock(host string)
	ObserveRetryDropped(host string)
	ObservePageStored(host string)
	ObserveQueue(queued, active, hosts int)
}

// HostCounters are the per-host counters.
type HostCounters struct {
	Requests  int `json:"requests"`
	Successes int `json:"successes"`
	Errors    int `json:"errors"`
	Blocked   int `json:"blocked"`
}

// Snapshot is a consistent copy of all counters.
type Snapshot struct {
	TotalRequests      int                     `json:"total_requests"`
	SuccessfulRequests int                     `json:"successful_requests"`
	FailedRequests     int                     `json:"failed_requests"`
	RobotsTxtChecks    int                     `json:"robots_txt_checks"`
	RespectfulBlocks   int                     `json:"respectful_blocks"`
	RateLimit429s      int                     `json:"rate_limit_429s"`
	ServerErrors       int                     `json:"server_errors"`
	RetriesDropped     int                     `json:"retries_dropped"`
	PagesStored        int                     `json:"pages_stored"`
	CrawlStartTime     time.Time               `json:"crawl_start_time"`
	Hosts              map[string]HostCounters `json:"hosts,omitempty"`
}

// Stats holds the crawl counters. The zero value is not usable; call New.
type Stats struct {
	observer Observer
	now      func() time.Time

	mu    sync.Mutex
	snap  Snapshot
	hosts map[string]*HostCounters
}

// Option configures Stats.
type Option func(*Stats)

// WithObserver forwards every update to o.
func WithObserver(o Observer) Option {
	return func(s *Stats) {
		s.observer = o
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Stats) {
		s.now = now
	}
}

// New creates Stats with the start time set to now.
func New(opts ...Option) *Stats {
	s := &Stats{
		now:   time.Now,
		hosts: make(map[string]*HostCounters),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.CrawlStartTime = s.now()
	return s
}

// host returns the counters of name. s.mu must be held.
func (s *Stats) host(name string) *HostCounters {
	h, ok := s.hosts[name]
	if !ok {
		h = &HostCounters{}
		s.hosts[name] = h
	}
	return h
}

// RecordAttempt counts one HTTP attempt. A status of 0 means the attempt
// failed before a response arrived.
func (s *Stats) RecordAttempt(host string, status int, responseTime time.Duration) {
	s.mu.Lock()
	h := s.host(host)
	s.snap.TotalRequests++
	h.Requests++
	switch {
	case status == http.StatusOK:
		s.snap.SuccessfulRequests++
		h.Successes++
	default:
		s.snap.FailedRequests++
		h.Errors++
	}
	if status == http.StatusTooManyRequests {
		s.snap.RateLimit429s++
	}
	if status >= http.StatusInternalServerError {
		s.snap.ServerErrors++
	}
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveAttempt(host, status, responseTime)
	}
}

// RecordRobotsCheck counts a robots.txt fetch attempt.
func (s *Stats) RecordRobotsCheck(host string) {
	s.mu.Lock()
	s.snap.RobotsTxtChecks++
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveRobotsCheck(host)
	}
}

// RecordRobotsBlock counts a URL refused by robots.txt.
func (s *Stats) RecordRobotsBlock(host string) {
	s.mu.Lock()
	s.snap.RespectfulBlocks++
	s.host(host).Blocked++
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveRobotsBlock(host)
	}
}

// RecordRetryDropped counts an entry dropped after its last retry.
func (s *Stats) RecordRetryDropped(host string) {
	s.mu.Lock()
	s.snap.RetriesDropped++
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveRetryDropped(host)
	}
}

// RecordPageStored counts a page handed to the sink.
func (s *Stats) RecordPageStored(host string) {
	s.mu.Lock()
	s.snap.PagesStored++
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObservePageStored(host)
	}
}

// UpdateQueue publishes the current queue gauges to the observer.
func (s *Stats) UpdateQueue(queued, active, hosts int) {
	if s.observer != nil {
		s.observer.ObserveQueue(queued, active, hosts)
	}
}

// Forget drops the per-host counters of host.
func (s *Stats) Forget(host string) {
	s.mu.Lock()
	delete(s.hosts, host)
	s.mu.Unlock()
}

// Snapshot returns a copy of all counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.snap
	out.Hosts = make(map[string]HostCounters, len(s.hosts))
	for name, h := range s.hosts {
		out.Hosts[name] = *h
	}
	return out
}

// Restore replaces the process-wide counters with those of a previous
// session. Per-host counters and the start time are kept.
func (s *Stats) Restore(prev Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.snap.CrawlStartTime
	s.snap = prev
	s.snap.CrawlStartTime = start
	s.snap.Hosts = nil
	for name, h := range prev.Hosts {
		c := h
		s.hosts[name] = &c
	}
}

// Clone returns a deep copy of the snapshot.
func (snap Snapshot) Clone() Snapshot {
	snap.Hosts = maps.Clone(snap.Hosts)
	return snap
}

// RequestsPerSecond is the attempt rate since the crawl started.
func (snap Snapshot) RequestsPerSecond(now time.Time) float64 {
	elapsed := now.Sub(snap.CrawlStartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(snap.TotalRequests) / elapsed
}

// ErrorRate is the percentage of failed attempts.
func (snap Snapshot) ErrorRate() float64 {
	if snap.TotalRequests == 0 {
		return 0
	}
	return float64(snap.FailedRequests) / float64(snap.TotalRequests) * 100
}

// RespectfulnessScore rates how gently the crawl treated the hosts it
// visited on a 0..100 scale. Rate limiting and server errors lower it,
// honoring robots.txt raises it. It is 100 before the first request.
func (snap Snapshot) RespectfulnessScore() int {
	if snap.TotalRequests == 0 {
		return 100
	}
	total := float64(snap.TotalRequests)
	score := 100.0
	score -= float64(snap.RateLimit429s) / total * 50
	score -= float64(snap.ServerErrors) / total * 30
	score += math.Min(20, float64(snap.RespectfulBlocks)/total*100)
	return int(math.Round(math.Max(0, math.Min(100, score))))
}
