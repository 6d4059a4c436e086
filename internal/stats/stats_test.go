package stats

import (
	"sync"
	"testing"
	"time"
)

type countingObserver struct {
	mu       sync.Mutex
	attempts int
	checks   int
	blocks   int
	dropped  int
	stored   int
	queued   int
}

func (o *countingObserver) ObserveAttempt(string, int, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
}

func (o *countingObserver) ObserveRobotsCheck(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checks++
}

func (o *countingObserver) ObserveRobotsBlock(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blocks++
}

func (o *countingObserver) ObserveRetryDropped(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func (o *countingObserver) ObservePageStored(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stored++
}

func (o *countingObserver) ObserveQueue(queued, _, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queued = queued
}

func TestStats_Counters(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	s := New(WithObserver(obs))

	s.RecordAttempt("a", 200, 10*time.Millisecond)
	s.RecordAttempt("a", 429, 0)
	s.RecordAttempt("a", 503, 0)
	s.RecordAttempt("b", 0, 0)
	s.RecordRobotsCheck("a")
	s.RecordRobotsBlock("a")
	s.RecordRetryDropped("b")
	s.RecordPageStored("a")
	s.UpdateQueue(7, 1, 2)

	snap := s.Snapshot()
	if snap.TotalRequests != 4 {
		t.Errorf("expected 4 requests, got %d", snap.TotalRequests)
	}
	if snap.SuccessfulRequests != 1 || snap.FailedRequests != 3 {
		t.Errorf("expected 1 success and 3 failures, got %d and %d", snap.SuccessfulRequests, snap.FailedRequests)
	}
	if snap.RateLimit429s != 1 || snap.ServerErrors != 1 {
		t.Errorf("expected one 429 and one 5xx, got %d and %d", snap.RateLimit429s, snap.ServerErrors)
	}
	if snap.RobotsTxtChecks != 1 || snap.RespectfulBlocks != 1 {
		t.Errorf("unexpected robots counters: %+v", snap)
	}
	if snap.RetriesDropped != 1 || snap.PagesStored != 1 {
		t.Errorf("unexpected drop/store counters: %+v", snap)
	}

	a := snap.Hosts["a"]
	if a.Requests != 3 || a.Successes != 1 || a.Errors != 2 || a.Blocked != 1 {
		t.Errorf("unexpected host counters: %+v", a)
	}

	if obs.attempts != 4 || obs.checks != 1 || obs.blocks != 1 || obs.dropped != 1 || obs.stored != 1 || obs.queued != 7 {
		t.Errorf("observer missed updates: %+v", obs)
	}
}

func TestStats_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	s := New()
	s.RecordAttempt("a", 200, 0)
	snap := s.Snapshot()
	s.RecordAttempt("a", 200, 0)

	if snap.Hosts["a"].Requests != 1 {
		t.Errorf("expected snapshot to be unaffected, got %d", snap.Hosts["a"].Requests)
	}
}

func TestStats_Restore(t *testing.T) {
	t.Parallel()

	s := New()
	s.Restore(Snapshot{TotalRequests: 10, PagesStored: 4, Hosts: map[string]HostCounters{"a": {Requests: 10}}})
	s.RecordAttempt("a", 200, 0)

	snap := s.Snapshot()
	if snap.TotalRequests != 11 || snap.PagesStored != 4 {
		t.Errorf("unexpected restored counters: %+v", snap)
	}
	if snap.Hosts["a"].Requests != 11 {
		t.Errorf("expected host counters to continue, got %d", snap.Hosts["a"].Requests)
	}
}

func TestSnapshot_RespectfulnessScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		snap Snapshot
		want int
	}{
		{name: "no requests", snap: Snapshot{}, want: 100},
		{name: "clean crawl", snap: Snapshot{TotalRequests: 10}, want: 100},
		{name: "half rate limited", snap: Snapshot{TotalRequests: 10, RateLimit429s: 5}, want: 75},
		{name: "all server errors", snap: Snapshot{TotalRequests: 10, ServerErrors: 10}, want: 70},
		{name: "blocks bonus is capped", snap: Snapshot{TotalRequests: 10, RateLimit429s: 10, RespectfulBlocks: 10}, want: 70},
		{name: "small blocks bonus", snap: Snapshot{TotalRequests: 100, RateLimit429s: 50, RespectfulBlocks: 5}, want: 80},
		{name: "clamped to zero", snap: Snapshot{TotalRequests: 1, RateLimit429s: 2, ServerErrors: 2}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.snap.RespectfulnessScore(); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestSnapshot_Rates(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{TotalRequests: 20, FailedRequests: 5, CrawlStartTime: start}

	if got := snap.RequestsPerSecond(start.Add(10 * time.Second)); got != 2 {
		t.Errorf("expected 2 requests per second, got %v", got)
	}
	if got := snap.RequestsPerSecond(start); got != 0 {
		t.Errorf("expected 0 at start, got %v", got)
	}
	if got := snap.ErrorRate(); got != 25 {
		t.Errorf("expected 25%% error rate, got %v", got)
	}
	if got := (Snapshot{}).ErrorRate(); got != 0 {
		t.Errorf("expected 0%% error rate without requests, got %v", got)
	}
}

func TestHealthOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		queued int
		want   QueueHealth
	}{
		{0, QueueEmpty},
		{1, QueueLow},
		{9, QueueLow},
		{10, QueueHealthy},
		{99, QueueHealthy},
		{100, QueueFull},
		{999, QueueFull},
		{1000, QueueOverloaded},
	}

	for _, tt := range tests {
		if got := HealthOf(tt.queued); got != tt.want {
			t.Errorf("expected %s for %d, got %s", tt.want, tt.queued, got)
		}
	}
}
