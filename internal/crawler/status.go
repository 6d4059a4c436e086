package crawler

import (
	"time"

	"github.com/nao1215/webspider/internal/frontier"
	"github.com/nao1215/webspider/internal/politeness"
	"github.com/nao1215/webspider/internal/stats"
)

// Summary reports how a session ended.
type Summary struct {
	SessionID string        `json:"session_id"`
	State     State         `json:"state"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// PagesProcessed counts successfully fetched pages.
	PagesProcessed int `json:"pages_processed"`
	// Errors counts failed attempts, terminal or not.
	Errors int `json:"errors"`
	// RobotsBlocks counts URLs refused by robots.txt.
	RobotsBlocks int `json:"robots_blocks"`
	// InFlightDropped counts requests canceled at the end of the drain.
	InFlightDropped int `json:"in_flight_dropped"`

	Stats         stats.Snapshot     `json:"stats"`
	FrontierStats frontier.Stats     `json:"frontier_stats"`
	Frontier      *frontier.Snapshot `json:"frontier"`
}

// Status is a live view of a session.
type Status struct {
	SessionID      string        `json:"session_id"`
	State          State         `json:"state"`
	StartedAt      time.Time     `json:"started_at,omitzero"`
	Uptime         time.Duration `json:"uptime"`
	PagesProcessed int           `json:"pages_processed"`
	Errors         int           `json:"errors"`
	RobotsBlocks   int           `json:"robots_blocks"`

	Stats       stats.Snapshot         `json:"stats"`
	Frontier    frontier.Stats         `json:"frontier"`
	ActiveHosts []politeness.HostState `json:"active_hosts"`

	RequestsPerSecond   float64           `json:"requests_per_second"`
	ErrorRate           float64           `json:"error_rate"`
	RespectfulnessScore int               `json:"respectfulness_score"`
	ActiveRequests      int               `json:"active_requests"`
	QueueHealth         stats.QueueHealth `json:"queue_health"`
}

// Status returns the current state of the session. It is safe to call at
// any time, including from another goroutine while Run is in progress.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		SessionID:      e.sessionID,
		State:          e.state,
		StartedAt:      e.startedAt,
		PagesProcessed: e.processed,
		Errors:         e.errors,
		RobotsBlocks:   e.robotsBlocks,
	}
	e.mu.Unlock()

	now := time.Now()
	if !st.StartedAt.IsZero() {
		st.Uptime = now.Sub(st.StartedAt)
	}
	st.Stats = e.stats.Snapshot()
	st.Frontier = e.frontier.Stats()
	st.ActiveHosts = e.tracker.Snapshot()
	st.RequestsPerSecond = st.Stats.RequestsPerSecond(now)
	st.ErrorRate = st.Stats.ErrorRate()
	st.RespectfulnessScore = st.Stats.RespectfulnessScore()
	st.ActiveRequests = e.tracker.ActiveRequests()
	st.QueueHealth = stats.HealthOf(st.Frontier.TotalQueued)
	return st
}

func (e *Engine) summarize(reason State, dropped int) *Summary {
	e.mu.Lock()
	s := &Summary{
		SessionID:       e.sessionID,
		State:           reason,
		StartedAt:       e.startedAt,
		Duration:        time.Since(e.startedAt),
		PagesProcessed:  e.processed,
		Errors:          e.errors,
		RobotsBlocks:    e.robotsBlocks,
		InFlightDropped: dropped,
	}
	e.mu.Unlock()

	snap := e.stats.Snapshot()
	s.Stats = snap
	s.FrontierStats = e.frontier.Stats()
	s.Frontier = e.frontier.Snapshot(snap)
	return s
}
