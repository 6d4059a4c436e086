package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/nao1215/webspider/internal/crawler"
	"github.com/nao1215/webspider/internal/frontier"
	"github.com/nao1215/webspider/internal/stats"
)

// MaxHosts is the number of hosts listed in a report.
const MaxHosts = 10

// HostRow is the per-host line of a report.
type HostRow struct {
	Host      string `json:"host"`
	Requests  int    `json:"requests"`
	Successes int    `json:"successes"`
	Errors    int    `json:"errors"`
	Blocked   int    `json:"blocked"`
}

// Document is the rendered form of a session summary.
type Document struct {
	Version   string        `json:"version,omitempty"`
	SessionID string        `json:"session_id"`
	State     crawler.State `json:"state"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	PagesProcessed  int `json:"pages_processed"`
	Errors          int `json:"errors"`
	RobotsBlocks    int `json:"robots_blocks"`
	InFlightDropped int `json:"in_flight_dropped"`

	Stats               stats.Snapshot `json:"stats"`
	RequestsPerSecond   float64        `json:"requests_per_second"`
	ErrorRate           float64        `json:"error_rate"`
	RespectfulnessScore int            `json:"respectfulness_score"`

	Frontier frontier.Stats `json:"frontier"`
	TopHosts []HostRow      `json:"top_hosts,omitempty"`

	// Snapshot is only set when the writer is asked to include it.
	Snapshot *frontier.Snapshot `json:"snapshot,omitempty"`
}

// NewDocument builds a Document from a session summary.
func NewDocument(s *crawler.Summary, version string) *Document {
	snap := s.Stats.Clone()
	doc := &Document{
		Version:             version,
		SessionID:           s.SessionID,
		State:               s.State,
		StartedAt:           s.StartedAt,
		Duration:            s.Duration,
		PagesProcessed:      s.PagesProcessed,
		Errors:              s.Errors,
		RobotsBlocks:        s.RobotsBlocks,
		InFlightDropped:     s.InFlightDropped,
		RequestsPerSecond:   snap.RequestsPerSecond(snap.CrawlStartTime.Add(s.Duration)),
		ErrorRate:           snap.ErrorRate(),
		RespectfulnessScore: snap.RespectfulnessScore(),
		Frontier:            s.FrontierStats,
		TopHosts:            topHosts(snap.Hosts, MaxHosts),
	}
	snap.Hosts = nil
	doc.Stats = snap
	return doc
}

// topHosts returns the n hosts with the most requests, ties broken by name.
func topHosts(hosts map[string]stats.HostCounters, n int) []HostRow {
	rows := make([]HostRow, 0, len(hosts))
	for name, h := range hosts {
		rows = append(rows, HostRow{
			Host:      name,
			Requests:  h.Requests,
			Successes: h.Successes,
			Errors:    h.Errors,
			Blocked:   h.Blocked,
		})
	}
	slices.SortFunc(rows, func(a, b HostRow) int {
		if c := cmp.Compare(b.Requests, a.Requests); c != 0 {
			return c
		}
		return cmp.Compare(a.Host, b.Host)
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// Priorities returns the priorities present in the frontier, highest first.
func (d *Document) Priorities() []int {
	out := make([]int, 0, len(d.Frontier.PriorityDistribution))
	for p, n := range d.Frontier.PriorityDistribution {
		if n > 0 {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

// StatusText describes how the session ended.
func (d *Document) StatusText() string {
	switch d.State {
	case crawler.StateTimedOut:
		return "Timed out (partial results)"
	case crawler.StateDraining:
		return "Canceled"
	case crawler.StateExhausted:
		return "Complete"
	default:
		return string(d.State)
	}
}
