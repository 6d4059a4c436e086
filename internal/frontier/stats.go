package frontier

// HostStats summarizes one host queue.
type HostStats struct {
	Queued      int     `json:"queued"`
	AvgPriority float64 `json:"avg_priority"`
}

// Stats summarizes the frontier.
type Stats struct {
	TotalQueued          int                  `json:"total_queued"`
	TotalCrawled         int                  `json:"total_crawled"`
	PendingRetries       int                  `json:"pending_retries"`
	ActiveHosts          int                  `json:"active_hosts"`
	HostStats            map[string]HostStats `json:"host_stats"`
	PriorityDistribution map[int]int          `json:"priority_distribution"`
}

// Stats returns queue sizes per host and the priority distribution of the
// global queue.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Stats{
		TotalQueued:          len(f.queue),
		TotalCrawled:         len(f.crawled),
		PendingRetries:       len(f.pending),
		ActiveHosts:          len(f.hosts),
		HostStats:            make(map[string]HostStats, len(f.hosts)),
		PriorityDistribution: make(map[int]int),
	}
	for host, q := range f.hosts {
		hs := HostStats{Queued: len(q)}
		if len(q) > 0 {
			sum := 0
			for _, e := range q {
				sum += e.Priority
			}
			hs.AvgPriority = float64(sum) / float64(len(q))
		}
		s.HostStats[host] = hs
	}
	for _, e := range f.queue {
		s.PriorityDistribution[e.Priority]++
	}
	return s
}
