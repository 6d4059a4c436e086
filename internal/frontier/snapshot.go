package frontier

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/nao1215/webspider/internal/stats"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = "1.0"

// Snapshot is the resumable state of a crawl: queued entries, the crawled
// set, URLs settled without a crawl and the crawl statistics.
type Snapshot struct {
	Version   string         `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Queue     []Entry        `json:"url_queue"`
	Crawled   []string       `json:"crawled_urls"`
	Dropped   []string       `json:"dropped_urls,omitempty"`
	Stats     stats.Snapshot `json:"stats"`
}

// Snapshot captures the frontier. Entries waiting for a retry are included
// in the queue. The crawled set is sorted for stable output.
func (f *Frontier) Snapshot(st stats.Snapshot) *Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	queue := make([]Entry, 0, len(f.queue)+len(f.pending))
	for _, e := range f.queue {
		queue = append(queue, e.clone())
	}
	pendingURLs := make([]string, 0, len(f.pending))
	for url := range f.pending {
		pendingURLs = append(pendingURLs, url)
	}
	slices.Sort(pendingURLs)
	for _, url := range pendingURLs {
		queue = append(queue, f.pending[url].entry.clone())
	}
	slices.SortStableFunc(queue, func(a, b Entry) int { return b.Priority - a.Priority })

	crawled := make([]string, 0, len(f.crawled))
	for url := range f.crawled {
		crawled = append(crawled, url)
	}
	slices.Sort(crawled)

	var dropped []string
	for url := range f.dropped {
		dropped = append(dropped, url)
	}
	slices.Sort(dropped)

	return &Snapshot{
		Version:   SnapshotVersion,
		Timestamp: f.now(),
		Queue:     queue,
		Crawled:   crawled,
		Dropped:   dropped,
		Stats:     st.Clone(),
	}
}

// Restore replaces the frontier content with snap. Pending retries are
// canceled. Entries are rebuilt into both queues; duplicates and entries
// already crawled or dropped are skipped. Dropped URLs stay reserved.
func (f *Frontier) Restore(snap *Snapshot) error {
	if snap == nil {
		return ErrNilSnapshot
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, snap.Version)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.pending {
		p.timer.Stop()
	}
	f.queue = nil
	f.hosts = make(map[string][]*Entry)
	f.reserved = make(map[string]struct{})
	f.pending = make(map[string]*pendingRetry)
	f.crawled = make(map[string]struct{}, len(snap.Crawled))
	f.dropped = make(map[string]struct{}, len(snap.Dropped))
	f.closed = false

	for _, url := range snap.Crawled {
		f.crawled[url] = struct{}{}
	}
	for _, url := range snap.Dropped {
		f.dropped[url] = struct{}{}
		f.reserved[url] = struct{}{}
	}
	for i := range snap.Queue {
		e := snap.Queue[i].clone()
		if e.Host == "" {
			continue
		}
		if _, done := f.crawled[e.URL]; done {
			continue
		}
		if _, dup := f.reserved[e.URL]; dup {
			continue
		}
		f.insert(&e)
	}
	f.sort()

	f.logger.Info("frontier restored",
		"queued", len(f.queue),
		"crawled", len(f.crawled),
		"dropped", len(f.dropped),
	)
	return nil
}

// Encode serializes snap as JSON.
func Encode(snap *Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frontier snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot produced by Encode.
func Decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode frontier snapshot: %w", err)
	}
	return &snap, nil
}
