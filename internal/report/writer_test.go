package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/webspider/internal/crawler"
	"github.com/nao1215/webspider/internal/frontier"
	"github.com/nao1215/webspider/internal/stats"
)

// createTestSummary creates a summary with sample data for testing.
func createTestSummary() *crawler.Summary {
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	snap := stats.Snapshot{
		TotalRequests:      10,
		SuccessfulRequests: 7,
		FailedRequests:     3,
		RobotsTxtChecks:    2,
		RespectfulBlocks:   1,
		RateLimit429s:      1,
		ServerErrors:       2,
		RetriesDropped:     1,
		PagesStored:        6,
		CrawlStartTime:     start,
		Hosts: map[string]stats.HostCounters{
			"example.com":   {Requests: 8, Successes: 6, Errors: 2, Blocked: 1},
			"other.example": {Requests: 2, Successes: 1, Errors: 1},
		},
	}
	return &crawler.Summary{
		SessionID:      "session-123",
		State:          crawler.StateTimedOut,
		StartedAt:      start,
		Duration:       5 * time.Second,
		PagesProcessed: 7,
		Errors:         3,
		RobotsBlocks:   1,
		Stats:          snap,
		FrontierStats: frontier.Stats{
			TotalQueued:          4,
			TotalCrawled:         7,
			ActiveHosts:          1,
			PriorityDistribution: map[int]int{10: 1, 6: 3},
		},
		Frontier: &frontier.Snapshot{
			Version: frontier.SnapshotVersion,
			Crawled: []string{"https://example.com/"},
		},
	}
}

// TestNewDocument tests the derived values of a report.
func TestNewDocument(t *testing.T) {
	t.Parallel()

	doc := NewDocument(createTestSummary(), "v1.2.3")

	if doc.RequestsPerSecond != 2 {
		t.Errorf("expected 2 requests/second, got %v", doc.RequestsPerSecond)
	}
	if doc.ErrorRate != 30 {
		t.Errorf("expected 30%% error rate, got %v", doc.ErrorRate)
	}
	if len(doc.TopHosts) != 2 || doc.TopHosts[0].Host != "example.com" {
		t.Errorf("expected example.com first, got %+v", doc.TopHosts)
	}
	if doc.Stats.Hosts != nil {
		t.Error("expected per-host counters to move into TopHosts")
	}
	if got := doc.Priorities(); len(got) != 2 || got[0] != 10 || got[1] != 6 {
		t.Errorf("expected priorities [10 6], got %v", got)
	}
	if doc.StatusText() != "Timed out (partial results)" {
		t.Errorf("unexpected status text %q", doc.StatusText())
	}
}

func TestTopHosts(t *testing.T) {
	t.Parallel()

	hosts := map[string]stats.HostCounters{
		"b.example": {Requests: 5},
		"a.example": {Requests: 5},
		"c.example": {Requests: 9},
		"d.example": {Requests: 1},
	}
	rows := topHosts(hosts, 3)
	want := []string{"c.example", "a.example", "b.example"}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, h := range want {
		if rows[i].Host != h {
			t.Errorf("row %d: expected %q, got %q", i, h, rows[i].Host)
		}
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestSummary())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("expected %d bytes reported, got %d", buf.Len(), n)
		}

		output := buf.String()
		for _, want := range []string{
			"WEBSPIDER CRAWL REPORT",
			"session-123",
			"Timed out",
			"Pages processed:   7",
			"Error rate:        30.0%",
			"FRONTIER",
			"[+] example.com: 8 requests",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "By priority") {
			t.Error("expected priority breakdown only in verbose mode")
		}
	})

	t.Run("verbose adds priority breakdown", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[10] 1") {
			t.Errorf("expected priority breakdown, got:\n%s", buf.String())
		}
	})

	t.Run("hides empty host section", func(t *testing.T) {
		t.Parallel()

		s := createTestSummary()
		s.Stats.Hosts = nil

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "HOSTS") {
			t.Error("expected no host section")
		}

		buf.Reset()
		if _, err := NewSimpleWriter(&buf, WithShowEmpty(true)).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No hosts contacted") {
			t.Error("expected empty host section with WithShowEmpty")
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithJSONVersion("v1.2.3")).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var doc Document
		if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if doc.SessionID != "session-123" || doc.Version != "v1.2.3" {
			t.Errorf("unexpected document %+v", doc)
		}
		if doc.Snapshot != nil {
			t.Error("expected no snapshot without WithSnapshot")
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("expected compact single-line output")
		}
	})

	t.Run("pretty output with snapshot", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithPrettyPrint(), WithSnapshot())
		if _, err := w.Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"session_id\"") {
			t.Error("expected indented output")
		}

		var doc Document
		if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if doc.Snapshot == nil || len(doc.Snapshot.Crawled) != 1 {
			t.Errorf("expected snapshot in output, got %+v", doc.Snapshot)
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# Crawl Report",
			"`session-123`",
			"## Summary",
			"| Requests",
			"```mermaid",
			"Priority 10",
			"Priority 6",
			"`example.com`",
			"[!WARNING]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("alerts", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			modify func(s *crawler.Summary)
			want   string
		}{
			{
				name: "high error rate",
				modify: func(s *crawler.Summary) {
					s.Stats.FailedRequests = 8
				},
				want: "[!CAUTION]",
			},
			{
				name: "timed out",
				modify: func(s *crawler.Summary) {
					s.Stats.RateLimit429s = 0
				},
				want: "[!IMPORTANT]",
			},
			{
				name: "no requests",
				modify: func(s *crawler.Summary) {
					s.State = crawler.StateExhausted
					s.Stats = stats.Snapshot{}
				},
				want: "[!NOTE]",
			},
			{
				name: "clean crawl",
				modify: func(s *crawler.Summary) {
					s.State = crawler.StateExhausted
					s.Stats.RateLimit429s = 0
				},
				want: "[!TIP]",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				s := createTestSummary()
				tt.modify(s)

				var buf bytes.Buffer
				if _, err := NewMarkdownWriter(&buf).Write(s); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !strings.Contains(buf.String(), tt.want) {
					t.Errorf("expected %s alert, got:\n%s", tt.want, buf.String())
				}
			})
		}
	})

	t.Run("no chart for empty frontier", func(t *testing.T) {
		t.Parallel()

		s := createTestSummary()
		s.FrontierStats = frontier.Stats{}

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "mermaid") {
			t.Error("expected no chart for an empty frontier")
		}
	})
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, js bytes.Buffer
	m := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

	n, err := m.Write(createTestSummary())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != text.Len()+js.Len() {
		t.Errorf("expected %d bytes, got %d", text.Len()+js.Len(), n)
	}
	if text.Len() == 0 || js.Len() == 0 {
		t.Error("expected both writers to receive the report")
	}
}

func TestWriters_NilSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writers := []Writer{NewSimpleWriter(&buf), NewJSONWriter(&buf), NewMarkdownWriter(&buf)}
	for _, w := range writers {
		if _, err := w.Write(nil); !errors.Is(err, ErrNilSummary) {
			t.Errorf("%T: expected ErrNilSummary, got %v", w, err)
		}
	}
}
