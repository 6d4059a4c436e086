package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/webspider/internal/crawler"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections without data are shown.
	showEmpty bool

	// verbose adds the per-priority breakdown of the frontier.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(summary *crawler.Summary) (int, error) {
	doc, err := w.document(summary)
	if err != nil {
		return 0, err
	}

	var sb strings.Builder
	w.writeHeader(&sb, doc)
	w.writeCounters(&sb, doc)
	w.writeFrontier(&sb, doc)
	w.writeHosts(&sb, doc)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, doc *Document) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        WEBSPIDER CRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Session:        %s\n", doc.SessionID)
	fmt.Fprintf(sb, "Started:        %s\n", doc.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", doc.Duration.Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:         %s\n", doc.StatusText())
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCounters(sb *strings.Builder, doc *Document) {
	section(sb, "CRAWL SUMMARY")

	fmt.Fprintf(sb, "  Pages processed:   %d\n", doc.PagesProcessed)
	fmt.Fprintf(sb, "  Pages stored:      %d\n", doc.Stats.PagesStored)
	fmt.Fprintf(sb, "  Errors:            %d\n", doc.Errors)
	fmt.Fprintf(sb, "  Robots blocks:     %d\n", doc.RobotsBlocks)
	fmt.Fprintf(sb, "  Retries dropped:   %d\n", doc.Stats.RetriesDropped)
	if doc.InFlightDropped > 0 || w.showEmpty {
		fmt.Fprintf(sb, "  In-flight dropped: %d\n", doc.InFlightDropped)
	}
	sb.WriteString("\n")

	fmt.Fprintf(sb, "  Requests:          %d (%d ok, %d failed)\n",
		doc.Stats.TotalRequests, doc.Stats.SuccessfulRequests, doc.Stats.FailedRequests)
	fmt.Fprintf(sb, "  Rate limited:      %d\n", doc.Stats.RateLimit429s)
	fmt.Fprintf(sb, "  Server errors:     %d\n", doc.Stats.ServerErrors)
	fmt.Fprintf(sb, "  robots.txt checks: %d\n", doc.Stats.RobotsTxtChecks)
	sb.WriteString("\n")

	fmt.Fprintf(sb, "  Requests/second:   %.2f\n", doc.RequestsPerSecond)
	fmt.Fprintf(sb, "  Error rate:        %.1f%%\n", doc.ErrorRate)
	fmt.Fprintf(sb, "  Respectfulness:    %d/100\n", doc.RespectfulnessScore)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFrontier(sb *strings.Builder, doc *Document) {
	section(sb, "FRONTIER")

	fmt.Fprintf(sb, "  Queued:            %d\n", doc.Frontier.TotalQueued)
	fmt.Fprintf(sb, "  Crawled:           %d\n", doc.Frontier.TotalCrawled)
	fmt.Fprintf(sb, "  Pending retries:   %d\n", doc.Frontier.PendingRetries)
	fmt.Fprintf(sb, "  Hosts with queue:  %d\n", doc.Frontier.ActiveHosts)

	if w.verbose {
		priorities := doc.Priorities()
		if len(priorities) > 0 {
			sb.WriteString("\n  By priority:\n")
			for _, p := range priorities {
				fmt.Fprintf(sb, "    [%2d] %d\n", p, doc.Frontier.PriorityDistribution[p])
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeHosts(sb *strings.Builder, doc *Document) {
	if len(doc.TopHosts) == 0 && !w.showEmpty {
		return
	}

	section(sb, "HOSTS")
	if len(doc.TopHosts) == 0 {
		sb.WriteString("  No hosts contacted\n\n")
		return
	}
	for _, h := range doc.TopHosts {
		fmt.Fprintf(sb, "  [+] %s: %d requests, %d ok, %d errors, %d blocked\n",
			h.Host, h.Requests, h.Successes, h.Errors, h.Blocked)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by webspider\n")
	sb.WriteString("https://github.com/nao1215/webspider\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
