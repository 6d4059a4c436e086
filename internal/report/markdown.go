package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/webspider/internal/crawler"
)

// highErrorRate is the error percentage above which the report raises a
// caution alert.
const highErrorRate = 50.0

// MarkdownWriter outputs reports in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(summary *crawler.Summary) (int, error) {
	doc, err := w.document(summary)
	if err != nil {
		return 0, err
	}

	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, doc)
	w.writeSummary(md, doc)
	w.writeFrontier(md, doc)
	w.writeHosts(md, doc)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, doc *Document) {
	md.H1("Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Session", "`" + doc.SessionID + "`"},
			{"Started", doc.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", doc.Duration.Round(time.Millisecond).String()},
			{"Pages Processed", strconv.Itoa(doc.PagesProcessed)},
			{"Status", w.statusText(doc)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) statusText(doc *Document) string {
	switch doc.State {
	case crawler.StateTimedOut:
		return "⚠️ " + doc.StatusText()
	case crawler.StateDraining:
		return "⏹️ " + doc.StatusText()
	default:
		return "✅ " + doc.StatusText()
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, doc *Document) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Requests", strconv.Itoa(doc.Stats.TotalRequests)},
			{"Successful", strconv.Itoa(doc.Stats.SuccessfulRequests)},
			{"Failed", strconv.Itoa(doc.Stats.FailedRequests)},
			{"Pages Stored", strconv.Itoa(doc.Stats.PagesStored)},
			{"Robots Blocks", strconv.Itoa(doc.RobotsBlocks)},
			{"Rate Limited (429)", strconv.Itoa(doc.Stats.RateLimit429s)},
			{"Server Errors (5xx)", strconv.Itoa(doc.Stats.ServerErrors)},
			{"Retries Dropped", strconv.Itoa(doc.Stats.RetriesDropped)},
			{"Requests/Second", fmt.Sprintf("%.2f", doc.RequestsPerSecond)},
			{"Error Rate", fmt.Sprintf("%.1f%%", doc.ErrorRate)},
			{"**Respectfulness**", "**" + strconv.Itoa(doc.RespectfulnessScore) + "/100**"},
		},
	})
	md.PlainText("")

	w.writeAlert(md, doc)
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, doc *Document) {
	switch {
	case doc.Stats.TotalRequests > 0 && doc.ErrorRate > highErrorRate:
		md.Cautionf("%.1f%% of requests failed. Check the seeds and the network path.", doc.ErrorRate)
	case doc.Stats.RateLimit429s > 0:
		md.Warningf(
			"%d request(s) were rate limited. Consider raising --crawl-delay or lowering --concurrency.",
			doc.Stats.RateLimit429s,
		)
	case doc.State == crawler.StateTimedOut:
		md.Importantf(
			"The session timed out with %d URL(s) still queued. Resume it with --resume %s.",
			doc.Frontier.TotalQueued, doc.SessionID,
		)
	case doc.Stats.TotalRequests == 0:
		md.Note("No requests were made.")
	default:
		md.Tip("The crawl finished without rate limiting.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFrontier(md *markdown.Markdown, doc *Document) {
	md.H2("Frontier")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Queue", "Count"},
		Rows: [][]string{
			{"Queued", strconv.Itoa(doc.Frontier.TotalQueued)},
			{"Crawled", strconv.Itoa(doc.Frontier.TotalCrawled)},
			{"Pending Retries", strconv.Itoa(doc.Frontier.PendingRetries)},
			{"Hosts With Queue", strconv.Itoa(doc.Frontier.ActiveHosts)},
		},
	})
	md.PlainText("")

	if doc.Frontier.TotalQueued > 0 {
		w.writePieChart(md, doc)
	}
}

// writePieChart writes a mermaid pie chart of the queued priorities.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, doc *Document) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Queued URLs by Priority"),
		piechart.WithShowData(true),
	)
	for _, p := range doc.Priorities() {
		chart.LabelAndIntValue("Priority "+strconv.Itoa(p), uint64(doc.Frontier.PriorityDistribution[p])) //nolint:gosec // counts are non-negative
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeHosts(md *markdown.Markdown, doc *Document) {
	md.H2("Hosts")
	md.PlainText("")

	if len(doc.TopHosts) == 0 {
		md.PlainText("No hosts contacted.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(doc.TopHosts))
	for i, h := range doc.TopHosts {
		rows[i] = []string{
			"`" + h.Host + "`",
			strconv.Itoa(h.Requests),
			strconv.Itoa(h.Successes),
			strconv.Itoa(h.Errors),
			strconv.Itoa(h.Blocked),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Host", "Requests", "OK", "Errors", "Blocked"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [webspider](https://github.com/nao1215/webspider)*")
}
