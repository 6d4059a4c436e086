package report

import (
	"errors"
	"io"

	"github.com/nao1215/webspider/internal/crawler"
)

// ErrNilSummary is returned when a writer is given no summary.
var ErrNilSummary = errors.New("report: nil summary")

// Writer defines the interface for report output.
type Writer interface {
	// Write renders the summary to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(summary *crawler.Summary) (int, error)
}

// MultiWriter writes to multiple Writers in turn.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(summary *crawler.Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output  io.Writer
	version string
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

func (b baseWriter) document(summary *crawler.Summary) (*Document, error) {
	if summary == nil {
		return nil, ErrNilSummary
	}
	return NewDocument(summary, b.version), nil
}
