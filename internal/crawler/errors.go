package crawler

import "errors"

var (
	// ErrNotIdle is returned when Run or Resume is called on an engine that
	// already ran.
	ErrNotIdle = errors.New("crawl engine is not idle")

	// ErrNoSeeds is returned when none of the seeds is a crawlable URL.
	ErrNoSeeds = errors.New("no valid seed URLs")

	// ErrNilSnapshot is returned when Resume gets no snapshot.
	ErrNilSnapshot = errors.New("nil snapshot")
)
