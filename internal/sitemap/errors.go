package sitemap

import "errors"

var (
	// ErrUnexpectedStatus is returned when a sitemap responds with a status
	// other than 200.
	ErrUnexpectedStatus = errors.New("unexpected sitemap status")

	// ErrTooLarge is returned when a sitemap exceeds the size limit after
	// decompression.
	ErrTooLarge = errors.New("sitemap too large")
)
