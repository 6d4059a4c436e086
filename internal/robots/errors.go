package robots

import "errors"

var (
	// ErrUnexpectedStatus is returned when robots.txt responds with a status
	// other than 200. The checker treats it as allow-all.
	ErrUnexpectedStatus = errors.New("unexpected robots.txt status")

	// ErrInvalidURL is returned when a URL cannot be checked because it has
	// no host.
	ErrInvalidURL = errors.New("invalid URL")
)
