package fetcher

import "errors"

var (
	// ErrClientError is returned for 4xx responses other than 429.
	// These are never retried.
	ErrClientError = errors.New("client error")

	// ErrUnexpectedStatus is returned for non-200 statuses that are neither
	// retried nor client errors, such as a redirect past the redirect limit.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrRetriesExhausted wraps the last transient failure once every
	// attempt has been used.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrContentRejected is returned when the content type is not allowed or
	// the body exceeds the size ceiling. It says nothing about host health.
	ErrContentRejected = errors.New("content rejected")

	// ErrRateLimited marks a 429 attempt.
	ErrRateLimited = errors.New("rate limited")

	// ErrServerError marks a 5xx attempt.
	ErrServerError = errors.New("server error")
)

// IsTerminal reports whether err must not be retried by the frontier.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrClientError) ||
		errors.Is(err, ErrUnexpectedStatus) ||
		errors.Is(err, ErrContentRejected)
}
