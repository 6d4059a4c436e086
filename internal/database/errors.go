package database

import "errors"

var (
	// ErrDatabaseNotFound is returned by Open when the database file is
	// missing and creation is disabled.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrInvalidPage is returned when a page without URL is stored.
	ErrInvalidPage = errors.New("page has no URL")

	// ErrInvalidSession is returned when a session without ID is saved.
	ErrInvalidSession = errors.New("session has no ID")
)
