package frontier

import "errors"

var (
	// ErrUnsupportedVersion is returned when restoring a snapshot written by
	// an incompatible version.
	ErrUnsupportedVersion = errors.New("unsupported frontier snapshot version")

	// ErrNilSnapshot is returned when restoring from nil.
	ErrNilSnapshot = errors.New("nil frontier snapshot")
)
