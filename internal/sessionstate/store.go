package sessionstate

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Latest is the session reference that resolves to the most recent session.
const Latest = "latest"

var (
	// ErrNotFound is returned when no state is stored for a session.
	ErrNotFound = errors.New("session state not found")

	// ErrInvalidID is returned for session IDs that cannot be used as keys.
	ErrInvalidID = errors.New("invalid session id")
)

// Store saves and loads session state blobs.
type Store interface {
	// Save stores blob under id and marks id as the latest session.
	Save(ctx context.Context, id string, blob []byte) error

	// Load returns the blob stored under id.
	Load(ctx context.Context, id string) ([]byte, error)

	// LatestSession returns the ID and blob of the most recently saved session.
	LatestSession(ctx context.Context) (string, []byte, error)
}

// NewID returns a fresh random session ID.
func NewID() string {
	return uuid.NewString()
}

// Resolve loads the state of ref, which is either a session ID or Latest.
// It returns the resolved session ID together with the blob.
func Resolve(ctx context.Context, s Store, ref string) (string, []byte, error) {
	if ref == "" || strings.EqualFold(ref, Latest) {
		return s.LatestSession(ctx)
	}
	blob, err := s.Load(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	return ref, blob, nil
}

// validateID rejects IDs that are empty or would escape a directory.
func validateID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return ErrInvalidID
	}
	if strings.EqualFold(id, Latest) {
		return ErrInvalidID
	}
	return nil
}
