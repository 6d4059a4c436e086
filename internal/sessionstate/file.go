package sessionstate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	stateExt   = ".state"
	latestFile = "LATEST"
)

// FileStore keeps one file per session in a directory. Writes go to a
// temporary file that is renamed into place, so a crash never leaves a
// truncated state behind.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store in it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the state directory.
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+stateExt)
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, id string, blob []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := writeAtomic(f.dir, f.path(id), blob); err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	if err := writeAtomic(f.dir, filepath.Join(f.dir, latestFile), []byte(id)); err != nil {
		return fmt.Errorf("failed to record latest session: %w", err)
	}
	return nil
}

// Load implements Store.
func (f *FileStore) Load(_ context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(f.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return blob, nil
}

// LatestSession implements Store.
func (f *FileStore) LatestSession(ctx context.Context) (string, []byte, error) {
	raw, err := os.ReadFile(filepath.Join(f.dir, latestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read latest session: %w", err)
	}
	id := strings.TrimSpace(string(raw))
	blob, err := f.Load(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return id, blob, nil
}

func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
