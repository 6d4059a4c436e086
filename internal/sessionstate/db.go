package sessionstate

import (
	"context"
	"fmt"

	"github.com/nao1215/webspider/internal/database"
)

// DBStore keeps session state in the sessions table of a CrawlDB.
type DBStore struct {
	db *database.CrawlDB
}

// NewDBStore returns a store backed by db.
func NewDBStore(db *database.CrawlDB) *DBStore {
	return &DBStore{db: db}
}

// Save implements Store.
func (d *DBStore) Save(ctx context.Context, id string, blob []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	if blob == nil {
		blob = []byte{}
	}
	return d.db.SaveSession(ctx, &database.SessionRecord{ID: id, Snapshot: blob})
}

// Load implements Store.
func (d *DBStore) Load(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	rec, err := d.db.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Snapshot == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.Snapshot, nil
}

// LatestSession implements Store.
func (d *DBStore) LatestSession(ctx context.Context) (string, []byte, error) {
	rec, err := d.db.LatestSession(ctx)
	if err != nil {
		return "", nil, err
	}
	if rec == nil {
		return "", nil, ErrNotFound
	}
	return rec.ID, rec.Snapshot, nil
}
