package database

import (
	"context"
	"errors"

	"github.com/nao1215/webspider/internal/model"
)

// PageStore receives crawled pages.
type PageStore interface {
	Store(ctx context.Context, page *model.PageRecord) error
}

// MultiStore writes every page to all of its stores. A failing store does
// not prevent the others from receiving the page.
type MultiStore []PageStore

// Store implements the crawler's Sink.
func (m MultiStore) Store(ctx context.Context, page *model.PageRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Store(ctx, page); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
