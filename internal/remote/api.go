// Package remote declares the capabilities the sync engine consumes from
// the backend: a relational API, blob storage for attachment binaries, a
// change-notification feed, and a structured error taxonomy. Adapters live
// in subpackages; the engine treats all of them as black boxes.
package remote

import (
	"context"
	"time"
)

// Row is one record as the remote API sees it, keyed by column name.
type Row map[string]any

// Filter narrows Select/Update/Delete calls.
type Filter struct {
	// Eq matches columns exactly. A nil map matches everything.
	Eq map[string]any

	// UpdatedAfter keeps only rows with updated_at strictly greater.
	UpdatedAfter *time.Time

	// OrderBy names the sort column; Descending flips the direction.
	OrderBy    string
	Descending bool
}

// API is the remote relational store.
type API interface {
	Select(ctx context.Context, table string, f Filter) ([]Row, error)

	// Upsert inserts row, updating the existing record when conflictKey
	// already exists.
	Upsert(ctx context.Context, table string, row Row, conflictKey string) error

	Update(ctx context.Context, table string, patch Row, f Filter) error

	Delete(ctx context.Context, table string, f Filter) error
}
