package entries

import (
	"context"
	"time"

	"github.com/tracehq/tracesync/internal/models"
)

// ListFilter narrows List results. The zero value lists all non-deleted
// entries of the owner.
type ListFilter struct {
	IncludeDeleted bool
	CategoryID     string
	LocationID     string
}

// Repository describes the local-store operations for journal entries.
// All reads are scoped to the given owner id.
type Repository interface {
	// GetByID returns the entry regardless of its tombstone state, so that
	// pull can compare against soft-deleted local copies. Returns
	// common.ErrNotFound when no row exists.
	GetByID(ctx context.Context, ownerID, id string) (*models.Entry, error)

	// List returns the owner's entries, excluding soft-deleted rows unless
	// the filter asks for them.
	List(ctx context.Context, ownerID string, f ListFilter) ([]*models.Entry, error)

	// Save upserts the full row.
	Save(ctx context.Context, e *models.Entry) error

	// Update applies a partial local mutation: fn edits the row, then the
	// envelope is restamped for push (synced=0, sync_action=update unless a
	// create is still pending, version bump) and updated_at refreshed.
	Update(ctx context.Context, ownerID, id string, fn func(*models.Entry)) error

	// SoftDelete stamps the tombstone and the pending delete action.
	// Local-only rows are purged immediately instead.
	SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error

	// MarkSynced records a successful push. A row whose pending action is
	// delete is purged; otherwise the envelope is stamped pushed.
	MarkSynced(ctx context.Context, ownerID, id string) error

	// RecordError stores push failure diagnostics on the row.
	RecordError(ctx context.Context, ownerID, id, msg string, at time.Time) error

	// Unsynced returns rows with unpushed changes, excluding local-only ones.
	Unsynced(ctx context.Context, ownerID string) ([]*models.Entry, error)

	// CountActive counts non-deleted rows; pull uses zero to escalate an
	// incremental run to a full one.
	CountActive(ctx context.Context, ownerID string) (int, error)

	CountUnsynced(ctx context.Context, ownerID string) (int, error)

	// Purge removes the row physically.
	Purge(ctx context.Context, ownerID, id string) error

	// ReassignLocation repoints every entry referencing fromLocationID to
	// toLocationID and returns the number of rows touched.
	ReassignLocation(ctx context.Context, ownerID, fromLocationID, toLocationID string) (int64, error)
}
