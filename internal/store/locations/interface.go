package locations

import (
	"context"
	"time"

	"github.com/tracehq/tracesync/internal/models"
)

// Repository describes the local-store operations for locations.
type Repository interface {
	// GetByID returns the location regardless of its tombstone state.
	GetByID(ctx context.Context, ownerID, id string) (*models.Location, error)

	// List returns the owner's locations, excluding soft-deleted rows
	// unless includeDeleted is set.
	List(ctx context.Context, ownerID string, includeDeleted bool) ([]*models.Location, error)

	// Save upserts the full row.
	Save(ctx context.Context, l *models.Location) error

	// Update applies a partial local mutation: fn edits the row, then it is
	// restamped for push and updated_at refreshed.
	Update(ctx context.Context, ownerID, id string, fn func(*models.Location)) error

	// SoftDelete stamps the tombstone; local-only rows are purged.
	SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error

	// MarkSynced purges rows pending delete, otherwise clears the marks.
	MarkSynced(ctx context.Context, ownerID, id string) error

	RecordError(ctx context.Context, ownerID, id, msg string, at time.Time) error

	Unsynced(ctx context.Context, ownerID string) ([]*models.Location, error)

	CountUnsynced(ctx context.Context, ownerID string) (int, error)

	Purge(ctx context.Context, ownerID, id string) error
}
