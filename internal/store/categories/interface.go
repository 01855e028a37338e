package categories

import (
	"context"
	"time"

	"github.com/tracehq/tracesync/internal/models"
)

// Repository describes the local-store operations for categories.
type Repository interface {
	// GetByID returns the category regardless of its tombstone state.
	GetByID(ctx context.Context, ownerID, id string) (*models.Category, error)

	// List returns the owner's categories ordered by depth then path.
	List(ctx context.Context, ownerID string, includeDeleted bool) ([]*models.Category, error)

	// Save upserts the full row.
	Save(ctx context.Context, c *models.Category) error

	// Update applies a partial local mutation: fn edits the row, then it is
	// restamped for push and updated_at refreshed.
	Update(ctx context.Context, ownerID, id string, fn func(*models.Category)) error

	// SoftDelete stamps the tombstone; local-only rows are purged.
	SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error

	// MarkSynced purges rows pending delete, otherwise clears the marks.
	MarkSynced(ctx context.Context, ownerID, id string) error

	RecordError(ctx context.Context, ownerID, id, msg string, at time.Time) error

	// Unsynced returns pending rows ordered ascending by depth, so parents
	// are pushed before children.
	Unsynced(ctx context.Context, ownerID string) ([]*models.Category, error)

	CountUnsynced(ctx context.Context, ownerID string) (int, error)

	Purge(ctx context.Context, ownerID, id string) error
}
