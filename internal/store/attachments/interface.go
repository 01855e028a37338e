package attachments

import (
	"context"
	"time"

	"github.com/tracehq/tracesync/internal/models"
)

// Repository describes the local-store operations for attachment metadata.
type Repository interface {
	// GetByID returns the attachment regardless of its tombstone state.
	GetByID(ctx context.Context, ownerID, id string) (*models.Attachment, error)

	// ListByEntry returns the non-deleted attachments of one entry,
	// ordered by position.
	ListByEntry(ctx context.Context, ownerID, entryID string) ([]*models.Attachment, error)

	// ListActive returns every attachment not already marked for deletion.
	// The orphan scan walks this set.
	ListActive(ctx context.Context, ownerID string) ([]*models.Attachment, error)

	// Save upserts the full row.
	Save(ctx context.Context, a *models.Attachment) error

	// Update applies a partial local mutation: fn edits the row, then the
	// envelope is restamped for push and updated_at refreshed.
	Update(ctx context.Context, ownerID, id string, fn func(*models.Attachment)) error

	// SoftDelete stamps the tombstone; local-only rows are purged.
	SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error

	// MarkSynced purges rows pending delete, otherwise stamps the envelope.
	MarkSynced(ctx context.Context, ownerID, id string) error

	// MarkUploaded flags the binary as present in blob storage and records
	// the storage key it was written under.
	MarkUploaded(ctx context.Context, ownerID, id, remotePath string) error

	RecordError(ctx context.Context, ownerID, id, msg string, at time.Time) error

	// PendingUpload returns attachments whose binary has not been uploaded.
	PendingUpload(ctx context.Context, ownerID string) ([]*models.Attachment, error)

	// PendingUpsert returns attachments with a pending create or update.
	PendingUpsert(ctx context.Context, ownerID string) ([]*models.Attachment, error)

	// PendingDelete returns attachments with a pending delete.
	PendingDelete(ctx context.Context, ownerID string) ([]*models.Attachment, error)

	CountUnsynced(ctx context.Context, ownerID string) (int, error)

	Purge(ctx context.Context, ownerID, id string) error
}
