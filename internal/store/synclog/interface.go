package synclog

import (
	"context"

	"github.com/tracehq/tracesync/internal/models"
)

// Repository is the append-only diagnostic log. The sync engine writes one
// record per run; the UI reads the tail.
type Repository interface {
	Append(ctx context.Context, rec *models.SyncLogRecord) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, ownerID string, limit int) ([]models.SyncLogRecord, error)
}
