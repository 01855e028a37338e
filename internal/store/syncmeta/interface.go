package syncmeta

import (
	"context"
	"time"
)

// Repository stores per-owner sync bookkeeping: the checkpoint marking the
// boundary of the last successful incremental pull.
type Repository interface {
	// GetCheckpoint returns nil when no pull has completed yet.
	GetCheckpoint(ctx context.Context, ownerID string) (*time.Time, error)

	SetCheckpoint(ctx context.Context, ownerID string, t time.Time) error

	// ClearCheckpoint forces the next pull to run in full.
	ClearCheckpoint(ctx context.Context, ownerID string) error
}
