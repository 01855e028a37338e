package models

import "time"

// Log severity for sync run records.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// SyncLogRecord is one row of the append-only diagnostic log. The engine
// writes exactly one per sync run.
type SyncLogRecord struct {
	ID      int64
	OwnerID string

	Level   string
	Message string

	// Detail is a JSON blob with per-kind pushed/failed counts.
	Detail string

	DurationMS int64
	CreatedAt  time.Time
}
