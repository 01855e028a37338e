package syncmeta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tracehq/tracesync/internal/dbx"
	"github.com/tracehq/tracesync/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetCheckpoint(ctx context.Context, ownerID string) (*time.Time, error) {
	var ns sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT last_pulled_at FROM sync_meta WHERE owner_id=?`, ownerID).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return timex.ParsePtr(ns)
}

func (r *SQLiteRepository) SetCheckpoint(ctx context.Context, ownerID string, t time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_meta (owner_id, last_pulled_at) VALUES (?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET last_pulled_at = excluded.last_pulled_at
	`, ownerID, timex.Format(t))
	if err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ClearCheckpoint(ctx context.Context, ownerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_meta WHERE owner_id=?`, ownerID)
	if err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}
