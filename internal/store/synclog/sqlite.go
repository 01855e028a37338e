package synclog

import (
	"context"
	"fmt"

	"github.com/tracehq/tracesync/internal/dbx"
	"github.com/tracehq/tracesync/internal/models"
	"github.com/tracehq/tracesync/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, rec *models.SyncLogRecord) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_log (owner_id, level, message, detail, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.OwnerID, rec.Level, rec.Message, rec.Detail, rec.DurationMS,
		timex.Format(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (r *SQLiteRepository) Recent(ctx context.Context, ownerID string, limit int) ([]models.SyncLogRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, level, message, detail, duration_ms, created_at
		 FROM sync_log WHERE owner_id=? ORDER BY id DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync log: %w", err)
	}
	defer rows.Close()

	var result []models.SyncLogRecord
	for rows.Next() {
		var rec models.SyncLogRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Level, &rec.Message,
			&rec.Detail, &rec.DurationMS, &createdAt); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = timex.Parse(createdAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
