package attachments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/dbx"
	"github.com/tracehq/tracesync/internal/models"
	"github.com/tracehq/tracesync/internal/timex"
)

const attachmentCols = `id, owner_id, entry_id, remote_path, local_path, mime_type,
	size_bytes, width, height, position, uploaded,
	created_at, updated_at, deleted_at,
	local_only, synced, sync_action, sync_error, retry_count, last_attempt,
	version, base_version, conflict_status, conflict_backup`

type SQLiteRepository struct {
	db      dbx.DBTX
	onWrite func()
}

func NewSQLiteRepository(db dbx.DBTX, onWrite func()) *SQLiteRepository {
	return &SQLiteRepository{db: db, onWrite: onWrite}
}

func (r *SQLiteRepository) noteWrite() {
	if r.onWrite != nil {
		r.onWrite()
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttachment(row rowScanner) (*models.Attachment, error) {
	var (
		a          models.Attachment
		size       sql.NullInt64
		width      sql.NullInt64
		height     sql.NullInt64
		createdAt  string
		updatedAt  string
		deletedAt  sql.NullString
		lastTry    sql.NullString
		action     string
		confStatus string
	)

	err := row.Scan(&a.ID, &a.OwnerID, &a.EntryID, &a.RemotePath, &a.LocalPath,
		&a.MimeType, &size, &width, &height, &a.Position, &a.Uploaded,
		&createdAt, &updatedAt, &deletedAt,
		&a.LocalOnly, &a.Synced, &action, &a.SyncError, &a.RetryCount, &lastTry,
		&a.Version, &a.BaseVersion, &confStatus, &a.ConflictBackup)
	if err != nil {
		return nil, err
	}

	a.SyncAction = models.Action(action)
	a.ConflictStatus = models.ConflictStatus(confStatus)
	if size.Valid {
		a.SizeBytes = &size.Int64
	}
	if width.Valid {
		a.Width = &width.Int64
	}
	if height.Valid {
		a.Height = &height.Int64
	}
	if a.CreatedAt, err = timex.Parse(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = timex.Parse(updatedAt); err != nil {
		return nil, err
	}
	if a.DeletedAt, err = timex.ParsePtr(deletedAt); err != nil {
		return nil, err
	}
	if a.LastAttempt, err = timex.ParsePtr(lastTry); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Attachment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+attachmentCols+` FROM attachments WHERE owner_id=? AND id=?`, ownerID, id)

	a, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.Attachment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+attachmentCols+` FROM attachments WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select attachments: %w", err)
	}
	defer rows.Close()

	var result []*models.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) ListByEntry(ctx context.Context, ownerID, entryID string) ([]*models.Attachment, error) {
	return r.query(ctx,
		`owner_id=? AND entry_id=? AND deleted_at IS NULL ORDER BY position ASC`,
		ownerID, entryID)
}

func (r *SQLiteRepository) ListActive(ctx context.Context, ownerID string) ([]*models.Attachment, error) {
	return r.query(ctx,
		`owner_id=? AND sync_action != 'delete' ORDER BY created_at ASC`, ownerID)
}

func (r *SQLiteRepository) Save(ctx context.Context, a *models.Attachment) error {
	query := `INSERT INTO attachments (` + attachmentCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entry_id = excluded.entry_id,
			remote_path = excluded.remote_path,
			local_path = excluded.local_path,
			mime_type = excluded.mime_type,
			size_bytes = excluded.size_bytes,
			width = excluded.width,
			height = excluded.height,
			position = excluded.position,
			uploaded = excluded.uploaded,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			local_only = excluded.local_only,
			synced = excluded.synced,
			sync_action = excluded.sync_action,
			sync_error = excluded.sync_error,
			retry_count = excluded.retry_count,
			last_attempt = excluded.last_attempt,
			version = excluded.version,
			base_version = excluded.base_version,
			conflict_status = excluded.conflict_status,
			conflict_backup = excluded.conflict_backup`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.OwnerID, a.EntryID, a.RemotePath, a.LocalPath, a.MimeType,
		nullInt(a.SizeBytes), nullInt(a.Width), nullInt(a.Height), a.Position, a.Uploaded,
		timex.Format(a.CreatedAt), timex.Format(a.UpdatedAt), timex.FormatPtr(a.DeletedAt),
		a.LocalOnly, a.Synced, string(a.SyncAction), a.SyncError, a.RetryCount,
		timex.FormatPtr(a.LastAttempt),
		a.Version, a.BaseVersion, string(a.ConflictStatus), a.ConflictBackup)
	if err != nil {
		return fmt.Errorf("failed to upsert attachment: %w", err)
	}
	r.noteWrite()
	return nil
}

// Update applies a local mutation read-modify-write: fn edits the row in
// place, then the row is restamped for push and saved.
func (r *SQLiteRepository) Update(ctx context.Context, ownerID, id string, fn func(*models.Attachment)) error {
	a, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}
	fn(a)
	a.MarkChanged()
	a.UpdatedAt = time.Now().UTC()
	return r.Save(ctx, a)
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	a, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if a.LocalOnly {
		return r.Purge(ctx, ownerID, id)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE attachments SET
			deleted_at=?, updated_at=?, synced=0, sync_action=?, version=version+1
		WHERE owner_id=? AND id=?`,
		timex.Format(at), timex.Format(at), string(models.ActionDelete), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete attachment: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, ownerID, id string) error {
	a, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if a.SyncAction == models.ActionDelete {
		return r.Purge(ctx, ownerID, id)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE attachments SET
			synced=1, sync_action='', sync_error='', retry_count=0, base_version=version
		WHERE owner_id=? AND id=?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to mark attachment synced: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) MarkUploaded(ctx context.Context, ownerID, id, remotePath string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE attachments SET uploaded=1, remote_path=? WHERE owner_id=? AND id=?`,
		remotePath, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to mark attachment uploaded: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) RecordError(ctx context.Context, ownerID, id, msg string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE attachments SET
			sync_error=?, retry_count=retry_count+1, last_attempt=?
		WHERE owner_id=? AND id=?`, msg, timex.Format(at), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to record attachment error: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) PendingUpload(ctx context.Context, ownerID string) ([]*models.Attachment, error) {
	return r.query(ctx,
		`owner_id=? AND uploaded=0 AND local_only=0 AND sync_action != 'delete'
		 ORDER BY created_at ASC`, ownerID)
}

func (r *SQLiteRepository) PendingUpsert(ctx context.Context, ownerID string) ([]*models.Attachment, error) {
	return r.query(ctx,
		`owner_id=? AND synced=0 AND local_only=0 AND sync_action IN ('create','update')
		 ORDER BY created_at ASC`, ownerID)
}

func (r *SQLiteRepository) PendingDelete(ctx context.Context, ownerID string) ([]*models.Attachment, error) {
	return r.query(ctx,
		`owner_id=? AND synced=0 AND local_only=0 AND sync_action='delete'
		 ORDER BY created_at ASC`, ownerID)
}

func (r *SQLiteRepository) CountUnsynced(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attachments WHERE owner_id=? AND synced=0 AND local_only=0`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsynced attachments: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Purge(ctx context.Context, ownerID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE owner_id=? AND id=?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to purge attachment: %w", err)
	}
	r.noteWrite()
	return nil
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}
