package categories

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

const categoryCols = `id, owner_id, name, path, parent_id, depth, entry_count, color, icon,
	created_at, updated_at, deleted_at,
	local_only, synced, sync_action, sync_error, retry_count, last_attempt`

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

func scanCategory(row rowScanner) (*models.Category, error) {
	var (
		c         models.Category
		createdAt string
		updatedAt string
		deletedAt sql.NullString
		lastTry   sql.NullString
		action    string
	)

	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Path, &c.ParentID, &c.Depth,
		&c.EntryCount, &c.Color, &c.Icon, &createdAt, &updatedAt, &deletedAt,
		&c.LocalOnly, &c.Synced, &action, &c.SyncError, &c.RetryCount, &lastTry)
	if err != nil {
		return nil, err
	}

	c.SyncAction = models.Action(action)
	if c.CreatedAt, err = timex.Parse(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = timex.Parse(updatedAt); err != nil {
		return nil, err
	}
	if c.DeletedAt, err = timex.ParsePtr(deletedAt); err != nil {
		return nil, err
	}
	if c.LastAttempt, err = timex.ParsePtr(lastTry); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+categoryCols+` FROM categories WHERE owner_id=? AND id=?`, ownerID, id)

	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) List(ctx context.Context, ownerID string, includeDeleted bool) ([]*models.Category, error) {
	query := `SELECT ` + categoryCols + ` FROM categories WHERE owner_id=?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY depth ASC, path ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var result []*models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, c *models.Category) error {
	query := `INSERT INTO categories (` + categoryCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			parent_id = excluded.parent_id,
			depth = excluded.depth,
			entry_count = excluded.entry_count,
			color = excluded.color,
			icon = excluded.icon,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			local_only = excluded.local_only,
			synced = excluded.synced,
			sync_action = excluded.sync_action,
			sync_error = excluded.sync_error,
			retry_count = excluded.retry_count,
			last_attempt = excluded.last_attempt`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.OwnerID, c.Name, c.Path, c.ParentID, c.Depth, c.EntryCount,
		c.Color, c.Icon, timex.Format(c.CreatedAt), timex.Format(c.UpdatedAt),
		timex.FormatPtr(c.DeletedAt),
		c.LocalOnly, c.Synced, string(c.SyncAction), c.SyncError, c.RetryCount,
		timex.FormatPtr(c.LastAttempt))
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	r.noteWrite()
	return nil
}

// Update applies a local mutation read-modify-write and restamps the row
// for push.
func (r *SQLiteRepository) Update(ctx context.Context, ownerID, id string, fn func(*models.Category)) error {
	c, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}
	fn(c)
	c.MarkChanged()
	c.UpdatedAt = time.Now().UTC()
	return r.Save(ctx, c)
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	c, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if c.LocalOnly {
		return r.Purge(ctx, ownerID, id)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE categories SET
			deleted_at=?, updated_at=?, synced=0, sync_action=?
		WHERE owner_id=? AND id=?`,
		timex.Format(at), timex.Format(at), string(models.ActionDelete), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete category: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, ownerID, id string) error {
	c, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if c.SyncAction == models.ActionDelete {
		return r.Purge(ctx, ownerID, id)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE categories SET
			synced=1, sync_action='', sync_error='', retry_count=0
		WHERE owner_id=? AND id=?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to mark category synced: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) RecordError(ctx context.Context, ownerID, id, msg string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE categories SET
			sync_error=?, retry_count=retry_count+1, last_attempt=?
		WHERE owner_id=? AND id=?`, msg, timex.Format(at), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to record category error: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) Unsynced(ctx context.Context, ownerID string) ([]*models.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryCols+` FROM categories
		 WHERE owner_id=? AND synced=0 AND local_only=0 AND sync_action != ''
		 ORDER BY depth ASC, path ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select unsynced categories: %w", err)
	}
	defer rows.Close()

	var result []*models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) CountUnsynced(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE owner_id=? AND synced=0 AND local_only=0`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsynced categories: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Purge(ctx context.Context, ownerID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE owner_id=? AND id=?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to purge category: %w", err)
	}
	r.noteWrite()
	return nil
}
