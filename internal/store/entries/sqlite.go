package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/dbx"
	"github.com/tracehq/tracesync/internal/models"
	"github.com/tracehq/tracesync/internal/timex"
)

const entryCols = `id, owner_id, title, body, tags, mentions, category_id, location_id,
	latitude, longitude, status, due_at, completed_at, created_at, updated_at, deleted_at,
	local_only, synced, sync_action, sync_error, retry_count, last_attempt,
	version, base_version, conflict_status, conflict_backup`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db      dbx.DBTX
	onWrite func()
}

// NewSQLiteRepository returns a repository bound to the given DBTX. onWrite,
// if non-nil, is invoked after every successful write.
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

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		e          models.Entry
		tags       string
		mentions   string
		lat, lon   sql.NullFloat64
		dueAt      sql.NullString
		completed  sql.NullString
		createdAt  string
		updatedAt  string
		deletedAt  sql.NullString
		lastTry    sql.NullString
		status     string
		action     string
		confStatus string
	)

	err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Body, &tags, &mentions,
		&e.CategoryID, &e.LocationID, &lat, &lon, &status, &dueAt, &completed,
		&createdAt, &updatedAt, &deletedAt,
		&e.LocalOnly, &e.Synced, &action, &e.SyncError, &e.RetryCount, &lastTry,
		&e.Version, &e.BaseVersion, &confStatus, &e.ConflictBackup)
	if err != nil {
		return nil, err
	}

	e.Status = models.EntryStatus(status)
	e.SyncAction = models.Action(action)
	e.ConflictStatus = models.ConflictStatus(confStatus)

	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(mentions), &e.Mentions); err != nil {
		return nil, fmt.Errorf("decode mentions: %w", err)
	}
	if lat.Valid {
		e.Latitude = &lat.Float64
	}
	if lon.Valid {
		e.Longitude = &lon.Float64
	}
	if e.CreatedAt, err = timex.Parse(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = timex.Parse(updatedAt); err != nil {
		return nil, err
	}
	if e.DeletedAt, err = timex.ParsePtr(deletedAt); err != nil {
		return nil, err
	}
	if e.DueAt, err = timex.ParsePtr(dueAt); err != nil {
		return nil, err
	}
	if e.CompletedAt, err = timex.ParsePtr(completed); err != nil {
		return nil, err
	}
	if e.LastAttempt, err = timex.ParsePtr(lastTry); err != nil {
		return nil, err
	}

	return &e, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryCols+` FROM entries WHERE owner_id=? AND id=?`, ownerID, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) List(ctx context.Context, ownerID string, f ListFilter) ([]*models.Entry, error) {
	query := `SELECT ` + entryCols + ` FROM entries WHERE owner_id=?`
	args := []any{ownerID}

	if !f.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if f.CategoryID != "" {
		query += ` AND category_id=?`
		args = append(args, f.CategoryID)
	}
	if f.LocationID != "" {
		query += ` AND location_id=?`
		args = append(args, f.LocationID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var result []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, e *models.Entry) error {
	tags, err := json.Marshal(orEmpty(e.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	mentions, err := json.Marshal(orEmpty(e.Mentions))
	if err != nil {
		return fmt.Errorf("encode mentions: %w", err)
	}

	query := `INSERT INTO entries (` + entryCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			tags = excluded.tags,
			mentions = excluded.mentions,
			category_id = excluded.category_id,
			location_id = excluded.location_id,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			status = excluded.status,
			due_at = excluded.due_at,
			completed_at = excluded.completed_at,
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

	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.OwnerID, e.Title, e.Body, string(tags), string(mentions),
		e.CategoryID, e.LocationID, nullFloat(e.Latitude), nullFloat(e.Longitude),
		string(e.Status), timex.FormatPtr(e.DueAt), timex.FormatPtr(e.CompletedAt),
		timex.Format(e.CreatedAt), timex.Format(e.UpdatedAt), timex.FormatPtr(e.DeletedAt),
		e.LocalOnly, e.Synced, string(e.SyncAction), e.SyncError, e.RetryCount,
		timex.FormatPtr(e.LastAttempt),
		e.Version, e.BaseVersion, string(e.ConflictStatus), e.ConflictBackup)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	r.noteWrite()
	return nil
}

// Update applies a local mutation read-modify-write: fn edits the row in
// place, then the row is restamped for push and saved.
func (r *SQLiteRepository) Update(ctx context.Context, ownerID, id string, fn func(*models.Entry)) error {
	e, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}
	fn(e)
	e.MarkChanged()
	e.UpdatedAt = time.Now().UTC()
	return r.Save(ctx, e)
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	e, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if e.LocalOnly {
		return r.Purge(ctx, ownerID, id)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE entries SET
			deleted_at=?, updated_at=?, synced=0, sync_action=?, version=version+1
		WHERE owner_id=? AND id=?`,
		timex.Format(at), timex.Format(at), string(models.ActionDelete), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete entry: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, ownerID, id string) error {
	e, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}

	// An acknowledged delete leaves nothing to keep.
	if e.SyncAction == models.ActionDelete {
		return r.Purge(ctx, ownerID, id)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE entries SET
			synced=1, sync_action='', sync_error='', retry_count=0, base_version=version
		WHERE owner_id=? AND id=?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to mark entry synced: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) RecordError(ctx context.Context, ownerID, id, msg string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE entries SET
			sync_error=?, retry_count=retry_count+1, last_attempt=?
		WHERE owner_id=? AND id=?`, msg, timex.Format(at), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to record entry error: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) Unsynced(ctx context.Context, ownerID string) ([]*models.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryCols+` FROM entries
		 WHERE owner_id=? AND synced=0 AND local_only=0 AND sync_action != ''
		 ORDER BY updated_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select unsynced entries: %w", err)
	}
	defer rows.Close()

	var result []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) CountActive(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE owner_id=? AND deleted_at IS NULL`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CountUnsynced(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE owner_id=? AND synced=0 AND local_only=0`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsynced entries: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Purge(ctx context.Context, ownerID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE owner_id=? AND id=?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to purge entry: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) ReassignLocation(ctx context.Context, ownerID, fromLocationID, toLocationID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE entries SET
			location_id=?, synced=0, version=version+1,
			sync_action=CASE WHEN sync_action='' THEN 'update' ELSE sync_action END
		WHERE owner_id=? AND location_id=?`, toLocationID, ownerID, fromLocationID)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign location: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	r.noteWrite()
	return n, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
