package locations

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

const locationCols = `id, owner_id, name, latitude, longitude,
	geocoded_address, geocoded_neighborhood, geocoded_postal_code, geocoded_city,
	geocoded_subdivision, geocoded_region, geocoded_country,
	current_address, current_neighborhood, current_postal_code, current_city,
	current_subdivision, current_region, current_country,
	place_id, created_at, updated_at, deleted_at,
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

func scanLocation(row rowScanner) (*models.Location, error) {
	var (
		l         models.Location
		lat, lon  sql.NullFloat64
		createdAt string
		updatedAt string
		deletedAt sql.NullString
		lastTry   sql.NullString
		action    string
	)

	err := row.Scan(&l.ID, &l.OwnerID, &l.Name, &lat, &lon,
		&l.Geocoded.Address, &l.Geocoded.Neighborhood, &l.Geocoded.PostalCode,
		&l.Geocoded.City, &l.Geocoded.Subdivision, &l.Geocoded.Region, &l.Geocoded.Country,
		&l.Current.Address, &l.Current.Neighborhood, &l.Current.PostalCode,
		&l.Current.City, &l.Current.Subdivision, &l.Current.Region, &l.Current.Country,
		&l.PlaceID, &createdAt, &updatedAt, &deletedAt,
		&l.LocalOnly, &l.Synced, &action, &l.SyncError, &l.RetryCount, &lastTry)
	if err != nil {
		return nil, err
	}

	l.SyncAction = models.Action(action)
	if lat.Valid {
		l.Latitude = &lat.Float64
	}
	if lon.Valid {
		l.Longitude = &lon.Float64
	}
	if l.CreatedAt, err = timex.Parse(createdAt); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = timex.Parse(updatedAt); err != nil {
		return nil, err
	}
	if l.DeletedAt, err = timex.ParsePtr(deletedAt); err != nil {
		return nil, err
	}
	if l.LastAttempt, err = timex.ParsePtr(lastTry); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Location, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+locationCols+` FROM locations WHERE owner_id=? AND id=?`, ownerID, id)

	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return l, nil
}

func (r *SQLiteRepository) List(ctx context.Context, ownerID string, includeDeleted bool) ([]*models.Location, error) {
	query := `SELECT ` + locationCols + ` FROM locations WHERE owner_id=?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var result []*models.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, l *models.Location) error {
	query := `INSERT INTO locations (` + locationCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			geocoded_address = excluded.geocoded_address,
			geocoded_neighborhood = excluded.geocoded_neighborhood,
			geocoded_postal_code = excluded.geocoded_postal_code,
			geocoded_city = excluded.geocoded_city,
			geocoded_subdivision = excluded.geocoded_subdivision,
			geocoded_region = excluded.geocoded_region,
			geocoded_country = excluded.geocoded_country,
			current_address = excluded.current_address,
			current_neighborhood = excluded.current_neighborhood,
			current_postal_code = excluded.current_postal_code,
			current_city = excluded.current_city,
			current_subdivision = excluded.current_subdivision,
			current_region = excluded.current_region,
			current_country = excluded.current_country,
			place_id = excluded.place_id,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			local_only = excluded.local_only,
			synced = excluded.synced,
			sync_action = excluded.sync_action,
			sync_error = excluded.sync_error,
			retry_count = excluded.retry_count,
			last_attempt = excluded.last_attempt`

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.OwnerID, l.Name, nullFloat(l.Latitude), nullFloat(l.Longitude),
		l.Geocoded.Address, l.Geocoded.Neighborhood, l.Geocoded.PostalCode,
		l.Geocoded.City, l.Geocoded.Subdivision, l.Geocoded.Region, l.Geocoded.Country,
		l.Current.Address, l.Current.Neighborhood, l.Current.PostalCode,
		l.Current.City, l.Current.Subdivision, l.Current.Region, l.Current.Country,
		l.PlaceID, timex.Format(l.CreatedAt), timex.Format(l.UpdatedAt),
		timex.FormatPtr(l.DeletedAt),
		l.LocalOnly, l.Synced, string(l.SyncAction), l.SyncError, l.RetryCount,
		timex.FormatPtr(l.LastAttempt))
	if err != nil {
		return fmt.Errorf("failed to upsert location: %w", err)
	}
	r.noteWrite()
	return nil
}

// Update applies a local mutation read-modify-write and restamps the row
// for push.
func (r *SQLiteRepository) Update(ctx context.Context, ownerID, id string, fn func(*models.Location)) error {
	l, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}
	fn(l)
	l.MarkChanged()
	l.UpdatedAt = time.Now().UTC()
	return r.Save(ctx, l)
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	l, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if l.LocalOnly {
		return r.Purge(ctx, ownerID, id)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE locations SET
			deleted_at=?, updated_at=?, synced=0, sync_action=?
		WHERE owner_id=? AND id=?`,
		timex.Format(at), timex.Format(at), string(models.ActionDelete), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete location: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, ownerID, id string) error {
	l, err := r.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if l.SyncAction == models.ActionDelete {
		return r.Purge(ctx, ownerID, id)
	}

	_, err = r.db.ExecContext(ctx, `UPDATE locations SET
			synced=1, sync_action='', sync_error='', retry_count=0
		WHERE owner_id=? AND id=?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to mark location synced: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) RecordError(ctx context.Context, ownerID, id, msg string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE locations SET
			sync_error=?, retry_count=retry_count+1, last_attempt=?
		WHERE owner_id=? AND id=?`, msg, timex.Format(at), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to record location error: %w", err)
	}
	r.noteWrite()
	return nil
}

func (r *SQLiteRepository) Unsynced(ctx context.Context, ownerID string) ([]*models.Location, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+locationCols+` FROM locations
		 WHERE owner_id=? AND synced=0 AND local_only=0 AND sync_action != ''
		 ORDER BY updated_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select unsynced locations: %w", err)
	}
	defer rows.Close()

	var result []*models.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) CountUnsynced(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM locations WHERE owner_id=? AND synced=0 AND local_only=0`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsynced locations: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Purge(ctx context.Context, ownerID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM locations WHERE owner_id=? AND id=?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to purge location: %w", err)
	}
	r.noteWrite()
	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
