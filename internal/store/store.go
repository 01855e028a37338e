// Package store owns the canonical on-device state: it opens the SQLite
// database, applies the ordered schema migrations, and bundles the
// per-entity repositories behind one handle.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/pressly/goose/v3"

	"github.com/tracehq/tracesync/internal/dbx"
	"github.com/tracehq/tracesync/internal/store/attachments"
	"github.com/tracehq/tracesync/internal/store/categories"
	"github.com/tracehq/tracesync/internal/store/entries"
	"github.com/tracehq/tracesync/internal/store/locations"
	"github.com/tracehq/tracesync/internal/store/migrations"
	"github.com/tracehq/tracesync/internal/store/syncmeta"
	"github.com/tracehq/tracesync/internal/store/synclog"
)

// Store bundles the local repositories over one SQLite database.
type Store struct {
	DB *sql.DB

	Entries     entries.Repository
	Categories  categories.Repository
	Locations   locations.Repository
	Attachments attachments.Repository
	SyncLog     synclog.Repository
	Meta        syncmeta.Repository

	// tombstones caches whether the on-disk schema carries deleted_at
	// columns; dirty forces a re-probe after writes. Schemas predating the
	// tombstone migration had rows removed physically, so deleted-row
	// filtering is gated on this capability.
	tombstones atomic.Bool
	dirty      atomic.Bool
}

// RunMigrations applies the embedded goose steps in order until the schema
// version matches the target.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the local store at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db), nil
}

// New wires a Store over an already-migrated database. Tests use it with
// in-memory databases they set up themselves.
func New(db *sql.DB) *Store {
	s := &Store{DB: db}
	s.Entries = entries.NewSQLiteRepository(db, s.noteWrite)
	s.Categories = categories.NewSQLiteRepository(db, s.noteWrite)
	s.Locations = locations.NewSQLiteRepository(db, s.noteWrite)
	s.Attachments = attachments.NewSQLiteRepository(db, s.noteWrite)
	s.SyncLog = synclog.NewSQLiteRepository(db)
	s.Meta = syncmeta.NewSQLiteRepository(db)

	s.tombstones.Store(s.probeTombstones())
	return s
}

func (s *Store) noteWrite() {
	s.dirty.Store(true)
}

// SupportsTombstones reports whether the schema keeps soft-deleted rows.
// The flag is refreshed lazily after writes.
func (s *Store) SupportsTombstones() bool {
	if s.dirty.Swap(false) {
		s.tombstones.Store(s.probeTombstones())
	}
	return s.tombstones.Load()
}

func (s *Store) probeTombstones() bool {
	var n int
	err := s.DB.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('entries') WHERE name='deleted_at'`).Scan(&n)
	return err == nil && n > 0
}

// InTx runs fn against a transactional shadow of the store. Repositories
// created inside share one transaction; the shadow must not escape fn.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	return dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		shadow := &Store{
			DB:          s.DB,
			Entries:     entries.NewSQLiteRepository(tx, s.noteWrite),
			Categories:  categories.NewSQLiteRepository(tx, s.noteWrite),
			Locations:   locations.NewSQLiteRepository(tx, s.noteWrite),
			Attachments: attachments.NewSQLiteRepository(tx, s.noteWrite),
			SyncLog:     synclog.NewSQLiteRepository(tx),
			Meta:        syncmeta.NewSQLiteRepository(tx),
		}
		return fn(ctx, shadow)
	})
}

// CountUnsynced sums pending rows across all entity kinds.
func (s *Store) CountUnsynced(ctx context.Context, ownerID string) (int, error) {
	total := 0
	counters := []func(context.Context, string) (int, error){
		s.Entries.CountUnsynced,
		s.Categories.CountUnsynced,
		s.Locations.CountUnsynced,
		s.Attachments.CountUnsynced,
	}
	for _, count := range counters {
		n, err := count(ctx, ownerID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
