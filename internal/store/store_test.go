package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/models"
	"github.com/tracehq/tracesync/internal/store"
)

const owner = "owner-1"

func newStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.RunMigrations(context.Background(), db))
	return store.New(db)
}

func newEntry(title string) *models.Entry {
	now := time.Now().UTC()
	e := &models.Entry{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.MarkCreated()
	return e
}

func TestOpenMigratesAndReopens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := store.Open(ctx, dir+"/trace.db")
	require.NoError(t, err)
	require.NoError(t, st.Entries.Save(ctx, newEntry("persisted")))
	require.NoError(t, st.DB.Close())

	// Reopening runs the already-applied migrations as a no-op.
	st, err = store.Open(ctx, dir+"/trace.db")
	require.NoError(t, err)
	defer st.DB.Close()

	n, err := st.Entries.CountActive(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSupportsTombstones(t *testing.T) {
	st := newStore(t)
	assert.True(t, st.SupportsTombstones())

	// Writes dirty the flag; the probe still reports support on the
	// migrated schema.
	require.NoError(t, st.Entries.Save(context.Background(), newEntry("probe")))
	assert.True(t, st.SupportsTombstones())
}

func TestCountUnsyncedAcrossKinds(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	now := time.Now().UTC()

	require.NoError(t, st.Entries.Save(ctx, newEntry("pending")))

	c := &models.Category{ID: uuid.NewString(), OwnerID: owner, Name: "Work", Path: "Work", CreatedAt: now, UpdatedAt: now}
	c.MarkCreated()
	require.NoError(t, st.Categories.Save(ctx, c))

	l := &models.Location{ID: uuid.NewString(), OwnerID: owner, Name: "Cafe", CreatedAt: now, UpdatedAt: now}
	l.MarkCreated()
	require.NoError(t, st.Locations.Save(ctx, l))

	n, err := st.CountUnsynced(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	e := newEntry("inside tx")
	boom := errors.New("boom")

	err := st.InTx(ctx, func(ctx context.Context, tx *store.Store) error {
		if err := tx.Entries.Save(ctx, e); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.Entries.GetByID(ctx, owner, e.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestInTxCommits(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	e := newEntry("committed")
	require.NoError(t, st.InTx(ctx, func(ctx context.Context, tx *store.Store) error {
		return tx.Entries.Save(ctx, e)
	}))

	got, err := st.Entries.GetByID(ctx, owner, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "committed", got.Title)
}
