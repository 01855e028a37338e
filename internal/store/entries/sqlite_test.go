package entries_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/models"
	"github.com/tracehq/tracesync/internal/store"
	"github.com/tracehq/tracesync/internal/store/entries"
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

func newEntry(title string, at time.Time) *models.Entry {
	e := &models.Entry{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Title:     title,
		Body:      "body",
		Tags:      []string{"go", "sync"},
		Mentions:  []string{"@sam"},
		Status:    models.StatusIncomplete,
		CreatedAt: at,
		UpdatedAt: at,
	}
	e.MarkCreated()
	return e
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	at := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	lat, lon := 37.77, -122.42
	due := at.Add(24 * time.Hour)

	e := newEntry("roundtrip", at)
	e.Latitude = &lat
	e.Longitude = &lon
	e.DueAt = &due
	require.NoError(t, st.Entries.Save(ctx, e))

	got, err := st.Entries.GetByID(ctx, owner, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", got.Title)
	assert.Equal(t, []string{"go", "sync"}, got.Tags)
	assert.Equal(t, []string{"@sam"}, got.Mentions)
	assert.Equal(t, models.StatusIncomplete, got.Status)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, lat, *got.Latitude, 1e-9)
	require.NotNil(t, got.DueAt)
	assert.True(t, got.DueAt.Equal(due))
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, models.ActionCreate, got.SyncAction)
	assert.False(t, got.Synced)
}

func TestGetByIDNotFound(t *testing.T) {
	st := newStore(t)
	_, err := st.Entries.GetByID(context.Background(), owner, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetByIDScopedToOwner(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	e := newEntry("mine", time.Now().UTC())
	require.NoError(t, st.Entries.Save(ctx, e))

	_, err := st.Entries.GetByID(ctx, "someone-else", e.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	now := time.Now().UTC()

	inCat := newEntry("in category", now)
	inCat.CategoryID = "cat-1"
	atLoc := newEntry("at location", now.Add(time.Second))
	atLoc.LocationID = "loc-1"
	gone := newEntry("deleted", now.Add(2*time.Second))
	gone.DeletedAt = &now
	for _, e := range []*models.Entry{inCat, atLoc, gone} {
		require.NoError(t, st.Entries.Save(ctx, e))
	}

	all, err := st.Entries.List(ctx, owner, entries.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "soft-deleted rows are excluded by default")

	withDeleted, err := st.Entries.List(ctx, owner, entries.ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, withDeleted, 3)

	byCat, err := st.Entries.List(ctx, owner, entries.ListFilter{CategoryID: "cat-1"})
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	assert.Equal(t, inCat.ID, byCat[0].ID)

	byLoc, err := st.Entries.List(ctx, owner, entries.ListFilter{LocationID: "loc-1"})
	require.NoError(t, err)
	require.Len(t, byLoc, 1)
	assert.Equal(t, atLoc.ID, byLoc[0].ID)
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	now := time.Now().UTC()

	e := newEntry("to delete", now)
	require.NoError(t, st.Entries.Save(ctx, e))

	require.NoError(t, st.Entries.SoftDelete(ctx, owner, e.ID, now.Add(time.Minute)))

	got, err := st.Entries.GetByID(ctx, owner, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)
	assert.Equal(t, models.ActionDelete, got.SyncAction)
	assert.False(t, got.Synced)
	assert.Equal(t, int64(2), got.Version, "a delete is a mutation and bumps the version")
}

func TestSoftDeleteLocalOnlyPurges(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	e := newEntry("private", time.Now().UTC())
	e.LocalOnly = true
	require.NoError(t, st.Entries.Save(ctx, e))

	require.NoError(t, st.Entries.SoftDelete(ctx, owner, e.ID, time.Now().UTC()))

	_, err := st.Entries.GetByID(ctx, owner, e.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMarkSynced(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	e := newEntry("pushed", time.Now().UTC())
	e.SyncError = "old failure"
	e.RetryCount = 2
	require.NoError(t, st.Entries.Save(ctx, e))

	require.NoError(t, st.Entries.MarkSynced(ctx, owner, e.ID))

	got, err := st.Entries.GetByID(ctx, owner, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, models.ActionNone, got.SyncAction)
	assert.Empty(t, got.SyncError)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, got.Version, got.BaseVersion)
}

func TestMarkSyncedPurgesPendingDelete(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	now := time.Now().UTC()

	e := newEntry("tombstoned", now)
	require.NoError(t, st.Entries.Save(ctx, e))
	require.NoError(t, st.Entries.SoftDelete(ctx, owner, e.ID, now))

	require.NoError(t, st.Entries.MarkSynced(ctx, owner, e.ID))

	_, err := st.Entries.GetByID(ctx, owner, e.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	now := time.Now().UTC()

	e := newEntry("flaky", now)
	require.NoError(t, st.Entries.Save(ctx, e))

	require.NoError(t, st.Entries.RecordError(ctx, owner, e.ID, "connection reset", now))
	require.NoError(t, st.Entries.RecordError(ctx, owner, e.ID, "connection reset again", now.Add(time.Minute)))

	got, err := st.Entries.GetByID(ctx, owner, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "connection reset again", got.SyncError)
	assert.Equal(t, 2, got.RetryCount)
	require.NotNil(t, got.LastAttempt)
	assert.True(t, got.LastAttempt.Equal(now.Add(time.Minute)))
}

func TestUnsynced(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	now := time.Now().UTC()

	second := newEntry("second", now.Add(time.Minute))
	first := newEntry("first", now)
	private := newEntry("private", now)
	private.LocalOnly = true
	clean := newEntry("clean", now)
	clean.StampPulled(1)
	for _, e := range []*models.Entry{second, first, private, clean} {
		require.NoError(t, st.Entries.Save(ctx, e))
	}

	pending, err := st.Entries.Unsynced(ctx, owner)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first", pending[0].Title, "oldest change first")
	assert.Equal(t, "second", pending[1].Title)
}

func TestCounts(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	now := time.Now().UTC()

	live := newEntry("live", now)
	require.NoError(t, st.Entries.Save(ctx, live))
	gone := newEntry("gone", now)
	gone.DeletedAt = &now
	require.NoError(t, st.Entries.Save(ctx, gone))

	active, err := st.Entries.CountActive(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	unsynced, err := st.Entries.CountUnsynced(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, unsynced)
}

func TestReassignLocation(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	now := time.Now().UTC()

	moved := newEntry("moved", now)
	moved.LocationID = "loc-old"
	moved.StampPulled(1)
	require.NoError(t, st.Entries.Save(ctx, moved))
	elsewhere := newEntry("elsewhere", now)
	elsewhere.LocationID = "loc-other"
	require.NoError(t, st.Entries.Save(ctx, elsewhere))

	n, err := st.Entries.ReassignLocation(ctx, owner, "loc-old", "loc-new")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.Entries.GetByID(ctx, owner, moved.ID)
	require.NoError(t, err)
	assert.Equal(t, "loc-new", got.LocationID)
	assert.False(t, got.Synced)
	assert.Equal(t, models.ActionUpdate, got.SyncAction)
	assert.Equal(t, int64(2), got.Version)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	e := newEntry("draft", time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	e.StampPulled(3)
	require.NoError(t, st.Entries.Save(ctx, e))

	err := st.Entries.Update(ctx, owner, e.ID, func(e *models.Entry) {
		e.Title = "final"
		e.Status = models.StatusComplete
	})
	require.NoError(t, err)

	got, err := st.Entries.GetByID(ctx, owner, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Title)
	assert.Equal(t, models.StatusComplete, got.Status)
	assert.False(t, got.Synced)
	assert.Equal(t, models.ActionUpdate, got.SyncAction)
	assert.Equal(t, int64(4), got.Version, "a local mutation bumps the version")
	assert.Equal(t, int64(3), got.BaseVersion)
	assert.True(t, got.UpdatedAt.After(e.CreatedAt))
}

func TestUpdateKeepsPendingCreate(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	e := newEntry("unpushed", time.Now().UTC())
	require.NoError(t, st.Entries.Save(ctx, e))

	err := st.Entries.Update(ctx, owner, e.ID, func(e *models.Entry) {
		e.Body = "edited before first push"
	})
	require.NoError(t, err)

	got, err := st.Entries.GetByID(ctx, owner, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreate, got.SyncAction, "an edit before the first push still travels as a create")
	assert.Equal(t, int64(2), got.Version)
}

func TestUpdateNotFound(t *testing.T) {
	st := newStore(t)
	err := st.Entries.Update(context.Background(), owner, "missing", func(*models.Entry) {})
	assert.ErrorIs(t, err, common.ErrNotFound)
}
