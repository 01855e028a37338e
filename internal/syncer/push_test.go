package syncer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/models"
	"github.com/tracehq/tracesync/internal/remote"
	"github.com/tracehq/tracesync/internal/store"
)

func newEntry(title string, at time.Time) *models.Entry {
	e := &models.Entry{
		ID:        uuid.NewString(),
		OwnerID:   testOwner,
		Title:     title,
		Body:      "body of " + title,
		Status:    models.StatusNone,
		CreatedAt: at,
		UpdatedAt: at,
	}
	e.MarkCreated()
	return e
}

func newCategory(name string, depth int, at time.Time) *models.Category {
	c := &models.Category{
		ID:        uuid.NewString(),
		OwnerID:   testOwner,
		Name:      name,
		Path:      name,
		Depth:     depth,
		CreatedAt: at,
		UpdatedAt: at,
	}
	c.MarkCreated()
	return c
}

func newLocation(name string, at time.Time) *models.Location {
	l := &models.Location{
		ID:        uuid.NewString(),
		OwnerID:   testOwner,
		Name:      name,
		CreatedAt: at,
		UpdatedAt: at,
	}
	l.MarkCreated()
	return l
}

func seedEntry(t *testing.T, st *store.Store, e *models.Entry) {
	t.Helper()
	require.NoError(t, st.Entries.Save(context.Background(), e))
}

func TestPushIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	now := time.Now().UTC()
	cat := newCategory("Work", 0, now)
	require.NoError(t, st.Categories.Save(ctx, cat))
	e := newEntry("first", now)
	e.CategoryID = cat.ID
	seedEntry(t, st, e)

	stats := &RunStats{}
	require.NoError(t, s.push(ctx, testOwner, stats))
	assert.Equal(t, 1, stats.Categories.Pushed)
	assert.Equal(t, 1, stats.Entries.Pushed)

	// No intervening mutation: the second run must not touch the remote.
	api.resetCalls()
	stats = &RunStats{}
	require.NoError(t, s.push(ctx, testOwner, stats))
	assert.Equal(t, 0, api.callCount("upsert:"))
	assert.Equal(t, 0, api.callCount("update:"))
	assert.Equal(t, 0, api.callCount("delete:"))
}

func TestPushDependencyOrdering(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	now := time.Now().UTC()
	cat := newCategory("Trips", 0, now)
	require.NoError(t, st.Categories.Save(ctx, cat))
	loc := newLocation("Cafe", now)
	require.NoError(t, st.Locations.Save(ctx, loc))
	e := newEntry("entry with refs", now)
	e.CategoryID = cat.ID
	e.LocationID = loc.ID
	seedEntry(t, st, e)

	require.NoError(t, s.push(ctx, testOwner, &RunStats{}))

	entryAt := api.callIndex("upsert:entries:" + e.ID)
	require.GreaterOrEqual(t, entryAt, 0)
	assert.Less(t, api.callIndex("upsert:categories:"+cat.ID), entryAt)
	assert.Less(t, api.callIndex("upsert:locations:"+loc.ID), entryAt)
}

func TestPushCategoriesDepthOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	now := time.Now().UTC()
	child := newCategory("Work/Go", 1, now)
	parent := newCategory("Work", 0, now)
	// Insert the child first; depth ordering must still win.
	require.NoError(t, st.Categories.Save(ctx, child))
	require.NoError(t, st.Categories.Save(ctx, parent))

	require.NoError(t, s.push(ctx, testOwner, &RunStats{}))

	assert.Less(t,
		api.callIndex("upsert:categories:"+parent.ID),
		api.callIndex("upsert:categories:"+child.ID))
}

func TestPushConflictServerWins(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	now := time.Now().UTC()

	// Local edit derived from remote version 3.
	local := newEntry("local edit", now)
	local.SyncAction = models.ActionUpdate
	local.Version = 4
	local.BaseVersion = 3
	seedEntry(t, st, local)

	// The remote has moved on to version 5.
	remoteEntry := &models.Entry{
		ID:        local.ID,
		OwnerID:   testOwner,
		Title:     "remote title",
		Body:      "remote body",
		Status:    models.StatusNone,
		CreatedAt: now,
		UpdatedAt: now.Add(time.Minute),
	}
	remoteEntry.Version = 5
	api.seed(tableEntries, entryRow(remoteEntry))

	stats := &RunStats{}
	require.NoError(t, s.push(ctx, testOwner, stats))
	assert.Equal(t, 1, stats.Conflicts)

	got, err := st.Entries.GetByID(ctx, testOwner, local.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Conflicted, got.ConflictStatus)
	assert.Equal(t, "remote title", got.Title)
	assert.Equal(t, "remote body", got.Body)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, int64(5), got.BaseVersion)
	assert.True(t, got.Synced)
	assert.Equal(t, models.ActionNone, got.SyncAction)
	assert.Equal(t, common.ErrVersionConflict.Error(), got.SyncError,
		"the row records why the local edit never made it out")

	var backup models.EntryContent
	require.NoError(t, json.Unmarshal([]byte(got.ConflictBackup), &backup))
	assert.Equal(t, "local edit", backup.Title)

	// The remote row was never overwritten.
	assert.Equal(t, 0, api.callCount("upsert:entries:"))
	assert.Equal(t, "remote title", api.row(tableEntries, local.ID)["title"])
}

func TestPushNoConflictAdvancesBase(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	now := time.Now().UTC()
	local := newEntry("edited", now)
	local.SyncAction = models.ActionUpdate
	local.Version = 4
	local.BaseVersion = 3
	seedEntry(t, st, local)

	stale := &models.Entry{ID: local.ID, OwnerID: testOwner, Title: "old", CreatedAt: now, UpdatedAt: now}
	stale.Version = 3
	api.seed(tableEntries, entryRow(stale))

	require.NoError(t, s.push(ctx, testOwner, &RunStats{}))

	got, err := st.Entries.GetByID(ctx, testOwner, local.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, int64(4), got.BaseVersion)
	assert.Equal(t, "edited", api.row(tableEntries, local.ID)["title"])
}

func TestPushDeletePurgesAfterAck(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	now := time.Now().UTC()
	e := newEntry("doomed", now)
	seedEntry(t, st, e)
	require.NoError(t, s.push(ctx, testOwner, &RunStats{}))

	require.NoError(t, st.Entries.SoftDelete(ctx, testOwner, e.ID, now.Add(time.Minute)))

	// Tombstone survives until the delete is acknowledged.
	got, err := st.Entries.GetByID(ctx, testOwner, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)

	require.NoError(t, s.push(ctx, testOwner, &RunStats{}))

	_, err = st.Entries.GetByID(ctx, testOwner, e.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NotNil(t, api.row(tableEntries, e.ID)["deleted_at"])
}

func TestPushRecordFailureIsolated(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	now := time.Now().UTC()
	bad := newEntry("bad", now)
	good := newEntry("good", now.Add(time.Second))
	seedEntry(t, st, bad)
	seedEntry(t, st, good)

	api.failWith["upsert:entries:"+bad.ID] = remote.NewError(remote.CodeUnavailable, "boom")

	stats := &RunStats{}
	require.NoError(t, s.push(ctx, testOwner, stats))
	assert.Equal(t, 1, stats.Entries.Pushed)
	assert.Equal(t, 1, stats.Entries.Failed)

	got, err := st.Entries.GetByID(ctx, testOwner, bad.ID)
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.Contains(t, got.SyncError, "boom")
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.LastAttempt)

	// The good record was still attempted and settled.
	gotGood, err := st.Entries.GetByID(ctx, testOwner, good.ID)
	require.NoError(t, err)
	assert.True(t, gotGood.Synced)
}

func TestPushRejectionStopsRetrying(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	e := newEntry("rejected", time.Now().UTC())
	seedEntry(t, st, e)
	api.failWith["upsert:entries:"+e.ID] = remote.NewError(remote.CodeRejected, "policy says no")

	stats := &RunStats{}
	require.NoError(t, s.push(ctx, testOwner, stats))

	got, err := st.Entries.GetByID(ctx, testOwner, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced, "rejected records must not be retried forever")
	assert.Equal(t, 0, stats.Entries.Failed)
}

func TestPushOrphanAttachmentSkipped(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	now := time.Now().UTC()
	a := &models.Attachment{
		ID:        uuid.NewString(),
		OwnerID:   testOwner,
		EntryID:   "no-such-entry",
		MimeType:  "image/jpeg",
		Uploaded:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.MarkCreated()
	require.NoError(t, st.Attachments.Save(ctx, a))

	require.NoError(t, s.push(ctx, testOwner, &RunStats{}))

	got, err := st.Attachments.GetByID(ctx, testOwner, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, 0, api.callCount("upsert:attachments:"), "orphans are never pushed")
}

func TestPushUploadsMissingFileMarkedHandled(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	blobs := newFakeBlobs()
	s := newTestSyncer(t, st, api, blobs)

	now := time.Now().UTC()
	e := newEntry("with photo", now)
	seedEntry(t, st, e)

	a := &models.Attachment{
		ID:        uuid.NewString(),
		OwnerID:   testOwner,
		EntryID:   e.ID,
		LocalPath: "/nonexistent/photo.jpg",
		MimeType:  "image/jpeg",
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.MarkCreated()
	require.NoError(t, st.Attachments.Save(ctx, a))

	require.NoError(t, s.push(ctx, testOwner, &RunStats{}))

	got, err := st.Attachments.GetByID(ctx, testOwner, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Uploaded, "missing local file is an expected state, not an error")
	assert.Empty(t, got.SyncError)

	keys, err := blobs.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestPushLocalOnlyNeverLeaves(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	e := newEntry("private", time.Now().UTC())
	e.LocalOnly = true
	seedEntry(t, st, e)

	require.NoError(t, s.push(ctx, testOwner, &RunStats{}))
	assert.Equal(t, 0, api.callCount("upsert:entries:"))

	// A deleted local-only row is purged immediately, never pushed.
	require.NoError(t, st.Entries.SoftDelete(ctx, testOwner, e.ID, time.Now().UTC()))
	_, err := st.Entries.GetByID(ctx, testOwner, e.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSyncSingleFlight(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	api.blockSelect = make(chan struct{})
	api.selectEntered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() { done <- s.TriggerSync(ctx) }()

	<-api.selectEntered
	err := s.TriggerSync(ctx)
	assert.ErrorIs(t, err, common.ErrSyncInProgress)

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsSyncing)

	close(api.blockSelect)
	require.NoError(t, <-done)

	status, err = s.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.IsSyncing)
}

func TestSyncWritesOneLogRecord(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	e := newEntry("logged", time.Now().UTC())
	seedEntry(t, st, e)
	api.failWith["upsert:entries:"+e.ID] = remote.NewError(remote.CodeUnavailable, "flaky")

	require.NoError(t, s.TriggerSync(ctx))

	logs, err := s.RecentLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LevelWarning, logs[0].Level)

	var stats RunStats
	require.NoError(t, json.Unmarshal([]byte(logs[0].Detail), &stats))
	assert.Equal(t, 1, stats.Entries.Failed)
}

func TestSyncTransientAbortLogsWarning(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	api.failWith["select:categories"] = remote.NewError(remote.CodeUnavailable, "down")

	require.Error(t, s.TriggerSync(ctx))

	logs, err := s.RecentLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LevelWarning, logs[0].Level,
		"an unreachable backend is retried on the next trigger, not an error")
	assert.Contains(t, logs[0].Message, "sync interrupted")
}

func TestSyncInvalidateCallback(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	api := newFakeAPI()
	s := newTestSyncer(t, st, api, nil)

	called := 0
	s.Invalidate = func() { called++ }

	require.NoError(t, s.TriggerSync(ctx))
	assert.Equal(t, 1, called)
}

func TestSyncRequiresIdentity(t *testing.T) {
	st := newTestStore(t)
	s := newTestSyncer(t, st, newFakeAPI(), nil)
	s.ident = identityDenied{}

	err := s.TriggerSync(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

type identityDenied struct{}

func (identityDenied) OwnerID(context.Context) (string, error) {
	return "", common.ErrUnauthorized
}
