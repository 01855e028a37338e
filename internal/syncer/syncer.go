// Package syncer is the bidirectional sync engine: it pushes unsynced local
// records to the remote backend in dependency order, pulls remote changes
// back under last-write-wins, resolves entry version conflicts server-wins
// with a local backup, and keeps a per-run diagnostic log.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/config"
	"github.com/tracehq/tracesync/internal/identity"
	"github.com/tracehq/tracesync/internal/logging"
	"github.com/tracehq/tracesync/internal/models"
	"github.com/tracehq/tracesync/internal/netx"
	"github.com/tracehq/tracesync/internal/remote"
	"github.com/tracehq/tracesync/internal/store"
)

// Counts tallies one entity kind within a run.
type Counts struct {
	Pushed int `json:"pushed"`
	Failed int `json:"failed"`
}

// RunStats summarizes one sync run for the diagnostic log.
type RunStats struct {
	Categories  Counts `json:"categories"`
	Locations   Counts `json:"locations"`
	Entries     Counts `json:"entries"`
	Attachments Counts `json:"attachments"`
	Conflicts   int    `json:"conflicts"`
	Pulled      int    `json:"pulled"`
}

// HasErrors reports whether any stage recorded a per-record failure.
func (s *RunStats) HasErrors() bool {
	return s.Categories.Failed+s.Locations.Failed+s.Entries.Failed+s.Attachments.Failed > 0
}

// Status is the sync state exposed to the surrounding application.
type Status struct {
	UnsyncedCount int
	IsSyncing     bool
}

// Syncer orchestrates push and pull against the remote backend. At most one
// run is active at a time; concurrent triggers no-op.
type Syncer struct {
	store *store.Store
	api   remote.API
	blobs remote.BlobStore
	ident identity.Provider
	cfg   *config.Config
	log   logging.Logger

	// Invalidate, when set, is called after every successful run so
	// dependent read caches can refresh.
	Invalidate func()

	// tombstones reports whether the local schema keeps soft-deleted rows;
	// pull purges remote deletes outright when it does not.
	tombstones func() bool

	syncing atomic.Bool
}

// New wires a Syncer. All collaborators are required except blobs, which may
// be nil when attachment binaries are not synced.
func New(st *store.Store, api remote.API, blobs remote.BlobStore, ident identity.Provider, cfg *config.Config, log logging.Logger) *Syncer {
	return &Syncer{
		store:      st,
		api:        api,
		blobs:      blobs,
		ident:      ident,
		cfg:        cfg,
		log:        log,
		tombstones: st.SupportsTombstones,
	}
}

// TriggerSync runs one push+pull cycle. It returns common.ErrSyncInProgress
// when a run is already active, common.ErrOffline when the connectivity
// probe fails, and the identity error when nobody is signed in.
func (s *Syncer) TriggerSync(ctx context.Context) error {
	return s.run(ctx, false)
}

// ForcePull runs one cycle with the pull escalated to a full refresh,
// ignoring the stored checkpoint.
func (s *Syncer) ForcePull(ctx context.Context) error {
	return s.run(ctx, true)
}

func (s *Syncer) run(ctx context.Context, fullPull bool) error {
	if !s.syncing.CompareAndSwap(false, true) {
		return common.ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	owner, err := s.ident.OwnerID(ctx)
	if err != nil {
		return fmt.Errorf("sync requires identity: %w", err)
	}
	if s.cfg.OnlineCheckAddr != "" && !netx.Online(s.cfg.OnlineCheckAddr, s.cfg.OnlineCheckTimeout) {
		return common.ErrOffline
	}

	start := time.Now()
	stats := &RunStats{}

	runErr := s.push(ctx, owner, stats)
	if runErr == nil {
		runErr = s.pull(ctx, owner, fullPull, stats)
	}

	if runErr == nil && s.Invalidate != nil {
		s.Invalidate()
	}

	s.appendLog(ctx, owner, stats, runErr, time.Since(start))
	return runErr
}

// appendLog writes the single per-run diagnostic record. Logging failures
// must not mask the run result.
func (s *Syncer) appendLog(ctx context.Context, owner string, stats *RunStats, runErr error, took time.Duration) {
	level := models.LevelInfo
	msg := "sync completed"
	switch {
	case remote.IsTransient(runErr):
		// The backend was unreachable or throttling; the next trigger
		// retries, so this is not an error-level event.
		level = models.LevelWarning
		msg = fmt.Sprintf("sync interrupted: %v", runErr)
	case runErr != nil:
		level = models.LevelError
		msg = fmt.Sprintf("sync aborted: %v", runErr)
	case stats.HasErrors():
		level = models.LevelWarning
		msg = "sync completed with record errors"
	}

	detail, err := json.Marshal(stats)
	if err != nil {
		detail = []byte("{}")
	}

	rec := &models.SyncLogRecord{
		OwnerID:    owner,
		Level:      level,
		Message:    msg,
		Detail:     string(detail),
		DurationMS: took.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SyncLog.Append(ctx, rec); err != nil {
		s.log.Warn(ctx, "could not append sync log record", "error", err)
	}
}

// Status reports the pending-change count and whether a run is active. An
// unauthenticated client reports zero pending changes.
func (s *Syncer) Status(ctx context.Context) (Status, error) {
	st := Status{IsSyncing: s.syncing.Load()}

	owner, err := s.ident.OwnerID(ctx)
	if err != nil {
		return st, nil
	}
	n, err := s.store.CountUnsynced(ctx, owner)
	if err != nil {
		return st, err
	}
	st.UnsyncedCount = n
	return st, nil
}

// RecentLogs returns up to limit diagnostic records, newest first.
func (s *Syncer) RecentLogs(ctx context.Context, limit int) ([]models.SyncLogRecord, error) {
	owner, err := s.ident.OwnerID(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.SyncLog.Recent(ctx, owner, limit)
}
