package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/filex"
	"github.com/tracehq/tracesync/internal/models"
	"github.com/tracehq/tracesync/internal/remote"
)

// syncMarker is the slice of a repository the push settlement needs.
type syncMarker interface {
	MarkSynced(ctx context.Context, ownerID, id string) error
	RecordError(ctx context.Context, ownerID, id, msg string, at time.Time) error
}

// push walks unsynced records in dependency order. Stages run even when an
// earlier stage had record failures; only a local storage error aborts.
//
// The order is load-bearing: later stages reference ids created by earlier
// ones, and the remote enforces referential integrity. Deletes run
// attachment-before-entry for the same reason.
func (s *Syncer) push(ctx context.Context, owner string, stats *RunStats) error {
	stages := []func(context.Context, string, *RunStats) error{
		s.pushCategories,
		s.pushLocations,
		s.pushEntryUpserts,
		s.uploadAttachmentBinaries,
		s.pushAttachmentUpserts,
		s.pushAttachmentDeletes,
		s.pushEntryDeletes,
	}
	for _, stage := range stages {
		if err := stage(ctx, owner, stats); err != nil {
			return err
		}
	}
	return nil
}

// settle records the outcome of pushing one record. A rejection from the
// remote marks the row synced so it is not retried forever; any other
// failure is recorded on the row and the stage moves on.
func (s *Syncer) settle(ctx context.Context, repo syncMarker, owner, id string, pushErr error, c *Counts) error {
	if pushErr == nil {
		if err := repo.MarkSynced(ctx, owner, id); err != nil {
			return err
		}
		c.Pushed++
		return nil
	}
	if remote.IsRejected(pushErr) {
		s.log.Warn(ctx, "remote rejected record, dropping retry", "id", id, "error", pushErr)
		if err := repo.MarkSynced(ctx, owner, id); err != nil {
			return err
		}
		c.Pushed++
		return nil
	}
	c.Failed++
	return repo.RecordError(ctx, owner, id, pushErr.Error(), time.Now().UTC())
}

// pushCategories upserts unsynced categories parents-first. A pending
// delete travels as an upsert with deleted_at set; the remote keeps the
// tombstone for other devices to pull.
func (s *Syncer) pushCategories(ctx context.Context, owner string, stats *RunStats) error {
	pending, err := s.store.Categories.Unsynced(ctx, owner)
	if err != nil {
		return fmt.Errorf("list unsynced categories: %w", err)
	}
	for _, c := range pending {
		pushErr := s.api.Upsert(ctx, tableCategories, categoryRow(c), "id")
		if err := s.settle(ctx, s.store.Categories, owner, c.ID, pushErr, &stats.Categories); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) pushLocations(ctx context.Context, owner string, stats *RunStats) error {
	pending, err := s.store.Locations.Unsynced(ctx, owner)
	if err != nil {
		return fmt.Errorf("list unsynced locations: %w", err)
	}
	for _, l := range pending {
		pushErr := s.api.Upsert(ctx, tableLocations, locationRow(l), "id")
		if err := s.settle(ctx, s.store.Locations, owner, l.ID, pushErr, &stats.Locations); err != nil {
			return err
		}
	}
	return nil
}

// pushEntryUpserts pushes pending entry creates and updates. Updates run
// the version check first: when the remote moved past our base version the
// server wins, the local edit is backed up, and nothing is pushed.
func (s *Syncer) pushEntryUpserts(ctx context.Context, owner string, stats *RunStats) error {
	pending, err := s.store.Entries.Unsynced(ctx, owner)
	if err != nil {
		return fmt.Errorf("list unsynced entries: %w", err)
	}
	for _, e := range pending {
		if e.SyncAction != models.ActionCreate && e.SyncAction != models.ActionUpdate {
			continue
		}

		if e.SyncAction == models.ActionUpdate {
			remoteEntry, fetchErr := s.fetchRemoteEntry(ctx, owner, e.ID)
			if fetchErr != nil {
				if err := s.settle(ctx, s.store.Entries, owner, e.ID, fetchErr, &stats.Entries); err != nil {
					return err
				}
				continue
			}
			if remoteEntry != nil && Resolve(e, remoteEntry.Version) == DecisionConflict {
				if err := AcceptRemote(e, remoteEntry); err != nil {
					return err
				}
				// Record why the local edit never made it out.
				e.SyncError = common.ErrVersionConflict.Error()
				if err := s.store.Entries.Save(ctx, e); err != nil {
					return err
				}
				s.log.Warn(ctx, "entry conflict, remote version kept",
					"id", e.ID, "error", common.ErrVersionConflict)
				stats.Conflicts++
				continue
			}
		}

		pushErr := s.api.Upsert(ctx, tableEntries, entryRow(e), "id")
		if err := s.settle(ctx, s.store.Entries, owner, e.ID, pushErr, &stats.Entries); err != nil {
			return err
		}
	}
	return nil
}

// fetchRemoteEntry returns nil without error when the remote has no row.
func (s *Syncer) fetchRemoteEntry(ctx context.Context, owner, id string) (*models.Entry, error) {
	rows, err := s.api.Select(ctx, tableEntries, remote.Filter{
		Eq: map[string]any{"id": id, "owner_id": owner},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return entryFromRow(rows[0]), nil
}

// uploadAttachmentBinaries pushes local files to blob storage. A missing
// local file is an expected state for orphaned attachments, so the row is
// marked uploaded and counted as handled rather than erred.
func (s *Syncer) uploadAttachmentBinaries(ctx context.Context, owner string, stats *RunStats) error {
	if s.blobs == nil {
		return nil
	}
	pending, err := s.store.Attachments.PendingUpload(ctx, owner)
	if err != nil {
		return fmt.Errorf("list pending uploads: %w", err)
	}
	for _, a := range pending {
		if a.LocalPath == "" || !filex.Exists(a.LocalPath) {
			if err := s.store.Attachments.MarkUploaded(ctx, owner, a.ID, a.RemotePath); err != nil {
				return err
			}
			stats.Attachments.Pushed++
			continue
		}

		data, readErr := filex.Read(a.LocalPath)
		if readErr != nil {
			stats.Attachments.Failed++
			if err := s.store.Attachments.RecordError(ctx, owner, a.ID, readErr.Error(), time.Now().UTC()); err != nil {
				return err
			}
			continue
		}

		key := a.RemotePath
		if key == "" {
			key = storageKey(owner)
		}
		if uploadErr := s.blobs.Upload(ctx, key, data); uploadErr != nil {
			stats.Attachments.Failed++
			if err := s.store.Attachments.RecordError(ctx, owner, a.ID, uploadErr.Error(), time.Now().UTC()); err != nil {
				return err
			}
			continue
		}
		if err := s.store.Attachments.MarkUploaded(ctx, owner, a.ID, key); err != nil {
			return err
		}
		stats.Attachments.Pushed++
	}
	return nil
}

// storageKey generates a fresh blob key, partitioned by owner and date.
func storageKey(owner string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("%s/%d/%d/%d/%v", owner, d.Year(), d.Month(), d.Day(), uuid.New())
}

// pushAttachmentUpserts pushes pending attachment metadata. Orphans (parent
// entry missing or deleted) are marked synced without pushing; the orphan
// scan will queue their deletion when the user runs it.
func (s *Syncer) pushAttachmentUpserts(ctx context.Context, owner string, stats *RunStats) error {
	pending, err := s.store.Attachments.PendingUpsert(ctx, owner)
	if err != nil {
		return fmt.Errorf("list pending attachment upserts: %w", err)
	}
	for _, a := range pending {
		parent, getErr := s.store.Entries.GetByID(ctx, owner, a.EntryID)
		if getErr != nil && !errors.Is(getErr, common.ErrNotFound) {
			return getErr
		}
		if getErr != nil || parent.DeletedAt != nil {
			if err := s.store.Attachments.MarkSynced(ctx, owner, a.ID); err != nil {
				return err
			}
			stats.Attachments.Pushed++
			continue
		}

		pushErr := s.api.Upsert(ctx, tableAttachments, attachmentRow(a), "id")
		if err := s.settle(ctx, s.store.Attachments, owner, a.ID, pushErr, &stats.Attachments); err != nil {
			return err
		}
	}
	return nil
}

// pushAttachmentDeletes hard-deletes attachment rows remotely (already
// absent counts as success) and best-effort removes their blobs.
func (s *Syncer) pushAttachmentDeletes(ctx context.Context, owner string, stats *RunStats) error {
	pending, err := s.store.Attachments.PendingDelete(ctx, owner)
	if err != nil {
		return fmt.Errorf("list pending attachment deletes: %w", err)
	}
	for _, a := range pending {
		pushErr := s.api.Delete(ctx, tableAttachments, remote.Filter{
			Eq: map[string]any{"id": a.ID, "owner_id": owner},
		})
		if remote.IsNotFound(pushErr) {
			pushErr = nil
		}
		if pushErr == nil && s.blobs != nil && a.RemotePath != "" {
			if rmErr := s.blobs.Remove(ctx, []string{a.RemotePath}); rmErr != nil {
				s.log.Warn(ctx, "could not remove attachment blob", "id", a.ID, "error", rmErr)
			}
		}
		if err := s.settle(ctx, s.store.Attachments, owner, a.ID, pushErr, &stats.Attachments); err != nil {
			return err
		}
	}
	return nil
}

// pushEntryDeletes propagates entry soft-deletes as a remote tombstone
// update, after attachment deletes so referential checks cannot reject it.
// A remote row that is already gone counts as success.
func (s *Syncer) pushEntryDeletes(ctx context.Context, owner string, stats *RunStats) error {
	pending, err := s.store.Entries.Unsynced(ctx, owner)
	if err != nil {
		return fmt.Errorf("list unsynced entries: %w", err)
	}
	for _, e := range pending {
		if e.SyncAction != models.ActionDelete {
			continue
		}
		pushErr := s.api.Update(ctx, tableEntries, remote.Row{
			"deleted_at": nullableTime(e.DeletedAt),
			"updated_at": e.UpdatedAt.UTC(),
			"version":    e.Version,
		}, remote.Filter{Eq: map[string]any{"id": e.ID, "owner_id": owner}})
		if remote.IsNotFound(pushErr) {
			pushErr = nil
		}
		if err := s.settle(ctx, s.store.Entries, owner, e.ID, pushErr, &stats.Entries); err != nil {
			return err
		}
	}
	return nil
}
