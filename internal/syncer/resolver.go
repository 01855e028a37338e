package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tracehq/tracesync/internal/models"
)

// Decision is the resolver's verdict for one entry about to be pushed.
type Decision int

const (
	// DecisionPush means the remote has not moved past our base: push.
	DecisionPush Decision = iota

	// DecisionConflict means the remote moved on; keep the server's row and
	// back up the local edit.
	DecisionConflict
)

// Resolve decides what to do with a local entry update given the version
// currently on the remote. Only entries are versioned; categories and
// locations reconcile purely by timestamp.
func Resolve(local *models.Entry, remoteVersion int64) Decision {
	if remoteVersion > local.BaseVersion {
		return DecisionConflict
	}
	return DecisionPush
}

// AcceptRemote applies the server-wins resolution in place: the losing local
// edit is snapshotted into ConflictBackup, the remote content replaces it,
// and the row converges on the remote version with nothing left to push.
func AcceptRemote(local, remoteEntry *models.Entry) error {
	backup, err := local.BackupContent()
	if err != nil {
		return fmt.Errorf("snapshot conflicting edit: %w", err)
	}

	local.ApplyContent(remoteEntry.Content())
	local.DeletedAt = remoteEntry.DeletedAt
	local.ConflictBackup = backup
	local.StampPulled(remoteEntry.Version)
	local.ConflictStatus = models.Conflicted
	return nil
}

// ResolveConflict settles a conflicted entry by hand. With restore set the
// backed-up local content is reapplied and queued for push; otherwise the
// remote content stands. Either way the backup is cleared and the row
// marked resolved.
func (s *Syncer) ResolveConflict(ctx context.Context, entryID string, restore bool) error {
	owner, err := s.ident.OwnerID(ctx)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}
	e, err := s.store.Entries.GetByID(ctx, owner, entryID)
	if err != nil {
		return err
	}
	if e.ConflictStatus != models.Conflicted {
		return fmt.Errorf("entry %s has no conflict pending", entryID)
	}

	if restore {
		var c models.EntryContent
		if err := json.Unmarshal([]byte(e.ConflictBackup), &c); err != nil {
			return fmt.Errorf("decode conflict backup: %w", err)
		}
		e.ApplyContent(c)
		e.UpdatedAt = time.Now().UTC()
		e.MarkChanged()
	}
	e.ConflictStatus = models.ConflictResolved
	e.ConflictBackup = ""
	e.SyncError = ""
	return s.store.Entries.Save(ctx, e)
}
