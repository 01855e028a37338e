package syncer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/models"
	"github.com/tracehq/tracesync/internal/store"
	"github.com/tracehq/tracesync/internal/store/entries"
)

// MarkOrphanAttachments scans attachments not already pending deletion and
// queues a delete for every one whose parent entry is missing or deleted.
// It is on-demand only: the scan is O(n) over all attachments. Returns the
// number of attachments marked.
func (s *Syncer) MarkOrphanAttachments(ctx context.Context) (int, error) {
	owner, err := s.ident.OwnerID(ctx)
	if err != nil {
		return 0, err
	}

	active, err := s.store.Attachments.ListActive(ctx, owner)
	if err != nil {
		return 0, err
	}

	marked := 0
	now := time.Now().UTC()
	for _, a := range active {
		parent, err := s.store.Entries.GetByID(ctx, owner, a.EntryID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return marked, err
		}
		if err == nil && parent.DeletedAt == nil {
			continue
		}
		if err := s.store.Attachments.SoftDelete(ctx, owner, a.ID, now); err != nil {
			return marked, err
		}
		marked++
	}
	s.log.Info(ctx, "orphan scan finished", "marked", marked, "scanned", len(active))
	return marked, nil
}

// MergeDuplicateLocations collapses locations sharing a normalized name and
// address. The most-referenced duplicate wins; every entry pointing at a
// loser is repointed and the loser soft-deleted, all in one transaction.
// Returns the number of locations merged away.
func (s *Syncer) MergeDuplicateLocations(ctx context.Context) (int, error) {
	owner, err := s.ident.OwnerID(ctx)
	if err != nil {
		return 0, err
	}

	locs, err := s.store.Locations.List(ctx, owner, false)
	if err != nil {
		return 0, err
	}

	groups := make(map[string][]*models.Location)
	for _, l := range locs {
		key := locationKey(l)
		groups[key] = append(groups[key], l)
	}

	merged := 0
	now := time.Now().UTC()
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}

		refs := make(map[string]int, len(group))
		for _, l := range group {
			referencing, err := s.store.Entries.List(ctx, owner, entries.ListFilter{LocationID: l.ID})
			if err != nil {
				return merged, err
			}
			refs[l.ID] = len(referencing)
		}

		// Most-referenced wins; ties go to the oldest row so repeated runs
		// pick the same winner.
		sort.Slice(group, func(i, j int) bool {
			if refs[group[i].ID] != refs[group[j].ID] {
				return refs[group[i].ID] > refs[group[j].ID]
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
		winner, losers := group[0], group[1:]

		err := s.store.InTx(ctx, func(ctx context.Context, tx *store.Store) error {
			for _, loser := range losers {
				if _, err := tx.Entries.ReassignLocation(ctx, owner, loser.ID, winner.ID); err != nil {
					return err
				}
				if err := tx.Locations.SoftDelete(ctx, owner, loser.ID, now); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return merged, err
		}
		merged += len(losers)
	}

	s.log.Info(ctx, "duplicate location merge finished", "merged", merged)
	return merged, nil
}

// PruneRemoteBlobs removes uploaded binaries no attachment row references
// anymore. A blob belonging to a pending delete may go here instead of in
// the delete stage; blob removal is idempotent either way. On-demand only.
func (s *Syncer) PruneRemoteBlobs(ctx context.Context) (int, error) {
	if s.blobs == nil {
		return 0, nil
	}
	owner, err := s.ident.OwnerID(ctx)
	if err != nil {
		return 0, err
	}

	keys, err := s.blobs.List(ctx, owner+"/")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	active, err := s.store.Attachments.ListActive(ctx, owner)
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]bool, len(active))
	for _, a := range active {
		if a.RemotePath != "" {
			referenced[a.RemotePath] = true
		}
	}

	var stale []string
	for _, k := range keys {
		if !referenced[k] {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.blobs.Remove(ctx, stale); err != nil {
		return 0, err
	}
	s.log.Info(ctx, "remote blob prune finished", "removed", len(stale), "listed", len(keys))
	return len(stale), nil
}

// locationKey normalizes the fields that identify a duplicate: display name
// plus the current street address and city, lowercased and trimmed.
func locationKey(l *models.Location) string {
	norm := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	return norm(l.Name) + "|" + norm(l.Current.Address) + "|" + norm(l.Current.City)
}
