package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/remote"
)

// pull merges remote changes into the local store. The checkpoint advances
// to the run's start time only after every stage succeeds, so a failed pull
// rescans the same window next time.
func (s *Syncer) pull(ctx context.Context, owner string, full bool, stats *RunStats) error {
	start := time.Now().UTC()

	checkpoint, err := s.pullCheckpoint(ctx, owner, full)
	if err != nil {
		return err
	}

	if err := s.pullCategories(ctx, owner, stats); err != nil {
		return err
	}
	if err := s.pullEntries(ctx, owner, checkpoint, stats); err != nil {
		return err
	}
	if err := s.pullAttachments(ctx, owner, stats); err != nil {
		return err
	}

	// Even a no-change pull advances the checkpoint, so the same empty
	// window is not rescanned.
	return s.store.Meta.SetCheckpoint(ctx, owner, start)
}

// pullCheckpoint resolves the incremental boundary. A nil return means full
// pull: forced, never synced before, or the local store is empty (a fresh
// device with a stale checkpoint row must still hydrate completely).
func (s *Syncer) pullCheckpoint(ctx context.Context, owner string, full bool) (*time.Time, error) {
	if full {
		return nil, nil
	}
	cp, err := s.store.Meta.GetCheckpoint(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if cp == nil {
		return nil, nil
	}
	active, err := s.store.Entries.CountActive(ctx, owner)
	if err != nil {
		return nil, err
	}
	if active == 0 {
		return nil, nil
	}
	return cp, nil
}

// pullCategories always pulls the full set (cheap, low cardinality). The
// server wins unconditionally; writes are skipped on timestamp-only churn.
func (s *Syncer) pullCategories(ctx context.Context, owner string, stats *RunStats) error {
	rows, err := s.api.Select(ctx, tableCategories, remote.Filter{
		Eq: map[string]any{"owner_id": owner},
	})
	if err != nil {
		return fmt.Errorf("pull categories: %w", err)
	}

	for _, row := range rows {
		rc := categoryFromRow(row)
		local, err := s.store.Categories.GetByID(ctx, owner, rc.ID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			if rc.DeletedAt != nil {
				continue
			}
			rc.StampPulled()
			if err := s.store.Categories.Save(ctx, rc); err != nil {
				return err
			}
			stats.Pulled++
		case err != nil:
			return err
		case rc.DeletedAt != nil:
			if local.DeletedAt != nil {
				continue
			}
			if !s.tombstones() {
				if err := s.store.Categories.Purge(ctx, owner, rc.ID); err != nil {
					return err
				}
				stats.Pulled++
				continue
			}
			rc.StampPulled()
			if err := s.store.Categories.Save(ctx, rc); err != nil {
				return err
			}
			stats.Pulled++
		case local.ContentEquals(rc) && local.DeletedAt == nil:
			// Timestamp-only churn.
		default:
			rc.StampPulled()
			if err := s.store.Categories.Save(ctx, rc); err != nil {
				return err
			}
			stats.Pulled++
		}
	}
	return nil
}

// pullEntries fetches rows changed since the checkpoint (all rows when nil),
// newest first, and merges them last-write-wins by updated_at.
func (s *Syncer) pullEntries(ctx context.Context, owner string, checkpoint *time.Time, stats *RunStats) error {
	rows, err := s.api.Select(ctx, tableEntries, remote.Filter{
		Eq:           map[string]any{"owner_id": owner},
		UpdatedAfter: checkpoint,
		OrderBy:      "updated_at",
		Descending:   true,
	})
	if err != nil {
		return fmt.Errorf("pull entries: %w", err)
	}

	for _, row := range rows {
		re := entryFromRow(row)
		local, err := s.store.Entries.GetByID(ctx, owner, re.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		exists := err == nil

		switch {
		case re.DeletedAt != nil && !exists:
			// A tombstone for a row we never had.
		case re.DeletedAt != nil:
			if local.DeletedAt != nil {
				continue
			}
			if !s.tombstones() {
				if err := s.store.Entries.Purge(ctx, owner, re.ID); err != nil {
					return err
				}
				stats.Pulled++
				continue
			}
			re.StampPulled(re.Version)
			if err := s.store.Entries.Save(ctx, re); err != nil {
				return err
			}
			stats.Pulled++
		case !exists:
			re.StampPulled(re.Version)
			if err := s.store.Entries.Save(ctx, re); err != nil {
				return err
			}
			stats.Pulled++
		case re.UpdatedAt.After(local.UpdatedAt):
			re.StampPulled(re.Version)
			if err := s.store.Entries.Save(ctx, re); err != nil {
				return err
			}
			stats.Pulled++
		default:
			// Local is at least as new: leave it for the next push.
		}
	}
	return nil
}

// pullAttachments is always a full metadata pull; binaries are fetched on
// demand, never during sync. Existing rows are rewritten only when position
// or MIME type differ.
func (s *Syncer) pullAttachments(ctx context.Context, owner string, stats *RunStats) error {
	rows, err := s.api.Select(ctx, tableAttachments, remote.Filter{
		Eq: map[string]any{"owner_id": owner},
	})
	if err != nil {
		return fmt.Errorf("pull attachments: %w", err)
	}

	for _, row := range rows {
		ra := attachmentFromRow(row)
		local, err := s.store.Attachments.GetByID(ctx, owner, ra.ID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			if ra.DeletedAt != nil {
				continue
			}
			ra.Uploaded = true
			ra.StampPulled(ra.Version)
			if err := s.store.Attachments.Save(ctx, ra); err != nil {
				return err
			}
			stats.Pulled++
		case err != nil:
			return err
		case ra.DeletedAt != nil:
			if local.DeletedAt != nil {
				continue
			}
			if !s.tombstones() {
				if err := s.store.Attachments.Purge(ctx, owner, ra.ID); err != nil {
					return err
				}
				stats.Pulled++
				continue
			}
			local.DeletedAt = ra.DeletedAt
			local.StampPulled(ra.Version)
			if err := s.store.Attachments.Save(ctx, local); err != nil {
				return err
			}
			stats.Pulled++
		case local.Position != ra.Position || local.MimeType != ra.MimeType:
			local.Position = ra.Position
			local.MimeType = ra.MimeType
			local.StampPulled(ra.Version)
			if err := s.store.Attachments.Save(ctx, local); err != nil {
				return err
			}
			stats.Pulled++
		}
	}
	return nil
}
