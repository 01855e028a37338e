package syncer

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/filex"
	"github.com/tracehq/tracesync/internal/models"
)

// ImportAttachment moves a local file into the attachment directory and
// queues it for upload on the next sync. The parent entry must exist and be
// alive. Returns the new attachment row.
func (s *Syncer) ImportAttachment(ctx context.Context, entryID, srcPath string) (*models.Attachment, error) {
	owner, err := s.ident.OwnerID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	entry, err := s.store.Entries.GetByID(ctx, owner, entryID)
	if err != nil {
		return nil, err
	}
	if entry.DeletedAt != nil {
		return nil, common.ErrNotFound
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", srcPath, err)
	}

	siblings, err := s.store.Attachments.ListByEntry(ctx, owner, entryID)
	if err != nil {
		return nil, err
	}

	dir, err := filex.EnsureSubDir(s.cfg.AttachmentDir, owner)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ext := filepath.Ext(srcPath)
	dst := filepath.Join(dir, id+ext)
	if err := filex.Move(srcPath, dst); err != nil {
		return nil, err
	}

	size := info.Size()
	now := time.Now().UTC()
	a := &models.Attachment{
		ID:        id,
		OwnerID:   owner,
		EntryID:   entryID,
		LocalPath: dst,
		MimeType:  mime.TypeByExtension(ext),
		SizeBytes: &size,
		Position:  len(siblings),
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.MarkCreated()

	if err := s.store.Attachments.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
