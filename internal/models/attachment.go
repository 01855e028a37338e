package models

import "time"

// Attachment is a photo (or other binary) hanging off an entry. The binary
// itself lives on disk at LocalPath and in blob storage at RemotePath; the
// row here is metadata.
type Attachment struct {
	ID      string
	OwnerID string
	EntryID string

	RemotePath string
	LocalPath  string
	MimeType   string

	SizeBytes *int64
	Width     *int64
	Height    *int64

	// Position is the ordinal position within the entry.
	Position int

	// Uploaded is true once the binary has been pushed to blob storage.
	Uploaded bool

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time

	Envelope
}
