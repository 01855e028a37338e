package models

import (
	"encoding/json"
	"time"
)

// EntryStatus is the task-like state of a journal entry.
type EntryStatus string

const (
	StatusNone       EntryStatus = "none"
	StatusIncomplete EntryStatus = "incomplete"
	StatusInProgress EntryStatus = "in_progress"
	StatusComplete   EntryStatus = "complete"
)

// Entry is a journal entry, the primary syncable kind.
type Entry struct {
	ID      string
	OwnerID string

	Title    string
	Body     string
	Tags     []string
	Mentions []string

	CategoryID string
	LocationID string

	// GPS coordinates captured at creation time, if any.
	Latitude  *float64
	Longitude *float64

	Status      EntryStatus
	DueAt       *time.Time
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time

	Envelope
}

// EntryContent is the snapshot of an entry's user-editable fields. It is
// what gets preserved in ConflictBackup when a local edit loses a conflict.
type EntryContent struct {
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	Tags        []string    `json:"tags,omitempty"`
	Mentions    []string    `json:"mentions,omitempty"`
	CategoryID  string      `json:"category_id,omitempty"`
	LocationID  string      `json:"location_id,omitempty"`
	Status      EntryStatus `json:"status,omitempty"`
	DueAt       *time.Time  `json:"due_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Content snapshots the entry's editable fields.
func (e *Entry) Content() EntryContent {
	return EntryContent{
		Title:       e.Title,
		Body:        e.Body,
		Tags:        e.Tags,
		Mentions:    e.Mentions,
		CategoryID:  e.CategoryID,
		LocationID:  e.LocationID,
		Status:      e.Status,
		DueAt:       e.DueAt,
		CompletedAt: e.CompletedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// ApplyContent overwrites the entry's editable fields from a snapshot.
func (e *Entry) ApplyContent(c EntryContent) {
	e.Title = c.Title
	e.Body = c.Body
	e.Tags = c.Tags
	e.Mentions = c.Mentions
	e.CategoryID = c.CategoryID
	e.LocationID = c.LocationID
	e.Status = c.Status
	e.DueAt = c.DueAt
	e.CompletedAt = c.CompletedAt
	e.UpdatedAt = c.UpdatedAt
}

// BackupContent serializes the current editable fields for ConflictBackup.
func (e *Entry) BackupContent() (string, error) {
	b, err := json.Marshal(e.Content())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
