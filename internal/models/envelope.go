// Package models defines the syncable entity kinds of the journal store and
// the bookkeeping fields the sync engine maintains on them. Each kind is a
// distinct struct; push/pull logic switches on the concrete type.
package models

import "time"

// Action is the pending sync operation recorded on a row.
type Action string

const (
	ActionNone   Action = ""
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ConflictStatus tracks whether a record lost a version conflict.
type ConflictStatus string

const (
	ConflictNone     ConflictStatus = ""
	Conflicted       ConflictStatus = "conflicted"
	ConflictResolved ConflictStatus = "resolved"
)

// Marks is the sync bookkeeping subset shared by all entity kinds.
// Categories and locations carry only this; they are reconciled by
// timestamp, never by version.
type Marks struct {
	// LocalOnly records must never leave the device.
	LocalOnly bool

	// Synced is true when the row matches the last-known-remote state.
	Synced bool

	// SyncAction is the pending operation, if any.
	SyncAction Action

	// Last push failure diagnostics.
	SyncError   string
	RetryCount  int
	LastAttempt *time.Time
}

// Envelope is the full sync envelope carried by entries and attachments.
type Envelope struct {
	Marks

	// Version increments on every local mutation.
	Version int64

	// BaseVersion is the remote version this row's local state derives from.
	BaseVersion int64

	ConflictStatus ConflictStatus

	// ConflictBackup holds the JSON snapshot of a local edit that lost a
	// conflict. Empty when no backup exists.
	ConflictBackup string
}

// HasLocalEdits reports whether unpushed local edits exist.
func (e *Envelope) HasLocalEdits() bool {
	return e.Version > e.BaseVersion
}

// MarkCreated stamps a freshly created local record.
func (m *Marks) MarkCreated() {
	m.Synced = false
	m.SyncAction = ActionCreate
}

// MarkChanged stamps a local mutation. A pending create stays a create so
// the row is still pushed as new.
func (m *Marks) MarkChanged() {
	m.Synced = false
	if m.SyncAction != ActionCreate {
		m.SyncAction = ActionUpdate
	}
}

// MarkDeleted stamps a soft delete for push.
func (m *Marks) MarkDeleted() {
	m.Synced = false
	m.SyncAction = ActionDelete
}

// StampPulled resets the marks after a pull: the row now matches remote.
func (m *Marks) StampPulled() {
	m.Synced = true
	m.SyncAction = ActionNone
	m.SyncError = ""
	m.RetryCount = 0
}

// MarkChanged stamps a local mutation and bumps the version.
func (e *Envelope) MarkChanged() {
	e.Marks.MarkChanged()
	e.Version++
}

// MarkCreated stamps a freshly created record at version 1.
func (e *Envelope) MarkCreated() {
	e.Marks.MarkCreated()
	e.Version = 1
	e.BaseVersion = 0
}

// MarkDeleted stamps a soft delete and bumps the version.
func (e *Envelope) MarkDeleted() {
	e.Marks.MarkDeleted()
	e.Version++
}

// StampPulled resets the envelope after a pull at the given remote version.
func (e *Envelope) StampPulled(remoteVersion int64) {
	e.Marks.StampPulled()
	e.Version = remoteVersion
	e.BaseVersion = remoteVersion
}

// StampPushed records a successful push of the current local state.
func (e *Envelope) StampPushed() {
	e.Marks.StampPulled()
	e.BaseVersion = e.Version
}
