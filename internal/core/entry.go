package core

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a user-captured pinned note/command/todo bound to a filesystem
// path and an optional Workspace. Content (Value/Desc/Data) is opaque to
// the sync core — it is only ever moved, never interpreted.
type Entry struct {
	ID          uuid.UUID
	Value       string
	Desc        *string
	Data        *string
	Kind        EntryKind
	Path        string
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	Version     SyncVersion
	WorkspaceID *WorkspaceID
	HostID      HostID
}

// NewEntry creates a fresh local entry, stamped with the current time and
// the first sync version.
func NewEntry(value, path string, workspaceID *WorkspaceID, hostID HostID) Entry {
	return Entry{
		ID:        uuid.New(),
		Value:     value,
		Kind:      KindNote,
		Path:      path,
		UpdatedAt: time.Now().UTC(),
		Version:   FirstVersion,
		WorkspaceID: workspaceID,
		HostID:      hostID,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing shared
// in-memory snapshots.
func (e Entry) Clone() Entry {
	c := e
	if e.Desc != nil {
		d := *e.Desc
		c.Desc = &d
	}
	if e.Data != nil {
		d := *e.Data
		c.Data = &d
	}
	if e.DeletedAt != nil {
		d := *e.DeletedAt
		c.DeletedAt = &d
	}
	if e.WorkspaceID != nil {
		w := *e.WorkspaceID
		c.WorkspaceID = &w
	}
	return c
}

// Tombstone returns a copy of e marked deleted at t, with UpdatedAt set to t
// and Version set to version (callers pass the bumped version).
func (e Entry) Tombstone(t time.Time, version SyncVersion) Entry {
	c := e.Clone()
	c.DeletedAt = &t
	c.UpdatedAt = t
	c.Version = version
	return c
}

// SyncClock implements the dual (updated_at, version) causal clock that
// ConflictEngine compares — see internal/conflict.
func (e Entry) SyncClock() (time.Time, SyncVersion) { return e.UpdatedAt, e.Version }

// WithConflictDeletedAt returns a clone stamped with a remote tombstone's
// deleted_at, without bumping version — used when a delete conflict
// quarantines the local revision instead of applying the tombstone (see
// internal/conflict.ReconcileDeletes). Unlike Tombstone, the clone is
// never actually persisted as deleted; it is only a Conflict payload.
func (e Entry) WithConflictDeletedAt(t time.Time) Entry {
	c := e.Clone()
	c.DeletedAt = &t
	return c
}
