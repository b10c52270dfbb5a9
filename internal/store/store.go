// Package store defines the LocalStore contract that the sync core speaks
// to. internal/store/sqlite provides the concrete sqlite-backed
// implementation; this package only carries the interface,
// the change-feed query shapes, and the typed error taxonomy so that
// internal/sync and internal/conflict never import database/sql directly.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/amaydixit11/pinsync/internal/core"
)

// ErrorKind classifies a store failure.
type ErrorKind int

const (
	Io ErrorKind = iota
	Integrity
)

func (k ErrorKind) String() string {
	if k == Integrity {
		return "integrity"
	}
	return "io"
}

// Error is the typed store failure.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("store: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// WorkspaceLookup resolves a Workspace by one of three keys, checked in
// the order ID, Name, Path — the first non-nil field wins. Git, when set
// alongside Path, narrows the path match to workspaces with that origin.
type WorkspaceLookup struct {
	ID   *core.WorkspaceID
	Name *string
	Path *core.WorkspacePath
	Git  *string
}

// EntryFilter narrows LocalStore.ListEntries. A zero-value filter matches
// every non-deleted entry.
type EntryFilter struct {
	Kind        *core.EntryKind
	Path        *string
	WorkspaceID *core.WorkspaceID
	Search      string
}

// LocalStore is the durable store of Entries, Workspaces, and the
// Conflicts quarantine. Every mutator is transactional and all-or-nothing
// per batch; no row-level locking is exposed to callers.
type LocalStore interface {
	SaveEntries(ctx context.Context, entries []core.Entry) error
	SaveWorkspaces(ctx context.Context, workspaces []core.Workspace) error

	DeleteEntryRefs(ctx context.Context, tombstones []core.RefDelete) error
	DeleteWorkspaceRefs(ctx context.Context, tombstones []core.RefDelete) error

	UpdatedEntriesSince(ctx context.Context, t time.Time) ([]core.Entry, error)
	DeletedEntriesSince(ctx context.Context, t time.Time) ([]core.Entry, error)
	UpdatedWorkspacesSince(ctx context.Context, t time.Time) ([]core.Workspace, error)
	DeletedWorkspacesSince(ctx context.Context, t time.Time) ([]core.Workspace, error)

	Workspace(ctx context.Context, lookup WorkspaceLookup) (core.Workspace, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]core.Entry, error)

	SaveConflicts(ctx context.Context, conflicts []core.Conflict) error
	Conflicts(ctx context.Context) ([]core.Conflict, error)

	Close() error
}

// ErrNotFound is returned by Workspace when no row matches the lookup.
var ErrNotFound = &Error{Kind: Integrity, Msg: "not found"}
