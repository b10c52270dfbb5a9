package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkspaceID is an opaque, time-ordered unique identifier for a Workspace.
// Backed by a UUIDv7 so natural creation order falls out of byte order.
type WorkspaceID uuid.UUID

// NewWorkspaceID mints a fresh, time-ordered id.
func NewWorkspaceID() (WorkspaceID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return WorkspaceID{}, fmt.Errorf("core: generate workspace id: %w", err)
	}
	return WorkspaceID(id), nil
}

// ParseWorkspaceID parses the string form produced by String().
func ParseWorkspaceID(s string) (WorkspaceID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return WorkspaceID{}, fmt.Errorf("core: parse workspace id %q: %w", s, err)
	}
	return WorkspaceID(id), nil
}

func (w WorkspaceID) String() string { return uuid.UUID(w).String() }

// WorkspacePath pairs a host identity with an absolute path on that host.
// Serialized form is "host:path".
type WorkspacePath struct {
	HostID HostID
	Path   string
}

func (p WorkspacePath) String() string {
	return p.HostID.String() + ":" + p.Path
}

// ParseWorkspacePath reverses WorkspacePath.String(). The path itself may
// contain colons (a Windows drive letter does, and is not special-cased),
// so only the first colon is treated as the separator.
func ParseWorkspacePath(s string) (WorkspacePath, error) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return WorkspacePath{}, fmt.Errorf("core: workspace path %q missing host separator", s)
	}
	host, err := ParseHostID(s[:idx])
	if err != nil {
		return WorkspacePath{}, err
	}
	return WorkspacePath{HostID: host, Path: s[idx+1:]}, nil
}

// Workspace is a named grouping of one or more host+path locations,
// optionally tied to a git origin URL, used for cross-machine context
// matching.
type Workspace struct {
	ID        WorkspaceID
	Name      string
	Git       *string
	Paths     []WorkspacePath
	UpdatedAt time.Time
	DeletedAt *time.Time
	Version   SyncVersion
}

// NewWorkspace creates a fresh local workspace. paths must be non-empty;
// an empty paths slice is rejected with an error.
func NewWorkspace(name string, git *string, paths []WorkspacePath) (Workspace, error) {
	id, err := NewWorkspaceID()
	if err != nil {
		return Workspace{}, err
	}
	if len(paths) == 0 {
		return Workspace{}, fmt.Errorf("core: workspace %q must have at least one path", name)
	}
	return Workspace{
		ID:        id,
		Name:      name,
		Git:       git,
		Paths:     paths,
		UpdatedAt: time.Now().UTC(),
		Version:   FirstVersion,
	}, nil
}

func (w Workspace) Clone() Workspace {
	c := w
	if w.Git != nil {
		g := *w.Git
		c.Git = &g
	}
	if w.DeletedAt != nil {
		d := *w.DeletedAt
		c.DeletedAt = &d
	}
	c.Paths = append([]WorkspacePath(nil), w.Paths...)
	return c
}

func (w Workspace) Tombstone(t time.Time, version SyncVersion) Workspace {
	c := w.Clone()
	c.DeletedAt = &t
	c.UpdatedAt = t
	c.Version = version
	return c
}

func (w Workspace) SyncClock() (time.Time, SyncVersion) { return w.UpdatedAt, w.Version }

// WithConflictDeletedAt mirrors Entry.WithConflictDeletedAt.
func (w Workspace) WithConflictDeletedAt(t time.Time) Workspace {
	c := w.Clone()
	c.DeletedAt = &t
	return c
}
