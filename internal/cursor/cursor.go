// Package cursor persists the two pieces of process-wide state the sync
// core needs across runs: the last-successful-sync watermark and this
// installation's HostID. Both are plain UTF-8 files at caller-supplied
// paths — callers (internal/config) decide where those paths live; this
// package only knows how to read and write them.
package cursor

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/amaydixit11/pinsync/internal/core"
)

// Cursor owns the last-sync watermark and host id, plus the session
// token the orchestrator loads at the start of each run — localizing
// that file read here rather than having internal/sync reach for
// os.ReadFile directly.
type Cursor struct {
	lastSyncPath string
	hostIDPath   string
	sessionPath  string
}

// New binds a Cursor to the given file paths. None need to exist yet.
func New(lastSyncPath, hostIDPath, sessionPath string) *Cursor {
	return &Cursor{lastSyncPath: lastSyncPath, hostIDPath: hostIDPath, sessionPath: sessionPath}
}

// Session returns the persisted session token. ok is false if the user
// has never logged in — unlike HostID, a missing session is never
// auto-created.
func (c *Cursor) Session() (session string, ok bool, err error) {
	raw, err := os.ReadFile(c.sessionPath)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cursor: read session: %w", err)
	}
	return strings.TrimSpace(string(raw)), true, nil
}

// SaveSession persists session as the active login for this installation.
func (c *Cursor) SaveSession(session string) error {
	if err := os.WriteFile(c.sessionPath, []byte(session), 0o600); err != nil {
		return fmt.Errorf("cursor: write session: %w", err)
	}
	return nil
}

// ClearSession logs the installation out locally (used by the `logout`
// CLI command after the server-side session is invalidated).
func (c *Cursor) ClearSession() error {
	err := os.Remove(c.sessionPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cursor: clear session: %w", err)
	}
	return nil
}

// LastSyncTS returns the persisted watermark, or the Unix epoch if the
// file is absent.
func (c *Cursor) LastSyncTS() (time.Time, error) {
	raw, err := os.ReadFile(c.lastSyncPath)
	if os.IsNotExist(err) {
		return time.Unix(0, 0).UTC(), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("cursor: read last sync time: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
	if err != nil {
		return time.Time{}, fmt.Errorf("cursor: parse last sync time: %w", err)
	}
	return t.UTC(), nil
}

// Advance persists t as the new last-successful-sync watermark. Callers
// must only invoke this after a push has completed end-to-end — the
// whole point of the cursor is that it lags behind any half-finished
// session.
func (c *Cursor) Advance(t time.Time) error {
	if err := os.WriteFile(c.lastSyncPath, []byte(t.UTC().Format(time.RFC3339Nano)), 0o600); err != nil {
		return fmt.Errorf("cursor: write last sync time: %w", err)
	}
	return nil
}

// HostID returns the persisted host identity, generating and persisting a
// fresh one (via core.NewHostID) on first read.
func (c *Cursor) HostID() (core.HostID, error) {
	raw, err := os.ReadFile(c.hostIDPath)
	if err == nil {
		return core.ParseHostID(strings.TrimSpace(string(raw)))
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("cursor: read host id: %w", err)
	}

	id, err := core.NewHostID()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(c.hostIDPath, []byte(id.String()), 0o600); err != nil {
		return "", fmt.Errorf("cursor: write host id: %w", err)
	}
	return id, nil
}
