// Package sync drives one sync session end to end: pull remote changes,
// reconcile them against local state, apply what's clean, quarantine what
// conflicts, push local changes, and advance the cursor. It is the only
// package that composes every other core package — codec, crypto,
// conflict, store, cursor, remote.
package sync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/amaydixit11/pinsync/internal/codec"
	"github.com/amaydixit11/pinsync/internal/conflict"
	"github.com/amaydixit11/pinsync/internal/core"
	"github.com/amaydixit11/pinsync/internal/crypto"
	"github.com/amaydixit11/pinsync/internal/cursor"
	"github.com/amaydixit11/pinsync/internal/remote"
	"github.com/amaydixit11/pinsync/internal/store"
)

// decodeEnvelopeBase64 and encodeEnvelopeBase64 implement the outer
// base64 layer of RefItem.Data: the Envelope JSON object (whose own
// ciphertext/key/nonce fields are themselves base64, via encoding/json's
// []byte handling) is itself transported as one more base64 string.
func decodeEnvelopeBase64(s string) (crypto.Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return crypto.Envelope{}, err
	}
	var env crypto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return crypto.Envelope{}, err
	}
	return env, nil
}

func encodeEnvelopeBase64(env crypto.Envelope) (string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Logger is the minimal sink the orchestrator logs through. Library code
// never hard-depends on the global logger.
type Logger interface {
	Printf(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// ErrorKind classifies a protocol-level orchestration failure. Codec,
// Crypto, Store, and Remote failures keep their own packages' typed
// errors; this kind only covers wire-protocol failures that belong to
// the orchestrator itself.
type ErrorKind int

const (
	UnknownKind ErrorKind = iota
	Malformed
)

func (k ErrorKind) String() string {
	if k == Malformed {
		return "malformed"
	}
	return "unknown_kind"
}

// ProtocolError is returned when a pull response can't be dispatched.
type ProtocolError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sync: protocol %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("sync: protocol %s: %s", e.Kind, e.Msg)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Summary is the user-visible tally, printed as
// "Workspaces: U / D / X — Entries: U / D / X".
type Summary struct {
	WorkspacesUploaded int
	WorkspacesDeleted  int
	WorkspacesUpdated  int
	EntriesUploaded    int
	EntriesDeleted     int
	EntriesUpdated     int
	Conflicts          int
}

func (s Summary) String() string {
	return fmt.Sprintf("Workspaces: %d / %d / %d — Entries: %d / %d / %d",
		s.WorkspacesUploaded, s.WorkspacesDeleted, s.WorkspacesUpdated,
		s.EntriesUploaded, s.EntriesDeleted, s.EntriesUpdated)
}

// LoggedOut is returned by Sync when no session is present; the CLI
// should print "Log in first" and exit 0.
var LoggedOut = Summary{}

// Orchestrator drives a sync session over a local store, a remote
// client, and a cursor.
type Orchestrator struct {
	store  store.LocalStore
	remote *remote.Client
	cursor *cursor.Cursor
	key    crypto.Key
	log    Logger
}

// New builds an Orchestrator. log may be nil, in which case log output is
// discarded.
func New(s store.LocalStore, r *remote.Client, c *cursor.Cursor, key crypto.Key, log Logger) *Orchestrator {
	if log == nil {
		log = nopLogger{}
	}
	return &Orchestrator{store: s, remote: r, cursor: c, key: key, log: log}
}

// Sync drives one sync session. If conflicts are found the session halts
// after quarantining them, before any push and before the cursor
// advances — the caller must re-run after the user resolves the
// conflicts.
func (o *Orchestrator) Sync(ctx context.Context, force bool) (Summary, error) {
	session, ok, err := o.cursor.Session()
	if err != nil {
		return Summary{}, err
	}
	if !ok {
		o.log.Printf("login required")
		return LoggedOut, nil
	}
	o.remote.SetSession(session)

	from := time.Unix(0, 0).UTC()
	if !force {
		from, err = o.cursor.LastSyncTS()
		if err != nil {
			return Summary{}, err
		}
	}

	pulled, err := o.remote.Pull(ctx, from)
	if err != nil {
		return Summary{}, err
	}

	remoteWorkspaces, remoteEntries, err := o.decodeUpdates(pulled.Updated)
	if err != nil {
		return Summary{}, err
	}
	remoteWorkspaceDeletes, remoteEntryDeletes, err := splitTombstones(pulled.Deleted)
	if err != nil {
		return Summary{}, err
	}

	localUpdatedWorkspaces, err := o.store.UpdatedWorkspacesSince(ctx, from)
	if err != nil {
		return Summary{}, err
	}
	localUpdatedEntries, err := o.store.UpdatedEntriesSince(ctx, from)
	if err != nil {
		return Summary{}, err
	}

	applyWorkspaces, wsConflicts := conflict.ReconcileUpdates(byWorkspaceID(remoteWorkspaces), byWorkspaceID(localUpdatedWorkspaces))
	applyEntries, entryConflicts := conflict.ReconcileUpdates(byEntryID(remoteEntries), byEntryID(localUpdatedEntries))

	localAllWorkspaces, err := o.snapshotAllWorkspaces(ctx, from)
	if err != nil {
		return Summary{}, err
	}
	localAllEntries, err := o.snapshotAllEntries(ctx, from)
	if err != nil {
		return Summary{}, err
	}

	applyWorkspaceDeletes, wsDeleteConflicts := conflict.ReconcileDeletes(remoteWorkspaceDeletes, byWorkspaceID(localAllWorkspaces), core.Workspace.WithConflictDeletedAt)
	applyEntryDeletes, entryDeleteConflicts := conflict.ReconcileDeletes(remoteEntryDeletes, byEntryID(localAllEntries), core.Entry.WithConflictDeletedAt)

	conflicts, err := collectConflicts(wsConflicts, wsDeleteConflicts, entryConflicts, entryDeleteConflicts)
	if err != nil {
		return Summary{}, err
	}

	// Workspaces apply before Entries, since an Entry may reference one;
	// entry deletes apply before workspace deletes for the same reason.
	if err := o.store.SaveWorkspaces(ctx, applyWorkspaces); err != nil {
		return Summary{}, err
	}
	if err := o.store.SaveEntries(ctx, applyEntries); err != nil {
		return Summary{}, err
	}
	if err := o.store.DeleteEntryRefs(ctx, applyEntryDeletes); err != nil {
		return Summary{}, err
	}
	if err := o.store.DeleteWorkspaceRefs(ctx, applyWorkspaceDeletes); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		WorkspacesUpdated: len(applyWorkspaces),
		WorkspacesDeleted: len(applyWorkspaceDeletes),
		EntriesUpdated:    len(applyEntries),
		EntriesDeleted:    len(applyEntryDeletes),
		Conflicts:         len(conflicts),
	}

	if len(conflicts) > 0 {
		if err := o.store.SaveConflicts(ctx, conflicts); err != nil {
			return Summary{}, err
		}
		o.log.Printf("%d conflicts. Resolve in app before resyncing.", len(conflicts))
		return summary, nil
	}

	items, err := o.collectPushItems(ctx, from)
	if err != nil {
		return Summary{}, err
	}
	if err := o.remote.Push(ctx, items, from); err != nil {
		return Summary{}, err
	}
	summary.WorkspacesUploaded, summary.EntriesUploaded = countUploads(items)

	if err := o.cursor.Advance(time.Now().UTC()); err != nil {
		return Summary{}, err
	}

	return summary, nil
}

func (o *Orchestrator) decodeUpdates(items []remote.RefItem) ([]core.Workspace, []core.Entry, error) {
	var workspaces []core.Workspace
	var entries []core.Entry

	for _, item := range items {
		env, err := decodeEnvelopeBase64(item.Data)
		if err != nil {
			return nil, nil, &ProtocolError{Kind: Malformed, Msg: "decode envelope json", Err: err}
		}
		plaintext, err := crypto.Decrypt(env, o.key)
		if err != nil {
			return nil, nil, err
		}

		switch item.Kind {
		case core.RefWorkspace.String():
			w, err := codec.DecodeWorkspace(plaintext)
			if err != nil {
				return nil, nil, err
			}
			workspaces = append(workspaces, w)
		case core.RefEntry.String():
			e, err := codec.DecodeEntry(plaintext)
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, e)
		default:
			return nil, nil, &ProtocolError{Kind: UnknownKind, Msg: fmt.Sprintf("unknown ref kind %q", item.Kind)}
		}
	}

	return workspaces, entries, nil
}

func splitTombstones(deletes []remote.RefDelete) ([]core.RefDelete, []core.RefDelete, error) {
	var workspaces []core.RefDelete
	var entries []core.RefDelete

	for _, d := range deletes {
		kind, err := core.ParseRefKind(d.Kind)
		if err != nil {
			return nil, nil, &ProtocolError{Kind: UnknownKind, Msg: fmt.Sprintf("unknown ref kind %q", d.Kind), Err: err}
		}
		rd := core.RefDelete{
			ClientID:  d.ClientID,
			Kind:      kind,
			Version:   core.SyncVersion(d.Version),
			UpdatedAt: d.UpdatedAt,
			DeletedAt: d.DeletedAt,
		}
		switch kind {
		case core.RefWorkspace:
			workspaces = append(workspaces, rd)
		case core.RefEntry:
			entries = append(entries, rd)
		}
	}

	return workspaces, entries, nil
}

func (o *Orchestrator) snapshotAllWorkspaces(ctx context.Context, from time.Time) ([]core.Workspace, error) {
	live, err := o.store.UpdatedWorkspacesSince(ctx, time.Unix(0, 0).UTC())
	if err != nil {
		return nil, err
	}
	dead, err := o.store.DeletedWorkspacesSince(ctx, time.Unix(0, 0).UTC())
	if err != nil {
		return nil, err
	}
	return append(live, dead...), nil
}

func (o *Orchestrator) snapshotAllEntries(ctx context.Context, from time.Time) ([]core.Entry, error) {
	live, err := o.store.UpdatedEntriesSince(ctx, time.Unix(0, 0).UTC())
	if err != nil {
		return nil, err
	}
	dead, err := o.store.DeletedEntriesSince(ctx, time.Unix(0, 0).UTC())
	if err != nil {
		return nil, err
	}
	return append(live, dead...), nil
}

func collectConflicts(wsConflicts, wsDeleteConflicts []core.Workspace, entryConflicts, entryDeleteConflicts []core.Entry) ([]core.Conflict, error) {
	var out []core.Conflict
	for _, w := range append(append([]core.Workspace{}, wsConflicts...), wsDeleteConflicts...) {
		data, err := codec.EncodeWorkspace(w)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Conflict{RefID: uuidOrNil(w.ID.String()), RefKind: core.RefWorkspace, Data: data})
	}
	for _, e := range append(append([]core.Entry{}, entryConflicts...), entryDeleteConflicts...) {
		data, err := codec.EncodeEntry(e)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Conflict{RefID: e.ID, RefKind: core.RefEntry, Data: data})
	}
	return out, nil
}

func uuidOrNil(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}
	}
	return id
}

func (o *Orchestrator) collectPushItems(ctx context.Context, from time.Time) ([]remote.EnvelopeRequest, error) {
	var items []remote.EnvelopeRequest

	updatedWorkspaces, err := o.store.UpdatedWorkspacesSince(ctx, from)
	if err != nil {
		return nil, err
	}
	for _, w := range updatedWorkspaces {
		item, err := o.encodeWorkspaceItem(w)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	deletedWorkspaces, err := o.store.DeletedWorkspacesSince(ctx, from)
	if err != nil {
		return nil, err
	}
	for _, w := range deletedWorkspaces {
		item, err := o.encodeWorkspaceItem(w)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	updatedEntries, err := o.store.UpdatedEntriesSince(ctx, from)
	if err != nil {
		return nil, err
	}
	for _, e := range updatedEntries {
		item, err := o.encodeEntryItem(e)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	deletedEntries, err := o.store.DeletedEntriesSince(ctx, from)
	if err != nil {
		return nil, err
	}
	for _, e := range deletedEntries {
		item, err := o.encodeEntryItem(e)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, nil
}

func (o *Orchestrator) encodeWorkspaceItem(w core.Workspace) (remote.EnvelopeRequest, error) {
	plaintext, err := codec.EncodeWorkspace(w)
	if err != nil {
		return remote.EnvelopeRequest{}, err
	}
	data, err := o.encryptToBase64(plaintext)
	if err != nil {
		return remote.EnvelopeRequest{}, err
	}
	return remote.EnvelopeRequest{
		ID: w.ID.String(), Version: uint32(w.Version), Data: data,
		Kind: core.RefWorkspace.String(), UpdatedAt: w.UpdatedAt, DeletedAt: w.DeletedAt,
	}, nil
}

func (o *Orchestrator) encodeEntryItem(e core.Entry) (remote.EnvelopeRequest, error) {
	plaintext, err := codec.EncodeEntry(e)
	if err != nil {
		return remote.EnvelopeRequest{}, err
	}
	data, err := o.encryptToBase64(plaintext)
	if err != nil {
		return remote.EnvelopeRequest{}, err
	}
	return remote.EnvelopeRequest{
		ID: e.ID.String(), Version: uint32(e.Version), Data: data,
		Kind: core.RefEntry.String(), UpdatedAt: e.UpdatedAt, DeletedAt: e.DeletedAt,
	}, nil
}

func (o *Orchestrator) encryptToBase64(plaintext []byte) (string, error) {
	env, err := crypto.Encrypt(plaintext, o.key)
	if err != nil {
		return "", err
	}
	return encodeEnvelopeBase64(env)
}

func countUploads(items []remote.EnvelopeRequest) (workspaces, entries int) {
	for _, item := range items {
		if item.Kind == core.RefWorkspace.String() {
			workspaces++
		} else {
			entries++
		}
	}
	return workspaces, entries
}

func byWorkspaceID(ws []core.Workspace) map[string]core.Workspace {
	m := make(map[string]core.Workspace, len(ws))
	for _, w := range ws {
		m[w.ID.String()] = w
	}
	return m
}

func byEntryID(es []core.Entry) map[string]core.Entry {
	m := make(map[string]core.Entry, len(es))
	for _, e := range es {
		m[e.ID.String()] = e
	}
	return m
}
