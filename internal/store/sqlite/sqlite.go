// Package sqlite implements internal/store.LocalStore on top of
// github.com/mattn/go-sqlite3, with a transaction per batch call and
// upsert-by-id writes. Search is backed by an in-memory Bleve index over
// Entry.Value/Desc/Path/Kind.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/amaydixit11/pinsync/internal/codec"
	"github.com/amaydixit11/pinsync/internal/core"
	"github.com/amaydixit11/pinsync/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	desc TEXT,
	data TEXT,
	kind TEXT NOT NULL,
	path TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER,
	version INTEGER NOT NULL,
	workspace_id TEXT,
	host_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	git TEXT,
	paths TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER,
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conflicts (
	ref_id TEXT PRIMARY KEY,
	ref_kind TEXT NOT NULL,
	data BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_updated ON entries(updated_at);
CREATE INDEX IF NOT EXISTS idx_entries_deleted ON entries(deleted_at);
CREATE INDEX IF NOT EXISTS idx_entries_workspace ON entries(workspace_id);
CREATE INDEX IF NOT EXISTS idx_workspaces_updated ON workspaces(updated_at);
CREATE INDEX IF NOT EXISTS idx_workspaces_deleted ON workspaces(deleted_at);
`

// Store is the sqlite-backed LocalStore. updated_at is indexed as
// unix-nanos and deleted_at as unix-seconds; comparisons only ever happen
// between fields of the same name, so the differing units are never
// mixed across columns.
type Store struct {
	db    *sql.DB
	index *searchIndex
}

var _ store.LocalStore = (*Store)(nil)

// Open opens (or creates) the sqlite database at path. path may be
// ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, &store.Error{Kind: store.Io, Msg: "open database", Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &store.Error{Kind: store.Io, Msg: "init schema", Err: err}
	}

	idx, err := newMemorySearchIndex()
	if err != nil {
		db.Close()
		return nil, &store.Error{Kind: store.Io, Msg: "init search index", Err: err}
	}

	s := &Store{db: db, index: idx}
	if err := s.reindexAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.index.Close()
	return s.db.Close()
}

func unixNanos(t time.Time) int64 { return t.UTC().UnixNano() }
func fromUnixNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
func unixSeconds(t time.Time) int64   { return t.UTC().Unix() }
func fromUnixSeconds(n int64) time.Time { return time.Unix(n, 0).UTC() }

func nullableTime(t *time.Time, toUnix func(time.Time) int64) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func (s *Store) SaveEntries(ctx context.Context, entries []core.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.Error{Kind: store.Io, Msg: "begin tx", Err: err}
	}
	defer tx.Rollback()

	for _, e := range entries {
		var workspaceID sql.NullString
		if e.WorkspaceID != nil {
			workspaceID = sql.NullString{String: e.WorkspaceID.String(), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entries (id, value, desc, data, kind, path, updated_at, deleted_at, version, workspace_id, host_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				value = excluded.value,
				desc = excluded.desc,
				data = excluded.data,
				kind = excluded.kind,
				path = excluded.path,
				updated_at = excluded.updated_at,
				deleted_at = excluded.deleted_at,
				version = excluded.version,
				workspace_id = excluded.workspace_id,
				host_id = excluded.host_id
		`, e.ID.String(), e.Value, nullableString(e.Desc), nullableString(e.Data), e.Kind.String(), e.Path,
			unixNanos(e.UpdatedAt), nullableTime(e.DeletedAt, unixSeconds), uint32(e.Version), workspaceID, e.HostID.String())
		if err != nil {
			return &store.Error{Kind: store.Io, Msg: "upsert entry", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &store.Error{Kind: store.Io, Msg: "commit tx", Err: err}
	}
	for _, e := range entries {
		s.index.put(e)
	}
	return nil
}

func (s *Store) SaveWorkspaces(ctx context.Context, workspaces []core.Workspace) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.Error{Kind: store.Io, Msg: "begin tx", Err: err}
	}
	defer tx.Rollback()

	for _, w := range workspaces {
		paths := make([]string, len(w.Paths))
		for i, p := range w.Paths {
			paths[i] = p.String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workspaces (id, name, git, paths, updated_at, deleted_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				git = excluded.git,
				paths = excluded.paths,
				updated_at = excluded.updated_at,
				deleted_at = excluded.deleted_at,
				version = excluded.version
		`, w.ID.String(), w.Name, nullableString(w.Git), strings.Join(paths, "\x1f"),
			unixNanos(w.UpdatedAt), nullableTime(w.DeletedAt, unixSeconds), uint32(w.Version))
		if err != nil {
			return &store.Error{Kind: store.Io, Msg: "upsert workspace", Err: err}
		}
	}

	return tx.Commit()
}

func (s *Store) DeleteEntryRefs(ctx context.Context, tombstones []core.RefDelete) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.Error{Kind: store.Io, Msg: "begin tx", Err: err}
	}
	defer tx.Rollback()

	for _, t := range tombstones {
		res, err := tx.ExecContext(ctx, `
			UPDATE entries SET updated_at = ?, deleted_at = ?, version = ? WHERE id = ?
		`, unixNanos(t.UpdatedAt), unixSeconds(t.DeletedAt), uint32(t.Version), t.ClientID)
		if err != nil {
			return &store.Error{Kind: store.Io, Msg: "apply entry tombstone", Err: err}
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return &store.Error{Kind: store.Io, Msg: "rows affected", Err: err}
		}
		if rows == 0 {
			// shadow row: tombstone for an id we've never seen locally
			_, err := tx.ExecContext(ctx, `
				INSERT INTO entries (id, value, desc, data, kind, path, updated_at, deleted_at, version, workspace_id, host_id)
				VALUES (?, '', NULL, NULL, ?, '', ?, ?, ?, NULL, '')
			`, t.ClientID, core.KindNote.String(), unixNanos(t.UpdatedAt), unixSeconds(t.DeletedAt), uint32(t.Version))
			if err != nil {
				return &store.Error{Kind: store.Io, Msg: "insert shadow entry tombstone", Err: err}
			}
		}
		s.index.delete(t.ClientID)
	}

	return tx.Commit()
}

func (s *Store) DeleteWorkspaceRefs(ctx context.Context, tombstones []core.RefDelete) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.Error{Kind: store.Io, Msg: "begin tx", Err: err}
	}
	defer tx.Rollback()

	for _, t := range tombstones {
		res, err := tx.ExecContext(ctx, `
			UPDATE workspaces SET updated_at = ?, deleted_at = ?, version = ? WHERE id = ?
		`, unixNanos(t.UpdatedAt), unixSeconds(t.DeletedAt), uint32(t.Version), t.ClientID)
		if err != nil {
			return &store.Error{Kind: store.Io, Msg: "apply workspace tombstone", Err: err}
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return &store.Error{Kind: store.Io, Msg: "rows affected", Err: err}
		}
		if rows == 0 {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO workspaces (id, name, git, paths, updated_at, deleted_at, version)
				VALUES (?, '', NULL, '', ?, ?, ?)
			`, t.ClientID, unixNanos(t.UpdatedAt), unixSeconds(t.DeletedAt), uint32(t.Version))
			if err != nil {
				return &store.Error{Kind: store.Io, Msg: "insert shadow workspace tombstone", Err: err}
			}
		}
	}

	return tx.Commit()
}

func scanEntry(row interface {
	Scan(...interface{}) error
}) (core.Entry, error) {
	var idStr, value, kindStr, path, hostIDStr string
	var desc, data, workspaceID sql.NullString
	var updatedAt int64
	var deletedAt sql.NullInt64
	var version uint32

	if err := row.Scan(&idStr, &value, &desc, &data, &kindStr, &path, &updatedAt, &deletedAt, &version, &workspaceID, &hostIDStr); err != nil {
		return core.Entry{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return core.Entry{}, err
	}
	kind, _ := core.ParseEntryKind(kindStr)

	e := core.Entry{
		ID:        id,
		Value:     value,
		Kind:      kind,
		Path:      path,
		UpdatedAt: fromUnixNanos(updatedAt),
		Version:   core.SyncVersion(version),
	}
	if desc.Valid {
		e.Desc = &desc.String
	}
	if data.Valid {
		e.Data = &data.String
	}
	if deletedAt.Valid {
		t := fromUnixSeconds(deletedAt.Int64)
		e.DeletedAt = &t
	}
	if workspaceID.Valid {
		wid, err := core.ParseWorkspaceID(workspaceID.String)
		if err == nil {
			e.WorkspaceID = &wid
		}
	}
	if hostIDStr != "" {
		hostID, err := core.ParseHostID(hostIDStr)
		if err == nil {
			e.HostID = hostID
		}
	}
	return e, nil
}

const entryColumns = "id, value, desc, data, kind, path, updated_at, deleted_at, version, workspace_id, host_id"

func (s *Store) UpdatedEntriesSince(ctx context.Context, t time.Time) ([]core.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries WHERE updated_at >= ? AND deleted_at IS NULL ORDER BY updated_at ASC
	`, unixNanos(t))
	if err != nil {
		return nil, &store.Error{Kind: store.Io, Msg: "query updated entries", Err: err}
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Store) DeletedEntriesSince(ctx context.Context, t time.Time) ([]core.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries WHERE deleted_at >= ? ORDER BY deleted_at ASC
	`, unixSeconds(t))
	if err != nil {
		return nil, &store.Error{Kind: store.Io, Msg: "query deleted entries", Err: err}
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]core.Entry, error) {
	var out []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &store.Error{Kind: store.Io, Msg: "scan entry", Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.Error{Kind: store.Io, Msg: "iterate entries", Err: err}
	}
	return out, nil
}

const workspaceColumns = "id, name, git, paths, updated_at, deleted_at, version"

func scanWorkspace(row interface {
	Scan(...interface{}) error
}) (core.Workspace, error) {
	var idStr, name, pathsStr string
	var git sql.NullString
	var updatedAt int64
	var deletedAt sql.NullInt64
	var version uint32

	if err := row.Scan(&idStr, &name, &git, &pathsStr, &updatedAt, &deletedAt, &version); err != nil {
		return core.Workspace{}, err
	}

	id, err := core.ParseWorkspaceID(idStr)
	if err != nil {
		return core.Workspace{}, err
	}

	var paths []core.WorkspacePath
	if pathsStr != "" {
		for _, p := range strings.Split(pathsStr, "\x1f") {
			wp, err := core.ParseWorkspacePath(p)
			if err == nil {
				paths = append(paths, wp)
			}
		}
	}

	w := core.Workspace{
		ID:        id,
		Name:      name,
		Paths:     paths,
		UpdatedAt: fromUnixNanos(updatedAt),
		Version:   core.SyncVersion(version),
	}
	if git.Valid {
		w.Git = &git.String
	}
	if deletedAt.Valid {
		t := fromUnixSeconds(deletedAt.Int64)
		w.DeletedAt = &t
	}
	return w, nil
}

func (s *Store) UpdatedWorkspacesSince(ctx context.Context, t time.Time) ([]core.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workspaceColumns+` FROM workspaces WHERE updated_at >= ? AND deleted_at IS NULL ORDER BY updated_at ASC
	`, unixNanos(t))
	if err != nil {
		return nil, &store.Error{Kind: store.Io, Msg: "query updated workspaces", Err: err}
	}
	defer rows.Close()
	return collectWorkspaces(rows)
}

func (s *Store) DeletedWorkspacesSince(ctx context.Context, t time.Time) ([]core.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workspaceColumns+` FROM workspaces WHERE deleted_at >= ? ORDER BY deleted_at ASC
	`, unixSeconds(t))
	if err != nil {
		return nil, &store.Error{Kind: store.Io, Msg: "query deleted workspaces", Err: err}
	}
	defer rows.Close()
	return collectWorkspaces(rows)
}

func collectWorkspaces(rows *sql.Rows) ([]core.Workspace, error) {
	var out []core.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, &store.Error{Kind: store.Io, Msg: "scan workspace", Err: err}
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.Error{Kind: store.Io, Msg: "iterate workspaces", Err: err}
	}
	return out, nil
}

func (s *Store) Workspace(ctx context.Context, lookup store.WorkspaceLookup) (core.Workspace, error) {
	switch {
	case lookup.ID != nil:
		row := s.db.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = ? AND deleted_at IS NULL`, lookup.ID.String())
		w, err := scanWorkspace(row)
		if err == sql.ErrNoRows {
			return core.Workspace{}, store.ErrNotFound
		}
		if err != nil {
			return core.Workspace{}, &store.Error{Kind: store.Io, Msg: "lookup workspace by id", Err: err}
		}
		return w, nil
	case lookup.Name != nil:
		row := s.db.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE name = ? AND deleted_at IS NULL LIMIT 1`, *lookup.Name)
		w, err := scanWorkspace(row)
		if err == sql.ErrNoRows {
			return core.Workspace{}, store.ErrNotFound
		}
		if err != nil {
			return core.Workspace{}, &store.Error{Kind: store.Io, Msg: "lookup workspace by name", Err: err}
		}
		return w, nil
	case lookup.Path != nil:
		needle := lookup.Path.String()
		rows, err := s.db.QueryContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE deleted_at IS NULL AND paths LIKE ?`, "%"+needle+"%")
		if err != nil {
			return core.Workspace{}, &store.Error{Kind: store.Io, Msg: "lookup workspace by path", Err: err}
		}
		defer rows.Close()
		for rows.Next() {
			w, err := scanWorkspace(rows)
			if err != nil {
				return core.Workspace{}, &store.Error{Kind: store.Io, Msg: "scan workspace", Err: err}
			}
			for _, p := range w.Paths {
				if p != *lookup.Path {
					continue
				}
				if lookup.Git != nil && (w.Git == nil || *w.Git != *lookup.Git) {
					continue
				}
				return w, nil
			}
		}
		return core.Workspace{}, store.ErrNotFound
	default:
		return core.Workspace{}, &store.Error{Kind: store.Integrity, Msg: "workspace lookup has no key set"}
	}
}

func (s *Store) ListEntries(ctx context.Context, filter store.EntryFilter) ([]core.Entry, error) {
	if filter.Search != "" {
		ids, err := s.index.search(filter.Search)
		if err != nil {
			return nil, &store.Error{Kind: store.Io, Msg: "search entries", Err: err}
		}
		entries := make([]core.Entry, 0, len(ids))
		for _, id := range ids {
			row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ? AND deleted_at IS NULL`, id)
			e, err := scanEntry(row)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return nil, &store.Error{Kind: store.Io, Msg: "scan searched entry", Err: err}
			}
			if entryMatchesFilter(e, filter) {
				entries = append(entries, e)
			}
		}
		return entries, nil
	}

	query := "SELECT " + entryColumns + " FROM entries WHERE deleted_at IS NULL"
	var args []interface{}
	if filter.Kind != nil {
		query += " AND kind = ?"
		args = append(args, filter.Kind.String())
	}
	if filter.Path != nil {
		query += " AND path = ?"
		args = append(args, *filter.Path)
	}
	if filter.WorkspaceID != nil {
		query += " AND workspace_id = ?"
		args = append(args, filter.WorkspaceID.String())
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &store.Error{Kind: store.Io, Msg: "list entries", Err: err}
	}
	defer rows.Close()
	return collectEntries(rows)
}

func entryMatchesFilter(e core.Entry, filter store.EntryFilter) bool {
	if filter.Kind != nil && e.Kind != *filter.Kind {
		return false
	}
	if filter.Path != nil && e.Path != *filter.Path {
		return false
	}
	if filter.WorkspaceID != nil && (e.WorkspaceID == nil || *e.WorkspaceID != *filter.WorkspaceID) {
		return false
	}
	return true
}

func (s *Store) SaveConflicts(ctx context.Context, conflicts []core.Conflict) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.Error{Kind: store.Io, Msg: "begin tx", Err: err}
	}
	defer tx.Rollback()

	for _, c := range conflicts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conflicts (ref_id, ref_kind, data) VALUES (?, ?, ?)
			ON CONFLICT(ref_id) DO UPDATE SET ref_kind = excluded.ref_kind, data = excluded.data
		`, c.RefID.String(), c.RefKind.String(), c.Data)
		if err != nil {
			return &store.Error{Kind: store.Io, Msg: "upsert conflict", Err: err}
		}
	}

	return tx.Commit()
}

func (s *Store) Conflicts(ctx context.Context) ([]core.Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ref_id, ref_kind, data FROM conflicts`)
	if err != nil {
		return nil, &store.Error{Kind: store.Io, Msg: "list conflicts", Err: err}
	}
	defer rows.Close()

	var out []core.Conflict
	for rows.Next() {
		var idStr, kindStr string
		var data []byte
		if err := rows.Scan(&idStr, &kindStr, &data); err != nil {
			return nil, &store.Error{Kind: store.Io, Msg: "scan conflict", Err: err}
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, &store.Error{Kind: store.Integrity, Msg: "parse conflict ref_id", Err: err}
		}
		kind, err := core.ParseRefKind(kindStr)
		if err != nil {
			return nil, &store.Error{Kind: store.Integrity, Msg: "parse conflict ref_kind", Err: err}
		}
		out = append(out, core.Conflict{RefID: id, RefKind: kind, Data: data})
	}
	return out, rows.Err()
}

func (s *Store) reindexAll() error {
	rows, err := s.db.Query(`SELECT ` + entryColumns + ` FROM entries WHERE deleted_at IS NULL`)
	if err != nil {
		return &store.Error{Kind: store.Io, Msg: "reindex query", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return &store.Error{Kind: store.Io, Msg: "reindex scan", Err: err}
		}
		s.index.put(e)
	}
	return rows.Err()
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// DecodeConflict recovers the canonical entity from a quarantined
// Conflict row, e.g. to show a diff in a resolution UI outside this core.
func DecodeConflict(c core.Conflict) (interface{}, error) {
	switch c.RefKind {
	case core.RefEntry:
		return codec.DecodeEntry(c.Data)
	case core.RefWorkspace:
		return codec.DecodeWorkspace(c.Data)
	default:
		return nil, fmt.Errorf("sqlite: unknown conflict ref kind %v", c.RefKind)
	}
}
