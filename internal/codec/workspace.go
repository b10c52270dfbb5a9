package codec

import (
	"bytes"
	"fmt"
	"time"

	"github.com/amaydixit11/pinsync/internal/core"
)

// workspaceFieldLen is the fixed slot count of an encoded Workspace.
const workspaceFieldLen = 7

// EncodeWorkspace produces the deterministic plaintext for w. The field
// order is: id, name, git?, paths, updated_at, deleted_at?, version.
//
// Paths are written as their own msgpack array of "host:path" strings
// rather than a comma-joined string: a path containing a comma would
// otherwise be ambiguous to split back apart. Order is preserved, no
// deduplication.
func EncodeWorkspace(w core.Workspace) ([]byte, error) {
	var buf bytes.Buffer
	enc := newEncoder(&buf)

	if err := enc.EncodeArrayLen(workspaceFieldLen); err != nil {
		return nil, newErr(MalformedHeader, "encode workspace array header", err)
	}
	if err := enc.EncodeString(w.ID.String()); err != nil {
		return nil, newErr(FieldParse, "encode id", err)
	}
	if err := enc.EncodeString(w.Name); err != nil {
		return nil, newErr(FieldParse, "encode name", err)
	}
	if err := encodeOptionalString(enc, w.Git); err != nil {
		return nil, newErr(FieldParse, "encode git", err)
	}
	if err := enc.EncodeArrayLen(len(w.Paths)); err != nil {
		return nil, newErr(FieldParse, "encode paths header", err)
	}
	for _, p := range w.Paths {
		if err := enc.EncodeString(p.String()); err != nil {
			return nil, newErr(FieldParse, "encode path", err)
		}
	}
	if err := enc.EncodeString(encodeTime(w.UpdatedAt)); err != nil {
		return nil, newErr(FieldParse, "encode updated_at", err)
	}
	var deletedAt *string
	if w.DeletedAt != nil {
		s := encodeTime(*w.DeletedAt)
		deletedAt = &s
	}
	if err := encodeOptionalString(enc, deletedAt); err != nil {
		return nil, newErr(FieldParse, "encode deleted_at", err)
	}
	if err := enc.EncodeUint32(uint32(w.Version)); err != nil {
		return nil, newErr(FieldParse, "encode version", err)
	}

	return buf.Bytes(), nil
}

// DecodeWorkspace reverses EncodeWorkspace.
func DecodeWorkspace(data []byte) (core.Workspace, error) {
	r := bytes.NewReader(data)
	dec := newDecoder(r)

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return core.Workspace{}, newErr(MalformedHeader, "decode workspace array header", err)
	}
	if n != workspaceFieldLen {
		return core.Workspace{}, newErr(WrongArity, fmt.Sprintf("expected %d fields, got %d", workspaceFieldLen, n), nil)
	}

	idStr, err := decodeRequiredString(dec, "id")
	if err != nil {
		return core.Workspace{}, err
	}
	id, err := core.ParseWorkspaceID(idStr)
	if err != nil {
		return core.Workspace{}, newErr(FieldParse, "parse id", err)
	}

	name, err := decodeRequiredString(dec, "name")
	if err != nil {
		return core.Workspace{}, err
	}
	git, err := decodeOptionalString(dec)
	if err != nil {
		return core.Workspace{}, err
	}

	pathsLen, err := dec.DecodeArrayLen()
	if err != nil {
		return core.Workspace{}, newErr(FieldParse, "decode paths header", err)
	}
	paths := make([]core.WorkspacePath, 0, pathsLen)
	for i := 0; i < pathsLen; i++ {
		s, err := decodeRequiredString(dec, "paths[]")
		if err != nil {
			return core.Workspace{}, err
		}
		p, err := core.ParseWorkspacePath(s)
		if err != nil {
			return core.Workspace{}, newErr(FieldParse, "parse path", err)
		}
		paths = append(paths, p)
	}

	updatedAtStr, err := decodeRequiredString(dec, "updated_at")
	if err != nil {
		return core.Workspace{}, err
	}
	updatedAt, err := decodeTime(updatedAtStr)
	if err != nil {
		return core.Workspace{}, newErr(FieldParse, "parse updated_at", err)
	}

	deletedAtStr, err := decodeOptionalString(dec)
	if err != nil {
		return core.Workspace{}, err
	}
	var deletedAt *time.Time
	if deletedAtStr != nil {
		t, err := decodeTime(*deletedAtStr)
		if err != nil {
			return core.Workspace{}, newErr(FieldParse, "parse deleted_at", err)
		}
		deletedAt = &t
	}

	version, err := dec.DecodeUint32()
	if err != nil {
		return core.Workspace{}, newErr(FieldParse, "decode version", err)
	}

	if err := finish(r); err != nil {
		return core.Workspace{}, err
	}

	return core.Workspace{
		ID:        id,
		Name:      name,
		Git:       git,
		Paths:     paths,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		Version:   core.SyncVersion(version),
	}, nil
}
