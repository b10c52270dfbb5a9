package codec

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/amaydixit11/pinsync/internal/core"
)

// entryFieldLen is the fixed slot count of an encoded Entry.
const entryFieldLen = 11

// EncodeEntry produces the deterministic plaintext for e. The field order
// is: id, value, desc?, data?, path, kind, updated_at, deleted_at?,
// version, workspace_id?, host_id.
func EncodeEntry(e core.Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := newEncoder(&buf)

	if err := enc.EncodeArrayLen(entryFieldLen); err != nil {
		return nil, newErr(MalformedHeader, "encode entry array header", err)
	}
	if err := enc.EncodeString(e.ID.String()); err != nil {
		return nil, newErr(FieldParse, "encode id", err)
	}
	if err := enc.EncodeString(e.Value); err != nil {
		return nil, newErr(FieldParse, "encode value", err)
	}
	if err := encodeOptionalString(enc, e.Desc); err != nil {
		return nil, newErr(FieldParse, "encode desc", err)
	}
	if err := encodeOptionalString(enc, e.Data); err != nil {
		return nil, newErr(FieldParse, "encode data", err)
	}
	if err := enc.EncodeString(e.Path); err != nil {
		return nil, newErr(FieldParse, "encode path", err)
	}
	if err := enc.EncodeString(e.Kind.String()); err != nil {
		return nil, newErr(FieldParse, "encode kind", err)
	}
	if err := enc.EncodeString(encodeTime(e.UpdatedAt)); err != nil {
		return nil, newErr(FieldParse, "encode updated_at", err)
	}
	var deletedAt *string
	if e.DeletedAt != nil {
		s := encodeTime(*e.DeletedAt)
		deletedAt = &s
	}
	if err := encodeOptionalString(enc, deletedAt); err != nil {
		return nil, newErr(FieldParse, "encode deleted_at", err)
	}
	if err := enc.EncodeUint32(uint32(e.Version)); err != nil {
		return nil, newErr(FieldParse, "encode version", err)
	}
	var workspaceID *string
	if e.WorkspaceID != nil {
		s := e.WorkspaceID.String()
		workspaceID = &s
	}
	if err := encodeOptionalString(enc, workspaceID); err != nil {
		return nil, newErr(FieldParse, "encode workspace_id", err)
	}
	if err := enc.EncodeString(e.HostID.String()); err != nil {
		return nil, newErr(FieldParse, "encode host_id", err)
	}

	return buf.Bytes(), nil
}

// DecodeEntry reverses EncodeEntry. It fails if the slot count is wrong, a
// required slot is nil, or trailing bytes remain after the last slot.
func DecodeEntry(data []byte) (core.Entry, error) {
	r := bytes.NewReader(data)
	dec := newDecoder(r)

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return core.Entry{}, newErr(MalformedHeader, "decode entry array header", err)
	}
	if n != entryFieldLen {
		return core.Entry{}, newErr(WrongArity, fmt.Sprintf("expected %d fields, got %d", entryFieldLen, n), nil)
	}

	idStr, err := decodeRequiredString(dec, "id")
	if err != nil {
		return core.Entry{}, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return core.Entry{}, newErr(FieldParse, "parse id", err)
	}

	value, err := decodeRequiredString(dec, "value")
	if err != nil {
		return core.Entry{}, err
	}
	desc, err := decodeOptionalString(dec)
	if err != nil {
		return core.Entry{}, err
	}
	data_, err := decodeOptionalString(dec)
	if err != nil {
		return core.Entry{}, err
	}
	path, err := decodeRequiredString(dec, "path")
	if err != nil {
		return core.Entry{}, err
	}
	kindStr, err := decodeRequiredString(dec, "kind")
	if err != nil {
		return core.Entry{}, err
	}
	kind, _ := core.ParseEntryKind(kindStr)

	updatedAtStr, err := decodeRequiredString(dec, "updated_at")
	if err != nil {
		return core.Entry{}, err
	}
	updatedAt, err := decodeTime(updatedAtStr)
	if err != nil {
		return core.Entry{}, newErr(FieldParse, "parse updated_at", err)
	}

	deletedAtStr, err := decodeOptionalString(dec)
	if err != nil {
		return core.Entry{}, err
	}
	var deletedAt *time.Time
	if deletedAtStr != nil {
		t, err := decodeTime(*deletedAtStr)
		if err != nil {
			return core.Entry{}, newErr(FieldParse, "parse deleted_at", err)
		}
		deletedAt = &t
	}

	version, err := dec.DecodeUint32()
	if err != nil {
		return core.Entry{}, newErr(FieldParse, "decode version", err)
	}

	workspaceIDStr, err := decodeOptionalString(dec)
	if err != nil {
		return core.Entry{}, err
	}
	var workspaceID *core.WorkspaceID
	if workspaceIDStr != nil {
		wid, err := core.ParseWorkspaceID(*workspaceIDStr)
		if err != nil {
			return core.Entry{}, newErr(FieldParse, "parse workspace_id", err)
		}
		workspaceID = &wid
	}

	hostIDStr, err := decodeRequiredString(dec, "host_id")
	if err != nil {
		return core.Entry{}, err
	}
	hostID, err := core.ParseHostID(hostIDStr)
	if err != nil {
		return core.Entry{}, newErr(FieldParse, "parse host_id", err)
	}

	if err := finish(r); err != nil {
		return core.Entry{}, err
	}

	return core.Entry{
		ID:          id,
		Value:       value,
		Desc:        desc,
		Data:        data_,
		Kind:        kind,
		Path:        path,
		UpdatedAt:   updatedAt,
		DeletedAt:   deletedAt,
		Version:     core.SyncVersion(version),
		WorkspaceID: workspaceID,
		HostID:      hostID,
	}, nil
}
