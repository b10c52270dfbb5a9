// Package codec implements the deterministic, binary, field-ordered
// encoding that is the plaintext input to envelope encryption (see
// internal/crypto). Two peers encoding the same logical Entry or Workspace
// must produce byte-identical output, so floats are never used, timestamps
// are RFC3339 strings, and every optional field is written as either a
// string or an explicit nil marker — never omitted. Fields are written as
// a fixed-arity MessagePack array via the low-level Encoder/Decoder rather
// than derived from struct tags, so field order and presence stay under
// our control.
package codec

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// ErrorKind classifies a codec failure.
type ErrorKind int

const (
	MalformedHeader ErrorKind = iota
	WrongArity
	UnexpectedNil
	TrailingBytes
	FieldParse
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedHeader:
		return "malformed_header"
	case WrongArity:
		return "wrong_arity"
	case UnexpectedNil:
		return "unexpected_nil"
	case TrailingBytes:
		return "trailing_bytes"
	case FieldParse:
		return "field_parse"
	default:
		return "unknown"
	}
}

// Error is the typed codec failure. Callers that need to branch on the
// failure class should use errors.As.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("codec: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// rfc3339 formats with sub-second precision, matching the original's use of
// time::format_description::well_known::Rfc3339 (nanosecond-capable).
func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func newEncoder(buf *bytes.Buffer) *msgpack.Encoder {
	return msgpack.NewEncoder(buf)
}

func newDecoder(r *bytes.Reader) *msgpack.Decoder {
	return msgpack.NewDecoder(r)
}

func encodeOptionalString(enc *msgpack.Encoder, v *string) error {
	if v == nil {
		return enc.EncodeNil()
	}
	return enc.EncodeString(*v)
}

// decodeOptionalString reads a slot that is either a string or a nil
// marker. It peeks the leading byte so the nil case never falls through to
// a string-decode error.
func decodeOptionalString(dec *msgpack.Decoder) (*string, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, newErr(FieldParse, "peek optional string", err)
	}
	if code == msgpcode.Nil {
		if err := dec.DecodeNil(); err != nil {
			return nil, newErr(FieldParse, "decode nil", err)
		}
		return nil, nil
	}
	s, err := dec.DecodeString()
	if err != nil {
		return nil, newErr(FieldParse, "decode optional string", err)
	}
	return &s, nil
}

func decodeRequiredString(dec *msgpack.Decoder, field string) (string, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return "", newErr(FieldParse, "peek "+field, err)
	}
	if code == msgpcode.Nil {
		return "", newErr(UnexpectedNil, field+" must not be nil", nil)
	}
	s, err := dec.DecodeString()
	if err != nil {
		return "", newErr(FieldParse, "decode "+field, err)
	}
	return s, nil
}

// finish confirms the decoder consumed the entire buffer.
func finish(r *bytes.Reader) error {
	if r.Len() != 0 {
		return newErr(TrailingBytes, fmt.Sprintf("%d bytes left unread", r.Len()), nil)
	}
	return nil
}
