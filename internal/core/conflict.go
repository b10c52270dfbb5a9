package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RefKind tags which entity family a Conflict or RefDelete refers to.
type RefKind int

const (
	RefEntry RefKind = iota
	RefWorkspace
)

func (k RefKind) String() string {
	if k == RefWorkspace {
		return "workspace"
	}
	return "entry"
}

// ParseRefKind decodes the wire string form used by pull/push payloads.
func ParseRefKind(s string) (RefKind, error) {
	switch s {
	case "entry":
		return RefEntry, nil
	case "workspace":
		return RefWorkspace, nil
	default:
		return 0, fmt.Errorf("core: unknown ref kind %q", s)
	}
}

// Conflict quarantines an entity (or a tombstone clone) that the
// ConflictEngine could not apply because its causal clock disagreed with
// the local copy along mixed axes. Data is the canonical codec encoding of
// the quarantined record, not JSON — see internal/codec.
type Conflict struct {
	RefID   uuid.UUID
	RefKind RefKind
	Data    []byte
}

// RefDelete is the tombstone shape transported across the wire.
type RefDelete struct {
	ClientID  string
	Kind      RefKind
	Version   SyncVersion
	UpdatedAt time.Time
	DeletedAt time.Time
}
