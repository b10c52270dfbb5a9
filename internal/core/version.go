package core

// SyncVersion is a per-entity monotone revision counter. It starts at 1 on
// creation and strictly increases on every subsequent write, including
// tombstoning. Ties are only permitted across peers when UpdatedAt also
// ties.
type SyncVersion uint32

// FirstVersion is the version stamped on a brand-new entity.
const FirstVersion SyncVersion = 1

// Next returns the version that must be stamped on the following revision.
func (v SyncVersion) Next() SyncVersion { return v + 1 }
