// Package conflict implements the pure, side-effect-free reconciliation
// rule that partitions a remote change set against a local one into
// {apply, skip, conflict}. It is entity-agnostic: Workspace and Entry both
// satisfy Clocked, so one generic implementation serves both instead of
// duplicating the dominance comparison per concrete type.
package conflict

import (
	"time"

	"github.com/amaydixit11/pinsync/internal/core"
)

// Clocked is the capability every reconcilable entity exposes: a dual
// (timestamp, version) causal clock treated as an approximate
// two-dimensional lineage marker.
type Clocked interface {
	SyncClock() (time.Time, core.SyncVersion)
}

func sign(d time.Duration) int {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}

func signVersion(a, b core.SyncVersion) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// ReconcileUpdates decides, for every id present in remote, whether the
// remote revision applies
// cleanly, is skipped (local already dominates or the heads are
// identical), or must be quarantined because the two axes disagree.
//
// remote and local are indexed by the entity's string id. The return
// order is insertion order of remote's iteration and is not itself
// meaningful (Go map iteration order is random) — callers that need a
// stable apply order impose it themselves (see internal/sync, which
// always applies Workspaces before Entries regardless of map order).
func ReconcileUpdates[T Clocked](remote, local map[string]T) (apply []T, conflicts []T) {
	for id, r := range remote {
		l, ok := local[id]
		if !ok {
			apply = append(apply, r)
			continue
		}

		rTime, rVersion := r.SyncClock()
		lTime, lVersion := l.SyncClock()
		dt := sign(rTime.Sub(lTime))
		dv := signVersion(rVersion, lVersion)

		switch {
		case dt == 1 && dv == 1:
			apply = append(apply, r)
		case dt == 0 && dv == 0:
			// identical heads, nothing to do
		case dt == -1 && dv == -1:
			// local strictly newer; the push phase carries it upstream
		default:
			conflicts = append(conflicts, r)
		}
	}
	return apply, conflicts
}

// ReconcileDeletes decides whether a remote tombstone applies: it does if
// there is no local record, or if the
// tombstone's clock dominates (≥ on both axes). Otherwise the local
// record is cloned, stamped with the tombstone's deleted_at via tombstone,
// and quarantined instead of being overwritten.
func ReconcileDeletes[T Clocked](remoteTombstones []core.RefDelete, local map[string]T, tombstone func(local T, deletedAt time.Time) T) (applyTombstones []core.RefDelete, conflicts []T) {
	for _, rt := range remoteTombstones {
		l, ok := local[rt.ClientID]
		if !ok {
			applyTombstones = append(applyTombstones, rt)
			continue
		}

		lTime, lVersion := l.SyncClock()
		if !rt.UpdatedAt.Before(lTime) && rt.Version >= lVersion {
			applyTombstones = append(applyTombstones, rt)
			continue
		}

		conflicts = append(conflicts, tombstone(l, rt.DeletedAt))
	}
	return applyTombstones, conflicts
}
