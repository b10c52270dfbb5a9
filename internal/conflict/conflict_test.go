package conflict

import (
	"testing"
	"time"

	"github.com/amaydixit11/pinsync/internal/core"
)

type fakeClock struct {
	id        string
	updatedAt time.Time
	version   core.SyncVersion
}

func (f fakeClock) SyncClock() (time.Time, core.SyncVersion) { return f.updatedAt, f.version }

func TestReconcileUpdatesIdentity(t *testing.T) {
	t0 := time.Now().UTC()
	remote := map[string]fakeClock{"a": {id: "a", updatedAt: t0, version: 1}}
	local := map[string]fakeClock{"a": {id: "a", updatedAt: t0, version: 1}}

	apply, conflicts := ReconcileUpdates(remote, local)
	if len(apply) != 0 || len(conflicts) != 0 {
		t.Fatalf("expected no apply/conflicts for identical heads, got apply=%v conflicts=%v", apply, conflicts)
	}
}

func TestReconcileUpdatesMonotoneDominance(t *testing.T) {
	t0 := time.Now().UTC()
	t1 := t0.Add(time.Minute)
	remote := map[string]fakeClock{"a": {id: "a", updatedAt: t1, version: 2}}
	local := map[string]fakeClock{"a": {id: "a", updatedAt: t0, version: 1}}

	apply, conflicts := ReconcileUpdates(remote, local)
	if len(apply) != 1 || len(conflicts) != 0 {
		t.Fatalf("expected clean apply, got apply=%v conflicts=%v", apply, conflicts)
	}
}

func TestReconcileUpdatesLocalDominanceIsSkipped(t *testing.T) {
	t0 := time.Now().UTC()
	t1 := t0.Add(time.Minute)
	remote := map[string]fakeClock{"a": {id: "a", updatedAt: t0, version: 1}}
	local := map[string]fakeClock{"a": {id: "a", updatedAt: t1, version: 2}}

	apply, conflicts := ReconcileUpdates(remote, local)
	if len(apply) != 0 || len(conflicts) != 0 {
		t.Fatalf("expected local dominance to be skipped silently, got apply=%v conflicts=%v", apply, conflicts)
	}
}

func TestReconcileUpdatesNoLocalRecordApplies(t *testing.T) {
	remote := map[string]fakeClock{"a": {id: "a", updatedAt: time.Now().UTC(), version: 1}}
	local := map[string]fakeClock{}

	apply, conflicts := ReconcileUpdates(remote, local)
	if len(apply) != 1 || len(conflicts) != 0 {
		t.Fatalf("expected apply for id absent locally, got apply=%v conflicts=%v", apply, conflicts)
	}
}

func TestReconcileUpdatesMixedSignalConflict(t *testing.T) {
	t0 := time.Now().UTC()
	t1 := t0.Add(time.Minute)
	// remote is newer in time but older in version: mixed axes.
	remote := map[string]fakeClock{"a": {id: "a", updatedAt: t1, version: 1}}
	local := map[string]fakeClock{"a": {id: "a", updatedAt: t0, version: 2}}

	apply, conflicts := ReconcileUpdates(remote, local)
	if len(apply) != 0 {
		t.Fatalf("mixed-signal disagreement must not apply, got %v", apply)
	}
	if len(conflicts) != 1 || conflicts[0].id != "a" {
		t.Fatalf("expected exactly one conflict for id a, got %v", conflicts)
	}
}

func tombstoneFake(f fakeClock, deletedAt time.Time) fakeClock {
	f.updatedAt = deletedAt
	return f
}

func TestReconcileDeletesDominanceApplies(t *testing.T) {
	t0 := time.Now().UTC()
	t1 := t0.Add(time.Minute)
	local := map[string]fakeClock{"a": {id: "a", updatedAt: t0, version: 1}}
	tombstones := []core.RefDelete{{ClientID: "a", Version: 2, UpdatedAt: t1, DeletedAt: t1}}

	applied, conflicts := ReconcileDeletes(tombstones, local, tombstoneFake)
	if len(applied) != 1 || len(conflicts) != 0 {
		t.Fatalf("expected tombstone to apply cleanly, got applied=%v conflicts=%v", applied, conflicts)
	}
}

func TestReconcileDeletesNoLocalRecordApplies(t *testing.T) {
	local := map[string]fakeClock{}
	t0 := time.Now().UTC()
	tombstones := []core.RefDelete{{ClientID: "a", Version: 1, UpdatedAt: t0, DeletedAt: t0}}

	applied, conflicts := ReconcileDeletes(tombstones, local, tombstoneFake)
	if len(applied) != 1 || len(conflicts) != 0 {
		t.Fatalf("expected tombstone for unknown id to apply, got applied=%v conflicts=%v", applied, conflicts)
	}
}

func TestReconcileDeletesLocalDominanceConflicts(t *testing.T) {
	t0 := time.Now().UTC()
	t1 := t0.Add(time.Minute) // local is newer than the tombstone
	local := map[string]fakeClock{"a": {id: "a", updatedAt: t1, version: 3}}
	tombstones := []core.RefDelete{{ClientID: "a", Version: 2, UpdatedAt: t0, DeletedAt: t0}}

	applied, conflicts := ReconcileDeletes(tombstones, local, tombstoneFake)
	if len(applied) != 0 {
		t.Fatalf("expected no tombstone applied, got %v", applied)
	}
	if len(conflicts) != 1 || !conflicts[0].updatedAt.Equal(t0) {
		t.Fatalf("expected one conflict stamped with the tombstone's deleted_at, got %v", conflicts)
	}
}
