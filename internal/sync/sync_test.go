package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/amaydixit11/pinsync/internal/codec"
	"github.com/amaydixit11/pinsync/internal/core"
	"github.com/amaydixit11/pinsync/internal/crypto"
	"github.com/amaydixit11/pinsync/internal/cursor"
	"github.com/amaydixit11/pinsync/internal/remote"
	"github.com/amaydixit11/pinsync/internal/store/sqlite"
)

func testHost(t *testing.T) core.HostID {
	t.Helper()
	h, err := core.ParseHostID("alice@laptop")
	if err != nil {
		t.Fatalf("parse host id: %v", err)
	}
	return h
}

func newTestCursor(t *testing.T) *cursor.Cursor {
	t.Helper()
	dir := t.TempDir()
	return cursor.New(
		filepath.Join(dir, "last_sync_time"),
		filepath.Join(dir, "host_id"),
		filepath.Join(dir, "session"),
	)
}

func entryRefItem(t *testing.T, key crypto.Key, e core.Entry) remote.RefItem {
	t.Helper()
	plaintext, err := codec.EncodeEntry(e)
	if err != nil {
		t.Fatalf("encode entry: %v", err)
	}
	env, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	data, err := encodeEnvelopeBase64(env)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return remote.RefItem{Data: data, Kind: core.RefEntry.String()}
}

// fakeServer drives a single-route test double for /sync and /entries.
type fakeServer struct {
	pull       remote.PullResponse
	pushBodies []remote.PushRequest
	pushStatus int
}

func newFakeServer(t *testing.T, fs *fakeServer) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sync":
			json.NewEncoder(w).Encode(fs.pull)
		case "/entries":
			var body remote.PushRequest
			json.NewDecoder(r.Body).Decode(&body)
			fs.pushBodies = append(fs.pushBodies, body)
			if fs.pushStatus != 0 {
				w.WriteHeader(fs.pushStatus)
				return
			}
		case "/login":
			json.NewEncoder(w).Encode(struct {
				Session string `json:"session"`
			}{Session: "tok"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestSyncWithoutSessionReturnsLoggedOut(t *testing.T) {
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c := newTestCursor(t)
	srv := newFakeServer(t, &fakeServer{})
	defer srv.Close()

	o := New(store, remote.New(srv.URL), c, key, nil)
	summary, err := o.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if summary != LoggedOut {
		t.Errorf("expected LoggedOut summary, got %+v", summary)
	}
}

func TestSyncAppliesRemoteUpdateAndAdvancesCursor(t *testing.T) {
	st, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c := newTestCursor(t)
	if err := c.SaveSession("tok"); err != nil {
		t.Fatalf("save session: %v", err)
	}

	host := testHost(t)
	remoteEntry := core.NewEntry("git status", "/home/alice/proj", nil, host)

	fs := &fakeServer{pull: remote.PullResponse{Updated: []remote.RefItem{entryRefItem(t, key, remoteEntry)}}}
	srv := newFakeServer(t, fs)
	defer srv.Close()

	o := New(st, remote.New(srv.URL), c, key, nil)
	summary, err := o.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if summary.EntriesUpdated != 1 || summary.Conflicts != 0 {
		t.Fatalf("expected one clean entry update, got %+v", summary)
	}

	got, err := st.UpdatedEntriesSince(context.Background(), time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatalf("updated since: %v", err)
	}
	if len(got) != 1 || got[0].ID != remoteEntry.ID {
		t.Fatalf("expected remote entry applied locally, got %v", got)
	}

	last, err := c.LastSyncTS()
	if err != nil {
		t.Fatalf("last sync ts: %v", err)
	}
	if !last.After(time.Unix(0, 0).UTC()) {
		t.Error("expected cursor to advance past the epoch after a clean sync")
	}
}

func TestSyncHaltsBeforePushOnConflict(t *testing.T) {
	st, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c := newTestCursor(t)
	if err := c.SaveSession("tok"); err != nil {
		t.Fatalf("save session: %v", err)
	}

	host := testHost(t)
	local := core.NewEntry("git status", "/home/alice/proj", nil, host)
	local.Version = local.Version.Next()
	if err := st.SaveEntries(context.Background(), []core.Entry{local}); err != nil {
		t.Fatalf("seed local entry: %v", err)
	}

	remoteEntry := local
	remoteEntry.Value = "git log"
	remoteEntry.UpdatedAt = local.UpdatedAt.Add(time.Minute)
	// version regresses relative to local while the timestamp advances:
	// a mixed-signal disagreement that must quarantine as a conflict.
	remoteEntry.Version = core.FirstVersion

	fs := &fakeServer{pull: remote.PullResponse{Updated: []remote.RefItem{entryRefItem(t, key, remoteEntry)}}}
	srv := newFakeServer(t, fs)
	defer srv.Close()

	o := New(st, remote.New(srv.URL), c, key, nil)
	summary, err := o.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if summary.Conflicts != 1 {
		t.Fatalf("expected one conflict, got %+v", summary)
	}
	if len(fs.pushBodies) != 0 {
		t.Error("expected sync to halt before pushing when a conflict is found")
	}

	conflicts, err := st.Conflicts(context.Background())
	if err != nil {
		t.Fatalf("conflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected the conflict to be quarantined in the store, got %v", conflicts)
	}
}

func TestSyncPushesLocalChangesAnchoredAtLastSyncTS(t *testing.T) {
	st, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c := newTestCursor(t)
	if err := c.SaveSession("tok"); err != nil {
		t.Fatalf("save session: %v", err)
	}

	host := testHost(t)
	local := core.NewEntry("git status", "/home/alice/proj", nil, host)
	if err := st.SaveEntries(context.Background(), []core.Entry{local}); err != nil {
		t.Fatalf("seed local entry: %v", err)
	}

	fs := &fakeServer{}
	srv := newFakeServer(t, fs)
	defer srv.Close()

	o := New(st, remote.New(srv.URL), c, key, nil)
	summary, err := o.Sync(context.Background(), false)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if summary.EntriesUploaded != 1 {
		t.Fatalf("expected local entry to be uploaded, got %+v", summary)
	}
	if len(fs.pushBodies) != 1 || len(fs.pushBodies[0].Items) != 1 {
		t.Fatalf("expected exactly one pushed item, got %v", fs.pushBodies)
	}
	if fs.pushBodies[0].Items[0].ID != local.ID.String() {
		t.Errorf("expected pushed item id %s, got %s", local.ID, fs.pushBodies[0].Items[0].ID)
	}
	if !fs.pushBodies[0].LastSyncTS.Equal(time.Unix(0, 0).UTC()) {
		t.Errorf("expected push anchored at the epoch watermark, got %v", fs.pushBodies[0].LastSyncTS)
	}
}
