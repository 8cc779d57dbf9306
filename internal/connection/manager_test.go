package connection

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/starford/taboard/internal/apperr"
	"github.com/starford/taboard/internal/auth"
	"github.com/starford/taboard/internal/remote"
	"github.com/starford/taboard/internal/storage"
	"github.com/starford/taboard/internal/testutil"
)

type env struct {
	drive  *testutil.FakeDrive
	client *remote.Client
	pers   *storage.Persistence
	mgr    *Manager
}

func newEnv(t *testing.T, token string) *env {
	t.Helper()
	d := testutil.NewFakeDrive(t)
	c := remote.New(
		remote.WithEndpoints(remote.Endpoints{
			API:      d.APIBase(),
			Upload:   d.UploadBase(),
			UserInfo: d.UserInfoURL(),
			Revoke:   d.RevokeURL(),
		}),
		remote.WithRetryDelay(time.Millisecond),
		remote.WithLogger(testutil.Logger()),
	)
	_, p := testutil.TestPersistence(t)
	return &env{
		drive:  d,
		client: c,
		pers:   p,
		mgr:    NewManager(auth.NewStatic(token), c, p, testutil.Logger()),
	}
}

func TestConnect_PersistsMetadata(t *testing.T) {
	e := newEnv(t, "test-token")

	if err := e.mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	snap := e.mgr.Snapshot()
	if snap.Status != StatusConnected || snap.FileID == "" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Account == nil || snap.Account.Email != "test.user@example.com" {
		t.Errorf("account = %+v", snap.Account)
	}

	meta, err := e.pers.LoadMeta()
	if err != nil || meta == nil {
		t.Fatalf("LoadMeta = (%v, %v)", meta, err)
	}
	if meta.FileID != snap.FileID {
		t.Errorf("persisted file id = %q, want %q", meta.FileID, snap.FileID)
	}
}

func TestConnect_FailureRecordsError(t *testing.T) {
	e := newEnv(t, "wrong-token")

	err := e.mgr.Connect(context.Background())
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	snap := e.mgr.Snapshot()
	if snap.Status != StatusDisconnected || snap.LastError == "" {
		t.Errorf("snapshot = %+v", snap)
	}
	if meta, _ := e.pers.LoadMeta(); meta != nil {
		t.Errorf("metadata persisted after failed connect: %+v", meta)
	}
}

func TestInit_RestoresConnection(t *testing.T) {
	e := newEnv(t, "test-token")
	if err := e.mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fileID := e.mgr.Snapshot().FileID

	// A second manager over the same persistence and drive.
	c2 := remote.New(remote.WithEndpoints(remote.Endpoints{
		API: e.drive.APIBase(), Upload: e.drive.UploadBase(),
		UserInfo: e.drive.UserInfoURL(), Revoke: e.drive.RevokeURL(),
	}))
	m2 := NewManager(auth.NewStatic("test-token"), c2, e.pers, testutil.Logger())
	if err := m2.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	snap := m2.Snapshot()
	if !snap.Connected() || snap.FileID != fileID {
		t.Fatalf("restored snapshot = %+v", snap)
	}

	// The restored file id is used without another lookup.
	listsBefore := e.drive.Calls(testutil.OpList)
	id, _, err := c2.EnsureFile(context.Background(), "test-token")
	if err != nil || id != fileID {
		t.Errorf("EnsureFile = (%q, %v)", id, err)
	}
	if e.drive.Calls(testutil.OpList) != listsBefore {
		t.Error("restored file id was not cached")
	}
}

func TestDisconnect_ClearsAndRevokes(t *testing.T) {
	e := newEnv(t, "test-token")
	if err := e.mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := e.mgr.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if snap := e.mgr.Snapshot(); snap.Status != StatusDisconnected || snap.FileID != "" || snap.Account != nil {
		t.Errorf("snapshot = %+v", snap)
	}
	if meta, _ := e.pers.LoadMeta(); meta != nil {
		t.Errorf("metadata not cleared: %+v", meta)
	}
	if got := e.drive.Revoked(); len(got) != 1 || got[0] != "test-token" {
		t.Errorf("revoked = %v", got)
	}
}

func TestDisconnect_RevokeFailureIgnored(t *testing.T) {
	e := newEnv(t, "test-token")
	_ = e.mgr.Connect(context.Background())
	e.drive.FailNext(testutil.OpRevoke, http.StatusBadRequest)

	if err := e.mgr.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if e.mgr.Connected() {
		t.Error("still connected")
	}
}

func TestSubscribe_ImmediateAndOrdered(t *testing.T) {
	e := newEnv(t, "test-token")

	var (
		mu       sync.Mutex
		statuses []Status
	)
	unsub := e.mgr.Subscribe(func(s Snapshot) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	})

	if err := e.mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	unsub()
	_ = e.mgr.Disconnect(context.Background())

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusDisconnected, StatusConnecting, StatusConnected}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("statuses[%d] = %s, want %s", i, statuses[i], want[i])
		}
	}
}

func TestMarkSyncedAndChecked(t *testing.T) {
	e := newEnv(t, "test-token")
	_ = e.mgr.Connect(context.Background())

	at := time.Date(2025, 4, 4, 4, 4, 4, 0, time.UTC)
	e.mgr.MarkSyncing()
	if !e.mgr.Snapshot().Syncing {
		t.Error("syncing flag not set")
	}
	e.mgr.MarkChecked(at)
	e.mgr.MarkSynced("", at.Add(time.Second))

	snap := e.mgr.Snapshot()
	if snap.Syncing || snap.LastCheckedAt == nil || !snap.LastCheckedAt.Equal(at) {
		t.Errorf("snapshot = %+v", snap)
	}
	meta, _ := e.pers.LoadMeta()
	if meta == nil || meta.LastSyncedAt == nil || !meta.LastSyncedAt.Equal(at.Add(time.Second)) {
		t.Errorf("persisted meta = %+v", meta)
	}

	e.mgr.MarkError(errors.New("boom"))
	if got := e.mgr.Snapshot().LastError; got != "boom" {
		t.Errorf("lastError = %q", got)
	}
}

func TestMarkSynced_IgnoredWhenDisconnected(t *testing.T) {
	e := newEnv(t, "test-token")
	e.mgr.MarkSynced("file-x", time.Now())
	if snap := e.mgr.Snapshot(); snap.LastSyncedAt != nil || snap.FileID != "" {
		t.Errorf("disconnected snapshot changed: %+v", snap)
	}
	if meta, _ := e.pers.LoadMeta(); meta != nil {
		t.Errorf("metadata written while disconnected: %+v", meta)
	}
}
