// Package connection manages the boundary between a local-only board and one
// mirrored to a remote account: connect, disconnect, persisted metadata and
// the observable status snapshot.
package connection

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/starford/taboard/internal/auth"
	"github.com/starford/taboard/internal/models"
)

// Status is the connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Snapshot is an immutable view of the connection.
type Snapshot struct {
	Status        Status          `json:"status"`
	Account       *models.Account `json:"account,omitempty"`
	FileID        string          `json:"fileId,omitempty"`
	LastSyncedAt  *time.Time      `json:"lastSyncedAt,omitempty"`
	LastCheckedAt *time.Time      `json:"lastCheckedAt,omitempty"`
	Syncing       bool            `json:"syncing"`
	LastError     string          `json:"lastError,omitempty"`
}

// Connected reports whether background sync may run.
func (s Snapshot) Connected() bool { return s.Status == StatusConnected }

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Account != nil {
		acct := *s.Account
		out.Account = &acct
	}
	out.LastSyncedAt = cloneTime(s.LastSyncedAt)
	out.LastCheckedAt = cloneTime(s.LastCheckedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Listener observes snapshot changes.
type Listener func(Snapshot)

// Remote is the part of the remote client the manager drives.
type Remote interface {
	EnsureFile(ctx context.Context, token string) (string, bool, error)
	FetchProfile(ctx context.Context, token string) (*models.Account, error)
	Revoke(ctx context.Context, token string) error
	SetFileID(id string)
	ResetFile()
}

// MetaStore persists connection metadata.
type MetaStore interface {
	SaveMeta(meta *models.SyncMeta) error
	LoadMeta() (*models.SyncMeta, error)
	ClearMeta() error
}

// Manager is the ConnectionLifecycle. It is safe for concurrent use.
type Manager struct {
	tokens auth.TokenSource
	remote Remote
	meta   MetaStore
	logger *slog.Logger

	// opMu serializes Connect and Disconnect.
	opMu sync.Mutex

	// emitMu is held from a snapshot change through its delivery so
	// listeners observe changes in order. Listeners must not call back
	// into methods that change the snapshot.
	emitMu    sync.Mutex
	listeners map[int]Listener
	nextID    int

	mu   sync.Mutex
	snap Snapshot
}

// NewManager creates a disconnected Manager.
func NewManager(tokens auth.TokenSource, remote Remote, meta MetaStore, logger *slog.Logger) *Manager {
	return &Manager{
		tokens:    tokens,
		remote:    remote,
		meta:      meta,
		logger:    logger,
		listeners: make(map[int]Listener),
		snap:      Snapshot{Status: StatusDisconnected},
	}
}

// Init restores persisted metadata. A stored file id means the device was
// connected when it last ran.
func (m *Manager) Init(_ context.Context) error {
	meta, err := m.meta.LoadMeta()
	if err != nil {
		m.logger.Warn("connection: load metadata failed", slog.String("error", err.Error()))
		return err
	}
	if meta == nil || meta.FileID == "" {
		return nil
	}
	m.remote.SetFileID(meta.FileID)
	m.update(func(s *Snapshot) {
		*s = Snapshot{
			Status:        StatusConnected,
			Account:       meta.Account,
			FileID:        meta.FileID,
			LastSyncedAt:  meta.LastSyncedAt,
			LastCheckedAt: meta.LastCheckedAt,
		}
	})
	m.logger.Info("connection: restored", slog.String("file_id", meta.FileID))
	return nil
}

// Snapshot returns the current connection view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.clone()
}

// Connected reports whether the manager is connected.
func (m *Manager) Connected() bool {
	return m.Snapshot().Connected()
}

// Subscribe registers l, calls it immediately with the current snapshot and
// then after every change. The returned function unregisters it.
func (m *Manager) Subscribe(l Listener) func() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners[id] = l
	l(m.Snapshot())

	return func() {
		m.emitMu.Lock()
		defer m.emitMu.Unlock()
		delete(m.listeners, id)
	}
}

// Connect acquires an interactive credential, identifies the account,
// ensures the remote file exists and persists the result. On failure the
// error is recorded in the snapshot and returned.
func (m *Manager) Connect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	prev := m.Snapshot()
	m.update(func(s *Snapshot) {
		s.Status = StatusConnecting
		s.LastError = ""
	})

	meta, err := m.connect(ctx)
	if err != nil {
		m.update(func(s *Snapshot) {
			s.Status = prev.Status
			s.LastError = err.Error()
		})
		m.logger.Warn("connection: connect failed", slog.String("error", err.Error()))
		return err
	}

	m.update(func(s *Snapshot) {
		s.Status = StatusConnected
		s.Account = meta.Account
		s.FileID = meta.FileID
		s.LastError = ""
	})
	m.logger.Info("connection: connected",
		slog.String("account", meta.Account.Email),
		slog.String("file_id", meta.FileID))
	return nil
}

func (m *Manager) connect(ctx context.Context) (*models.SyncMeta, error) {
	token, err := m.tokens.Token(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("connection: credential: %w", err)
	}
	acct, err := m.remote.FetchProfile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("connection: profile: %w", err)
	}
	fileID, _, err := m.remote.EnsureFile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("connection: ensure file: %w", err)
	}

	snap := m.Snapshot()
	meta := &models.SyncMeta{
		FileID:        fileID,
		LastSyncedAt:  snap.LastSyncedAt,
		LastCheckedAt: snap.LastCheckedAt,
		Account:       acct,
	}
	if err := m.meta.SaveMeta(meta); err != nil {
		return nil, fmt.Errorf("connection: %w", err)
	}
	return meta, nil
}

// Disconnect clears persisted metadata and returns to the disconnected
// state. The credential is revoked on a best-effort basis.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	clearErr := m.meta.ClearMeta()
	if clearErr != nil {
		m.logger.Warn("connection: clear metadata failed", slog.String("error", clearErr.Error()))
	}
	m.remote.ResetFile()
	m.update(func(s *Snapshot) {
		*s = Snapshot{Status: StatusDisconnected}
	})
	m.logger.Info("connection: disconnected")

	if token, err := m.tokens.Token(ctx, false); err == nil {
		if err := m.remote.Revoke(ctx, token); err != nil {
			m.logger.Debug("connection: revoke failed", slog.String("error", err.Error()))
		}
	}
	return clearErr
}

// Token returns a credential for a sync, trying a silent acquisition before
// an interactive one.
func (m *Manager) Token(ctx context.Context) (string, error) {
	token, err := m.tokens.Token(ctx, false)
	if err == nil {
		return token, nil
	}
	token, ierr := m.tokens.Token(ctx, true)
	if ierr != nil {
		return "", fmt.Errorf("connection: credential: %w", ierr)
	}
	return token, nil
}

// MarkSyncing flags a sync as running.
func (m *Manager) MarkSyncing() {
	m.update(func(s *Snapshot) { s.Syncing = true })
}

// MarkChecked records a successful download of the remote document.
// It is ignored once the manager has disconnected.
func (m *Manager) MarkChecked(at time.Time) {
	m.update(func(s *Snapshot) {
		if s.Connected() {
			s.LastCheckedAt = &at
		}
	})
	m.persist()
}

// MarkSynced records a completed sync against fileID.
func (m *Manager) MarkSynced(fileID string, at time.Time) {
	m.update(func(s *Snapshot) {
		s.Syncing = false
		if !s.Connected() {
			return
		}
		s.LastError = ""
		s.LastSyncedAt = &at
		if fileID != "" {
			s.FileID = fileID
		}
	})
	m.persist()
}

// MarkError records a failed sync.
func (m *Manager) MarkError(err error) {
	m.update(func(s *Snapshot) {
		s.Syncing = false
		s.LastError = err.Error()
	})
}

// MarkIdle clears the syncing flag without recording an outcome.
func (m *Manager) MarkIdle() {
	m.update(func(s *Snapshot) { s.Syncing = false })
}

func (m *Manager) persist() {
	snap := m.Snapshot()
	if !snap.Connected() {
		return
	}
	err := m.meta.SaveMeta(&models.SyncMeta{
		FileID:        snap.FileID,
		LastSyncedAt:  snap.LastSyncedAt,
		LastCheckedAt: snap.LastCheckedAt,
		Account:       snap.Account,
	})
	if err != nil {
		m.logger.Warn("connection: persist metadata failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) update(fn func(*Snapshot)) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	fn(&m.snap)
	snap := m.snap.clone()
	m.mu.Unlock()

	for _, id := range m.listenerIDs() {
		m.listeners[id](snap.clone())
	}
}

// listenerIDs returns registered ids in subscription order. emitMu must be held.
func (m *Manager) listenerIDs() []int {
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
