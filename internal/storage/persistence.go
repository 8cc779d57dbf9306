package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/taboard/internal/apperr"
	"github.com/starford/taboard/internal/models"
	"github.com/starford/taboard/internal/state"
)

// Defaults for Persistence timing.
const (
	DefaultDebounce   = 350 * time.Millisecond
	DefaultRetryDelay = time.Second
)

// Persistence writes the board document through a Provider. Saves are
// debounced so a burst of mutations produces a single write; a failed write
// is retried once and otherwise only logged.
type Persistence struct {
	provider   Provider
	logger     *slog.Logger
	debounce   time.Duration
	retryDelay time.Duration

	writeMu sync.Mutex // serializes provider writes of the state key

	mu      sync.Mutex
	pending *models.AppState
	timer   *time.Timer
	closed  bool
	lastSum string // checksum of the last state bytes read or written by us
}

// PersistenceOption configures a Persistence.
type PersistenceOption func(*Persistence)

// WithDebounce sets the quiet period before a save is written.
func WithDebounce(d time.Duration) PersistenceOption {
	return func(p *Persistence) { p.debounce = d }
}

// WithRetryDelay sets the delay before the single retry of a failed write.
func WithRetryDelay(d time.Duration) PersistenceOption {
	return func(p *Persistence) { p.retryDelay = d }
}

// NewPersistence wraps provider.
func NewPersistence(provider Provider, logger *slog.Logger, opts ...PersistenceOption) *Persistence {
	p := &Persistence{
		provider:   provider,
		logger:     logger,
		debounce:   DefaultDebounce,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Save schedules s to be written after the debounce period. Only the most
// recent snapshot of a burst is written.
func (p *Persistence) Save(s *models.AppState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.pending = s.Clone()
	p.scheduleLocked(p.debounce, true)
}

// Flush writes any pending snapshot immediately.
func (p *Persistence) Flush() error {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
	return p.writePending(false)
}

// Close flushes pending work and rejects further saves.
func (p *Persistence) Close() error {
	err := p.Flush()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return err
}

func (p *Persistence) scheduleLocked(d time.Duration, retry bool) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(d, func() {
		_ = p.writePending(retry)
	})
}

func (p *Persistence) writePending(retry bool) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	s := p.pending
	p.pending = nil
	p.mu.Unlock()
	if s == nil {
		return nil
	}

	err := p.writeState(s)
	if err == nil {
		return nil
	}
	p.logger.Warn("persistence: save failed",
		slog.Bool("will_retry", retry),
		slog.String("error", err.Error()))

	if retry {
		p.mu.Lock()
		// A newer snapshot supersedes the failed one.
		if p.pending == nil && !p.closed {
			p.pending = s
			p.scheduleLocked(p.retryDelay, false)
		}
		p.mu.Unlock()
	}
	return err
}

func (p *Persistence) writeState(s *models.AppState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("persistence: encode state: %w", err)
	}
	p.mu.Lock()
	p.lastSum = Sum(data)
	p.mu.Unlock()
	if err := p.provider.Set(StateKey, data); err != nil {
		return fmt.Errorf("persistence: %w: %w", apperr.ErrPersistence, err)
	}
	return nil
}

// Load returns the last persisted snapshot. Missing, unreadable or corrupt
// data is reported as (nil, false); the caller starts from a default
// document in that case.
func (p *Persistence) Load() (*models.AppState, bool) {
	data, err := p.provider.Get(StateKey)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			p.logger.Warn("persistence: load failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	s, err := state.Decode(data)
	if err != nil {
		p.logger.Warn("persistence: corrupt state ignored", slog.String("error", err.Error()))
		return nil, false
	}
	if s == nil {
		return nil, false
	}
	p.mu.Lock()
	p.lastSum = Sum(data)
	p.mu.Unlock()
	return s, true
}

// IsOwnWrite reports whether data matches the last state bytes this
// Persistence read or wrote.
func (p *Persistence) IsOwnWrite(data []byte) bool {
	sum := Sum(data)
	p.mu.Lock()
	defer p.mu.Unlock()
	return sum == p.lastSum
}

// SaveMeta persists sync metadata.
func (p *Persistence) SaveMeta(meta *models.SyncMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("persistence: encode meta: %w", err)
	}
	if err := p.provider.Set(MetaKey, data); err != nil {
		return fmt.Errorf("persistence: save meta: %w: %w", apperr.ErrPersistence, err)
	}
	return nil
}

// LoadMeta returns the stored sync metadata, or nil when there is none.
func (p *Persistence) LoadMeta() (*models.SyncMeta, error) {
	data, err := p.provider.Get(MetaKey)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: load meta: %w", err)
	}
	var meta models.SyncMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("persistence: decode meta: %w", err)
	}
	return &meta, nil
}

// ClearMeta removes the stored sync metadata.
func (p *Persistence) ClearMeta() error {
	if err := p.provider.Delete(MetaKey); err != nil {
		return fmt.Errorf("persistence: clear meta: %w: %w", apperr.ErrPersistence, err)
	}
	return nil
}
