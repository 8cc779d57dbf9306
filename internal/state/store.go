// Package state owns the authoritative AppState: normalization, versioning,
// mutation dispatch and change notification.
package state

import (
	"sync"
	"time"

	"github.com/starford/taboard/internal/models"
)

// Listener receives a private copy of the new state and the event that
// produced it. Listeners run synchronously on the writer's goroutine, in
// registration order; they may call GetState but must not call UpdateState,
// ReplaceState or InitState before returning.
type Listener func(s *models.AppState, ev *models.Event)

// ReplaceOptions configure ReplaceState.
type ReplaceOptions struct {
	// PreserveTimestamp keeps the incoming lastUpdated instead of stamping now.
	PreserveTimestamp bool
	// Event is delivered with the notification. Defaults to EventReplace.
	Event *models.Event
	// IfLastUpdated, when set, makes the replace conditional: it is skipped
	// if the installed document's lastUpdated no longer equals this value.
	IfLastUpdated time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for lastUpdated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type subscription struct {
	id uint64
	fn Listener
}

// Store is the single source of truth for one running engine. Reads return
// deep copies; writes go through UpdateState, ReplaceState or InitState.
//
// writeMu serializes writers across mutate, install and notify, so two
// mutations never interleave and every listener sees mutations in order.
// mu guards the installed document for readers.
type Store struct {
	writeMu sync.Mutex

	mu    sync.RWMutex
	state *models.AppState

	subsMu sync.Mutex
	subs   []subscription
	nextID uint64

	now func() time.Time
}

// New creates a store holding a default document. Call InitState to install
// the loaded snapshot.
func New(opts ...Option) *Store {
	s := &Store{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	s.state = normalizeAt(nil, s.now())
	return s
}

// InitState normalizes and installs initial, substituting a default document
// for nil, and notifies subscribers once.
func (s *Store) InitState(initial *models.AppState) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := normalizeAt(initial, s.now())
	s.install(next)
	s.notify(next, &models.Event{Kind: models.EventInit})
}

// GetState returns a deep copy of the current document.
func (s *Store) GetState() *models.AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// UpdateState runs mutator on a deep-copy draft, stamps lastUpdated, installs
// the normalized result and notifies subscribers with ev. A nil ev is sent as
// EventUpdate. The returned copy is the installed state.
func (s *Store) UpdateState(mutator func(draft *models.AppState), ev *models.Event) *models.AppState {
	next, _ := s.Mutate(func(draft *models.AppState) error {
		mutator(draft)
		return nil
	}, ev)
	return next
}

// Mutate is UpdateState for mutators that can fail. When mutator returns an
// error the draft is discarded, nothing is installed and no one is notified.
func (s *Store) Mutate(mutator func(draft *models.AppState) error, ev *models.Event) (*models.AppState, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	prev := s.state
	draft := prev.Clone()
	s.mu.RUnlock()

	if err := mutator(draft); err != nil {
		return nil, err
	}

	now := s.now()
	next := normalizeAt(draft, now)
	next.LastUpdated = stamp(now, prev.LastUpdated)
	s.install(next)

	if ev == nil {
		ev = &models.Event{Kind: models.EventUpdate}
	}
	s.notify(next, ev)
	return next.Clone(), nil
}

// ReplaceState installs a whole new document, typically one adopted from the
// remote store. It returns nil without installing anything when
// opts.IfLastUpdated is set and the document has changed since.
func (s *Store) ReplaceState(next *models.AppState, opts ReplaceOptions) *models.AppState {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	prev := s.state.LastUpdated
	s.mu.RUnlock()

	if !opts.IfLastUpdated.IsZero() && !opts.IfLastUpdated.Equal(prev) {
		return nil
	}

	now := s.now()
	normalized := normalizeAt(next, now)
	if !opts.PreserveTimestamp || next == nil {
		normalized.LastUpdated = stamp(now, prev)
	}
	s.install(normalized)

	ev := opts.Event
	if ev == nil {
		ev = &models.Event{Kind: models.EventReplace}
	}
	s.notify(normalized, ev)
	return normalized.Clone()
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) install(next *models.AppState) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

func (s *Store) notify(next *models.AppState, ev *models.Event) {
	s.subsMu.Lock()
	subs := append([]subscription(nil), s.subs...)
	s.subsMu.Unlock()

	for _, sub := range subs {
		sub.fn(next.Clone(), ev)
	}
}

// stamp keeps lastUpdated non-decreasing when the wall clock steps back.
func stamp(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}
