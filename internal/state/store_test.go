package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/taboard/internal/models"
)

// steppingClock returns the queued times in order, repeating the last one.
func steppingClock(times ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func seedState() *models.AppState {
	return &models.AppState{
		Spaces: []*models.Space{{
			ID:   "space-1",
			Name: "One",
			Boards: []*models.Board{{
				ID:    "board-1",
				Name:  "Inbox",
				Cards: []*models.Card{{ID: "card-1", Type: models.CardTypeNote, Title: "hello"}},
			}},
		}},
	}
}

func TestStore_InitStateNil(t *testing.T) {
	s := New()
	var got *models.Event
	s.Subscribe(func(_ *models.AppState, ev *models.Event) { got = ev })

	s.InitState(nil)
	if got == nil || got.Kind != models.EventInit {
		t.Fatalf("event = %+v, want init", got)
	}
	if len(s.GetState().Spaces) == 0 {
		t.Error("expected default document")
	}
}

func TestStore_GetStateIsolated(t *testing.T) {
	s := New()
	s.InitState(seedState())

	a := s.GetState()
	a.Spaces[0].Boards[0].Cards[0].Title = "mutated"
	a.Spaces = nil

	b := s.GetState()
	if len(b.Spaces) != 1 || b.Spaces[0].Boards[0].Cards[0].Title != "hello" {
		t.Errorf("store state leaked through a returned copy: %+v", b.Spaces)
	}
}

func TestStore_UpdateStateStampsAndNotifies(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	s := New(WithClock(steppingClock(t0, t0, t1)))
	s.InitState(seedState())

	var (
		seen   *models.AppState
		events []*models.Event
	)
	s.Subscribe(func(st *models.AppState, ev *models.Event) {
		seen = st
		events = append(events, ev)
	})

	out := s.UpdateState(func(d *models.AppState) {
		d.Spaces[0].Name = "Renamed"
	}, nil)

	if out.Spaces[0].Name != "Renamed" {
		t.Errorf("returned name = %q", out.Spaces[0].Name)
	}
	if !out.LastUpdated.Equal(t1) {
		t.Errorf("lastUpdated = %v, want %v", out.LastUpdated, t1)
	}
	if len(events) != 1 || events[0].Kind != models.EventUpdate {
		t.Fatalf("events = %+v", events)
	}
	if seen.Spaces[0].Name != "Renamed" {
		t.Error("listener did not see the new state")
	}
}

func TestStore_LastUpdatedMonotonic(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	// The clock steps backwards after init.
	s := New(WithClock(steppingClock(t0, t0, t0.Add(-time.Hour))))
	s.InitState(seedState())

	before := s.GetState().LastUpdated
	after := s.UpdateState(func(d *models.AppState) { d.Preferences.SearchTerm = "x" }, nil).LastUpdated
	if after.Before(before) {
		t.Errorf("lastUpdated went backwards: %v -> %v", before, after)
	}
}

func TestStore_MutatorDraftIsPrivate(t *testing.T) {
	s := New()
	s.InitState(seedState())

	var leaked *models.AppState
	s.UpdateState(func(d *models.AppState) { leaked = d }, nil)
	leaked.Spaces[0].Name = "after the fact"

	if s.GetState().Spaces[0].Name == "after the fact" {
		t.Error("draft retained by the store")
	}
}

func TestStore_ListenerCopiesAreIndependent(t *testing.T) {
	s := New()
	s.InitState(seedState())

	s.Subscribe(func(st *models.AppState, _ *models.Event) {
		st.Spaces[0].Name = "first listener scribbled"
	})
	var second string
	s.Subscribe(func(st *models.AppState, _ *models.Event) {
		second = st.Spaces[0].Name
	})

	s.UpdateState(func(d *models.AppState) { d.Spaces[0].Name = "clean" }, nil)
	if second != "clean" {
		t.Errorf("second listener saw %q", second)
	}
	if s.GetState().Spaces[0].Name != "clean" {
		t.Error("listener mutated the store")
	}
}

func TestStore_SubscribeOrderAndUnsubscribe(t *testing.T) {
	s := New()
	var order []int
	unsubA := s.Subscribe(func(*models.AppState, *models.Event) { order = append(order, 1) })
	s.Subscribe(func(*models.AppState, *models.Event) { order = append(order, 2) })

	s.UpdateState(func(*models.AppState) {}, nil)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", order)
	}

	unsubA()
	unsubA()
	order = nil
	s.UpdateState(func(*models.AppState) {}, nil)
	if len(order) != 1 || order[0] != 2 {
		t.Errorf("order after unsubscribe = %v, want [2]", order)
	}
}

func TestStore_EventDeliveredNotStored(t *testing.T) {
	s := New()
	s.InitState(seedState())

	var got *models.Event
	s.Subscribe(func(_ *models.AppState, ev *models.Event) { got = ev })

	ev := &models.Event{
		Kind:       models.EventAddCard,
		AddedCards: []models.AddedCard{{ID: "card-2", SpaceID: "space-1", BoardID: "board-1"}},
	}
	s.UpdateState(func(d *models.AppState) {
		b := d.Spaces[0].Boards[0]
		b.Cards = append([]*models.Card{{ID: "card-2", Title: "new"}}, b.Cards...)
	}, ev)

	if !got.Is(models.EventAddCard) || len(got.AddedCards) != 1 {
		t.Fatalf("event = %+v", got)
	}

	// The next notification carries its own event only.
	s.UpdateState(func(*models.AppState) {}, nil)
	if got.Kind != models.EventUpdate || len(got.AddedCards) != 0 {
		t.Errorf("stale event delivered: %+v", got)
	}
}

func TestStore_ReplaceStatePreserveTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	s.InitState(seedState())

	remote := seedState()
	remote.Spaces[0].Name = "Remote"
	remote.LastUpdated = now.Add(-24 * time.Hour)

	var got *models.Event
	s.Subscribe(func(_ *models.AppState, ev *models.Event) { got = ev })

	out := s.ReplaceState(remote, ReplaceOptions{
		PreserveTimestamp: true,
		Event:             &models.Event{Kind: models.EventRemoteAdopt},
	})
	if !out.LastUpdated.Equal(remote.LastUpdated) {
		t.Errorf("lastUpdated = %v, want preserved %v", out.LastUpdated, remote.LastUpdated)
	}
	if out.Spaces[0].Name != "Remote" {
		t.Errorf("space name = %q", out.Spaces[0].Name)
	}
	if !got.Is(models.EventRemoteAdopt) {
		t.Errorf("event = %+v", got)
	}
}

func TestStore_ReplaceStateStampsByDefault(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	s.InitState(seedState())

	var got *models.Event
	s.Subscribe(func(_ *models.AppState, ev *models.Event) { got = ev })

	remote := seedState()
	remote.LastUpdated = now.Add(-time.Hour)
	out := s.ReplaceState(remote, ReplaceOptions{})
	if !out.LastUpdated.Equal(now) {
		t.Errorf("lastUpdated = %v, want %v", out.LastUpdated, now)
	}
	if got.Kind != models.EventReplace {
		t.Errorf("event = %+v, want replace", got)
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := New()
	s.InitState(&models.AppState{Spaces: []*models.Space{{ID: "s", Boards: []*models.Board{{ID: "b"}}}}})

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateState(func(d *models.AppState) {
				b := d.Spaces[0].Boards[0]
				b.Cards = append(b.Cards, &models.Card{ID: NewID("card")})
			}, nil)
		}()
	}
	wg.Wait()

	if got := len(s.GetState().Spaces[0].Boards[0].Cards); got != n {
		t.Errorf("cards = %d, want %d (lost update)", got, n)
	}
}

func TestStore_ReplaceStateConditional(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(steppingClock(t0, t0, t0.Add(time.Second))))
	s.InitState(seedState())
	seen := s.GetState().LastUpdated

	s.UpdateState(func(d *models.AppState) { d.Spaces[0].Name = "local edit" }, nil)

	remote := seedState()
	remote.Spaces[0].Name = "Remote"
	if out := s.ReplaceState(remote, ReplaceOptions{IfLastUpdated: seen}); out != nil {
		t.Fatal("stale conditional replace was applied")
	}
	if got := s.GetState().Spaces[0].Name; got != "local edit" {
		t.Errorf("name = %q, want local edit", got)
	}

	current := s.GetState().LastUpdated
	if out := s.ReplaceState(remote, ReplaceOptions{IfLastUpdated: current}); out == nil {
		t.Fatal("conditional replace with current timestamp was rejected")
	}
	if got := s.GetState().Spaces[0].Name; got != "Remote" {
		t.Errorf("name = %q, want Remote", got)
	}
}

func TestStore_MutateErrorDiscardsDraft(t *testing.T) {
	s := New()
	s.InitState(seedState())
	before := s.GetState()

	calls := 0
	s.Subscribe(func(*models.AppState, *models.Event) { calls++ })

	boom := errors.New("boom")
	out, err := s.Mutate(func(d *models.AppState) error {
		d.Spaces[0].Name = "half done"
		return boom
	}, nil)
	if !errors.Is(err, boom) || out != nil {
		t.Fatalf("Mutate = (%v, %v), want boom", out, err)
	}
	after := s.GetState()
	if after.Spaces[0].Name != "One" || !after.LastUpdated.Equal(before.LastUpdated) {
		t.Errorf("failed mutation leaked: %+v", after.Spaces[0])
	}
	if calls != 0 {
		t.Errorf("listener called %d times for a failed mutation", calls)
	}
}
