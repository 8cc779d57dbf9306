package models

// EventKind tags a single state broadcast.
type EventKind string

// Event kinds emitted by the store and its writers.
const (
	EventInit           EventKind = "init"
	EventUpdate         EventKind = "update"
	EventReplace        EventKind = "replace"
	EventRemoteAdopt    EventKind = "remote-adopt"
	EventExternalReload EventKind = "external-reload"
	EventAddCard        EventKind = "add-card"
	EventMoveCard       EventKind = "move-card"
	EventMoveBoard      EventKind = "move-board"
	EventMoveSpace      EventKind = "move-space"
)

// AddedCard locates a card created by the mutation that carries it.
type AddedCard struct {
	ID      string `json:"id"`
	SpaceID string `json:"spaceId,omitempty"`
	BoardID string `json:"boardId,omitempty"`
}

// Event is a one-shot annotation delivered alongside a state snapshot.
// It is never part of the persisted document.
type Event struct {
	Kind       EventKind   `json:"kind"`
	AddedCards []AddedCard `json:"addedCards,omitempty"`
}

// Is reports whether e is non-nil and of kind k.
func (e *Event) Is(k EventKind) bool {
	return e != nil && e.Kind == k
}
