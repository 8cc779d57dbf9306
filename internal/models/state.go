// Package models defines the domain types for taboard.
package models

import "time"

// SchemaVersion is the current AppState document version.
const SchemaVersion = 1

// Card types.
const (
	CardTypeLink = "link"
	CardTypeNote = "note"
	CardTypeTodo = "todo"
)

// View modes.
const (
	ViewModeSpaces    = "spaces"
	ViewModeFavorites = "favorites"
)

// AppState is the root document: every space, board and card the user owns.
type AppState struct {
	Version     int         `json:"version"`
	Spaces      []*Space    `json:"spaces"`
	Preferences Preferences `json:"preferences"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// Preferences holds per-document UI selections.
type Preferences struct {
	ActiveSpaceID  string `json:"activeSpaceId"`
	SearchTerm     string `json:"searchTerm"`
	ViewMode       string `json:"viewMode"`
	CaptureBoardID string `json:"captureBoardId"`

	// Legacy name of CaptureBoardID, folded away during normalization.
	CaptureSectionID string `json:"captureSectionId,omitempty"`
}

// Space is a top-level workspace.
type Space struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Accent string   `json:"accent"`
	Boards []*Board `json:"boards"`

	// Legacy name of Boards, folded away during normalization.
	Sections []*Board `json:"sections,omitempty"`
}

// Board is an ordered column of cards inside a space.
type Board struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Cards []*Card `json:"cards"`
}

// Card is a single bookmark, note or todo item.
type Card struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Note      string    `json:"note"`
	URL       string    `json:"url"`
	Tags      []string  `json:"tags"`
	Color     string    `json:"color,omitempty"`
	Favorite  bool      `json:"favorite"`
	Done      bool      `json:"done"`
	Favicon   string    `json:"favicon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of s. A nil receiver yields nil.
func (s *AppState) Clone() *AppState {
	if s == nil {
		return nil
	}
	out := *s
	out.Spaces = cloneSlice(s.Spaces, (*Space).Clone)
	return &out
}

// Clone returns a deep copy of sp.
func (sp *Space) Clone() *Space {
	if sp == nil {
		return nil
	}
	out := *sp
	out.Boards = cloneSlice(sp.Boards, (*Board).Clone)
	out.Sections = cloneSlice(sp.Sections, (*Board).Clone)
	return &out
}

// Clone returns a deep copy of b.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := *b
	out.Cards = cloneSlice(b.Cards, (*Card).Clone)
	return &out
}

// Clone returns a deep copy of c.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	out := *c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	return &out
}

func cloneSlice[T any](in []*T, clone func(*T) *T) []*T {
	if in == nil {
		return nil
	}
	out := make([]*T, len(in))
	for i, v := range in {
		out[i] = clone(v)
	}
	return out
}
