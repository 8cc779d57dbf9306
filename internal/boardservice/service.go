// Package boardservice implements the board mutations a surface performs
// on top of the state store.
package boardservice

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/starford/taboard/internal/apperr"
	"github.com/starford/taboard/internal/models"
	"github.com/starford/taboard/internal/state"
)

// CardInput describes a new card.
type CardInput struct {
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Note    string   `json:"note"`
	URL     string   `json:"url"`
	Tags    []string `json:"tags"`
	Color   string   `json:"color"`
	Favicon string   `json:"favicon"`
}

// CardPatch lists the card fields to change; nil fields are left alone.
type CardPatch struct {
	Type     *string   `json:"type"`
	Title    *string   `json:"title"`
	Note     *string   `json:"note"`
	URL      *string   `json:"url"`
	Tags     *[]string `json:"tags"`
	Color    *string   `json:"color"`
	Favorite *bool     `json:"favorite"`
	Done     *bool     `json:"done"`
}

// PreferencesPatch lists the preferences to change; nil fields are left alone.
type PreferencesPatch struct {
	ActiveSpaceID  *string `json:"activeSpaceId"`
	SearchTerm     *string `json:"searchTerm"`
	ViewMode       *string `json:"viewMode"`
	CaptureBoardID *string `json:"captureBoardId"`
}

// CardHit is a card together with where it lives.
type CardHit struct {
	SpaceID   string       `json:"spaceId"`
	SpaceName string       `json:"spaceName"`
	BoardID   string       `json:"boardId"`
	BoardName string       `json:"boardName"`
	Card      *models.Card `json:"card"`
}

// Service applies mutations to a state store.
type Service struct {
	store *state.Store
	now   func() time.Time
}

// NewService creates a board service over store.
func NewService(store *state.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// State returns a copy of the current document.
func (s *Service) State(_ context.Context) *models.AppState {
	return s.store.GetState()
}

// Import replaces the whole document, as when restoring a backup.
func (s *Service) Import(_ context.Context, next *models.AppState) *models.AppState {
	return s.store.ReplaceState(next, state.ReplaceOptions{})
}

// AddCard prepends a card to boardID. An empty boardID means the capture
// board of the active space. The mutation carries an add-card event so a
// concurrent remote change cannot drop the card.
func (s *Service) AddCard(_ context.Context, boardID string, in CardInput) (*CardHit, error) {
	id := state.NewID("card")
	ev := &models.Event{Kind: models.EventAddCard}
	next, err := s.store.Mutate(func(d *models.AppState) error {
		sp, b := captureBoard(d, boardID)
		if b == nil {
			return fmt.Errorf("boardservice: add card: board %q: %w", boardID, apperr.ErrNotFound)
		}
		now := s.now()
		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = in.URL
		}
		b.Cards = slices.Insert(b.Cards, 0, &models.Card{
			ID:        id,
			Type:      in.Type,
			Title:     title,
			Note:      in.Note,
			URL:       in.URL,
			Tags:      slices.Clone(in.Tags),
			Color:     in.Color,
			Favicon:   in.Favicon,
			CreatedAt: now,
			UpdatedAt: now,
		})
		ev.AddedCards = []models.AddedCard{{ID: id, SpaceID: sp.ID, BoardID: b.ID}}
		return nil
	}, ev)
	if err != nil {
		return nil, err
	}
	return hitFor(next, id), nil
}

// UpdateCard applies patch to cardID and bumps its updatedAt.
func (s *Service) UpdateCard(_ context.Context, cardID string, patch CardPatch) (*CardHit, error) {
	next, err := s.store.Mutate(func(d *models.AppState) error {
		c, err := cardByID(d, cardID)
		if err != nil {
			return err
		}
		applyPatch(c, patch)
		c.UpdatedAt = s.now()
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return hitFor(next, cardID), nil
}

// ToggleFavorite flips the favorite flag of cardID.
func (s *Service) ToggleFavorite(_ context.Context, cardID string) (*CardHit, error) {
	return s.toggle(cardID, func(c *models.Card) { c.Favorite = !c.Favorite })
}

// ToggleDone flips the done flag of cardID.
func (s *Service) ToggleDone(_ context.Context, cardID string) (*CardHit, error) {
	return s.toggle(cardID, func(c *models.Card) { c.Done = !c.Done })
}

func (s *Service) toggle(cardID string, flip func(*models.Card)) (*CardHit, error) {
	next, err := s.store.Mutate(func(d *models.AppState) error {
		c, err := cardByID(d, cardID)
		if err != nil {
			return err
		}
		flip(c)
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return hitFor(next, cardID), nil
}

// DeleteCard removes cardID.
func (s *Service) DeleteCard(_ context.Context, cardID string) error {
	_, err := s.store.Mutate(func(d *models.AppState) error {
		_, b, c := state.FindCard(d, state.CardLocation{CardID: cardID})
		if c == nil {
			return fmt.Errorf("boardservice: delete card %q: %w", cardID, apperr.ErrNotFound)
		}
		b.Cards = slices.DeleteFunc(b.Cards, func(x *models.Card) bool { return x.ID == cardID })
		return nil
	}, nil)
	return err
}

// MoveCard moves cardID into toBoardID at index, which is clamped to the
// board's bounds. The target board may live in another space.
func (s *Service) MoveCard(_ context.Context, cardID, toBoardID string, index int) (*CardHit, error) {
	next, err := s.store.Mutate(func(d *models.AppState) error {
		_, from, c := state.FindCard(d, state.CardLocation{CardID: cardID})
		if c == nil {
			return fmt.Errorf("boardservice: move card %q: %w", cardID, apperr.ErrNotFound)
		}
		_, to := state.FindBoard(d, toBoardID)
		if to == nil {
			return fmt.Errorf("boardservice: move card: board %q: %w", toBoardID, apperr.ErrNotFound)
		}
		from.Cards = slices.DeleteFunc(from.Cards, func(x *models.Card) bool { return x.ID == cardID })
		c.UpdatedAt = s.now()
		to.Cards = slices.Insert(to.Cards, clamp(index, len(to.Cards)), c)
		return nil
	}, &models.Event{Kind: models.EventMoveCard})
	if err != nil {
		return nil, err
	}
	return hitFor(next, cardID), nil
}

// MoveBoard reorders boardID within its space.
func (s *Service) MoveBoard(_ context.Context, boardID string, index int) error {
	_, err := s.store.Mutate(func(d *models.AppState) error {
		sp, b := state.FindBoard(d, boardID)
		if b == nil {
			return fmt.Errorf("boardservice: move board %q: %w", boardID, apperr.ErrNotFound)
		}
		sp.Boards = slices.DeleteFunc(sp.Boards, func(x *models.Board) bool { return x.ID == boardID })
		sp.Boards = slices.Insert(sp.Boards, clamp(index, len(sp.Boards)), b)
		return nil
	}, &models.Event{Kind: models.EventMoveBoard})
	return err
}

// MoveSpace reorders spaceID among the spaces.
func (s *Service) MoveSpace(_ context.Context, spaceID string, index int) error {
	_, err := s.store.Mutate(func(d *models.AppState) error {
		sp := state.FindSpace(d, spaceID)
		if sp == nil {
			return fmt.Errorf("boardservice: move space %q: %w", spaceID, apperr.ErrNotFound)
		}
		d.Spaces = slices.DeleteFunc(d.Spaces, func(x *models.Space) bool { return x.ID == spaceID })
		d.Spaces = slices.Insert(d.Spaces, clamp(index, len(d.Spaces)), sp)
		return nil
	}, &models.Event{Kind: models.EventMoveSpace})
	return err
}

// AddSpace appends an empty space and makes it active.
func (s *Service) AddSpace(_ context.Context, name string) (*models.Space, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("boardservice: add space: name is required: %w", apperr.ErrInvalid)
	}
	id := state.NewID("space")
	next, err := s.store.Mutate(func(d *models.AppState) error {
		d.Spaces = append(d.Spaces, &models.Space{
			ID:     id,
			Name:   name,
			Accent: state.RandomAccent(),
			Boards: []*models.Board{},
		})
		d.Preferences.ActiveSpaceID = id
		d.Preferences.ViewMode = models.ViewModeSpaces
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return state.FindSpace(next, id), nil
}

// RenameSpace changes the name of spaceID.
func (s *Service) RenameSpace(_ context.Context, spaceID, name string) (*models.Space, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("boardservice: rename space: name is required: %w", apperr.ErrInvalid)
	}
	next, err := s.store.Mutate(func(d *models.AppState) error {
		sp := state.FindSpace(d, spaceID)
		if sp == nil {
			return fmt.Errorf("boardservice: rename space %q: %w", spaceID, apperr.ErrNotFound)
		}
		sp.Name = name
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return state.FindSpace(next, spaceID), nil
}

// DeleteSpace removes spaceID with its boards and cards. If it was active,
// the first remaining space becomes active.
func (s *Service) DeleteSpace(_ context.Context, spaceID string) error {
	_, err := s.store.Mutate(func(d *models.AppState) error {
		if state.FindSpace(d, spaceID) == nil {
			return fmt.Errorf("boardservice: delete space %q: %w", spaceID, apperr.ErrNotFound)
		}
		d.Spaces = slices.DeleteFunc(d.Spaces, func(x *models.Space) bool { return x.ID == spaceID })
		if d.Preferences.ActiveSpaceID == spaceID {
			d.Preferences.ActiveSpaceID = ""
			if len(d.Spaces) > 0 {
				d.Preferences.ActiveSpaceID = d.Spaces[0].ID
			}
		}
		return nil
	}, nil)
	return err
}

// AddBoard appends a board to spaceID. An empty name gets the default.
func (s *Service) AddBoard(_ context.Context, spaceID, name string) (*models.Board, error) {
	id := state.NewID("board")
	next, err := s.store.Mutate(func(d *models.AppState) error {
		sp := state.FindSpace(d, spaceID)
		if sp == nil {
			return fmt.Errorf("boardservice: add board: space %q: %w", spaceID, apperr.ErrNotFound)
		}
		sp.Boards = append(sp.Boards, &models.Board{
			ID:    id,
			Name:  strings.TrimSpace(name),
			Cards: []*models.Card{},
		})
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	_, b := state.FindBoard(next, id)
	return b, nil
}

// RenameBoard changes the name of boardID. An empty name resets it to the
// default.
func (s *Service) RenameBoard(_ context.Context, boardID, name string) (*models.Board, error) {
	next, err := s.store.Mutate(func(d *models.AppState) error {
		_, b := state.FindBoard(d, boardID)
		if b == nil {
			return fmt.Errorf("boardservice: rename board %q: %w", boardID, apperr.ErrNotFound)
		}
		b.Name = strings.TrimSpace(name)
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	_, b := state.FindBoard(next, boardID)
	return b, nil
}

// DeleteBoard removes boardID and its cards.
func (s *Service) DeleteBoard(_ context.Context, boardID string) error {
	_, err := s.store.Mutate(func(d *models.AppState) error {
		sp, b := state.FindBoard(d, boardID)
		if b == nil {
			return fmt.Errorf("boardservice: delete board %q: %w", boardID, apperr.ErrNotFound)
		}
		sp.Boards = slices.DeleteFunc(sp.Boards, func(x *models.Board) bool { return x.ID == boardID })
		return nil
	}, nil)
	return err
}

// SetPreferences applies patch. Unknown spaces, boards and view modes are
// rejected.
func (s *Service) SetPreferences(_ context.Context, patch PreferencesPatch) (*models.Preferences, error) {
	next, err := s.store.Mutate(func(d *models.AppState) error {
		p := &d.Preferences
		if patch.ActiveSpaceID != nil {
			if state.FindSpace(d, *patch.ActiveSpaceID) == nil {
				return fmt.Errorf("boardservice: preferences: space %q: %w", *patch.ActiveSpaceID, apperr.ErrNotFound)
			}
			p.ActiveSpaceID = *patch.ActiveSpaceID
			p.ViewMode = models.ViewModeSpaces
		}
		if patch.ViewMode != nil {
			switch *patch.ViewMode {
			case models.ViewModeSpaces, models.ViewModeFavorites:
				p.ViewMode = *patch.ViewMode
			default:
				return fmt.Errorf("boardservice: preferences: view mode %q: %w", *patch.ViewMode, apperr.ErrInvalid)
			}
		}
		if patch.SearchTerm != nil {
			p.SearchTerm = *patch.SearchTerm
		}
		if patch.CaptureBoardID != nil {
			sp, b := state.FindBoard(d, *patch.CaptureBoardID)
			if b == nil {
				return fmt.Errorf("boardservice: preferences: board %q: %w", *patch.CaptureBoardID, apperr.ErrNotFound)
			}
			p.ActiveSpaceID = sp.ID
			p.CaptureBoardID = b.ID
		}
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return &next.Preferences, nil
}

// Favorites returns every favorite card in document order.
func (s *Service) Favorites(_ context.Context) []CardHit {
	return collect(s.store.GetState(), func(c *models.Card) bool { return c.Favorite })
}

// Search returns cards whose title, note, url or tags contain query,
// ignoring case. An empty query matches nothing. limit <= 0 means no limit.
func (s *Service) Search(_ context.Context, query string, limit int) []CardHit {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []CardHit{}
	}
	hits := collect(s.store.GetState(), func(c *models.Card) bool { return Matches(c, q) })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Matches reports whether c matches the lower-cased term.
func Matches(c *models.Card, term string) bool {
	parts := []string{c.Title, c.Note, c.URL, strings.Join(c.Tags, " ")}
	return strings.Contains(strings.ToLower(strings.Join(parts, " ")), term)
}

func collect(s *models.AppState, keep func(*models.Card) bool) []CardHit {
	out := []CardHit{}
	for _, sp := range s.Spaces {
		for _, b := range sp.Boards {
			for _, c := range b.Cards {
				if keep(c) {
					out = append(out, CardHit{
						SpaceID:   sp.ID,
						SpaceName: sp.Name,
						BoardID:   b.ID,
						BoardName: b.Name,
						Card:      c,
					})
				}
			}
		}
	}
	return out
}

// captureBoard resolves the board a new card goes to.
func captureBoard(d *models.AppState, boardID string) (*models.Space, *models.Board) {
	if boardID != "" {
		return state.FindBoard(d, boardID)
	}
	active := state.ActiveSpace(d)
	if active == nil || len(active.Boards) == 0 {
		return nil, nil
	}
	if _, b := state.FindBoard(d, d.Preferences.CaptureBoardID); b != nil && slices.Contains(active.Boards, b) {
		return active, b
	}
	return active, active.Boards[0]
}

func cardByID(d *models.AppState, cardID string) (*models.Card, error) {
	_, _, c := state.FindCard(d, state.CardLocation{CardID: cardID})
	if c == nil {
		return nil, fmt.Errorf("boardservice: card %q: %w", cardID, apperr.ErrNotFound)
	}
	return c, nil
}

func applyPatch(c *models.Card, p CardPatch) {
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Note != nil {
		c.Note = *p.Note
	}
	if p.URL != nil {
		if c.URL != *p.URL {
			c.Favicon = ""
		}
		c.URL = *p.URL
	}
	if p.Tags != nil {
		c.Tags = slices.Clone(*p.Tags)
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.Favorite != nil {
		c.Favorite = *p.Favorite
	}
	if p.Done != nil {
		c.Done = *p.Done
	}
}

func hitFor(s *models.AppState, cardID string) *CardHit {
	sp, b, c := state.FindCard(s, state.CardLocation{CardID: cardID})
	if c == nil {
		return nil
	}
	return &CardHit{SpaceID: sp.ID, SpaceName: sp.Name, BoardID: b.ID, BoardName: b.Name, Card: c}
}

func clamp(i, n int) int {
	return max(0, min(i, n))
}
