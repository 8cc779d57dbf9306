package state

import "github.com/starford/taboard/internal/models"

// CardLocation identifies a card; SpaceID and BoardID are hints that may be
// empty or stale.
type CardLocation struct {
	SpaceID string
	BoardID string
	CardID  string
}

// FindSpace returns the space with id, or nil.
func FindSpace(s *models.AppState, id string) *models.Space {
	if s == nil {
		return nil
	}
	return findSpace(s.Spaces, id)
}

// FindBoard returns the board with id and its owning space, searching every
// space.
func FindBoard(s *models.AppState, id string) (*models.Space, *models.Board) {
	if s == nil || id == "" {
		return nil, nil
	}
	for _, sp := range s.Spaces {
		if b := findBoard(sp, id); b != nil {
			return sp, b
		}
	}
	return nil, nil
}

// FindCard resolves loc against s. The hinted board is tried first, then any
// board of the hinted space holding the card, then any board of any space.
// When the card is not found, the hinted space and board are returned with a
// nil card.
func FindCard(s *models.AppState, loc CardLocation) (*models.Space, *models.Board, *models.Card) {
	if s == nil {
		return nil, nil, nil
	}
	sp := findSpace(s.Spaces, loc.SpaceID)
	if sp == nil {
		sp, _ = FindBoard(s, loc.BoardID)
	}
	hinted := findBoard(sp, loc.BoardID)
	if loc.CardID == "" {
		return sp, hinted, nil
	}
	if c := findCard(hinted, loc.CardID); c != nil {
		return sp, hinted, c
	}
	if b := boardHolding(sp, loc.CardID); b != nil {
		return sp, b, findCard(b, loc.CardID)
	}
	for _, candidate := range s.Spaces {
		if b := boardHolding(candidate, loc.CardID); b != nil {
			return candidate, b, findCard(b, loc.CardID)
		}
	}
	return sp, hinted, nil
}

// ContainsCard reports whether any board in s holds a card with id.
func ContainsCard(s *models.AppState, id string) bool {
	if s == nil || id == "" {
		return false
	}
	for _, sp := range s.Spaces {
		if boardHolding(sp, id) != nil {
			return true
		}
	}
	return false
}

// ActiveSpace returns the preferred active space, falling back to the first.
func ActiveSpace(s *models.AppState) *models.Space {
	if s == nil || len(s.Spaces) == 0 {
		return nil
	}
	if sp := findSpace(s.Spaces, s.Preferences.ActiveSpaceID); sp != nil {
		return sp
	}
	return s.Spaces[0]
}

// Cards returns every card in document order.
func Cards(s *models.AppState) []*models.Card {
	if s == nil {
		return nil
	}
	var out []*models.Card
	for _, sp := range s.Spaces {
		for _, b := range sp.Boards {
			out = append(out, b.Cards...)
		}
	}
	return out
}

func findSpace(spaces []*models.Space, id string) *models.Space {
	if id == "" {
		return nil
	}
	for _, sp := range spaces {
		if sp != nil && sp.ID == id {
			return sp
		}
	}
	return nil
}

func findBoard(sp *models.Space, id string) *models.Board {
	if sp == nil || id == "" {
		return nil
	}
	for _, b := range sp.Boards {
		if b != nil && b.ID == id {
			return b
		}
	}
	return nil
}

func findCard(b *models.Board, id string) *models.Card {
	if b == nil || id == "" {
		return nil
	}
	for _, c := range b.Cards {
		if c != nil && c.ID == id {
			return c
		}
	}
	return nil
}

func boardHolding(sp *models.Space, cardID string) *models.Board {
	if sp == nil {
		return nil
	}
	for _, b := range sp.Boards {
		if findCard(b, cardID) != nil {
			return b
		}
	}
	return nil
}
