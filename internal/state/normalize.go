package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/starford/taboard/internal/models"
)

// Decode parses a JSON document into an AppState without normalizing it.
// A JSON null decodes to nil.
func Decode(data []byte) (*models.AppState, error) {
	var s *models.AppState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("state: decode: %w", err)
	}
	return s, nil
}

// Normalize returns a repaired deep copy of s:
//   - nil becomes a fresh default document;
//   - legacy "sections" and "captureSectionId" fold into boards and captureBoardId;
//   - nil entries are dropped, missing ids, names and defaults are filled;
//   - activeSpaceId and captureBoardId are pointed at entities that exist.
//
// Normalize is idempotent: Normalize(Normalize(s)) equals Normalize(s).
func Normalize(s *models.AppState) *models.AppState {
	return normalizeAt(s, time.Now().UTC())
}

func normalizeAt(s *models.AppState, now time.Time) *models.AppState {
	if s == nil {
		return DefaultState()
	}
	next := s.Clone()
	if next.Version <= 0 {
		next.Version = models.SchemaVersion
	}

	spaces := make([]*models.Space, 0, len(next.Spaces))
	for _, sp := range next.Spaces {
		if sp == nil {
			continue
		}
		spaces = append(spaces, normalizeSpace(sp, now))
	}
	next.Spaces = spaces

	normalizePreferences(&next.Preferences, next.Spaces)

	if next.LastUpdated.IsZero() {
		next.LastUpdated = now
	}
	return next
}

func normalizeSpace(sp *models.Space, now time.Time) *models.Space {
	if len(sp.Boards) == 0 && len(sp.Sections) > 0 {
		sp.Boards = sp.Sections
	}
	sp.Sections = nil

	if sp.ID == "" {
		sp.ID = NewID("space")
	}
	if strings.TrimSpace(sp.Name) == "" {
		sp.Name = DefaultSpaceName
	}
	if sp.Accent == "" {
		sp.Accent = RandomAccent()
	}

	boards := make([]*models.Board, 0, len(sp.Boards))
	for _, b := range sp.Boards {
		if b == nil {
			continue
		}
		boards = append(boards, normalizeBoard(b, now))
	}
	sp.Boards = boards
	return sp
}

func normalizeBoard(b *models.Board, now time.Time) *models.Board {
	if b.ID == "" {
		b.ID = NewID("board")
	}
	if strings.TrimSpace(b.Name) == "" {
		b.Name = DefaultBoardName
	}
	cards := make([]*models.Card, 0, len(b.Cards))
	for _, c := range b.Cards {
		if c == nil {
			continue
		}
		cards = append(cards, normalizeCard(c, now))
	}
	b.Cards = cards
	return b
}

func normalizeCard(c *models.Card, now time.Time) *models.Card {
	if c.ID == "" {
		c.ID = NewID("card")
	}
	switch c.Type {
	case models.CardTypeLink, models.CardTypeNote, models.CardTypeTodo:
	default:
		c.Type = models.CardTypeLink
	}
	if strings.TrimSpace(c.Title) == "" {
		c.Title = DefaultCardTitle
	}
	c.Tags = normalizeTags(c.Tags)
	if c.Color == "" {
		c.Color = DefaultCardColor
	}
	if c.Favicon == "" && c.Type == models.CardTypeLink {
		c.Favicon = DeriveFavicon(c.URL)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return c
}

// normalizeTags trims, drops empties and de-duplicates while keeping order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizePreferences(p *models.Preferences, spaces []*models.Space) {
	if p.CaptureBoardID == "" && p.CaptureSectionID != "" {
		p.CaptureBoardID = p.CaptureSectionID
	}
	p.CaptureSectionID = ""

	if p.ViewMode != models.ViewModeFavorites {
		p.ViewMode = models.ViewModeSpaces
	}

	active := findSpace(spaces, p.ActiveSpaceID)
	if active == nil {
		p.ActiveSpaceID = ""
		if len(spaces) > 0 {
			active = spaces[0]
			p.ActiveSpaceID = active.ID
		}
	}

	if active == nil {
		p.CaptureBoardID = ""
		return
	}
	if findBoard(active, p.CaptureBoardID) != nil {
		return
	}
	p.CaptureBoardID = ""
	if len(active.Boards) > 0 {
		p.CaptureBoardID = active.Boards[0].ID
	}
}
