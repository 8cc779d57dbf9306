package state

import (
	"time"

	"github.com/starford/taboard/internal/models"
)

// Defaults applied by normalization.
const (
	DefaultSpaceName = "Untitled"
	DefaultBoardName = "New board"
	DefaultCardTitle = "Untitled"
	DefaultCardColor = "#475569"
)

// DefaultState builds the first-boot document: two spaces with three boards
// each and a few sample cards in the first board.
func DefaultState() *models.AppState {
	now := time.Now().UTC()
	focus := &models.Space{
		ID:     NewID("space"),
		Name:   "Focus",
		Accent: RandomAccent(),
		Boards: defaultBoards(now),
	}
	personal := &models.Space{
		ID:     NewID("space"),
		Name:   "Personal",
		Accent: RandomAccent(),
		Boards: defaultBoards(now),
	}
	return &models.AppState{
		Version: models.SchemaVersion,
		Spaces:  []*models.Space{focus, personal},
		Preferences: models.Preferences{
			ActiveSpaceID:  focus.ID,
			ViewMode:       models.ViewModeSpaces,
			CaptureBoardID: focus.Boards[0].ID,
		},
		LastUpdated: now,
	}
}

func defaultBoards(now time.Time) []*models.Board {
	return []*models.Board{
		{ID: NewID("board"), Name: "Today's tasks", Cards: sampleCards(now)},
		{ID: NewID("board"), Name: "Links & resources", Cards: []*models.Card{}},
		{ID: NewID("board"), Name: "Ideas", Cards: []*models.Card{}},
	}
}

func sampleCards(now time.Time) []*models.Card {
	return []*models.Card{
		{
			ID:        NewID("card"),
			Type:      models.CardTypeLink,
			Title:     "Reading list",
			Note:      "Open everything at once from the board header",
			URL:       "https://example.com/productivity",
			Tags:      []string{"links", "reading"},
			Color:     "#2563eb",
			Favorite:  true,
			Favicon:   DeriveFavicon("https://example.com/productivity"),
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:        NewID("card"),
			Type:      models.CardTypeTodo,
			Title:     "Focus tasks for today",
			Note:      "Jump straight to search with Ctrl+K",
			Tags:      []string{"focus"},
			Color:     "#6366f1",
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:        NewID("card"),
			Type:      models.CardTypeNote,
			Title:     "Favorites test",
			Note:      "Star a card to see it in the favorites view",
			Tags:      []string{"tips"},
			Color:     "#f472b6",
			Favorite:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// EmptyDocument is the placeholder written when the remote file is created.
func EmptyDocument() *models.AppState {
	return &models.AppState{
		Version: models.SchemaVersion,
		Spaces:  []*models.Space{},
	}
}

// IsEmptyDocument reports whether s carries no user data and no clock, which
// is what a freshly created remote file looks like.
func IsEmptyDocument(s *models.AppState) bool {
	return s == nil || (len(s.Spaces) == 0 && s.LastUpdated.IsZero())
}
