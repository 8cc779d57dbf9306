package state

import (
	"testing"

	"github.com/starford/taboard/internal/models"
)

func lookupFixture() *models.AppState {
	return &models.AppState{Spaces: []*models.Space{
		{ID: "space-1", Boards: []*models.Board{
			{ID: "board-1", Cards: []*models.Card{{ID: "a"}}},
			{ID: "board-2", Cards: []*models.Card{{ID: "b"}}},
		}},
		{ID: "space-2", Boards: []*models.Board{
			{ID: "board-3", Cards: []*models.Card{{ID: "c"}}},
		}},
	}}
}

func TestFindCard(t *testing.T) {
	s := lookupFixture()

	tests := []struct {
		name      string
		loc       CardLocation
		wantSpace string
		wantBoard string
		wantCard  string
	}{
		{"exact hints", CardLocation{SpaceID: "space-1", BoardID: "board-1", CardID: "a"}, "space-1", "board-1", "a"},
		{"id only", CardLocation{CardID: "c"}, "space-2", "board-3", "c"},
		{"moved within space", CardLocation{SpaceID: "space-1", BoardID: "board-1", CardID: "b"}, "space-1", "board-2", "b"},
		{"moved across spaces", CardLocation{SpaceID: "space-1", BoardID: "board-1", CardID: "c"}, "space-2", "board-3", "c"},
		{"stale space hint", CardLocation{SpaceID: "gone", BoardID: "board-2", CardID: "a"}, "space-1", "board-1", "a"},
		{"missing card keeps hints", CardLocation{SpaceID: "space-1", BoardID: "board-2", CardID: "zzz"}, "space-1", "board-2", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, b, c := FindCard(s, tt.loc)
			if got := spaceID(sp); got != tt.wantSpace {
				t.Errorf("space = %q, want %q", got, tt.wantSpace)
			}
			if got := boardID(b); got != tt.wantBoard {
				t.Errorf("board = %q, want %q", got, tt.wantBoard)
			}
			if got := cardID(c); got != tt.wantCard {
				t.Errorf("card = %q, want %q", got, tt.wantCard)
			}
		})
	}
}

func TestFindCard_Nil(t *testing.T) {
	if sp, b, c := FindCard(nil, CardLocation{CardID: "a"}); sp != nil || b != nil || c != nil {
		t.Errorf("FindCard(nil) = %v %v %v", sp, b, c)
	}
}

func spaceID(sp *models.Space) string {
	if sp == nil {
		return ""
	}
	return sp.ID
}

func boardID(b *models.Board) string {
	if b == nil {
		return ""
	}
	return b.ID
}

func cardID(c *models.Card) string {
	if c == nil {
		return ""
	}
	return c.ID
}
