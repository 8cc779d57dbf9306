package syncer

import (
	"github.com/starford/taboard/internal/models"
	"github.com/starford/taboard/internal/state"
)

// MergeAddedCards returns a normalized copy of remote with every card in
// added that exists in local but not in remote prepended to its board. When
// the card's board is gone from remote, the card is filed into the first board
// of the target space, then the first board of any space. Cards are dropped
// only if remote has no board at all.
func MergeAddedCards(remote, local *models.AppState, added []models.AddedCard) *models.AppState {
	if remote == nil {
		return nil
	}
	merged := state.Normalize(remote)
	for _, a := range added {
		if a.ID == "" || state.ContainsCard(merged, a.ID) {
			continue
		}
		_, _, card := state.FindCard(local, state.CardLocation{
			SpaceID: a.SpaceID,
			BoardID: a.BoardID,
			CardID:  a.ID,
		})
		if card == nil {
			continue
		}
		board := targetBoard(merged, a)
		if board == nil {
			continue
		}
		board.Cards = append([]*models.Card{card.Clone()}, board.Cards...)
	}
	return merged
}

func targetBoard(s *models.AppState, a models.AddedCard) *models.Board {
	if _, b := state.FindBoard(s, a.BoardID); b != nil {
		return b
	}
	sp := state.FindSpace(s, a.SpaceID)
	if sp == nil && len(s.Spaces) > 0 {
		sp = s.Spaces[0]
	}
	if sp != nil && len(sp.Boards) > 0 {
		return sp.Boards[0]
	}
	for _, other := range s.Spaces {
		if len(other.Boards) > 0 {
			return other.Boards[0]
		}
	}
	return nil
}
