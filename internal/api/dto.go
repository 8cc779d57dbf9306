package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/taboard/internal/boardservice"
	"github.com/starford/taboard/internal/models"
)

const maxNameLen = 120

var cardTypes = []any{models.CardTypeLink, models.CardTypeNote, models.CardTypeTodo}

// SpaceRequest is the request body for creating or renaming a space.
type SpaceRequest struct {
	Name string `json:"name" example:"Work" validate:"required"`
}

// Validate implements validation.Validatable.
func (r SpaceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, maxNameLen)),
	)
}

// BoardRequest is the request body for creating or renaming a board. An
// empty name selects the default.
type BoardRequest struct {
	Name string `json:"name" example:"Reading list"`
}

// Validate implements validation.Validatable.
func (r BoardRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(0, maxNameLen)),
	)
}

// MoveRequest is the request body for reordering a space or a board.
type MoveRequest struct {
	Index int `json:"index" example:"0"`
}

// Validate implements validation.Validatable.
func (r MoveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Index, validation.Min(0)),
	)
}

// CardMoveRequest is the request body for moving a card.
type CardMoveRequest struct {
	BoardID string `json:"boardId" example:"board-k2j9x0a" validate:"required"`
	Index   int    `json:"index" example:"0"`
}

// Validate implements validation.Validatable.
func (r CardMoveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BoardID, validation.Required),
		validation.Field(&r.Index, validation.Min(0)),
	)
}

// CreateCardRequest is the request body for adding a card. Link cards need
// a URL.
type CreateCardRequest struct {
	Type    string   `json:"type" example:"link"`
	Title   string   `json:"title" example:"Go blog"`
	Note    string   `json:"note"`
	URL     string   `json:"url" example:"https://go.dev/blog"`
	Tags    []string `json:"tags"`
	Color   string   `json:"color" example:"#2563eb"`
	Favicon string   `json:"favicon"`
}

// Validate implements validation.Validatable.
func (r CreateCardRequest) Validate() error {
	isLink := r.Type == "" || r.Type == models.CardTypeLink
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.In(cardTypes...)),
		validation.Field(&r.URL, validation.When(isLink, validation.Required)),
		validation.Field(&r.Tags, validation.Each(validation.Length(0, 64))),
	)
}

func (r CreateCardRequest) input() boardservice.CardInput {
	return boardservice.CardInput{
		Type:    r.Type,
		Title:   r.Title,
		Note:    r.Note,
		URL:     r.URL,
		Tags:    r.Tags,
		Color:   r.Color,
		Favicon: r.Favicon,
	}
}

// UpdateCardRequest is the request body for editing a card; omitted fields
// are left unchanged.
type UpdateCardRequest struct {
	Type     *string   `json:"type"`
	Title    *string   `json:"title"`
	Note     *string   `json:"note"`
	URL      *string   `json:"url"`
	Tags     *[]string `json:"tags"`
	Color    *string   `json:"color"`
	Favorite *bool     `json:"favorite"`
	Done     *bool     `json:"done"`
}

// Validate implements validation.Validatable.
func (r UpdateCardRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.NilOrNotEmpty, validation.In(cardTypes...)),
	)
}

func (r UpdateCardRequest) patch() boardservice.CardPatch {
	return boardservice.CardPatch{
		Type:     r.Type,
		Title:    r.Title,
		Note:     r.Note,
		URL:      r.URL,
		Tags:     r.Tags,
		Color:    r.Color,
		Favorite: r.Favorite,
		Done:     r.Done,
	}
}

// PreferencesRequest is the request body for PATCH /preferences.
type PreferencesRequest struct {
	ActiveSpaceID  *string `json:"activeSpaceId"`
	SearchTerm     *string `json:"searchTerm"`
	ViewMode       *string `json:"viewMode" example:"spaces"`
	CaptureBoardID *string `json:"captureBoardId"`
}

// Validate implements validation.Validatable.
func (r PreferencesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ViewMode, validation.NilOrNotEmpty,
			validation.In(models.ViewModeSpaces, models.ViewModeFavorites)),
	)
}

func (r PreferencesRequest) patch() boardservice.PreferencesPatch {
	return boardservice.PreferencesPatch{
		ActiveSpaceID:  r.ActiveSpaceID,
		SearchTerm:     r.SearchTerm,
		ViewMode:       r.ViewMode,
		CaptureBoardID: r.CaptureBoardID,
	}
}

// CardListResponse wraps favorites and search results.
type CardListResponse struct {
	Results []boardservice.CardHit `json:"results" validate:"required"`
}

// SyncResponse reports the outcome of a manual sync.
type SyncResponse struct {
	Outcome string `json:"outcome" example:"uploaded" validate:"required"`
}
