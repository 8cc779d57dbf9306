package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/taboard/internal/boardservice"
	"github.com/starford/taboard/internal/connection"
	"github.com/starford/taboard/internal/models"
	"github.com/starford/taboard/internal/syncer"
)

// Syncer is the sync surface driven by the API.
type Syncer interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SyncNow(ctx context.Context, req syncer.Request) (syncer.Outcome, error)
}

// Connection reports the remote connection status.
type Connection interface {
	Snapshot() connection.Snapshot
}

// Handler holds API route handlers.
type Handler struct {
	svc  *boardservice.Service
	sync Syncer
	conn Connection
}

// NewHandler creates a new Handler.
func NewHandler(svc *boardservice.Service, sync Syncer, conn Connection) *Handler {
	return &Handler{svc: svc, sync: sync, conn: conn}
}

// GetState handles GET /api/state.
//
//	@Summary		Get the whole board document
//	@Tags			state
//	@Produce		json
//	@Success		200	{object}	models.AppState
//	@Security		BearerAuth
//	@Router			/state [get]
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.State(r.Context()))
}

// ReplaceState handles PUT /api/state. The body replaces the document and is
// synced like any other local change.
//
//	@Summary		Replace the whole board document
//	@Tags			state
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.AppState	true	"Document to install"
//	@Success		200		{object}	models.AppState
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/state [put]
func (h *Handler) ReplaceState(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var doc *models.AppState
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || doc == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Import(r.Context(), doc))
}

// CreateSpace handles POST /api/spaces.
//
//	@Summary		Create a space and make it active
//	@Tags			spaces
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SpaceRequest	true	"Space to create"
//	@Success		201		{object}	models.Space
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/spaces [post]
func (h *Handler) CreateSpace(w http.ResponseWriter, r *http.Request) {
	var req SpaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sp, err := h.svc.AddSpace(r.Context(), req.Name)
	if err != nil {
		writeError(w, "create space", err)
		return
	}
	writeJSON(w, http.StatusCreated, sp)
}

// RenameSpace handles PATCH /api/spaces/{id}.
func (h *Handler) RenameSpace(w http.ResponseWriter, r *http.Request) {
	var req SpaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sp, err := h.svc.RenameSpace(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, "rename space", err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

// DeleteSpace handles DELETE /api/spaces/{id}.
func (h *Handler) DeleteSpace(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSpace(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete space", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveSpace handles POST /api/spaces/{id}/move.
func (h *Handler) MoveSpace(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.MoveSpace(r.Context(), chi.URLParam(r, "id"), req.Index); err != nil {
		writeError(w, "move space", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateBoard handles POST /api/spaces/{id}/boards.
//
//	@Summary		Append a board to a space
//	@Tags			boards
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Space id"
//	@Param			body	body		BoardRequest	true	"Board to create"
//	@Success		201		{object}	models.Board
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/spaces/{id}/boards [post]
func (h *Handler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	var req BoardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.AddBoard(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, "create board", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// RenameBoard handles PATCH /api/boards/{id}.
func (h *Handler) RenameBoard(w http.ResponseWriter, r *http.Request) {
	var req BoardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.RenameBoard(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, "rename board", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DeleteBoard handles DELETE /api/boards/{id}.
func (h *Handler) DeleteBoard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteBoard(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete board", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveBoard handles POST /api/boards/{id}/move.
func (h *Handler) MoveBoard(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.MoveBoard(r.Context(), chi.URLParam(r, "id"), req.Index); err != nil {
		writeError(w, "move board", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCard handles POST /api/boards/{id}/cards.
//
//	@Summary		Add a card to the top of a board
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Board id"
//	@Param			body	body		CreateCardRequest	true	"Card to create"
//	@Success		201		{object}	boardservice.CardHit
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/boards/{id}/cards [post]
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hit, err := h.svc.AddCard(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, "create card", err)
		return
	}
	writeJSON(w, http.StatusCreated, hit)
}

// UpdateCard handles PATCH /api/cards/{id}.
//
//	@Summary		Edit a card
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Card id"
//	@Param			body	body		UpdateCardRequest	true	"Fields to change"
//	@Success		200		{object}	boardservice.CardHit
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id} [patch]
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	var req UpdateCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hit, err := h.svc.UpdateCard(r.Context(), chi.URLParam(r, "id"), req.patch())
	if err != nil {
		writeError(w, "update card", err)
		return
	}
	writeJSON(w, http.StatusOK, hit)
}

// DeleteCard handles DELETE /api/cards/{id}.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCard(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveCard handles POST /api/cards/{id}/move.
func (h *Handler) MoveCard(w http.ResponseWriter, r *http.Request) {
	var req CardMoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hit, err := h.svc.MoveCard(r.Context(), chi.URLParam(r, "id"), req.BoardID, req.Index)
	if err != nil {
		writeError(w, "move card", err)
		return
	}
	writeJSON(w, http.StatusOK, hit)
}

// ToggleFavorite handles POST /api/cards/{id}/favorite.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	hit, err := h.svc.ToggleFavorite(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "toggle favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, hit)
}

// ToggleDone handles POST /api/cards/{id}/done.
func (h *Handler) ToggleDone(w http.ResponseWriter, r *http.Request) {
	hit, err := h.svc.ToggleDone(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "toggle done", err)
		return
	}
	writeJSON(w, http.StatusOK, hit)
}

// UpdatePreferences handles PATCH /api/preferences.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	prefs, err := h.svc.SetPreferences(r.Context(), req.patch())
	if err != nil {
		writeError(w, "update preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// Favorites handles GET /api/favorites.
func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CardListResponse{Results: h.svc.Favorites(r.Context())})
}

// Search handles GET /api/search.
//
//	@Summary		Search cards by title, note, url and tags
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	CardListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, CardListResponse{Results: h.svc.Search(r.Context(), q, limit)})
}

// GetConnection handles GET /api/connection.
func (h *Handler) GetConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.conn.Snapshot())
}

// Connect handles POST /api/connection/connect.
//
//	@Summary		Connect remote storage and run the first sync
//	@Tags			connection
//	@Produce		json
//	@Success		200	{object}	connection.Snapshot
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/connection/connect [post]
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.Connect(r.Context()); err != nil {
		writeError(w, "connect", err)
		return
	}
	writeJSON(w, http.StatusOK, h.conn.Snapshot())
}

// Disconnect handles POST /api/connection/disconnect.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.Disconnect(r.Context()); err != nil {
		writeError(w, "disconnect", err)
		return
	}
	writeJSON(w, http.StatusOK, h.conn.Snapshot())
}

// SyncNow handles POST /api/sync.
//
//	@Summary		Run a manual sync
//	@Tags			connection
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if !h.conn.Snapshot().Connected() {
		writeJSON(w, http.StatusConflict, errorBody("remote storage is not connected"))
		return
	}
	outcome, err := h.sync.SyncNow(r.Context(), syncer.Request{Reason: syncer.ReasonManual})
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Outcome: string(outcome)})
}
