package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/taboard/internal/boardservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *boardservice.Service, sync Syncer, conn Connection, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, sync, conn)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/state", h.GetState)
	r.Put("/state", h.ReplaceState)

	r.Route("/spaces", func(r chi.Router) {
		r.Post("/", h.CreateSpace)
		r.Patch("/{id}", h.RenameSpace)
		r.Delete("/{id}", h.DeleteSpace)
		r.Post("/{id}/move", h.MoveSpace)
		r.Post("/{id}/boards", h.CreateBoard)
	})

	r.Route("/boards", func(r chi.Router) {
		r.Patch("/{id}", h.RenameBoard)
		r.Delete("/{id}", h.DeleteBoard)
		r.Post("/{id}/move", h.MoveBoard)
		r.Post("/{id}/cards", h.CreateCard)
	})

	r.Route("/cards", func(r chi.Router) {
		r.Patch("/{id}", h.UpdateCard)
		r.Delete("/{id}", h.DeleteCard)
		r.Post("/{id}/move", h.MoveCard)
		r.Post("/{id}/favorite", h.ToggleFavorite)
		r.Post("/{id}/done", h.ToggleDone)
	})

	r.Patch("/preferences", h.UpdatePreferences)
	r.Get("/favorites", h.Favorites)
	r.Get("/search", h.Search)

	// Remote connection and sync.
	r.Get("/connection", h.GetConnection)
	r.Post("/connection/connect", h.Connect)
	r.Post("/connection/disconnect", h.Disconnect)
	r.Post("/sync", h.SyncNow)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
