package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/arbor/internal/treeservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *treeservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Read models.
	r.Get("/tree", h.GetTree)
	r.Get("/tree/rows", h.GetRows)
	r.Get("/tree/check", h.CheckTree)
	r.Get("/session", h.GetSession)
	r.Get("/keys", h.GetKeys)

	// Structural edits.
	r.Post("/items", h.CreateItem)
	r.Route("/items/{id}", func(r chi.Router) {
		r.Patch("/", h.RenameItem)
		r.Delete("/", h.DeleteItem)
		r.Post("/move", h.MoveItem)
		r.Post("/promote", h.PromoteItem)
		r.Post("/cut", h.CutItem)
		r.Post("/click", h.ClickItem)
		r.Post("/toggle", h.ToggleItem)
		r.Post("/context-menu", h.OpenContextMenu)
	})
	r.Post("/paste", h.Paste)

	// View interaction.
	r.Post("/keys", h.PressKey)
	r.Post("/reveal/{id}", h.Reveal)
	r.Post("/refresh", h.Refresh)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
