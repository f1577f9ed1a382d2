package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tasklink/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted. sseHandler,
// if non-nil, is served at GET /events behind the same auth.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/parse", h.Parse)
	r.Post("/render", h.Render)

	r.Post("/sync/lines", h.SyncLines)
	r.Post("/sync/section", h.SyncSection)

	r.Get("/links", h.SearchLinks)
	r.Get("/links/dangling", h.DanglingLinks)
	r.Get("/links/{token}", h.Link)

	r.Get("/today", h.Today)
	r.Get("/stats", h.Stats)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}
	return r
}
