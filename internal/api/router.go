package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/linkorder/internal/linkservice"
	"github.com/starford/linkorder/internal/seed"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// importer, if non-nil, exposes the seed directory under /seed-files.
func NewRouter(svc *linkservice.Service, authEnabled bool, token string, sseHandler http.Handler, importer *seed.Importer) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Types.
	r.Get("/link-types", h.ListLinkTypes)
	r.Post("/link-types", h.CreateLinkType)
	r.Get("/link-types/{id}", h.GetLinkType)
	r.Get("/entity-types", h.ListEntityTypes)
	r.Post("/entity-types", h.CreateEntityType)
	r.Get("/entity-types/{id}", h.GetEntityType)

	// Entities.
	r.Get("/entities", h.ListEntities)
	r.Post("/entities", h.CreateEntity)
	r.Get("/entities/{id}", h.GetEntity)
	r.Patch("/entities/{id}", h.UpdateEntity)
	r.Get("/entities/{id}/links", h.ListEntityLinks)
	r.Get("/entities/{id}/incoming", h.ListIncomingLinks)

	// Links and groups.
	r.Post("/links", h.CreateLink)
	r.Get("/links/{id}", h.GetLink)
	r.Patch("/links/{id}", h.UpdateLink)
	r.Delete("/links/{id}", h.DeleteLink)
	r.Get("/groups/check", h.CheckGroups)
	r.Get("/groups/{source}/{linkType}", h.GetGroup)

	// Search.
	r.Get("/search", h.Search)

	if importer != nil {
		sh := NewSeedFileHandler(importer)
		r.Get("/seed-files", sh.List)
		r.Post("/seed-files", sh.Upload)
		r.Get("/seed-files/{filename}", sh.ServeFile)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
