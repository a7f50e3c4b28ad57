package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/linkorder/internal/linkservice"
	"github.com/starford/linkorder/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *linkservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *linkservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListLinkTypes handles GET /api/link-types.
//
//	@Summary		List link types
//	@Tags			types
//	@Produce		json
//	@Success		200	{array}	models.LinkType
//	@Security		BearerAuth
//	@Router			/link-types [get]
func (h *Handler) ListLinkTypes(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListLinkTypes(r.Context())
	if err != nil {
		writeError(w, "list link types", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetLinkType handles GET /api/link-types/{id}.
func (h *Handler) GetLinkType(w http.ResponseWriter, r *http.Request) {
	lt, err := h.svc.GetLinkType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get link type", err)
		return
	}
	writeJSON(w, http.StatusOK, lt)
}

// CreateLinkType handles POST /api/link-types.
//
//	@Summary		Create a link type
//	@Tags			types
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateLinkTypeRequest	true	"Link type to create"
//	@Success		201		{object}	models.LinkType
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/link-types [post]
func (h *Handler) CreateLinkType(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkTypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lt, err := h.svc.CreateLinkType(r.Context(), models.LinkType{
		ID:          req.ID,
		Title:       req.Title,
		PluralTitle: req.PluralTitle,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, "create link type", err)
		return
	}
	writeJSON(w, http.StatusCreated, lt)
}

// ListEntityTypes handles GET /api/entity-types.
func (h *Handler) ListEntityTypes(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListEntityTypes(r.Context())
	if err != nil {
		writeError(w, "list entity types", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetEntityType handles GET /api/entity-types/{id}.
func (h *Handler) GetEntityType(w http.ResponseWriter, r *http.Request) {
	et, err := h.svc.GetEntityType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get entity type", err)
		return
	}
	writeJSON(w, http.StatusOK, et)
}

// CreateEntityType handles POST /api/entity-types.
//
//	@Summary		Create an entity type and its outgoing link rules
//	@Tags			types
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateEntityTypeRequest	true	"Entity type to create"
//	@Success		201		{object}	models.EntityType
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entity-types [post]
func (h *Handler) CreateEntityType(w http.ResponseWriter, r *http.Request) {
	var req CreateEntityTypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	et, err := h.svc.CreateEntityType(r.Context(), models.EntityType{
		ID:            req.ID,
		Title:         req.Title,
		OutgoingLinks: req.OutgoingLinks,
	})
	if err != nil {
		writeError(w, "create entity type", err)
		return
	}
	writeJSON(w, http.StatusCreated, et)
}

// ListEntities handles GET /api/entities.
//
//	@Summary		List entities with optional pagination and type filter
//	@Tags			entities
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			type	query		string	false	"Filter by entity type"
//	@Success		200		{object}	EntityListResponse
//	@Security		BearerAuth
//	@Router			/entities [get]
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListEntities(r.Context(), limit, offset, q.Get("type"))
	if err != nil {
		writeError(w, "list entities", err)
		return
	}
	writeJSON(w, http.StatusOK, EntityListResponse{Entities: items, Total: total})
}

// CreateEntity handles POST /api/entities.
func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req CreateEntityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.svc.CreateEntity(r.Context(), req.EntityTypeID, req.OwnedByID, req.Properties)
	if err != nil {
		writeError(w, "create entity", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GetEntity handles GET /api/entities/{id}.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetEntity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get entity", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// UpdateEntity handles PATCH /api/entities/{id}.
func (h *Handler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	var req UpdateEntityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.svc.UpdateEntity(r.Context(), chi.URLParam(r, "id"), req.Properties)
	if err != nil {
		writeError(w, "update entity", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Search handles GET /api/search.
//
//	@Summary		Text search across entities
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
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
	results, err := h.svc.SearchEntities(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
